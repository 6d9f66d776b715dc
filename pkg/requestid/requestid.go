// Package requestid generates request identifiers for one connection.
//
// Identifiers are strictly increasing and never reused by a Generator.
// The orchestrator creates a fresh Generator per connection attempt, so ids
// restart at the seed whenever a new transport connection is made.
package requestid

import "sync/atomic"

// Seed is the first id returned by a new Generator.
const Seed int64 = 1

// Generator hands out strictly increasing request ids.
// It is safe for concurrent use.
type Generator struct {
	last atomic.Int64
}

// New creates a generator whose first id is Seed.
func New() *Generator {
	return NewFrom(Seed)
}

// NewFrom creates a generator whose first id is first.
func NewFrom(first int64) *Generator {
	g := &Generator{}
	g.last.Store(first - 1)
	return g
}

// Next returns the next id.
func (g *Generator) Next() int64 {
	return g.last.Add(1)
}

// Last returns the most recently issued id, or Seed-1 if none was issued.
func (g *Generator) Last() int64 {
	return g.last.Load()
}
