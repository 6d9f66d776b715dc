package log

import (
	"sort"
	"time"
)

// Stats summarizes a capture.
type Stats struct {
	Events      int
	First       time.Time
	Last        time.Time
	Connections int
	ByLayer     map[Layer]int
	ByCategory  map[Category]int
	ByName      map[string]int // request names and status words
	BodyBytes   int
	Errors      int

	conns map[string]struct{}
}

// NewStats returns an empty summary.
func NewStats() *Stats {
	return &Stats{
		ByLayer:    make(map[Layer]int),
		ByCategory: make(map[Category]int),
		ByName:     make(map[string]int),
		conns:      make(map[string]struct{}),
	}
}

// Add folds one event into the summary.
func (s *Stats) Add(event Event) {
	s.Events++
	if s.First.IsZero() || event.Timestamp.Before(s.First) {
		s.First = event.Timestamp
	}
	if event.Timestamp.After(s.Last) {
		s.Last = event.Timestamp
	}
	if event.ConnectionID != "" {
		if _, ok := s.conns[event.ConnectionID]; !ok {
			s.conns[event.ConnectionID] = struct{}{}
			s.Connections++
		}
	}
	s.ByLayer[event.Layer]++
	s.ByCategory[event.Category]++
	if event.Message != nil {
		s.ByName[event.Message.Name]++
		s.BodyBytes += event.Message.BodySize
	}
	if event.Error != nil {
		s.Errors++
	}
}

// Duration returns the time covered by the capture.
func (s *Stats) Duration() time.Duration {
	if s.Events == 0 {
		return 0
	}
	return s.Last.Sub(s.First)
}

// NameCount is one row of TopNames.
type NameCount struct {
	Name  string
	Count int
}

// TopNames returns the n most frequent message names, most frequent first.
// Ties are ordered by name.
func (s *Stats) TopNames(n int) []NameCount {
	out := make([]NameCount, 0, len(s.ByName))
	for name, c := range s.ByName {
		out = append(out, NameCount{Name: name, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}
