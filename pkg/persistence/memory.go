package persistence

import "sync"

// MemoryStore keeps the token in memory.
type MemoryStore struct {
	mu    sync.Mutex
	token *Token
	saves int
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// SaveToken stores the token.
func (s *MemoryStore) SaveToken(token, coreID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = newToken(token, coreID)
	s.saves++
	return nil
}

// LoadToken returns a copy of the stored token, or nil.
func (s *MemoryStore) LoadToken() (*Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token == nil {
		return nil, nil
	}
	t := *s.token
	return &t, nil
}

// ClearToken removes the token.
func (s *MemoryStore) ClearToken() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = nil
	return nil
}

// Saves returns how many times SaveToken was called.
func (s *MemoryStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

// Close is a no-op.
func (s *MemoryStore) Close() error {
	return nil
}

var (
	_ Store = (*FileStore)(nil)
	_ Store = (*BadgerStore)(nil)
	_ Store = (*MemoryStore)(nil)
)
