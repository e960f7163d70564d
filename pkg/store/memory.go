package store

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory StatusStore for tests and local runs.
type MemoryStore struct {
	mu    sync.Mutex
	flags map[string]bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		flags: make(map[string]bool),
	}
}

func (s *MemoryStore) SetOnline(ctx context.Context, userID string, online bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flags[userID] = online
	return nil
}

func (s *MemoryStore) MarkAllOffline(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var affected int64
	for userID, online := range s.flags {
		if online {
			s.flags[userID] = false
			affected++
		}
	}
	return affected, nil
}

func (s *MemoryStore) Close() error {
	return nil
}

// IsOnline reports the stored flag for a user. Present for tests and the
// stats endpoint; not part of the StatusStore contract.
func (s *MemoryStore) IsOnline(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flags[userID]
}
