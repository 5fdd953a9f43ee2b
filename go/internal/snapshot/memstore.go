package snapshot

import (
	"context"
	"sync"

	"github.com/mcdev12/tickdown/go/internal/countdown"
)

// MemStore keeps snapshots in memory. Useful for tests and for sessions
// that should not survive a restart.
type MemStore struct {
	mu    sync.RWMutex
	snaps map[string]countdown.Snapshot
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		snaps: make(map[string]countdown.Snapshot),
	}
}

// Load returns the snapshot for key, or (nil, nil) when absent.
func (s *MemStore) Load(ctx context.Context, key string) (*countdown.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snaps[key]
	if !ok {
		return nil, nil
	}
	return &snap, nil
}

// Save stores or replaces the snapshot for key.
func (s *MemStore) Save(ctx context.Context, key string, snap countdown.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snaps[key] = snap
	return nil
}

// Clear removes the snapshot for key.
func (s *MemStore) Clear(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snaps, key)
	return nil
}
