// Package memory keeps cache snapshots in process memory. Intended for tests
// and single-process deployments that only need warm restarts of the cache
// object itself.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"obscore/internal/errs"
)

// Store implements cache.SnapshotStore backed by a map.
type Store struct {
	mu   sync.RWMutex
	objs map[string][]byte
}

// New returns an empty in-memory snapshot store.
func New() *Store { return &Store{objs: make(map[string][]byte)} }

// Save stores a copy of payload under key, replacing any previous value.
func (s *Store) Save(_ context.Context, key string, payload []byte) error {
	if key == "" {
		return fmt.Errorf("empty snapshot key")
	}
	b := make([]byte, len(payload))
	copy(b, payload)
	s.mu.Lock()
	s.objs[key] = b
	s.mu.Unlock()
	return nil
}

// Load returns a copy of the payload stored under key.
func (s *Store) Load(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	b, ok := s.objs[key]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("snapshot %s: %w", key, errs.ErrSnapshotNotFound)
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

// Keys lists stored keys in sorted order.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.objs))
	for k := range s.objs {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
