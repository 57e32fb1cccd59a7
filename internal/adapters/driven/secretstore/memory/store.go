// Package memory implements driven.SecretStore against a process-local map,
// adapted from the teacher's in-memory config store shape. Used by default
// in tests and by hosts that manage their own persistence.
package memory

import (
	"context"
	"sync"

	"github.com/feima-labs/feima-bridge/internal/core/ports/driven"
)

var _ driven.SecretStore = (*Store)(nil)

// Store is a mutex-guarded map[string][]byte. Nothing is persisted across
// process restarts.
type Store struct {
	mu     sync.RWMutex
	values map[string][]byte
}

// New returns an empty in-memory secret store.
func New() *Store {
	return &Store{values: make(map[string][]byte)}
}

func (s *Store) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.values[key]
	return value, ok, nil
}

func (s *Store) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}
