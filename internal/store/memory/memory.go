package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"tiffinbill/internal/store"
)

// Store keeps records in process memory. A positive quota caps the total
// stored bytes, mirroring browser storage limits.
type Store struct {
	mu     sync.RWMutex
	values map[string][]byte
	quota  int
}

func New() *Store {
	return &Store{values: make(map[string][]byte)}
}

func NewWithQuota(quotaBytes int) *Store {
	s := New()
	s.quota = quotaBytes
	return s
}

func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, ok := s.values[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	return slices.Clone(value), nil
}

func (s *Store) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.quota > 0 {
		used := len(value)
		for k, v := range s.values {
			if k != key {
				used += len(v)
			}
		}
		if used > s.quota {
			return fmt.Errorf("set %s: %w", key, store.ErrQuotaExceeded)
		}
	}
	s.values[key] = slices.Clone(value)
	return nil
}

func (s *Store) Delete(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, key := range keys {
		delete(s.values, key)
	}
	return nil
}

func (s *Store) Close() error {
	return nil
}

// Snapshot returns a copy of every stored record.
func (s *Store) Snapshot() map[string][]byte {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string][]byte, len(s.values))
	for k, v := range s.values {
		out[k] = slices.Clone(v)
	}
	return out
}
