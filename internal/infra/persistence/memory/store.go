// Package memory provides an in-memory bucket store used for tests and
// ephemeral devices.
package memory

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("memory store closed")

// Store keeps bucket payloads in process memory.
type Store struct {
	mu      sync.RWMutex
	buckets map[string][]byte
	closed  bool
}

// NewStore constructs an empty in-memory store.
func NewStore() *Store {
	return &Store{buckets: make(map[string][]byte)}
}

// Get returns a copy of the bucket payload.
func (s *Store) Get(_ context.Context, bucket string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, false, ErrClosed
	}
	b, ok := s.buckets[bucket]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), b...), true, nil
}

// Put replaces the bucket payload.
func (s *Store) Put(_ context.Context, bucket string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.buckets[bucket] = append([]byte(nil), payload...)
	return nil
}

// Close marks the store closed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
