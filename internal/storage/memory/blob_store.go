// Package memory stores cache objects in-memory for development and tests.
package memory

import (
	"context"
	"sync"

	"github.com/JakeFAU/favicon-resolver/internal/cache"
)

// BlobStore keeps cache objects in a map.
type BlobStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewBlobStore creates a new in-memory store.
func NewBlobStore() *BlobStore {
	return &BlobStore{data: make(map[string][]byte)}
}

// Get returns a copy of the object stored under name.
func (s *BlobStore) Get(_ context.Context, name string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.data[name]
	if !ok {
		return nil, cache.ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

// Put stores a copy of data under name.
func (s *BlobStore) Put(_ context.Context, name string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[name] = append([]byte(nil), data...)
	return nil
}

// Delete removes name.
func (s *BlobStore) Delete(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[name]; !ok {
		return cache.ErrNotFound
	}
	delete(s.data, name)
	return nil
}

// Len reports how many objects are stored.
func (s *BlobStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
