// Package memory stores artifacts in-memory for development and tests.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// BlobStore keeps uploaded artifacts in a map and serves pseudo URLs.
type BlobStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewBlobStore creates a new in-memory artifact store.
func NewBlobStore() *BlobStore {
	return &BlobStore{data: make(map[string][]byte)}
}

// Upload copies data under key.
func (s *BlobStore) Upload(_ context.Context, key string, data []byte, _ string) error {
	if key == "" {
		return fmt.Errorf("key is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = append([]byte(nil), data...)
	return nil
}

// SignedURL returns a memory:// pseudo URL for a stored key.
func (s *BlobStore) SignedURL(_ context.Context, key string, _ time.Duration) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.data[key]; !ok {
		return "", fmt.Errorf("no object stored under %q", key)
	}
	return fmt.Sprintf("memory://%s", key), nil
}

// Get returns the stored bytes for key, for test assertions.
func (s *BlobStore) Get(key string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.data[key]
	return data, ok
}

// Len reports how many objects are stored.
func (s *BlobStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
