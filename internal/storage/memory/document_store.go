// Package memory stores document content in-memory for development.
package memory

import (
	"context"
	"fmt"
	"sync"
)

// DocumentStore stores documents in-memory and returns pseudo URIs.
type DocumentStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewDocumentStore creates a new in-memory document store.
func NewDocumentStore() *DocumentStore {
	return &DocumentStore{data: make(map[string][]byte)}
}

// PutObject persists the content and returns a memory:// URI.
func (s *DocumentStore) PutObject(_ context.Context, path string, _ string, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[path] = append([]byte(nil), data...)
	return fmt.Sprintf("memory://%s", path), nil
}

// GetObject returns stored content by path.
func (s *DocumentStore) GetObject(path string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.data[path]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), data...), true
}
