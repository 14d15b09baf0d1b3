// Package blob stores record attachments and returns their public URLs.
package blob

import (
	"context"
	"fmt"
	"sync"
)

// MaxAttachmentSize is the upload size limit for a single attachment.
const MaxAttachmentSize = 10 << 20

// Store persists attachment bytes under a key and returns the public URL
// the stored record keeps in its fileUrl field.
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// InMemoryStore is an in-memory implementation of Store.
// Used for testing and development. Thread-safe via RWMutex.
type InMemoryStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewInMemoryStore creates a new in-memory blob store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{objects: make(map[string][]byte)}
}

// Put stores the bytes and returns a synthetic URL.
func (s *InMemoryStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := make([]byte, len(data))
	copy(stored, data)
	s.objects[key] = stored
	return fmt.Sprintf("memory://attachments/%s", key), nil
}

// Get returns the stored bytes, for test assertions.
func (s *InMemoryStore) Get(key string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.objects[key]
	return data, ok
}
