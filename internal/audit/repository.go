package audit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for audit trail storage. The trail is
// append-only; entries are never updated or deleted.
type Repository interface {
	// Insert appends one entry, assigning ID and CreatedAt when empty.
	Insert(ctx context.Context, e *Entry) error
	// List returns all entries, newest first.
	List(ctx context.Context) ([]*Entry, error)
}

// InMemoryRepository is an in-memory implementation of Repository.
// Used for testing and development. Thread-safe via RWMutex.
type InMemoryRepository struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	order   []string
}

// NewInMemoryRepository creates a new in-memory audit repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		entries: make(map[string]*Entry),
	}
}

// Insert appends one entry.
func (r *InMemoryRepository) Insert(ctx context.Context, e *Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	stored := *e
	r.entries[stored.ID] = &stored
	r.order = append(r.order, stored.ID)
	return nil
}

// List returns all entries, newest first.
func (r *InMemoryRepository) List(ctx context.Context) ([]*Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Entry, 0, len(r.order))
	for i := len(r.order) - 1; i >= 0; i-- {
		copy := *r.entries[r.order[i]]
		out = append(out, &copy)
	}
	return out, nil
}
