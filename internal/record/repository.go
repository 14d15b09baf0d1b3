package record

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repository errors.
var (
	// ErrNotFound is returned when no record matches the lookup.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicateSerial is returned when an insert would reuse a
	// human-readable identifier within the same resource type. This is
	// the storage-layer backstop for the identifier generator's
	// read-then-write race; callers retry with a fresh identifier.
	ErrDuplicateSerial = errors.New("duplicate serial identifier")
)

// Repository defines the interface for document storage across all
// registered resource types.
type Repository interface {
	// Insert stores a new record, assigning an ID when empty. Returns
	// ErrDuplicateSerial when the type declares a serial field and the
	// value is already taken for that type.
	Insert(ctx context.Context, rec *Record) error
	// Update replaces the stored record's fields and file URL.
	Update(ctx context.Context, rec *Record) error
	// Delete removes a record.
	Delete(ctx context.Context, typeName, id string) error
	// GetByID retrieves one record.
	GetByID(ctx context.Context, typeName, id string) (*Record, error)
	// List returns all records of a type in insertion order.
	List(ctx context.Context, typeName string) ([]*Record, error)
	// MaxSerial returns the greatest serial value with the given prefix
	// among records of the type, or "" when none exists. Serials are
	// zero-padded but may outgrow their pad width, so candidates are
	// ordered by length first and lexicographically second; a longer
	// serial always carries the larger numeric suffix.
	MaxSerial(ctx context.Context, typeName, prefix string) (string, error)
}

// InMemoryRepository is an in-memory implementation of Repository.
// Used for testing and development. Thread-safe via RWMutex.
type InMemoryRepository struct {
	mu      sync.RWMutex
	records map[string]map[string]*Record // type -> id -> record
	order   map[string][]string
}

// NewInMemoryRepository creates a new in-memory record repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		records: make(map[string]map[string]*Record),
		order:   make(map[string][]string),
	}
}

// Insert stores a new record, enforcing serial uniqueness per type.
func (r *InMemoryRepository) Insert(ctx context.Context, rec *Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if serial := rec.Serial(); serial != "" {
		for _, existing := range r.records[rec.Type] {
			if existing.Serial() == serial {
				return ErrDuplicateSerial
			}
		}
	}

	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	if r.records[rec.Type] == nil {
		r.records[rec.Type] = make(map[string]*Record)
	}
	r.records[rec.Type][rec.ID] = rec.Clone()
	r.order[rec.Type] = append(r.order[rec.Type], rec.ID)
	return nil
}

// Update replaces the stored record. Returns ErrNotFound if absent.
func (r *InMemoryRepository) Update(ctx context.Context, rec *Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.records[rec.Type][rec.ID]
	if !ok {
		return ErrNotFound
	}
	rec.CreatedAt = stored.CreatedAt
	rec.UpdatedAt = time.Now().UTC()
	r.records[rec.Type][rec.ID] = rec.Clone()
	return nil
}

// Delete removes a record. Returns ErrNotFound if absent.
func (r *InMemoryRepository) Delete(ctx context.Context, typeName, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.records[typeName][id]; !ok {
		return ErrNotFound
	}
	delete(r.records[typeName], id)
	for i, oid := range r.order[typeName] {
		if oid == id {
			r.order[typeName] = append(r.order[typeName][:i], r.order[typeName][i+1:]...)
			break
		}
	}
	return nil
}

// GetByID retrieves one record. Returns ErrNotFound if absent.
func (r *InMemoryRepository) GetByID(ctx context.Context, typeName, id string) (*Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[typeName][id]
	if !ok {
		return nil, ErrNotFound
	}
	return rec.Clone(), nil
}

// List returns all records of a type in insertion order.
func (r *InMemoryRepository) List(ctx context.Context, typeName string) ([]*Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Record, 0, len(r.order[typeName]))
	for _, id := range r.order[typeName] {
		if rec, ok := r.records[typeName][id]; ok {
			out = append(out, rec.Clone())
		}
	}
	return out, nil
}

// MaxSerial returns the greatest serial with the given prefix, or "".
func (r *InMemoryRepository) MaxSerial(ctx context.Context, typeName, prefix string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	max := ""
	for _, rec := range r.records[typeName] {
		serial := rec.Serial()
		if serial == "" || !strings.HasPrefix(serial, prefix) {
			continue
		}
		// Length before lexicographic order: once the numeric suffix
		// outgrows its pad width, "100" must beat "99".
		if len(serial) > len(max) || (len(serial) == len(max) && serial > max) {
			max = serial
		}
	}
	return max, nil
}
