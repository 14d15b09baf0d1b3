package user

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
	// ErrNotFound is returned when no user matches the lookup.
	ErrNotFound = errors.New("user not found")
	// ErrDuplicate is returned when a username or email is already taken.
	ErrDuplicate = errors.New("duplicate user")
)

// Repository defines the interface for user storage.
//
// GetByUsername matches the username case-insensitively but exactly
// otherwise; GetByEmail is an exact match. Both follow the login
// semantics of the auth service.
type Repository interface {
	Insert(ctx context.Context, u *User) error
	Update(ctx context.Context, u *User) error
	Delete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	// GetByResetTokenHash finds the user whose stored reset-token hash
	// matches AND whose expiry is after now. A miss for either reason
	// returns ErrNotFound so callers cannot distinguish the two.
	GetByResetTokenHash(ctx context.Context, hash string, now time.Time) (*User, error)
	List(ctx context.Context) ([]*User, error)
}

// InMemoryRepository is an in-memory implementation of Repository.
// Used for testing and development. Thread-safe via RWMutex.
type InMemoryRepository struct {
	mu    sync.RWMutex
	users map[string]*User
	order []string
}

// NewInMemoryRepository creates a new in-memory user repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		users: make(map[string]*User),
	}
}

func cloneUser(u *User) *User {
	c := *u
	c.Roles = make([]string, len(u.Roles))
	copy(c.Roles, u.Roles)
	return &c
}

// Insert stores a new user. The ID is assigned when empty. Returns
// ErrDuplicate when the username (case-insensitive) or email is taken.
func (r *InMemoryRepository) Insert(ctx context.Context, u *User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.users {
		if strings.EqualFold(existing.Username, u.Username) || existing.Email == u.Email {
			return ErrDuplicate
		}
	}

	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now

	r.users[u.ID] = cloneUser(u)
	r.order = append(r.order, u.ID)
	return nil
}

// Update replaces the stored user. Returns ErrNotFound if absent and
// ErrDuplicate if the new username or email collides with another user.
func (r *InMemoryRepository) Update(ctx context.Context, u *User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[u.ID]; !ok {
		return ErrNotFound
	}
	for id, existing := range r.users {
		if id == u.ID {
			continue
		}
		if strings.EqualFold(existing.Username, u.Username) || existing.Email == u.Email {
			return ErrDuplicate
		}
	}

	u.UpdatedAt = time.Now().UTC()
	r.users[u.ID] = cloneUser(u)
	return nil
}

// Delete removes a user by ID. Returns ErrNotFound if absent.
func (r *InMemoryRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[id]; !ok {
		return ErrNotFound
	}
	delete(r.users, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

// GetByID retrieves a user by ID.
func (r *InMemoryRepository) GetByID(ctx context.Context, id string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneUser(u), nil
}

// GetByUsername retrieves a user by case-insensitive exact username match.
func (r *InMemoryRepository) GetByUsername(ctx context.Context, username string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.users {
		if strings.EqualFold(u.Username, username) {
			return cloneUser(u), nil
		}
	}
	return nil, ErrNotFound
}

// GetByEmail retrieves a user by exact email match.
func (r *InMemoryRepository) GetByEmail(ctx context.Context, email string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.users {
		if u.Email == email {
			return cloneUser(u), nil
		}
	}
	return nil, ErrNotFound
}

// GetByResetTokenHash finds the user with a matching, unexpired reset token.
func (r *InMemoryRepository) GetByResetTokenHash(ctx context.Context, hash string, now time.Time) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.users {
		if u.ResetTokenHash != "" && u.ResetTokenHash == hash && now.Before(u.ResetTokenExpiry) {
			return cloneUser(u), nil
		}
	}
	return nil, ErrNotFound
}

// List returns all users in insertion order.
func (r *InMemoryRepository) List(ctx context.Context) ([]*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*User, 0, len(r.order))
	for _, id := range r.order {
		if u, ok := r.users[id]; ok {
			out = append(out, cloneUser(u))
		}
	}
	return out, nil
}
