package user

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newUser(username, email string) *User {
	return &User{
		EnName:       "Sara",
		ArName:       "سارة",
		Username:     username,
		Email:        email,
		PasswordHash: "hash",
		Roles:        []string{DefaultRole},
		IsActive:     true,
	}
}

func TestInsertAssignsID(t *testing.T) {
	repo := NewInMemoryRepository()
	u := newUser("sara", "sara@example.com")

	if err := repo.Insert(context.Background(), u); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if u.ID == "" {
		t.Error("no ID assigned")
	}
}

func TestInsertDuplicateUsernameCaseInsensitive(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()

	if err := repo.Insert(ctx, newUser("Sara", "sara@example.com")); err != nil {
		t.Fatalf("insert: %v", err)
	}
	err := repo.Insert(ctx, newUser("SARA", "other@example.com"))
	if !errors.Is(err, ErrDuplicate) {
		t.Errorf("got %v, want ErrDuplicate", err)
	}
}

func TestInsertDuplicateEmail(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()

	if err := repo.Insert(ctx, newUser("sara", "sara@example.com")); err != nil {
		t.Fatalf("insert: %v", err)
	}
	err := repo.Insert(ctx, newUser("omar", "sara@example.com"))
	if !errors.Is(err, ErrDuplicate) {
		t.Errorf("got %v, want ErrDuplicate", err)
	}
}

func TestGetByUsernameCaseInsensitive(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()
	if err := repo.Insert(ctx, newUser("Sara", "sara@example.com")); err != nil {
		t.Fatalf("insert: %v", err)
	}

	for _, name := range []string{"Sara", "sara", "SARA"} {
		if _, err := repo.GetByUsername(ctx, name); err != nil {
			t.Errorf("GetByUsername(%q): %v", name, err)
		}
	}
}

func TestGetByEmailExactMatch(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()
	if err := repo.Insert(ctx, newUser("sara", "sara@example.com")); err != nil {
		t.Fatalf("insert: %v", err)
	}

	if _, err := repo.GetByEmail(ctx, "Sara@Example.com"); !errors.Is(err, ErrNotFound) {
		t.Errorf("email matched case-insensitively: %v", err)
	}
}

func TestUpdateCollision(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()

	if err := repo.Insert(ctx, newUser("sara", "sara@example.com")); err != nil {
		t.Fatalf("insert: %v", err)
	}
	omar := newUser("omar", "omar@example.com")
	if err := repo.Insert(ctx, omar); err != nil {
		t.Fatalf("insert: %v", err)
	}

	omar.Username = "Sara"
	if err := repo.Update(ctx, omar); !errors.Is(err, ErrDuplicate) {
		t.Errorf("got %v, want ErrDuplicate", err)
	}
}

func TestGetByResetTokenHashHonorsExpiry(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()

	u := newUser("sara", "sara@example.com")
	u.ResetTokenHash = "hash123"
	u.ResetTokenExpiry = time.Now().Add(10 * time.Minute)
	if err := repo.Insert(ctx, u); err != nil {
		t.Fatalf("insert: %v", err)
	}

	if _, err := repo.GetByResetTokenHash(ctx, "hash123", time.Now()); err != nil {
		t.Errorf("valid token not found: %v", err)
	}
	if _, err := repo.GetByResetTokenHash(ctx, "hash123", time.Now().Add(11*time.Minute)); !errors.Is(err, ErrNotFound) {
		t.Errorf("expired token found: %v", err)
	}
	if _, err := repo.GetByResetTokenHash(ctx, "other", time.Now()); !errors.Is(err, ErrNotFound) {
		t.Errorf("wrong hash found: %v", err)
	}
}

func TestPublicOmitsCredentials(t *testing.T) {
	u := newUser("sara", "sara@example.com")
	u.ResetTokenHash = "hash123"

	p := u.Public()
	if p.Username != "sara" || p.Email != "sara@example.com" {
		t.Errorf("public view wrong: %+v", p)
	}
	// The projection has no credential fields at all; mutating its roles
	// must not leak back either.
	p.Roles[0] = "tampered"
	if u.Roles[0] != DefaultRole {
		t.Error("public roles share backing array with the user")
	}
}

func TestListInsertionOrder(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()
	for _, name := range []string{"a", "b", "c"} {
		if err := repo.Insert(ctx, newUser(name, name+"@example.com")); err != nil {
			t.Fatalf("insert %s: %v", name, err)
		}
	}

	users, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(users) != 3 || users[0].Username != "a" || users[2].Username != "c" {
		t.Errorf("order wrong: %v", users)
	}
}
