// Package user provides the user model and repositories for account storage.
package user

import (
	"time"
)

// DefaultRole is assigned when a user is created without explicit roles.
const DefaultRole = "Spectator"

// User represents an account in the system. PasswordHash and the reset
// fields never leave the package through Public().
type User struct {
	ID       string
	EnName   string
	ArName   string
	Username string
	Email    string

	// PasswordHash is a bcrypt hash, never a plaintext password.
	PasswordHash string

	Roles    []string
	IsActive bool

	// ResetTokenHash holds the SHA-256 hex digest of an outstanding
	// password-reset token; empty when no reset is pending.
	ResetTokenHash   string
	ResetTokenExpiry time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Public is the externally visible projection of a user.
type Public struct {
	ID       string   `json:"id"`
	Username string   `json:"username"`
	EnName   string   `json:"en_name"`
	ArName   string   `json:"ar_name"`
	Email    string   `json:"email"`
	Roles    []string `json:"roles"`
	IsActive bool     `json:"isActive"`
}

// Public returns the user without credential material.
func (u *User) Public() Public {
	roles := make([]string, len(u.Roles))
	copy(roles, u.Roles)
	return Public{
		ID:       u.ID,
		Username: u.Username,
		EnName:   u.EnName,
		ArName:   u.ArName,
		Email:    u.Email,
		Roles:    roles,
		IsActive: u.IsActive,
	}
}

// HasPendingReset reports whether a reset token is stored and unexpired at t.
func (u *User) HasPendingReset(t time.Time) bool {
	return u.ResetTokenHash != "" && t.Before(u.ResetTokenExpiry)
}

// ClearReset removes any stored reset token state.
func (u *User) ClearReset() {
	u.ResetTokenHash = ""
	u.ResetTokenExpiry = time.Time{}
}
