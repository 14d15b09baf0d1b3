// Package middleware provides HTTP middleware components for the API server.
package middleware

import (
	"context"
)

// Actor identifies the authenticated caller of a request.
type Actor struct {
	UserID   string
	Username string
	EnName   string
	ArName   string
	Roles    []string
}

// actorKey is the context key for the authenticated actor.
type actorKey struct{}

// errorCodeKey is the context key for error code.
type errorCodeKey struct{}

// SetActor stores the authenticated actor in the context.
// This should be called by the authentication middleware after validating the token.
func SetActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

// GetActor retrieves the actor from context. The second return value is
// false for unauthenticated requests.
func GetActor(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(actorKey{}).(Actor)
	return a, ok
}

// SetErrorCode stores an error code in the context.
// This should be called by handlers when returning error responses.
func SetErrorCode(ctx context.Context, code string) context.Context {
	return context.WithValue(ctx, errorCodeKey{}, code)
}

// GetErrorCode retrieves the error code from context. Returns empty string if not present.
func GetErrorCode(ctx context.Context) string {
	if code, ok := ctx.Value(errorCodeKey{}).(string); ok {
		return code
	}
	return ""
}
