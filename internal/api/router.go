package api

import (
	"net/http"

	"github.com/diwan-systems/diwan/internal/audit"
	"github.com/diwan-systems/diwan/internal/auth"
	"github.com/diwan-systems/diwan/internal/middleware"
)

// RouterConfig bundles the handler set and the cross-cutting pieces the
// router wires around it.
type RouterConfig struct {
	Auth    *AuthHandlers
	Users   *UserHandlers
	Records *RecordHandlers
	Logs    *LogHandlers
	Health  *HealthHandlers

	Tokens   *auth.TokenService
	Recorder *audit.Recorder

	// LoginLimitStore backs the login rate limiter.
	LoginLimitStore middleware.RateLimitStore
}

// NewRouter assembles the route table. Auth routes are public and rate
// limited on login; every other route requires a bearer access token.
// The audit recorder wraps all routes, so even login attempts leave a
// trail (attributed to Guest, since authentication happens further in).
func NewRouter(cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()

	recorded := func(h http.HandlerFunc) http.Handler {
		return cfg.Recorder.Middleware(h)
	}

	authn := middleware.Authenticate(cfg.Tokens)
	protected := func(h http.HandlerFunc) http.Handler {
		return authn(cfg.Recorder.Middleware(h))
	}

	limiter := middleware.RateLimiter(cfg.LoginLimitStore, middleware.DefaultLoginLimit(), middleware.IPKeyFunc())

	// Auth.
	mux.Handle("POST /auth", limiter(recorded(cfg.Auth.Login)))
	mux.Handle("GET /auth/refresh", recorded(cfg.Auth.Refresh))
	mux.Handle("POST /auth/logout", recorded(cfg.Auth.Logout))
	mux.Handle("POST /auth/forgot-password", recorded(cfg.Auth.ForgotPassword))
	mux.Handle("PUT /auth/reset-password/{token}", recorded(cfg.Auth.ResetPassword))

	// Users. Update and delete take the target id in the body.
	mux.Handle("GET /users", protected(cfg.Users.List))
	mux.Handle("POST /users", protected(cfg.Users.Create))
	mux.Handle("PATCH /users", protected(cfg.Users.Update))
	mux.Handle("DELETE /users", protected(cfg.Users.Delete))
	mux.Handle("GET /users/{id}", protected(cfg.Users.Get))

	// Audit trail.
	mux.Handle("GET /logs", protected(cfg.Logs.List))

	// Health.
	mux.HandleFunc("GET /health", cfg.Health.Health)

	// Tracked resources share one generic handler set; the wildcard
	// resolves against the type registry and unknown segments 404. The
	// literal routes above take precedence over these patterns.
	mux.Handle("GET /{resource}", protected(cfg.Records.List))
	mux.Handle("POST /{resource}", protected(cfg.Records.Create))
	mux.Handle("GET /{resource}/{id}", protected(cfg.Records.Get))
	mux.Handle("PATCH /{resource}/{id}", protected(cfg.Records.Update))
	mux.Handle("DELETE /{resource}", protected(cfg.Records.Delete))

	return mux
}
