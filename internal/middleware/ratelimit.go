package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimitConfig is a fixed-window limit: at most RequestsPerWindow
// requests per key per WindowDuration.
type RateLimitConfig struct {
	RequestsPerWindow int
	WindowDuration    time.Duration
}

// Validate rejects non-positive limits and windows.
func (c RateLimitConfig) Validate() error {
	if c.RequestsPerWindow <= 0 {
		return fmt.Errorf("RequestsPerWindow must be > 0 (got %d)", c.RequestsPerWindow)
	}
	if c.WindowDuration <= 0 {
		return fmt.Errorf("WindowDuration must be > 0 (got %s)", c.WindowDuration)
	}
	return nil
}

// DefaultLoginLimit is the limit applied to the login route: 50 attempts
// per minute per client IP.
func DefaultLoginLimit() RateLimitConfig {
	return RateLimitConfig{RequestsPerWindow: 50, WindowDuration: time.Minute}
}

// RateLimitStore tracks request counts per key. Implementations exist
// in-memory (single instance) and on Redis (shared across instances).
type RateLimitStore interface {
	// Allow reports whether one more request under key fits the limit.
	// When it does not, retryAfter is the whole seconds until the
	// window resets.
	Allow(ctx context.Context, key string, config RateLimitConfig) (allowed bool, retryAfter int)
}

type window struct {
	count    int
	resetsAt time.Time
}

// InMemoryRateLimitStore is a fixed-window counter over a plain map.
// State is per process; deployments with multiple instances should use
// the Redis store instead.
type InMemoryRateLimitStore struct {
	mu      sync.RWMutex
	windows map[string]*window
	now     func() time.Time
}

// NewInMemoryRateLimitStore creates an empty in-memory store.
func NewInMemoryRateLimitStore() *InMemoryRateLimitStore {
	return &InMemoryRateLimitStore{
		windows: make(map[string]*window),
		now:     time.Now,
	}
}

// Allow implements RateLimitStore.
func (s *InMemoryRateLimitStore) Allow(ctx context.Context, key string, config RateLimitConfig) (bool, int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()

	w, ok := s.windows[key]
	if !ok || now.After(w.resetsAt) {
		s.windows[key] = &window{count: 1, resetsAt: now.Add(config.WindowDuration)}
		return true, 0
	}

	if w.count < config.RequestsPerWindow {
		w.count++
		return true, 0
	}

	retryAfter := int(w.resetsAt.Sub(now).Seconds())
	if retryAfter <= 0 {
		retryAfter = 1
	}
	return false, retryAfter
}

// Cleanup drops expired windows. Call it periodically; the store never
// removes entries on its own.
func (s *InMemoryRateLimitStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for key, w := range s.windows {
		if now.After(w.resetsAt) {
			delete(s.windows, key)
		}
	}
}

// KeyFunc derives the rate-limit key from a request.
type KeyFunc func(r *http.Request) string

// IPKeyFunc keys on the client IP: the first X-Forwarded-For hop when a
// proxy set one, then X-Real-IP, then the connection's remote address.
func IPKeyFunc() KeyFunc {
	return func(r *http.Request) string {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			return strings.TrimSpace(first)
		}
		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			return strings.TrimSpace(xri)
		}
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			return r.RemoteAddr
		}
		return host
	}
}

// RateLimiter answers 429 with Retry-After once a key exhausts its
// window. The body message matches what existing frontends display
// verbatim on the login form.
func RateLimiter(store RateLimitStore, config RateLimitConfig, keyFunc KeyFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			allowed, retryAfter := store.Allow(r.Context(), keyFunc(r), config)
			if !allowed {
				ctx := SetErrorCode(r.Context(), "rate_limit_exceeded")
				UpdateResponseContext(w, ctx)

				reset := time.Now().Add(time.Duration(retryAfter) * time.Second).Unix()
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(reset, 10))
				w.Header().Set("Content-Type", "application/json; charset=utf-8")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"message":"Too many login attempts from this IP, please try again after 60 seconds"}`))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
