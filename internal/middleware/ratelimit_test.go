package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRateLimitConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  RateLimitConfig
		wantErr bool
	}{
		{"valid", RateLimitConfig{RequestsPerWindow: 50, WindowDuration: time.Minute}, false},
		{"zero requests", RateLimitConfig{RequestsPerWindow: 0, WindowDuration: time.Minute}, true},
		{"zero window", RateLimitConfig{RequestsPerWindow: 50, WindowDuration: 0}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.config.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestInMemoryStoreFixedWindow(t *testing.T) {
	store := NewInMemoryRateLimitStore()
	config := RateLimitConfig{RequestsPerWindow: 3, WindowDuration: time.Minute}
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if allowed, _ := store.Allow(ctx, "1.2.3.4", config); !allowed {
			t.Fatalf("request %d blocked", i)
		}
	}
	allowed, retryAfter := store.Allow(ctx, "1.2.3.4", config)
	if allowed {
		t.Error("fourth request allowed")
	}
	if retryAfter <= 0 {
		t.Errorf("retryAfter %d", retryAfter)
	}

	// Other keys are unaffected.
	if allowed, _ := store.Allow(ctx, "5.6.7.8", config); !allowed {
		t.Error("other key blocked")
	}
}

func TestInMemoryStoreCleanup(t *testing.T) {
	store := NewInMemoryRateLimitStore()
	config := RateLimitConfig{RequestsPerWindow: 1, WindowDuration: time.Minute}

	now := time.Now()
	store.now = func() time.Time { return now }
	store.Allow(context.Background(), "1.2.3.4", config)

	// Advance past the window end; Cleanup should drop it.
	store.now = func() time.Time { return now.Add(2 * time.Minute) }
	store.Cleanup()

	store.mu.RLock()
	defer store.mu.RUnlock()
	if len(store.windows) != 0 {
		t.Errorf("%d windows survived cleanup", len(store.windows))
	}
}

func TestIPKeyFunc(t *testing.T) {
	keyFunc := IPKeyFunc()

	tests := []struct {
		name   string
		setup  func(*http.Request)
		want   string
	}{
		{"x-forwarded-for single", func(r *http.Request) {
			r.Header.Set("X-Forwarded-For", "10.0.0.1")
		}, "10.0.0.1"},
		{"x-forwarded-for chain", func(r *http.Request) {
			r.Header.Set("X-Forwarded-For", "10.0.0.1, 10.0.0.2")
		}, "10.0.0.1"},
		{"x-real-ip", func(r *http.Request) {
			r.Header.Set("X-Real-IP", "10.0.0.3")
		}, "10.0.0.3"},
		{"remote addr", func(r *http.Request) {}, "192.0.2.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/auth", nil)
			tt.setup(r)
			if got := keyFunc(r); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRateLimiterBlocksWith429(t *testing.T) {
	store := NewInMemoryRateLimitStore()
	config := RateLimitConfig{RequestsPerWindow: 1, WindowDuration: time.Minute}
	handler := RateLimiter(store, config, IPKeyFunc())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, httptest.NewRequest(http.MethodPost, "/auth", nil))
	if first.Code != http.StatusOK {
		t.Fatalf("first request: %d", first.Code)
	}

	second := httptest.NewRecorder()
	handler.ServeHTTP(second, httptest.NewRequest(http.MethodPost, "/auth", nil))
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("second request: %d", second.Code)
	}
	if second.Header().Get("Retry-After") == "" {
		t.Error("no Retry-After header")
	}
	if second.Header().Get("X-RateLimit-Reset") == "" {
		t.Error("no X-RateLimit-Reset header")
	}
}
