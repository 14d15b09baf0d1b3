package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/diwan-systems/diwan/internal/health"
)

type checkerFunc func(ctx context.Context) error

func (f checkerFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

func TestHealthNoCheckers(t *testing.T) {
	h := NewHealthHandlers(nil)

	w := httptest.NewRecorder()
	h.Health(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	body := decodeBody(t, w)
	if body["status"] != "healthy" {
		t.Errorf("status %v", body["status"])
	}
}

func TestHealthAllChecksPass(t *testing.T) {
	h := NewHealthHandlers(map[string]health.Checker{
		"database": checkerFunc(func(ctx context.Context) error { return nil }),
		"redis":    nil, // unconfigured dependency is skipped
	})

	w := httptest.NewRecorder()
	h.Health(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	checks := body["checks"].(map[string]any)
	if checks["database"] != "ok" {
		t.Errorf("checks %v", checks)
	}
	if _, ok := checks["redis"]; ok {
		t.Error("nil checker reported")
	}
}

func TestHealthDegraded(t *testing.T) {
	h := NewHealthHandlers(map[string]health.Checker{
		"database": checkerFunc(func(ctx context.Context) error { return errors.New("connection refused") }),
	})

	w := httptest.NewRecorder()
	h.Health(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status %d", w.Code)
	}
	body := decodeBody(t, w)
	if body["status"] != "degraded" {
		t.Errorf("status %v", body["status"])
	}
	if checks := body["checks"].(map[string]any); checks["database"] != "unreachable" {
		t.Errorf("checks %v", checks)
	}
}
