package api

import (
	"context"
	"net/http"
	"time"

	"github.com/diwan-systems/diwan/internal/health"
)

// healthCheckTimeout bounds each dependency probe.
const healthCheckTimeout = 2 * time.Second

// HealthHandlers provides the liveness endpoint with optional
// dependency checks.
type HealthHandlers struct {
	checkers map[string]health.Checker
}

// NewHealthHandlers creates a health handler. checkers maps a dependency
// name (e.g. "database", "redis") to its checker; nil entries are
// skipped.
func NewHealthHandlers(checkers map[string]health.Checker) *HealthHandlers {
	return &HealthHandlers{checkers: checkers}
}

// HealthResponse is the body for GET /health.
type HealthResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks"`
	Timestamp string            `json:"timestamp"`
}

// Health handles GET /health. Returns 503 when any dependency check
// fails; the process itself being able to respond is the liveness part.
func (h *HealthHandlers) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:    "healthy",
		Checks:    map[string]string{"runtime": "ok"},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	status := http.StatusOK
	for name, checker := range h.checkers {
		if checker == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		err := checker.HealthCheck(ctx)
		cancel()
		if err != nil {
			resp.Checks[name] = "unreachable"
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "ok"
	}

	WriteJSON(w, status, resp)
}
