package api

import (
	"net/http"

	"github.com/diwan-systems/diwan/internal/audit"
	"github.com/diwan-systems/diwan/internal/middleware"
)

// LogHandlers serves the audit trail.
type LogHandlers struct {
	repo audit.Repository
}

// NewLogHandlers creates a new LogHandlers instance.
func NewLogHandlers(repo audit.Repository) *LogHandlers {
	return &LogHandlers{repo: repo}
}

// List handles GET /logs, newest first.
func (h *LogHandlers) List(w http.ResponseWriter, r *http.Request) {
	entries, err := h.repo.List(r.Context())
	if err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Something went wrong")
		return
	}
	if entries == nil {
		entries = []*audit.Entry{}
	}
	WriteJSON(w, http.StatusOK, entries)
}
