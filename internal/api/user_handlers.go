package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/diwan-systems/diwan/internal/auth"
	"github.com/diwan-systems/diwan/internal/middleware"
	"github.com/diwan-systems/diwan/internal/user"
)

// UserHandlers holds dependencies for the user management handlers.
type UserHandlers struct {
	repo user.Repository
}

// NewUserHandlers creates a new UserHandlers instance.
func NewUserHandlers(repo user.Repository) *UserHandlers {
	return &UserHandlers{repo: repo}
}

// CreateUserRequest is the body for POST /users. Roles may be omitted;
// new users then start as Spectator.
type CreateUserRequest struct {
	EnName   string   `json:"en_name"`
	ArName   string   `json:"ar_name"`
	Username string   `json:"username"`
	Email    string   `json:"email"`
	Password string   `json:"password"`
	Roles    []string `json:"roles"`
}

// UpdateUserRequest is the body for PATCH /users. The target id travels
// in the body, not the path. Password is optional; empty keeps the
// current one.
type UpdateUserRequest struct {
	ID       string   `json:"id"`
	EnName   string   `json:"en_name"`
	ArName   string   `json:"ar_name"`
	Username string   `json:"username"`
	Email    string   `json:"email"`
	Password string   `json:"password"`
	Roles    []string `json:"roles"`
}

// DeleteUserRequest is the body for DELETE /users.
type DeleteUserRequest struct {
	ID string `json:"id"`
}

// List handles GET /users. Password hashes and reset fields never leave
// the repository layer.
func (h *UserHandlers) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.repo.List(r.Context())
	if err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Something went wrong")
		return
	}

	out := make([]user.Public, 0, len(users))
	for _, u := range users {
		out = append(out, u.Public())
	}
	WriteJSON(w, http.StatusOK, out)
}

// Get handles GET /users/{id}.
func (h *UserHandlers) Get(w http.ResponseWriter, r *http.Request) {
	u, err := h.repo.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeNotFound)
			WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "User not found")
			return
		}
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Something went wrong")
		return
	}
	WriteJSON(w, http.StatusOK, u.Public())
}

// Create handles POST /users.
func (h *UserHandlers) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
		return
	}
	if strings.TrimSpace(req.Username) == "" || req.Password == "" ||
		strings.TrimSpace(req.Email) == "" || strings.TrimSpace(req.EnName) == "" ||
		strings.TrimSpace(req.ArName) == "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "All fields are required")
		return
	}
	if len(req.Roles) == 0 {
		req.Roles = []string{user.DefaultRole}
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Something went wrong")
		return
	}

	u := &user.User{
		EnName:       req.EnName,
		ArName:       req.ArName,
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hash,
		Roles:        req.Roles,
		IsActive:     true,
	}
	if err := h.repo.Insert(r.Context(), u); err != nil {
		if errors.Is(err, user.ErrDuplicate) {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeConflict)
			WriteError(w, ctx, http.StatusConflict, ErrCodeConflict, "Duplicate user! Please check")
			return
		}
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Something went wrong")
		return
	}

	WriteMessage(w, http.StatusCreated, fmt.Sprintf("New user %s created", u.Username))
}

// Update handles PATCH /users.
func (h *UserHandlers) Update(w http.ResponseWriter, r *http.Request) {
	var req UpdateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
		return
	}
	if req.ID == "" || strings.TrimSpace(req.Username) == "" ||
		strings.TrimSpace(req.Email) == "" || strings.TrimSpace(req.EnName) == "" ||
		strings.TrimSpace(req.ArName) == "" || len(req.Roles) == 0 {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "All fields except password are required")
		return
	}

	u, err := h.repo.GetByID(r.Context(), req.ID)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeNotFound)
			WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "User not found")
			return
		}
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Something went wrong")
		return
	}

	u.EnName = req.EnName
	u.ArName = req.ArName
	u.Username = req.Username
	u.Email = req.Email
	u.Roles = req.Roles
	if req.Password != "" {
		hash, err := auth.HashPassword(req.Password)
		if err != nil {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
			WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Something went wrong")
			return
		}
		u.PasswordHash = hash
	}

	if err := h.repo.Update(r.Context(), u); err != nil {
		if errors.Is(err, user.ErrDuplicate) {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeConflict)
			WriteError(w, ctx, http.StatusConflict, ErrCodeConflict, "Duplicate user! Please check")
			return
		}
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Something went wrong")
		return
	}

	WriteMessage(w, http.StatusOK, fmt.Sprintf("%s updated", u.Username))
}

// Delete handles DELETE /users.
func (h *UserHandlers) Delete(w http.ResponseWriter, r *http.Request) {
	var req DeleteUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
		return
	}
	if req.ID == "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "User ID required")
		return
	}

	u, err := h.repo.GetByID(r.Context(), req.ID)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeNotFound)
			WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "User not found")
			return
		}
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Something went wrong")
		return
	}

	if err := h.repo.Delete(r.Context(), u.ID); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Something went wrong")
		return
	}

	WriteMessage(w, http.StatusOK, fmt.Sprintf("Username %s with ID %s deleted", u.Username, u.ID))
}
