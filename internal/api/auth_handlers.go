package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/diwan-systems/diwan/internal/auth"
	"github.com/diwan-systems/diwan/internal/middleware"
)

// refreshCookieName is the cookie carrying the refresh token.
const refreshCookieName = "jwt"

// AuthHandlers holds dependencies for the auth HTTP handlers.
type AuthHandlers struct {
	service    *auth.Service
	production bool
}

// NewAuthHandlers creates a new AuthHandlers instance. production
// controls the refresh cookie's Secure and SameSite attributes.
func NewAuthHandlers(service *auth.Service, production bool) *AuthHandlers {
	return &AuthHandlers{service: service, production: production}
}

// LoginRequest is the body for POST /auth.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// SessionResponse is the body for successful login and refresh.
type SessionResponse struct {
	AccessToken string `json:"accessToken"`
	User        any    `json:"user"`
}

// setRefreshCookie sets the refresh cookie. Cross-site frontends need
// SameSite=None, which browsers only accept together with Secure; local
// development over plain HTTP falls back to Lax.
func (h *AuthHandlers) setRefreshCookie(w http.ResponseWriter, token string) {
	cookie := &http.Cookie{
		Name:     refreshCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		MaxAge:   int(auth.RefreshTokenExpiry.Seconds()),
		SameSite: http.SameSiteLaxMode,
	}
	if h.production {
		cookie.Secure = true
		cookie.SameSite = http.SameSiteNoneMode
	}
	http.SetCookie(w, cookie)
}

func (h *AuthHandlers) clearRefreshCookie(w http.ResponseWriter) {
	cookie := &http.Cookie{
		Name:     refreshCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
		SameSite: http.SameSiteLaxMode,
	}
	if h.production {
		cookie.Secure = true
		cookie.SameSite = http.SameSiteNoneMode
	}
	http.SetCookie(w, cookie)
}

// Login handles POST /auth.
func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
		return
	}
	if strings.TrimSpace(req.Username) == "" || req.Password == "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "All fields are required")
		return
	}

	session, err := h.service.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeAuthFailed)
		WriteError(w, ctx, http.StatusUnauthorized, ErrCodeAuthFailed, "Unauthorized")
		return
	}

	h.setRefreshCookie(w, session.RefreshToken)
	WriteJSON(w, http.StatusOK, SessionResponse{
		AccessToken: session.AccessToken,
		User:        session.User,
	})
}

// Refresh handles GET /auth/refresh. It mints a new access token from
// the refresh cookie; the cookie itself is not rotated.
func (h *AuthHandlers) Refresh(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(refreshCookieName)
	if err != nil || cookie.Value == "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeAuthFailed)
		WriteError(w, ctx, http.StatusUnauthorized, ErrCodeAuthFailed, "Unauthorized")
		return
	}

	session, err := h.service.Refresh(r.Context(), cookie.Value)
	if err != nil {
		if errors.Is(err, auth.ErrForbidden) {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeForbidden)
			WriteError(w, ctx, http.StatusForbidden, ErrCodeForbidden, "Forbidden")
			return
		}
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeAuthFailed)
		WriteError(w, ctx, http.StatusUnauthorized, ErrCodeAuthFailed, "Unauthorized")
		return
	}

	WriteJSON(w, http.StatusOK, SessionResponse{
		AccessToken: session.AccessToken,
		User:        session.User,
	})
}

// Logout handles POST /auth/logout. Idempotent: without a cookie it
// responds 204.
func (h *AuthHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(refreshCookieName)
	if err != nil || cookie.Value == "" {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	h.service.Logout(cookie.Value)
	h.clearRefreshCookie(w)
	WriteMessage(w, http.StatusOK, "Cookie cleared")
}

// ForgotPasswordRequest is the body for POST /auth/forgot-password.
type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

// ForgotPassword handles POST /auth/forgot-password.
func (h *AuthHandlers) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req ForgotPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
		return
	}
	if strings.TrimSpace(req.Email) == "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "Email is required")
		return
	}

	err := h.service.ForgotPassword(r.Context(), req.Email)
	switch {
	case err == nil:
		WriteMessage(w, http.StatusOK, "Password reset email sent")
	case errors.Is(err, auth.ErrEmailNotFound):
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeNotFound)
		WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "Email not registered")
	default:
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Email could not be sent")
	}
}

// ResetPasswordRequest is the body for PUT /auth/reset-password/{token}.
type ResetPasswordRequest struct {
	Password string `json:"password"`
}

// ResetPassword handles PUT /auth/reset-password/{token}. Wrong and
// expired tokens get the same generic answer.
func (h *AuthHandlers) ResetPassword(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")
	if token == "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "Token is required")
		return
	}

	var req ResetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
		return
	}
	if req.Password == "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "Password is required")
		return
	}

	if err := h.service.ResetPassword(r.Context(), token, req.Password); err != nil {
		if errors.Is(err, auth.ErrInvalidResetToken) {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "Invalid or expired token")
			return
		}
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Something went wrong")
		return
	}

	WriteMessage(w, http.StatusOK, "Password reset successful")
}
