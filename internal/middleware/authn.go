package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/diwan-systems/diwan/internal/auth"
)

// Authenticate verifies the bearer access token and stores the actor
// identity in the request context. Requests without a valid token get a
// generic 401; expired tokens get 403 so clients know to refresh.
func Authenticate(tokens *auth.TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				writeAuthnError(w, r, http.StatusUnauthorized, "missing_token")
				return
			}

			claims, err := tokens.ValidateAccessToken(strings.TrimPrefix(header, "Bearer "))
			if err != nil {
				status := http.StatusUnauthorized
				code := "invalid_token"
				if errors.Is(err, auth.ErrExpiredToken) {
					status = http.StatusForbidden
					code = "token_expired"
				}
				writeAuthnError(w, r, status, code)
				return
			}

			ctx := SetActor(r.Context(), Actor{
				UserID:   claims.UserID,
				Username: claims.Username,
				EnName:   claims.EnName,
				ArName:   claims.ArName,
				Roles:    claims.Roles,
			})
			UpdateResponseContext(w, ctx)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeAuthnError(w http.ResponseWriter, r *http.Request, status int, code string) {
	ctx := SetErrorCode(r.Context(), code)
	UpdateResponseContext(w, ctx)
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if status == http.StatusForbidden {
		_, _ = w.Write([]byte(`{"message":"Forbidden"}`))
		return
	}
	_, _ = w.Write([]byte(`{"message":"Unauthorized"}`))
}
