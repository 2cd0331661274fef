package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dokusho-app/dokusho-api/internal/api/shared"
	"github.com/dokusho-app/dokusho-api/internal/redact"
	"github.com/dokusho-app/dokusho-api/internal/service/auth"
)

// AuthMiddleware provides JWT authentication for admin routes.
type AuthMiddleware struct {
	jwtService auth.JWTService
}

// NewAuthMiddleware creates a new AuthMiddleware with the given dependencies.
func NewAuthMiddleware(jwtService auth.JWTService) *AuthMiddleware {
	return &AuthMiddleware{
		jwtService: jwtService,
	}
}

// Authenticate validates the bearer token from the Authorization header and
// marks the request context as admin-authenticated.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			shared.RespondWithError(w, r, http.StatusUnauthorized, "Authorization header required")
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			shared.RespondWithError(w, r, http.StatusUnauthorized, "Invalid authorization format")
			return
		}

		claims, err := m.jwtService.ValidateToken(r.Context(), parts[1])
		if err != nil {
			switch err {
			case auth.ErrExpiredToken:
				shared.RespondWithError(w, r, http.StatusUnauthorized, "Token expired")
			case auth.ErrInvalidToken, auth.ErrTokenNotYetValid:
				shared.RespondWithError(w, r, http.StatusUnauthorized, "Invalid token")
			default:
				slog.Error("failed to validate token", "error", redact.Error(err))
				shared.RespondWithError(w, r, http.StatusInternalServerError, "Authentication error")
			}
			return
		}

		ctx := context.WithValue(r.Context(), shared.AdminContextKey, claims.Subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// IsAdmin reports whether the request passed admin authentication.
func IsAdmin(r *http.Request) bool {
	subject, ok := r.Context().Value(shared.AdminContextKey).(string)
	return ok && subject != ""
}
