package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/de3sec/pagesight/pkg/tokens"
)

const UserIDKey = contextKey("user-id")

// AuthMiddleware validates bearer tokens on the dashboard-facing endpoints.
// The collect endpoint stays public; tenants are identified there by
// tracking ID instead.
type AuthMiddleware struct {
	tokens *tokens.TokenGenerator
}

func NewAuthMiddleware(tg *tokens.TokenGenerator) *AuthMiddleware {
	return &AuthMiddleware{tokens: tg}
}

func (m *AuthMiddleware) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Missing authorization header", http.StatusUnauthorized)
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			http.Error(w, "Invalid authorization header", http.StatusUnauthorized)
			return
		}

		claims, err := m.tokens.ValidateAccessToken(parts[1])
		if err != nil {
			http.Error(w, "Invalid or expired token", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), UserIDKey, claims.UserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	}
}

// GetUserID extracts the authenticated user ID from the context.
func GetUserID(ctx context.Context) string {
	if id, ok := ctx.Value(UserIDKey).(string); ok {
		return id
	}
	return ""
}
