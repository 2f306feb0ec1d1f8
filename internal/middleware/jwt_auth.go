package middleware

import (
	"context"
	"log"
	"net/http"
	"strings"

	"github.com/alertops/alertd/internal/api"
	"github.com/alertops/alertd/internal/auth"
)

// ContextKey is a type for context keys
type ContextKey string

const (
	// UserIDContextKey is the context key for the authenticated user's id
	UserIDContextKey ContextKey = "user_id"
	// RoleContextKey is the context key for the authenticated user's role
	RoleContextKey ContextKey = "role"
)

// JWTAuth guards endpoints with bearer access tokens
type JWTAuth struct {
	tokens *auth.TokenManager
}

// NewJWTAuth creates the authentication middleware
func NewJWTAuth(tokens *auth.TokenManager) *JWTAuth {
	return &JWTAuth{tokens: tokens}
}

// Require wraps a handler so it only runs with a valid access token,
// placing the user id and role on the request context.
func (m *JWTAuth) Require(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tokenString := extractBearer(r)
		if tokenString == "" {
			m.unauthorized(w, "Missing authentication token")
			return
		}

		claims, err := m.tokens.VerifyAccess(tokenString)
		if err != nil {
			log.Printf("JWTAuth: invalid token from %s: %v", r.RemoteAddr, err)
			m.unauthorized(w, "Invalid or expired token")
			return
		}

		ctx := context.WithValue(r.Context(), UserIDContextKey, claims.UserID)
		ctx = context.WithValue(ctx, RoleContextKey, claims.Role)
		next(w, r.WithContext(ctx))
	}
}

func (m *JWTAuth) unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="API"`)
	api.RespondError(w, http.StatusUnauthorized, message)
}

func extractBearer(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	return ""
}

// GetUserIDFromContext returns the authenticated user id, or 0
func GetUserIDFromContext(ctx context.Context) uint {
	if id, ok := ctx.Value(UserIDContextKey).(uint); ok {
		return id
	}
	return 0
}
