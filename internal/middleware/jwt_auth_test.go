package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alertops/alertd/internal/auth"
)

func TestJWTAuthRequire(t *testing.T) {
	tokens := auth.NewTokenManager("access-secret", "refresh-secret", 15*time.Minute, 24*time.Hour)
	jwtAuth := NewJWTAuth(tokens)

	var gotUserID uint
	handler := jwtAuth.Require(func(w http.ResponseWriter, r *http.Request) {
		gotUserID = GetUserIDFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})

	// No token.
	req := httptest.NewRequest("POST", "/api/alerts/1/resolve", nil)
	rec := httptest.NewRecorder()
	handler(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("missing token status = %d, want 401", rec.Code)
	}

	// Garbage token.
	req = httptest.NewRequest("POST", "/api/alerts/1/resolve", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	rec = httptest.NewRecorder()
	handler(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("invalid token status = %d, want 401", rec.Code)
	}

	// Valid token.
	token, err := tokens.SignAccess(7, "user")
	if err != nil {
		t.Fatalf("SignAccess failed: %v", err)
	}
	req = httptest.NewRequest("POST", "/api/alerts/1/resolve", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	handler(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Errorf("valid token status = %d, want 204", rec.Code)
	}
	if gotUserID != 7 {
		t.Errorf("context user id = %d, want 7", gotUserID)
	}
}
