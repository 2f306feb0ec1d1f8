package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/alertops/alertd/internal/api"
	"github.com/alertops/alertd/internal/auth"
	"github.com/alertops/alertd/internal/middleware"
)

const refreshCookieName = "refresh_token"

// AuthHandler handles account and session endpoints
type AuthHandler struct {
	auth        *auth.Service
	rateLimiter *middleware.LoginRateLimiter
	refreshTTL  time.Duration
}

// NewAuthHandler creates a new authentication handler
func NewAuthHandler(authService *auth.Service, rateLimiter *middleware.LoginRateLimiter, refreshTTL time.Duration) *AuthHandler {
	return &AuthHandler{
		auth:        authService,
		rateLimiter: rateLimiter,
		refreshTTL:  refreshTTL,
	}
}

// SetupRoutes sets up authentication routes
func (h *AuthHandler) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/auth/register", h.handleRegister)
	mux.HandleFunc("/api/auth/login", h.rateLimiter.Wrap(h.handleLogin))
	mux.HandleFunc("/api/auth/refresh", h.handleRefresh)
	mux.HandleFunc("/api/auth/logout", h.handleLogout)
}

// RegisterRequest is the body of a registration call
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name,omitempty"`
}

// LoginRequest is the body of a login call
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RefreshRequest carries a refresh token when the cookie is not used
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token,omitempty"`
}

func (h *AuthHandler) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		api.RespondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req RegisterRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Email == "" || len(req.Password) < 8 {
		api.RespondError(w, http.StatusBadRequest, "email and a password of at least 8 characters are required")
		return
	}

	user, err := h.auth.Register(req.Email, req.Password, req.Name)
	if err != nil {
		if errors.Is(err, auth.ErrEmailTaken) {
			api.RespondError(w, http.StatusConflict, "Email already in use")
			return
		}
		api.RespondInternalError(w, "AuthHandler", err)
		return
	}
	api.RespondJSON(w, http.StatusCreated, user)
}

func (h *AuthHandler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		api.RespondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req LoginRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Email == "" || req.Password == "" {
		api.RespondError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	user, pair, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			api.RespondError(w, http.StatusUnauthorized, "Invalid email or password")
			return
		}
		api.RespondInternalError(w, "AuthHandler", err)
		return
	}

	h.setRefreshCookie(w, pair.RefreshToken)
	api.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"access_token": pair.AccessToken,
		"user":         user,
	})
}

func (h *AuthHandler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		api.RespondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	token := h.refreshTokenFrom(r)
	if token == "" {
		api.RespondError(w, http.StatusBadRequest, "missing refresh token")
		return
	}

	pair, err := h.auth.Refresh(r.Context(), token)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidRefresh) {
			api.RespondError(w, http.StatusUnauthorized, "Invalid refresh token")
			return
		}
		api.RespondInternalError(w, "AuthHandler", err)
		return
	}

	h.setRefreshCookie(w, pair.RefreshToken)
	api.RespondJSON(w, http.StatusOK, map[string]string{"access_token": pair.AccessToken})
}

func (h *AuthHandler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		api.RespondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	if token := h.refreshTokenFrom(r); token != "" {
		h.auth.Logout(r.Context(), token)
	}
	h.clearRefreshCookie(w)
	api.RespondNoContent(w)
}

// refreshTokenFrom reads the refresh token from the cookie, falling back to
// the request body.
func (h *AuthHandler) refreshTokenFrom(r *http.Request) string {
	if c, err := r.Cookie(refreshCookieName); err == nil && c.Value != "" {
		return c.Value
	}
	var req RefreshRequest
	if r.ContentLength > 0 {
		if err := api.DecodeJSON(r, &req); err == nil {
			return req.RefreshToken
		}
	}
	return ""
}

func (h *AuthHandler) setRefreshCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    token,
		Path:     "/api/auth",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(h.refreshTTL.Seconds()),
	})
}

func (h *AuthHandler) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    "",
		Path:     "/api/auth",
		HttpOnly: true,
		MaxAge:   -1,
	})
}
