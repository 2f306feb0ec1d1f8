package middleware

import (
	"log"
	"net"
	"net/http"
	"time"

	"github.com/alertops/alertd/internal/api"
	"github.com/alertops/alertd/internal/cache"
)

// LoginRateLimiter throttles login attempts per client IP using a counter in
// the cache. A cache failure fails open: throttling is protection, not a
// correctness requirement.
type LoginRateLimiter struct {
	cache       cache.Cache
	window      time.Duration
	maxAttempts int64
}

// NewLoginRateLimiter creates a rate limiter allowing maxAttempts per window
func NewLoginRateLimiter(c cache.Cache, window time.Duration, maxAttempts int) *LoginRateLimiter {
	return &LoginRateLimiter{
		cache:       c,
		window:      window,
		maxAttempts: int64(maxAttempts),
	}
}

// Wrap wraps a handler with the per-IP attempt counter
func (l *LoginRateLimiter) Wrap(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := "login_attempts:" + clientIP(r)

		attempts, err := l.cache.Incr(r.Context(), key)
		if err != nil {
			log.Printf("LoginRateLimiter: cache error, failing open: %v", err)
			next(w, r)
			return
		}
		if attempts == 1 {
			if err := l.cache.Expire(r.Context(), key, l.window); err != nil {
				log.Printf("LoginRateLimiter: failed to set window on %s: %v", key, err)
			}
		}
		if attempts > l.maxAttempts {
			api.RespondError(w, http.StatusTooManyRequests, "Too many login attempts. Try later.")
			return
		}

		next(w, r)
	}
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return "unknown"
	}
	return host
}
