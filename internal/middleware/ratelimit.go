// Package middleware holds the HTTP middleware chain wrapped around every route.
package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"settld/pkg/logger"
)

// Counter is a shared fixed-window counter store, such as cache.RedisCache.
// IncrementWindow must set the expiry in the same step as the increment.
type Counter interface {
	IncrementWindow(ctx context.Context, key string, window time.Duration) (int64, error)
}

// RateLimiter applies a fixed-window rate limit per client IP.
type RateLimiter struct {
	counter Counter
	limit   int
	window  time.Duration
	logger  logger.Logger
}

// NewRateLimiter constructs a RateLimiter with the given limit and window.
func NewRateLimiter(counter Counter, limit int, window time.Duration, log logger.Logger) *RateLimiter {
	return &RateLimiter{
		counter: counter,
		limit:   limit,
		window:  window,
		logger:  log,
	}
}

// Limit enforces the rate limit, keyed by client IP.
func (rl *RateLimiter) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := r.RemoteAddr
		if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			ip = host
		}
		key := fmt.Sprintf("ratelimit:%s", ip)

		count, err := rl.counter.IncrementWindow(r.Context(), key, rl.window)
		if err != nil {
			rl.logger.Error("Rate limit counter unavailable", map[string]interface{}{"error": err.Error()})
			jsonError(w, http.StatusInternalServerError, "Internal server error")
			return
		}

		w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", rl.limit))
		if count > int64(rl.limit) {
			w.Header().Set("X-RateLimit-Remaining", "0")
			jsonError(w, http.StatusTooManyRequests, "Rate limit exceeded")
			return
		}
		w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", rl.limit-int(count)))

		next.ServeHTTP(w, r)
	})
}
