package server

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/time/rate"
)

// UserHeader names the user a request acts for
const UserHeader = "X-Promoter-User"

// AnonymousUser is recorded when a request names no user
const AnonymousUser = "anonymous"

type userKey struct{}

// WithUser attaches the acting user to ctx
func WithUser(ctx context.Context, user string) context.Context {
	return context.WithValue(ctx, userKey{}, user)
}

// UserFromContext returns the acting user attached by WithUser
func UserFromContext(ctx context.Context) string {
	if user, ok := ctx.Value(userKey{}).(string); ok && user != "" {
		return user
	}
	return AnonymousUser
}

// UserMiddleware reads the acting user from the X-Promoter-User header
func UserMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := strings.TrimSpace(r.Header.Get(UserHeader))
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
	})
}

// RateLimiter implements a token bucket per IP address
type RateLimiter struct {
	limiters  map[string]*rate.Limiter
	mu        sync.Mutex
	rateLimit rate.Limit // requests per second
	burstSize int
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(rateLimit rate.Limit, burstSize int) *RateLimiter {
	return &RateLimiter{
		limiters:  make(map[string]*rate.Limiter),
		rateLimit: rateLimit,
		burstSize: burstSize,
	}
}

// GetLimiter returns the limiter for ip, creating it on first use
func (rl *RateLimiter) GetLimiter(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	limiter, exists := rl.limiters[ip]
	if !exists {
		limiter = rate.NewLimiter(rl.rateLimit, rl.burstSize)
		rl.limiters[ip] = limiter
	}

	return limiter
}

// NewRateLimitMiddleware limits each IP to perMinute requests with bursts of
// the same size
func NewRateLimitMiddleware(name string, perMinute int, logger *slog.Logger) func(http.Handler) http.Handler {
	limiter := NewRateLimiter(rate.Limit(float64(perMinute)/60.0), perMinute)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := r.RemoteAddr

			if !limiter.GetLimiter(ip).Allow() {
				logger.Warn("Rate limit exceeded", "limiter", name, "ip", ip, "path", r.URL.Path)
				http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
