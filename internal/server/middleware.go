package server

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/time/rate"

	"checkhub/internal/apperror"
	"checkhub/internal/handler"
)

// RateLimiter implements a simple token bucket rate limiter per IP address
type RateLimiter struct {
	limiters  map[string]*rate.Limiter
	mu        sync.Mutex
	rateLimit rate.Limit // Requests per second
	burstSize int        // Maximum burst size
}

// NewRateLimiter creates a new rate limiter
// rateLimit: requests per second
// burstSize: maximum number of requests allowed in a burst
func NewRateLimiter(rateLimit rate.Limit, burstSize int) *RateLimiter {
	return &RateLimiter{
		limiters:  make(map[string]*rate.Limiter),
		rateLimit: rateLimit,
		burstSize: burstSize,
	}
}

// GetLimiter returns the rate limiter for a given IP address
// Creates a new limiter for the IP if one doesn't exist
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

// NewRateLimitMiddleware creates middleware for global rate limiting
// limit: requests per minute
func NewRateLimitMiddleware(limit int, logger *slog.Logger) func(http.Handler) http.Handler {
	return rateLimitMiddleware(limit, "Rate limit exceeded", logger)
}

// NewWebhookRateLimitMiddleware creates middleware for webhook-specific rate limiting
// limit: requests per minute
func NewWebhookRateLimitMiddleware(limit int, logger *slog.Logger) func(http.Handler) http.Handler {
	return rateLimitMiddleware(limit, "Webhook rate limit exceeded", logger)
}

func rateLimitMiddleware(limit int, message string, logger *slog.Logger) func(http.Handler) http.Handler {
	// Convert to requests per second
	rps := rate.Limit(float64(limit) / 60.0)
	limiter := NewRateLimiter(rps, limit)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := r.RemoteAddr

			if !limiter.GetLimiter(ip).Allow() {
				logger.Warn(message, "ip", ip, "path", r.URL.Path)
				apperror.Problem{
					Title:  "Rate limit exceeded.",
					Status: http.StatusTooManyRequests,
				}.Write(w)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

type contextKey string

const userContextKey contextKey = "user"

// UserFromContext returns the user stored by RequireAuth.
func UserFromContext(ctx context.Context) (*handler.User, bool) {
	user, ok := ctx.Value(userContextKey).(*handler.User)
	return user, ok
}

// RequireAuth authenticates the request with the GitHub token in its
// "Authorization: Bearer" header.
func (s *Server) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			s.writeProblem(w, "Authentication required.", apperror.New(apperror.AuthenticationFailure, "missing bearer token", http.StatusUnauthorized))
			return
		}

		client, err := s.clients(token)
		if err != nil {
			s.Logger.Error("Failed to create GitHub client", "error", err)
			s.writeProblem(w, "Authentication failed.", err)
			return
		}

		ghUser, err := client.CurrentUser(r.Context())
		if err != nil {
			s.Logger.Warn("Rejected API token", "error", err, "path", r.URL.Path)
			s.writeProblem(w, "Authentication failed.", apperror.Wrap(err, apperror.AuthenticationFailure, "invalid GitHub token", http.StatusUnauthorized))
			return
		}

		user := &handler.User{Login: ghUser.GetLogin(), Client: client}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userContextKey, user)))
	})
}

func bearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
