package http

import (
	"log/slog"
	"net"
	"net/http"
	"time"

	"storefront-checkout/internal/core/ports"
)

// RateLimiterMiddleware limits requests per client IP.
type RateLimiterMiddleware struct {
	repo   ports.RateLimiterRepository
	limit  int
	window time.Duration
	logger *slog.Logger
}

func NewRateLimiterMiddleware(repo ports.RateLimiterRepository, limit int, window time.Duration, logger *slog.Logger) *RateLimiterMiddleware {
	return &RateLimiterMiddleware{
		repo:   repo,
		limit:  limit,
		window: window,
		logger: logger,
	}
}

// Handler is the middleware function.
func (m *RateLimiterMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// RealIP may already have replaced RemoteAddr with a bare address.
		ip, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			ip = r.RemoteAddr
		}
		if ip == "" {
			next.ServeHTTP(w, r)
			return
		}

		allowed, err := m.repo.IsAllowed(r.Context(), ip, m.limit, m.window)
		if err != nil {
			// Fail open: a limiter outage must not stop checkouts.
			m.logger.Error("rate limit check failed", "error", err)
			next.ServeHTTP(w, r)
			return
		}

		if !allowed {
			writeJSONError(w, "Too Many Requests", http.StatusTooManyRequests, m.logger)
			return
		}

		next.ServeHTTP(w, r)
	})
}
