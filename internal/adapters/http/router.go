package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"storefront-checkout/internal/core/ports"
	"storefront-checkout/internal/observability"
)

// RouterConfig holds everything the gateway router needs. Nil RateLimiter
// disables limiting; nil Auth leaves the entitlement route unmounted.
type RouterConfig struct {
	ServiceName    string
	Service        ports.CheckoutService
	Logger         *slog.Logger
	RateLimiter    *RateLimiterMiddleware
	Auth           func(http.Handler) http.Handler
	RequestTimeout time.Duration
}

// NewRouter builds the public checkout API.
func NewRouter(cfg RouterConfig) http.Handler {
	checkout := NewCheckoutHandler(cfg.Service, cfg.Logger)

	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		CORS,
		middleware.Recoverer,
		observability.NewLoggerMiddleware(cfg.Logger),
		observability.NewMetricsMiddleware(cfg.ServiceName),
		observability.NewTracingMiddleware(cfg.ServiceName),
	)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if err := json.NewEncoder(w).Encode(map[string]string{
			"status":  "healthy",
			"service": cfg.ServiceName,
		}); err != nil {
			cfg.Logger.Error("Failed to write health response", "error", err)
		}
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		if cfg.RateLimiter != nil {
			r.Use(cfg.RateLimiter.Handler)
		}
		r.Use(middleware.Logger, requestTimeout(cfg.RequestTimeout))

		r.Post("/create-order", checkout.HandleCreateOrder)
		r.Post("/capture-order", checkout.HandleCaptureOrder)

		if cfg.Auth != nil {
			r.With(cfg.Auth).Get("/api/v1/entitlements/{gameId}", checkout.HandleEntitlement)
		}
	})

	return r
}

// requestTimeout bounds every downstream call made while serving a request.
// Handlers see the deadline through the context and answer themselves.
func requestTimeout(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if d <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
