package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"service", "method", "path", "code"},
	)
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	checkoutOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_operations_total",
			Help: "Checkout operations by outcome.",
		},
		[]string{"operation", "outcome"},
	)
	processorRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "payment_processor_request_duration_seconds",
			Help:    "Duration of calls to the payment processor.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "code"},
	)
)

// NewMetricsMiddleware Creates HTTP middleware for collecting Prometheus metrics.
func NewMetricsMiddleware(serviceName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				duration := time.Since(start)
				// Route pattern keeps label cardinality bounded.
				path := r.URL.Path
				if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
					path = rctx.RoutePattern()
				}

				httpRequestDuration.WithLabelValues(serviceName, r.Method, path).Observe(duration.Seconds())
				httpRequestsTotal.WithLabelValues(serviceName, r.Method, path, strconv.Itoa(ww.Status())).Inc()
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

// RecordCheckoutOutcome counts one create/capture result. outcome is "ok" or
// an error code.
func RecordCheckoutOutcome(operation, outcome string) {
	checkoutOutcomes.WithLabelValues(operation, outcome).Inc()
}

// ObserveProcessorCall records the latency of a processor call. code 0 means
// the request never got a response.
func ObserveProcessorCall(operation string, code int, d time.Duration) {
	processorRequestDuration.WithLabelValues(operation, strconv.Itoa(code)).Observe(d.Seconds())
}
