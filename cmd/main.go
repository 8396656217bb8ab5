package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	httphandler "storefront-checkout/internal/adapters/http"
	"storefront-checkout/internal/adapters/messaging/kafka"
	"storefront-checkout/internal/adapters/messaging/logbroker"
	"storefront-checkout/internal/adapters/paypal"
	"storefront-checkout/internal/adapters/storage/postgres"
	"storefront-checkout/internal/adapters/storage/redis"
	"storefront-checkout/internal/app"
	"storefront-checkout/internal/config"
	"storefront-checkout/internal/core/ports"
	"storefront-checkout/internal/observability"
)

const serviceName = "checkout-gateway"

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the config file")
	flag.Parse()

	// --- 1. Configuration and Logging ---
	fallbackLogger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	cfg, err := config.Load(*configPath)
	if err != nil {
		fallbackLogger.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.SetupLogger(cfg.App.Env)

	// --- 2. Validate critical config ---
	// A bad exchange rate or missing credentials must stop the process before
	// any request is served.
	if err := cfg.Validate(); err != nil {
		logger.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}
	logger.Info("Application starting",
		"env", cfg.App.Env,
		"port", cfg.Server.Port,
		"settlement_currency", cfg.Checkout.SettlementCurrency,
		"exchange_rate", cfg.Checkout.Rate.String(),
	)

	// --- 3. Observability ---
	shutdownTracer, err := observability.InitTracer(cfg.Jaeger.Endpoint, serviceName)
	if err != nil {
		logger.Error("Failed to initialize tracing", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logger.Warn("Failed to shutdown tracer", "error", err)
		}
	}()

	// --- 4. Dependencies ---
	ctx := context.Background()

	repo, err := postgres.NewRepository(ctx, cfg.Postgres.DSN)
	if err != nil {
		logger.Error("Failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	logger.Info("Connected to PostgreSQL")

	var rateLimiter *httphandler.RateLimiterMiddleware
	if cfg.Redis.Addr != "" {
		rdb, err := redis.NewClient(ctx, cfg.Redis.Addr)
		if err != nil {
			logger.Error("Failed to connect to Redis", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := rdb.Close(); err != nil {
				logger.Warn("Failed to close Redis", "error", err)
			}
		}()

		var limiter ports.RateLimiterRepository = redis.NewFixedWindowLimiter(rdb)
		if cfg.RateLimit.Algorithm == "sliding" {
			limiter = redis.NewSlidingWindowLimiter(rdb)
		}
		rateLimiter = httphandler.NewRateLimiterMiddleware(limiter, cfg.RateLimit.Requests, cfg.RateLimit.Window, logger)
		logger.Info("Rate limiting enabled", "algorithm", cfg.RateLimit.Algorithm, "requests", cfg.RateLimit.Requests, "window", cfg.RateLimit.Window)
	}

	var broker ports.MessageBroker = logbroker.New(logger)
	if cfg.Kafka.BootstrapServers != "" {
		kafkaBroker, err := kafka.NewBroker(ctx, strings.Split(cfg.Kafka.BootstrapServers, ","), cfg.Kafka.Topic, logger)
		if err != nil {
			logger.Error("Failed to create Kafka broker", "error", err)
			os.Exit(1)
		}
		defer kafkaBroker.Close()
		broker = kafkaBroker
		logger.Info("Kafka broker created", "topic", cfg.Kafka.Topic)
	}

	paypalHTTP := paypal.NewHTTPClient(cfg.PayPal.Timeout)
	tokens := paypal.NewTokenProvider(cfg.PayPal.BaseURL, cfg.PayPal.ClientID, cfg.PayPal.ClientSecret, paypalHTTP)
	processor := paypal.NewClient(cfg.PayPal.BaseURL, paypalHTTP)

	// --- 5. Service Layer ---
	checkoutService := app.NewCheckoutService(
		repo,
		repo,
		tokens,
		processor,
		broker,
		app.Pricing{Rate: cfg.Checkout.Rate, SettlementCurrency: cfg.Checkout.SettlementCurrency},
		logger,
	)

	var auth func(http.Handler) http.Handler
	switch {
	case cfg.OIDC.URL != "":
		authenticator, err := httphandler.NewOIDCAuthenticator(ctx, cfg.OIDC.URL, cfg.OIDC.ClientID, logger)
		if err != nil {
			logger.Error("Failed to set up OIDC", "error", err)
			os.Exit(1)
		}
		auth = authenticator.Middleware
	case cfg.JWT.Secret != "":
		auth = httphandler.JWTMiddleware([]byte(cfg.JWT.Secret), logger)
	default:
		logger.Warn("No token verification configured; entitlement endpoint disabled")
	}

	// --- 6. HTTP Router ---
	router := httphandler.NewRouter(httphandler.RouterConfig{
		ServiceName:    serviceName,
		Service:        checkoutService,
		Logger:         logger,
		RateLimiter:    rateLimiter,
		Auth:           auth,
		RequestTimeout: cfg.Server.RequestTimeout,
	})

	// --- 7. HTTP Server ---
	srv := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: cfg.Server.RequestTimeout + 5*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("HTTP server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	// Graceful shutdown lets in-flight captures reach the ledger.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.RequestTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown failed", "error", err)
		os.Exit(1)
	}

	logger.Info("Server exited properly")
}
