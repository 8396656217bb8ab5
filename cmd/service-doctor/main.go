package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/fatih/color"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/twmb/franz-go/pkg/kgo"

	"storefront-checkout/internal/adapters/paypal"
	"storefront-checkout/internal/config"
	"storefront-checkout/internal/observability"
)

// errSkipped marks a check whose dependency is not configured.
var errSkipped = errors.New("not configured")

// Check describes one diagnostic check
type Check struct {
	Name     string
	Func     func(ctx context.Context) error
	Error    error
	Duration time.Duration
}

var (
	okColor      = color.New(color.FgGreen, color.Bold)
	failColor    = color.New(color.FgRed, color.Bold)
	skippedColor = color.New(color.FgYellow)
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the config file")
	gatewayURL := flag.String("gateway", "http://localhost:8080", "checkout gateway base URL")
	flag.Parse()

	logger := observability.SetupLogger("development")
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	checks := []Check{
		{Name: "Checkout Gateway", Func: func(ctx context.Context) error {
			return checkHTTPHealth(ctx, *gatewayURL+"/health", logger)
		}},
		{Name: "PostgreSQL", Func: func(ctx context.Context) error {
			return checkPostgres(ctx, cfg.Postgres.DSN, logger)
		}},
		{Name: "Redis", Func: func(ctx context.Context) error {
			return checkRedis(ctx, cfg.Redis.Addr, logger)
		}},
		{Name: "Kafka Cluster", Func: func(ctx context.Context) error {
			return checkKafka(ctx, cfg.Kafka.BootstrapServers)
		}},
		{Name: "ClickHouse", Func: func(ctx context.Context) error {
			return checkClickHouse(ctx, cfg.ClickHouse, logger)
		}},
		{Name: "PayPal OAuth", Func: func(ctx context.Context) error {
			return checkPayPal(ctx, cfg.PayPal)
		}},
	}
	if cfg.OIDC.URL != "" {
		checks = append(checks, Check{Name: "OIDC Issuer", Func: func(ctx context.Context) error {
			return checkHTTPHealth(ctx, strings.TrimRight(cfg.OIDC.URL, "/")+"/.well-known/openid-configuration", logger)
		}})
	}

	var wg sync.WaitGroup
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	fmt.Println("Running checkout diagnostics...")

	for i := range checks {
		wg.Add(1)
		go func(c *Check) {
			defer wg.Done()
			start := time.Now()
			c.Error = c.Func(ctx)
			c.Duration = time.Since(start)
		}(&checks[i])
	}

	wg.Wait()

	fmt.Println("\n--- Diagnostics report ---")
	hasErrors := false
	for _, c := range checks {
		switch {
		case c.Error == nil:
			fmt.Printf("[%s] %-20s (%v)\n", okColor.Sprint("  OK  "), c.Name, c.Duration.Round(time.Millisecond))
		case errors.Is(c.Error, errSkipped):
			fmt.Printf("[%s] %-20s\n", skippedColor.Sprint(" SKIP "), c.Name)
		default:
			hasErrors = true
			fmt.Printf("[%s] %-20s (%v) - %v\n", failColor.Sprint("FAILED"), c.Name, c.Duration.Round(time.Millisecond), c.Error)
		}
	}

	if hasErrors {
		failColor.Println("\nDiagnostics found problems.")
		os.Exit(1)
	}
	okColor.Println("\nAll systems operational.")
}

// --- Functions for checks ---

func checkHTTPHealth(ctx context.Context, url string, logger *slog.Logger) error {
	if !strings.HasPrefix(url, "http") {
		url = "http://" + url
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logger.Error("failed to close response body", "error", err)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status: %s", resp.Status)
	}
	return nil
}

func checkPostgres(ctx context.Context, dsn string, logger *slog.Logger) error {
	if dsn == "" {
		return errSkipped
	}
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return err
	}
	defer func() {
		if err := conn.Close(ctx); err != nil {
			logger.Error("failed to close Postgres connection", "error", err)
		}
	}()

	// The checkout cannot run without both tables.
	var games, orders bool
	err = conn.QueryRow(ctx, `SELECT to_regclass('public.games') IS NOT NULL, to_regclass('public.orders') IS NOT NULL`).Scan(&games, &orders)
	if err != nil {
		return err
	}
	if !games || !orders {
		return fmt.Errorf("missing tables: games=%t orders=%t", games, orders)
	}
	return nil
}

func checkRedis(ctx context.Context, addr string, logger *slog.Logger) error {
	if addr == "" {
		return errSkipped
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error("failed to close Redis", "error", err)
		}
	}()
	return rdb.Ping(ctx).Err()
}

func checkKafka(ctx context.Context, bootstrapServers string) error {
	if bootstrapServers == "" {
		return errSkipped
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(strings.Split(bootstrapServers, ",")...),
		kgo.DialTimeout(5*time.Second),
	)
	if err != nil {
		return err
	}
	defer client.Close()

	return client.Ping(ctx)
}

func checkClickHouse(ctx context.Context, cfg config.ClickHouseConfig, logger *slog.Logger) error {
	if cfg.Addr == "" {
		return errSkipped
	}

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return fmt.Errorf("failed to open connection: %w", err)
	}
	defer func() {
		if err := conn.Close(); err != nil {
			logger.Error("failed to close ClickHouse connection", "error", err)
		}
	}()

	return conn.Ping(ctx)
}

// checkPayPal requests a real access token with the configured credentials.
func checkPayPal(ctx context.Context, cfg config.PayPalConfig) error {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return errSkipped
	}
	tokens := paypal.NewTokenProvider(cfg.BaseURL, cfg.ClientID, cfg.ClientSecret, paypal.NewHTTPClient(cfg.Timeout))
	_, err := tokens.AccessToken(ctx)
	return err
}
