package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"storefront-checkout/internal/core/domain"
)

// DefaultExchangeRate is used when checkout.exchange_rate is empty
// (local currency units per settlement unit).
const DefaultExchangeRate = "83.5"

// ClickHouseConfig is shared by the analytics consumer and service-doctor.
type ClickHouseConfig struct {
	Addr     string `yaml:"addr"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

// RateLimitConfig bounds requests per client IP on the public checkout routes.
type RateLimitConfig struct {
	Requests  int           `yaml:"requests"`
	Window    time.Duration `yaml:"window"`
	Algorithm string        `yaml:"algorithm"` // fixed | sliding
}

// PayPalConfig holds the processor credentials. The secret is never logged.
type PayPalConfig struct {
	BaseURL      string        `yaml:"base_url"`
	ClientID     string        `yaml:"client_id"`
	ClientSecret string        `yaml:"client_secret"`
	Timeout      time.Duration `yaml:"timeout"`
}

// CheckoutConfig describes the single conversion path local -> settlement.
type CheckoutConfig struct {
	LocalCurrency      string `yaml:"local_currency"`
	SettlementCurrency string `yaml:"settlement_currency"`
	ExchangeRate       string `yaml:"exchange_rate"`

	// Rate is ExchangeRate parsed by Validate.
	Rate decimal.Decimal `yaml:"-"`
}

type Config struct {
	App struct {
		Env string `yaml:"env"`
	} `yaml:"app"`
	Server struct {
		Port           string        `yaml:"port"`
		RequestTimeout time.Duration `yaml:"request_timeout"`
	} `yaml:"server"`
	Postgres struct {
		DSN string `yaml:"dsn"`
	} `yaml:"postgres"`
	Kafka struct {
		BootstrapServers string `yaml:"bootstrap_servers"`
		Topic            string `yaml:"topic"`
		DLQTopic         string `yaml:"dlq_topic"`
	} `yaml:"kafka"`
	Redis struct {
		Addr string `yaml:"addr"`
	} `yaml:"redis"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
	Jaeger     struct {
		Endpoint string `yaml:"endpoint"`
	} `yaml:"jaeger"`
	OIDC struct {
		URL      string `yaml:"url"`
		ClientID string `yaml:"client_id"`
	} `yaml:"oidc"`
	JWT struct {
		Secret string `yaml:"secret"`
	} `yaml:"jwt"`
	PayPal   PayPalConfig   `yaml:"paypal"`
	Checkout CheckoutConfig `yaml:"checkout"`
}

// Load reads configPath, substitutes environment variables and applies
// defaults. Callers that serve traffic must also call Validate.
func Load(configPath string) (*Config, error) {
	file, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}
	return Parse(file)
}

// Parse is Load without the file read.
func Parse(raw []byte) (*Config, error) {
	config := &Config{}

	// First, we substitute environment variables into the raw YAML file.
	expanded := os.ExpandEnv(string(raw))

	if err := yaml.Unmarshal([]byte(expanded), config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	config.applyDefaults()
	return config, nil
}

func (c *Config) applyDefaults() {
	if c.App.Env == "" {
		c.App.Env = "production"
	}
	if c.Server.Port == "" {
		c.Server.Port = ":8080"
	}
	if c.Server.RequestTimeout == 0 {
		c.Server.RequestTimeout = 30 * time.Second
	}
	if c.PayPal.BaseURL == "" {
		c.PayPal.BaseURL = "https://api-m.sandbox.paypal.com"
	}
	if c.PayPal.Timeout == 0 {
		c.PayPal.Timeout = 15 * time.Second
	}
	if c.Checkout.LocalCurrency == "" {
		c.Checkout.LocalCurrency = "INR"
	}
	if c.Checkout.SettlementCurrency == "" {
		c.Checkout.SettlementCurrency = "USD"
	}
	if strings.TrimSpace(c.Checkout.ExchangeRate) == "" {
		c.Checkout.ExchangeRate = DefaultExchangeRate
	}
	if c.Kafka.Topic == "" {
		c.Kafka.Topic = "orders.completed"
	}
	if c.Kafka.DLQTopic == "" {
		c.Kafka.DLQTopic = c.Kafka.Topic + ".dlq"
	}
	if c.RateLimit.Requests == 0 {
		c.RateLimit.Requests = 100
	}
	if c.RateLimit.Window == 0 {
		c.RateLimit.Window = time.Minute
	}
	if c.RateLimit.Algorithm == "" {
		c.RateLimit.Algorithm = "fixed"
	}
}

// Validate fails fast on settings the checkout cannot run without.
func (c *Config) Validate() error {
	var errs []error

	rate, err := domain.ParseRate(c.Checkout.ExchangeRate)
	if err != nil {
		errs = append(errs, fmt.Errorf("checkout.exchange_rate: %w", err))
	}
	c.Checkout.Rate = rate

	if c.PayPal.ClientID == "" || c.PayPal.ClientSecret == "" {
		errs = append(errs, errors.New("paypal.client_id and paypal.client_secret are required"))
	}
	if c.Postgres.DSN == "" {
		errs = append(errs, errors.New("postgres.dsn is required"))
	}
	switch c.RateLimit.Algorithm {
	case "fixed", "sliding":
	default:
		errs = append(errs, fmt.Errorf("rate_limit.algorithm: unknown algorithm %q", c.RateLimit.Algorithm))
	}
	if c.RateLimit.Requests < 0 || c.RateLimit.Window < 0 {
		errs = append(errs, errors.New("rate_limit.requests and rate_limit.window must not be negative"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}
