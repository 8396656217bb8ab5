package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/shopspring/decimal"

	"storefront-checkout/internal/adapters/messaging/kafka"
	"storefront-checkout/internal/config"
)

// ErrMalformedEvent marks records that can never be stored and belong in the DLQ.
var ErrMalformedEvent = errors.New("malformed order event")

// Purchase is one row of the purchases table.
type Purchase struct {
	OrderID          string
	ProcessorOrderID string
	UserID           string
	GameID           string
	Amount           decimal.Decimal
	Currency         string
	PaymentMethod    string
	OccurredAt       time.Time
}

// DecodeOrderCompleted parses an order.completed record value.
func DecodeOrderCompleted(value []byte) (Purchase, error) {
	var ev kafka.OrderCompletedEvent
	if err := json.Unmarshal(value, &ev); err != nil {
		return Purchase{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if ev.Event != kafka.EventOrderCompleted {
		return Purchase{}, fmt.Errorf("%w: unexpected event type %q", ErrMalformedEvent, ev.Event)
	}
	if ev.ProcessorOrderID == "" || ev.UserID == "" || ev.GameID == "" || ev.Currency == "" {
		return Purchase{}, fmt.Errorf("%w: missing required fields", ErrMalformedEvent)
	}
	amount, err := decimal.NewFromString(ev.Amount)
	if err != nil {
		return Purchase{}, fmt.Errorf("%w: amount %q: %v", ErrMalformedEvent, ev.Amount, err)
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}

	return Purchase{
		OrderID:          ev.OrderID,
		ProcessorOrderID: ev.ProcessorOrderID,
		UserID:           ev.UserID,
		GameID:           ev.GameID,
		Amount:           amount,
		Currency:         ev.Currency,
		PaymentMethod:    ev.PaymentMethod,
		OccurredAt:       ev.OccurredAt,
	}, nil
}

// Store writes purchases to ClickHouse.
type Store struct {
	conn driver.Conn
}

// Open connects to ClickHouse and verifies the connection.
func Open(ctx context.Context, cfg config.ClickHouseConfig) (*Store, error) {
	if cfg.Addr == "" {
		return nil, errors.New("clickhouse address is not configured")
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
		return nil, fmt.Errorf("failed to open clickhouse connection: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping clickhouse: %w", err)
	}
	return &Store{conn: conn}, nil
}

func NewStore(conn driver.Conn) *Store {
	return &Store{conn: conn}
}

// Insert stores one purchase. The table is a ReplacingMergeTree keyed by
// processor_order_id, so redelivered events collapse on merge.
func (s *Store) Insert(ctx context.Context, p Purchase) error {
	const sql = `
	INSERT INTO purchases (order_id, processor_order_id, user_id, game_id, amount, currency, payment_method, occurred_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	return s.conn.Exec(ctx, sql,
		p.OrderID,
		p.ProcessorOrderID,
		p.UserID,
		p.GameID,
		p.Amount,
		p.Currency,
		p.PaymentMethod,
		p.OccurredAt,
	)
}

// Close closes the ClickHouse connection.
func (s *Store) Close() error {
	return s.conn.Close()
}
