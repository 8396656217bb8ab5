package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"storefront-checkout/internal/core/domain"
)

// Repository implements the ProductCatalog and OrderLedger ports for PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new repository instance.
// Accepts a DSN (Data Source Name) to connect to.
func NewRepository(ctx context.Context, dsn string) (*Repository, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	// Let's check that the connection to the database actually works.
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return &Repository{pool: pool}, nil
}

// Close closes the connection pool.
func (r *Repository) Close() {
	r.pool.Close()
}

// Ping reports whether the database is reachable.
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// PriceOf implements the ProductCatalog port.
func (r *Repository) PriceOf(ctx context.Context, productID string) (string, error) {
	const sql = `SELECT price FROM games WHERE id = $1`

	var price *string
	err := r.pool.QueryRow(ctx, sql, productID).Scan(&price)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", domain.ErrProductNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to fetch price for game %q: %w", productID, err)
	}
	if price == nil {
		return "", domain.ErrProductNotFound
	}
	return *price, nil
}

// Record implements the OrderLedger port. The unique index on
// processor_order_id turns a second insert for the same order into a no-op.
func (r *Repository) Record(ctx context.Context, entry domain.LedgerEntry) (bool, error) {
	const sql = `
		INSERT INTO orders
		    (id, user_id, game_id, status, amount, currency, payment_method, processor_order_id, processor_capture_id)
		VALUES
		    ($1, $2, $3, $4, $5::numeric, $6, $7, $8, NULLIF($9, ''))
		ON CONFLICT (processor_order_id) DO NOTHING
	`
	tag, err := r.pool.Exec(ctx, sql,
		entry.ID,
		entry.UserID,
		entry.ProductID,
		string(entry.Status),
		entry.Amount.String(),
		entry.Currency,
		entry.PaymentMethod,
		entry.ProcessorOrderID,
		entry.ProcessorCaptureID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to save order: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// HasPurchased implements the OrderLedger port.
func (r *Repository) HasPurchased(ctx context.Context, userID, productID string) (bool, error) {
	const sql = `SELECT EXISTS (SELECT 1 FROM orders WHERE user_id = $1 AND game_id = $2 AND status = 'completed')`

	var exists bool
	if err := r.pool.QueryRow(ctx, sql, userID, productID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check purchase: %w", err)
	}
	return exists, nil
}

const selectOrder = `
	SELECT id, user_id, game_id, status, amount::text, currency, payment_method,
	       processor_order_id, COALESCE(processor_capture_id, ''), created_at
	FROM orders
`

// ListByUser returns the user's orders, newest first.
func (r *Repository) ListByUser(ctx context.Context, userID string) ([]domain.LedgerEntry, error) {
	rows, err := r.pool.Query(ctx, selectOrder+` WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	var entries []domain.LedgerEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	return entries, nil
}

// FindByProcessorOrder returns nil, nil when no order exists for the id.
func (r *Repository) FindByProcessorOrder(ctx context.Context, processorOrderID string) (*domain.LedgerEntry, error) {
	row := r.pool.QueryRow(ctx, selectOrder+` WHERE processor_order_id = $1`, processorOrderID)
	entry, err := scanEntry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return entry, err
}

func scanEntry(row pgx.Row) (*domain.LedgerEntry, error) {
	var (
		entry  domain.LedgerEntry
		status string
		amount string
	)
	err := row.Scan(
		&entry.ID,
		&entry.UserID,
		&entry.ProductID,
		&status,
		&amount,
		&entry.Currency,
		&entry.PaymentMethod,
		&entry.ProcessorOrderID,
		&entry.ProcessorCaptureID,
		&entry.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan order: %w", err)
	}
	entry.Status = domain.OrderStatus(status)
	entry.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q on order %s: %w", amount, entry.ID, err)
	}
	return &entry, nil
}
