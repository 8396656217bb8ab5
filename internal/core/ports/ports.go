package ports

import (
	"context"
	"time"

	"storefront-checkout/internal/core/domain"
)

// ProductCatalog is the read-only source of authoritative prices.
// PriceOf returns domain.ErrProductNotFound when the product has no price.
type ProductCatalog interface {
	PriceOf(ctx context.Context, productID string) (string, error)
}

// OrderLedger is the append-only store of completed orders.
type OrderLedger interface {
	// Record inserts entry. It reports false, and writes nothing, when an entry
	// for the same processor order already exists.
	Record(ctx context.Context, entry domain.LedgerEntry) (bool, error)
	HasPurchased(ctx context.Context, userID, productID string) (bool, error)
	ListByUser(ctx context.Context, userID string) ([]domain.LedgerEntry, error)
	FindByProcessorOrder(ctx context.Context, processorOrderID string) (*domain.LedgerEntry, error)
}

// TokenProvider exchanges service credentials for a processor bearer token.
type TokenProvider interface {
	AccessToken(ctx context.Context) (string, error)
}

// PaymentProcessor is the outgoing port to the payment gateway.
type PaymentProcessor interface {
	CreateOrder(ctx context.Context, accessToken string, amount domain.Money, referenceID string) (*domain.ProcessorOrder, error)
	CaptureOrder(ctx context.Context, accessToken, orderID string) (*domain.ProcessorCapture, error)
}

// MessageBroker publishes checkout events for downstream consumers.
type MessageBroker interface {
	PublishOrderCompleted(ctx context.Context, entry domain.LedgerEntry) error
}

// RateLimiterRepository decides whether a caller identified by key may proceed.
type RateLimiterRepository interface {
	IsAllowed(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// CheckoutService is the incoming port used by the HTTP layer and CLIs.
type CheckoutService interface {
	CreateOrder(ctx context.Context, productID string) (*domain.ProcessorOrder, error)
	CaptureOrder(ctx context.Context, req domain.CaptureRequest) (*domain.CaptureResult, error)
	HasPurchased(ctx context.Context, userID, productID string) (bool, error)
}
