package logbroker

import (
	"context"
	"log/slog"

	"storefront-checkout/internal/core/domain"
)

// Broker satisfies the MessageBroker port when Kafka is not configured; it
// only logs the event.
type Broker struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) *Broker {
	return &Broker{logger: logger}
}

func (b *Broker) PublishOrderCompleted(ctx context.Context, entry domain.LedgerEntry) error {
	b.logger.InfoContext(ctx, "order.completed (kafka disabled)",
		"order_id", entry.ID.String(),
		"processor_order_id", entry.ProcessorOrderID,
		"amount", entry.Amount.StringFixed(2),
		"currency", entry.Currency,
	)
	return nil
}
