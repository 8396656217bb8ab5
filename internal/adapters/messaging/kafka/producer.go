package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"storefront-checkout/internal/core/domain"
)

// EventOrderCompleted is the event type of every record on the orders topic.
const EventOrderCompleted = "order.completed"

// OrderCompletedEvent is the wire format of an order.completed record.
type OrderCompletedEvent struct {
	Event              string    `json:"event"`
	OrderID            string    `json:"order_id"`
	ProcessorOrderID   string    `json:"processor_order_id"`
	ProcessorCaptureID string    `json:"processor_capture_id,omitempty"`
	UserID             string    `json:"user_id"`
	GameID             string    `json:"game_id"`
	Amount             string    `json:"amount"`
	Currency           string    `json:"currency"`
	PaymentMethod      string    `json:"payment_method"`
	OccurredAt         time.Time `json:"occurred_at"`
}

// NewOrderCompletedEvent builds the event for a ledger entry.
func NewOrderCompletedEvent(entry domain.LedgerEntry, at time.Time) OrderCompletedEvent {
	return OrderCompletedEvent{
		Event:              EventOrderCompleted,
		OrderID:            entry.ID.String(),
		ProcessorOrderID:   entry.ProcessorOrderID,
		ProcessorCaptureID: entry.ProcessorCaptureID,
		UserID:             entry.UserID,
		GameID:             entry.ProductID,
		Amount:             entry.Amount.StringFixed(2),
		Currency:           entry.Currency,
		PaymentMethod:      entry.PaymentMethod,
		OccurredAt:         at.UTC(),
	}
}

// Broker is an implementation of the MessageBroker port for Kafka.
type Broker struct {
	client *kgo.Client
	topic  string
	logger *slog.Logger
	wg     sync.WaitGroup
}

// NewBroker creates a new Kafka broker instance.
func NewBroker(ctx context.Context, bootstrapServers []string, topic string, logger *slog.Logger) (*Broker, error) {
	opts := []kgo.Opt{
		kgo.SeedBrokers(bootstrapServers...),
		kgo.DefaultProduceTopic(topic),
		kgo.AllowAutoTopicCreation(),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.RecordDeliveryTimeout(10 * time.Second),
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}

	// Checking the connection
	if err := client.Ping(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to kafka: %w", err)
	}

	return &Broker{
		client: client,
		topic:  topic,
		logger: logger,
	}, nil
}

// PublishOrderCompleted produces the event asynchronously, keyed by the
// processor order id so replays land on the same partition.
func (b *Broker) PublishOrderCompleted(ctx context.Context, entry domain.LedgerEntry) error {
	payload, err := json.Marshal(NewOrderCompletedEvent(entry, time.Now()))
	if err != nil {
		return fmt.Errorf("failed to marshal order event: %w", err)
	}

	record := &kgo.Record{
		Key:   []byte(entry.ProcessorOrderID),
		Value: payload,
	}

	b.wg.Add(1)
	// The request context ends with the response; delivery must outlive it.
	b.client.Produce(context.WithoutCancel(ctx), record, func(r *kgo.Record, err error) {
		defer b.wg.Done()
		if err != nil {
			b.logger.Error("failed to deliver order event", "topic", r.Topic, "processor_order_id", string(r.Key), "error", err)
		} else {
			b.logger.Debug("order event delivered", "topic", r.Topic, "partition", r.Partition, "offset", r.Offset)
		}
	})

	return nil
}

// Close gracefully stops the producer.
func (b *Broker) Close() {
	b.logger.Info("waiting for in-flight kafka records...")
	b.wg.Wait()
	b.client.Close()
	b.logger.Info("kafka client stopped")
}
