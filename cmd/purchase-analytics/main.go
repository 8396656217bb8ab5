package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/twmb/franz-go/pkg/kgo"

	"storefront-checkout/internal/analytics"
	"storefront-checkout/internal/config"
	"storefront-checkout/internal/observability"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the config file")
	flag.Parse()

	// --- Configuration Setup ---
	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	logger := observability.SetupLogger(cfg.App.Env)
	logger.Info("purchase analytics starting", "env", cfg.App.Env, "topic", cfg.Kafka.Topic)

	if cfg.Kafka.BootstrapServers == "" {
		logger.Error("kafka.bootstrap_servers is required")
		os.Exit(1)
	}
	kafkaBrokers := strings.Split(cfg.Kafka.BootstrapServers, ",")

	// Set up graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Component Initialization ---
	dlqProducer, err := kgo.NewClient(
		kgo.SeedBrokers(kafkaBrokers...),
		kgo.AllowAutoTopicCreation(),
	)
	if err != nil {
		logger.Error("failed to create Kafka producer for DLQ", "error", err)
		os.Exit(1)
	}
	defer dlqProducer.Close()

	store, err := analytics.Open(ctx, cfg.ClickHouse)
	if err != nil {
		logger.Error("failed to connect to ClickHouse", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close ClickHouse connection", "error", err)
		}
	}()

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(kafkaBrokers...),
		kgo.ConsumerGroup("purchase-analytics"),
		kgo.ConsumeTopics(cfg.Kafka.Topic),
		kgo.DisableAutoCommit(),
	)
	if err != nil {
		logger.Error("failed to create Kafka consumer", "error", err)
		os.Exit(1)
	}
	defer consumer.Close()

	logger.Info("purchase analytics ready")

	exitCode := 0
	for {
		fetches := consumer.PollFetches(ctx)
		if fetches.IsClientClosed() || ctx.Err() != nil {
			break
		}

		fetches.EachError(func(t string, p int32, err error) {
			logger.Error("kafka fetch error", "topic", t, "partition", p, "error", err)
		})

		failed := false
		fetches.EachRecord(func(record *kgo.Record) {
			if failed {
				return
			}
			if err := handleRecord(ctx, store, dlqProducer, cfg.Kafka.DLQTopic, record, logger); err != nil {
				logger.Error("failed to store purchase", "offset", record.Offset, "error", err)
				failed = true
			}
		})
		if failed {
			// Offsets of this batch stay uncommitted and are redelivered after restart.
			exitCode = 1
			break
		}

		if err := consumer.CommitUncommittedOffsets(ctx); err != nil {
			logger.Error("error committing offsets", "error", err)
		}
	}

	logger.Info("purchase analytics stopping")
	if exitCode != 0 {
		consumer.Close()
		os.Exit(exitCode)
	}
}

// handleRecord stores one event. Malformed events go to the DLQ and count as
// handled; storage errors are returned.
func handleRecord(ctx context.Context, store *analytics.Store, dlq *kgo.Client, dlqTopic string, record *kgo.Record, logger *slog.Logger) error {
	purchase, err := analytics.DecodeOrderCompleted(record.Value)
	if errors.Is(err, analytics.ErrMalformedEvent) {
		logger.Warn("malformed order event, sending to DLQ", "offset", record.Offset, "error", err)
		sendToDLQ(dlq, dlqTopic, record, "unmarshal_error", err.Error(), logger)
		return nil
	}
	if err != nil {
		return err
	}

	if err := store.Insert(ctx, purchase); err != nil {
		return err
	}
	logger.Info("purchase stored",
		"processor_order_id", purchase.ProcessorOrderID,
		"game_id", purchase.GameID,
		"amount", purchase.Amount.StringFixed(2),
		"currency", purchase.Currency,
	)
	return nil
}

// sendToDLQ sends the original record to the dead-letter topic.
func sendToDLQ(p *kgo.Client, topic string, original *kgo.Record, errorType, errorString string, logger *slog.Logger) {
	dlqRecord := &kgo.Record{
		Topic: topic,
		Value: original.Value,
		Key:   original.Key,
		Headers: []kgo.RecordHeader{
			{Key: "error_type", Value: []byte(errorType)},
			{Key: "error_string", Value: []byte(errorString)},
			{Key: "original_topic", Value: []byte(original.Topic)},
		},
	}
	p.Produce(context.Background(), dlqRecord, func(r *kgo.Record, err error) {
		if err != nil {
			logger.Error("failed to send record to DLQ", "key", string(r.Key), "error", err)
		}
	})
}
