package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/twmb/franz-go/pkg/kgo"

	"storefront-checkout/internal/config"
	"storefront-checkout/internal/observability"
)

func main() {
	// --- Configuration Setup ---
	cfg, err := config.Load("configs/config.yaml")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger := observability.SetupLogger(cfg.App.Env)

	kafkaBrokers := cfg.Kafka.BootstrapServers
	if kafkaBrokers == "" {
		kafkaBrokers = "localhost:9092"
	}
	dlqTopic := cfg.Kafka.DLQTopic

	var rootCmd = &cobra.Command{Use: "dlq-tool", SilenceUsage: true}
	rootCmd.PersistentFlags().StringVar(&kafkaBrokers, "brokers", kafkaBrokers, "Kafka broker addresses")
	rootCmd.PersistentFlags().StringVar(&dlqTopic, "dlq-topic", dlqTopic, "DLQ topic name")

	var viewCmd = &cobra.Command{
		Use:   "view",
		Short: "Show records in the DLQ",
		RunE: func(cmd *cobra.Command, _ []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			logger.Info("reading latest DLQ records", "topic", dlqTopic, "limit", limit)

			client, err := kgo.NewClient(
				kgo.SeedBrokers(strings.Split(kafkaBrokers, ",")...),
				kgo.ConsumeTopics(dlqTopic),
				kgo.FetchMaxWait(5*time.Second),
				kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
			)
			if err != nil {
				return fmt.Errorf("failed to create consumer: %w", err)
			}
			defer client.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
			defer cancel()

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "PARTITION:OFFSET\tPROCESSOR ORDER\tERROR_TYPE\tERROR_STRING")

			msgCount := 0
			for msgCount < limit {
				fetches := client.PollFetches(ctx)
				if fetches.IsClientClosed() || ctx.Err() != nil {
					break
				}
				if len(fetches.Records()) == 0 {
					logger.Info("no more records in topic")
					break
				}

				fetches.EachRecord(func(record *kgo.Record) {
					if msgCount >= limit {
						return
					}
					errorType, errorString := getErrorHeaders(record.Headers)
					fmt.Fprintf(w, "%d:%d\t%s\t%s\t%s\n", record.Partition, record.Offset, string(record.Key), errorType, errorString)
					msgCount++
				})
			}
			return w.Flush()
		},
	}
	viewCmd.Flags().Int("limit", 10, "Number of records to show")

	var retryCmd = &cobra.Command{
		Use:   "retry [partition:offset]",
		Short: "Republish a DLQ record to the orders topic",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			targetTopic, _ := cmd.Flags().GetString("target-topic")
			partition, offset, err := parsePartitionOffset(args[0])
			if err != nil {
				return err
			}
			logger.Info("retrying record", "from_topic", dlqTopic, "partition", partition, "offset", offset, "to_topic", targetTopic)

			brokers := strings.Split(kafkaBrokers, ",")
			producer, err := kgo.NewClient(kgo.SeedBrokers(brokers...))
			if err != nil {
				return fmt.Errorf("failed to create producer: %w", err)
			}
			defer producer.Close()

			consumer, err := kgo.NewClient(
				kgo.SeedBrokers(brokers...),
				kgo.ConsumePartitions(map[string]map[int32]kgo.Offset{
					dlqTopic: {partition: kgo.NewOffset().At(offset)},
				}),
			)
			if err != nil {
				return fmt.Errorf("failed to create consumer: %w", err)
			}
			defer consumer.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
			defer cancel()

			fetches := consumer.PollRecords(ctx, 1)
			if err := fetches.Err(); err != nil {
				return fmt.Errorf("failed to read record: %w", err)
			}
			records := fetches.Records()
			if len(records) == 0 || records[0].Offset != offset {
				return fmt.Errorf("no record at %d:%d", partition, offset)
			}
			record := records[0]

			retryRecord := &kgo.Record{
				Topic: targetTopic,
				Value: record.Value,
				Key:   record.Key,
			}
			if err := producer.ProduceSync(ctx, retryRecord).FirstErr(); err != nil {
				return fmt.Errorf("failed to republish record: %w", err)
			}

			logger.Info("record republished", "processor_order_id", string(record.Key))
			return nil
		},
	}
	retryCmd.Flags().String("target-topic", cfg.Kafka.Topic, "Topic to republish the record to")

	rootCmd.AddCommand(viewCmd, retryCmd)
	if err := rootCmd.Execute(); err != nil {
		logger.Error("command failed", "error", err)
		os.Exit(1)
	}
}

// getErrorHeaders extracts error_type and error_string from Kafka headers
func getErrorHeaders(headers []kgo.RecordHeader) (string, string) {
	var errorType, errorString = "N/A", "N/A"
	for _, h := range headers {
		if h.Key == "error_type" {
			errorType = string(h.Value)
		}
		if h.Key == "error_string" {
			errorString = string(h.Value)
		}
	}
	return errorType, errorString
}

// parsePartitionOffset parses "partition:offset", e.g. "0:123".
func parsePartitionOffset(arg string) (int32, int64, error) {
	parts := strings.Split(arg, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid format %q, expected partition:offset such as 0:123", arg)
	}
	partition, err := strconv.ParseInt(parts[0], 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid partition: %w", err)
	}
	offset, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid offset: %w", err)
	}
	return int32(partition), offset, nil
}
