// Command replay publishes recorded posts to the Kafka stream topic so the
// relay can be exercised end to end with STREAM_SOURCE=kafka. Brokers and
// topic come from KAFKA_BROKERS and KAFKA_TOPIC unless overridden by flags.
//
// Usage:
//
//	go run ./cmd/replay -in testdata/messages.tsv -interval 2s
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	kafkaadapter "github.com/couchcryptid/earthquake-notify/internal/adapter/kafka"
	"github.com/couchcryptid/earthquake-notify/internal/config"
	"github.com/couchcryptid/earthquake-notify/internal/domain"
	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	in := flag.String("in", "", "file of account<TAB>text lines")
	brokers := flag.String("brokers", sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092"), "comma-separated Kafka brokers")
	topic := flag.String("topic", sharedcfg.EnvOrDefault("KAFKA_TOPIC", "earthquake-tweets"), "Kafka topic")
	interval := flag.Duration("interval", 0, "pause between posts; 0 publishes in one batch")
	flag.Parse()

	if *in == "" {
		flag.Usage()
		return fmt.Errorf("missing required flag: -in")
	}

	f, err := os.Open(*in)
	if err != nil {
		return err
	}
	defer f.Close()

	msgs, err := domain.ReadMessages(f)
	if err != nil {
		return fmt.Errorf("reading %s: %w", *in, err)
	}

	logger := sharedobs.NewLogger("info", "text")
	cfg := &config.Config{
		KafkaBrokers: sharedcfg.ParseBrokers(*brokers),
		KafkaTopic:   *topic,
	}
	writer := kafkaadapter.NewWriter(cfg, logger)
	defer writer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *interval <= 0 {
		if err := writer.Publish(ctx, msgs...); err != nil {
			return err
		}
		logger.Info("replay complete", "count", len(msgs), "topic", *topic)
		return nil
	}

	for i, msg := range msgs {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(*interval):
			}
		}
		if err := writer.Publish(ctx, msg); err != nil {
			return fmt.Errorf("publishing %s: %w", msg.ID, err)
		}
		logger.Info("post published", "id", msg.ID, "account", msg.Account)
	}
	logger.Info("replay complete", "count", len(msgs), "topic", *topic)
	return nil
}
