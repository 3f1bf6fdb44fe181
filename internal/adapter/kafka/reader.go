package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/earthquake-notify/internal/config"
	"github.com/couchcryptid/earthquake-notify/internal/domain"
	"github.com/couchcryptid/storm-data-shared/retry"
	kafkago "github.com/segmentio/kafka-go"
)

// Reader consumes posts from a Kafka topic. It implements relay.Stream as an
// alternative to the social-media stream.
type Reader struct {
	reader *kafkago.Reader
	logger *slog.Logger
}

// NewReader creates a consumer-group reader for the configured topic.
func NewReader(cfg *config.Config, logger *slog.Logger) *Reader {
	r := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:  cfg.KafkaBrokers,
		GroupID:  cfg.KafkaGroupID,
		Topic:    cfg.KafkaTopic,
		MinBytes: 1,
		MaxBytes: 1 << 20,
	})
	return &Reader{reader: r, logger: logger}
}

// Run fetches posts one at a time and hands them to h, committing each offset
// after h returns. Fetch errors are reported and retried until ctx is done.
func (r *Reader) Run(ctx context.Context, h domain.StreamHandler) error {
	h.HandleLifecycle(domain.LifecycleConnected, nil)

	// Exponential backoff: start at 200ms, double each retry, cap at 5s.
	backoff := 200 * time.Millisecond
	maxBackoff := 5 * time.Second
	failing := false

	for {
		msg, err := r.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			h.HandleLifecycle(domain.LifecycleError, fmt.Errorf("fetch message: %w", err))
			failing = true
			if !retry.SleepWithContext(ctx, backoff) {
				return nil
			}
			backoff = retry.NextBackoff(backoff, maxBackoff)
			continue
		}
		if failing {
			h.HandleLifecycle(domain.LifecycleReconnected, nil)
			failing = false
			backoff = 200 * time.Millisecond
		}

		post, err := mapMessage(msg)
		if err != nil {
			r.logger.Warn("skipping undecodable message",
				"error", err,
				"topic", msg.Topic,
				"partition", msg.Partition,
				"offset", msg.Offset,
			)
		} else {
			h.HandleMessage(ctx, post)
		}

		if err := r.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			r.logger.Warn("commit offset failed", "error", err,
				"topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset)
		}
	}
}

func (r *Reader) Close() error {
	return r.reader.Close()
}

// mapMessage decodes a JSON post. A missing ID is derived from the message
// position and a missing timestamp from the message time.
func mapMessage(msg kafkago.Message) (domain.Message, error) {
	var post domain.Message
	if err := json.Unmarshal(msg.Value, &post); err != nil {
		return domain.Message{}, fmt.Errorf("decode message: %w", err)
	}
	if post.Account == "" {
		post.Account = string(msg.Key)
	}
	if post.ID == "" {
		post.ID = fmt.Sprintf("%s-%d-%d", msg.Topic, msg.Partition, msg.Offset)
	}
	if post.ReceivedAt.IsZero() {
		post.ReceivedAt = msg.Time.UTC()
	}
	return post, nil
}
