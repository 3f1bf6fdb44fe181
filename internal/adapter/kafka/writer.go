package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/earthquake-notify/internal/config"
	"github.com/couchcryptid/earthquake-notify/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// Writer publishes posts to the stream topic. The replay command uses it to
// feed recorded posts through the relay.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

// Publish serializes and writes msgs in a single WriteMessages call.
// Messages are keyed by account so each publisher's posts stay ordered.
func (w *Writer) Publish(ctx context.Context, msgs ...domain.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	out := make([]kafkago.Message, len(msgs))
	for i := range msgs {
		m, err := serializeToMessage(msgs[i])
		if err != nil {
			return err
		}
		out[i] = m
	}
	if err := w.writer.WriteMessages(ctx, out...); err != nil {
		return fmt.Errorf("write messages: %w", err)
	}
	w.logger.Debug("messages published", "count", len(out), "topic", w.writer.Topic)
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a post into a Kafka message.
func serializeToMessage(msg domain.Message) (kafkago.Message, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize message: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(msg.Account),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "account", Value: []byte(msg.Account)},
			{Key: "received_at", Value: []byte(msg.ReceivedAt.Format(time.RFC3339))},
		},
	}, nil
}
