package kafka

import (
	"context"
	"errors"
	"fmt"
	"io"
	"ms-booking/internal/logger"

	"github.com/segmentio/kafka-go"
)

// Handler processes one message. A returned error is logged and the offset is
// still committed; handlers must be idempotent and dead-letter on their own.
type Handler func(ctx context.Context, msg kafka.Message) error

type Consumer struct {
	reader *kafka.Reader
	logger *logger.Logger
}

// NewConsumer creates a consumer-group reader for the given topic.
func NewConsumer(brokers []string, topic, groupID string, log *logger.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return &Consumer{reader: reader, logger: log}
}

// Run reads until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context, handle Handler) error {
	topic := c.reader.Config().Topic
	c.logger.Info("KAFKA", fmt.Sprintf("Consumer started on %s", topic))
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return nil
			}
			c.logger.Error("KAFKA", fmt.Sprintf("Error reading message from %s: %v", topic, err))
			continue
		}

		if err := handle(ctx, msg); err != nil {
			c.logger.Error("KAFKA", fmt.Sprintf("Handler failed for %s offset %d: %v", topic, msg.Offset, err))
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.Error("KAFKA", fmt.Sprintf("Commit failed for %s offset %d: %v", topic, msg.Offset, err))
		}
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
