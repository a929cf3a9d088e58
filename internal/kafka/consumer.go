package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/segmentio/kafka-go"

	"attendify/internal/logger"
	"attendify/internal/models"
)

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// Consumer follows the claim-transferred topic.
type Consumer struct {
	reader messageReader
	logger *logger.Logger
}

// NewConsumer creates a new Kafka consumer for the given topic and group
func NewConsumer(brokers []string, topic, groupID string, log *logger.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})
	return &Consumer{reader: reader, logger: log}
}

// Run reads messages until ctx is cancelled. Undecodable messages are
// logged and skipped; a handler error stops the loop.
func (c *Consumer) Run(ctx context.Context, handler func(models.ClaimTransferredMessage) error) error {
	c.logger.Info("KAFKA", "Claim consumer started")

	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("read message: %w", err)
		}

		var claim models.ClaimTransferredMessage
		if err := json.Unmarshal(msg.Value, &claim); err != nil {
			c.logger.Warn("KAFKA", fmt.Sprintf("Failed to unmarshal message at offset %d: %v", msg.Offset, err))
			continue
		}

		c.logger.LogKafka("receive", msg.Topic, fmt.Sprintf("%s claimed %s", claim.Wallet, claim.NFTokenID))
		if err := handler(claim); err != nil {
			return err
		}
	}
}

// Close gracefully shuts down the Kafka reader
func (c *Consumer) Close() error {
	return c.reader.Close()
}
