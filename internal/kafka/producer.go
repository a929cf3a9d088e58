package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"attendify/internal/logger"
	"attendify/internal/models"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes attendance events. Messages are keyed by custodial
// account so all records of one event land on the same partition.
type Producer struct {
	Writer messageWriter
	Topics Topics
	Logger *logger.Logger
}

type Topics struct {
	EventCreated     string
	ClaimTransferred string
}

func NewProducer(brokers []string, topics Topics, log *logger.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
	return &Producer{Writer: writer, Topics: topics, Logger: log}
}

// PublishEventCreated streams a newly minted event to Kafka
func (p *Producer) PublishEventCreated(ctx context.Context, msg models.EventCreatedMessage) error {
	return p.publish(ctx, p.Topics.EventCreated, msg.CustodialAccount, msg)
}

// PublishClaimTransferred streams a created transfer offer to Kafka
func (p *Producer) PublishClaimTransferred(ctx context.Context, msg models.ClaimTransferredMessage) error {
	return p.publish(ctx, p.Topics.ClaimTransferred, msg.CustodialAccount, msg)
}

func (p *Producer) publish(ctx context.Context, topic, key string, payload any) error {
	msgBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s message: %w", topic, err)
	}

	if err := p.Writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: msgBytes,
	}); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}

	if p.Logger != nil {
		p.Logger.LogKafka("publish", topic, "key="+key+" bytes="+strconv.Itoa(len(msgBytes)))
	}
	return nil
}

func (p *Producer) Close() error {
	return p.Writer.Close()
}

// NoopPublisher satisfies the publisher interfaces when Kafka is disabled.
type NoopPublisher struct{}

func (NoopPublisher) PublishEventCreated(context.Context, models.EventCreatedMessage) error {
	return nil
}

func (NoopPublisher) PublishClaimTransferred(context.Context, models.ClaimTransferredMessage) error {
	return nil
}

func (NoopPublisher) Close() error { return nil }
