package kafka

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"

	"github.com/segmentio/kafka-go"

	"attendify/internal/logger"
)

// EnsureTopicsExist creates the given topics on the cluster controller.
// Topics that already exist are left alone.
func EnsureTopicsExist(ctx context.Context, brokers []string, topics []string, log *logger.Logger) error {
	if len(brokers) == 0 {
		return errors.New("no kafka brokers configured")
	}

	conn, err := kafka.DialContext(ctx, "tcp", brokers[0])
	if err != nil {
		return err
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return err
	}
	controllerConn, err := kafka.DialContext(ctx, "tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		return err
	}
	defer controllerConn.Close()

	for _, topic := range topics {
		err = controllerConn.CreateTopics(kafka.TopicConfig{
			Topic:             topic,
			NumPartitions:     1,
			ReplicationFactor: 1,
		})
		switch {
		case errors.Is(err, kafka.TopicAlreadyExists):
			log.Debug("KAFKA", fmt.Sprintf("Topic %s already exists", topic))
		case err != nil:
			log.Warn("KAFKA", fmt.Sprintf("Error creating topic %s: %v", topic, err))
		default:
			log.Info("KAFKA", fmt.Sprintf("Created topic: %s", topic))
		}
	}
	return nil
}
