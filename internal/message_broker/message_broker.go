package message_broker

import (
	"context"
	"encoding/json"
	"fmt"
)

// MessageBroker fans messages out to delivery channels outside this process.
// topic is a queue name for RabbitMQ and a topic for Kafka.
type MessageBroker interface {
	Publish(ctx context.Context, topic string, message []byte) error
	Close() error
}

// PublishJSON encodes v and publishes it on topic.
func PublishJSON(ctx context.Context, broker MessageBroker, topic string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	if err := broker.Publish(ctx, topic, body); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}
