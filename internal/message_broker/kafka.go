package message_broker

import (
	"context"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
)

const kafkaWriteTimeout = 3 * time.Second

// Kafka publishes through one shared writer; the topic is set per message.
type Kafka struct {
	writer *kafka.Writer
}

func NewKafka(brokers []string) (*Kafka, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka: at least one broker is required")
	}
	return &Kafka{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Balancer:               &kafka.LeastBytes{},
			RequiredAcks:           kafka.RequireOne,
			AllowAutoTopicCreation: true,
		},
	}, nil
}

func (k *Kafka) Publish(ctx context.Context, topic string, message []byte) error {
	cctx, cancel := context.WithTimeout(ctx, kafkaWriteTimeout)
	defer cancel()

	return k.writer.WriteMessages(cctx, kafka.Message{
		Topic: topic,
		Value: message,
		Time:  time.Now(),
	})
}

func (k *Kafka) Close() error {
	return k.writer.Close()
}
