package app

import (
	"database/sql"
	"time"

	"github.com/RezaEskandarii/workflowq/internal/alert"
	"github.com/RezaEskandarii/workflowq/internal/message_broker"
	"github.com/RezaEskandarii/workflowq/internal/practice"
	"github.com/redis/go-redis/v9"
)

// ContainerOption configures Container creation. Used for testing and customization.
type ContainerOption func(*containerConfig)

type containerConfig struct {
	// Optional: inject custom connections instead of creating them from config
	db     *sql.DB
	redis  *redis.Client
	broker message_broker.MessageBroker
	topic  string

	practice practice.Client
	sender   alert.Sender
	now      func() time.Time
}

// WithDB injects a custom database connection. Useful for testing.
func WithDB(db *sql.DB) ContainerOption {
	return func(c *containerConfig) {
		c.db = db
	}
}

// WithRedis injects a custom Redis client. Maintenance locks then go through Redis.
func WithRedis(redis *redis.Client) ContainerOption {
	return func(c *containerConfig) {
		c.redis = redis
	}
}

// WithMessageBroker injects the broker notification events are published to.
func WithMessageBroker(broker message_broker.MessageBroker, topic string) ContainerOption {
	return func(c *containerConfig) {
		c.broker = broker
		c.topic = topic
	}
}

func WithPracticeClient(client practice.Client) ContainerOption {
	return func(c *containerConfig) {
		c.practice = client
	}
}

func WithAlertSender(sender alert.Sender) ContainerOption {
	return func(c *containerConfig) {
		c.sender = sender
	}
}

// WithClock overrides time for the tracker, processor and maintenance jobs.
func WithClock(now func() time.Time) ContainerOption {
	return func(c *containerConfig) {
		c.now = now
	}
}
