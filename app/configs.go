package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/RezaEskandarii/workflowq/internal/alert"
	"github.com/RezaEskandarii/workflowq/internal/lock"
	"github.com/RezaEskandarii/workflowq/internal/message_broker"
	"github.com/RezaEskandarii/workflowq/internal/practice"
	"github.com/RezaEskandarii/workflowq/internal/store"
	"github.com/RezaEskandarii/workflowq/internal/store/memory"
	"github.com/RezaEskandarii/workflowq/internal/store/postgres"
	"github.com/RezaEskandarii/workflowq/types/config"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/redis/go-redis/v9"
)

// redisLockTTL bounds how long a crashed instance can hold a maintenance lock.
const redisLockTTL = 5 * time.Minute

type stores struct {
	queue         store.QueueStore
	errors        store.ErrorStore
	users         store.UserStore
	contracts     store.ContractStore
	notifications store.NotificationStore
	invoices      store.InvoiceStore
	runs          store.AutomationRunStore
	operators     store.OperatorStore
}

func createStores(driver config.StorageDriver, db *sql.DB) stores {
	if driver == config.Memory {
		return stores{
			queue:         memory.NewQueueStore(),
			errors:        memory.NewErrorStore(),
			users:         memory.NewUserStore(),
			contracts:     memory.NewContractStore(),
			notifications: memory.NewNotificationStore(),
			invoices:      memory.NewInvoiceStore(),
			runs:          memory.NewAutomationRunStore(),
			operators:     memory.NewOperatorStore(),
		}
	}
	return stores{
		queue:         postgres.NewPostgresQueueStore(db),
		errors:        postgres.NewPostgresErrorStore(db),
		users:         postgres.NewPostgresUserStore(db),
		contracts:     postgres.NewPostgresContractStore(db),
		notifications: postgres.NewPostgresNotificationStore(db),
		invoices:      postgres.NewPostgresInvoiceStore(db),
		runs:          postgres.NewPostgresAutomationRunStore(db),
		operators:     postgres.NewPostgresOperatorStore(db),
	}
}

// createDistributedLockManager prefers Redis when configured and falls back to
// Postgres advisory locks. The memory driver runs single-instance without locks.
func createDistributedLockManager(driver config.StorageDriver, db *sql.DB, redisClient *redis.Client) lock.DistributedLockManager {
	if redisClient != nil {
		return lock.NewRedisDistributedLockManager(redisClient, redisLockTTL)
	}
	if driver == config.Postgres && db != nil {
		return lock.NewPostgresDistributedLockManager(db)
	}
	return nil
}

// createMessageBroker returns the broker and the topic notification events are
// published to. Both are zero when no broker is configured.
func createMessageBroker(cfg *config.WorkflowConfig) (message_broker.MessageBroker, string, error) {
	switch cfg.BrokerDriver {
	case config.RabbitMQ:
		broker, err := message_broker.NewRabbitMQ(cfg.RabbitMQConfig.URL, cfg.RabbitMQConfig.Exchange, cfg.RabbitMQConfig.Queue)
		if err != nil {
			return nil, "", fmt.Errorf("init rabbitmq: %w", err)
		}
		return broker, cfg.RabbitMQConfig.Queue, nil
	case config.Kafka:
		broker, err := message_broker.NewKafka(cfg.KafkaConfig.Brokers)
		if err != nil {
			return nil, "", fmt.Errorf("init kafka: %w", err)
		}
		return broker, cfg.KafkaConfig.Topic, nil
	default:
		return nil, "", nil
	}
}

// createAlertSender uses SES once alert recipients are configured. Without
// recipients critical alerts are only logged.
func createAlertSender(ctx context.Context, cfg config.AlertConfig, logger *slog.Logger) (alert.Sender, error) {
	if len(cfg.Recipients) == 0 {
		return alert.NewLogSender(logger), nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	sender, err := alert.NewSESSender(awsCfg, cfg.From)
	if err != nil {
		return nil, err
	}
	return sender, nil
}

func createPracticeClient(cfg config.PracticeConfig, logger *slog.Logger) practice.Client {
	if cfg.URL == "" {
		logger.Warn("PRACTICE_API_URL not set, using an empty in-memory practice client")
		return practice.NewStaticClient()
	}
	return practice.NewHTTPClient(cfg.URL, cfg.Token, cfg.Timeout)
}

func openRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}
