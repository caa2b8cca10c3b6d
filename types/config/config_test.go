package config

import (
	"errors"
	"testing"
	"time"

	"github.com/RezaEskandarii/workflowq/custom_errors"
	"github.com/RezaEskandarii/workflowq/internal/constants"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStorageDriver_String(t *testing.T) {
	tests := []struct {
		name     string
		driver   StorageDriver
		expected string
	}{
		{name: "Postgres driver", driver: Postgres, expected: "postgres"},
		{name: "Memory driver", driver: Memory, expected: "memory"},
		{name: "Unknown driver", driver: StorageDriver(999), expected: "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.driver.String())
		})
	}
}

func TestBrokerDriver_UnmarshalText(t *testing.T) {
	var d BrokerDriver
	require.NoError(t, d.UnmarshalText([]byte("Kafka")))
	assert.Equal(t, Kafka, d)
	require.NoError(t, d.UnmarshalText([]byte("")))
	assert.Equal(t, NoBroker, d)
	assert.Error(t, d.UnmarshalText([]byte("nats")))
}

func TestNewWorkflowConfig_Defaults(t *testing.T) {
	cfg, err := NewWorkflowConfig("test-instance")
	require.NoError(t, err)

	assert.Equal(t, "test-instance", cfg.Instance)
	assert.Equal(t, Postgres, cfg.StorageDriver)
	assert.Equal(t, constants.DefaultBatchSize, cfg.BatchSize)
	assert.Equal(t, constants.DefaultBatchSize, cfg.Workers())
	assert.Equal(t, constants.DefaultMaxAttempts, cfg.DefaultMaxAttempts)
	assert.Equal(t, 60*time.Second, cfg.ProcessingBudget)
	assert.Equal(t, 24*time.Hour, cfg.BackoffCap)
	assert.Equal(t, 10*time.Minute, cfg.Maintenance.StuckThreshold)
	assert.Equal(t, uint(8080), cfg.HTTP.Port)
}

func TestNewWorkflowConfig_CollectsValidationErrors(t *testing.T) {
	cfg, err := NewWorkflowConfig("",
		WithBatchSize(0),
		WithWorkerCount(-1),
		WithAdminConfig("admin", "", ""),
	)
	require.Error(t, err)
	assert.Nil(t, cfg)

	var validationErr *custom_errors.ValidationError
	require.True(t, errors.As(err, &validationErr))
	assert.Len(t, validationErr.Errors, 4)
}

func TestWithPostgresConfig_RequiresPostgresDriver(t *testing.T) {
	_, err := NewWorkflowConfig("i",
		WithStorageDriver(Memory),
		WithPostgresConfig(PostgresConfig{ConnectionUrl: "postgres://localhost/db"}),
	)
	assert.ErrorContains(t, err, "cannot set Postgres client when driver is memory")
}

func TestWithKafkaConfig_SelectsBroker(t *testing.T) {
	cfg, err := NewWorkflowConfig("i", WithKafkaConfig(KafkaConfig{Brokers: []string{"localhost:9092"}, Topic: "t"}))
	require.NoError(t, err)
	assert.Equal(t, Kafka, cfg.BrokerDriver)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("INSTANCE", "node-a")
	t.Setenv("STORAGE_DRIVER", "memory")
	t.Setenv("BATCH_SIZE", "25")
	t.Setenv("WORKER_COUNT", "4")
	t.Setenv("BACKOFF_CAP", "2h")
	t.Setenv("ALERT_RECIPIENTS", "ops@example.com,cto@example.com")
	t.Setenv("BROKER_DRIVER", "none")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "node-a", cfg.Instance)
	assert.Equal(t, Memory, cfg.StorageDriver)
	assert.Equal(t, 25, cfg.BatchSize)
	assert.Equal(t, 4, cfg.Workers())
	assert.Equal(t, 2*time.Hour, cfg.BackoffCap)
	assert.Equal(t, []string{"ops@example.com", "cto@example.com"}, cfg.Alerts.Recipients)
	assert.Equal(t, "@every 15m", cfg.Maintenance.AutoResolveSchedule)
}

func TestLoad_PostgresRequiresURL(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "postgres")
	t.Setenv("PG_URL", "")

	_, err := Load()
	assert.ErrorContains(t, err, "connection URL is required")
}
