package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/RezaEskandarii/workflowq/client"
	"github.com/RezaEskandarii/workflowq/internal/alert"
	"github.com/RezaEskandarii/workflowq/internal/errortracker"
	"github.com/RezaEskandarii/workflowq/internal/lock"
	"github.com/RezaEskandarii/workflowq/internal/maintenance"
	"github.com/RezaEskandarii/workflowq/internal/message_broker"
	"github.com/RezaEskandarii/workflowq/internal/notify"
	"github.com/RezaEskandarii/workflowq/internal/practice"
	"github.com/RezaEskandarii/workflowq/internal/processor"
	"github.com/RezaEskandarii/workflowq/internal/store"
	"github.com/RezaEskandarii/workflowq/internal/store/postgres"
	"github.com/RezaEskandarii/workflowq/internal/workflow"
	"github.com/RezaEskandarii/workflowq/types/config"
	"github.com/RezaEskandarii/workflowq/web"
	"github.com/redis/go-redis/v9"
)

// Container holds all application dependencies. It is the single source of truth
// for dependency injection and ensures connections and services are created once.
type Container struct {
	Config *config.WorkflowConfig
	Logger *slog.Logger

	// Storage connections (created once, shared by all stores)
	DB    *sql.DB
	Redis *redis.Client

	QueueStore        store.QueueStore
	ErrorStore        store.ErrorStore
	UserStore         store.UserStore
	ContractStore     store.ContractStore
	NotificationStore store.NotificationStore
	InvoiceStore      store.InvoiceStore
	RunStore          store.AutomationRunStore
	OperatorStore     store.OperatorStore

	// Infrastructure
	LockManager   lock.DistributedLockManager
	MessageBroker message_broker.MessageBroker
	Practice      practice.Client
	AlertSender   alert.Sender

	Notifier    *notify.Dispatcher
	Registry    *workflow.Registry
	Tracker     *errortracker.Tracker
	Processor   *processor.Processor
	Maintenance *maintenance.Scheduler
	Workflows   *client.WorkflowManager
}

// NewContainer creates and wires all dependencies. Single entry point for DI.
// Call this once per application lifecycle.
func NewContainer(ctx context.Context, cfg *config.WorkflowConfig, logger *slog.Logger, opts ...ContainerOption) (*Container, error) {
	opt := &containerConfig{}
	for _, o := range opts {
		o(opt)
	}

	c := &Container{Config: cfg, Logger: logger, DB: opt.db, Redis: opt.redis}
	if err := c.initConnections(ctx); err != nil {
		c.Close()
		return nil, err
	}

	s := createStores(cfg.StorageDriver, c.DB)
	c.QueueStore = s.queue
	c.ErrorStore = s.errors
	c.UserStore = s.users
	c.ContractStore = s.contracts
	c.NotificationStore = s.notifications
	c.InvoiceStore = s.invoices
	c.RunStore = s.runs
	c.OperatorStore = s.operators
	c.LockManager = createDistributedLockManager(cfg.StorageDriver, c.DB, c.Redis)

	topic := opt.topic
	c.MessageBroker = opt.broker
	if c.MessageBroker == nil {
		broker, brokerTopic, err := createMessageBroker(cfg)
		if err != nil {
			c.Close()
			return nil, err
		}
		c.MessageBroker, topic = broker, brokerTopic
	}

	c.Practice = opt.practice
	if c.Practice == nil {
		c.Practice = createPracticeClient(cfg.Practice, logger)
	}
	c.AlertSender = opt.sender
	if c.AlertSender == nil {
		sender, err := createAlertSender(ctx, cfg.Alerts, logger)
		if err != nil {
			c.Close()
			return nil, err
		}
		c.AlertSender = sender
	}

	c.Notifier = notify.NewDispatcher(c.NotificationStore, c.MessageBroker, topic, logger)

	c.Registry = workflow.NewRegistry()
	deps := &workflow.Deps{
		Practice:      c.Practice,
		Users:         c.UserStore,
		Contracts:     c.ContractStore,
		Invoices:      c.InvoiceStore,
		Notifications: c.NotificationStore,
		Runs:          c.RunStore,
		Notifier:      c.Notifier,
		AppBaseURL:    strings.TrimRight(cfg.AppBaseURL, "/"),
		Logger:        logger,
		Now:           opt.now,
	}
	if err := workflow.RegisterBuiltin(c.Registry, deps); err != nil {
		c.Close()
		return nil, fmt.Errorf("register workflows: %w", err)
	}

	trackerOpts := []errortracker.Option{errortracker.WithAutoResolveWindow(cfg.Maintenance.AutoResolveWindow)}
	processorOpts := []processor.Option{}
	maintenanceOpts := []maintenance.Option{}
	if opt.now != nil {
		trackerOpts = append(trackerOpts, errortracker.WithClock(opt.now))
		processorOpts = append(processorOpts, processor.WithClock(opt.now))
		maintenanceOpts = append(maintenanceOpts, maintenance.WithClock(opt.now))
	}
	if c.LockManager != nil {
		processorOpts = append(processorOpts, processor.WithLock(c.LockManager))
	}

	directory := alert.NewStaticDirectory(cfg.Alerts.Recipients, cfg.Alerts.EscalationUserIDs)
	c.Tracker = errortracker.New(c.ErrorStore, c.RunStore, c.AlertSender, directory, c.Notifier, logger, trackerOpts...)

	c.Processor = processor.New(c.QueueStore, c.RunStore, c.Registry, c.Tracker, logger, processor.Config{
		Instance:   cfg.Instance,
		BatchSize:  cfg.BatchSize,
		Workers:    cfg.Workers(),
		Budget:     cfg.ProcessingBudget,
		BackoffCap: cfg.BackoffCap,
	}, processorOpts...)

	maintenanceOpts = append(maintenanceOpts, maintenance.WithTicker(c.Processor))
	c.Maintenance = maintenance.New(c.QueueStore, c.Tracker, c.LockManager, cfg.Maintenance, logger, maintenanceOpts...)

	c.Workflows = client.NewWorkflowManager(c.QueueStore, logger, cfg.DefaultMaxAttempts)
	return c, nil
}

func (c *Container) initConnections(ctx context.Context) error {
	if c.Config.StorageDriver == config.Postgres && c.DB == nil {
		db, err := postgres.Open(ctx, c.Config.PostgresConfig.ConnectionUrl)
		if err != nil {
			return fmt.Errorf("init storage: %w", err)
		}
		c.DB = db
	}
	if c.Config.RedisConfig.Enabled() && c.Redis == nil {
		client, err := openRedis(ctx, c.Config.RedisConfig)
		if err != nil {
			return fmt.Errorf("init redis: %w", err)
		}
		c.Redis = client
	}
	return nil
}

// Migrate applies the schema when running on Postgres.
func (c *Container) Migrate(ctx context.Context) error {
	if c.DB == nil {
		return nil
	}
	return postgres.Migrate(ctx, c.DB)
}

// EnsureAdmin creates or updates the configured operator account.
func (c *Container) EnsureAdmin(ctx context.Context) error {
	if !c.Config.Admin.Enabled() {
		return nil
	}
	if _, err := c.OperatorStore.Create(ctx, c.Config.Admin.Username, c.Config.Admin.Password); err != nil {
		return fmt.Errorf("create admin operator: %w", err)
	}
	return nil
}

// HTTPServer builds the web surface over the container's services.
func (c *Container) HTTPServer() *web.Server {
	serverCfg := web.ServerConfig{
		TriggerSecret: c.Config.HTTP.TriggerSecret,
		SecureCookie:  strings.HasPrefix(c.Config.AppBaseURL, "https://"),
	}
	if c.Config.Admin.Enabled() {
		serverCfg.AdminSecret = c.Config.Admin.SecretKey
		serverCfg.AllowedOrigins = []string{strings.TrimRight(c.Config.AppBaseURL, "/")}
	}
	return web.NewServer(c.Workflows, c.Processor, c.Tracker, c.Maintenance, c.OperatorStore, c.Logger, serverCfg)
}

// Close releases every connection the container holds.
func (c *Container) Close() error {
	var errs []error
	if c.MessageBroker != nil {
		errs = append(errs, c.MessageBroker.Close())
	}
	if c.Redis != nil {
		errs = append(errs, c.Redis.Close())
	}
	if c.DB != nil {
		errs = append(errs, c.DB.Close())
	}
	return errors.Join(errs...)
}
