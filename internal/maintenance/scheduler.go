package maintenance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/RezaEskandarii/workflowq/internal/constants"
	"github.com/RezaEskandarii/workflowq/internal/errortracker"
	"github.com/RezaEskandarii/workflowq/internal/lock"
	"github.com/RezaEskandarii/workflowq/internal/store"
	"github.com/RezaEskandarii/workflowq/types"
	"github.com/RezaEskandarii/workflowq/types/config"
	"github.com/robfig/cron/v3"
)

// ErrLockHeld is returned by the manual entry points when another instance is
// already running the same sweep.
var ErrLockHeld = errors.New("another instance holds the maintenance lock")

// ErrStuck is the failure filed for items the stuck sweep gave up on.
var ErrStuck = errors.New("item stalled in processing")

// Resolver is the error tracker surface the sweeps use.
type Resolver interface {
	AutoResolve(ctx context.Context) (int, error)
	CaptureError(ctx context.Context, errorType string, err error, fields map[string]any, keys types.CorrelationKeys) (*types.ErrorRecord, error)
}

// Ticker runs one processing pass over the queue.
type Ticker interface {
	ProcessDue(ctx context.Context) (types.TickSummary, error)
}

type Scheduler struct {
	queue   store.QueueStore
	tracker Resolver
	ticker  Ticker
	lock    lock.DistributedLockManager
	cfg     config.MaintenanceConfig
	logger  *slog.Logger
	now     func() time.Time
	cron    *cron.Cron
}

type Option func(*Scheduler)

func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		s.now = now
	}
}

// WithTicker enables the self-trigger job when SelfTriggerSchedule is set.
func WithTicker(t Ticker) Option {
	return func(s *Scheduler) {
		s.ticker = t
	}
}

// New builds a scheduler. lock may be nil for single-instance deployments.
func New(
	queue store.QueueStore,
	tracker Resolver,
	l lock.DistributedLockManager,
	cfg config.MaintenanceConfig,
	logger *slog.Logger,
	opts ...Option,
) *Scheduler {
	if cfg.StuckThreshold <= 0 {
		cfg.StuckThreshold = constants.DefaultStuckThreshold
	}
	if cfg.MaxStuckRecoveries < 0 {
		cfg.MaxStuckRecoveries = constants.DefaultMaxStuckRecoveries
	}
	s := &Scheduler{
		queue:   queue,
		tracker: tracker,
		lock:    l,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
		cron:    cron.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start registers the jobs and runs them until ctx is cancelled. It waits for
// running jobs to finish before returning.
func (s *Scheduler) Start(ctx context.Context) error {
	if err := s.register(ctx); err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Info("maintenance scheduler started", "jobs", len(s.cron.Entries()))

	<-ctx.Done()
	<-s.cron.Stop().Done()
	s.logger.Info("maintenance scheduler stopped")
	return nil
}

type job struct {
	name     string
	schedule string
	run      func(context.Context) error
}

func (s *Scheduler) register(ctx context.Context) error {
	jobs := []job{
		{"auto_resolve", s.cfg.AutoResolveSchedule, func(ctx context.Context) error {
			_, err := s.AutoResolve(ctx)
			return err
		}},
		{"stuck_recovery", s.cfg.StuckRecoverySchedule, func(ctx context.Context) error {
			_, err := s.RecoverStuck(ctx)
			return err
		}},
	}
	if s.ticker != nil && s.cfg.SelfTriggerSchedule != "" {
		jobs = append(jobs, job{"self_trigger", s.cfg.SelfTriggerSchedule, func(ctx context.Context) error {
			_, err := s.ticker.ProcessDue(ctx)
			return err
		}})
	}

	for _, j := range jobs {
		if j.schedule == "" {
			s.logger.Info("maintenance job disabled", "job", j.name)
			continue
		}
		_, err := s.cron.AddFunc(j.schedule, func() {
			err := j.run(ctx)
			switch {
			case errors.Is(err, ErrLockHeld):
				s.logger.Debug("maintenance job skipped, lock held elsewhere", "job", j.name)
			case err != nil:
				s.logger.Error("maintenance job failed", "job", j.name, "err", err)
			}
		})
		if err != nil {
			return fmt.Errorf("invalid schedule %q for %s: %w", j.schedule, j.name, err)
		}
	}
	return nil
}

// AutoResolve closes error records that have been quiet for the configured window.
func (s *Scheduler) AutoResolve(ctx context.Context) (int, error) {
	var n int
	err := s.withLock(ctx, constants.AutoResolveLock, func() error {
		var err error
		n, err = s.tracker.AutoResolve(ctx)
		return err
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// RecoverStuck requeues items stuck in processing past the threshold and fails
// the ones out of recoveries, filing each failure with the error tracker.
func (s *Scheduler) RecoverStuck(ctx context.Context) (*types.RecoveryResult, error) {
	var result *types.RecoveryResult
	err := s.withLock(ctx, constants.StuckRecoveryLock, func() error {
		now := s.now().UTC()
		var err error
		result, err = s.queue.RecoverStuck(ctx, now.Add(-s.cfg.StuckThreshold), s.cfg.MaxStuckRecoveries, now)
		if err != nil {
			return fmt.Errorf("recover stuck items: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, item := range result.Requeued {
		s.logger.Warn("stuck item requeued", "item_id", item.ID, "workflow_type", item.WorkflowType, "recoveries", item.Recoveries)
	}
	for _, item := range result.Failed {
		s.logger.Error("stuck item failed", "item_id", item.ID, "workflow_type", item.WorkflowType, "recoveries", item.Recoveries)
		fields := map[string]any{
			errortracker.ContextWorkflowType: item.WorkflowType.String(),
			errortracker.ContextAttempts:     item.Attempts,
			errortracker.ContextMaxAttempts:  item.MaxAttempts,
			errortracker.ContextPermanent:    true,
			"recoveries":                     item.Recoveries,
		}
		err := fmt.Errorf("%w: %s after %d recoveries", ErrStuck, item.WorkflowType, item.Recoveries)
		if _, capErr := s.tracker.CaptureError(ctx, StuckItemType(item.WorkflowType), err, fields, item.Keys()); capErr != nil {
			s.logger.Error("capture stuck item", "item_id", item.ID, "err", capErr)
		}
	}
	return result, nil
}

func StuckItemType(workflowType types.WorkflowType) string {
	return "stuck_item:" + workflowType.Slug()
}

func (s *Scheduler) withLock(ctx context.Context, lockID int, fn func() error) error {
	if s.lock == nil {
		return fn()
	}
	ok, err := s.lock.TryAcquire(ctx, lockID)
	if err != nil {
		return fmt.Errorf("acquire lock %d: %w", lockID, err)
	}
	if !ok {
		return ErrLockHeld
	}
	defer func() {
		if err := s.lock.Release(context.WithoutCancel(ctx), lockID); err != nil {
			s.logger.Error("release lock", "lock_id", lockID, "err", err)
		}
	}()
	return fn()
}
