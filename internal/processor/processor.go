package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/RezaEskandarii/workflowq/internal/constants"
	"github.com/RezaEskandarii/workflowq/internal/lock"
	"github.com/RezaEskandarii/workflowq/internal/state"
	"github.com/RezaEskandarii/workflowq/internal/store"
	"github.com/RezaEskandarii/workflowq/internal/workflow"
	"github.com/RezaEskandarii/workflowq/types"
	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

// ErrBudgetExceeded is the failure recorded for items still running when the
// tick's wall-clock budget runs out.
var ErrBudgetExceeded = errors.New("processing budget exceeded")

// outcomeWriteTimeout bounds the status writes made after the budget expired.
const outcomeWriteTimeout = 10 * time.Second

type Dispatcher interface {
	Dispatch(ctx context.Context, item types.QueueItem) error
}

// Reporter files failures with the error tracker.
type Reporter interface {
	CaptureWorkflowFailure(ctx context.Context, item types.QueueItem, err error, runID *uuid.UUID) (*types.ErrorRecord, error)
	CaptureError(ctx context.Context, errorType string, err error, fields map[string]any, keys types.CorrelationKeys) (*types.ErrorRecord, error)
}

type Config struct {
	Instance   string
	BatchSize  int
	Workers    int
	Budget     time.Duration
	BackoffCap time.Duration
}

type Processor struct {
	queue      store.QueueStore
	runs       store.AutomationRunStore
	dispatcher Dispatcher
	reporter   Reporter
	lock       lock.DistributedLockManager
	logger     *slog.Logger
	cfg        Config
	now        func() time.Time
}

type Option func(*Processor)

// WithLock makes each tick take the process lock and skip when another
// instance holds it.
func WithLock(l lock.DistributedLockManager) Option {
	return func(p *Processor) {
		p.lock = l
	}
}

func WithClock(now func() time.Time) Option {
	return func(p *Processor) {
		p.now = now
	}
}

func New(
	queue store.QueueStore,
	runs store.AutomationRunStore,
	dispatcher Dispatcher,
	reporter Reporter,
	logger *slog.Logger,
	cfg Config,
	opts ...Option,
) *Processor {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = constants.DefaultBatchSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = cfg.BatchSize
	}
	if cfg.Budget <= 0 {
		cfg.Budget = constants.DefaultProcessingBudget
	}
	if cfg.BackoffCap <= 0 {
		cfg.BackoffCap = constants.DefaultBackoffCap
	}
	p := &Processor{
		queue:      queue,
		runs:       runs,
		dispatcher: dispatcher,
		reporter:   reporter,
		logger:     logger,
		cfg:        cfg,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ProcessDue claims one batch of due items and runs them concurrently within
// the budget. Item failures are recorded, not returned; the error is reserved
// for failures of the tick itself.
func (p *Processor) ProcessDue(ctx context.Context) (types.TickSummary, error) {
	var summary types.TickSummary

	if p.lock != nil {
		ok, err := p.lock.TryAcquire(ctx, constants.ProcessLock)
		if err != nil {
			return summary, fmt.Errorf("acquire process lock: %w", err)
		}
		if !ok {
			p.logger.Info("another instance is processing the queue, skipping tick")
			return summary, nil
		}
		defer func() {
			if err := p.lock.Release(context.WithoutCancel(ctx), constants.ProcessLock); err != nil {
				p.logger.Error("release process lock", "err", err)
			}
		}()
	}

	tickCtx, cancel := context.WithTimeout(ctx, p.cfg.Budget)
	defer cancel()

	items, err := p.queue.ClaimDue(tickCtx, p.cfg.BatchSize, p.now().UTC(), p.cfg.Instance)
	if err != nil {
		p.logger.Error("claim due items", "err", err)
		if _, capErr := p.reporter.CaptureError(context.WithoutCancel(ctx), "processor_claim_failure", err, nil, types.CorrelationKeys{}); capErr != nil {
			p.logger.Error("capture claim failure", "err", capErr)
		}
		return summary, fmt.Errorf("claim due items: %w", err)
	}
	if len(items) == 0 {
		return summary, nil
	}

	sem := semaphore.NewWeighted(int64(p.cfg.Workers))
	outcomes := make([]types.ItemOutcome, len(items))
	var wg sync.WaitGroup

	for i, item := range items {
		if err := sem.Acquire(tickCtx, 1); err != nil {
			// budget ran out before this item got a worker
			outcomes[i] = p.record(tickCtx, item, p.budgetError())
			continue
		}
		wg.Add(1)
		go func(i int, item types.QueueItem) {
			defer wg.Done()
			defer sem.Release(1)
			outcomes[i] = p.record(tickCtx, item, p.run(tickCtx, item))
		}(i, item)
	}
	wg.Wait()

	for _, o := range outcomes {
		summary.Add(o)
	}
	p.logger.Info("tick finished",
		"processed", summary.Processed,
		"succeeded", summary.Succeeded,
		"failed", summary.Failed,
		"retried", summary.Retried,
		"exhausted", summary.Exhausted,
	)
	return summary, nil
}

// run executes the handler and gives up on it once ctx is done. A handler that
// ignores cancellation keeps running in the background but its result is dropped.
func (p *Processor) run(ctx context.Context, item types.QueueItem) error {
	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				p.logger.Error("handler panic", "item_id", item.ID, "panic", r, "stack", string(debug.Stack()))
				done <- fmt.Errorf("handler panic: %v", r)
			}
		}()
		done <- p.dispatcher.Dispatch(ctx, item)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return p.budgetError()
	}
}

func (p *Processor) budgetError() error {
	return fmt.Errorf("%w after %s", ErrBudgetExceeded, p.cfg.Budget)
}

// record writes the outcome of one attempt. It uses a context detached from the
// tick so outcomes are written even after the budget expired.
func (p *Processor) record(tickCtx context.Context, item types.QueueItem, runErr error) types.ItemOutcome {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(tickCtx), outcomeWriteTimeout)
	defer cancel()

	now := p.now().UTC()
	outcome := types.ItemOutcome{
		ItemID:      item.ID,
		Err:         runErr,
		Attempts:    item.Attempts,
		MaxAttempts: item.MaxAttempts,
		RanAt:       now,
	}
	log := p.logger.With("item_id", item.ID, "workflow_type", item.WorkflowType, "attempts", item.Attempts)

	if runErr == nil {
		outcome.Status = state.StatusCompleted
		if err := p.queue.MarkCompleted(ctx, item.ID, now); err != nil {
			p.storeWriteFailed(ctx, item, err)
		}
		log.Info("item completed")
		return outcome
	}

	runID := p.recordFailedRun(ctx, item, runErr, now)

	terminal := item.Attempts >= item.MaxAttempts || workflow.IsPermanent(runErr)
	if terminal {
		outcome.Status = state.StatusFailed
		if err := p.queue.MarkFailedTerminal(ctx, item.ID, runErr.Error(), now); err != nil {
			p.storeWriteFailed(ctx, item, err)
		}
		log.Error("item failed", "err", runErr, "permanent", workflow.IsPermanent(runErr))
	} else {
		next := now.Add(ExponentialBackoff(item.Attempts, p.cfg.BackoffCap))
		outcome.Status = state.StatusPending
		outcome.NextRun = &next
		if err := p.queue.MarkFailedRetry(ctx, item.ID, runErr.Error(), next); err != nil {
			p.storeWriteFailed(ctx, item, err)
		}
		log.Warn("item will be retried", "err", runErr, "next_run", next)
	}

	if _, err := p.reporter.CaptureWorkflowFailure(ctx, item, runErr, runID); err != nil {
		log.Error("capture workflow failure", "err", err)
	}
	return outcome
}

func (p *Processor) recordFailedRun(ctx context.Context, item types.QueueItem, runErr error, at time.Time) *uuid.UUID {
	itemID := item.ID
	msg := runErr.Error()
	run, err := p.runs.Record(ctx, types.AutomationRun{
		QueueItemID:  &itemID,
		WorkflowType: item.WorkflowType,
		Status:       types.RunFailed,
		Error:        &msg,
		Metadata: map[string]any{
			"attempts":     item.Attempts,
			"max_attempts": item.MaxAttempts,
			"permanent":    workflow.IsPermanent(runErr),
		},
		ProjectID: item.ProjectID,
		CreatedAt: at,
	})
	if err != nil {
		p.logger.Error("record failed run", "item_id", item.ID, "err", err)
		return nil
	}
	return &run.ID
}

// storeWriteFailed handles a status write that did not apply. An invalid
// transition means the stuck sweep already moved the item on.
func (p *Processor) storeWriteFailed(ctx context.Context, item types.QueueItem, err error) {
	if errors.Is(err, store.ErrInvalidTransition) {
		p.logger.Warn("item no longer processing, outcome dropped", "item_id", item.ID, "err", err)
		return
	}
	p.logger.Error("write item outcome", "item_id", item.ID, "err", err)
	if _, capErr := p.reporter.CaptureError(ctx, "queue_store_write_failure", err, nil, item.Keys()); capErr != nil {
		p.logger.Error("capture store failure", "err", capErr)
	}
}
