package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/RezaEskandarii/workflowq/internal/constants"
	"github.com/RezaEskandarii/workflowq/internal/state"
	"github.com/RezaEskandarii/workflowq/internal/store"
	"github.com/RezaEskandarii/workflowq/types"
	"github.com/google/uuid"
)

// ErrNotRetryable is returned when a manual retry targets an item that has not failed.
var ErrNotRetryable = errors.New("only failed items can be retried")

// WorkflowManager is the producer-side API of the queue: it enqueues work and
// exposes the read and retry operations the admin surface needs.
type WorkflowManager struct {
	queue              store.QueueStore
	logger             *slog.Logger
	defaultMaxAttempts int
	now                func() time.Time
}

func NewWorkflowManager(queue store.QueueStore, logger *slog.Logger, defaultMaxAttempts int) *WorkflowManager {
	if defaultMaxAttempts < 1 {
		defaultMaxAttempts = constants.DefaultMaxAttempts
	}
	return &WorkflowManager{
		queue:              queue,
		logger:             logger,
		defaultMaxAttempts: defaultMaxAttempts,
		now:                time.Now,
	}
}

type enqueueOptions struct {
	scheduledFor time.Time
	maxAttempts  int
}

type EnqueueOption func(*enqueueOptions)

// WithScheduledFor delays the item until t. The default is now.
func WithScheduledFor(t time.Time) EnqueueOption {
	return func(o *enqueueOptions) {
		o.scheduledFor = t
	}
}

func WithMaxAttempts(n int) EnqueueOption {
	return func(o *enqueueOptions) {
		o.maxAttempts = n
	}
}

// Enqueue validates payload and adds a pending item for its workflow type.
func (m *WorkflowManager) Enqueue(ctx context.Context, payload types.Payload, opts ...EnqueueOption) (*types.QueueItem, error) {
	raw, err := types.EncodePayload(payload)
	if err != nil {
		return nil, err
	}

	o := enqueueOptions{maxAttempts: m.defaultMaxAttempts}
	for _, opt := range opts {
		opt(&o)
	}
	if o.maxAttempts < 1 {
		return nil, fmt.Errorf("max attempts must be at least 1, got %d", o.maxAttempts)
	}
	if o.scheduledFor.IsZero() {
		o.scheduledFor = m.now()
	}

	keys := payload.CorrelationKeys()
	item, err := m.queue.Enqueue(ctx, types.NewQueueItem{
		WorkflowType: payload.WorkflowType(),
		Payload:      raw,
		ScheduledFor: o.scheduledFor.UTC(),
		MaxAttempts:  o.maxAttempts,
		ProjectID:    keys.ProjectID,
		UserID:       keys.UserID,
	})
	if err != nil {
		m.logger.Error("enqueue workflow", "workflow_type", payload.WorkflowType(), "err", err)
		return nil, fmt.Errorf("enqueue %s: %w", payload.WorkflowType(), err)
	}
	m.logger.Info("workflow enqueued",
		"item_id", item.ID,
		"workflow_type", item.WorkflowType,
		"scheduled_for", item.ScheduledFor,
	)
	return item, nil
}

// EnqueueRaw decodes raw as the payload of workflowType and enqueues it. A zero
// scheduledFor means now and maxAttempts below 1 means the default.
func (m *WorkflowManager) EnqueueRaw(ctx context.Context, workflowType types.WorkflowType, raw json.RawMessage, scheduledFor time.Time, maxAttempts int) (*types.QueueItem, error) {
	payload, err := types.DecodePayload(workflowType, raw)
	if err != nil {
		return nil, err
	}
	opts := []EnqueueOption{WithScheduledFor(scheduledFor)}
	if maxAttempts > 0 {
		opts = append(opts, WithMaxAttempts(maxAttempts))
	}
	return m.Enqueue(ctx, payload, opts...)
}

// RetryFailedWorkflow enqueues a fresh copy of a failed item. The original is
// left untouched and the copy points back at it.
func (m *WorkflowManager) RetryFailedWorkflow(ctx context.Context, id uuid.UUID) (*types.QueueItem, error) {
	original, err := m.queue.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if original.Status != state.StatusFailed {
		return nil, fmt.Errorf("%w: item %s is %s", ErrNotRetryable, id, original.Status)
	}

	retryOf := original.ID
	item, err := m.queue.Enqueue(ctx, types.NewQueueItem{
		WorkflowType: original.WorkflowType,
		Payload:      original.Payload,
		ScheduledFor: m.now().UTC(),
		MaxAttempts:  original.MaxAttempts,
		ProjectID:    original.ProjectID,
		UserID:       original.UserID,
		RetryOf:      &retryOf,
	})
	if err != nil {
		return nil, fmt.Errorf("retry item %s: %w", id, err)
	}
	m.logger.Info("failed workflow retried", "item_id", item.ID, "retry_of", id, "workflow_type", item.WorkflowType)
	return item, nil
}

func (m *WorkflowManager) QueueStats(ctx context.Context) (types.QueueStats, error) {
	counts, err := m.queue.CountGroupedByStatus(ctx)
	if err != nil {
		return types.QueueStats{}, fmt.Errorf("count queue items: %w", err)
	}
	return types.NewQueueStats(counts), nil
}

func (m *WorkflowManager) ListItems(ctx context.Context, filter types.ItemFilter, page, pageSize int) (*types.PaginationResult[types.QueueItem], error) {
	return m.queue.List(ctx, filter, page, pageSize)
}

func (m *WorkflowManager) FindItem(ctx context.Context, id uuid.UUID) (*types.QueueItem, error) {
	return m.queue.FindByID(ctx, id)
}
