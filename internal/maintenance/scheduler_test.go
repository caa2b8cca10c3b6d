package maintenance

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/RezaEskandarii/workflowq/internal/alert"
	"github.com/RezaEskandarii/workflowq/internal/constants"
	"github.com/RezaEskandarii/workflowq/internal/errortracker"
	"github.com/RezaEskandarii/workflowq/internal/logging"
	"github.com/RezaEskandarii/workflowq/internal/mocks"
	"github.com/RezaEskandarii/workflowq/internal/state"
	"github.com/RezaEskandarii/workflowq/internal/store/memory"
	"github.com/RezaEskandarii/workflowq/types"
	"github.com/RezaEskandarii/workflowq/types/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	queue   *memory.QueueStore
	errors  *memory.ErrorStore
	tracker *errortracker.Tracker
	now     time.Time
}

func newFixture() *fixture {
	f := &fixture{
		queue:  memory.NewQueueStore(),
		errors: memory.NewErrorStore(),
		now:    time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	f.tracker = errortracker.New(f.errors, memory.NewAutomationRunStore(), nil,
		alert.NewStaticDirectory(nil, nil), nil, logging.Discard(),
		errortracker.WithClock(f.clock))
	return f
}

func (f *fixture) clock() time.Time {
	return f.now
}

func (f *fixture) scheduler(cfg config.MaintenanceConfig, l *mocks.MockDistributedLockManager, opts ...Option) *Scheduler {
	opts = append([]Option{WithClock(f.clock)}, opts...)
	if l == nil {
		return New(f.queue, f.tracker, nil, cfg, logging.Discard(), opts...)
	}
	return New(f.queue, f.tracker, l, cfg, logging.Discard(), opts...)
}

// claim enqueues an item and moves it to processing at the fixture's clock.
func (f *fixture) claim(t *testing.T, maxAttempts int) types.QueueItem {
	t.Helper()
	ctx := context.Background()
	project := "P"
	_, err := f.queue.Enqueue(ctx, types.NewQueueItem{
		WorkflowType: types.HoursReminder,
		Payload:      json.RawMessage(`{"project_id":"P","period":"2024-05"}`),
		ScheduledFor: f.now,
		MaxAttempts:  maxAttempts,
		ProjectID:    &project,
	})
	require.NoError(t, err)
	items, err := f.queue.ClaimDue(ctx, 1, f.now, "worker-1")
	require.NoError(t, err)
	require.Len(t, items, 1)
	return items[0]
}

func TestRecoverStuck_RequeuesWithinLimits(t *testing.T) {
	f := newFixture()
	item := f.claim(t, 3)
	f.now = f.now.Add(11 * time.Minute)

	s := f.scheduler(config.MaintenanceConfig{StuckThreshold: 10 * time.Minute, MaxStuckRecoveries: 3}, nil)
	result, err := s.RecoverStuck(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Requeued, 1)
	assert.Empty(t, result.Failed)

	got, err := f.queue.FindByID(context.Background(), item.ID)
	require.NoError(t, err)
	assert.Equal(t, state.StatusPending, got.Status)
	assert.Equal(t, 1, got.Recoveries)

	page, err := f.tracker.List(context.Background(), types.ErrorFilter{}, 1, 10)
	require.NoError(t, err)
	assert.Empty(t, page.Items)
}

func TestRecoverStuck_IgnoresRecentItems(t *testing.T) {
	f := newFixture()
	f.claim(t, 3)
	f.now = f.now.Add(5 * time.Minute)

	result, err := f.scheduler(config.MaintenanceConfig{StuckThreshold: 10 * time.Minute, MaxStuckRecoveries: 3}, nil).
		RecoverStuck(context.Background())
	require.NoError(t, err)
	assert.Empty(t, result.Requeued)
	assert.Empty(t, result.Failed)
}

func TestRecoverStuck_FailsAndReportsExhaustedItems(t *testing.T) {
	f := newFixture()
	item := f.claim(t, 3)
	f.now = f.now.Add(time.Hour)

	s := f.scheduler(config.MaintenanceConfig{StuckThreshold: 10 * time.Minute, MaxStuckRecoveries: 0}, nil)
	result, err := s.RecoverStuck(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Failed, 1)

	got, err := f.queue.FindByID(context.Background(), item.ID)
	require.NoError(t, err)
	assert.Equal(t, state.StatusFailed, got.Status)

	page, err := f.tracker.List(context.Background(), types.ErrorFilter{ErrorType: StuckItemType(types.HoursReminder)}, 1, 10)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	record := page.Items[0]
	assert.Equal(t, "stuck_item:hours_reminder", record.ErrorType)
	assert.Equal(t, state.SeverityHigh, record.Severity)
	require.NotNil(t, record.QueueItemID)
	assert.Equal(t, item.ID, *record.QueueItemID)
	assert.Contains(t, record.Message, ErrStuck.Error())
}

func TestRecoverStuck_SkipsWhenLockHeld(t *testing.T) {
	f := newFixture()
	f.claim(t, 3)
	f.now = f.now.Add(time.Hour)

	var asked []int
	l := &mocks.MockDistributedLockManager{
		TryAcquireFunc: func(_ context.Context, lockID int) (bool, error) {
			asked = append(asked, lockID)
			return false, nil
		},
		ReleaseFunc: func(context.Context, int) error {
			t.Fatal("release without acquire")
			return nil
		},
	}

	_, err := f.scheduler(config.MaintenanceConfig{}, l).RecoverStuck(context.Background())
	assert.ErrorIs(t, err, ErrLockHeld)
	assert.Equal(t, []int{constants.StuckRecoveryLock}, asked)

	counts, err := f.queue.CountGroupedByStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, counts[state.StatusProcessing])
}

func TestRecoverStuck_StoreError(t *testing.T) {
	queue := &mocks.MockQueueStore{
		RecoverStuckFunc: func(context.Context, time.Time, int, time.Time) (*types.RecoveryResult, error) {
			return nil, errors.New("connection reset")
		},
	}
	f := newFixture()
	s := New(queue, f.tracker, nil, config.MaintenanceConfig{}, logging.Discard())

	_, err := s.RecoverStuck(context.Background())
	assert.ErrorContains(t, err, "recover stuck items")
}

func TestAutoResolve_TakesAndReleasesLock(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	_, err := f.tracker.Capture(ctx, types.ErrorCapture{
		ErrorType: "workflow_failure:invoice_generation",
		Severity:  state.SeverityMedium,
		Message:   "timeout",
		At:        f.now,
	})
	require.NoError(t, err)
	f.now = f.now.Add(25 * time.Hour)

	var released []int
	l := &mocks.MockDistributedLockManager{
		ReleaseFunc: func(_ context.Context, lockID int) error {
			released = append(released, lockID)
			return nil
		},
	}
	n, err := f.scheduler(config.MaintenanceConfig{}, l).AutoResolve(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []int{constants.AutoResolveLock}, released)
}

func TestAutoResolve_LockError(t *testing.T) {
	f := newFixture()
	l := &mocks.MockDistributedLockManager{
		TryAcquireFunc: func(context.Context, int) (bool, error) {
			return false, errors.New("redis down")
		},
	}
	_, err := f.scheduler(config.MaintenanceConfig{}, l).AutoResolve(context.Background())
	assert.ErrorContains(t, err, "redis down")
	assert.NotErrorIs(t, err, ErrLockHeld)
}

func TestStart_InvalidSchedule(t *testing.T) {
	f := newFixture()
	s := f.scheduler(config.MaintenanceConfig{AutoResolveSchedule: "every now and then"}, nil)

	err := s.Start(context.Background())
	assert.ErrorContains(t, err, "auto_resolve")
}

type countingTicker struct {
	mu    sync.Mutex
	calls int
	fired chan struct{}
}

func (c *countingTicker) ProcessDue(context.Context) (types.TickSummary, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.calls == 1 {
		close(c.fired)
	}
	return types.TickSummary{}, nil
}

func TestStart_RunsSelfTriggerUntilCancelled(t *testing.T) {
	f := newFixture()
	ticker := &countingTicker{fired: make(chan struct{})}
	s := f.scheduler(config.MaintenanceConfig{SelfTriggerSchedule: "@every 1s"}, nil, WithTicker(ticker))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	select {
	case <-ticker.fired:
	case <-time.After(5 * time.Second):
		t.Fatal("self-trigger never ran")
	}
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}
