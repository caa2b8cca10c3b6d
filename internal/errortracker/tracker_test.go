package errortracker

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/RezaEskandarii/workflowq/internal/alert"
	"github.com/RezaEskandarii/workflowq/internal/logging"
	"github.com/RezaEskandarii/workflowq/internal/mocks"
	"github.com/RezaEskandarii/workflowq/internal/notify"
	"github.com/RezaEskandarii/workflowq/internal/state"
	"github.com/RezaEskandarii/workflowq/internal/store"
	"github.com/RezaEskandarii/workflowq/internal/store/memory"
	"github.com/RezaEskandarii/workflowq/types"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentEmail struct {
	to, subject, body string
}

type recordingSender struct {
	mu   sync.Mutex
	sent []sentEmail
	err  error
}

func (s *recordingSender) Send(_ context.Context, to, subject, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, sentEmail{to, subject, body})
	return s.err
}

type harness struct {
	tracker       *Tracker
	errors        *memory.ErrorStore
	runs          *memory.AutomationRunStore
	notifications *memory.NotificationStore
	sender        *recordingSender
	now           time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		errors:        memory.NewErrorStore(),
		runs:          memory.NewAutomationRunStore(),
		notifications: memory.NewNotificationStore(),
		sender:        &recordingSender{},
		now:           time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	logger := logging.Discard()
	h.tracker = New(
		h.errors,
		h.runs,
		h.sender,
		alert.NewStaticDirectory([]string{"oncall@example.com"}, []string{"admin-1", "admin-2"}),
		notify.NewDispatcher(h.notifications, nil, "", logger),
		logger,
		WithClock(func() time.Time { return h.now }),
	)
	return h
}

func failingItem(attempts, maxAttempts int) types.QueueItem {
	project, user := "P", "E"
	return types.QueueItem{
		ID:           uuid.New(),
		WorkflowType: types.ContractDistribution,
		Attempts:     attempts,
		MaxAttempts:  maxAttempts,
		ProjectID:    &project,
		UserID:       &user,
	}
}

func TestCapture_DedupIncrements(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	c := types.ErrorCapture{
		ErrorType: "practice_sync",
		Severity:  state.SeverityLow,
		Message:   "first",
	}

	first, err := h.tracker.Capture(ctx, c)
	require.NoError(t, err)
	c.Message = "second"
	second, err := h.tracker.Capture(ctx, c)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 2, second.OccurrenceCount)
	assert.Equal(t, "second", second.Message)
	assert.Equal(t, state.CategoryWorkflow, second.Category)
	assert.Empty(t, h.sender.sent)
	assert.Empty(t, h.notifications.All())
}

func TestCaptureWorkflowFailure_EscalatesOnLastAttempt(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	boom := errors.New("handler exploded")

	first, err := h.tracker.CaptureWorkflowFailure(ctx, failingItem(1, 2), boom, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, first.OccurrenceCount)
	assert.Equal(t, state.SeverityMedium, first.Severity)
	assert.Equal(t, "workflow_failure:contract_distribution", first.ErrorType)
	assert.Empty(t, h.notifications.All())

	runID := uuid.New()
	second, err := h.tracker.CaptureWorkflowFailure(ctx, failingItem(2, 2), boom, &runID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID, "a new queue item id does not split the record")
	assert.Equal(t, 2, second.OccurrenceCount)
	assert.Equal(t, state.SeverityHigh, second.Severity)
	assert.Equal(t, &runID, second.AutomationRunID)
	assert.Equal(t, 2, second.Context[ContextAttempts])

	notifications := h.notifications.All()
	require.Len(t, notifications, 2)
	assert.Equal(t, types.NotificationSystemAlert, notifications[0].Type)
	assert.ElementsMatch(t, []string{"admin-1", "admin-2"}, []string{notifications[0].UserID, notifications[1].UserID})
	assert.Empty(t, h.sender.sent, "high is not emailed")
}

func TestCapture_SeverityNeverLowered(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.tracker.CaptureWorkflowFailure(ctx, failingItem(2, 2), errors.New("x"), nil)
	require.NoError(t, err)
	record, err := h.tracker.CaptureWorkflowFailure(ctx, failingItem(1, 2), errors.New("x"), nil)
	require.NoError(t, err)

	assert.Equal(t, state.SeverityHigh, record.Severity)
}

func TestCapture_CriticalEmailsRecipients(t *testing.T) {
	h := newHarness(t)

	record, err := h.tracker.CaptureError(context.Background(), "processor_claim", errors.New("pq: could not connect to database"), nil, types.CorrelationKeys{})
	require.NoError(t, err)
	assert.Equal(t, state.SeverityCritical, record.Severity)
	assert.Equal(t, state.CategorySystem, record.Category)

	require.Len(t, h.sender.sent, 1)
	assert.Equal(t, "oncall@example.com", h.sender.sent[0].to)
	assert.Equal(t, "[CRITICAL] processor_claim", h.sender.sent[0].subject)
	assert.Contains(t, h.sender.sent[0].body, "could not connect")
	assert.Len(t, h.notifications.All(), 2)
}

func TestCapture_AlertFailureIsSwallowed(t *testing.T) {
	h := newHarness(t)
	h.sender.err = errors.New("ses throttled")

	record, err := h.tracker.CaptureError(context.Background(), "db", fmt.Errorf("find user: %w", sql.ErrConnDone), nil, types.CorrelationKeys{})
	require.NoError(t, err)
	assert.Equal(t, state.SeverityCritical, record.Severity)
}

func TestCapture_StoreFailure(t *testing.T) {
	tracker := New(&mocks.MockErrorStore{
		UpsertFunc: func(context.Context, types.ErrorCapture) (*types.ErrorRecord, bool, error) {
			return nil, false, errors.New("connection reset")
		},
	}, &mocks.MockAutomationRunStore{}, nil, alert.NewStaticDirectory(nil, nil), nil, logging.Discard())

	_, err := tracker.Capture(context.Background(), types.ErrorCapture{ErrorType: "x", Message: "y"})
	assert.ErrorContains(t, err, "capture x")
}

func TestOperatorActions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	record, err := h.tracker.Capture(ctx, types.ErrorCapture{ErrorType: "a", Message: "m"})
	require.NoError(t, err)

	acked, err := h.tracker.Acknowledge(ctx, record.ID, "ops")
	require.NoError(t, err)
	assert.Equal(t, state.ErrorAcknowledged, acked.Status)
	assert.Equal(t, "ops", *acked.AcknowledgedBy)

	_, err = h.tracker.Acknowledge(ctx, record.ID, "ops")
	assert.ErrorIs(t, err, store.ErrInvalidTransition)

	resolved, err := h.tracker.Resolve(ctx, record.ID, "fixed upstream", "ops")
	require.NoError(t, err)
	assert.Equal(t, state.ErrorResolved, resolved.Status)
	assert.Equal(t, "fixed upstream", *resolved.ResolutionNotes)

	_, err = h.tracker.Dismiss(ctx, record.ID, "noise", "ops")
	assert.ErrorIs(t, err, store.ErrInvalidTransition)

	_, err = h.tracker.Dismiss(ctx, uuid.New(), "noise", "ops")
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = h.tracker.Dismiss(ctx, record.ID, "noise", " ")
	assert.ErrorContains(t, err, "actor is required")

	again, err := h.tracker.Capture(ctx, types.ErrorCapture{ErrorType: "a", Message: "m"})
	require.NoError(t, err)
	assert.NotEqual(t, record.ID, again.ID, "a closed record does not absorb new occurrences")
}

func TestAutoResolve(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	old, err := h.tracker.Capture(ctx, types.ErrorCapture{ErrorType: "old", Message: "m", At: h.now.Add(-25 * time.Hour)})
	require.NoError(t, err)
	fresh, err := h.tracker.Capture(ctx, types.ErrorCapture{ErrorType: "fresh", Message: "m", At: h.now.Add(-time.Hour)})
	require.NoError(t, err)

	n, err := h.tracker.AutoResolve(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := h.tracker.FindByID(ctx, old.ID)
	require.NoError(t, err)
	assert.Equal(t, state.ErrorAutoResolved, got.Status)
	assert.Equal(t, "system", *got.ResolvedBy)

	got, err = h.tracker.FindByID(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, state.ErrorActive, got.Status)
}

func TestStats(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.tracker.Capture(ctx, types.ErrorCapture{ErrorType: "c", Severity: state.SeverityCritical, Message: "m"})
	require.NoError(t, err)
	_, err = h.tracker.Capture(ctx, types.ErrorCapture{ErrorType: "m1", Message: "m"})
	require.NoError(t, err)
	_, err = h.tracker.Capture(ctx, types.ErrorCapture{ErrorType: "m2", Message: "m"})
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		status := types.RunSuccess
		if i == 0 {
			status = types.RunFailed
		}
		_, err := h.runs.Record(ctx, types.AutomationRun{WorkflowType: types.InvoiceGeneration, Status: status, CreatedAt: h.now.Add(-time.Hour)})
		require.NoError(t, err)
	}
	_, err = h.runs.Record(ctx, types.AutomationRun{WorkflowType: types.InvoiceGeneration, Status: types.RunFailed, CreatedAt: h.now.Add(-48 * time.Hour)})
	require.NoError(t, err)

	stats, err := h.tracker.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Critical)
	assert.Equal(t, 0, stats.High)
	assert.Equal(t, 2, stats.Medium)
	assert.Equal(t, 4, stats.TotalRuns)
	assert.Equal(t, 1, stats.FailedRuns)
	assert.Equal(t, 0.25, stats.ErrorRate)
}
