package errortracker

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/RezaEskandarii/workflowq/internal/alert"
	"github.com/RezaEskandarii/workflowq/internal/constants"
	"github.com/RezaEskandarii/workflowq/internal/state"
	"github.com/RezaEskandarii/workflowq/internal/store"
	"github.com/RezaEskandarii/workflowq/internal/workflow"
	"github.com/RezaEskandarii/workflowq/types"
	"github.com/google/uuid"
)

// Tracker records deduplicated failures and escalates severe ones to operators.
type Tracker struct {
	errors    store.ErrorStore
	runs      store.AutomationRunStore
	sender    alert.Sender
	directory alert.Directory
	notifier  workflow.Notifier
	logger    *slog.Logger

	autoResolveWindow time.Duration
	errorRateWindow   time.Duration
	now               func() time.Time
}

type Option func(*Tracker)

func WithAutoResolveWindow(d time.Duration) Option {
	return func(t *Tracker) {
		if d > 0 {
			t.autoResolveWindow = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		t.now = now
	}
}

func New(
	errors store.ErrorStore,
	runs store.AutomationRunStore,
	sender alert.Sender,
	directory alert.Directory,
	notifier workflow.Notifier,
	logger *slog.Logger,
	opts ...Option,
) *Tracker {
	t := &Tracker{
		errors:            errors,
		runs:              runs,
		sender:            sender,
		directory:         directory,
		notifier:          notifier,
		logger:            logger,
		autoResolveWindow: constants.DefaultAutoResolveWindow,
		errorRateWindow:   constants.DefaultErrorRateWindow,
		now:               time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Capture creates or increments the active record for the capture's dedup key,
// then runs the side effects for the record's effective severity.
func (t *Tracker) Capture(ctx context.Context, c types.ErrorCapture) (*types.ErrorRecord, error) {
	if c.ErrorType == "" {
		return nil, fmt.Errorf("capture: error type is required")
	}
	if c.At.IsZero() {
		c.At = t.now().UTC()
	}
	if c.Severity == "" {
		c.Severity = state.SeverityMedium
	}
	if c.Category == "" {
		c.Category = state.CategoryWorkflow
	}

	record, created, err := t.errors.Upsert(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("capture %s: %w", c.ErrorType, err)
	}

	t.logger.Warn("error captured",
		"error_id", record.ID,
		"error_type", record.ErrorType,
		"severity", record.Severity,
		"occurrences", record.OccurrenceCount,
		"created", created,
	)

	t.escalate(ctx, record)
	return record, nil
}

// CaptureError classifies err and captures it under errorType.
func (t *Tracker) CaptureError(ctx context.Context, errorType string, err error, fields map[string]any, keys types.CorrelationKeys) (*types.ErrorRecord, error) {
	return t.Capture(ctx, types.ErrorCapture{
		ErrorType: errorType,
		Severity:  ClassifySeverity(err, fields),
		Category:  ClassifyCategory(err),
		Message:   err.Error(),
		Context:   fields,
		Keys:      keys,
	})
}

// CaptureWorkflowFailure records a failed processing attempt of item.
func (t *Tracker) CaptureWorkflowFailure(ctx context.Context, item types.QueueItem, err error, runID *uuid.UUID) (*types.ErrorRecord, error) {
	keys := item.Keys()
	keys.AutomationRunID = runID

	return t.CaptureError(ctx, WorkflowFailureType(item.WorkflowType), err, map[string]any{
		ContextAttempts:     item.Attempts,
		ContextMaxAttempts:  item.MaxAttempts,
		ContextWorkflowType: item.WorkflowType.String(),
		ContextPermanent:    workflow.IsPermanent(err),
	}, keys)
}

func WorkflowFailureType(workflowType types.WorkflowType) string {
	return "workflow_failure:" + workflowType.Slug()
}

// escalate never fails: alerting problems are logged so they cannot hide the
// error being reported.
func (t *Tracker) escalate(ctx context.Context, record *types.ErrorRecord) {
	if record.Severity == state.SeverityCritical && t.sender != nil {
		recipients, err := t.directory.Recipients(ctx)
		if err != nil {
			t.logger.Error("resolve alert recipients", "err", err)
		}
		subject := fmt.Sprintf("[%s] %s", strings.ToUpper(record.Severity.String()), record.ErrorType)
		for _, to := range recipients {
			if err := t.sender.Send(ctx, to, subject, alertBody(record)); err != nil {
				t.logger.Error("send alert email", "to", to, "error_id", record.ID, "err", err)
			}
		}
	}

	if record.Severity.Escalates() && t.notifier != nil {
		userIDs, err := t.directory.EscalationUserIDs(ctx)
		if err != nil {
			t.logger.Error("resolve escalation users", "err", err)
		}
		for _, userID := range userIDs {
			_, err := t.notifier.Send(ctx, types.Notification{
				UserID: userID,
				Type:   types.NotificationSystemAlert,
				Title:  fmt.Sprintf("%s error: %s", strings.ToUpper(record.Severity.String()), record.ErrorType),
				Body:   record.Message,
			})
			if err != nil {
				t.logger.Error("send escalation notification", "user_id", userID, "error_id", record.ID, "err", err)
			}
		}
	}
}

func alertBody(r *types.ErrorRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Error type: %s\n", r.ErrorType)
	fmt.Fprintf(&b, "Severity: %s\n", r.Severity)
	fmt.Fprintf(&b, "Category: %s\n", r.Category)
	fmt.Fprintf(&b, "Occurrences: %d\n", r.OccurrenceCount)
	fmt.Fprintf(&b, "Last seen: %s\n", r.LastOccurrence.Format(time.RFC3339))
	if r.QueueItemID != nil {
		fmt.Fprintf(&b, "Queue item: %s\n", r.QueueItemID)
	}
	if r.ProjectID != nil {
		fmt.Fprintf(&b, "Project: %s\n", *r.ProjectID)
	}
	fmt.Fprintf(&b, "\n%s\n", r.Message)
	return b.String()
}

func (t *Tracker) Acknowledge(ctx context.Context, id uuid.UUID, by string) (*types.ErrorRecord, error) {
	return t.transition(ctx, id, state.ErrorAcknowledged, by, "")
}

func (t *Tracker) Dismiss(ctx context.Context, id uuid.UUID, reason, by string) (*types.ErrorRecord, error) {
	return t.transition(ctx, id, state.ErrorDismissed, by, reason)
}

func (t *Tracker) Resolve(ctx context.Context, id uuid.UUID, notes, by string) (*types.ErrorRecord, error) {
	return t.transition(ctx, id, state.ErrorResolved, by, notes)
}

func (t *Tracker) transition(ctx context.Context, id uuid.UUID, to state.ErrorStatus, by, notes string) (*types.ErrorRecord, error) {
	if strings.TrimSpace(by) == "" {
		return nil, fmt.Errorf("%s error %s: actor is required", to, id)
	}
	tr := types.ErrorTransition{To: to, Actor: by, At: t.now().UTC()}
	if notes != "" {
		tr.Notes = &notes
	}

	record, err := t.errors.Transition(ctx, id, tr)
	if err != nil {
		return nil, fmt.Errorf("%s error %s: %w", to, id, err)
	}
	t.logger.Info("error record updated", "error_id", id, "status", to, "by", by)
	return record, nil
}

// AutoResolve closes open records that have not recurred within the window.
func (t *Tracker) AutoResolve(ctx context.Context) (int, error) {
	now := t.now().UTC()
	n, err := t.errors.AutoResolve(ctx, now.Add(-t.autoResolveWindow), now)
	if err != nil {
		return 0, fmt.Errorf("auto-resolve errors: %w", err)
	}
	if n > 0 {
		t.logger.Info("errors auto-resolved", "count", n, "window", t.autoResolveWindow.String())
	}
	return n, nil
}

// Stats returns open records per severity and the automation-run failure rate
// over the last 24 hours.
func (t *Tracker) Stats(ctx context.Context) (types.ErrorStats, error) {
	counts, err := t.errors.CountOpenBySeverity(ctx)
	if err != nil {
		return types.ErrorStats{}, fmt.Errorf("count errors: %w", err)
	}
	runs, err := t.runs.CountSince(ctx, t.now().UTC().Add(-t.errorRateWindow))
	if err != nil {
		return types.ErrorStats{}, fmt.Errorf("count automation runs: %w", err)
	}

	stats := types.ErrorStats{
		Critical:   counts[state.SeverityCritical],
		High:       counts[state.SeverityHigh],
		Medium:     counts[state.SeverityMedium],
		Low:        counts[state.SeverityLow],
		TotalRuns:  runs.Total,
		FailedRuns: runs.Failed,
	}
	if runs.Total > 0 {
		stats.ErrorRate = math.Round(float64(runs.Failed)/float64(runs.Total)*10000) / 10000
	}
	return stats, nil
}

func (t *Tracker) FindByID(ctx context.Context, id uuid.UUID) (*types.ErrorRecord, error) {
	return t.errors.FindByID(ctx, id)
}

func (t *Tracker) List(ctx context.Context, filter types.ErrorFilter, page, pageSize int) (*types.PaginationResult[types.ErrorRecord], error) {
	return t.errors.List(ctx, filter, page, pageSize)
}
