package types

import (
	"time"

	"github.com/RezaEskandarii/workflowq/internal/state"
	"github.com/google/uuid"
)

// CorrelationKeys tie an error to the work that produced it. Only ProjectID and
// UserID take part in deduplication; the ids are drill-down references.
type CorrelationKeys struct {
	QueueItemID     *uuid.UUID `json:"queue_item_id,omitempty"`
	AutomationRunID *uuid.UUID `json:"automation_run_id,omitempty"`
	ProjectID       *string    `json:"project_id,omitempty"`
	UserID          *string    `json:"user_id,omitempty"`
}

// DedupKey identifies the single active record a capture folds into.
type DedupKey struct {
	ErrorType string
	ProjectID string
	UserID    string
}

func (k CorrelationKeys) DedupKey(errorType string) DedupKey {
	key := DedupKey{ErrorType: errorType}
	if k.ProjectID != nil {
		key.ProjectID = *k.ProjectID
	}
	if k.UserID != nil {
		key.UserID = *k.UserID
	}
	return key
}

type ErrorRecord struct {
	ID              uuid.UUID           `json:"id"`
	ErrorType       string              `json:"error_type"`
	Severity        state.Severity      `json:"severity"`
	Category        state.ErrorCategory `json:"category"`
	Status          state.ErrorStatus   `json:"status"`
	Message         string              `json:"message"`
	StackTrace      *string             `json:"stack_trace,omitempty"`
	Context         map[string]any      `json:"context,omitempty"`
	OccurrenceCount int                 `json:"occurrence_count"`
	FirstOccurrence time.Time           `json:"first_occurrence"`
	LastOccurrence  time.Time           `json:"last_occurrence"`

	QueueItemID     *uuid.UUID `json:"queue_item_id,omitempty"`
	AutomationRunID *uuid.UUID `json:"automation_run_id,omitempty"`
	ProjectID       *string    `json:"project_id,omitempty"`
	UserID          *string    `json:"user_id,omitempty"`

	ResolvedBy      *string    `json:"resolved_by,omitempty"`
	ResolvedAt      *time.Time `json:"resolved_at,omitempty"`
	ResolutionNotes *string    `json:"resolution_notes,omitempty"`
	AcknowledgedBy  *string    `json:"acknowledged_by,omitempty"`
	AcknowledgedAt  *time.Time `json:"acknowledged_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (r ErrorRecord) DedupKey() DedupKey {
	return CorrelationKeys{ProjectID: r.ProjectID, UserID: r.UserID}.DedupKey(r.ErrorType)
}

// ErrorCapture is one observed failure handed to the error store.
type ErrorCapture struct {
	ErrorType  string
	Severity   state.Severity
	Category   state.ErrorCategory
	Message    string
	StackTrace *string
	Context    map[string]any
	Keys       CorrelationKeys
	At         time.Time
}

// ErrorTransition is an operator (or sweep) action on a record.
type ErrorTransition struct {
	To    state.ErrorStatus
	Actor string
	Notes *string
	At    time.Time
}

type ErrorFilter struct {
	Status    state.ErrorStatus
	Severity  state.Severity
	ErrorType string
}

type ErrorStats struct {
	Critical   int     `json:"critical"`
	High       int     `json:"high"`
	Medium     int     `json:"medium"`
	Low        int     `json:"low"`
	TotalRuns  int     `json:"total_runs"`
	FailedRuns int     `json:"failed_runs"`
	ErrorRate  float64 `json:"error_rate"`
}
