package types

import (
	"encoding/json"
	"time"

	"github.com/RezaEskandarii/workflowq/internal/state"
	"github.com/google/uuid"
)

// QueueItem is a unit of deferred work. Items are never deleted; a manual retry
// creates a new item that points back at the original through RetryOf.
type QueueItem struct {
	ID           uuid.UUID         `json:"id"`
	Seq          int64             `json:"-"`
	WorkflowType WorkflowType      `json:"workflow_type"`
	Payload      json.RawMessage   `json:"payload"`
	Status       state.QueueStatus `json:"status"`
	Attempts     int               `json:"attempts"`
	MaxAttempts  int               `json:"max_attempts"`
	ScheduledFor time.Time         `json:"scheduled_for"`
	StartedAt    *time.Time        `json:"started_at,omitempty"`
	CompletedAt  *time.Time        `json:"completed_at,omitempty"`
	Error        *string           `json:"error,omitempty"`
	ProjectID    *string           `json:"project_id,omitempty"`
	UserID       *string           `json:"user_id,omitempty"`
	LockedBy     *string           `json:"locked_by,omitempty"`
	Recoveries   int               `json:"recoveries"`
	RetryOf      *uuid.UUID        `json:"retry_of,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// Keys returns the correlation keys an error raised by this item is filed under.
func (q QueueItem) Keys() CorrelationKeys {
	id := q.ID
	return CorrelationKeys{
		QueueItemID: &id,
		ProjectID:   q.ProjectID,
		UserID:      q.UserID,
	}
}

// NewQueueItem carries the arguments of an enqueue call.
type NewQueueItem struct {
	WorkflowType WorkflowType
	Payload      json.RawMessage
	ScheduledFor time.Time
	MaxAttempts  int
	ProjectID    *string
	UserID       *string
	RetryOf      *uuid.UUID
}

// ItemFilter narrows queue item listings. Zero values match everything.
type ItemFilter struct {
	Status       state.QueueStatus
	WorkflowType WorkflowType
	ProjectID    string
}

// RecoveryResult reports what a stuck-item sweep did.
type RecoveryResult struct {
	Requeued []QueueItem `json:"requeued"`
	Failed   []QueueItem `json:"failed"`
}

type QueueStats struct {
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
}

func NewQueueStats(counts map[state.QueueStatus]int) QueueStats {
	return QueueStats{
		Pending:    counts[state.StatusPending],
		Processing: counts[state.StatusProcessing],
		Completed:  counts[state.StatusCompleted],
		Failed:     counts[state.StatusFailed],
	}
}
