package types

import (
	"time"

	"github.com/RezaEskandarii/workflowq/internal/state"
	"github.com/google/uuid"
)

// ItemOutcome is the recorded result of one processing attempt.
type ItemOutcome struct {
	ItemID      uuid.UUID
	Err         error
	Attempts    int
	MaxAttempts int
	Status      state.QueueStatus
	RanAt       time.Time
	NextRun     *time.Time
}

// TickSummary aggregates the per-item outcomes of one processor invocation.
type TickSummary struct {
	Processed int `json:"processed"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Retried   int `json:"retried"`
	Exhausted int `json:"exhausted"`
}

func (s *TickSummary) Add(outcome ItemOutcome) {
	s.Processed++
	switch outcome.Status {
	case state.StatusCompleted:
		s.Succeeded++
	case state.StatusPending:
		s.Failed++
		s.Retried++
	default:
		s.Failed++
		s.Exhausted++
	}
}
