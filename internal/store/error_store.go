package store

import (
	"context"
	"time"

	"github.com/RezaEskandarii/workflowq/internal/state"
	"github.com/RezaEskandarii/workflowq/types"
	"github.com/google/uuid"
)

// ErrorStore keeps at most one active record per dedup key.
type ErrorStore interface {
	// Upsert folds the capture into the active record with the same dedup key,
	// raising its severity when the capture is more severe, or creates a new
	// active record. created reports which of the two happened.
	Upsert(ctx context.Context, capture types.ErrorCapture) (record *types.ErrorRecord, created bool, err error)

	FindByID(ctx context.Context, id uuid.UUID) (*types.ErrorRecord, error)

	// Transition applies an operator action. It returns ErrInvalidTransition
	// when the record is not in a status the target can be reached from.
	Transition(ctx context.Context, id uuid.UUID, t types.ErrorTransition) (*types.ErrorRecord, error)

	// AutoResolve closes every open record last seen before lastSeenBefore.
	AutoResolve(ctx context.Context, lastSeenBefore, at time.Time) (int, error)

	// CountOpenBySeverity counts active and acknowledged records.
	CountOpenBySeverity(ctx context.Context) (map[state.Severity]int, error)

	List(ctx context.Context, filter types.ErrorFilter, page, pageSize int) (*types.PaginationResult[types.ErrorRecord], error)
}
