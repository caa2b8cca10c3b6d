package store

import (
	"context"
	"time"

	"github.com/RezaEskandarii/workflowq/internal/state"
	"github.com/RezaEskandarii/workflowq/types"
	"github.com/google/uuid"
)

// QueueStore persists queue items and enforces the status machine on every write.
type QueueStore interface {
	// Enqueue inserts a pending item with zero attempts.
	Enqueue(ctx context.Context, item types.NewQueueItem) (*types.QueueItem, error)

	// FindByID returns ErrNotFound when no item has the id.
	FindByID(ctx context.Context, id uuid.UUID) (*types.QueueItem, error)

	// ClaimDue atomically moves up to limit due pending items to processing,
	// increments their attempts and returns them ordered by (scheduledFor, seq).
	// Items claimed concurrently by another processor are never returned twice.
	ClaimDue(ctx context.Context, limit int, now time.Time, claimedBy string) ([]types.QueueItem, error)

	// MarkCompleted, MarkFailedRetry and MarkFailedTerminal return
	// ErrInvalidTransition when the item is no longer processing.
	MarkCompleted(ctx context.Context, id uuid.UUID, at time.Time) error
	MarkFailedRetry(ctx context.Context, id uuid.UUID, errMsg string, next time.Time) error
	MarkFailedTerminal(ctx context.Context, id uuid.UUID, errMsg string, at time.Time) error

	// RecoverStuck returns items that have been processing since before
	// startedBefore to pending, or fails them once they are out of recoveries
	// or attempts.
	RecoverStuck(ctx context.Context, startedBefore time.Time, maxRecoveries int, at time.Time) (*types.RecoveryResult, error)

	CountGroupedByStatus(ctx context.Context) (map[state.QueueStatus]int, error)

	List(ctx context.Context, filter types.ItemFilter, page, pageSize int) (*types.PaginationResult[types.QueueItem], error)
}
