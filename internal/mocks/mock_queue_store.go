package mocks

import (
	"context"
	"time"

	"github.com/RezaEskandarii/workflowq/internal/state"
	"github.com/RezaEskandarii/workflowq/types"
	"github.com/google/uuid"
)

// MockQueueStore is a mock implementation of store.QueueStore for testing.
type MockQueueStore struct {
	EnqueueFunc              func(ctx context.Context, item types.NewQueueItem) (*types.QueueItem, error)
	FindByIDFunc             func(ctx context.Context, id uuid.UUID) (*types.QueueItem, error)
	ClaimDueFunc             func(ctx context.Context, limit int, now time.Time, claimedBy string) ([]types.QueueItem, error)
	MarkCompletedFunc        func(ctx context.Context, id uuid.UUID, at time.Time) error
	MarkFailedRetryFunc      func(ctx context.Context, id uuid.UUID, errMsg string, next time.Time) error
	MarkFailedTerminalFunc   func(ctx context.Context, id uuid.UUID, errMsg string, at time.Time) error
	RecoverStuckFunc         func(ctx context.Context, startedBefore time.Time, maxRecoveries int, at time.Time) (*types.RecoveryResult, error)
	CountGroupedByStatusFunc func(ctx context.Context) (map[state.QueueStatus]int, error)
	ListFunc                 func(ctx context.Context, filter types.ItemFilter, page, pageSize int) (*types.PaginationResult[types.QueueItem], error)
}

func (m *MockQueueStore) Enqueue(ctx context.Context, item types.NewQueueItem) (*types.QueueItem, error) {
	if m.EnqueueFunc != nil {
		return m.EnqueueFunc(ctx, item)
	}
	return &types.QueueItem{ID: uuid.New(), WorkflowType: item.WorkflowType, Status: state.StatusPending}, nil
}

func (m *MockQueueStore) FindByID(ctx context.Context, id uuid.UUID) (*types.QueueItem, error) {
	if m.FindByIDFunc != nil {
		return m.FindByIDFunc(ctx, id)
	}
	return nil, nil
}

func (m *MockQueueStore) ClaimDue(ctx context.Context, limit int, now time.Time, claimedBy string) ([]types.QueueItem, error) {
	if m.ClaimDueFunc != nil {
		return m.ClaimDueFunc(ctx, limit, now, claimedBy)
	}
	return nil, nil
}

func (m *MockQueueStore) MarkCompleted(ctx context.Context, id uuid.UUID, at time.Time) error {
	if m.MarkCompletedFunc != nil {
		return m.MarkCompletedFunc(ctx, id, at)
	}
	return nil
}

func (m *MockQueueStore) MarkFailedRetry(ctx context.Context, id uuid.UUID, errMsg string, next time.Time) error {
	if m.MarkFailedRetryFunc != nil {
		return m.MarkFailedRetryFunc(ctx, id, errMsg, next)
	}
	return nil
}

func (m *MockQueueStore) MarkFailedTerminal(ctx context.Context, id uuid.UUID, errMsg string, at time.Time) error {
	if m.MarkFailedTerminalFunc != nil {
		return m.MarkFailedTerminalFunc(ctx, id, errMsg, at)
	}
	return nil
}

func (m *MockQueueStore) RecoverStuck(ctx context.Context, startedBefore time.Time, maxRecoveries int, at time.Time) (*types.RecoveryResult, error) {
	if m.RecoverStuckFunc != nil {
		return m.RecoverStuckFunc(ctx, startedBefore, maxRecoveries, at)
	}
	return &types.RecoveryResult{}, nil
}

func (m *MockQueueStore) CountGroupedByStatus(ctx context.Context) (map[state.QueueStatus]int, error) {
	if m.CountGroupedByStatusFunc != nil {
		return m.CountGroupedByStatusFunc(ctx)
	}
	return map[state.QueueStatus]int{}, nil
}

func (m *MockQueueStore) List(ctx context.Context, filter types.ItemFilter, page, pageSize int) (*types.PaginationResult[types.QueueItem], error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, filter, page, pageSize)
	}
	return types.NewPaginationResult[types.QueueItem](nil, 0, page, pageSize), nil
}
