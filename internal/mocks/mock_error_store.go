package mocks

import (
	"context"
	"time"

	"github.com/RezaEskandarii/workflowq/internal/state"
	"github.com/RezaEskandarii/workflowq/types"
	"github.com/google/uuid"
)

// MockErrorStore is a mock implementation of store.ErrorStore for testing.
type MockErrorStore struct {
	UpsertFunc              func(ctx context.Context, capture types.ErrorCapture) (*types.ErrorRecord, bool, error)
	FindByIDFunc            func(ctx context.Context, id uuid.UUID) (*types.ErrorRecord, error)
	TransitionFunc          func(ctx context.Context, id uuid.UUID, t types.ErrorTransition) (*types.ErrorRecord, error)
	AutoResolveFunc         func(ctx context.Context, lastSeenBefore, at time.Time) (int, error)
	CountOpenBySeverityFunc func(ctx context.Context) (map[state.Severity]int, error)
	ListFunc                func(ctx context.Context, filter types.ErrorFilter, page, pageSize int) (*types.PaginationResult[types.ErrorRecord], error)
}

func (m *MockErrorStore) Upsert(ctx context.Context, capture types.ErrorCapture) (*types.ErrorRecord, bool, error) {
	if m.UpsertFunc != nil {
		return m.UpsertFunc(ctx, capture)
	}
	return &types.ErrorRecord{
		ID:              uuid.New(),
		ErrorType:       capture.ErrorType,
		Severity:        capture.Severity,
		Category:        capture.Category,
		Status:          state.ErrorActive,
		Message:         capture.Message,
		OccurrenceCount: 1,
	}, true, nil
}

func (m *MockErrorStore) FindByID(ctx context.Context, id uuid.UUID) (*types.ErrorRecord, error) {
	if m.FindByIDFunc != nil {
		return m.FindByIDFunc(ctx, id)
	}
	return nil, nil
}

func (m *MockErrorStore) Transition(ctx context.Context, id uuid.UUID, t types.ErrorTransition) (*types.ErrorRecord, error) {
	if m.TransitionFunc != nil {
		return m.TransitionFunc(ctx, id, t)
	}
	return &types.ErrorRecord{ID: id, Status: t.To}, nil
}

func (m *MockErrorStore) AutoResolve(ctx context.Context, lastSeenBefore, at time.Time) (int, error) {
	if m.AutoResolveFunc != nil {
		return m.AutoResolveFunc(ctx, lastSeenBefore, at)
	}
	return 0, nil
}

func (m *MockErrorStore) CountOpenBySeverity(ctx context.Context) (map[state.Severity]int, error) {
	if m.CountOpenBySeverityFunc != nil {
		return m.CountOpenBySeverityFunc(ctx)
	}
	return map[state.Severity]int{}, nil
}

func (m *MockErrorStore) List(ctx context.Context, filter types.ErrorFilter, page, pageSize int) (*types.PaginationResult[types.ErrorRecord], error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, filter, page, pageSize)
	}
	return types.NewPaginationResult[types.ErrorRecord](nil, 0, page, pageSize), nil
}
