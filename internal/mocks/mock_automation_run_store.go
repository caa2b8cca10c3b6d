package mocks

import (
	"context"
	"time"

	"github.com/RezaEskandarii/workflowq/types"
	"github.com/google/uuid"
)

// MockAutomationRunStore is a mock implementation of store.AutomationRunStore for testing.
type MockAutomationRunStore struct {
	RecordFunc     func(ctx context.Context, run types.AutomationRun) (*types.AutomationRun, error)
	CountSinceFunc func(ctx context.Context, since time.Time) (types.RunCounts, error)
}

func (m *MockAutomationRunStore) Record(ctx context.Context, run types.AutomationRun) (*types.AutomationRun, error) {
	if m.RecordFunc != nil {
		return m.RecordFunc(ctx, run)
	}
	run.ID = uuid.New()
	return &run, nil
}

func (m *MockAutomationRunStore) CountSince(ctx context.Context, since time.Time) (types.RunCounts, error) {
	if m.CountSinceFunc != nil {
		return m.CountSinceFunc(ctx, since)
	}
	return types.RunCounts{}, nil
}
