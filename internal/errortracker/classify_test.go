package errortracker

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/RezaEskandarii/workflowq/internal/practice"
	"github.com/RezaEskandarii/workflowq/internal/state"
	"github.com/RezaEskandarii/workflowq/internal/workflow"
	"github.com/RezaEskandarii/workflowq/types"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestClassifySeverity(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		fields map[string]any
		want   state.Severity
	}{
		{
			name: "email connection refused",
			err:  types.NewDependencyError(types.DependencyEmail, errors.New("dial tcp 10.0.0.1:587: connect: connection refused")),
			want: state.SeverityCritical,
		},
		{
			name: "notification connection refused",
			err:  types.NewDependencyError(types.DependencyNotification, errors.New("ECONNREFUSED")),
			want: state.SeverityCritical,
		},
		{
			name: "practice api connection refused is not an alert channel",
			err:  types.NewDependencyError(types.DependencyPractice, errors.New("connection refused")),
			want: state.SeverityMedium,
		},
		{
			name: "postgres error",
			err:  fmt.Errorf("create contract: %w", &pq.Error{Code: "53300", Message: "too many connections"}),
			want: state.SeverityCritical,
		},
		{
			name: "closed connection",
			err:  fmt.Errorf("mark sent: %w", sql.ErrConnDone),
			want: state.SeverityCritical,
		},
		{
			name:   "database outranks exhausted retries",
			err:    errors.New("pq: canceling statement due to lock timeout"),
			fields: map[string]any{ContextAttempts: 3, ContextMaxAttempts: 3},
			want:   state.SeverityCritical,
		},
		{
			name: "database mentioned by a handler is not a database error",
			err:  errors.New("employee missing in practice database"),
			want: state.SeverityMedium,
		},
		{
			name:   "last attempt escalates a rate limit",
			err:    errors.New("practice api: status 429: slow down"),
			fields: map[string]any{ContextAttempts: 2, ContextMaxAttempts: 2},
			want:   state.SeverityHigh,
		},
		{
			name:   "attempts from json",
			err:    errors.New("boom"),
			fields: map[string]any{ContextAttempts: float64(3), ContextMaxAttempts: float64(3)},
			want:   state.SeverityHigh,
		},
		{
			name:   "permanent failure",
			err:    workflow.Permanent(errors.New("employee missing")),
			fields: map[string]any{ContextAttempts: 1, ContextMaxAttempts: 3, ContextPermanent: true},
			want:   state.SeverityHigh,
		},
		{
			name: "unauthorized",
			err:  &practice.APIError{StatusCode: http.StatusUnauthorized, Body: "bad token"},
			want: state.SeverityHigh,
		},
		{
			name: "unauthorized text",
			err:  errors.New("Unauthorized"),
			want: state.SeverityHigh,
		},
		{
			name:   "429 before the last attempt",
			err:    errors.New("status 429"),
			fields: map[string]any{ContextAttempts: 1, ContextMaxAttempts: 3},
			want:   state.SeverityMedium,
		},
		{
			name: "deadline",
			err:  fmt.Errorf("get employees: %w", context.DeadlineExceeded),
			want: state.SeverityMedium,
		},
		{
			name: "id containing 401 is not an auth failure",
			err:  errors.New("contract 94010a2c-0000-4000-8000-000000000401a: not found"),
			want: state.SeverityMedium,
		},
		{
			name: "default",
			err:  errors.New("something odd"),
			want: state.SeverityMedium,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifySeverity(tt.err, tt.fields))
		})
	}
}

func TestClassifyCategory(t *testing.T) {
	assert.Equal(t, state.CategorySystem, ClassifyCategory(&pq.Error{Code: "08006"}))
	assert.Equal(t, state.CategoryIntegration, ClassifyCategory(&practice.APIError{StatusCode: 502}))
	assert.Equal(t, state.CategoryIntegration, ClassifyCategory(types.NewDependencyError(types.DependencyNotification, errors.New("x"))))
	assert.Equal(t, state.CategoryData, ClassifyCategory(fmt.Errorf("%w: bad period", types.ErrInvalidPayload)))
	assert.Equal(t, state.CategoryData, ClassifyCategory(workflow.Permanent(errors.New("no hours"))))
	assert.Equal(t, state.CategoryWorkflow, ClassifyCategory(errors.New("boom")))
	assert.Equal(t, state.CategoryWorkflow, ClassifyCategory(errors.New("employee missing in practice database")))
	assert.Equal(t, state.CategorySystem, ClassifyCategory(errors.New("sql: database is closed")))
}
