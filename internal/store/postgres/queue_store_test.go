package postgres

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/RezaEskandarii/workflowq/internal/state"
	"github.com/RezaEskandarii/workflowq/internal/store"
	"github.com/RezaEskandarii/workflowq/types"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var queueColumnNames = []string{
	"id", "seq", "workflow_type", "payload", "status", "attempts", "max_attempts", "scheduled_for",
	"started_at", "completed_at", "error", "project_id", "user_id", "locked_by", "recoveries", "retry_of",
	"created_at", "updated_at",
}

func queueRowValues(id uuid.UUID, seq int64, status state.QueueStatus, attempts int, scheduledFor time.Time) []driver.Value {
	return []driver.Value{
		id.String(), seq, string(types.ContractDistribution), []byte(`{"project_id":"p","employee_id":"e"}`),
		string(status), attempts, 3, scheduledFor, nil, nil, nil, "p", "e", nil, 0, nil, scheduledFor, scheduledFor,
	}
}

func TestNewPostgresQueueStore(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	require.NotNil(t, NewPostgresQueueStore(db))
}

func TestPostgresQueueStore_Enqueue(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	queueStore := NewPostgresQueueStore(db)
	scheduledFor := time.Now().UTC().Add(time.Hour)
	id := uuid.New()
	project := "p"

	mock.ExpectQuery("INSERT INTO workflowq.queue_items").
		WithArgs(sqlmock.AnyArg(), types.ContractDistribution, sqlmock.AnyArg(), state.StatusPending, 3,
			scheduledFor, &project, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(queueColumnNames).
			AddRow(queueRowValues(id, 1, state.StatusPending, 0, scheduledFor)...))

	item, err := queueStore.Enqueue(context.Background(), types.NewQueueItem{
		WorkflowType: types.ContractDistribution,
		Payload:      json.RawMessage(`{"project_id":"p","employee_id":"e"}`),
		ScheduledFor: scheduledFor,
		MaxAttempts:  3,
		ProjectID:    &project,
	})
	require.NoError(t, err)
	assert.Equal(t, id, item.ID)
	assert.Equal(t, state.StatusPending, item.Status)
	assert.Equal(t, 0, item.Attempts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresQueueStore_ClaimDue(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	queueStore := NewPostgresQueueStore(db)
	now := time.Now().UTC()
	older, newer := uuid.New(), uuid.New()

	// RETURNING order is unspecified; the store sorts by (scheduled_for, seq).
	mock.ExpectQuery(`UPDATE workflowq.queue_items q\s+SET status = \$4.*FOR UPDATE SKIP LOCKED`).
		WithArgs(now, "node-a", 10, state.StatusProcessing, state.StatusPending).
		WillReturnRows(sqlmock.NewRows(queueColumnNames).
			AddRow(queueRowValues(newer, 2, state.StatusProcessing, 1, now.Add(-time.Minute))...).
			AddRow(queueRowValues(older, 1, state.StatusProcessing, 1, now.Add(-time.Minute))...))

	items, err := queueStore.ClaimDue(context.Background(), 10, now, "node-a")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, older, items[0].ID)
	assert.Equal(t, newer, items[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresQueueStore_ClaimDue_Error(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	queueStore := NewPostgresQueueStore(db)
	mock.ExpectQuery("UPDATE workflowq.queue_items").WillReturnError(errors.New("connection reset"))

	_, err = queueStore.ClaimDue(context.Background(), 10, time.Now(), "node-a")
	assert.ErrorContains(t, err, "failed to claim due items")
}

func TestPostgresQueueStore_MarkCompleted(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	queueStore := NewPostgresQueueStore(db)
	id := uuid.New()
	at := time.Now().UTC()

	mock.ExpectExec("UPDATE workflowq.queue_items").
		WithArgs(state.StatusCompleted, at, id, state.StatusProcessing).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, queueStore.MarkCompleted(context.Background(), id, at))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresQueueStore_MarkFailedRetry_NotProcessing(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	queueStore := NewPostgresQueueStore(db)
	id := uuid.New()
	next := time.Now().UTC().Add(5 * time.Minute)

	mock.ExpectExec("UPDATE workflowq.queue_items").
		WithArgs(state.StatusPending, "boom", next, id, state.StatusProcessing).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT status FROM workflowq.queue_items").
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("pending"))

	err = queueStore.MarkFailedRetry(context.Background(), id, "boom", next)
	assert.ErrorIs(t, err, store.ErrInvalidTransition)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresQueueStore_MarkFailedTerminal_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	queueStore := NewPostgresQueueStore(db)
	id := uuid.New()

	mock.ExpectExec("UPDATE workflowq.queue_items").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT status FROM workflowq.queue_items").
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"status"}))

	err = queueStore.MarkFailedTerminal(context.Background(), id, "boom", time.Now())
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresQueueStore_RecoverStuck(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	queueStore := NewPostgresQueueStore(db)
	now := time.Now().UTC()
	before := now.Add(-10 * time.Minute)
	requeued, failed := uuid.New(), uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE workflowq.queue_items").
		WithArgs(state.StatusPending, recoveredMessage, now, state.StatusProcessing, before, 3).
		WillReturnRows(sqlmock.NewRows(queueColumnNames).
			AddRow(queueRowValues(requeued, 1, state.StatusPending, 1, now)...))
	mock.ExpectQuery("UPDATE workflowq.queue_items").
		WithArgs(state.StatusFailed, recoveredMessage, now, state.StatusProcessing, before).
		WillReturnRows(sqlmock.NewRows(queueColumnNames).
			AddRow(queueRowValues(failed, 2, state.StatusFailed, 3, now)...))
	mock.ExpectCommit()

	result, err := queueStore.RecoverStuck(context.Background(), before, 3, now)
	require.NoError(t, err)
	require.Len(t, result.Requeued, 1)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, requeued, result.Requeued[0].ID)
	assert.Equal(t, failed, result.Failed[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresQueueStore_CountGroupedByStatus(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	queueStore := NewPostgresQueueStore(db)
	mock.ExpectQuery("SELECT status, COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"status", "count"}).
			AddRow("pending", 4).
			AddRow("failed", 1))

	counts, err := queueStore.CountGroupedByStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, counts[state.StatusPending])
	assert.Equal(t, 1, counts[state.StatusFailed])
	assert.Equal(t, 0, counts[state.StatusProcessing])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresQueueStore_List(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	queueStore := NewPostgresQueueStore(db)
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM workflowq.queue_items WHERE \(status = \$1\)`).
		WithArgs(state.StatusFailed).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(21))
	mock.ExpectQuery(`SELECT .* FROM workflowq.queue_items WHERE \(status = \$1\) ORDER BY seq DESC LIMIT 10 OFFSET 10`).
		WithArgs(state.StatusFailed).
		WillReturnRows(sqlmock.NewRows(queueColumnNames).
			AddRow(queueRowValues(uuid.New(), 11, state.StatusFailed, 3, now)...))

	page, err := queueStore.List(context.Background(), types.ItemFilter{Status: state.StatusFailed}, 2, 10)
	require.NoError(t, err)
	assert.Equal(t, 21, page.TotalItems)
	assert.Equal(t, 3, page.TotalPages)
	assert.Len(t, page.Items, 1)
	assert.True(t, page.HasPreviousPage)
	assert.NoError(t, mock.ExpectationsWereMet())
}
