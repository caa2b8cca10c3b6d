package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/RezaEskandarii/workflowq/internal/constants"
	"github.com/RezaEskandarii/workflowq/internal/state"
	"github.com/RezaEskandarii/workflowq/internal/store"
	"github.com/RezaEskandarii/workflowq/types"
	"github.com/google/uuid"
)

const (
	queueTable   = "workflowq.queue_items"
	queueColumns = `id, seq, workflow_type, payload, status, attempts, max_attempts, scheduled_for,
		started_at, completed_at, error, project_id, user_id, locked_by, recoveries, retry_of,
		created_at, updated_at`

	recoveredMessage = "recovered after stuck in processing"
)

type PostgresQueueStore struct {
	db *sql.DB
}

func NewPostgresQueueStore(db *sql.DB) *PostgresQueueStore {
	return &PostgresQueueStore{db: db}
}

var _ store.QueueStore = (*PostgresQueueStore)(nil)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanQueueItem(row rowScanner) (*types.QueueItem, error) {
	var item types.QueueItem
	err := row.Scan(
		&item.ID, &item.Seq, &item.WorkflowType, &item.Payload, &item.Status, &item.Attempts,
		&item.MaxAttempts, &item.ScheduledFor, &item.StartedAt, &item.CompletedAt, &item.Error,
		&item.ProjectID, &item.UserID, &item.LockedBy, &item.Recoveries, &item.RetryOf,
		&item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func scanQueueItems(rows *sql.Rows) ([]types.QueueItem, error) {
	defer rows.Close()
	var items []types.QueueItem
	for rows.Next() {
		item, err := scanQueueItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

func (s *PostgresQueueStore) Enqueue(ctx context.Context, in types.NewQueueItem) (*types.QueueItem, error) {
	if in.MaxAttempts < 1 {
		in.MaxAttempts = constants.DefaultMaxAttempts
	}
	if in.ScheduledFor.IsZero() {
		in.ScheduledFor = time.Now().UTC()
	}

	query := `
		INSERT INTO workflowq.queue_items
			(id, workflow_type, payload, status, max_attempts, scheduled_for, project_id, user_id, retry_of)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING ` + queueColumns

	row := s.db.QueryRowContext(ctx, query,
		uuid.New(), in.WorkflowType, string(in.Payload), state.StatusPending, in.MaxAttempts,
		in.ScheduledFor, in.ProjectID, in.UserID, in.RetryOf,
	)
	item, err := scanQueueItem(row)
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue %s: %w", in.WorkflowType, err)
	}
	return item, nil
}

func (s *PostgresQueueStore) FindByID(ctx context.Context, id uuid.UUID) (*types.QueueItem, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+queueColumns+` FROM workflowq.queue_items WHERE id = $1`, id)
	item, err := scanQueueItem(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("queue item %s: %w", id, store.ErrNotFound)
		}
		return nil, err
	}
	return item, nil
}

// ClaimDue selects and transitions due items in one statement. SKIP LOCKED
// makes a concurrent claimer pass over rows this statement holds, so each
// item is handed to exactly one caller.
func (s *PostgresQueueStore) ClaimDue(ctx context.Context, limit int, now time.Time, claimedBy string) ([]types.QueueItem, error) {
	if limit < 1 {
		return nil, nil
	}
	query := `
		UPDATE workflowq.queue_items q
		SET status = $4, started_at = $1, attempts = q.attempts + 1, locked_by = $2, updated_at = $1
		WHERE q.id IN (
			SELECT id FROM workflowq.queue_items
			WHERE status = $5 AND scheduled_for <= $1
			ORDER BY scheduled_for ASC, seq ASC
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + queueColumns

	rows, err := s.db.QueryContext(ctx, query, now, claimedBy, limit, state.StatusProcessing, state.StatusPending)
	if err != nil {
		return nil, fmt.Errorf("failed to claim due items: %w", err)
	}
	items, err := scanQueueItems(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to claim due items: %w", err)
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].ScheduledFor.Equal(items[j].ScheduledFor) {
			return items[i].ScheduledFor.Before(items[j].ScheduledFor)
		}
		return items[i].Seq < items[j].Seq
	})
	return items, nil
}

func (s *PostgresQueueStore) MarkCompleted(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `
		UPDATE workflowq.queue_items
		SET status = $1, completed_at = $2, error = NULL, locked_by = NULL, updated_at = $2
		WHERE id = $3 AND status = $4`
	return s.finish(ctx, id, query, state.StatusCompleted, at, id, state.StatusProcessing)
}

func (s *PostgresQueueStore) MarkFailedRetry(ctx context.Context, id uuid.UUID, errMsg string, next time.Time) error {
	query := `
		UPDATE workflowq.queue_items
		SET status = $1, error = $2, scheduled_for = $3, locked_by = NULL, updated_at = now()
		WHERE id = $4 AND status = $5`
	return s.finish(ctx, id, query, state.StatusPending, errMsg, next, id, state.StatusProcessing)
}

func (s *PostgresQueueStore) MarkFailedTerminal(ctx context.Context, id uuid.UUID, errMsg string, at time.Time) error {
	query := `
		UPDATE workflowq.queue_items
		SET status = $1, error = $2, completed_at = $3, locked_by = NULL, updated_at = $3
		WHERE id = $4 AND status = $5`
	return s.finish(ctx, id, query, state.StatusFailed, errMsg, at, id, state.StatusProcessing)
}

// finish runs a conditional status update. Zero affected rows means the item
// left processing underneath us (or never existed).
func (s *PostgresQueueStore) finish(ctx context.Context, id uuid.UUID, query string, args ...any) error {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected > 0 {
		return nil
	}

	var current state.QueueStatus
	err = s.db.QueryRowContext(ctx, `SELECT status FROM workflowq.queue_items WHERE id = $1`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("queue item %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("queue item %s is %s: %w", id, current, store.ErrInvalidTransition)
}

func (s *PostgresQueueStore) RecoverStuck(ctx context.Context, startedBefore time.Time, maxRecoveries int, at time.Time) (*types.RecoveryResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	requeue := `
		UPDATE workflowq.queue_items
		SET status = $1, recoveries = recoveries + 1, error = $2, locked_by = NULL,
		    scheduled_for = $3, updated_at = $3
		WHERE status = $4 AND started_at < $5 AND recoveries < $6 AND attempts < max_attempts
		RETURNING ` + queueColumns
	rows, err := tx.QueryContext(ctx, requeue,
		state.StatusPending, recoveredMessage, at, state.StatusProcessing, startedBefore, maxRecoveries)
	if err != nil {
		return nil, fmt.Errorf("failed to requeue stuck items: %w", err)
	}
	requeued, err := scanQueueItems(rows)
	if err != nil {
		return nil, err
	}

	fail := `
		UPDATE workflowq.queue_items
		SET status = $1, error = $2, completed_at = $3, locked_by = NULL, updated_at = $3
		WHERE status = $4 AND started_at < $5
		RETURNING ` + queueColumns
	rows, err = tx.QueryContext(ctx, fail,
		state.StatusFailed, recoveredMessage, at, state.StatusProcessing, startedBefore)
	if err != nil {
		return nil, fmt.Errorf("failed to fail stuck items: %w", err)
	}
	failed, err := scanQueueItems(rows)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &types.RecoveryResult{Requeued: requeued, Failed: failed}, nil
}

func (s *PostgresQueueStore) CountGroupedByStatus(ctx context.Context) (map[state.QueueStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT status, COUNT(*) AS count
		FROM workflowq.queue_items
		GROUP BY status
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[state.QueueStatus]int)
	for rows.Next() {
		var status state.QueueStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		result[status] = count
	}

	for _, status := range state.AllStatuses {
		if _, ok := result[status]; !ok {
			result[status] = 0
		}
	}

	return result, rows.Err()
}

func (s *PostgresQueueStore) List(ctx context.Context, filter types.ItemFilter, page, pageSize int) (*types.PaginationResult[types.QueueItem], error) {
	page, pageSize, offset := types.NormalizePage(page, pageSize, constants.DefaultPageSize)

	where := squirrel.And{}
	if filter.Status != "" {
		where = append(where, squirrel.Eq{"status": filter.Status})
	}
	if filter.WorkflowType != "" {
		where = append(where, squirrel.Eq{"workflow_type": filter.WorkflowType})
	}
	if filter.ProjectID != "" {
		where = append(where, squirrel.Eq{"project_id": filter.ProjectID})
	}

	countSQL, countArgs, err := psql.Select("COUNT(*)").From(queueTable).Where(where).ToSql()
	if err != nil {
		return nil, fmt.Errorf("PostgresQueueStore - List - count ToSql: %w", err)
	}
	var totalItems int
	if err := s.db.QueryRowContext(ctx, countSQL, countArgs...).Scan(&totalItems); err != nil {
		return nil, err
	}

	selectSQL, args, err := psql.Select(queueColumns).From(queueTable).Where(where).
		OrderBy("seq DESC").
		Limit(uint64(pageSize)).
		Offset(uint64(offset)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("PostgresQueueStore - List - select ToSql: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, selectSQL, args...)
	if err != nil {
		return nil, err
	}
	items, err := scanQueueItems(rows)
	if err != nil {
		return nil, err
	}

	return types.NewPaginationResult(items, totalItems, page, pageSize), nil
}
