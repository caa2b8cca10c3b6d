package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/RezaEskandarii/workflowq/internal/constants"
	"github.com/RezaEskandarii/workflowq/internal/state"
	"github.com/RezaEskandarii/workflowq/internal/store"
	"github.com/RezaEskandarii/workflowq/types"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

const (
	errorTable   = "workflowq.error_records"
	errorColumns = `id, error_type, severity, category, status, message, stack_trace, context,
		occurrence_count, first_occurrence, last_occurrence, queue_item_id, automation_run_id,
		project_id, user_id, resolved_by, resolved_at, resolution_notes, acknowledged_by,
		acknowledged_at, created_at, updated_at`
)

type PostgresErrorStore struct {
	db *sql.DB
}

func NewPostgresErrorStore(db *sql.DB) *PostgresErrorStore {
	return &PostgresErrorStore{db: db}
}

var _ store.ErrorStore = (*PostgresErrorStore)(nil)

func scanErrorRecord(row rowScanner, extra ...any) (*types.ErrorRecord, error) {
	var r types.ErrorRecord
	var rawContext []byte
	dest := []any{
		&r.ID, &r.ErrorType, &r.Severity, &r.Category, &r.Status, &r.Message, &r.StackTrace, &rawContext,
		&r.OccurrenceCount, &r.FirstOccurrence, &r.LastOccurrence, &r.QueueItemID, &r.AutomationRunID,
		&r.ProjectID, &r.UserID, &r.ResolvedBy, &r.ResolvedAt, &r.ResolutionNotes, &r.AcknowledgedBy,
		&r.AcknowledgedAt, &r.CreatedAt, &r.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	if len(rawContext) > 0 {
		if err := json.Unmarshal(rawContext, &r.Context); err != nil {
			return nil, fmt.Errorf("decode error context: %w", err)
		}
	}
	return &r, nil
}

// Upsert relies on the partial unique index over the dedup key of active
// records; a concurrent capture for the same key lands on the UPDATE branch.
func (s *PostgresErrorStore) Upsert(ctx context.Context, c types.ErrorCapture) (*types.ErrorRecord, bool, error) {
	var contextJSON any
	if c.Context != nil {
		raw, err := json.Marshal(c.Context)
		if err != nil {
			return nil, false, fmt.Errorf("failed to marshal error context: %w", err)
		}
		contextJSON = string(raw)
	}

	query := `
		INSERT INTO workflowq.error_records AS e
			(id, error_type, severity, severity_level, category, status, message, stack_trace, context,
			 occurrence_count, first_occurrence, last_occurrence, queue_item_id, automation_run_id,
			 project_id, user_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 1, $10, $10, $11, $12, $13, $14, $10, $10)
		ON CONFLICT (error_type, (COALESCE(project_id, '')), (COALESCE(user_id, ''))) WHERE status = 'active'
		DO UPDATE SET
			occurrence_count  = e.occurrence_count + 1,
			last_occurrence   = EXCLUDED.last_occurrence,
			message           = EXCLUDED.message,
			stack_trace       = EXCLUDED.stack_trace,
			context           = EXCLUDED.context,
			severity          = CASE WHEN EXCLUDED.severity_level > e.severity_level
			                         THEN EXCLUDED.severity ELSE e.severity END,
			severity_level    = GREATEST(e.severity_level, EXCLUDED.severity_level),
			queue_item_id     = COALESCE(EXCLUDED.queue_item_id, e.queue_item_id),
			automation_run_id = COALESCE(EXCLUDED.automation_run_id, e.automation_run_id),
			updated_at        = EXCLUDED.updated_at
		RETURNING ` + errorColumns + `, (xmax = 0) AS inserted`

	var inserted bool
	row := s.db.QueryRowContext(ctx, query,
		uuid.New(), c.ErrorType, c.Severity, c.Severity.Level(), c.Category, state.ErrorActive,
		c.Message, c.StackTrace, contextJSON, c.At, c.Keys.QueueItemID, c.Keys.AutomationRunID,
		c.Keys.ProjectID, c.Keys.UserID,
	)
	record, err := scanErrorRecord(row, &inserted)
	if err != nil {
		return nil, false, fmt.Errorf("failed to upsert error record %s: %w", c.ErrorType, err)
	}
	return record, inserted, nil
}

func (s *PostgresErrorStore) FindByID(ctx context.Context, id uuid.UUID) (*types.ErrorRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+errorColumns+` FROM workflowq.error_records WHERE id = $1`, id)
	record, err := scanErrorRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("error record %s: %w", id, store.ErrNotFound)
		}
		return nil, err
	}
	return record, nil
}

func (s *PostgresErrorStore) Transition(ctx context.Context, id uuid.UUID, t types.ErrorTransition) (*types.ErrorRecord, error) {
	var query string
	if t.To == state.ErrorAcknowledged {
		query = `
			UPDATE workflowq.error_records
			SET status = $1, acknowledged_by = $2, acknowledged_at = $3, updated_at = $3
			WHERE id = $4 AND status = ANY($5)
			RETURNING ` + errorColumns
	} else {
		query = `
			UPDATE workflowq.error_records
			SET status = $1, resolved_by = $2, resolved_at = $3, updated_at = $3, resolution_notes = $6
			WHERE id = $4 AND status = ANY($5)
			RETURNING ` + errorColumns
	}

	args := []any{t.To, t.Actor, t.At, id, statusArray(state.SourcesFor(t.To))}
	if t.To != state.ErrorAcknowledged {
		args = append(args, t.Notes)
	}

	record, err := scanErrorRecord(s.db.QueryRowContext(ctx, query, args...))
	if err == nil {
		return record, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	current, findErr := s.FindByID(ctx, id)
	if findErr != nil {
		return nil, findErr
	}
	return nil, fmt.Errorf("error record %s %s -> %s: %w", id, current.Status, t.To, store.ErrInvalidTransition)
}

func (s *PostgresErrorStore) AutoResolve(ctx context.Context, lastSeenBefore, at time.Time) (int, error) {
	query := `
		UPDATE workflowq.error_records
		SET status = $1, resolved_by = $2, resolved_at = $3, updated_at = $3
		WHERE status = ANY($4) AND last_occurrence < $5`
	result, err := s.db.ExecContext(ctx, query,
		state.ErrorAutoResolved, constants.SystemActor, at,
		statusArray(state.SourcesFor(state.ErrorAutoResolved)), lastSeenBefore,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to auto-resolve error records: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (s *PostgresErrorStore) CountOpenBySeverity(ctx context.Context) (map[state.Severity]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT severity, COUNT(*) AS count
		FROM workflowq.error_records
		WHERE status IN ('active', 'acknowledged')
		GROUP BY severity
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[state.Severity]int)
	for _, sev := range state.AllSeverities {
		result[sev] = 0
	}
	for rows.Next() {
		var severity state.Severity
		var count int
		if err := rows.Scan(&severity, &count); err != nil {
			return nil, err
		}
		result[severity] = count
	}
	return result, rows.Err()
}

func (s *PostgresErrorStore) List(ctx context.Context, filter types.ErrorFilter, page, pageSize int) (*types.PaginationResult[types.ErrorRecord], error) {
	page, pageSize, offset := types.NormalizePage(page, pageSize, constants.DefaultPageSize)

	where := squirrel.And{}
	if filter.Status != "" {
		where = append(where, squirrel.Eq{"status": filter.Status})
	}
	if filter.Severity != "" {
		where = append(where, squirrel.Eq{"severity": filter.Severity})
	}
	if filter.ErrorType != "" {
		where = append(where, squirrel.Eq{"error_type": filter.ErrorType})
	}

	countSQL, countArgs, err := psql.Select("COUNT(*)").From(errorTable).Where(where).ToSql()
	if err != nil {
		return nil, fmt.Errorf("PostgresErrorStore - List - count ToSql: %w", err)
	}
	var totalItems int
	if err := s.db.QueryRowContext(ctx, countSQL, countArgs...).Scan(&totalItems); err != nil {
		return nil, err
	}

	selectSQL, args, err := psql.Select(errorColumns).From(errorTable).Where(where).
		OrderBy("last_occurrence DESC").
		Limit(uint64(pageSize)).
		Offset(uint64(offset)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("PostgresErrorStore - List - select ToSql: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, selectSQL, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []types.ErrorRecord
	for rows.Next() {
		r, err := scanErrorRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return types.NewPaginationResult(records, totalItems, page, pageSize), nil
}

func statusArray(statuses []state.ErrorStatus) any {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return pq.Array(out)
}
