package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/RezaEskandarii/workflowq/internal/store"
	"github.com/RezaEskandarii/workflowq/types"
	"github.com/google/uuid"
)

type PostgresUserStore struct {
	db *sql.DB
}

func NewPostgresUserStore(db *sql.DB) *PostgresUserStore {
	return &PostgresUserStore{db: db}
}

var _ store.UserStore = (*PostgresUserStore)(nil)

const userColumns = "id, external_id, email, first_name, last_name, created_at"

func (s *PostgresUserStore) findOne(ctx context.Context, where string, arg any) (*types.User, error) {
	u := &types.User{}
	err := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM workflowq.users WHERE `+where, arg).
		Scan(&u.ID, &u.ExternalID, &u.Email, &u.FirstName, &u.LastName, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return u, nil
}

func (s *PostgresUserStore) FindByExternalID(ctx context.Context, externalID string) (*types.User, error) {
	return s.findOne(ctx, "external_id = $1", externalID)
}

func (s *PostgresUserStore) FindByEmail(ctx context.Context, email string) (*types.User, error) {
	return s.findOne(ctx, "lower(email) = lower($1)", email)
}

func (s *PostgresUserStore) Create(ctx context.Context, user types.User) (*types.User, error) {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	query := `
		INSERT INTO workflowq.users (id, external_id, email, first_name, last_name)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`
	err := s.db.QueryRowContext(ctx, query, user.ID, user.ExternalID, user.Email, user.FirstName, user.LastName).
		Scan(&user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("user %s: %w", user.Email, store.ErrAlreadyExists)
		}
		return nil, err
	}
	return &user, nil
}

func (s *PostgresUserStore) LinkExternalID(ctx context.Context, userID uuid.UUID, externalID string) error {
	result, err := s.db.ExecContext(ctx, `UPDATE workflowq.users SET external_id = $1 WHERE id = $2`, externalID, userID)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("external id %s: %w", externalID, store.ErrAlreadyExists)
		}
		return err
	}
	return requireRow(result, "user", userID)
}

type PostgresContractStore struct {
	db *sql.DB
}

func NewPostgresContractStore(db *sql.DB) *PostgresContractStore {
	return &PostgresContractStore{db: db}
}

var _ store.ContractStore = (*PostgresContractStore)(nil)

func (s *PostgresContractStore) FindByProjectAndUser(ctx context.Context, projectID string, userID uuid.UUID) (*types.Contract, error) {
	c := &types.Contract{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, project_id, user_id, upload_token, status, sent_at, created_at
		FROM workflowq.contracts WHERE project_id = $1 AND user_id = $2`, projectID, userID).
		Scan(&c.ID, &c.ProjectID, &c.UserID, &c.UploadToken, &c.Status, &c.SentAt, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return c, nil
}

func (s *PostgresContractStore) Create(ctx context.Context, contract types.Contract) (*types.Contract, error) {
	if contract.ID == uuid.Nil {
		contract.ID = uuid.New()
	}
	query := `
		INSERT INTO workflowq.contracts (id, project_id, user_id, upload_token, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`
	err := s.db.QueryRowContext(ctx, query,
		contract.ID, contract.ProjectID, contract.UserID, contract.UploadToken, contract.Status,
	).Scan(&contract.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("contract %s/%s: %w", contract.ProjectID, contract.UserID, store.ErrAlreadyExists)
		}
		return nil, err
	}
	return &contract, nil
}

func (s *PostgresContractStore) MarkSent(ctx context.Context, id uuid.UUID, at time.Time) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE workflowq.contracts SET status = $1, sent_at = $2 WHERE id = $3`, types.ContractSent, at, id)
	if err != nil {
		return err
	}
	return requireRow(result, "contract", id)
}

type PostgresNotificationStore struct {
	db *sql.DB
}

func NewPostgresNotificationStore(db *sql.DB) *PostgresNotificationStore {
	return &PostgresNotificationStore{db: db}
}

var _ store.NotificationStore = (*PostgresNotificationStore)(nil)

func (s *PostgresNotificationStore) Create(ctx context.Context, n types.Notification) (*types.Notification, error) {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	query := `
		INSERT INTO workflowq.notifications (id, user_id, type, title, body, link, dedup_key, delivered_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at`
	err := s.db.QueryRowContext(ctx, query, n.ID, n.UserID, n.Type, n.Title, n.Body, n.Link, n.DedupKey, n.DeliveredAt).
		Scan(&n.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("notification for %s: %w", n.UserID, store.ErrAlreadyExists)
		}
		return nil, err
	}
	return &n, nil
}

func (s *PostgresNotificationStore) FindByDedupKey(ctx context.Context, userID, dedupKey string) (*types.Notification, error) {
	n := &types.Notification{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, type, title, body, link, dedup_key, created_at, delivered_at
		FROM workflowq.notifications WHERE user_id = $1 AND dedup_key = $2`, userID, dedupKey).
		Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Body, &n.Link, &n.DedupKey, &n.CreatedAt, &n.DeliveredAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return n, nil
}

func (s *PostgresNotificationStore) MarkDelivered(ctx context.Context, id uuid.UUID, at time.Time) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE workflowq.notifications SET delivered_at = $1 WHERE id = $2`, at, id)
	if err != nil {
		return err
	}
	return requireRow(result, "notification", id)
}

func (s *PostgresNotificationStore) ListByUser(ctx context.Context, userID string, limit int) ([]types.Notification, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, type, title, body, link, dedup_key, created_at, delivered_at
		FROM workflowq.notifications WHERE user_id = $1
		ORDER BY created_at DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.Notification
	for rows.Next() {
		var n types.Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Body, &n.Link, &n.DedupKey, &n.CreatedAt, &n.DeliveredAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

type PostgresInvoiceStore struct {
	db *sql.DB
}

func NewPostgresInvoiceStore(db *sql.DB) *PostgresInvoiceStore {
	return &PostgresInvoiceStore{db: db}
}

var _ store.InvoiceStore = (*PostgresInvoiceStore)(nil)

func (s *PostgresInvoiceStore) FindByProjectAndPeriod(ctx context.Context, projectID, period string) (*types.Invoice, error) {
	inv := &types.Invoice{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, project_id, period, hours, amount, status, created_at
		FROM workflowq.invoices WHERE project_id = $1 AND period = $2`, projectID, period).
		Scan(&inv.ID, &inv.ProjectID, &inv.Period, &inv.Hours, &inv.Amount, &inv.Status, &inv.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return inv, nil
}

func (s *PostgresInvoiceStore) Create(ctx context.Context, invoice types.Invoice) (*types.Invoice, error) {
	if invoice.ID == uuid.Nil {
		invoice.ID = uuid.New()
	}
	query := `
		INSERT INTO workflowq.invoices (id, project_id, period, hours, amount, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`
	err := s.db.QueryRowContext(ctx, query,
		invoice.ID, invoice.ProjectID, invoice.Period, invoice.Hours, invoice.Amount, invoice.Status,
	).Scan(&invoice.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("invoice %s/%s: %w", invoice.ProjectID, invoice.Period, store.ErrAlreadyExists)
		}
		return nil, err
	}
	return &invoice, nil
}

type PostgresAutomationRunStore struct {
	db *sql.DB
}

func NewPostgresAutomationRunStore(db *sql.DB) *PostgresAutomationRunStore {
	return &PostgresAutomationRunStore{db: db}
}

var _ store.AutomationRunStore = (*PostgresAutomationRunStore)(nil)

func (s *PostgresAutomationRunStore) Record(ctx context.Context, run types.AutomationRun) (*types.AutomationRun, error) {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	var metadata any
	if run.Metadata != nil {
		raw, err := json.Marshal(run.Metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal run metadata: %w", err)
		}
		metadata = string(raw)
	}
	query := `
		INSERT INTO workflowq.automation_runs (id, queue_item_id, workflow_type, status, error, metadata, project_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`
	err := s.db.QueryRowContext(ctx, query,
		run.ID, run.QueueItemID, run.WorkflowType, run.Status, run.Error, metadata, run.ProjectID,
	).Scan(&run.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to record automation run: %w", err)
	}
	return &run, nil
}

func (s *PostgresAutomationRunStore) CountSince(ctx context.Context, since time.Time) (types.RunCounts, error) {
	var counts types.RunCounts
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE status = $1)
		FROM workflowq.automation_runs WHERE created_at >= $2`, types.RunFailed, since).
		Scan(&counts.Total, &counts.Failed)
	return counts, err
}

func requireRow(result sql.Result, kind string, id uuid.UUID) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, store.ErrNotFound)
	}
	return nil
}
