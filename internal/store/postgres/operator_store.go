package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/RezaEskandarii/workflowq/internal/store"
	"github.com/RezaEskandarii/workflowq/types"
	"golang.org/x/crypto/bcrypt"
)

var errOperatorNotFound = errors.New("operator not found")

type postgresOperatorStore struct {
	db *sql.DB
}

// NewPostgresOperatorStore creates a new OperatorStore with a DB connection
func NewPostgresOperatorStore(db *sql.DB) store.OperatorStore {
	return &postgresOperatorStore{db: db}
}

// Create stores the operator with a bcrypt hash, replacing the password of an
// existing operator with the same username.
func (r *postgresOperatorStore) Create(ctx context.Context, username, password string) (int64, error) {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return 0, err
	}
	query := `
		INSERT INTO workflowq.operators (username, password) VALUES ($1, $2)
		ON CONFLICT (username) DO UPDATE SET password = EXCLUDED.password
		RETURNING id`
	var id int64
	if err := r.db.QueryRowContext(ctx, query, username, string(hashedPassword)).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func (r *postgresOperatorStore) Find(ctx context.Context, username, password string) (*types.Operator, error) {
	query := `SELECT id, username, password FROM workflowq.operators WHERE username = $1`
	op := &types.Operator{}
	err := r.db.QueryRowContext(ctx, query, username).Scan(&op.ID, &op.Username, &op.Password)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(op.Password), []byte(password)); err != nil {
		return nil, errOperatorNotFound
	}
	op.Password = ""
	return op, nil
}

func (r *postgresOperatorStore) FindByUsername(ctx context.Context, username string) (*types.Operator, error) {
	query := `SELECT id, username FROM workflowq.operators WHERE username = $1`
	op := &types.Operator{}
	err := r.db.QueryRowContext(ctx, query, username).Scan(&op.ID, &op.Username)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return op, nil
}

func (r *postgresOperatorStore) Delete(ctx context.Context, username string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM workflowq.operators WHERE username = $1`, username)
	if err != nil {
		return err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return errors.New("no operator found to delete")
	}
	return nil
}
