package store

import (
	"context"
	"time"

	"github.com/RezaEskandarii/workflowq/types"
	"github.com/google/uuid"
)

// Optional finds (FindBy...) return nil, nil when nothing matches.

type UserStore interface {
	FindByExternalID(ctx context.Context, externalID string) (*types.User, error)
	FindByEmail(ctx context.Context, email string) (*types.User, error)
	// Create returns ErrAlreadyExists when the email or external id is taken.
	Create(ctx context.Context, user types.User) (*types.User, error)
	// LinkExternalID attaches a practice-system id to a user found by email.
	LinkExternalID(ctx context.Context, userID uuid.UUID, externalID string) error
}

type ContractStore interface {
	FindByProjectAndUser(ctx context.Context, projectID string, userID uuid.UUID) (*types.Contract, error)
	// Create returns ErrAlreadyExists when (project, user) already has a contract.
	Create(ctx context.Context, contract types.Contract) (*types.Contract, error)
	MarkSent(ctx context.Context, id uuid.UUID, at time.Time) error
}

type NotificationStore interface {
	// Create returns ErrAlreadyExists when the user already has a notification
	// with the same dedup key.
	Create(ctx context.Context, n types.Notification) (*types.Notification, error)
	FindByDedupKey(ctx context.Context, userID, dedupKey string) (*types.Notification, error)
	MarkDelivered(ctx context.Context, id uuid.UUID, at time.Time) error
	ListByUser(ctx context.Context, userID string, limit int) ([]types.Notification, error)
}

type InvoiceStore interface {
	FindByProjectAndPeriod(ctx context.Context, projectID, period string) (*types.Invoice, error)
	// Create returns ErrAlreadyExists when (project, period) is already invoiced.
	Create(ctx context.Context, invoice types.Invoice) (*types.Invoice, error)
}

type AutomationRunStore interface {
	Record(ctx context.Context, run types.AutomationRun) (*types.AutomationRun, error)
	CountSince(ctx context.Context, since time.Time) (types.RunCounts, error)
}

// OperatorStore handles admin accounts for the operator API.
type OperatorStore interface {
	// Create replaces any operator with the same username and returns the new ID.
	Create(ctx context.Context, username, password string) (int64, error)

	// Find looks up an operator matching the given username and password.
	Find(ctx context.Context, username, password string) (*types.Operator, error)

	FindByUsername(ctx context.Context, username string) (*types.Operator, error)

	Delete(ctx context.Context, username string) error
}
