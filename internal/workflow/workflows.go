package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/RezaEskandarii/workflowq/internal/practice"
	"github.com/RezaEskandarii/workflowq/internal/store"
	"github.com/RezaEskandarii/workflowq/types"
)

// Notifier sends in-app notifications. notify.Dispatcher implements it.
type Notifier interface {
	Send(ctx context.Context, n types.Notification) (*types.Notification, error)
}

// Deps are the collaborators shared by the built-in handlers.
type Deps struct {
	Practice      practice.Client
	Users         store.UserStore
	Contracts     store.ContractStore
	Invoices      store.InvoiceStore
	Notifications store.NotificationStore
	Runs          store.AutomationRunStore
	Notifier      Notifier
	AppBaseURL    string
	Logger        *slog.Logger

	Now   func() time.Time
	Token func() (string, error)
}

func (d *Deps) now() time.Time {
	if d.Now != nil {
		return d.Now().UTC()
	}
	return time.Now().UTC()
}

func (d *Deps) token() (string, error) {
	if d.Token != nil {
		return d.Token()
	}
	return NewUploadToken()
}

// RegisterBuiltin registers the contract distribution, hours reminder and
// invoice generation handlers.
func RegisterBuiltin(r *Registry, d *Deps) error {
	handlers := map[types.WorkflowType]Handler{
		types.ContractDistribution: Typed(d.distributeContract),
		types.HoursReminder:        Typed(d.remindHours),
		types.InvoiceGeneration:    Typed(d.generateInvoice),
	}
	for _, workflowType := range types.AllWorkflowTypes {
		if err := r.Register(workflowType, handlers[workflowType]); err != nil {
			return err
		}
	}
	return nil
}

// resolveUser finds the local user for a practice employee by external id, then
// by email (linking the external id), and creates one when neither matches.
func (d *Deps) resolveUser(ctx context.Context, e types.Employee) (*types.User, error) {
	user, err := d.Users.FindByExternalID(ctx, e.ExternalID)
	if err != nil {
		return nil, fmt.Errorf("find user by external id: %w", err)
	}
	if user != nil {
		return user, nil
	}

	if e.Email != "" {
		user, err = d.Users.FindByEmail(ctx, e.Email)
		if err != nil {
			return nil, fmt.Errorf("find user by email: %w", err)
		}
		if user != nil {
			if err := d.Users.LinkExternalID(ctx, user.ID, e.ExternalID); err != nil {
				return nil, fmt.Errorf("link external id: %w", err)
			}
			externalID := e.ExternalID
			user.ExternalID = &externalID
			return user, nil
		}
	}

	if strings.TrimSpace(e.Email) == "" {
		return nil, Permanent(fmt.Errorf("employee %s has no email address", e.ExternalID))
	}

	externalID := e.ExternalID
	user, err = d.Users.Create(ctx, types.User{
		ExternalID: &externalID,
		Email:      e.Email,
		FirstName:  e.FirstName,
		LastName:   e.LastName,
	})
	if errors.Is(err, store.ErrAlreadyExists) {
		// created concurrently by another item for the same employee
		user, err = d.Users.FindByExternalID(ctx, e.ExternalID)
		if err == nil && user == nil {
			err = fmt.Errorf("user for employee %s exists but cannot be found", e.ExternalID)
		}
		return user, err
	}
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

func (d *Deps) recordRun(ctx context.Context, item types.QueueItem, projectID string, metadata map[string]any) error {
	itemID := item.ID
	_, err := d.Runs.Record(ctx, types.AutomationRun{
		QueueItemID:  &itemID,
		WorkflowType: item.WorkflowType,
		Status:       types.RunSuccess,
		Metadata:     metadata,
		ProjectID:    &projectID,
		CreatedAt:    d.now(),
	})
	if err != nil {
		return fmt.Errorf("record automation run: %w", err)
	}
	return nil
}
