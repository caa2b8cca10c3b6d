package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/RezaEskandarii/workflowq/internal/store"
	"github.com/RezaEskandarii/workflowq/types"
	"github.com/google/uuid"
)

func (d *Deps) distributeContract(ctx context.Context, item types.QueueItem, p types.ContractDistributionPayload) error {
	employees, err := d.Practice.GetProjectEmployees(ctx, p.ProjectID)
	if err != nil {
		return upstream(fmt.Errorf("get project employees: %w", err))
	}

	var employee *types.Employee
	for i := range employees {
		if employees[i].ExternalID == p.EmployeeID {
			employee = &employees[i]
			break
		}
	}
	if employee == nil {
		return Permanent(fmt.Errorf("employee %s is not on project %s", p.EmployeeID, p.ProjectID))
	}

	user, err := d.resolveUser(ctx, *employee)
	if err != nil {
		return err
	}

	contract, err := d.Contracts.FindByProjectAndUser(ctx, p.ProjectID, user.ID)
	if err != nil {
		return fmt.Errorf("find contract: %w", err)
	}
	switch {
	case contract == nil:
		if contract, err = d.createContract(ctx, p.ProjectID, user.ID); err != nil {
			return err
		}
	case contract.Status == types.ContractSent:
		d.Logger.Info("contract already distributed", "project_id", p.ProjectID, "user_id", user.ID, "contract_id", contract.ID)
		return nil
	default:
		d.Logger.Info("resuming pending contract", "project_id", p.ProjectID, "user_id", user.ID, "contract_id", contract.ID)
	}
	if contract.Status == types.ContractSent {
		// a concurrent attempt finished first
		return nil
	}

	// one upload notification per contract, so a resumed attempt cannot send a second
	dedupKey := "contract_upload:" + contract.ID.String()
	link := fmt.Sprintf("%s/contracts/upload/%s", d.AppBaseURL, contract.UploadToken)
	notification, err := d.Notifier.Send(ctx, types.Notification{
		UserID:   user.ID.String(),
		Type:     types.NotificationContractUpload,
		Title:    "Your contract is ready",
		Body:     fmt.Sprintf("Please review and upload your signed contract for project %s.", p.ProjectID),
		Link:     &link,
		DedupKey: &dedupKey,
	})
	if err != nil && !errors.Is(err, store.ErrAlreadyExists) {
		return fmt.Errorf("send contract notification: %w", err)
	}

	if err := d.Contracts.MarkSent(ctx, contract.ID, d.now()); err != nil {
		return fmt.Errorf("mark contract sent: %w", err)
	}

	metadata := map[string]any{
		"contract_id": contract.ID.String(),
		"user_id":     user.ID.String(),
		"employee_id": p.EmployeeID,
	}
	if notification != nil {
		metadata["notification_id"] = notification.ID.String()
	}
	return d.recordRun(ctx, item, p.ProjectID, metadata)
}

// createContract inserts a pending contract with a fresh upload token. When a
// concurrent attempt wins the insert, its contract is returned instead.
func (d *Deps) createContract(ctx context.Context, projectID string, userID uuid.UUID) (*types.Contract, error) {
	token, err := d.token()
	if err != nil {
		return nil, err
	}

	contract, err := d.Contracts.Create(ctx, types.Contract{
		ProjectID:   projectID,
		UserID:      userID,
		UploadToken: token,
		Status:      types.ContractPending,
		CreatedAt:   d.now(),
	})
	if errors.Is(err, store.ErrAlreadyExists) {
		d.Logger.Info("contract created concurrently", "project_id", projectID, "user_id", userID)
		contract, err = d.Contracts.FindByProjectAndUser(ctx, projectID, userID)
		if err == nil && contract == nil {
			err = fmt.Errorf("contract %s/%s: %w", projectID, userID, store.ErrNotFound)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("create contract: %w", err)
	}
	return contract, nil
}
