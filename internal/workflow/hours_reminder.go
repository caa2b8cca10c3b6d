package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/RezaEskandarii/workflowq/internal/store"
	"github.com/RezaEskandarii/workflowq/types"
)

const defaultMinimumHours = 1

func (d *Deps) remindHours(ctx context.Context, item types.QueueItem, p types.HoursReminderPayload) error {
	minimum := p.MinimumHours
	if minimum == 0 {
		minimum = defaultMinimumHours
	}

	employees, err := d.Practice.GetProjectEmployees(ctx, p.ProjectID)
	if err != nil {
		return upstream(fmt.Errorf("get project employees: %w", err))
	}
	entries, err := d.Practice.GetProjectHours(ctx, p.ProjectID, p.Period)
	if err != nil {
		return upstream(fmt.Errorf("get project hours: %w", err))
	}

	booked := make(map[string]float64, len(entries))
	for _, e := range entries {
		booked[e.EmployeeID] += e.Hours
	}

	dedupKey := fmt.Sprintf("hours_reminder:%s:%s", p.ProjectID, p.Period)
	reminded, skipped := 0, 0

	for _, employee := range employees {
		if booked[employee.ExternalID] >= minimum {
			continue
		}

		user, err := d.resolveUser(ctx, employee)
		if err != nil {
			return err
		}

		// an undelivered reminder from a failed attempt is resent by the notifier
		existing, err := d.Notifications.FindByDedupKey(ctx, user.ID.String(), dedupKey)
		if err != nil {
			return fmt.Errorf("check reminder: %w", err)
		}
		if existing != nil && existing.DeliveredAt != nil {
			skipped++
			continue
		}

		key := dedupKey
		_, err = d.Notifier.Send(ctx, types.Notification{
			UserID:   user.ID.String(),
			Type:     types.NotificationHoursReminder,
			Title:    fmt.Sprintf("Please book your hours for %s", p.Period),
			Body:     fmt.Sprintf("You have %.1f of %.1f hours booked on project %s for %s.", booked[employee.ExternalID], minimum, p.ProjectID, p.Period),
			DedupKey: &key,
		})
		if errors.Is(err, store.ErrAlreadyExists) {
			skipped++
			continue
		}
		if err != nil {
			return fmt.Errorf("send hours reminder: %w", err)
		}
		reminded++
	}

	return d.recordRun(ctx, item, p.ProjectID, map[string]any{
		"period":   p.Period,
		"reminded": reminded,
		"skipped":  skipped,
	})
}
