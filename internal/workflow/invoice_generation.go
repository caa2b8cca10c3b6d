package workflow

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/RezaEskandarii/workflowq/internal/store"
	"github.com/RezaEskandarii/workflowq/types"
)

func (d *Deps) generateInvoice(ctx context.Context, item types.QueueItem, p types.InvoiceGenerationPayload) error {
	existing, err := d.Invoices.FindByProjectAndPeriod(ctx, p.ProjectID, p.Period)
	if err != nil {
		return fmt.Errorf("find invoice: %w", err)
	}
	if existing != nil {
		d.Logger.Info("invoice already generated", "project_id", p.ProjectID, "period", p.Period, "invoice_id", existing.ID)
		return nil
	}

	entries, err := d.Practice.GetProjectHours(ctx, p.ProjectID, p.Period)
	if err != nil {
		return upstream(fmt.Errorf("get project hours: %w", err))
	}

	var hours, amount float64
	for _, e := range entries {
		hours += e.Hours
		amount += e.Hours * e.Rate
	}
	if hours <= 0 {
		return Permanent(fmt.Errorf("project %s has no billable hours for %s", p.ProjectID, p.Period))
	}

	invoice, err := d.Invoices.Create(ctx, types.Invoice{
		ProjectID: p.ProjectID,
		Period:    p.Period,
		Hours:     hours,
		Amount:    math.Round(amount*100) / 100,
		Status:    types.InvoiceDraft,
		CreatedAt: d.now(),
	})
	if errors.Is(err, store.ErrAlreadyExists) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("create invoice: %w", err)
	}

	return d.recordRun(ctx, item, p.ProjectID, map[string]any{
		"invoice_id": invoice.ID.String(),
		"period":     p.Period,
		"hours":      hours,
		"amount":     invoice.Amount,
	})
}
