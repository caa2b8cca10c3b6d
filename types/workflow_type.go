package types

import "strings"

// WorkflowType names the automated business process a queue item represents.
type WorkflowType string

const (
	ContractDistribution WorkflowType = "CONTRACT_DISTRIBUTION"
	HoursReminder        WorkflowType = "HOURS_REMINDER"
	InvoiceGeneration    WorkflowType = "INVOICE_GENERATION"
)

var AllWorkflowTypes = []WorkflowType{
	ContractDistribution,
	HoursReminder,
	InvoiceGeneration,
}

func (w WorkflowType) String() string {
	return string(w)
}

// Slug is the lower-case form used in error types and log fields.
func (w WorkflowType) Slug() string {
	return strings.ToLower(string(w))
}

func (w WorkflowType) IsKnown() bool {
	for _, known := range AllWorkflowTypes {
		if known == w {
			return true
		}
	}
	return false
}
