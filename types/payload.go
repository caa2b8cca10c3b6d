package types

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Payload is the tagged union of workflow inputs. Each workflow type has exactly
// one variant; DecodePayload is the only place that maps raw JSON to a variant.
type Payload interface {
	WorkflowType() WorkflowType
	CorrelationKeys() CorrelationKeys
	Validate() error
}

var periodPattern = regexp.MustCompile(`^\d{4}-(0[1-9]|1[0-2])$`)

type ContractDistributionPayload struct {
	ProjectID  string `json:"project_id"`
	EmployeeID string `json:"employee_id"`
}

func (ContractDistributionPayload) WorkflowType() WorkflowType { return ContractDistribution }

func (p ContractDistributionPayload) CorrelationKeys() CorrelationKeys {
	return CorrelationKeys{ProjectID: stringPtr(p.ProjectID), UserID: stringPtr(p.EmployeeID)}
}

func (p ContractDistributionPayload) Validate() error {
	var errs []error
	if strings.TrimSpace(p.ProjectID) == "" {
		errs = append(errs, errors.New("project_id is required"))
	}
	if strings.TrimSpace(p.EmployeeID) == "" {
		errs = append(errs, errors.New("employee_id is required"))
	}
	return errors.Join(errs...)
}

// HoursReminderPayload asks employees of a project to book their hours for a
// period (YYYY-MM). Employees with at least MinimumHours booked are skipped.
type HoursReminderPayload struct {
	ProjectID    string  `json:"project_id"`
	Period       string  `json:"period"`
	MinimumHours float64 `json:"minimum_hours,omitempty"`
}

func (HoursReminderPayload) WorkflowType() WorkflowType { return HoursReminder }

func (p HoursReminderPayload) CorrelationKeys() CorrelationKeys {
	return CorrelationKeys{ProjectID: stringPtr(p.ProjectID)}
}

func (p HoursReminderPayload) Validate() error {
	var errs []error
	if strings.TrimSpace(p.ProjectID) == "" {
		errs = append(errs, errors.New("project_id is required"))
	}
	if !periodPattern.MatchString(p.Period) {
		errs = append(errs, fmt.Errorf("period %q must be YYYY-MM", p.Period))
	}
	if p.MinimumHours < 0 {
		errs = append(errs, errors.New("minimum_hours must not be negative"))
	}
	return errors.Join(errs...)
}

type InvoiceGenerationPayload struct {
	ProjectID string `json:"project_id"`
	Period    string `json:"period"`
}

func (InvoiceGenerationPayload) WorkflowType() WorkflowType { return InvoiceGeneration }

func (p InvoiceGenerationPayload) CorrelationKeys() CorrelationKeys {
	return CorrelationKeys{ProjectID: stringPtr(p.ProjectID)}
}

func (p InvoiceGenerationPayload) Validate() error {
	var errs []error
	if strings.TrimSpace(p.ProjectID) == "" {
		errs = append(errs, errors.New("project_id is required"))
	}
	if !periodPattern.MatchString(p.Period) {
		errs = append(errs, fmt.Errorf("period %q must be YYYY-MM", p.Period))
	}
	return errors.Join(errs...)
}

// DecodePayload maps raw JSON to the variant registered for workflowType.
func DecodePayload(workflowType WorkflowType, raw json.RawMessage) (Payload, error) {
	var payload Payload
	switch workflowType {
	case ContractDistribution:
		var p ContractDistributionPayload
		if err := decodeStrict(raw, &p); err != nil {
			return nil, err
		}
		payload = p
	case HoursReminder:
		var p HoursReminderPayload
		if err := decodeStrict(raw, &p); err != nil {
			return nil, err
		}
		payload = p
	case InvoiceGeneration:
		var p InvoiceGenerationPayload
		if err := decodeStrict(raw, &p); err != nil {
			return nil, err
		}
		payload = p
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownWorkflowType, workflowType)
	}

	if err := payload.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidPayload, workflowType, err)
	}
	return payload, nil
}

// EncodePayload validates p and returns its JSON form.
func EncodePayload(p Payload) (json.RawMessage, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: nil payload", ErrInvalidPayload)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidPayload, p.WorkflowType(), err)
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return raw, nil
}

func decodeStrict(raw json.RawMessage, v any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}

func stringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
