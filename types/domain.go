package types

import (
	"time"

	"github.com/google/uuid"
)

// User is a local account. ExternalID links it to the practice-management system.
type User struct {
	ID         uuid.UUID `json:"id"`
	ExternalID *string   `json:"external_id,omitempty"`
	Email      string    `json:"email"`
	FirstName  string    `json:"first_name"`
	LastName   string    `json:"last_name"`
	CreatedAt  time.Time `json:"created_at"`
}

// Employee is a project member as reported by the practice API.
type Employee struct {
	ExternalID string  `json:"id"`
	Email      string  `json:"email"`
	FirstName  string  `json:"first_name"`
	LastName   string  `json:"last_name"`
	HourlyRate float64 `json:"hourly_rate"`
}

// HoursEntry is the booked time of one employee for one period.
type HoursEntry struct {
	EmployeeID string  `json:"employee_id"`
	Hours      float64 `json:"hours"`
	Rate       float64 `json:"rate"`
}

type ContractStatus string

const (
	ContractPending ContractStatus = "pending"
	ContractSent    ContractStatus = "sent"
)

// Contract is unique per (project, user); a second distribution for the same pair
// is a no-op.
type Contract struct {
	ID          uuid.UUID      `json:"id"`
	ProjectID   string         `json:"project_id"`
	UserID      uuid.UUID      `json:"user_id"`
	UploadToken string         `json:"-"`
	Status      ContractStatus `json:"status"`
	SentAt      *time.Time     `json:"sent_at,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

type NotificationType string

const (
	NotificationContractUpload NotificationType = "CONTRACT_UPLOAD"
	NotificationHoursReminder  NotificationType = "HOURS_REMINDER"
	NotificationSystemAlert    NotificationType = "SYSTEM_ALERT"
)

// Notification is an in-app message. A non-empty DedupKey is unique per user.
type Notification struct {
	ID        uuid.UUID        `json:"id"`
	UserID    string           `json:"user_id"`
	Type      NotificationType `json:"type"`
	Title     string           `json:"title"`
	Body      string           `json:"body"`
	Link      *string          `json:"link,omitempty"`
	DedupKey  *string          `json:"dedup_key,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	// DeliveredAt is set once the notification has been handed to the broker, or
	// at creation when no broker is configured.
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
}

// NotificationEvent is the message published to the broker for delivery channels.
type NotificationEvent struct {
	NotificationID uuid.UUID        `json:"notification_id"`
	UserID         string           `json:"user_id"`
	Type           NotificationType `json:"type"`
	Title          string           `json:"title"`
	Body           string           `json:"body"`
	Link           *string          `json:"link,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
}

func (n Notification) Event() NotificationEvent {
	return NotificationEvent{
		NotificationID: n.ID,
		UserID:         n.UserID,
		Type:           n.Type,
		Title:          n.Title,
		Body:           n.Body,
		Link:           n.Link,
		CreatedAt:      n.CreatedAt,
	}
}

type InvoiceStatus string

const InvoiceDraft InvoiceStatus = "draft"

type Invoice struct {
	ID        uuid.UUID     `json:"id"`
	ProjectID string        `json:"project_id"`
	Period    string        `json:"period"`
	Hours     float64       `json:"hours"`
	Amount    float64       `json:"amount"`
	Status    InvoiceStatus `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
}

type RunStatus string

const (
	RunSuccess RunStatus = "SUCCESS"
	RunFailed  RunStatus = "FAILED"
)

// AutomationRun is the audit log entry of one workflow execution attempt.
type AutomationRun struct {
	ID           uuid.UUID      `json:"id"`
	QueueItemID  *uuid.UUID     `json:"queue_item_id,omitempty"`
	WorkflowType WorkflowType   `json:"workflow_type"`
	Status       RunStatus      `json:"status"`
	Error        *string        `json:"error,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	ProjectID    *string        `json:"project_id,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// RunCounts is the number of automation runs in a window, split by outcome.
type RunCounts struct {
	Total  int
	Failed int
}

// Operator is an admin account for the operator API.
type Operator struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Password string `json:"-"`
}
