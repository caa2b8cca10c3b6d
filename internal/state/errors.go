package state

// ErrorStatus is the operator-facing lifecycle of an error record.
type ErrorStatus string

const (
	ErrorActive       ErrorStatus = "active"
	ErrorAcknowledged ErrorStatus = "acknowledged"
	ErrorDismissed    ErrorStatus = "dismissed"
	ErrorResolved     ErrorStatus = "resolved"
	ErrorAutoResolved ErrorStatus = "auto_resolved"
)

func (s ErrorStatus) String() string {
	return string(s)
}

// IsOpen reports whether the record still awaits operator attention.
func (s ErrorStatus) IsOpen() bool {
	return s == ErrorActive || s == ErrorAcknowledged
}

var AllErrorStatuses = []ErrorStatus{
	ErrorActive,
	ErrorAcknowledged,
	ErrorDismissed,
	ErrorResolved,
	ErrorAutoResolved,
}

type ErrorTransition struct {
	From ErrorStatus
	To   ErrorStatus
}

// ValidErrorTransitions are one-way: nothing leads back to active or acknowledged.
var ValidErrorTransitions = []ErrorTransition{
	{From: ErrorActive, To: ErrorAcknowledged},
	{From: ErrorActive, To: ErrorDismissed},
	{From: ErrorAcknowledged, To: ErrorDismissed},
	{From: ErrorActive, To: ErrorResolved},
	{From: ErrorAcknowledged, To: ErrorResolved},
	{From: ErrorActive, To: ErrorAutoResolved},
	{From: ErrorAcknowledged, To: ErrorAutoResolved},
}

func IsValidErrorTransition(from, to ErrorStatus) bool {
	for _, t := range ValidErrorTransitions {
		if t.From == from && t.To == to {
			return true
		}
	}
	return false
}

// SourcesFor lists every status that may move to the given target.
func SourcesFor(to ErrorStatus) []ErrorStatus {
	var from []ErrorStatus
	for _, t := range ValidErrorTransitions {
		if t.To == to {
			from = append(from, t.From)
		}
	}
	return from
}

type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

func (s Severity) String() string {
	return string(s)
}

// Level orders severities; higher is more severe. Unknown values rank lowest.
func (s Severity) Level() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	}
	return 0
}

// Escalates reports whether s is at least HIGH and therefore notifies operators.
func (s Severity) Escalates() bool {
	return s.Level() >= SeverityHigh.Level()
}

// MaxSeverity returns the more severe of a and b.
func MaxSeverity(a, b Severity) Severity {
	if b.Level() > a.Level() {
		return b
	}
	return a
}

var AllSeverities = []Severity{
	SeverityCritical,
	SeverityHigh,
	SeverityMedium,
	SeverityLow,
}

type ErrorCategory string

const (
	CategoryWorkflow    ErrorCategory = "workflow_error"
	CategoryIntegration ErrorCategory = "integration_error"
	CategoryData        ErrorCategory = "data_error"
	CategorySystem      ErrorCategory = "system_error"
)

func (c ErrorCategory) String() string {
	return string(c)
}
