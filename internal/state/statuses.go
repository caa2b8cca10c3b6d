package state

// QueueStatus is the lifecycle state of a queue item.
type QueueStatus string

const (
	StatusPending    QueueStatus = "pending"
	StatusProcessing QueueStatus = "processing"
	StatusCompleted  QueueStatus = "completed"
	StatusFailed     QueueStatus = "failed"
)

func (s QueueStatus) String() string {
	return string(s)
}

// IsTerminal reports whether no further automatic transitions happen from s.
func (s QueueStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

func (s QueueStatus) IsValid() bool {
	for _, status := range AllStatuses {
		if status == s {
			return true
		}
	}
	return false
}

var AllStatuses = []QueueStatus{
	StatusPending,
	StatusProcessing,
	StatusCompleted,
	StatusFailed,
}

type Transition struct {
	From QueueStatus
	To   QueueStatus
}

// ValidTransitions is the complete queue item state machine. Pending is both the
// initial state and the state a failed attempt returns to while budget remains.
var ValidTransitions = []Transition{
	{From: StatusPending, To: StatusProcessing},
	{From: StatusProcessing, To: StatusCompleted},
	{From: StatusProcessing, To: StatusPending},
	{From: StatusProcessing, To: StatusFailed},
}

func IsValidTransition(from, to QueueStatus) bool {
	for _, t := range ValidTransitions {
		if t.From == from && t.To == to {
			return true
		}
	}
	return false
}
