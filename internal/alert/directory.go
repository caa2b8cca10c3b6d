package alert

import "context"

// Directory resolves who is told about escalated errors. It is consulted at
// alert time so recipient changes apply without a restart of the tracker.
type Directory interface {
	// Recipients returns email addresses for CRITICAL alerts.
	Recipients(ctx context.Context) ([]string, error)
	// EscalationUserIDs returns the users that get in-app SYSTEM_ALERT notifications.
	EscalationUserIDs(ctx context.Context) ([]string, error)
}

type StaticDirectory struct {
	recipients []string
	userIDs    []string
}

func NewStaticDirectory(recipients, userIDs []string) *StaticDirectory {
	return &StaticDirectory{
		recipients: compact(recipients),
		userIDs:    compact(userIDs),
	}
}

func (d *StaticDirectory) Recipients(context.Context) ([]string, error) {
	return d.recipients, nil
}

func (d *StaticDirectory) EscalationUserIDs(context.Context) ([]string, error) {
	return d.userIDs, nil
}

func compact(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
