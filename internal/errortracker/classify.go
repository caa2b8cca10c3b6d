package errortracker

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"net"
	"net/http"
	"regexp"
	"strings"
	"syscall"

	"github.com/RezaEskandarii/workflowq/internal/practice"
	"github.com/RezaEskandarii/workflowq/internal/state"
	"github.com/RezaEskandarii/workflowq/internal/workflow"
	"github.com/RezaEskandarii/workflowq/types"
	"github.com/lib/pq"
)

// Context keys read by the classifier.
const (
	ContextAttempts     = "attempts"
	ContextMaxAttempts  = "max_attempts"
	ContextWorkflowType = "workflow_type"
	ContextPermanent    = "permanent"
)

// ClassifySeverity applies the rules top to bottom; the first match wins.
//
//  1. connection refused by the notification or email dependency: critical
//  2. database error: critical
//  3. final attempt used up (or permanent failure): high
//  4. upstream 401: high
//  5. upstream 429 or timeout: medium
//  6. anything else: medium
func ClassifySeverity(err error, fields map[string]any) state.Severity {
	switch {
	case isAlertChannelDown(err):
		return state.SeverityCritical
	case isDatabaseError(err):
		return state.SeverityCritical
	case retriesExhausted(fields):
		return state.SeverityHigh
	case isUnauthorized(err):
		return state.SeverityHigh
	case isRateLimitOrTimeout(err):
		return state.SeverityMedium
	default:
		return state.SeverityMedium
	}
}

// ClassifyCategory maps an error to the part of the system at fault.
func ClassifyCategory(err error) state.ErrorCategory {
	var depErr *types.DependencyError
	var apiErr *practice.APIError
	switch {
	case isDatabaseError(err):
		return state.CategorySystem
	case errors.As(err, &depErr), errors.As(err, &apiErr):
		return state.CategoryIntegration
	case errors.Is(err, types.ErrInvalidPayload),
		errors.Is(err, types.ErrUnknownWorkflowType),
		workflow.IsPermanent(err):
		return state.CategoryData
	default:
		return state.CategoryWorkflow
	}
}

func isAlertChannelDown(err error) bool {
	var depErr *types.DependencyError
	if !errors.As(err, &depErr) {
		return false
	}
	if depErr.Dependency != types.DependencyEmail && depErr.Dependency != types.DependencyNotification {
		return false
	}
	return errors.Is(err, syscall.ECONNREFUSED) || containsAny(err, "connection refused", "econnrefused")
}

func isDatabaseError(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return true
	}
	if errors.Is(err, sql.ErrConnDone) || errors.Is(err, sql.ErrTxDone) || errors.Is(err, driver.ErrBadConn) {
		return true
	}
	// driver prefixes only; handler messages may mention a database in passing
	return containsAny(err, "pq: ", "sql: ")
}

func retriesExhausted(fields map[string]any) bool {
	if fields == nil {
		return false
	}
	if permanent, ok := fields[ContextPermanent].(bool); ok && permanent {
		return true
	}
	attempts, ok := toInt(fields[ContextAttempts])
	if !ok {
		return false
	}
	maxAttempts, ok := toInt(fields[ContextMaxAttempts])
	if !ok {
		return false
	}
	return attempts >= maxAttempts
}

func isUnauthorized(err error) bool {
	var apiErr *practice.APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized {
		return true
	}
	return statusCodeMentioned(err, "401") || containsAny(err, "unauthorized")
}

func isRateLimitOrTimeout(err error) bool {
	var apiErr *practice.APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return statusCodeMentioned(err, "429") || containsAny(err, "timeout", "timed out", "rate limit")
}

func containsAny(err error, needles ...string) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, n := range needles {
		if strings.Contains(msg, n) {
			return true
		}
	}
	return false
}

var statusCodePattern = regexp.MustCompile(`\b[1-5]\d\d\b`)

// statusCodeMentioned matches code as a standalone number so ids that happen to
// contain the digits do not count.
func statusCodeMentioned(err error, code string) bool {
	if err == nil {
		return false
	}
	for _, m := range statusCodePattern.FindAllString(err.Error(), -1) {
		if m == code {
			return true
		}
	}
	return false
}

// toInt accepts the numeric forms a context map holds before and after a JSON
// round trip.
func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}
