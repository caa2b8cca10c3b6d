package workflow

import (
	"errors"
	"net/http"

	"github.com/RezaEskandarii/workflowq/internal/practice"
)

// PermanentError marks a failure that retrying cannot fix.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }

func (e *PermanentError) Unwrap() error { return e.Err }

func Permanent(err error) error {
	if err == nil {
		return nil
	}
	if IsPermanent(err) {
		return err
	}
	return &PermanentError{Err: err}
}

func IsPermanent(err error) bool {
	var p *PermanentError
	return errors.As(err, &p)
}

// upstream marks practice API client errors (4xx other than 401 and 429) as
// permanent. 401 stays transient so a rotated token can recover.
func upstream(err error) error {
	var apiErr *practice.APIError
	if errors.As(err, &apiErr) && !apiErr.Retryable() && apiErr.StatusCode != http.StatusUnauthorized {
		return Permanent(err)
	}
	return err
}
