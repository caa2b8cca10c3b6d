package types

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownWorkflowType = errors.New("unknown workflow type")
	ErrInvalidPayload      = errors.New("invalid payload")
)

// Dependencies that DependencyError can name.
const (
	DependencyEmail        = "email"
	DependencyNotification = "notification"
	DependencyPractice     = "practice_api"
	DependencyBroker       = "broker"
)

// DependencyError tags a failure with the external collaborator that caused it,
// so classification does not have to guess from message text.
type DependencyError struct {
	Dependency string
	Err        error
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("%s: %v", e.Dependency, e.Err)
}

func (e *DependencyError) Unwrap() error {
	return e.Err
}

func NewDependencyError(dependency string, err error) error {
	if err == nil {
		return nil
	}
	return &DependencyError{Dependency: dependency, Err: err}
}
