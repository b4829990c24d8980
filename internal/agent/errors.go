package agent

import (
	"errors"
	"fmt"
)

var (
	// ErrTimeout is returned when an invocation exceeds the configured timeout.
	ErrTimeout = errors.New("agent invocation timed out")
	// ErrRunnerCrashed is returned when the runner exits without a result.
	ErrRunnerCrashed = errors.New("agent runner crashed")
	// ErrUnknownTenant is returned when the tenant is not registered.
	ErrUnknownTenant = errors.New("unknown tenant")
)

// RunnerError is a failure reported by the worker itself.
type RunnerError struct {
	Message string
}

func (e *RunnerError) Error() string {
	return fmt.Sprintf("agent runner error: %s", e.Message)
}
