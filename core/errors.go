package core

import (
	"errors"
	"fmt"
)

var (
	// ErrTaskNotFound is returned when a task id is unknown to the
	// orchestrator. It is a signal, not a failure: status queries for
	// genuinely unknown ids resolve to this sentinel instead of panicking.
	ErrTaskNotFound = errors.New("task not found")

	// ErrNoEligibleAgents is recorded on a task when the scorer produces an
	// empty candidate list. The task fails immediately without consuming a
	// worker slot or creating any assignment.
	ErrNoEligibleAgents = errors.New("no eligible agents for task requirements")

	// ErrWaitTimeout is returned by synchronous wait helpers when a task has
	// not reached a terminal state within the caller's deadline. The task
	// itself keeps running.
	ErrWaitTimeout = errors.New("timed out waiting for task result")
)

// ValidationError rejects a malformed TaskSpec synchronously at submission,
// before any queueing.
type ValidationError struct {
	Field  string
	Reason string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid task spec: %s: %s", e.Field, e.Reason)
}

// IsValidationError reports whether err is (or wraps) a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// InvocationError wraps a failure raised by the external agent invocation. It
// is captured on the individual assignment and never propagates out of the
// orchestrator; the active strategy decides whether to continue with another
// agent.
type InvocationError struct {
	AgentID string
	Err     error
}

// Error implements the error interface.
func (e *InvocationError) Error() string {
	return fmt.Sprintf("agent %s invocation failed: %v", e.AgentID, e.Err)
}

// Unwrap exposes the underlying cause.
func (e *InvocationError) Unwrap() error { return e.Err }
