package core

import (
	"strings"
	"sync/atomic"
	"time"
)

// DefaultTimeout applies when a TaskSpec does not set TimeoutSeconds.
const DefaultTimeout = 300 * time.Second

// TaskSpec is the untyped request shape accepted at the submission boundary.
// Priority and Strategy arrive as strings and are validated into their closed
// enum types before any queueing happens.
type TaskSpec struct {
	// Type categorizes the work (e.g. "research", "code").
	Type string `json:"type" yaml:"type"`
	// Description is required and must be non-empty.
	Description string `json:"description" yaml:"description"`
	// Requirements lists the capability names an agent must provide.
	Requirements []string `json:"requirements" yaml:"requirements"`
	// Priority is one of critical, high, normal, low, background. Empty
	// defaults to normal.
	Priority string `json:"priority" yaml:"priority"`
	// Strategy is one of single, parallel, sequential, consensus, fallback.
	// Empty defaults to single.
	Strategy string `json:"strategy" yaml:"strategy"`
	// Payload is the opaque task input handed to the invoked agents.
	Payload map[string]any `json:"payload" yaml:"payload"`
	// TimeoutSeconds bounds total task execution; 0 means DefaultTimeout.
	TimeoutSeconds int `json:"timeout_seconds" yaml:"timeout_seconds"`
	// OwnerID optionally identifies the submitting principal.
	OwnerID string `json:"owner_id" yaml:"owner_id"`
	// Callback, if set, is invoked asynchronously exactly once when the task
	// reaches a terminal state.
	Callback func(TaskResult) `json:"-" yaml:"-"`
}

// Task is an admitted work item. All fields except the cancellation flag are
// immutable after submission, so concurrent readers need no locking.
type Task struct {
	ID           string
	Type         string
	Description  string
	Requirements []string
	Priority     Priority
	Strategy     Strategy
	Payload      map[string]any
	Timeout      time.Duration
	OwnerID      string
	CreatedAt    time.Time

	// cancelled is shared between a task and its payload-substituted clones
	// so cancellation is observed across pipeline stages.
	cancelled *atomic.Bool
}

// NewTask validates a spec and builds the immutable task. It returns a
// ValidationError when the description is missing or the priority or strategy
// name is not a recognized enum value.
func NewTask(id string, spec TaskSpec, now time.Time) (*Task, error) {
	if strings.TrimSpace(spec.Description) == "" {
		return nil, &ValidationError{Field: "description", Reason: "description is required"}
	}
	priority, err := ParsePriority(spec.Priority)
	if err != nil {
		return nil, err
	}
	strategy, err := ParseStrategy(spec.Strategy)
	if err != nil {
		return nil, err
	}
	timeout := DefaultTimeout
	if spec.TimeoutSeconds > 0 {
		timeout = time.Duration(spec.TimeoutSeconds) * time.Second
	}
	taskType := spec.Type
	if taskType == "" {
		taskType = "general"
	}
	return &Task{
		ID:           id,
		Type:         taskType,
		Description:  spec.Description,
		Requirements: append([]string(nil), spec.Requirements...),
		Priority:     priority,
		Strategy:     strategy,
		Payload:      spec.Payload,
		Timeout:      timeout,
		OwnerID:      spec.OwnerID,
		CreatedAt:    now,
		cancelled:    new(atomic.Bool),
	}, nil
}

// CloneWithPayload returns a task identical to t except for its payload. The
// clone shares t's cancellation flag: cancelling either is visible on both.
// Used by pipeline strategies to feed one stage's output into the next.
func (t *Task) CloneWithPayload(payload map[string]any) *Task {
	clone := *t
	clone.Payload = payload
	return &clone
}

// Cancel marks the task for cooperative cancellation. Strategies observe the
// flag at natural boundaries; an in-flight agent invocation is not forcibly
// interrupted.
func (t *Task) Cancel() { t.cancelled.Store(true) }

// Cancelled reports whether cancellation has been requested.
func (t *Task) Cancelled() bool { return t.cancelled.Load() }

// Deadline returns the instant at which the task times out.
func (t *Task) Deadline() time.Time { return t.CreatedAt.Add(t.Timeout) }
