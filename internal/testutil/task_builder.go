package testutil

import (
	"fmt"
	"time"

	"github.com/hupe1980/taskmesh/core"
)

// TaskBuilder provides a fluent helper for constructing tasks in tests.
// Example:
//
//	task := NewTaskBuilder().Priority("critical").Strategy("parallel").Build(t)
//
// Chain only the parts you need; sensible defaults are applied.
type TaskBuilder struct {
	id   string
	spec core.TaskSpec
	now  time.Time
}

// NewTaskBuilder creates a builder with a deterministic default ID and a
// non-empty description.
func NewTaskBuilder() *TaskBuilder {
	return &TaskBuilder{
		id: "task-1",
		spec: core.TaskSpec{
			Type:        "general",
			Description: "test task",
		},
		now: time.Now(),
	}
}

// ID overrides the auto-assigned task ID (chainable).
func (b *TaskBuilder) ID(id string) *TaskBuilder { b.id = id; return b }

// Type sets the task type (chainable).
func (b *TaskBuilder) Type(t string) *TaskBuilder { b.spec.Type = t; return b }

// Description sets the task description (chainable).
func (b *TaskBuilder) Description(d string) *TaskBuilder { b.spec.Description = d; return b }

// Requirements sets the required capability names (chainable).
func (b *TaskBuilder) Requirements(names ...string) *TaskBuilder {
	b.spec.Requirements = names
	return b
}

// Priority sets the priority name exactly as a caller would submit it (chainable).
func (b *TaskBuilder) Priority(p string) *TaskBuilder { b.spec.Priority = p; return b }

// Strategy sets the strategy name exactly as a caller would submit it (chainable).
func (b *TaskBuilder) Strategy(s string) *TaskBuilder { b.spec.Strategy = s; return b }

// Payload sets the opaque task payload (chainable).
func (b *TaskBuilder) Payload(p map[string]any) *TaskBuilder { b.spec.Payload = p; return b }

// Timeout sets TimeoutSeconds from a duration (chainable).
func (b *TaskBuilder) Timeout(d time.Duration) *TaskBuilder {
	b.spec.TimeoutSeconds = int(d / time.Second)
	return b
}

// CreatedAt pins the task creation instant for deterministic deadline tests (chainable).
func (b *TaskBuilder) CreatedAt(at time.Time) *TaskBuilder { b.now = at; return b }

// Spec returns the accumulated TaskSpec without building a task.
func (b *TaskBuilder) Spec() core.TaskSpec { return b.spec }

// Build constructs the task, panicking on validation failure. Tests that
// exercise validation itself should call core.NewTask directly.
func (b *TaskBuilder) Build() *core.Task {
	task, err := core.NewTask(b.id, b.spec, b.now)
	if err != nil {
		panic(fmt.Sprintf("testutil: invalid task spec: %v", err))
	}
	return task
}
