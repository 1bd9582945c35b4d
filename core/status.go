package core

// TaskStatus tracks a task through its lifecycle. A task starts Queued, moves
// through Processing and ends in exactly one terminal state. Transitions out
// of a terminal state are never permitted.
type TaskStatus string

const (
	// TaskQueued means the task is waiting in the priority queue.
	TaskQueued TaskStatus = "queued"
	// TaskProcessing means the task occupies a worker slot and its strategy
	// is executing.
	TaskProcessing TaskStatus = "processing"
	// TaskCompleted is the successful terminal state.
	TaskCompleted TaskStatus = "completed"
	// TaskFailed is the terminal state for strategy or eligibility failures.
	TaskFailed TaskStatus = "failed"
	// TaskCancelled is the terminal state for caller-requested cancellation.
	TaskCancelled TaskStatus = "cancelled"
	// TaskTimedOut is the terminal state forced by the timeout monitor.
	TaskTimedOut TaskStatus = "timed_out"
)

// Terminal reports whether the status is final.
func (s TaskStatus) Terminal() bool {
	switch s {
	case TaskCompleted, TaskFailed, TaskCancelled, TaskTimedOut:
		return true
	default:
		return false
	}
}

// AssignmentStatus tracks one task/agent attempt. Assignments have a lifecycle
// independent of their owning task: a Sequential task may complete while an
// individual stage assignment failed.
type AssignmentStatus string

const (
	// AssignmentAssigned means the agent has been selected but not invoked.
	AssignmentAssigned AssignmentStatus = "assigned"
	// AssignmentProcessing means the agent invocation is in flight.
	AssignmentProcessing AssignmentStatus = "processing"
	// AssignmentCompleted means the invocation returned successfully.
	AssignmentCompleted AssignmentStatus = "completed"
	// AssignmentFailed means the invocation returned an error.
	AssignmentFailed AssignmentStatus = "failed"
	// AssignmentCancelled means the attempt was abandoned before completion.
	AssignmentCancelled AssignmentStatus = "cancelled"
)
