package core

import "time"

// TaskResult is the single aggregated outcome record of a task. One result is
// created per task at submission time (Queued) and moves monotonically through
// Processing into exactly one terminal state. Values handed out by the
// orchestrator are snapshots; mutating them has no effect on the live record.
type TaskResult struct {
	TaskID        string         `json:"task_id"`
	Status        TaskStatus     `json:"status"`
	Priority      Priority       `json:"priority"`
	Strategy      Strategy       `json:"strategy"`
	Assignments   []Assignment   `json:"assignments"`
	Output        map[string]any `json:"output,omitempty"`
	Error         string         `json:"error,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	CompletedAt   time.Time      `json:"completed_at,omitempty"`
	ExecutionTime time.Duration  `json:"execution_time"`
}

// Clone returns a deep enough copy for safe external use: the assignments
// slice is duplicated so callers cannot mutate the orchestrator's record.
func (r TaskResult) Clone() TaskResult {
	out := r
	out.Assignments = append([]Assignment(nil), r.Assignments...)
	return out
}
