package core

import "time"

// Assignment binds one task to one agent for one attempt. A task owns between
// one and several assignments depending on its dispatch strategy.
type Assignment struct {
	TaskID      string           `json:"task_id"`
	AgentID     string           `json:"agent_id"`
	Status      AssignmentStatus `json:"status"`
	AssignedAt  time.Time        `json:"assigned_at"`
	StartedAt   time.Time        `json:"started_at,omitempty"`
	CompletedAt time.Time        `json:"completed_at,omitempty"`
	Output      map[string]any   `json:"output,omitempty"`
	Error       string           `json:"error,omitempty"`
}

// Latency returns the invocation duration, or zero if the attempt never
// started or never finished.
func (a Assignment) Latency() time.Duration {
	if a.StartedAt.IsZero() || a.CompletedAt.IsZero() {
		return 0
	}
	return a.CompletedAt.Sub(a.StartedAt)
}
