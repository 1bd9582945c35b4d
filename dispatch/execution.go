package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/logging"
)

// Tracker receives per-assignment lifecycle notifications. The orchestrator
// wires this to the registry so scoring sees live load and rolling success
// rates; tests supply lightweight fakes.
type Tracker interface {
	AssignmentStarted(agentID string)
	AssignmentFinished(agentID string, success bool, latency time.Duration)
}

// NoOpTracker discards all notifications.
type NoOpTracker struct{}

// AssignmentStarted implements Tracker.
func (NoOpTracker) AssignmentStarted(string) {}

// AssignmentFinished implements Tracker.
func (NoOpTracker) AssignmentFinished(string, bool, time.Duration) {}

// Execution carries the state of one strategy run: the task, the ranked
// candidate list, the external invoker, and the assignment records produced
// along the way. It is safe for the concurrent use the Parallel and Consensus
// strategies make of it.
type Execution struct {
	ctx     context.Context
	task    *core.Task
	agents  []string
	invoker core.Invoker
	tracker Tracker
	logger  logging.Logger
	now     func() time.Time

	mu          sync.Mutex
	assignments []*core.Assignment
}

// ExecutionOptions configures optional Execution collaborators.
type ExecutionOptions struct {
	// Tracker defaults to NoOpTracker if nil.
	Tracker Tracker
	// Logger defaults to NoOpLogger if nil.
	Logger logging.Logger
	// Now overrides the clock, primarily for tests.
	Now func() time.Time
}

// NewExecution builds the execution state for one strategy run. agents must
// already be ranked by score descending.
func NewExecution(ctx context.Context, task *core.Task, agents []string, invoker core.Invoker, optFns ...func(o *ExecutionOptions)) *Execution {
	opts := ExecutionOptions{
		Tracker: NoOpTracker{},
		Logger:  logging.NoOpLogger{},
		Now:     time.Now,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Execution{
		ctx:     ctx,
		task:    task,
		agents:  agents,
		invoker: invoker,
		tracker: opts.Tracker,
		logger:  opts.Logger,
		now:     opts.Now,
	}
}

// Task returns the task under execution.
func (e *Execution) Task() *core.Task { return e.task }

// Agents returns the ranked candidate list.
func (e *Execution) Agents() []string { return e.agents }

// Assignments returns value copies of all assignment records created so far.
func (e *Execution) Assignments() []core.Assignment {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]core.Assignment, len(e.assignments))
	for i, a := range e.assignments {
		out[i] = *a
	}
	return out
}

// cancelled reports whether the run should stop at the next boundary.
func (e *Execution) cancelled() bool {
	return e.ctx.Err() != nil || e.task.Cancelled()
}

// invoke performs the full lifecycle of one assignment: record it, notify the
// tracker, call the external invoker, and fold the outcome back into the
// assignment and the tracker. The task's payload may be substituted (pipeline
// stages); pass nil to use the task's own payload.
func (e *Execution) invoke(agentID string, payload map[string]any) (map[string]any, error) {
	return e.invokeCtx(e.ctx, agentID, payload)
}

// invokeCtx is invoke under a narrower context. Consensus uses it so in-flight
// invocations observe the ballot window expiring.
func (e *Execution) invokeCtx(ctx context.Context, agentID string, payload map[string]any) (map[string]any, error) {
	task := e.task
	if payload != nil {
		task = task.CloneWithPayload(payload)
	}

	assignment := &core.Assignment{
		TaskID:     task.ID,
		AgentID:    agentID,
		Status:     core.AssignmentAssigned,
		AssignedAt: e.now(),
	}
	e.mu.Lock()
	e.assignments = append(e.assignments, assignment)
	assignment.StartedAt = e.now()
	assignment.Status = core.AssignmentProcessing
	e.mu.Unlock()

	e.tracker.AssignmentStarted(agentID)

	output, err := e.invoker.Invoke(ctx, agentID, task)
	completedAt := e.now()

	e.mu.Lock()
	latency := completedAt.Sub(assignment.StartedAt)
	if err != nil {
		assignment.Status = core.AssignmentFailed
		assignment.Error = err.Error()
		assignment.CompletedAt = completedAt
	} else {
		assignment.Status = core.AssignmentCompleted
		assignment.Output = output
		assignment.CompletedAt = completedAt
	}
	e.mu.Unlock()

	e.tracker.AssignmentFinished(agentID, err == nil, latency)

	if err != nil {
		e.logger.Warn("assignment failed", "task_id", task.ID, "agent_id", agentID, "error", err.Error())
		return nil, &core.InvocationError{AgentID: agentID, Err: err}
	}
	return output, nil
}

// CancelOutstanding marks every non-terminal assignment Cancelled. Called by
// the orchestrator on timeout or cancellation; in-flight invocations are not
// interrupted, only their records closed out.
func (e *Execution) CancelOutstanding() {
	now := e.now()
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, a := range e.assignments {
		if a.Status == core.AssignmentAssigned || a.Status == core.AssignmentProcessing {
			a.Status = core.AssignmentCancelled
			a.CompletedAt = now
		}
	}
}
