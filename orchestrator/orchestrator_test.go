package orchestrator

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/internal/testutil"
	"github.com/hupe1980/taskmesh/registry"
	"github.com/stretchr/testify/assert"
)

// newTestMesh builds a registry with one active general-purpose agent and an
// orchestrator with fast tick intervals suitable for tests.
func newTestMesh(t *testing.T, inv core.Invoker, optFns ...func(o *Options)) (*Orchestrator, *registry.Registry) {
	t.Helper()
	reg := registry.New()
	testutil.NewAgentBuilder("agent-1").Capabilities("general").RegisterActive(reg)

	base := func(o *Options) {
		o.DispatchInterval = 10 * time.Millisecond
		o.TimeoutCheckInterval = 20 * time.Millisecond
		o.MetricsInterval = 20 * time.Millisecond
	}
	orch := New(reg, inv, append([]func(o *Options){base}, optFns...)...)
	t.Cleanup(orch.Shutdown)
	return orch, reg
}

func waitForStatus(t *testing.T, o *Orchestrator, taskID string, want core.TaskStatus) core.TaskResult {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		result, err := o.Status(taskID)
		assert.NoError(t, err)
		if result.Status == want {
			return result
		}
		if time.Now().After(deadline) {
			t.Fatalf("task %s stuck in %s, wanted %s", taskID, result.Status, want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSubmit_ValidationIsSynchronous(t *testing.T) {
	orch, _ := newTestMesh(t, testutil.NewScriptedInvoker())

	_, err := orch.Submit(core.TaskSpec{})
	assert.True(t, core.IsValidationError(err))

	_, err = orch.Submit(core.TaskSpec{Description: "x", Priority: "asap"})
	assert.True(t, core.IsValidationError(err))

	_, err = orch.Submit(core.TaskSpec{Description: "x", Strategy: "vote"})
	assert.True(t, core.IsValidationError(err))

	// Nothing was queued.
	assert.Equal(t, 0, orch.QueueStatus().QueueSize)
}

func TestSubmit_FreshIDPerSubmission(t *testing.T) {
	orch, _ := newTestMesh(t, testutil.NewScriptedInvoker())
	spec := core.TaskSpec{Description: "same spec"}

	r1, err := orch.Submit(spec)
	assert.NoError(t, err)
	r2, err := orch.Submit(spec)
	assert.NoError(t, err)
	assert.NotEqual(t, r1.TaskID, r2.TaskID)
}

func TestTask_CompletesEndToEnd(t *testing.T) {
	inv := testutil.NewScriptedInvoker().Respond("agent-1", map[string]any{"answer": "done"})
	orch, reg := newTestMesh(t, inv)
	orch.Start()

	receipt, err := orch.Submit(core.TaskSpec{Description: "do the thing", Requirements: []string{"general"}})
	assert.NoError(t, err)
	assert.Equal(t, core.PriorityNormal, receipt.Priority)

	result := waitForStatus(t, orch, receipt.TaskID, core.TaskCompleted)
	assert.Equal(t, "done", result.Output["answer"])
	assert.Empty(t, result.Error)
	assert.Len(t, result.Assignments, 1)
	assert.Equal(t, "agent-1", result.Assignments[0].AgentID)
	assert.Equal(t, core.AssignmentCompleted, result.Assignments[0].Status)
	assert.False(t, result.CompletedAt.IsZero())

	// The registry saw the assignment come and go.
	assert.Equal(t, 0, reg.ActiveAssignments("agent-1"))
	assert.Equal(t, int64(1), reg.Performance("agent-1").TasksCompleted)
}

func TestStatus_UnknownTask(t *testing.T) {
	orch, _ := newTestMesh(t, testutil.NewScriptedInvoker())
	_, err := orch.Status("no-such-task")
	assert.ErrorIs(t, err, core.ErrTaskNotFound)
}

func TestDispatch_PriorityOrderUnderBackpressure(t *testing.T) {
	release := make(chan struct{})
	inv := testutil.NewScriptedInvoker().
		Handle("agent-1", func(ctx context.Context, task *core.Task) (map[string]any, error) {
			if task.Description == "blocker" {
				select {
				case <-release:
				case <-ctx.Done():
					return nil, ctx.Err()
				}
			}
			return map[string]any{}, nil
		})
	orch, _ := newTestMesh(t, inv, func(o *Options) { o.WorkerCapacity = 1 })
	orch.Start()

	blocker, err := orch.Submit(core.TaskSpec{Description: "blocker"})
	assert.NoError(t, err)
	assert.NoError(t, inv.WaitForCalls(1, time.Second))

	// With the only slot occupied these stack up in the queue.
	low, _ := orch.Submit(core.TaskSpec{Description: "low", Priority: "low"})
	critical, _ := orch.Submit(core.TaskSpec{Description: "critical", Priority: "critical"})
	normal, _ := orch.Submit(core.TaskSpec{Description: "normal"})

	queued := orch.ListQueue()
	assert.Len(t, queued, 3)
	assert.Equal(t, critical.TaskID, queued[0].TaskID)
	assert.Equal(t, normal.TaskID, queued[1].TaskID)
	assert.Equal(t, low.TaskID, queued[2].TaskID)

	close(release)
	waitForStatus(t, orch, blocker.TaskID, core.TaskCompleted)
	waitForStatus(t, orch, low.TaskID, core.TaskCompleted)

	var order []string
	for _, c := range inv.Calls()[1:] {
		order = append(order, c.TaskID)
	}
	assert.Equal(t, []string{critical.TaskID, normal.TaskID, low.TaskID}, order)
}

func TestDispatch_NoEligibleAgents(t *testing.T) {
	inv := testutil.NewScriptedInvoker()
	orch, _ := newTestMesh(t, inv)
	orch.Start()

	receipt, err := orch.Submit(core.TaskSpec{
		Description:  "needs the impossible",
		Requirements: []string{"quantum_computing"},
	})
	assert.NoError(t, err, "ineligibility is not a submission error")

	result := waitForStatus(t, orch, receipt.TaskID, core.TaskFailed)
	assert.Equal(t, core.ErrNoEligibleAgents.Error(), result.Error)
	assert.Empty(t, result.Assignments, "no agent was ever consumed")
	assert.Empty(t, inv.Calls())
}

func TestCancel_QueuedTaskNeverRuns(t *testing.T) {
	inv := testutil.NewScriptedInvoker()
	orch, _ := newTestMesh(t, inv)
	// Orchestrator not started: the task stays queued.

	receipt, err := orch.Submit(core.TaskSpec{Description: "queued forever"})
	assert.NoError(t, err)

	assert.True(t, orch.Cancel(receipt.TaskID))
	result, err := orch.Status(receipt.TaskID)
	assert.NoError(t, err)
	assert.Equal(t, core.TaskCancelled, result.Status)
	assert.Empty(t, result.Assignments)

	// Second cancel of the same task reports false.
	assert.False(t, orch.Cancel(receipt.TaskID))
	assert.False(t, orch.Cancel("no-such-task"))

	// Even after starting, the cancelled task is never dispatched.
	orch.Start()
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, inv.Calls())
}

func TestCancel_ActiveTask(t *testing.T) {
	inv := testutil.NewScriptedInvoker().
		Handle("agent-1", func(ctx context.Context, _ *core.Task) (map[string]any, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		})
	orch, _ := newTestMesh(t, inv)
	orch.Start()

	receipt, err := orch.Submit(core.TaskSpec{Description: "long running"})
	assert.NoError(t, err)
	assert.NoError(t, inv.WaitForCalls(1, time.Second))

	assert.True(t, orch.Cancel(receipt.TaskID))
	result := waitForStatus(t, orch, receipt.TaskID, core.TaskCancelled)
	assert.Len(t, result.Assignments, 1)
	assert.False(t, orch.Cancel(receipt.TaskID), "terminal task cannot be cancelled again")

	// The slot is free again.
	deadline := time.Now().Add(time.Second)
	for orch.QueueStatus().ActiveTasks != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	assert.Equal(t, 0, orch.QueueStatus().ActiveTasks)
}

func TestTimeout_ForcesTerminalStateAndFreesSlot(t *testing.T) {
	release := make(chan struct{})
	inv := testutil.NewScriptedInvoker().
		Handle("agent-1", func(ctx context.Context, task *core.Task) (map[string]any, error) {
			if task.Description == "stuck" {
				select {
				case <-release:
				case <-ctx.Done():
					return nil, ctx.Err()
				}
			}
			return map[string]any{}, nil
		})
	orch, _ := newTestMesh(t, inv, func(o *Options) { o.WorkerCapacity = 1 })
	orch.Start()

	stuck, err := orch.Submit(core.TaskSpec{Description: "stuck", TimeoutSeconds: 1})
	assert.NoError(t, err)
	next, err := orch.Submit(core.TaskSpec{Description: "waiting behind"})
	assert.NoError(t, err)

	result := waitForStatus(t, orch, stuck.TaskID, core.TaskTimedOut)
	assert.NotEmpty(t, result.Error)

	// The freed slot lets the queued task complete.
	waitForStatus(t, orch, next.TaskID, core.TaskCompleted)
	close(release)
}

func TestCallback_FiredExactlyOnce(t *testing.T) {
	inv := testutil.NewScriptedInvoker().Respond("agent-1", map[string]any{"ok": true})
	orch, _ := newTestMesh(t, inv)
	orch.Start()

	results := make(chan core.TaskResult, 2)
	receipt, err := orch.Submit(core.TaskSpec{
		Description: "with callback",
		Callback:    func(r core.TaskResult) { results <- r },
	})
	assert.NoError(t, err)

	select {
	case r := <-results:
		assert.Equal(t, receipt.TaskID, r.TaskID)
		assert.Equal(t, core.TaskCompleted, r.Status)
	case <-time.After(2 * time.Second):
		t.Fatal("callback never fired")
	}

	// A second delivery would land here.
	select {
	case <-results:
		t.Fatal("callback fired twice")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestEstimateWait_ScalesWithPriority(t *testing.T) {
	orch, _ := newTestMesh(t, testutil.NewScriptedInvoker())
	// Not started: three tasks form a stable backlog.
	for i := 0; i < 3; i++ {
		_, err := orch.Submit(core.TaskSpec{Description: "backlog"})
		assert.NoError(t, err)
	}

	critical := orch.EstimateWait(core.PriorityCritical)
	normal := orch.EstimateWait(core.PriorityNormal)
	background := orch.EstimateWait(core.PriorityBackground)

	assert.Less(t, critical, normal)
	assert.Less(t, normal, background)
	assert.Greater(t, critical, time.Duration(0))
}

func TestQueueStatusAndListings(t *testing.T) {
	orch, _ := newTestMesh(t, testutil.NewScriptedInvoker())
	_, _ = orch.Submit(core.TaskSpec{Description: "a", Priority: "critical"})
	_, _ = orch.Submit(core.TaskSpec{Description: "b"})
	_, _ = orch.Submit(core.TaskSpec{Description: "c"})

	qs := orch.QueueStatus()
	assert.Equal(t, 3, qs.QueueSize)
	assert.Equal(t, 0, qs.ActiveTasks)
	assert.Equal(t, DefaultWorkerCapacity, qs.WorkerCapacity)
	assert.Equal(t, DefaultWorkerCapacity, qs.AvailableCapacity)
	assert.Equal(t, 1, qs.ByPriority["critical"])
	assert.Equal(t, 2, qs.ByPriority["normal"])

	queued := orch.ListQueue()
	assert.Len(t, queued, 3)
	assert.Equal(t, core.PriorityCritical, queued[0].Priority)
	assert.Empty(t, orch.ListActive())
}

func TestMetrics_Overview(t *testing.T) {
	var invocations atomic.Int32
	inv := testutil.NewScriptedInvoker().
		Handle("agent-1", func(_ context.Context, _ *core.Task) (map[string]any, error) {
			if invocations.Add(1) == 1 {
				return nil, errors.New("broken")
			}
			return map[string]any{}, nil
		})
	orch, _ := newTestMesh(t, inv)
	orch.Start()

	bad, _ := orch.Submit(core.TaskSpec{Description: "will fail"})
	waitForStatus(t, orch, bad.TaskID, core.TaskFailed)

	good, _ := orch.Submit(core.TaskSpec{Description: "will pass"})
	waitForStatus(t, orch, good.TaskID, core.TaskCompleted)

	ov := orch.Metrics()
	assert.Equal(t, int64(2), ov.TasksReceived)
	assert.Equal(t, int64(1), ov.TasksCompleted)
	assert.Equal(t, int64(1), ov.TasksFailed)
	assert.InDelta(t, 0.5, ov.SuccessRate, 1e-9)
	assert.InDelta(t, 0.5, ov.FailureRate, 1e-9)
	assert.Contains(t, ov.AgentPerformance, "agent-1")

	assert.Equal(t, 1.0, orch.Meter().Counter("taskmesh_tasks_completed_total", nil))
	assert.Equal(t, 1.0, orch.Meter().Counter("taskmesh_tasks_failed_total", nil))
	assert.Equal(t, 2.0, orch.Meter().Counter("taskmesh_tasks_received_total", nil))
}

func TestShutdown_Idempotent(t *testing.T) {
	orch, _ := newTestMesh(t, testutil.NewScriptedInvoker())
	orch.Start()
	orch.Shutdown()
	orch.Shutdown()
}

func TestResults_RemainQueryableAfterShutdown(t *testing.T) {
	inv := testutil.NewScriptedInvoker().Respond("agent-1", map[string]any{"ok": true})
	orch, _ := newTestMesh(t, inv)
	orch.Start()

	receipt, err := orch.Submit(core.TaskSpec{Description: "finish then stop"})
	assert.NoError(t, err)
	waitForStatus(t, orch, receipt.TaskID, core.TaskCompleted)

	orch.Shutdown()
	result, err := orch.Status(receipt.TaskID)
	assert.NoError(t, err)
	assert.Equal(t, core.TaskCompleted, result.Status)
}
