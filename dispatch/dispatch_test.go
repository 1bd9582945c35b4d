package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/internal/testutil"
	"github.com/stretchr/testify/assert"
)

// countingTracker records start/finish notifications for assertions on the
// assignment lifecycle.
type countingTracker struct {
	mu       sync.Mutex
	started  map[string]int
	finished map[string]int
	failures int
}

func newCountingTracker() *countingTracker {
	return &countingTracker{started: map[string]int{}, finished: map[string]int{}}
}

func (t *countingTracker) AssignmentStarted(agentID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.started[agentID]++
}

func (t *countingTracker) AssignmentFinished(agentID string, success bool, _ time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.finished[agentID]++
	if !success {
		t.failures++
	}
}

func newExec(t *testing.T, task *core.Task, agents []string, inv core.Invoker, tracker Tracker) *Execution {
	t.Helper()
	return NewExecution(context.Background(), task, agents, inv, func(o *ExecutionOptions) {
		if tracker != nil {
			o.Tracker = tracker
		}
	})
}

func TestFor(t *testing.T) {
	for _, kind := range []core.Strategy{
		core.StrategySingle, core.StrategyParallel, core.StrategySequential,
		core.StrategyConsensus, core.StrategyFallback,
	} {
		s, err := For(kind)
		assert.NoError(t, err)
		assert.Equal(t, kind, s.Kind())
	}

	_, err := For(core.Strategy("broadcast"))
	assert.Error(t, err)
}

func TestSingle_Success(t *testing.T) {
	inv := testutil.NewScriptedInvoker().Respond("agent-1", map[string]any{"answer": 42})
	task := testutil.NewTaskBuilder().Build()
	tracker := newCountingTracker()
	exec := newExec(t, task, []string{"agent-1", "agent-2"}, inv, tracker)

	output, err := (&Single{}).Execute(exec)
	assert.NoError(t, err)
	assert.Equal(t, 42, output["answer"])

	// Only the top-scored agent was touched.
	assert.Equal(t, 1, inv.CallCount("agent-1"))
	assert.Equal(t, 0, inv.CallCount("agent-2"))
	assert.Equal(t, 1, tracker.started["agent-1"])
	assert.Equal(t, 1, tracker.finished["agent-1"])
}

func TestSingle_FailureRecordsOneAssignment(t *testing.T) {
	inv := testutil.NewScriptedInvoker().Fail("agent-1", errors.New("boom"))
	exec := newExec(t, testutil.NewTaskBuilder().Build(), []string{"agent-1", "agent-2"}, inv, nil)

	_, err := (&Single{}).Execute(exec)
	assert.Error(t, err)
	var invErr *core.InvocationError
	assert.ErrorAs(t, err, &invErr)
	assert.Equal(t, "agent-1", invErr.AgentID)

	assignments := exec.Assignments()
	assert.Len(t, assignments, 1)
	assert.Equal(t, core.AssignmentFailed, assignments[0].Status)
	assert.Contains(t, assignments[0].Error, "boom")
}

func TestSingle_CancelledBeforeDispatch(t *testing.T) {
	task := testutil.NewTaskBuilder().Build()
	task.Cancel()
	exec := newExec(t, task, []string{"agent-1"}, testutil.NewScriptedInvoker(), nil)

	_, err := (&Single{}).Execute(exec)
	assert.ErrorIs(t, err, ErrCancelled)
	assert.Empty(t, exec.Assignments())
}

func TestParallel_MergesSuccesses(t *testing.T) {
	inv := testutil.NewScriptedInvoker().
		Respond("agent-1", map[string]any{"v": "a"}).
		Fail("agent-2", errors.New("down")).
		Respond("agent-3", map[string]any{"v": "c"})
	exec := newExec(t, testutil.NewTaskBuilder().Strategy("parallel").Build(),
		[]string{"agent-1", "agent-2", "agent-3"}, inv, nil)

	output, err := (&Parallel{}).Execute(exec)
	assert.NoError(t, err, "one success is enough")
	assert.Equal(t, 2, output["agent_count"])

	merged := output["agents"].(map[string]any)
	assert.Contains(t, merged, "agent-1")
	assert.Contains(t, merged, "agent-3")
	assert.NotContains(t, merged, "agent-2")

	// The failed sibling still has its assignment record.
	assert.Len(t, exec.Assignments(), 3)
}

func TestParallel_CapsFanOut(t *testing.T) {
	inv := testutil.NewScriptedInvoker()
	agents := []string{"a1", "a2", "a3", "a4", "a5", "a6", "a7"}
	exec := newExec(t, testutil.NewTaskBuilder().Strategy("parallel").Build(), agents, inv, nil)

	_, err := (&Parallel{}).Execute(exec)
	assert.NoError(t, err)
	assert.Len(t, inv.Calls(), MaxParallelAgents)
}

func TestParallel_AllFail(t *testing.T) {
	inv := testutil.NewScriptedInvoker().
		Fail("agent-1", errors.New("x")).
		Fail("agent-2", errors.New("y"))
	tracker := newCountingTracker()
	exec := newExec(t, testutil.NewTaskBuilder().Strategy("parallel").Build(),
		[]string{"agent-1", "agent-2"}, inv, tracker)

	_, err := (&Parallel{}).Execute(exec)
	assert.Error(t, err)
	assert.Equal(t, 2, tracker.failures)
}

func TestSequential_PipesPayload(t *testing.T) {
	inv := testutil.NewScriptedInvoker().
		Handle("stage-1", func(_ context.Context, task *core.Task) (map[string]any, error) {
			return map[string]any{"step": 1, "seed": task.Payload["seed"]}, nil
		}).
		Handle("stage-2", func(_ context.Context, task *core.Task) (map[string]any, error) {
			return map[string]any{"step": task.Payload["step"].(int) + 1}, nil
		})
	task := testutil.NewTaskBuilder().Strategy("sequential").Payload(map[string]any{"seed": "s"}).Build()
	exec := newExec(t, task, []string{"stage-1", "stage-2"}, inv, nil)

	output, err := (&Sequential{}).Execute(exec)
	assert.NoError(t, err)
	assert.Equal(t, 2, output["step"])

	// Stage two saw stage one's output as its payload.
	calls := inv.Calls()
	assert.Len(t, calls, 2)
	assert.Equal(t, "s", calls[0].Payload["seed"])
	assert.Equal(t, 1, calls[1].Payload["step"])
}

func TestSequential_SkipsFailedStage(t *testing.T) {
	inv := testutil.NewScriptedInvoker().
		Respond("stage-1", map[string]any{"from": "stage-1"}).
		Fail("stage-2", errors.New("down")).
		Respond("stage-3", map[string]any{"from": "stage-3"})
	exec := newExec(t, testutil.NewTaskBuilder().Strategy("sequential").Build(),
		[]string{"stage-1", "stage-2", "stage-3"}, inv, nil)

	output, err := (&Sequential{}).Execute(exec)
	assert.NoError(t, err, "stage failures never fail the pipeline")
	assert.Equal(t, "stage-3", output["from"])

	// Stage three received stage one's payload, the failed stage was skipped.
	calls := inv.Calls()
	assert.Equal(t, "stage-1", calls[2].Payload["from"])
}

func TestSequential_NoStageSucceeds(t *testing.T) {
	inv := testutil.NewScriptedInvoker().
		Fail("stage-1", errors.New("x")).
		Fail("stage-2", errors.New("y"))
	task := testutil.NewTaskBuilder().Strategy("sequential").Payload(map[string]any{"orig": true}).Build()
	exec := newExec(t, task, []string{"stage-1", "stage-2"}, inv, nil)

	output, err := (&Sequential{}).Execute(exec)
	assert.NoError(t, err)
	assert.Equal(t, map[string]any{"orig": true}, output, "original payload survives")
}

func TestSequential_CapsStages(t *testing.T) {
	inv := testutil.NewScriptedInvoker()
	exec := newExec(t, testutil.NewTaskBuilder().Strategy("sequential").Build(),
		[]string{"s1", "s2", "s3", "s4", "s5"}, inv, nil)

	_, err := (&Sequential{}).Execute(exec)
	assert.NoError(t, err)
	assert.Len(t, inv.Calls(), MaxSequentialStages)
}

func TestFallback_FirstSuccessWins(t *testing.T) {
	inv := testutil.NewScriptedInvoker().
		Fail("agent-1", errors.New("x")).
		Fail("agent-2", errors.New("y")).
		Respond("agent-3", map[string]any{"winner": "agent-3"})
	exec := newExec(t, testutil.NewTaskBuilder().Strategy("fallback").Build(),
		[]string{"agent-1", "agent-2", "agent-3", "agent-4"}, inv, nil)

	output, err := (&Fallback{}).Execute(exec)
	assert.NoError(t, err)
	assert.Equal(t, "agent-3", output["winner"])

	// Strict score order, stop after first success.
	calls := inv.Calls()
	assert.Len(t, calls, 3)
	assert.Equal(t, "agent-1", calls[0].AgentID)
	assert.Equal(t, "agent-2", calls[1].AgentID)
	assert.Equal(t, "agent-3", calls[2].AgentID)
	assert.Equal(t, 0, inv.CallCount("agent-4"))

	assignments := exec.Assignments()
	assert.Len(t, assignments, 3)
	assert.Equal(t, core.AssignmentFailed, assignments[0].Status)
	assert.Equal(t, core.AssignmentFailed, assignments[1].Status)
	assert.Equal(t, core.AssignmentCompleted, assignments[2].Status)
}

func TestFallback_AllFail(t *testing.T) {
	lastErr := errors.New("final failure")
	inv := testutil.NewScriptedInvoker().
		Fail("agent-1", errors.New("x")).
		Fail("agent-2", lastErr)
	exec := newExec(t, testutil.NewTaskBuilder().Strategy("fallback").Build(),
		[]string{"agent-1", "agent-2"}, inv, nil)

	_, err := (&Fallback{}).Execute(exec)
	assert.Error(t, err)
	assert.ErrorIs(t, err, lastErr)
}

func TestFallback_CancelBetweenAttempts(t *testing.T) {
	task := testutil.NewTaskBuilder().Strategy("fallback").Build()
	inv := testutil.NewScriptedInvoker().
		Handle("agent-1", func(_ context.Context, _ *core.Task) (map[string]any, error) {
			task.Cancel()
			return nil, errors.New("failed, and caller cancelled meanwhile")
		})
	exec := newExec(t, task, []string{"agent-1", "agent-2"}, inv, nil)

	_, err := (&Fallback{}).Execute(exec)
	assert.ErrorIs(t, err, ErrCancelled)
	assert.Equal(t, 0, inv.CallCount("agent-2"))
}

func TestConsensus_Agreement(t *testing.T) {
	agreed := map[string]any{"answer": "blue"}
	inv := testutil.NewScriptedInvoker().
		Respond("agent-1", map[string]any{"answer": "blue"}).
		Respond("agent-2", map[string]any{"answer": "blue"}).
		Respond("agent-3", map[string]any{"answer": "green"})
	exec := newExec(t, testutil.NewTaskBuilder().Strategy("consensus").Build(),
		[]string{"agent-1", "agent-2", "agent-3"}, inv, nil)

	output, err := (&Consensus{Window: time.Second}).Execute(exec)
	assert.NoError(t, err)
	assert.Equal(t, true, output["reached"])
	assert.Equal(t, 3, output["responses"])
	assert.Equal(t, agreed, output["agreed_output"])

	votes := output["votes"].(map[string]int)
	assert.Len(t, votes, 2)
}

func TestConsensus_NoMajority(t *testing.T) {
	inv := testutil.NewScriptedInvoker().
		Respond("agent-1", map[string]any{"answer": "a"}).
		Respond("agent-2", map[string]any{"answer": "b"}).
		Respond("agent-3", map[string]any{"answer": "c"})
	exec := newExec(t, testutil.NewTaskBuilder().Strategy("consensus").Build(),
		[]string{"agent-1", "agent-2", "agent-3"}, inv, nil)

	output, err := (&Consensus{Window: time.Second}).Execute(exec)
	assert.NoError(t, err, "split vote is a resolved outcome, not an error")
	assert.Equal(t, false, output["reached"])
	assert.NotContains(t, output, "agreed_output")
}

func TestConsensus_PartialResponsesStillResolve(t *testing.T) {
	inv := testutil.NewScriptedInvoker().
		Respond("agent-1", map[string]any{"answer": "a"}).
		Handle("agent-2", func(ctx context.Context, _ *core.Task) (map[string]any, error) {
			<-ctx.Done() // never answers within the window
			return nil, ctx.Err()
		})
	exec := newExec(t, testutil.NewTaskBuilder().Strategy("consensus").Build(),
		[]string{"agent-1", "agent-2"}, inv, nil)

	output, err := (&Consensus{Window: 50 * time.Millisecond}).Execute(exec)
	assert.NoError(t, err)
	assert.Equal(t, 1, output["responses"])
	assert.Equal(t, true, output["reached"], "1 of 1 collected ballots is a majority")
}

func TestConsensus_NoResponses(t *testing.T) {
	inv := testutil.NewScriptedInvoker().
		Fail("agent-1", errors.New("x")).
		Fail("agent-2", errors.New("y"))
	exec := newExec(t, testutil.NewTaskBuilder().Strategy("consensus").Build(),
		[]string{"agent-1", "agent-2"}, inv, nil)

	_, err := (&Consensus{Window: time.Second}).Execute(exec)
	assert.Error(t, err)
}

func TestConsensus_CapsVoterSet(t *testing.T) {
	inv := testutil.NewScriptedInvoker()
	exec := newExec(t, testutil.NewTaskBuilder().Strategy("consensus").Build(),
		[]string{"a1", "a2", "a3", "a4", "a5"}, inv, nil)

	_, err := (&Consensus{Window: time.Second}).Execute(exec)
	assert.NoError(t, err)
	assert.Len(t, inv.Calls(), MaxConsensusAgents)
}

func TestExecution_CancelOutstanding(t *testing.T) {
	release := make(chan struct{})
	inv := testutil.NewScriptedInvoker().
		Handle("agent-1", func(ctx context.Context, _ *core.Task) (map[string]any, error) {
			select {
			case <-release:
				return map[string]any{}, nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		})
	exec := newExec(t, testutil.NewTaskBuilder().Build(), []string{"agent-1"}, inv, nil)

	done := make(chan struct{})
	go func() {
		_, _ = (&Single{}).Execute(exec)
		close(done)
	}()

	assert.NoError(t, inv.WaitForCalls(1, time.Second))
	exec.CancelOutstanding()

	assignments := exec.Assignments()
	assert.Len(t, assignments, 1)
	assert.Equal(t, core.AssignmentCancelled, assignments[0].Status)

	close(release)
	<-done
}
