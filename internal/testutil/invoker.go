package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/taskmesh/core"
)

// Call records one invocation observed by a ScriptedInvoker.
type Call struct {
	AgentID string
	TaskID  string
	Payload map[string]any
}

// ScriptedInvoker is a core.Invoker for tests. Each agent ID can be scripted
// with a fixed output, a fixed error, or a custom function; unscripted agents
// succeed with a {"agent": id} output. All invocations are recorded.
type ScriptedInvoker struct {
	mu      sync.Mutex
	outputs map[string]map[string]any
	errors  map[string]error
	funcs   map[string]func(ctx context.Context, task *core.Task) (map[string]any, error)
	delay   time.Duration
	calls   []Call
}

// NewScriptedInvoker creates an empty scripted invoker.
func NewScriptedInvoker() *ScriptedInvoker {
	return &ScriptedInvoker{
		outputs: make(map[string]map[string]any),
		errors:  make(map[string]error),
		funcs:   make(map[string]func(ctx context.Context, task *core.Task) (map[string]any, error)),
	}
}

// Respond scripts a fixed successful output for the agent (chainable).
func (s *ScriptedInvoker) Respond(agentID string, output map[string]any) *ScriptedInvoker {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outputs[agentID] = output
	return s
}

// Fail scripts a fixed error for the agent (chainable).
func (s *ScriptedInvoker) Fail(agentID string, err error) *ScriptedInvoker {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors[agentID] = err
	return s
}

// Handle scripts a custom function for the agent (chainable).
func (s *ScriptedInvoker) Handle(agentID string, fn func(ctx context.Context, task *core.Task) (map[string]any, error)) *ScriptedInvoker {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.funcs[agentID] = fn
	return s
}

// Delay makes every invocation sleep for d before responding, honoring
// context cancellation (chainable).
func (s *ScriptedInvoker) Delay(d time.Duration) *ScriptedInvoker {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = d
	return s
}

// Invoke implements core.Invoker.
func (s *ScriptedInvoker) Invoke(ctx context.Context, agentID string, task *core.Task) (map[string]any, error) {
	s.mu.Lock()
	s.calls = append(s.calls, Call{AgentID: agentID, TaskID: task.ID, Payload: task.Payload})
	delay := s.delay
	fn := s.funcs[agentID]
	err := s.errors[agentID]
	output, scripted := s.outputs[agentID]
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if fn != nil {
		return fn(ctx, task)
	}
	if err != nil {
		return nil, err
	}
	if scripted {
		return output, nil
	}
	return map[string]any{"agent": agentID}, nil
}

// Calls returns a copy of all recorded invocations in order.
func (s *ScriptedInvoker) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// CallCount returns the number of invocations routed to the agent.
func (s *ScriptedInvoker) CallCount(agentID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c.AgentID == agentID {
			n++
		}
	}
	return n
}

// WaitForCalls polls until at least n invocations have been recorded or the
// timeout elapses, returning an error in the latter case.
func (s *ScriptedInvoker) WaitForCalls(n int, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		s.mu.Lock()
		got := len(s.calls)
		s.mu.Unlock()
		if got >= n {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("testutil: saw %d calls, wanted %d", got, n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
