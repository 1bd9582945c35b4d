package core

import "context"

// Invoker is the single interface through which the engine executes agents.
// Its internals (network calls, model provider selection, tool execution) are
// opaque: scheduler correctness never depends on invocation latency or on the
// shape of the returned payload.
//
// Implementations must respect ctx cancellation and return an error (ideally
// an *InvocationError) when the agent cannot produce an output. A nil error
// with a nil output map is treated as an empty but successful result.
type Invoker interface {
	Invoke(ctx context.Context, agentID string, task *Task) (map[string]any, error)
}

// InvokerFunc adapts a plain function to the Invoker interface.
type InvokerFunc func(ctx context.Context, agentID string, task *Task) (map[string]any, error)

// Invoke calls f.
func (f InvokerFunc) Invoke(ctx context.Context, agentID string, task *Task) (map[string]any, error) {
	return f(ctx, agentID, task)
}
