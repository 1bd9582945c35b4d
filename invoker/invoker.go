// Package invoker contains core.Invoker building blocks. The scheduling core
// treats invocation as opaque; this package supplies the routing glue (Mux)
// and, in its subpackages, adapters that back agents with real model
// providers.
package invoker

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/taskmesh/core"
)

// Mux routes invocations to per-agent invokers with an optional default.
// Register a dedicated invoker for agents with special backends and let the
// default carry the rest.
type Mux struct {
	mu       sync.RWMutex
	routes   map[string]core.Invoker
	fallback core.Invoker
}

// NewMux constructs a Mux with an optional default invoker.
func NewMux(fallback core.Invoker) *Mux {
	return &Mux{routes: make(map[string]core.Invoker), fallback: fallback}
}

// Register binds an agent id to a dedicated invoker, replacing any previous
// binding.
func (m *Mux) Register(agentID string, inv core.Invoker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.routes[agentID] = inv
}

// Invoke implements core.Invoker by routing to the agent's dedicated invoker
// or the default.
func (m *Mux) Invoke(ctx context.Context, agentID string, task *core.Task) (map[string]any, error) {
	m.mu.RLock()
	inv, ok := m.routes[agentID]
	if !ok {
		inv = m.fallback
	}
	m.mu.RUnlock()

	if inv == nil {
		return nil, &core.InvocationError{AgentID: agentID, Err: fmt.Errorf("no invoker registered for agent")}
	}
	return inv.Invoke(ctx, agentID, task)
}
