package testutil

import "github.com/hupe1980/taskmesh/registry"

// AgentBuilder provides a fluent helper for constructing registry agents in
// tests. Defaults give a uniquely identifiable agent with no capabilities.
type AgentBuilder struct {
	agent registry.Agent
}

// NewAgentBuilder creates a builder for the given agent ID; the name defaults
// to the ID and the category to "general".
func NewAgentBuilder(id string) *AgentBuilder {
	return &AgentBuilder{agent: registry.Agent{
		ID:       id,
		Name:     id,
		Category: "general",
	}}
}

// Name sets the display name (chainable).
func (b *AgentBuilder) Name(n string) *AgentBuilder { b.agent.Name = n; return b }

// Category sets the grouping category (chainable).
func (b *AgentBuilder) Category(c string) *AgentBuilder { b.agent.Category = c; return b }

// Description sets the free-text description (chainable).
func (b *AgentBuilder) Description(d string) *AgentBuilder { b.agent.Description = d; return b }

// Capabilities appends capabilities by name (chainable).
func (b *AgentBuilder) Capabilities(names ...string) *AgentBuilder {
	for _, n := range names {
		b.agent.Capabilities = append(b.agent.Capabilities, registry.Capability{Name: n})
	}
	return b
}

// Dependencies sets the IDs of agents this one depends on (chainable).
func (b *AgentBuilder) Dependencies(ids ...string) *AgentBuilder {
	b.agent.Dependencies = ids
	return b
}

// Build returns the constructed agent.
func (b *AgentBuilder) Build() *registry.Agent { return &b.agent }

// RegisterActive builds the agent, registers it, and marks it Active so it is
// immediately eligible for dispatch.
func (b *AgentBuilder) RegisterActive(reg *registry.Registry) *registry.Agent {
	agent := b.Build()
	reg.Register(agent)
	reg.SetStatus(agent.ID, registry.StatusActive)
	return reg.Get(agent.ID)
}
