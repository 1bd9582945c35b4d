package registry

import "time"

// AgentStatus reflects an agent's current availability as derived from its
// health score. Only Active agents are eligible for task dispatch.
type AgentStatus string

const (
	// StatusInitializing is the state of a freshly registered agent before
	// its first health check.
	StatusInitializing AgentStatus = "initializing"
	// StatusActive means the agent is healthy and schedulable.
	StatusActive AgentStatus = "active"
	// StatusDegraded means the agent is reachable but unreliable.
	StatusDegraded AgentStatus = "degraded"
	// StatusInactive means the agent has been administratively disabled.
	StatusInactive AgentStatus = "inactive"
	// StatusError means the agent is failing health checks or is inside a
	// failure cooldown window.
	StatusError AgentStatus = "error"
)

// Capability is a named skill an agent provides. Capability names are the
// matching currency between task requirements and agents.
type Capability struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// Agent is a registered, capability-tagged unit of work reachable only
// through the external Invoker. Status and HealthScore are owned by the
// registry; everything else is fixed at registration.
type Agent struct {
	ID           string       `json:"id" yaml:"id"`
	Name         string       `json:"name" yaml:"name"`
	Category     string       `json:"category" yaml:"category"`
	Description  string       `json:"description,omitempty" yaml:"description,omitempty"`
	Capabilities []Capability `json:"capabilities" yaml:"capabilities"`
	Dependencies []string     `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`

	Status          AgentStatus `json:"status" yaml:"-"`
	HealthScore     float64     `json:"health_score" yaml:"-"`
	RegisteredAt    time.Time   `json:"registered_at" yaml:"-"`
	LastHealthCheck time.Time   `json:"last_health_check,omitempty" yaml:"-"`
}

// HasCapabilities reports whether the agent's capability set is a superset of
// the given requirement names.
func (a *Agent) HasCapabilities(names []string) bool {
	if len(names) == 0 {
		return true
	}
	have := make(map[string]struct{}, len(a.Capabilities))
	for _, c := range a.Capabilities {
		have[c.Name] = struct{}{}
	}
	for _, n := range names {
		if _, ok := have[n]; !ok {
			return false
		}
	}
	return true
}

// clone returns a copy safe to hand out; the capability and dependency slices
// are duplicated.
func (a *Agent) clone() *Agent {
	out := *a
	out.Capabilities = append([]Capability(nil), a.Capabilities...)
	out.Dependencies = append([]string(nil), a.Dependencies...)
	return &out
}
