package registry

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/taskmesh/logging"
)

// Options configures a Registry instance.
type Options struct {
	// HealthCheckInterval is the cadence of the background health monitor.
	HealthCheckInterval time.Duration
	// FailureThreshold is the number of consecutive assignment failures that
	// forces an agent into cooldown.
	FailureThreshold int
	// CooldownPeriod is how long a tripped agent stays in forced Error status
	// regardless of its instantaneous health score.
	CooldownPeriod time.Duration
	// Logger defaults to NoOpLogger if nil.
	Logger logging.Logger
	// Now overrides the clock, primarily for tests.
	Now func() time.Time
}

// Registry is the central in-memory directory of agents. It owns agent status
// and health, indexes capabilities and categories for discovery, and tracks
// rolling per-agent performance.
type Registry struct {
	mu              sync.RWMutex
	agents          map[string]*Agent
	categoryIndex   map[string][]string
	capabilityIndex map[string][]string
	perf            map[string]*performance

	healthCheckInterval time.Duration
	failureThreshold    int
	cooldownPeriod      time.Duration
	logger              logging.Logger
	now                 func() time.Time

	monitorOnce sync.Once
	monitorStop chan struct{}
}

// New constructs an empty registry with optional overrides.
func New(optFns ...func(o *Options)) *Registry {
	opts := Options{
		HealthCheckInterval: time.Minute,
		FailureThreshold:    3,
		CooldownPeriod:      5 * time.Minute,
		Logger:              logging.NoOpLogger{},
		Now:                 time.Now,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Registry{
		agents:              make(map[string]*Agent),
		categoryIndex:       make(map[string][]string),
		capabilityIndex:     make(map[string][]string),
		perf:                make(map[string]*performance),
		healthCheckInterval: opts.HealthCheckInterval,
		failureThreshold:    opts.FailureThreshold,
		cooldownPeriod:      opts.CooldownPeriod,
		logger:              opts.Logger,
		now:                 opts.Now,
		monitorStop:         make(chan struct{}),
	}
}

// Register inserts or overwrites an agent and indexes its capabilities. A new
// agent starts Initializing with a full health score; the next health check
// promotes it.
func (r *Registry) Register(agent *Agent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := agent.clone()
	if stored.Status == "" {
		stored.Status = StatusInitializing
	}
	if stored.HealthScore == 0 {
		stored.HealthScore = 1.0
	}
	stored.RegisteredAt = r.now()

	if prev, ok := r.agents[stored.ID]; ok {
		r.unindexLocked(prev)
	}
	r.agents[stored.ID] = stored
	r.categoryIndex[stored.Category] = append(r.categoryIndex[stored.Category], stored.ID)
	for _, cap := range stored.Capabilities {
		r.capabilityIndex[cap.Name] = append(r.capabilityIndex[cap.Name], stored.ID)
	}
	if _, ok := r.perf[stored.ID]; !ok {
		r.perf[stored.ID] = &performance{}
	}

	r.logger.Info("agent registered", "agent_id", stored.ID, "category", stored.Category, "capabilities", len(stored.Capabilities))
}

func (r *Registry) unindexLocked(agent *Agent) {
	r.categoryIndex[agent.Category] = removeID(r.categoryIndex[agent.Category], agent.ID)
	for _, cap := range agent.Capabilities {
		r.capabilityIndex[cap.Name] = removeID(r.capabilityIndex[cap.Name], agent.ID)
	}
}

func removeID(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

// Get returns a copy of the agent, or nil if the id is unknown.
func (r *Registry) Get(id string) *Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	agent, ok := r.agents[id]
	if !ok {
		return nil
	}
	return agent.clone()
}

// All returns copies of every registered agent, sorted by id for stable output.
func (r *Registry) All() []*Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Agent, 0, len(r.agents))
	for _, agent := range r.agents {
		out = append(out, agent.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ByCategory returns copies of all agents in the given category.
func (r *Registry) ByCategory(category string) []*Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := r.categoryIndex[category]
	out := make([]*Agent, 0, len(ids))
	for _, id := range ids {
		if agent, ok := r.agents[id]; ok {
			out = append(out, agent.clone())
		}
	}
	return out
}

// ByCapability returns copies of all agents providing the named capability.
func (r *Registry) ByCapability(name string) []*Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := r.capabilityIndex[name]
	out := make([]*Agent, 0, len(ids))
	for _, id := range ids {
		if agent, ok := r.agents[id]; ok {
			out = append(out, agent.clone())
		}
	}
	return out
}

// WithCapabilities returns copies of all agents whose capability set is a
// superset of the given requirement names.
func (r *Registry) WithCapabilities(names []string) []*Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Agent, 0, len(r.agents))
	for _, agent := range r.agents {
		if agent.HasCapabilities(names) {
			out = append(out, agent.clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Search matches the query as a case-insensitive substring over agent names,
// descriptions and capability names.
func (r *Registry) Search(query string) []*Agent {
	q := strings.ToLower(query)
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Agent
	for _, agent := range r.agents {
		if agentMatches(agent, q) {
			out = append(out, agent.clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func agentMatches(agent *Agent, q string) bool {
	if strings.Contains(strings.ToLower(agent.Name), q) || strings.Contains(strings.ToLower(agent.Description), q) {
		return true
	}
	for _, cap := range agent.Capabilities {
		if strings.Contains(strings.ToLower(cap.Name), q) {
			return true
		}
	}
	return false
}

// SetStatus administratively overrides an agent's status (e.g. Inactive for
// maintenance). Unknown ids are ignored.
func (r *Registry) SetStatus(id string, status AgentStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if agent, ok := r.agents[id]; ok {
		agent.Status = status
	}
}

// UpdatePerformance folds one assignment outcome into the agent's rolling
// counters and recomputes its health score from the success rate.
func (r *Registry) UpdatePerformance(agentID string, success bool, latency time.Duration) {
	perf := r.perfFor(agentID)
	if perf == nil {
		return
	}
	perf.record(success, latency, r.now(), r.failureThreshold, r.cooldownPeriod)

	score := perf.successRate()
	r.mu.Lock()
	if agent, ok := r.agents[agentID]; ok {
		agent.HealthScore = score
	}
	r.mu.Unlock()
}

// AssignmentStarted increments the agent's concurrent-assignment counter used
// by the scorer's load factor.
func (r *Registry) AssignmentStarted(agentID string) {
	if perf := r.perfFor(agentID); perf != nil {
		perf.incActive()
	}
}

// AssignmentFinished decrements the agent's concurrent-assignment counter.
func (r *Registry) AssignmentFinished(agentID string) {
	if perf := r.perfFor(agentID); perf != nil {
		perf.decActive()
	}
}

// ActiveAssignments returns the agent's current concurrent-assignment count.
func (r *Registry) ActiveAssignments(agentID string) int {
	if perf := r.perfFor(agentID); perf != nil {
		return perf.activeCount()
	}
	return 0
}

// SuccessRate returns the agent's rolling success rate in [0,1].
func (r *Registry) SuccessRate(agentID string) float64 {
	if perf := r.perfFor(agentID); perf != nil {
		return perf.successRate()
	}
	return 1.0
}

// Performance returns a snapshot of one agent's counters.
func (r *Registry) Performance(agentID string) PerformanceSnapshot {
	if perf := r.perfFor(agentID); perf != nil {
		return perf.snapshot(agentID)
	}
	return PerformanceSnapshot{AgentID: agentID, SuccessRate: 1.0}
}

// PerformanceAll returns snapshots for every registered agent keyed by id.
func (r *Registry) PerformanceAll() map[string]PerformanceSnapshot {
	r.mu.RLock()
	ids := make([]string, 0, len(r.perf))
	for id := range r.perf {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	out := make(map[string]PerformanceSnapshot, len(ids))
	for _, id := range ids {
		out[id] = r.Performance(id)
	}
	return out
}

func (r *Registry) perfFor(agentID string) *performance {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.perf[agentID]
}

// DependencyStatus reports the health of an agent's declared dependencies.
// Dependencies that are themselves registered agents report healthy/unhealthy
// by status; unknown dependencies report "unknown".
func (r *Registry) DependencyStatus(agentID string) map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	agent, ok := r.agents[agentID]
	if !ok {
		return nil
	}
	out := make(map[string]string, len(agent.Dependencies))
	for _, dep := range agent.Dependencies {
		if depAgent, registered := r.agents[dep]; registered {
			if depAgent.Status == StatusActive {
				out[dep] = "healthy"
			} else {
				out[dep] = "unhealthy"
			}
		} else {
			out[dep] = "unknown"
		}
	}
	return out
}

// StatusSummary counts agents per status and category and tallies the
// capability census.
type StatusSummary struct {
	TotalAgents  int                 `json:"total_agents"`
	ActiveAgents int                 `json:"active_agents"`
	ByStatus     map[AgentStatus]int `json:"by_status"`
	ByCategory   map[string]int      `json:"by_category"`
	Capabilities map[string]int      `json:"capabilities"`
}

// Summary returns a point-in-time overview of the registry.
func (r *Registry) Summary() StatusSummary {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s := StatusSummary{
		TotalAgents:  len(r.agents),
		ByStatus:     make(map[AgentStatus]int),
		ByCategory:   make(map[string]int),
		Capabilities: make(map[string]int),
	}
	for _, agent := range r.agents {
		s.ByStatus[agent.Status]++
		s.ByCategory[agent.Category]++
		if agent.Status == StatusActive {
			s.ActiveAgents++
		}
	}
	for cap, ids := range r.capabilityIndex {
		if len(ids) > 0 {
			s.Capabilities[cap] = len(ids)
		}
	}
	return s
}

// Export is a JSON-marshallable snapshot of the full registry.
type Export struct {
	ExportedAt   time.Time           `json:"exported_at"`
	Agents       []*Agent            `json:"agents"`
	Capabilities map[string][]string `json:"capabilities"`
}

// ExportAll snapshots agents and the capability index.
func (r *Registry) ExportAll() Export {
	agents := r.All()
	r.mu.RLock()
	caps := make(map[string][]string, len(r.capabilityIndex))
	for name, ids := range r.capabilityIndex {
		if len(ids) > 0 {
			caps[name] = append([]string(nil), ids...)
		}
	}
	r.mu.RUnlock()
	return Export{ExportedAt: r.now(), Agents: agents, Capabilities: caps}
}
