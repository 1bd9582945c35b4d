package registry

import "time"

// Health score thresholds mapping to agent status.
const (
	healthActiveThreshold   = 0.8
	healthDegradedThreshold = 0.5
)

// StartHealthMonitor launches the periodic health check loop. The loop runs
// until StopHealthMonitor is called. Starting twice is a no-op.
func (r *Registry) StartHealthMonitor() {
	r.monitorOnce.Do(func() {
		go r.healthLoop()
	})
}

// StopHealthMonitor terminates the health check loop.
func (r *Registry) StopHealthMonitor() {
	select {
	case <-r.monitorStop:
	default:
		close(r.monitorStop)
	}
}

func (r *Registry) healthLoop() {
	ticker := time.NewTicker(r.healthCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.monitorStop:
			return
		case <-ticker.C:
			r.CheckHealth()
		}
	}
}

// CheckHealth runs one health pass over all agents, deriving status from the
// health score. Agents inside a failure cooldown window are forced to Error
// regardless of their instantaneous score. Administratively Inactive agents
// are left untouched.
func (r *Registry) CheckHealth() {
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()
	for id, agent := range r.agents {
		if agent.Status == StatusInactive {
			continue
		}
		agent.LastHealthCheck = now

		perf := r.perf[id]
		if perf != nil && perf.inCooldown(now) {
			if agent.Status != StatusError {
				r.logger.Warn("agent in failure cooldown", "agent_id", id)
			}
			agent.Status = StatusError
			continue
		}

		prev := agent.Status
		switch {
		case agent.HealthScore > healthActiveThreshold:
			agent.Status = StatusActive
		case agent.HealthScore > healthDegradedThreshold:
			agent.Status = StatusDegraded
		default:
			agent.Status = StatusError
		}
		if prev != agent.Status {
			r.logger.Info("agent status changed", "agent_id", id, "from", string(prev), "to", string(agent.Status), "health_score", agent.HealthScore)
		}
	}
}
