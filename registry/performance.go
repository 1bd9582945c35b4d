package registry

import (
	"sync"
	"time"
)

// latencyWindow bounds the rolling latency history kept per agent.
const latencyWindow = 64

// PerformanceSnapshot is a point-in-time copy of one agent's rolling
// performance counters.
type PerformanceSnapshot struct {
	AgentID             string        `json:"agent_id"`
	TasksAssigned       int64         `json:"tasks_assigned"`
	TasksCompleted      int64         `json:"tasks_completed"`
	TasksFailed         int64         `json:"tasks_failed"`
	SuccessRate         float64       `json:"success_rate"`
	AverageLatency      time.Duration `json:"average_latency"`
	ActiveAssignments   int           `json:"active_assignments"`
	ConsecutiveFailures int           `json:"consecutive_failures"`
}

// performance holds the mutable per-agent counters. Each record has its own
// mutex so updating one agent never contends with another.
type performance struct {
	mu sync.Mutex

	assigned  int64
	completed int64
	failed    int64

	// ring is a fixed-capacity buffer of recent invocation latencies.
	ring  [latencyWindow]time.Duration
	count int
	next  int

	active              int
	consecutiveFailures int
	cooldownUntil       time.Time
}

// record folds one assignment outcome into the counters. On the threshold
// consecutive failure the cooldown window is (re)armed.
func (p *performance) record(success bool, latency time.Duration, now time.Time, threshold int, cooldown time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.assigned++
	if success {
		p.completed++
		p.consecutiveFailures = 0
		if latency > 0 {
			p.ring[p.next] = latency
			p.next = (p.next + 1) % latencyWindow
			if p.count < latencyWindow {
				p.count++
			}
		}
	} else {
		p.failed++
		p.consecutiveFailures++
		if p.consecutiveFailures >= threshold {
			p.cooldownUntil = now.Add(cooldown)
		}
	}
}

func (p *performance) incActive() {
	p.mu.Lock()
	p.active++
	p.mu.Unlock()
}

func (p *performance) decActive() {
	p.mu.Lock()
	if p.active > 0 {
		p.active--
	}
	p.mu.Unlock()
}

// successRate is completed/assigned, clamped to [0,1]. Agents with no history
// score a full 1.0 so new agents are not starved of work.
func (p *performance) successRate() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.successRateLocked()
}

func (p *performance) successRateLocked() float64 {
	if p.assigned == 0 {
		return 1.0
	}
	rate := float64(p.completed) / float64(p.assigned)
	if rate < 0 {
		return 0
	}
	if rate > 1 {
		return 1
	}
	return rate
}

func (p *performance) inCooldown(now time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return now.Before(p.cooldownUntil)
}

func (p *performance) activeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

func (p *performance) snapshot(agentID string) PerformanceSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	var avg time.Duration
	if p.count > 0 {
		var total time.Duration
		for i := 0; i < p.count; i++ {
			total += p.ring[i]
		}
		avg = total / time.Duration(p.count)
	}
	return PerformanceSnapshot{
		AgentID:             agentID,
		TasksAssigned:       p.assigned,
		TasksCompleted:      p.completed,
		TasksFailed:         p.failed,
		SuccessRate:         p.successRateLocked(),
		AverageLatency:      avg,
		ActiveAssignments:   p.active,
		ConsecutiveFailures: p.consecutiveFailures,
	}
}
