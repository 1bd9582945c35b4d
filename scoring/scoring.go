// Package scoring ranks agents for a task. The score is a pure function of
// the agent's rolling success rate, its current concurrent load, and the
// task's priority; candidate discovery filters on capability superset match
// and Active status.
package scoring

import (
	"sort"

	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/registry"
)

// loadCapacity is the concurrent-assignment count at which an agent's load
// factor reaches zero.
const loadCapacity = 10

// Score combines success rate, load and task priority into a single ranking
// value. It is deterministic and side-effect free.
func Score(successRate float64, activeAssignments int, priority core.Priority) float64 {
	loadFactor := 1.0 - float64(activeAssignments)/loadCapacity
	if loadFactor < 0 {
		loadFactor = 0
	}
	return 1.0 * successRate * loadFactor * priority.ScoreFactor()
}

// Candidate pairs an agent id with its computed score.
type Candidate struct {
	AgentID string
	Score   float64
}

// Scorer discovers and ranks eligible agents against the registry.
type Scorer struct {
	reg *registry.Registry
}

// New constructs a Scorer over the given registry.
func New(reg *registry.Registry) *Scorer {
	return &Scorer{reg: reg}
}

// FindSuitableAgents returns the ids of Active agents whose capability set is
// a superset of the task's requirements, sorted by score descending. An empty
// result is a valid outcome signaling "no eligible agent", not an error.
func (s *Scorer) FindSuitableAgents(task *core.Task) []string {
	candidates := s.RankedCandidates(task)
	out := make([]string, len(candidates))
	for i, c := range candidates {
		out[i] = c.AgentID
	}
	return out
}

// RankedCandidates is FindSuitableAgents with the scores retained, useful for
// diagnostics and tests.
func (s *Scorer) RankedCandidates(task *core.Task) []Candidate {
	agents := s.reg.WithCapabilities(task.Requirements)
	candidates := make([]Candidate, 0, len(agents))
	for _, agent := range agents {
		if agent.Status != registry.StatusActive {
			continue
		}
		score := Score(s.reg.SuccessRate(agent.ID), s.reg.ActiveAssignments(agent.ID), task.Priority)
		candidates = append(candidates, Candidate{AgentID: agent.ID, Score: score})
	}
	// Stable ranking: score descending, agent id as tie-break.
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].AgentID < candidates[j].AgentID
	})
	return candidates
}
