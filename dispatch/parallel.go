package dispatch

import (
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/taskmesh/core"
)

// Parallel dispatches concurrently to up to MaxParallelAgents top-scored
// agents. The task succeeds if at least one assignment succeeds; the
// aggregated output merges all successful per-agent outputs tagged by agent
// id. It fails only when every assignment fails.
type Parallel struct{}

// Kind implements Strategy.
func (p *Parallel) Kind() core.Strategy { return core.StrategyParallel }

// Execute implements Strategy.
func (p *Parallel) Execute(exec *Execution) (map[string]any, error) {
	if exec.cancelled() {
		return nil, ErrCancelled
	}

	agents := exec.Agents()
	if len(agents) > MaxParallelAgents {
		agents = agents[:MaxParallelAgents]
	}

	var (
		mu        sync.Mutex
		successes = make(map[string]any, len(agents))
		lastErr   error
	)

	var g errgroup.Group
	for _, agentID := range agents {
		g.Go(func() error {
			output, err := exec.invoke(agentID, nil)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				lastErr = err
				return nil // siblings keep running; failure is per-assignment
			}
			successes[agentID] = output
			return nil
		})
	}
	_ = g.Wait()

	if len(successes) == 0 {
		return nil, fmt.Errorf("all parallel agents failed: %w", lastErr)
	}
	return map[string]any{
		"agents":      successes,
		"agent_count": len(successes),
	}, nil
}
