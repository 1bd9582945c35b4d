package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/taskmesh/core"
)

// Consensus runs parallel dispatch over the top MaxConsensusAgents agents and
// requires agreement from more than half of the returned responses. Ballots
// are the canonical JSON encodings of the agent outputs, so only directly
// comparable responses can agree. The strategy always resolves within its
// window, returning the vote tally and the reached flag even with partial
// responses; it fails only when no agent returns at all.
type Consensus struct {
	// Window bounds ballot collection. Zero means DefaultConsensusWindow.
	Window time.Duration
}

// Kind implements Strategy.
func (c *Consensus) Kind() core.Strategy { return core.StrategyConsensus }

// Execute implements Strategy.
func (c *Consensus) Execute(exec *Execution) (map[string]any, error) {
	if exec.cancelled() {
		return nil, ErrCancelled
	}

	window := c.Window
	if window <= 0 {
		window = DefaultConsensusWindow
	}
	ctx, cancel := context.WithTimeout(exec.ctx, window)
	defer cancel()

	agents := exec.Agents()
	if len(agents) > MaxConsensusAgents {
		agents = agents[:MaxConsensusAgents]
	}

	type ballot struct {
		agentID string
		key     string
		output  map[string]any
	}

	var (
		mu      sync.Mutex
		ballots []ballot
		lastErr error
	)

	var g errgroup.Group
	for _, agentID := range agents {
		g.Go(func() error {
			output, err := exec.invokeCtx(ctx, agentID, nil)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				lastErr = err
				return nil
			}
			key, encErr := canonicalBallot(output)
			if encErr != nil {
				lastErr = encErr
				return nil
			}
			ballots = append(ballots, ballot{agentID: agentID, key: key, output: output})
			return nil
		})
	}

	// Resolve within the window even if some invocations are still in flight:
	// wait for either completion or window expiry, then tally what arrived.
	done := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}

	mu.Lock()
	defer mu.Unlock()

	if len(ballots) == 0 {
		if lastErr != nil {
			return nil, fmt.Errorf("consensus collected no responses: %w", lastErr)
		}
		return nil, fmt.Errorf("consensus collected no responses within %s", window)
	}

	tally := make(map[string]int)
	for _, b := range ballots {
		tally[b.key]++
	}
	var winnerKey string
	var winnerVotes int
	for key, votes := range tally {
		if votes > winnerVotes || (votes == winnerVotes && key < winnerKey) {
			winnerKey, winnerVotes = key, votes
		}
	}
	reached := winnerVotes*2 > len(ballots)

	result := map[string]any{
		"reached":   reached,
		"responses": len(ballots),
		"votes":     tally,
	}
	if reached {
		for _, b := range ballots {
			if b.key == winnerKey {
				result["agreed_output"] = b.output
				break
			}
		}
	}
	return result, nil
}

// canonicalBallot encodes an output map deterministically (encoding/json
// sorts map keys) so structurally equal responses compare equal.
func canonicalBallot(output map[string]any) (string, error) {
	data, err := json.Marshal(output)
	if err != nil {
		return "", &core.InvocationError{Err: fmt.Errorf("output not comparable as ballot: %w", err)}
	}
	return string(data), nil
}
