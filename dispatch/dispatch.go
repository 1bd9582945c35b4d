// Package dispatch implements the five strategies that turn a ranked agent
// list into a final task result: Single, Parallel, Sequential, Consensus and
// Fallback. Strategies differ only in fan-out and aggregation; the
// per-assignment lifecycle (create, invoke, record outcome) is owned by the
// shared Execution helper.
//
// Cancellation is cooperative: strategies observe the task's cancellation
// flag at natural boundaries (between pipeline stages, before each fallback
// attempt, before launching parallel sub-calls) and never interrupt an
// in-flight agent invocation.
package dispatch

import (
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/taskmesh/core"
)

// Fan-out and aggregation limits per strategy.
const (
	// MaxParallelAgents caps concurrent fan-out of the Parallel strategy.
	MaxParallelAgents = 5
	// MaxSequentialStages caps pipeline depth of the Sequential strategy.
	MaxSequentialStages = 3
	// MaxConsensusAgents caps the voter set of the Consensus strategy.
	MaxConsensusAgents = 3
	// DefaultConsensusWindow bounds how long Consensus waits for ballots.
	DefaultConsensusWindow = 30 * time.Second
)

// ErrCancelled is returned by a strategy that stopped at a cancellation
// boundary. The orchestrator maps it to the Cancelled terminal state.
var ErrCancelled = errors.New("task cancelled")

// Strategy executes a task against a ranked candidate list and returns the
// aggregated output. A returned error marks the task Failed (or Cancelled for
// ErrCancelled); individual assignment errors are already recorded on the
// Execution by the time Execute returns.
type Strategy interface {
	Kind() core.Strategy
	Execute(exec *Execution) (map[string]any, error)
}

// Options tunes strategy construction.
type Options struct {
	// ConsensusWindow bounds ballot collection for the Consensus strategy.
	ConsensusWindow time.Duration
}

// For returns the Strategy implementation for the given kind.
func For(kind core.Strategy, optFns ...func(o *Options)) (Strategy, error) {
	opts := Options{ConsensusWindow: DefaultConsensusWindow}
	for _, fn := range optFns {
		fn(&opts)
	}

	switch kind {
	case core.StrategySingle:
		return &Single{}, nil
	case core.StrategyParallel:
		return &Parallel{}, nil
	case core.StrategySequential:
		return &Sequential{}, nil
	case core.StrategyConsensus:
		return &Consensus{Window: opts.ConsensusWindow}, nil
	case core.StrategyFallback:
		return &Fallback{}, nil
	default:
		return nil, fmt.Errorf("no dispatch implementation for strategy %q", kind)
	}
}
