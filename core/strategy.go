package core

import "fmt"

// Strategy selects the dispatch algorithm that turns a ranked agent list into
// a final task result. Strategies differ only in fan-out and aggregation; the
// per-assignment lifecycle is identical for all of them.
type Strategy string

const (
	// StrategySingle dispatches to the top-scored agent only.
	StrategySingle Strategy = "single"
	// StrategyParallel dispatches to several agents concurrently and merges
	// the successful outputs.
	StrategyParallel Strategy = "parallel"
	// StrategySequential pipes the payload through agents in score order.
	StrategySequential Strategy = "sequential"
	// StrategyConsensus runs agents in parallel and tallies agreeing outputs.
	StrategyConsensus Strategy = "consensus"
	// StrategyFallback tries agents in score order until one succeeds.
	StrategyFallback Strategy = "fallback"
)

// String returns the canonical name of the strategy.
func (s Strategy) String() string { return string(s) }

// Valid reports whether s is one of the defined dispatch strategies.
func (s Strategy) Valid() bool {
	switch s {
	case StrategySingle, StrategyParallel, StrategySequential, StrategyConsensus, StrategyFallback:
		return true
	default:
		return false
	}
}

// ParseStrategy converts an untyped request value into a Strategy. Unknown
// names are rejected with a ValidationError; the empty string maps to
// StrategySingle.
func ParseStrategy(name string) (Strategy, error) {
	if name == "" {
		return StrategySingle, nil
	}
	s := Strategy(name)
	if !s.Valid() {
		return "", &ValidationError{Field: "strategy", Reason: fmt.Sprintf("unknown strategy %q", name)}
	}
	return s, nil
}
