package dispatch

import (
	"fmt"

	"github.com/hupe1980/taskmesh/core"
)

// Fallback tries agents strictly in score order; the first success wins. It
// fails only when every candidate failed, carrying the last error.
type Fallback struct{}

// Kind implements Strategy.
func (f *Fallback) Kind() core.Strategy { return core.StrategyFallback }

// Execute implements Strategy.
func (f *Fallback) Execute(exec *Execution) (map[string]any, error) {
	var lastErr error
	for _, agentID := range exec.Agents() {
		if exec.cancelled() {
			return nil, ErrCancelled
		}
		output, err := exec.invoke(agentID, nil)
		if err != nil {
			lastErr = err
			continue
		}
		return output, nil
	}
	return nil, fmt.Errorf("all fallback agents failed: %w", lastErr)
}
