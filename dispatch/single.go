package dispatch

import "github.com/hupe1980/taskmesh/core"

// Single dispatches to the top-scored agent only. A failure of that one
// assignment fails the task; there is no automatic retry.
type Single struct{}

// Kind implements Strategy.
func (s *Single) Kind() core.Strategy { return core.StrategySingle }

// Execute implements Strategy.
func (s *Single) Execute(exec *Execution) (map[string]any, error) {
	if exec.cancelled() {
		return nil, ErrCancelled
	}
	return exec.invoke(exec.Agents()[0], nil)
}
