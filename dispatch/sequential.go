package dispatch

import "github.com/hupe1980/taskmesh/core"

// Sequential pipes the payload through up to MaxSequentialStages agents in
// score order: each stage's output becomes the next stage's input payload. A
// failing stage is skipped (its error stays recorded on the assignment) and
// the pipeline continues with the last successful payload. The final output
// is the last successful stage's output, or the original payload if no stage
// succeeded.
type Sequential struct{}

// Kind implements Strategy.
func (s *Sequential) Kind() core.Strategy { return core.StrategySequential }

// Execute implements Strategy.
func (s *Sequential) Execute(exec *Execution) (map[string]any, error) {
	agents := exec.Agents()
	if len(agents) > MaxSequentialStages {
		agents = agents[:MaxSequentialStages]
	}

	payload := exec.Task().Payload
	for _, agentID := range agents {
		if exec.cancelled() {
			return nil, ErrCancelled
		}
		output, err := exec.invoke(agentID, payload)
		if err != nil {
			// Stage skipped; the pipeline continues with the previous payload.
			continue
		}
		payload = output
	}
	return payload, nil
}
