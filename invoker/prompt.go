package invoker

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hupe1980/taskmesh/core"
)

// BuildPrompt renders a task into a plain-text prompt for model-backed
// invokers: the description followed by the JSON-encoded payload, if any.
func BuildPrompt(task *core.Task) string {
	var b strings.Builder
	b.WriteString(task.Description)
	if len(task.Payload) > 0 {
		if data, err := json.Marshal(task.Payload); err == nil {
			fmt.Fprintf(&b, "\n\nInput payload:\n%s", data)
		}
	}
	return b.String()
}
