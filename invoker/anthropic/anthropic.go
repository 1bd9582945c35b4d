// Package anthropic provides a core.Invoker backed by the Anthropic Messages
// API. Agents routed here are executed as a single prompt built from the
// task's description and payload.
package anthropic

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/invoker"
)

// Options configures the Anthropic invoker (model id, max tokens,
// temperature, API key). Extend via functional options to preserve stability.
type Options struct {
	Model       anthropic.Model
	Temperature float64
	MaxTokens   int64
	APIKey      string
}

// Invoker executes agents through the Anthropic Messages API.
type Invoker struct {
	client *anthropic.Client
	opts   Options
}

// New creates a new Anthropic invoker using the official client.
func New(optFns ...func(o *Options)) *Invoker {
	opts := Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.7,
		MaxTokens:   4096,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}

	client := anthropic.NewClient(clientOpts...)

	return &Invoker{client: &client, opts: opts}
}

// NewFromClient creates a new Anthropic invoker from an existing client.
func NewFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Invoker {
	opts := Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.7,
		MaxTokens:   4096,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Invoker{client: client, opts: opts}
}

// Invoke implements core.Invoker.
func (i *Invoker) Invoke(ctx context.Context, agentID string, task *core.Task) (map[string]any, error) {
	params := anthropic.MessageNewParams{
		Model:       i.opts.Model,
		MaxTokens:   i.opts.MaxTokens,
		Temperature: anthropic.Float(i.opts.Temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(invoker.BuildPrompt(task))),
		},
	}

	resp, err := i.client.Messages.New(ctx, params)
	if err != nil {
		return nil, &core.InvocationError{AgentID: agentID, Err: fmt.Errorf("anthropic api error: %w", err)}
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.AsText().Text)
		}
	}

	return map[string]any{
		"agent_id":    agentID,
		"model":       string(i.opts.Model),
		"text":        text.String(),
		"stop_reason": string(resp.StopReason),
	}, nil
}
