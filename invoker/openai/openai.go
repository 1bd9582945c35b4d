// Package openai provides a core.Invoker backed by the OpenAI Chat
// Completions API. Agents routed here are executed as a single prompt built
// from the task's description and payload.
package openai

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"

	"github.com/hupe1980/taskmesh/core"
	"github.com/hupe1980/taskmesh/invoker"
)

// Options configure the OpenAI invoker. Fields mirror a subset of Chat
// Completion parameters intentionally kept minimal; extend via functional
// options without breaking callers.
type Options struct {
	Model               string
	Temperature         float64
	MaxCompletionTokens int64
}

// Invoker executes agents through the OpenAI Chat Completions API.
type Invoker struct {
	client *openai.Client
	opts   Options
}

// New creates a new OpenAI invoker using the official client.
func New(optFns ...func(o *Options)) *Invoker {
	client := openai.NewClient()
	return NewFromClient(&client, optFns...)
}

// NewFromClient creates a new OpenAI invoker from an existing client.
func NewFromClient(client *openai.Client, optFns ...func(o *Options)) *Invoker {
	opts := Options{
		Model:               openai.ChatModelGPT4oMini,
		Temperature:         0.7,
		MaxCompletionTokens: 4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Invoker{client: client, opts: opts}
}

// Invoke implements core.Invoker.
func (i *Invoker) Invoke(ctx context.Context, agentID string, task *core.Task) (map[string]any, error) {
	params := openai.ChatCompletionNewParams{
		Model: i.opts.Model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(invoker.BuildPrompt(task)),
		},
		Temperature:         openai.Float(i.opts.Temperature),
		MaxCompletionTokens: openai.Int(i.opts.MaxCompletionTokens),
	}

	resp, err := i.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, &core.InvocationError{AgentID: agentID, Err: fmt.Errorf("openai api error: %w", err)}
	}
	if len(resp.Choices) == 0 {
		return nil, &core.InvocationError{AgentID: agentID, Err: fmt.Errorf("openai returned no choices")}
	}

	choice := resp.Choices[0]
	return map[string]any{
		"agent_id":      agentID,
		"model":         i.opts.Model,
		"text":          choice.Message.Content,
		"finish_reason": string(choice.FinishReason),
	}, nil
}
