package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"slices"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/tools"
)

var ErrMaxSteps = errors.New("agent exceeded maximum number of steps")

var toolParameters = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"input": map[string]any{
			"type":        "string",
			"description": "input passed to the tool",
		},
	},
	"required": []string{"input"},
}

// GraphAgent alternates between an agent step, which streams a model
// completion, and a tools step, which runs every tool call the completion
// asked for, until the model answers without tool calls.
type GraphAgent struct {
	model    llms.Model
	tools    map[string]tools.Tool
	defs     []llms.Tool
	maxSteps int
}

func NewGraphAgent(model llms.Model, toolset []tools.Tool, maxSteps int) *GraphAgent {
	agent := &GraphAgent{
		model:    model,
		tools:    make(map[string]tools.Tool, len(toolset)),
		maxSteps: max(maxSteps, 1),
	}

	for _, tool := range toolset {
		agent.tools[tool.Name()] = tool
		agent.defs = append(agent.defs, llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        tool.Name(),
				Description: tool.Description(),
				Parameters:  toolParameters,
			},
		})
	}

	return agent
}

func (a *GraphAgent) Stream(ctx context.Context, cfg RunConfig, messages []llms.MessageContent) iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		conversation := slices.Clone(messages)

		for step := 0; step < a.maxSteps; step++ {
			choice, ok := a.agentStep(ctx, cfg, conversation, yield)
			if !ok {
				return
			}

			if len(choice.ToolCalls) == 0 {
				return
			}

			calls := make([]ToolCall, 0, len(choice.ToolCalls))
			callParts := make([]llms.ContentPart, 0, len(choice.ToolCalls)+1)
			if choice.Content != "" {
				callParts = append(callParts, llms.TextContent{Text: choice.Content})
			}
			for _, tc := range choice.ToolCalls {
				if tc.FunctionCall == nil {
					continue
				}
				calls = append(calls, ToolCall{ID: tc.ID, Name: tc.FunctionCall.Name, Arguments: tc.FunctionCall.Arguments})
				callParts = append(callParts, tc)
			}

			if !yield(Event{Node: NodeAgent, Message: Message{ToolCalls: calls}}, nil) {
				return
			}

			conversation = append(conversation, llms.MessageContent{Role: llms.ChatMessageTypeAI, Parts: callParts})

			for _, call := range calls {
				output := a.runTool(ctx, cfg, call)

				event := Event{
					Node:    NodeTools,
					Message: Message{Content: output, ToolCallID: call.ID, ToolName: call.Name},
				}
				if !yield(event, nil) {
					return
				}

				conversation = append(conversation, llms.MessageContent{
					Role: llms.ChatMessageTypeTool,
					Parts: []llms.ContentPart{llms.ToolCallResponse{
						ToolCallID: call.ID,
						Name:       call.Name,
						Content:    output,
					}},
				})
			}
		}

		yield(Event{}, ErrMaxSteps)
	}
}

// agentStep runs one completion, forwarding text chunks as they arrive. It
// reports false once the sequence is finished, either because the consumer
// stopped or because an error was yielded.
func (a *GraphAgent) agentStep(ctx context.Context, cfg RunConfig, conversation []llms.MessageContent, yield func(Event, error) bool) (*llms.ContentChoice, bool) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	streamed := false
	stopped := false

	// After the consumer stops the request is cancelled and later chunks are
	// dropped. The callback keeps returning nil so the client drains its
	// response stream.
	onChunk := func(_ context.Context, chunk []byte) error {
		if stopped || len(chunk) == 0 || isToolCallChunk(chunk) {
			return nil
		}
		streamed = true
		if !yield(Event{Node: NodeAgent, Message: Message{Content: string(chunk)}}, nil) {
			stopped = true
			cancel()
		}
		return nil
	}

	options := []llms.CallOption{llms.WithStreamingFunc(onChunk)}
	if len(a.defs) > 0 {
		options = append(options, llms.WithTools(a.defs))
	}

	resp, err := a.model.GenerateContent(ctx, conversation, options...)
	if stopped {
		return nil, false
	}
	if err != nil {
		slog.Error("error generating agent response", "thread_id", cfg.ThreadID, "error", err)
		yield(Event{}, fmt.Errorf("error generating response: %w", err))
		return nil, false
	}
	if len(resp.Choices) == 0 {
		yield(Event{}, errors.New("model returned no choices"))
		return nil, false
	}

	choice := resp.Choices[0]

	// Models that ignore the streaming callback still get their text forwarded.
	if !streamed && choice.Content != "" && len(choice.ToolCalls) == 0 {
		if !yield(Event{Node: NodeAgent, Message: Message{Content: choice.Content}}, nil) {
			return nil, false
		}
	}

	return choice, true
}

func (a *GraphAgent) runTool(ctx context.Context, cfg RunConfig, call ToolCall) string {
	tool, ok := a.tools[call.Name]
	if !ok {
		slog.Warn("model requested unknown tool", "thread_id", cfg.ThreadID, "tool", call.Name)
		return fmt.Sprintf("error: unknown tool %q", call.Name)
	}

	output, err := tool.Call(ctx, toolInput(call.Arguments))
	if err != nil {
		slog.Warn("tool call failed", "thread_id", cfg.ThreadID, "tool", call.Name, "error", err)
		return fmt.Sprintf("error: %v", err)
	}
	return output
}

func toolInput(arguments string) string {
	var args struct {
		Input string `json:"input"`
	}
	if err := json.Unmarshal([]byte(arguments), &args); err != nil || args.Input == "" {
		return arguments
	}
	return args.Input
}

// isToolCallChunk detects the JSON encoded tool call deltas that some
// providers pass to the streaming callback alongside text.
func isToolCallChunk(chunk []byte) bool {
	trimmed := bytes.TrimSpace(chunk)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return false
	}

	var deltas []struct {
		Type     string          `json:"type"`
		Function json.RawMessage `json:"function"`
	}
	if err := json.Unmarshal(trimmed, &deltas); err != nil || len(deltas) == 0 {
		return false
	}
	for _, d := range deltas {
		if d.Type != "function" && d.Function == nil {
			return false
		}
	}
	return true
}
