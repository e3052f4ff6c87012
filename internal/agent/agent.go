package agent

import (
	"context"
	"iter"

	"github.com/tmc/langchaingo/llms"
)

// Node tags which step of the agent produced an event.
type Node string

const (
	NodeAgent Node = "agent"
	NodeTools Node = "tools"
)

type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// Message is the payload of an event. Agent node events carry either a text
// chunk or the tool calls the model asked for; tools node events carry the
// output of one tool call.
type Message struct {
	Content    string
	ToolCalls  []ToolCall
	ToolCallID string
	ToolName   string
}

type Event struct {
	Node    Node
	Message Message
}

type RunConfig struct {
	// ThreadID keys the run to a conversation.
	ThreadID string
}

// Agent streams the events of one run over the given conversation. The
// sequence ends after the first non nil error.
type Agent interface {
	Stream(ctx context.Context, cfg RunConfig, messages []llms.MessageContent) iter.Seq2[Event, error]
}
