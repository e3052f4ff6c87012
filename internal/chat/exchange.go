package chat

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"strconv"
	"strings"
	"unicode/utf8"

	"pai-backend/internal/agent"
	"pai-backend/internal/database"

	"gorm.io/gorm"
)

type EventType string

const (
	EventUserMessageID EventType = "user_message_id"
	EventToken         EventType = "token"
	EventToolCall      EventType = "tool_call"
	EventToolResult    EventType = "tool_result"
	EventError         EventType = "error"
)

// Event is one line of a streamed exchange. Only the fields relevant to Type
// are set.
type Event struct {
	Type     EventType
	ChatID   uint
	Content  string
	ToolName string
	Length   int
	Message  string
}

func errorEvent(err error) Event {
	return Event{Type: EventError, Message: err.Error()}
}

// exchange is the state of one streamed reply: the order the next entry is
// saved at, the tool calls already announced and the text received so far.
type exchange struct {
	db        *gorm.DB
	historyId uint
	nextOrder int
	toolCalls map[string]agent.ToolCall
	response  strings.Builder
}

func newExchange(db *gorm.DB, historyId uint, nextOrder int) *exchange {
	return &exchange{
		db:        db,
		historyId: historyId,
		nextOrder: nextOrder,
		toolCalls: make(map[string]agent.ToolCall),
	}
}

// handle maps one agent event to the events sent to the client, saving tool
// output as it arrives. Events are returned even when saving fails.
func (x *exchange) handle(ctx context.Context, ev agent.Event) ([]Event, error) {
	switch ev.Node {
	case agent.NodeAgent:
		if len(ev.Message.ToolCalls) == 0 {
			if ev.Message.Content == "" {
				return nil, nil
			}
			x.response.WriteString(ev.Message.Content)
			return []Event{{Type: EventToken, Content: ev.Message.Content}}, nil
		}

		var out []Event
		for _, call := range ev.Message.ToolCalls {
			if _, seen := x.toolCalls[call.ID]; seen {
				continue
			}
			x.toolCalls[call.ID] = call
			out = append(out, Event{Type: EventToolCall, ToolName: call.Name})
		}
		return out, nil

	case agent.NodeTools:
		out := []Event{{Type: EventToolResult, Length: utf8.RuneCountInString(ev.Message.Content)}}

		meta := database.ToolMetadata{
			ToolCallID: ev.Message.ToolCallID,
			ToolName:   ev.Message.ToolName,
			Arguments:  x.toolCalls[ev.Message.ToolCallID].Arguments,
		}
		if _, err := database.SaveChat(ctx, x.db, x.historyId, database.ChatTools, ev.Message.Content, x.nextOrder, meta); err != nil {
			return out, err
		}
		x.nextOrder++
		return out, nil

	default:
		slog.Warn("ignoring event from unknown agent node", "node", ev.Node, "history_id", x.historyId)
		return nil, nil
	}
}

// finish saves the accumulated text as a single AI entry.
func (x *exchange) finish(ctx context.Context) error {
	if x.response.Len() == 0 {
		return nil
	}
	if _, err := database.SaveChat(ctx, x.db, x.historyId, database.ChatAI, x.response.String(), x.nextOrder, nil); err != nil {
		return err
	}
	x.nextOrder++
	return nil
}

// Stream saves the user's message to the history and returns the events of
// the agent's reply. Failures before the message is saved are returned
// directly; later ones end the sequence with an error event, keeping
// whatever was already saved.
func (s *Service) Stream(ctx context.Context, owner database.Owner, historyId uint, message string) (iter.Seq[Event], error) {
	if message == "" {
		return nil, ErrEmptyMessage
	}

	history, err := s.SelectHistory(ctx, owner, historyId)
	if err != nil {
		return nil, err
	}

	order, err := database.NextChatOrder(ctx, s.db, history.ID)
	if err != nil {
		return nil, err
	}

	human, err := database.SaveChat(ctx, s.db, history.ID, database.ChatHuman, message, order, nil)
	if err != nil {
		return nil, err
	}

	chats, err := database.ListChats(ctx, s.db, history.ID)
	if err != nil {
		return nil, err
	}
	messages := BuildMessages(s.systemPrompt, chats)

	x := newExchange(s.db, history.ID, order+1)
	cfg := agent.RunConfig{ThreadID: strconv.FormatUint(uint64(history.ID), 10)}

	return func(yield func(Event) bool) {
		if !yield(Event{Type: EventUserMessageID, ChatID: human.ID}) {
			return
		}

		for ev, err := range s.agent.Stream(ctx, cfg, messages) {
			if err != nil {
				slog.Error("agent stream failed", "history_id", history.ID, "error", err)
				yield(errorEvent(err))
				return
			}

			out, err := x.handle(ctx, ev)
			for _, e := range out {
				if !yield(e) {
					return
				}
			}
			if err != nil {
				slog.Error("error handling agent event", "history_id", history.ID, "error", err)
				yield(errorEvent(fmt.Errorf("error saving tool result: %w", err)))
				return
			}
		}

		if err := x.finish(ctx); err != nil {
			slog.Error("error saving ai response", "history_id", history.ID, "error", err)
			yield(errorEvent(err))
		}
	}, nil
}
