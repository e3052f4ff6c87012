package chat

import (
	"encoding/json"
	"log/slog"

	"pai-backend/internal/database"

	"github.com/tmc/langchaingo/llms"
)

// BuildMessages turns stored chats into the conversation handed to the agent.
// TOOLS entries that carry their call metadata are replayed as the original
// tool call and response; older ones become system notes.
func BuildMessages(systemPrompt string, chats []database.ChatEntry) []llms.MessageContent {
	messages := make([]llms.MessageContent, 0, len(chats)+1)
	if systemPrompt != "" {
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt))
	}

	for _, chat := range chats {
		switch chat.Type {
		case database.ChatHuman:
			messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, chat.Content))

		case database.ChatAI:
			messages = append(messages, llms.TextParts(llms.ChatMessageTypeAI, chat.Content))

		case database.ChatTools:
			var meta database.ToolMetadata
			if len(chat.Metadata) > 0 {
				if err := json.Unmarshal(chat.Metadata, &meta); err != nil {
					slog.Warn("invalid tool metadata on chat", "chat_id", chat.ID, "error", err)
				}
			}

			if meta.ToolCallID == "" {
				messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, "Tool result: "+chat.Content))
				continue
			}

			messages = append(messages,
				llms.MessageContent{
					Role: llms.ChatMessageTypeAI,
					Parts: []llms.ContentPart{llms.ToolCall{
						ID:   meta.ToolCallID,
						Type: "function",
						FunctionCall: &llms.FunctionCall{
							Name:      meta.ToolName,
							Arguments: meta.Arguments,
						},
					}},
				},
				llms.MessageContent{
					Role: llms.ChatMessageTypeTool,
					Parts: []llms.ContentPart{llms.ToolCallResponse{
						ToolCallID: meta.ToolCallID,
						Name:       meta.ToolName,
						Content:    chat.Content,
					}},
				},
			)

		default:
			slog.Warn("skipping chat with unknown type", "chat_id", chat.ID, "type", chat.Type)
		}
	}

	return messages
}
