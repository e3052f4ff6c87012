package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// ID is a numeric identifier that browsers may send either as a JSON number
// or as a string.
type ID uint

func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = 0
		return nil
	}

	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			*id = 0
			return nil
		}
		data = []byte(s)
	}

	v, err := strconv.ParseUint(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid id %s: %w", data, err)
	}
	*id = ID(v)
	return nil
}

type StreamRequest struct {
	Message   string `json:"message"`
	HistoryID ID     `json:"history_id"`
}

type DeleteRequest struct {
	MessageID ID `json:"message_id"`
}

const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

type DeleteResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type InterfaceParams struct {
	HistoryID uint `schema:"history_id"`
}

type ChatItem struct {
	ChatID    uint      `json:"chat_id"`
	Type      string    `json:"type"`
	Content   string    `json:"content"`
	OrderNum  int       `json:"order_num"`
	CreatedAt time.Time `json:"created_at"`
}

type InterfaceResponse struct {
	UserID            any        `json:"user_id"` // numeric id, or "guest"
	SelectedHistoryID uint       `json:"selected_history_id"`
	ChatHistory       []ChatItem `json:"chat_history"`
}

type HistoryItem struct {
	HistoryID   uint      `json:"history_id"`
	OrderNum    int       `json:"order_num"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// Lines of the newline delimited chat stream.

type UserMessageIDLine struct {
	Type   string `json:"type"`
	ChatID uint   `json:"chat_id"`
}

type TokenLine struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

type ToolCallLine struct {
	Type     string `json:"type"`
	ToolName string `json:"tool_name"`
}

type ToolResultLine struct {
	Type   string `json:"type"`
	Length int    `json:"length"`
}

type ErrorLine struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}
