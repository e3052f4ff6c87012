package chat

import (
	"errors"

	"pai-backend/internal/agent"

	"gorm.io/gorm"
)

var (
	ErrHistoryNotFound = errors.New("history not found")
	ErrChatNotFound    = errors.New("message not found or unauthorized")
	ErrNotDeletable    = errors.New("can only delete HUMAN messages")
	ErrSessionRequired = errors.New("guest session required")
	ErrEmptyMessage    = errors.New("message is empty")
)

const DefaultSystemPrompt = "You are a helpful assistant. Answer in the language the user writes in. " +
	"Use the calculator tool for arithmetic instead of computing results yourself."

type Service struct {
	db           *gorm.DB
	agent        agent.Agent
	systemPrompt string
}

func NewService(db *gorm.DB, agent agent.Agent, systemPrompt string) *Service {
	return &Service{db: db, agent: agent, systemPrompt: systemPrompt}
}
