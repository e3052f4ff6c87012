package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"pai-backend/internal/database"

	"gorm.io/gorm"
)

// DeleteMessage removes a HUMAN message along with the TOOLS and AI entries
// that answered it.
func (s *Service) DeleteMessage(ctx context.Context, owner database.Owner, chatId uint) error {
	if !owner.IsUser() && owner.SessionKey == "" {
		return ErrChatNotFound
	}

	chat, err := database.GetOwnedChat(ctx, s.db, chatId, owner)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrChatNotFound
	}
	if err != nil {
		return fmt.Errorf("error loading chat %d: %w", chatId, err)
	}

	if chat.Type != database.ChatHuman {
		return ErrNotDeletable
	}

	deleted, err := database.DeleteTurn(ctx, s.db, chat.HistoryID, chat.OrderNum)
	if err != nil {
		return err
	}

	slog.Info("deleted chat turn", "history_id", chat.HistoryID, "order_num", chat.OrderNum, "deleted", deleted)
	return nil
}
