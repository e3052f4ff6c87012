package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Owner is the party a history belongs to: an authenticated user, or when
// UserID is nil, the guest session identified by SessionKey.
type Owner struct {
	UserID     *uint
	SessionKey string
}

func (o Owner) IsUser() bool {
	return o.UserID != nil
}

// Scope restricts a histories query to rows controlled by the owner.
func (o Owner) Scope(txn *gorm.DB) *gorm.DB {
	if o.UserID != nil {
		return txn.Where("histories.user_id = ?", *o.UserID)
	}
	return txn.Where("histories.session_id = ? AND histories.user_id IS NULL", o.SessionKey)
}

func (o Owner) newHistory(orderNum int, description string) History {
	history := History{
		OrderNum:    orderNum,
		Description: description,
		CreatedAt:   time.Now().UTC(),
	}
	if o.UserID != nil {
		userId := *o.UserID
		history.UserID = &userId
	} else {
		sessionKey := o.SessionKey
		history.SessionID = &sessionKey
	}
	return history
}

func GetUser(ctx context.Context, txn *gorm.DB, userId uint) (User, error) {
	var user User
	err := txn.WithContext(ctx).First(&user, "id = ?", userId).Error
	return user, err
}

func GetOrCreateUser(ctx context.Context, txn *gorm.DB, username string) (User, error) {
	var user User
	err := txn.WithContext(ctx).
		Where(User{Username: username}).
		Attrs(User{CreationTime: time.Now().UTC()}).
		FirstOrCreate(&user).Error
	if err != nil {
		return user, fmt.Errorf("error getting or creating user '%s': %w", username, err)
	}
	return user, nil
}

func CreateGuestSession(ctx context.Context, txn *gorm.DB, ttl time.Duration) (GuestSession, error) {
	now := time.Now().UTC()
	session := GuestSession{
		SessionKey:   uuid.NewString(),
		CreationTime: now,
		ExpiryTime:   now.Add(ttl),
	}
	if err := txn.WithContext(ctx).Create(&session).Error; err != nil {
		return GuestSession{}, fmt.Errorf("error creating guest session: %w", err)
	}
	return session, nil
}

// GetGuestSession returns gorm.ErrRecordNotFound for unknown and expired keys alike.
func GetGuestSession(ctx context.Context, txn *gorm.DB, key string) (GuestSession, error) {
	var session GuestSession
	err := txn.WithContext(ctx).
		Where("session_key = ? AND expiry_time > ?", key, time.Now().UTC()).
		First(&session).Error
	return session, err
}

func PurgeExpiredGuestSessions(ctx context.Context, txn *gorm.DB) (int64, error) {
	res := txn.WithContext(ctx).Where("expiry_time <= ?", time.Now().UTC()).Delete(&GuestSession{})
	if res.Error != nil {
		slog.Error("error purging expired guest sessions", "error", res.Error)
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

// LatestHistory returns the most recently created history of the owner, or
// gorm.ErrRecordNotFound.
func LatestHistory(ctx context.Context, txn *gorm.DB, owner Owner) (History, error) {
	var history History
	err := owner.Scope(txn.WithContext(ctx)).
		Order("created_at DESC").
		Order("id DESC").
		First(&history).Error
	return history, err
}

func CreateHistory(ctx context.Context, txn *gorm.DB, owner Owner, orderNum int, description string) (History, error) {
	history := owner.newHistory(orderNum, description)
	if err := txn.WithContext(ctx).Create(&history).Error; err != nil {
		return History{}, fmt.Errorf("error creating history: %w", err)
	}
	return history, nil
}

// NextHistoryOrder is one past the owner's highest history order, or 1.
func NextHistoryOrder(ctx context.Context, txn *gorm.DB, owner Owner) (int, error) {
	var last History
	err := owner.Scope(txn.WithContext(ctx)).Order("order_num DESC").First(&last).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 1, nil
	}
	if err != nil {
		return 0, fmt.Errorf("error finding last history order: %w", err)
	}
	return last.OrderNum + 1, nil
}

// GetOwnedHistory returns gorm.ErrRecordNotFound when the history does not
// exist or is controlled by someone else.
func GetOwnedHistory(ctx context.Context, txn *gorm.DB, historyId uint, owner Owner) (History, error) {
	var history History
	err := owner.Scope(txn.WithContext(ctx)).Where("histories.id = ?", historyId).First(&history).Error
	return history, err
}

func ListHistories(ctx context.Context, txn *gorm.DB, owner Owner) ([]History, error) {
	var histories []History
	err := owner.Scope(txn.WithContext(ctx)).Order("order_num DESC").Order("id DESC").Find(&histories).Error
	if err != nil {
		return nil, fmt.Errorf("error listing histories: %w", err)
	}
	return histories, nil
}

// GetOwnedChat looks up a chat entry through its history so that ownership is
// part of the query.
func GetOwnedChat(ctx context.Context, txn *gorm.DB, chatId uint, owner Owner) (ChatEntry, error) {
	var chat ChatEntry
	err := owner.Scope(txn.WithContext(ctx).Joins("JOIN histories ON histories.id = chat_entries.history_id")).
		Where("chat_entries.id = ?", chatId).
		First(&chat).Error
	return chat, err
}

// NextChatOrder is one past the highest order in the history, or 1 when empty.
func NextChatOrder(ctx context.Context, txn *gorm.DB, historyId uint) (int, error) {
	var last int
	err := txn.WithContext(ctx).
		Model(&ChatEntry{}).
		Where("history_id = ?", historyId).
		Select("COALESCE(MAX(order_num), 0)").
		Scan(&last).Error
	if err != nil {
		return 0, fmt.Errorf("error finding last chat order: %w", err)
	}
	return last + 1, nil
}

func SaveChat(ctx context.Context, txn *gorm.DB, historyId uint, chatType, content string, orderNum int, metadata any) (ChatEntry, error) {
	chat := ChatEntry{
		HistoryID: historyId,
		Type:      chatType,
		Content:   content,
		OrderNum:  orderNum,
		CreatedAt: time.Now().UTC(),
	}

	if metadata != nil {
		b, err := json.Marshal(metadata)
		if err != nil {
			return ChatEntry{}, fmt.Errorf("could not marshal metadata: %w", err)
		}
		chat.Metadata = datatypes.JSON(b)
	}

	if err := txn.WithContext(ctx).Create(&chat).Error; err != nil {
		slog.Error("error saving chat", "history_id", historyId, "type", chatType, "order_num", orderNum, "error", err)
		return ChatEntry{}, fmt.Errorf("error saving %s chat: %w", chatType, err)
	}
	return chat, nil
}

func ListChats(ctx context.Context, txn *gorm.DB, historyId uint) ([]ChatEntry, error) {
	var chats []ChatEntry
	if err := txn.WithContext(ctx).Where("history_id = ?", historyId).Order("order_num ASC").Find(&chats).Error; err != nil {
		return nil, fmt.Errorf("error listing chats: %w", err)
	}
	return chats, nil
}

// DeleteTurn removes the HUMAN entry at start together with everything that
// follows it up to, but excluding, the next HUMAN entry. With no later HUMAN
// entry the rest of the history is removed.
func DeleteTurn(ctx context.Context, txn *gorm.DB, historyId uint, start int) (int64, error) {
	var deleted int64
	err := txn.WithContext(ctx).Transaction(func(txn *gorm.DB) error {
		var next ChatEntry
		err := txn.Where("history_id = ? AND type = ? AND order_num > ?", historyId, ChatHuman, start).
			Order("order_num ASC").
			First(&next).Error

		query := txn.Where("history_id = ? AND order_num >= ?", historyId, start)
		switch {
		case err == nil:
			query = query.Where("order_num < ?", next.OrderNum)
		case errors.Is(err, gorm.ErrRecordNotFound):
		default:
			return fmt.Errorf("error finding next human chat: %w", err)
		}

		res := query.Delete(&ChatEntry{})
		if res.Error != nil {
			return fmt.Errorf("error deleting chats: %w", res.Error)
		}
		deleted = res.RowsAffected
		return nil
	})
	return deleted, err
}
