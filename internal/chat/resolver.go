package chat

import (
	"context"
	"errors"
	"fmt"

	"pai-backend/internal/database"

	"gorm.io/gorm"
)

// Policy decides whether a guest gets their latest history back or a new one.
type Policy int

const (
	// FreshForGuests reuses a user's latest history but opens a new one on
	// every guest visit, so guests start from an empty conversation.
	FreshForGuests Policy = iota

	// ReuseLatest reuses the latest history for users and guests alike.
	ReuseLatest
)

func firstDescription(owner database.Owner) string {
	if owner.IsUser() {
		return "New conversation"
	}
	return "Guest conversation"
}

func numberedDescription(owner database.Owner, order int) string {
	return fmt.Sprintf("%s %d", firstDescription(owner), order)
}

// ResolveHistory returns the history the owner should work in under the
// given policy, creating one with order 1 when needed.
func (s *Service) ResolveHistory(ctx context.Context, owner database.Owner, policy Policy) (database.History, error) {
	if !owner.IsUser() && owner.SessionKey == "" {
		return database.History{}, ErrSessionRequired
	}

	if owner.IsUser() || policy == ReuseLatest {
		history, err := database.LatestHistory(ctx, s.db, owner)
		if err == nil {
			return history, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return database.History{}, fmt.Errorf("error finding latest history: %w", err)
		}
	}

	return database.CreateHistory(ctx, s.db, owner, 1, firstDescription(owner))
}

// SelectHistory returns a specific history if the owner controls it.
func (s *Service) SelectHistory(ctx context.Context, owner database.Owner, historyId uint) (database.History, error) {
	if !owner.IsUser() && owner.SessionKey == "" {
		return database.History{}, ErrSessionRequired
	}

	history, err := database.GetOwnedHistory(ctx, s.db, historyId, owner)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return database.History{}, ErrHistoryNotFound
	}
	if err != nil {
		return database.History{}, fmt.Errorf("error loading history %d: %w", historyId, err)
	}
	return history, nil
}

// NewHistory opens a history numbered one past the owner's last one.
func (s *Service) NewHistory(ctx context.Context, owner database.Owner) (database.History, error) {
	if !owner.IsUser() && owner.SessionKey == "" {
		return database.History{}, ErrSessionRequired
	}

	var history database.History
	err := s.db.WithContext(ctx).Transaction(func(txn *gorm.DB) error {
		order, err := database.NextHistoryOrder(ctx, txn, owner)
		if err != nil {
			return err
		}
		history, err = database.CreateHistory(ctx, txn, owner, order, numberedDescription(owner, order))
		return err
	})
	return history, err
}

func (s *Service) ListHistories(ctx context.Context, owner database.Owner) ([]database.History, error) {
	if !owner.IsUser() && owner.SessionKey == "" {
		return []database.History{}, nil
	}
	return database.ListHistories(ctx, s.db, owner)
}

func (s *Service) ListChats(ctx context.Context, historyId uint) ([]database.ChatEntry, error) {
	return database.ListChats(ctx, s.db, historyId)
}
