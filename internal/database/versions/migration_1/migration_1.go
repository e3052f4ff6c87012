package migration_1

import (
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ChatEntry struct {
	ID        uint           `gorm:"primaryKey"`
	HistoryID uint           `gorm:"not null;uniqueIndex:idx_chat_history_order"`
	Type      string         `gorm:"size:10;not null"`
	Content   string         `gorm:"type:text"`
	OrderNum  int            `gorm:"not null;uniqueIndex:idx_chat_history_order"`
	Metadata  datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt time.Time
}

// Migration adds the tool metadata column and makes (history_id, order_num)
// unique. Rows written before this could share an order number, so each
// history is renumbered first, keeping the existing relative order.
func Migration(db *gorm.DB) error {
	if err := db.Migrator().AddColumn(&ChatEntry{}, "Metadata"); err != nil {
		return fmt.Errorf("error adding Metadata column: %w", err)
	}

	var historyIds []uint
	if err := db.Model(&ChatEntry{}).Distinct("history_id").Pluck("history_id", &historyIds).Error; err != nil {
		return fmt.Errorf("error listing chat histories: %w", err)
	}

	for _, historyId := range historyIds {
		var chats []ChatEntry
		if err := db.Where("history_id = ?", historyId).Order("order_num ASC, id ASC").Find(&chats).Error; err != nil {
			return fmt.Errorf("error loading chats for history %d: %w", historyId, err)
		}

		last := 0
		for _, chat := range chats {
			order := max(chat.OrderNum, last+1)
			last = order
			if order == chat.OrderNum {
				continue
			}
			if err := db.Model(&ChatEntry{}).Where("id = ?", chat.ID).Update("order_num", order).Error; err != nil {
				return fmt.Errorf("error renumbering chat %d: %w", chat.ID, err)
			}
		}
	}

	if err := db.Migrator().CreateIndex(&ChatEntry{}, "idx_chat_history_order"); err != nil {
		return fmt.Errorf("error creating chat order index: %w", err)
	}

	return nil
}

func Rollback(db *gorm.DB) error {
	if err := db.Migrator().DropIndex(&ChatEntry{}, "idx_chat_history_order"); err != nil {
		return fmt.Errorf("error dropping chat order index: %w", err)
	}

	if err := db.Migrator().DropColumn(&ChatEntry{}, "Metadata"); err != nil {
		return fmt.Errorf("error dropping Metadata column: %w", err)
	}

	return nil
}
