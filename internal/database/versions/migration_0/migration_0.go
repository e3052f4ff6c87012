package migration_0

import (
	"time"

	"gorm.io/gorm"
)

type User struct {
	ID           uint   `gorm:"primaryKey"`
	Username     string `gorm:"size:150;uniqueIndex;not null"`
	CreationTime time.Time
}

type GuestSession struct {
	SessionKey   string `gorm:"primaryKey;size:64"`
	CreationTime time.Time
	ExpiryTime   time.Time `gorm:"index"`
}

type History struct {
	ID          uint    `gorm:"primaryKey"`
	UserID      *uint   `gorm:"index"`
	User        *User   `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
	SessionID   *string `gorm:"size:64;index"`
	OrderNum    int     `gorm:"not null"`
	Description string  `gorm:"size:200"`
	CreatedAt   time.Time

	Chats []ChatEntry `gorm:"foreignKey:HistoryID;constraint:OnDelete:CASCADE"`
}

type ChatEntry struct {
	ID        uint   `gorm:"primaryKey"`
	HistoryID uint   `gorm:"not null;index"`
	Type      string `gorm:"size:10;not null"`
	Content   string `gorm:"type:text"`
	OrderNum  int    `gorm:"not null"`
	CreatedAt time.Time
}

func Migration(db *gorm.DB) error {
	return db.AutoMigrate(&User{}, &GuestSession{}, &History{}, &ChatEntry{})
}
