package database

import (
	"time"

	"gorm.io/datatypes"
)

const (
	ChatHuman string = "HUMAN"
	ChatAI    string = "AI"
	ChatTools string = "TOOLS"
)

type User struct {
	ID           uint   `gorm:"primaryKey"`
	Username     string `gorm:"size:150;uniqueIndex;not null"`
	CreationTime time.Time
}

// GuestSession is the server side record behind an anonymous visitor's
// session cookie.
type GuestSession struct {
	SessionKey   string `gorm:"primaryKey;size:64"`
	CreationTime time.Time
	ExpiryTime   time.Time `gorm:"index"`
}

// History is a single conversation thread. Exactly one of UserID and
// SessionID identifies who controls it; SessionID is only consulted when
// UserID is null.
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
	ID        uint           `gorm:"primaryKey"`
	HistoryID uint           `gorm:"not null;uniqueIndex:idx_chat_history_order"`
	Type      string         `gorm:"size:10;not null"`
	Content   string         `gorm:"type:text"`
	OrderNum  int            `gorm:"not null;uniqueIndex:idx_chat_history_order"`
	Metadata  datatypes.JSON `gorm:"type:jsonb"` // {"tool_call_id": "…", "tool_name": "…"}
	CreatedAt time.Time
}

// ToolMetadata is stored on TOOLS entries so the tool exchange can be
// replayed to the agent on later turns.
type ToolMetadata struct {
	ToolCallID string `json:"tool_call_id"`
	ToolName   string `json:"tool_name"`
	Arguments  string `json:"arguments,omitempty"`
}
