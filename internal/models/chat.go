package models

import (
	"fmt"
	"time"

	"gorm.io/datatypes"
)

type ChatType string

const (
	ChatPrivate ChatType = "private"
	ChatGroup   ChatType = "group"
	ChatChannel ChatType = "channel"
	// ChatOrder is a private chat opened by accepting an order response.
	ChatOrder ChatType = "order"
)

type ParticipantRole string

const (
	ParticipantAdmin     ParticipantRole = "admin"
	ParticipantModerator ParticipantRole = "moderator"
	ParticipantMember    ParticipantRole = "member"
)

type Chat struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Type        ChatType `gorm:"type:varchar(20);not null;index" json:"type"`
	Name        string   `gorm:"size:255" json:"name,omitempty"`
	Description string   `gorm:"type:text" json:"description,omitempty"`
	CreatorID   uint     `gorm:"not null" json:"creator_id"`

	// PairKey is set only for two-party chats and is unique, so a second
	// insert for the same pair loses instead of duplicating the chat.
	PairKey *string `gorm:"size:64;uniqueIndex" json:"-"`

	Settings datatypes.JSONType[ChatSettings] `json:"settings"`

	Participants []ChatParticipant `gorm:"foreignKey:ChatID" json:"participants,omitempty"`
}

// IsPrivate reports whether the chat is a two-party conversation.
func (c *Chat) IsPrivate() bool {
	return c.Type == ChatPrivate || c.Type == ChatOrder
}

// PairKeyFor returns the canonical key for the unordered pair {a, b}.
func PairKeyFor(a, b uint) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("%d:%d", a, b)
}

type ChatParticipant struct {
	ChatID     uint            `gorm:"primaryKey" json:"chat_id"`
	UserID     uint            `gorm:"primaryKey;index" json:"user_id"`
	Role       ParticipantRole `gorm:"type:varchar(20);not null;default:'member'" json:"role"`
	JoinedAt   time.Time       `gorm:"autoCreateTime" json:"joined_at"`
	LastReadAt time.Time       `gorm:"not null" json:"last_read_at"`

	User User `gorm:"foreignKey:UserID" json:"user"`
}

// ChatSummary is one row of a user's chat list.
type ChatSummary struct {
	Chat        Chat             `json:"chat"`
	Role        ParticipantRole  `json:"role"`
	LastReadAt  time.Time        `json:"last_read_at"`
	LastMessage *MessageResponse `json:"last_message,omitempty"`
	UnreadCount int64            `json:"unread_count"`
}
