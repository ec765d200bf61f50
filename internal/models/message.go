package models

import (
	"time"

	"gorm.io/datatypes"
)

type MessageType string

const (
	TextMessage    MessageType = "text"
	ImageMessage   MessageType = "image"
	VideoMessage   MessageType = "video"
	AudioMessage   MessageType = "audio"
	FileMessage    MessageType = "file"
	StickerMessage MessageType = "sticker"
	VoiceMessage   MessageType = "voice"
)

func (t MessageType) Valid() bool {
	switch t {
	case TextMessage, ImageMessage, VideoMessage, AudioMessage, FileMessage, StickerMessage, VoiceMessage:
		return true
	}
	return false
}

// MessageStatus only moves forward: sent -> delivered -> read.
type MessageStatus string

const (
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
)

func (s MessageStatus) rank() int {
	switch s {
	case StatusSent:
		return 1
	case StatusDelivered:
		return 2
	case StatusRead:
		return 3
	}
	return 0
}

func (s MessageStatus) Valid() bool {
	return s.rank() > 0
}

// CanAdvanceTo reports whether next is strictly later in the lifecycle.
func (s MessageStatus) CanAdvanceTo(next MessageStatus) bool {
	return next.rank() > s.rank()
}

// StatusesBefore lists every status that may advance to s.
func StatusesBefore(s MessageStatus) []MessageStatus {
	var out []MessageStatus
	for _, st := range []MessageStatus{StatusSent, StatusDelivered, StatusRead} {
		if st.CanAdvanceTo(s) {
			out = append(out, st)
		}
	}
	return out
}

type Message struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `gorm:"index:idx_messages_chat_created,priority:2" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	ChatID   uint `gorm:"not null;index:idx_messages_chat_created,priority:1" json:"chat_id"`
	SenderID uint `gorm:"not null;index" json:"sender_id"`
	Sender   User `gorm:"foreignKey:SenderID" json:"sender"`

	Content   string      `gorm:"type:text;not null" json:"content"`
	Type      MessageType `gorm:"type:varchar(20);not null;default:'text'" json:"type"`
	ReplyToID *uint       `gorm:"index" json:"reply_to"`

	FilePath string `gorm:"size:500" json:"file_path,omitempty"`
	FileName string `gorm:"size:255" json:"file_name,omitempty"`
	FileSize int64  `json:"file_size,omitempty"`

	Metadata datatypes.JSONType[MessageMetadata] `json:"metadata"`

	Status MessageStatus `gorm:"type:varchar(20);not null;default:'sent';index" json:"status"`
}

type MessageResponse struct {
	ID        uint            `json:"id"`
	ChatID    uint            `json:"chat_id"`
	SenderID  uint            `json:"sender_id"`
	Sender    UserResponse    `json:"sender"`
	Content   string          `json:"content"`
	Type      MessageType     `json:"type"`
	ReplyToID *uint           `json:"reply_to"`
	FilePath  string          `json:"file_path,omitempty"`
	FileName  string          `json:"file_name,omitempty"`
	FileSize  int64           `json:"file_size,omitempty"`
	Metadata  MessageMetadata `json:"metadata"`
	Status    MessageStatus   `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
}

func (m *Message) ToResponse() MessageResponse {
	return MessageResponse{
		ID:        m.ID,
		ChatID:    m.ChatID,
		SenderID:  m.SenderID,
		Sender:    m.Sender.ToResponse(),
		Content:   m.Content,
		Type:      m.Type,
		ReplyToID: m.ReplyToID,
		FilePath:  m.FilePath,
		FileName:  m.FileName,
		FileSize:  m.FileSize,
		Metadata:  m.Metadata.Data(),
		Status:    m.Status,
		CreatedAt: m.CreatedAt,
	}
}
