package models

import "time"

// PendingEvent is an outbound event queued for a user who had no live
// connection when it was emitted.
type PendingEvent struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	UserID    uint   `gorm:"not null;index" json:"user_id"`
	EventType string `gorm:"type:varchar(50);not null" json:"event_type"`

	// Serialized event envelope, sent as-is on flush.
	Payload string `gorm:"type:text;not null" json:"payload"`

	Attempts    int        `gorm:"default:0" json:"attempts"`
	LastAttempt *time.Time `json:"last_attempt"`
}
