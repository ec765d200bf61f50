package models

import "gorm.io/datatypes"

// ChatSettings is the chat-level capability bag. Known keys are typed fields;
// anything else rides in Extra so older clients keep round-tripping it.
type ChatSettings struct {
	OrderID    *uint             `json:"order_id,omitempty"`
	OrderTitle string            `json:"order_title,omitempty"`
	Muted      bool              `json:"muted,omitempty"`
	Extra      datatypes.JSONMap `json:"extra,omitempty"`
}

// MessageMetadata is the message-level capability bag.
type MessageMetadata struct {
	Caption         string            `json:"caption,omitempty"`
	DurationSeconds int               `json:"duration_seconds,omitempty"`
	MimeType        string            `json:"mime_type,omitempty"`
	Width           int               `json:"width,omitempty"`
	Height          int               `json:"height,omitempty"`
	Extra           datatypes.JSONMap `json:"extra,omitempty"`
}

func (m MessageMetadata) IsZero() bool {
	return m.Caption == "" && m.DurationSeconds == 0 && m.MimeType == "" && m.Width == 0 && m.Height == 0 && len(m.Extra) == 0
}
