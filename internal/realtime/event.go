package realtime

import (
	"encoding/json"
	"time"

	"github.com/mebelplace/mebelplace-backend/internal/models"
)

// Outbound event names.
const (
	EventNewMessage        = "new_message"
	EventMessageStatus     = "message_status"
	EventTypingStart       = "typing_start"
	EventTypingStop        = "typing_stop"
	EventUserStatusChanged = "user_status_changed"
	EventJoinedChat        = "joined_chat"
	EventUserJoined        = "user_joined"
	EventUserLeft          = "user_left"
	EventResponseAccepted  = "response_accepted"
	EventPong              = "pong"
	EventError             = "error"
)

// Envelope is the wire frame for every event in both directions.
type Envelope struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// Encode serializes one event frame.
func Encode(eventType string, payload interface{}) ([]byte, error) {
	return json.Marshal(Envelope{Type: eventType, Payload: payload})
}

type NewMessagePayload struct {
	ChatID  uint                   `json:"chatId"`
	Message models.MessageResponse `json:"message"`
}

type MessageStatusPayload struct {
	MessageID uint                 `json:"messageId"`
	ChatID    uint                 `json:"chatId"`
	Status    models.MessageStatus `json:"status"`
}

type TypingPayload struct {
	ChatID   uint   `json:"chatId"`
	UserID   uint   `json:"userId"`
	UserName string `json:"userName"`
}

type UserStatusPayload struct {
	UserID   uint       `json:"userId"`
	IsOnline bool       `json:"isOnline"`
	LastSeen *time.Time `json:"lastSeen,omitempty"`
}

type ChatMemberPayload struct {
	ChatID   uint   `json:"chatId"`
	UserID   uint   `json:"userId,omitempty"`
	UserName string `json:"userName,omitempty"`
}

type ResponseAcceptedPayload struct {
	OrderID    uint   `json:"orderId"`
	ResponseID uint   `json:"responseId"`
	ChatID     uint   `json:"chatId"`
	ClientID   uint   `json:"clientId"`
	OrderTitle string `json:"orderTitle"`
}

type ErrorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}
