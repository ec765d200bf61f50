package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"reflect"

	"github.com/mebelplace/mebelplace-backend/internal/apperr"
	"github.com/mebelplace/mebelplace-backend/internal/realtime"
	"github.com/mebelplace/mebelplace-backend/internal/service"
)

// MessageContext provides all dependencies needed for message processing
type MessageContext struct {
	Ctx      context.Context
	Client   *realtime.Client
	Hub      *realtime.Hub
	Messages *service.MessageService
	Chats    *service.ChatService
}

// Message interface for all inbound WebSocket message types
type Message interface {
	GetType() string
	Process(ctx *MessageContext) error
}

// SerializedMessage is the wire format wrapper
type SerializedMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func FromJson(jsonBytes []byte, msg Message) error {
	if len(jsonBytes) == 0 || string(jsonBytes) == "null" {
		return nil
	}
	return json.Unmarshal(jsonBytes, msg)
}

func CreateMessage(msgType string, typeRegistry map[string]reflect.Type) (Message, error) {
	msgTypeReflect, ok := typeRegistry[msgType]
	if !ok {
		return nil, fmt.Errorf("unknown message type: %s", msgType)
	}

	instance := reflect.New(msgTypeReflect).Interface()
	return instance.(Message), nil
}

// SendError reports a failed operation to the originating connection only.
// Internal failures are logged and surfaced with a generic message.
func SendError(client *realtime.Client, err error) {
	payload := realtime.ErrorPayload{Message: "Failed to process message", Code: "processing_failed"}
	if appErr, ok := apperr.As(err); ok && appErr.Kind != apperr.KindInternal {
		payload.Message = appErr.Message
		payload.Code = appErr.Code
		if payload.Code == "" {
			payload.Code = appErr.Kind.String()
		}
	} else {
		log.Printf("ws error for user %d (conn %s): %v", client.UserID, client.ID, err)
	}
	SendErrorCode(client, payload.Code, payload.Message)
}

func SendErrorCode(client *realtime.Client, code, message string) {
	frame, err := realtime.Encode(realtime.EventError, realtime.ErrorPayload{Message: message, Code: code})
	if err != nil {
		return
	}
	client.Enqueue(frame)
}

// reply sends one event to the originating connection.
func reply(ctx *MessageContext, eventType string, payload interface{}) error {
	frame, err := realtime.Encode(eventType, payload)
	if err != nil {
		return err
	}
	ctx.Client.Enqueue(frame)
	return nil
}
