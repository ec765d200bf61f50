package ws

import (
	"errors"

	"github.com/mebelplace/mebelplace-backend/internal/apperr"
	"github.com/mebelplace/mebelplace-backend/internal/models"
	"github.com/mebelplace/mebelplace-backend/internal/realtime"
	"github.com/mebelplace/mebelplace-backend/internal/service"
)

const (
	MsgJoinChat    = "join_chat"
	MsgSend        = "send_message"
	MsgTypingStart = "typing_start"
	MsgTypingStop  = "typing_stop"
	MsgDelivered   = "message_delivered"
	MsgMarkRead    = "mark_read"
)

var (
	errFrameTooLarge = errors.New("frame too large")

	ErrMissingChatID    = apperr.Validation("missing_chat_id", "chatId is required")
	ErrMissingMessageID = apperr.Validation("missing_message_id", "messageId is required")
	ErrNotJoined        = apperr.Validation("not_joined", "Join the chat before typing")
)

// MessageJoinChat subscribes the connection to a chat it participates in.
type MessageJoinChat struct {
	ChatID uint `json:"chatId"`
}

func (msg *MessageJoinChat) GetType() string {
	return MsgJoinChat
}

func (msg *MessageJoinChat) Process(ctx *MessageContext) error {
	if msg.ChatID == 0 {
		return ErrMissingChatID
	}
	if err := ctx.Chats.EnsureParticipant(ctx.Ctx, msg.ChatID, ctx.Client.UserID); err != nil {
		return err
	}
	joined := ctx.Hub.Join(ctx.Client, msg.ChatID)
	if err := reply(ctx, realtime.EventJoinedChat, realtime.ChatMemberPayload{ChatID: msg.ChatID}); err != nil {
		return err
	}
	if joined {
		payload := realtime.ChatMemberPayload{ChatID: msg.ChatID, UserID: ctx.Client.UserID, UserName: ctx.Client.UserName}
		if _, err := ctx.Hub.EmitToChatExceptUser(msg.ChatID, ctx.Client.UserID, realtime.EventUserJoined, payload); err != nil {
			return err
		}
	}
	return nil
}

// MessageSend posts a message into a chat.
type MessageSend struct {
	ChatID   uint                   `json:"chatId"`
	Content  string                 `json:"content"`
	Type     string                 `json:"type"`
	ReplyTo  *uint                  `json:"replyTo"`
	Metadata models.MessageMetadata `json:"metadata"`
}

func (msg *MessageSend) GetType() string {
	return MsgSend
}

func (msg *MessageSend) Process(ctx *MessageContext) error {
	if msg.ChatID == 0 {
		return ErrMissingChatID
	}
	_, err := ctx.Messages.Send(ctx.Ctx, ctx.Client.UserID, service.SendMessageInput{
		ChatID:   msg.ChatID,
		Content:  msg.Content,
		Type:     msg.Type,
		ReplyTo:  msg.ReplyTo,
		Metadata: msg.Metadata,
	})
	return err
}

// MessageTypingStart marks the user as typing in a joined chat.
type MessageTypingStart struct {
	ChatID uint `json:"chatId"`
}

func (msg *MessageTypingStart) GetType() string {
	return MsgTypingStart
}

func (msg *MessageTypingStart) Process(ctx *MessageContext) error {
	if msg.ChatID == 0 {
		return ErrMissingChatID
	}
	if !ctx.Hub.IsJoined(ctx.Client, msg.ChatID) {
		return ErrNotJoined
	}
	ctx.Hub.StartTyping(ctx.Client, msg.ChatID)
	return nil
}

type MessageTypingStop struct {
	ChatID uint `json:"chatId"`
}

func (msg *MessageTypingStop) GetType() string {
	return MsgTypingStop
}

func (msg *MessageTypingStop) Process(ctx *MessageContext) error {
	if msg.ChatID == 0 {
		return ErrMissingChatID
	}
	ctx.Hub.StopTyping(ctx.Client, msg.ChatID)
	return nil
}

// MessageDelivered is a recipient connection acknowledging a message.
type MessageDelivered struct {
	MessageID uint `json:"messageId"`
}

func (msg *MessageDelivered) GetType() string {
	return MsgDelivered
}

func (msg *MessageDelivered) Process(ctx *MessageContext) error {
	if msg.MessageID == 0 {
		return ErrMissingMessageID
	}
	return ctx.Messages.MarkDelivered(ctx.Ctx, ctx.Client.UserID, msg.MessageID)
}

// MessageMarkRead advances the read mark for the whole chat.
type MessageMarkRead struct {
	ChatID uint `json:"chatId"`
}

func (msg *MessageMarkRead) GetType() string {
	return MsgMarkRead
}

func (msg *MessageMarkRead) Process(ctx *MessageContext) error {
	if msg.ChatID == 0 {
		return ErrMissingChatID
	}
	_, err := ctx.Messages.MarkRead(ctx.Ctx, msg.ChatID, ctx.Client.UserID)
	return err
}
