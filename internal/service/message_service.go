package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/mebelplace/mebelplace-backend/internal/apperr"
	"github.com/mebelplace/mebelplace-backend/internal/cache"
	"github.com/mebelplace/mebelplace-backend/internal/config"
	"github.com/mebelplace/mebelplace-backend/internal/models"
	"github.com/mebelplace/mebelplace-backend/internal/realtime"
	"github.com/mebelplace/mebelplace-backend/internal/repository"
	"github.com/mebelplace/mebelplace-backend/internal/validation"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const DefaultHistoryLimit = 50

var ErrInvalidReply = apperr.Validation("invalid_reply_to", "Reply target is not a message in this chat")

type MessageServiceConfig struct {
	DeliveryMode     string
	DeliveryDelay    time.Duration
	MaxMessageLength int
}

// MessageService validates, persists and fans out chat messages and moves
// them through sent -> delivered -> read.
type MessageService struct {
	messageRepo repository.MessageRepositoryInterface
	chatRepo    repository.ChatRepositoryInterface
	cache       *cache.MessageCache
	hub         Broadcaster
	cfg         MessageServiceConfig

	locks *keyedMutex

	stop     chan struct{}
	stopOnce sync.Once
	timers   sync.WaitGroup
}

func NewMessageService(
	messageRepo repository.MessageRepositoryInterface,
	chatRepo repository.ChatRepositoryInterface,
	messageCache *cache.MessageCache,
	hub Broadcaster,
	cfg MessageServiceConfig,
) *MessageService {
	if cfg.DeliveryMode == "" {
		cfg.DeliveryMode = config.DeliveryModeAck
	}
	if cfg.DeliveryDelay <= 0 {
		cfg.DeliveryDelay = time.Second
	}
	if cfg.MaxMessageLength <= 0 {
		cfg.MaxMessageLength = validation.DefaultMaxMessageLength
	}
	return &MessageService{
		messageRepo: messageRepo,
		chatRepo:    chatRepo,
		cache:       messageCache,
		hub:         hub,
		cfg:         cfg,
		locks:       newKeyedMutex(),
		stop:        make(chan struct{}),
	}
}

type SendMessageInput struct {
	ChatID   uint                   `json:"chatId"`
	Content  string                 `json:"content"`
	Type     string                 `json:"type"`
	ReplyTo  *uint                  `json:"replyTo"`
	Metadata models.MessageMetadata `json:"metadata"`

	// Set by the attachment flow only.
	FilePath string `json:"-"`
	FileName string `json:"-"`
	FileSize int64  `json:"-"`
}

// Send persists a message from senderID and broadcasts new_message to the
// chat room. Insert and broadcast happen under the chat's lock, so every
// room member observes messages in insert order.
func (s *MessageService) Send(ctx context.Context, senderID uint, in SendMessageInput) (*models.MessageResponse, error) {
	msgType, err := validation.MessageType(in.Type)
	if err != nil {
		return nil, err
	}
	content, err := validation.MessageContent(in.Content, s.cfg.MaxMessageLength)
	if err != nil {
		return nil, err
	}
	if err := requireParticipant(ctx, s.chatRepo, in.ChatID, senderID); err != nil {
		return nil, err
	}
	if in.ReplyTo != nil {
		parent, err := s.messageRepo.FindByID(ctx, *in.ReplyTo)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("find reply target: %w", err)
		}
		if parent == nil || parent.ChatID != in.ChatID {
			return nil, ErrInvalidReply
		}
	}

	message := &models.Message{
		ChatID:    in.ChatID,
		SenderID:  senderID,
		Content:   content,
		Type:      msgType,
		ReplyToID: in.ReplyTo,
		FilePath:  in.FilePath,
		FileName:  in.FileName,
		FileSize:  in.FileSize,
		Metadata:  datatypes.NewJSONType(in.Metadata),
		Status:    models.StatusSent,
	}

	unlock := s.locks.Lock(in.ChatID)
	if err := s.messageRepo.Create(ctx, message); err != nil {
		unlock()
		return nil, fmt.Errorf("create message: %w", err)
	}
	// Reload for the sender profile.
	if full, err := s.messageRepo.FindByID(ctx, message.ID); err == nil {
		message = full
	} else {
		log.Printf("Failed to reload message %d: %v", message.ID, err)
	}
	resp := message.ToResponse()
	if _, err := s.hub.EmitToChat(in.ChatID, realtime.EventNewMessage, realtime.NewMessagePayload{ChatID: in.ChatID, Message: resp}); err != nil {
		log.Printf("Failed to broadcast message %d to chat %d: %v", message.ID, in.ChatID, err)
	}
	unlock()

	s.afterWrite(ctx, in.ChatID)
	if s.cfg.DeliveryMode == config.DeliveryModeTimer {
		s.scheduleDelivery(in.ChatID, message.ID)
	}

	return &resp, nil
}

// afterWrite bumps the chat's activity time and drops caches that now lie.
func (s *MessageService) afterWrite(ctx context.Context, chatID uint) {
	if err := s.chatRepo.Touch(ctx, chatID); err != nil {
		log.Printf("Failed to touch chat %d: %v", chatID, err)
	}
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateHistory(ctx, chatID); err != nil {
		log.Printf("Failed to invalidate history for chat %d: %v", chatID, err)
	}
	ids, err := s.chatRepo.ParticipantIDs(ctx, chatID)
	if err != nil {
		log.Printf("Failed to list participants of chat %d: %v", chatID, err)
		return
	}
	_ = s.cache.InvalidateUnreadCounts(ctx, chatID, ids...)
	_ = s.cache.InvalidateChatLists(ctx, ids...)
}

// scheduleDelivery is the fixed-delay delivery mode: the message is marked
// delivered after DeliveryDelay regardless of recipient acknowledgment.
func (s *MessageService) scheduleDelivery(chatID, messageID uint) {
	s.timers.Add(1)
	go func() {
		defer s.timers.Done()
		t := time.NewTimer(s.cfg.DeliveryDelay)
		defer t.Stop()
		select {
		case <-t.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if _, err := s.advanceStatus(ctx, chatID, messageID, models.StatusDelivered); err != nil {
				log.Printf("Failed to mark message %d delivered: %v", messageID, err)
			}
		case <-s.stop:
		}
	}()
}

// advanceStatus moves a message forward and broadcasts message_status when
// it actually changed.
func (s *MessageService) advanceStatus(ctx context.Context, chatID, messageID uint, status models.MessageStatus) (bool, error) {
	unlock := s.locks.Lock(chatID)
	defer unlock()

	changed, err := s.messageRepo.AdvanceStatus(ctx, messageID, status)
	if err != nil || !changed {
		return false, err
	}
	s.emitStatus(chatID, messageID, status)
	_ = s.cache.InvalidateHistory(ctx, chatID)
	return true, nil
}

func (s *MessageService) emitStatus(chatID, messageID uint, status models.MessageStatus) {
	payload := realtime.MessageStatusPayload{MessageID: messageID, ChatID: chatID, Status: status}
	if _, err := s.hub.EmitToChat(chatID, realtime.EventMessageStatus, payload); err != nil {
		log.Printf("Failed to broadcast status of message %d: %v", messageID, err)
	}
}

// MarkDelivered records a recipient connection's acknowledgment. Acks from
// the sender are ignored.
func (s *MessageService) MarkDelivered(ctx context.Context, userID, messageID uint) error {
	message, err := s.messageRepo.FindByID(ctx, messageID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.ErrMessageNotFound
		}
		return fmt.Errorf("find message: %w", err)
	}
	if message.SenderID == userID {
		return nil
	}
	if err := requireParticipant(ctx, s.chatRepo, message.ChatID, userID); err != nil {
		return err
	}
	_, err = s.advanceStatus(ctx, message.ChatID, messageID, models.StatusDelivered)
	return err
}

type ReadReceipt struct {
	ChatID     uint      `json:"chatId"`
	LastReadAt time.Time `json:"lastReadAt"`
	MessageIDs []uint    `json:"messageIds"`
}

// MarkRead advances userID's read mark in chatID to now and moves every
// earlier message from other senders to read.
func (s *MessageService) MarkRead(ctx context.Context, chatID, userID uint) (*ReadReceipt, error) {
	if err := requireParticipant(ctx, s.chatRepo, chatID, userID); err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(chatID)
	now := time.Now().UTC()
	if err := s.chatRepo.AdvanceLastRead(ctx, chatID, userID, now); err != nil {
		unlock()
		return nil, fmt.Errorf("advance last read: %w", err)
	}
	ids, err := s.messageRepo.MarkReadUpTo(ctx, chatID, userID, now)
	if err != nil {
		unlock()
		return nil, fmt.Errorf("mark read: %w", err)
	}
	for _, id := range ids {
		s.emitStatus(chatID, id, models.StatusRead)
	}
	unlock()

	_ = s.cache.InvalidateUnreadCounts(ctx, chatID, userID)
	_ = s.cache.InvalidateChatLists(ctx, userID)
	if len(ids) > 0 {
		_ = s.cache.InvalidateHistory(ctx, chatID)
	}

	if ids == nil {
		ids = []uint{}
	}
	return &ReadReceipt{ChatID: chatID, LastReadAt: now, MessageIDs: ids}, nil
}

// UnreadCount is derived from last_read_at only.
func (s *MessageService) UnreadCount(ctx context.Context, chatID, userID uint) (int64, error) {
	if err := requireParticipant(ctx, s.chatRepo, chatID, userID); err != nil {
		return 0, err
	}
	if n, ok := s.cache.GetUnreadCount(ctx, chatID, userID); ok {
		return n, nil
	}
	n, err := s.chatRepo.UnreadCount(ctx, chatID, userID)
	if err != nil {
		return 0, fmt.Errorf("unread count: %w", err)
	}
	_ = s.cache.SetUnreadCount(ctx, chatID, userID, n)
	return n, nil
}

type HistoryPage struct {
	Messages   []models.MessageResponse `json:"messages"`
	Count      int                      `json:"count"`
	NextCursor *uint                    `json:"next_cursor,omitempty"`
}

// History returns messages older than cursor, newest first. The default
// first page is served from cache when possible.
func (s *MessageService) History(ctx context.Context, chatID, userID, cursor uint, limit int) (*HistoryPage, error) {
	if err := requireParticipant(ctx, s.chatRepo, chatID, userID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 100 {
		limit = DefaultHistoryLimit
	}
	firstPage := cursor == 0 && limit == DefaultHistoryLimit

	var responses []models.MessageResponse
	cached := false
	if firstPage {
		responses, cached = s.cache.GetHistory(ctx, chatID)
	}
	if !cached {
		messages, err := s.messageRepo.ListByChat(ctx, chatID, cursor, limit)
		if err != nil {
			return nil, fmt.Errorf("list messages: %w", err)
		}
		responses = make([]models.MessageResponse, len(messages))
		for i := range messages {
			responses[i] = messages[i].ToResponse()
		}
		if firstPage {
			_ = s.cache.SetHistory(ctx, chatID, responses)
		}
	}

	page := &HistoryPage{Messages: responses, Count: len(responses)}
	if len(responses) == limit {
		// Oldest message of this page.
		next := responses[len(responses)-1].ID
		page.NextCursor = &next
	}
	return page, nil
}

// Close stops pending delivery timers and waits for in-flight ones.
func (s *MessageService) Close() {
	s.stopOnce.Do(func() { close(s.stop) })
	s.timers.Wait()
}
