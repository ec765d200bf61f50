package service

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/mebelplace/mebelplace-backend/internal/apperr"
	"github.com/mebelplace/mebelplace-backend/internal/cache"
	"github.com/mebelplace/mebelplace-backend/internal/models"
	"github.com/mebelplace/mebelplace-backend/internal/realtime"
	"github.com/mebelplace/mebelplace-backend/internal/repository"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
)

var (
	ErrSelfChat     = apperr.Validation("self_chat", "Cannot open a chat with yourself")
	ErrUserNotFound = apperr.NotFound("user_not_found", "User not found")
)

const defaultChatListLimit = 20

type ChatService struct {
	chatRepo repository.ChatRepositoryInterface
	userRepo repository.UserRepositoryInterface
	cache    *cache.MessageCache
	hub      Broadcaster

	// Collapses concurrent opens of the same pair inside this process; the
	// pair_key index handles the cross-process case.
	open singleflight.Group
}

func NewChatService(chatRepo repository.ChatRepositoryInterface, userRepo repository.UserRepositoryInterface, messageCache *cache.MessageCache, hub Broadcaster) *ChatService {
	return &ChatService{
		chatRepo: chatRepo,
		userRepo: userRepo,
		cache:    messageCache,
		hub:      hub,
	}
}

// List returns userID's chats, most recent activity first.
func (s *ChatService) List(ctx context.Context, userID uint, limit, offset int) ([]models.ChatSummary, error) {
	if limit <= 0 {
		limit = defaultChatListLimit
	}
	firstPage := offset == 0 && limit == defaultChatListLimit
	if firstPage {
		if list, ok := s.cache.GetChatList(ctx, userID); ok {
			return list, nil
		}
	}

	list, err := s.chatRepo.ListForUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	if firstPage {
		if err := s.cache.SetChatList(ctx, userID, list); err != nil {
			log.Printf("Failed to cache chat list for user %d: %v", userID, err)
		}
	}
	return list, nil
}

// EnsureParticipant is the membership gate used before joining a room.
func (s *ChatService) EnsureParticipant(ctx context.Context, chatID, userID uint) error {
	return requireParticipant(ctx, s.chatRepo, chatID, userID)
}

func (s *ChatService) Get(ctx context.Context, chatID, userID uint) (*models.Chat, error) {
	if err := requireParticipant(ctx, s.chatRepo, chatID, userID); err != nil {
		return nil, err
	}
	chat, err := s.chatRepo.FindByID(ctx, chatID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.ErrChatNotFound
		}
		return nil, fmt.Errorf("find chat: %w", err)
	}
	return chat, nil
}

type OpenChatResult struct {
	Chat    *models.Chat
	Created bool
}

// OpenPrivateChat returns the private chat between userID and otherID,
// creating it on first use.
func (s *ChatService) OpenPrivateChat(ctx context.Context, userID, otherID uint) (*OpenChatResult, error) {
	if userID == otherID {
		return nil, ErrSelfChat
	}
	if _, err := s.userRepo.FindByID(ctx, otherID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}

	v, err, _ := s.open.Do(models.PairKeyFor(userID, otherID), func() (interface{}, error) {
		template := &models.Chat{Type: models.ChatPrivate, CreatorID: userID}
		chat, created, err := s.chatRepo.FindOrCreatePrivateChat(ctx, template, userID, otherID)
		if err != nil {
			return nil, err
		}
		return &OpenChatResult{Chat: chat, Created: created}, nil
	})
	if err != nil {
		return nil, fmt.Errorf("open private chat: %w", err)
	}
	res := v.(*OpenChatResult)
	if res.Created {
		_ = s.cache.InvalidateChatLists(ctx, userID, otherID)
	}
	// Shared results must not report creation to both callers.
	return &OpenChatResult{Chat: res.Chat, Created: res.Created && res.Chat.CreatorID == userID}, nil
}

// Leave drops userID's membership, removes their connections from the room
// and tells the remaining members.
func (s *ChatService) Leave(ctx context.Context, chatID, userID uint, userName string) error {
	removed, err := s.chatRepo.RemoveParticipant(ctx, chatID, userID)
	if err != nil {
		return fmt.Errorf("remove participant: %w", err)
	}
	if !removed {
		return requireParticipantOrNotMember(ctx, s.chatRepo, chatID, userID)
	}

	s.hub.RemoveUserFromChat(chatID, userID)
	payload := realtime.ChatMemberPayload{ChatID: chatID, UserID: userID, UserName: userName}
	if _, err := s.hub.EmitToChat(chatID, realtime.EventUserLeft, payload); err != nil {
		log.Printf("Failed to broadcast user_left for chat %d: %v", chatID, err)
	}

	ids, err := s.chatRepo.ParticipantIDs(ctx, chatID)
	if err == nil {
		_ = s.cache.InvalidateChatLists(ctx, append(ids, userID)...)
	}
	_ = s.cache.InvalidateUnreadCounts(ctx, chatID, userID)
	return nil
}

// requireParticipantOrNotMember maps a no-op removal to the right error.
func requireParticipantOrNotMember(ctx context.Context, chats repository.ChatRepositoryInterface, chatID, userID uint) error {
	if err := requireParticipant(ctx, chats, chatID, userID); err != nil {
		return err
	}
	// Raced with a concurrent leave.
	return apperr.ErrNotAParticipant
}
