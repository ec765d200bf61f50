package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/mebelplace/mebelplace-backend/internal/apperr"
	"github.com/mebelplace/mebelplace-backend/internal/repository"
	"gorm.io/gorm"
)

// Broadcaster is the part of the realtime hub the services publish through.
type Broadcaster interface {
	EmitToChat(chatID uint, eventType string, payload interface{}) (int, error)
	EmitToChatExceptUser(chatID, userID uint, eventType string, payload interface{}) (int, error)
	SendToUser(userID uint, frame []byte) int
	RemoveUserFromChat(chatID, userID uint)
}

// requireParticipant returns ErrChatNotFound for a missing chat and
// ErrNotAParticipant when userID holds no membership row.
func requireParticipant(ctx context.Context, chats repository.ChatRepositoryInterface, chatID, userID uint) error {
	ok, err := chats.IsParticipant(ctx, chatID, userID)
	if err != nil {
		return fmt.Errorf("check participant: %w", err)
	}
	if ok {
		return nil
	}
	if _, err := chats.FindByID(ctx, chatID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.ErrChatNotFound
		}
		return fmt.Errorf("find chat: %w", err)
	}
	return apperr.ErrNotAParticipant
}

// keyedMutex serializes work per chat without a global lock. Entries are
// dropped when the last holder unlocks.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[uint]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[uint]*refMutex)}
}

func (k *keyedMutex) Lock(key uint) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
