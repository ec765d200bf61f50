package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/mebelplace/mebelplace-backend/internal/models"
	"github.com/vmihailenco/msgpack/v5"
)

// TTL constants for different cache types
const (
	HistoryTTL     = 5 * time.Minute
	ChatListTTL    = 2 * time.Minute
	UnreadCountTTL = 1 * time.Minute
)

// MessageCache holds the first history page of each chat, each user's chat
// list and per-chat unread counts. A nil *MessageCache is a valid no-op cache.
type MessageCache struct {
	redis *RedisCache
}

// NewMessageCache creates a new message cache
func NewMessageCache(redis *RedisCache) *MessageCache {
	return &MessageCache{redis: redis}
}

func historyKey(chatID uint) string {
	return fmt.Sprintf("chat:%d:history", chatID)
}

func chatListKey(userID uint) string {
	return fmt.Sprintf("chatlist:%d", userID)
}

func unreadKey(chatID, userID uint) string {
	return fmt.Sprintf("unread:%d:%d", chatID, userID)
}

func (mc *MessageCache) enabled() bool {
	return mc != nil && mc.redis != nil
}

func (mc *MessageCache) load(ctx context.Context, key string, out interface{}) bool {
	data, err := mc.redis.Get(ctx, key)
	if err != nil || data == nil {
		return false
	}
	return msgpack.Unmarshal(data, out) == nil
}

func (mc *MessageCache) store(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := msgpack.Marshal(value)
	if err != nil {
		return err
	}
	return mc.redis.Set(ctx, key, data, ttl)
}

// GetHistory retrieves the cached newest page of a chat
func (mc *MessageCache) GetHistory(ctx context.Context, chatID uint) ([]models.MessageResponse, bool) {
	if !mc.enabled() {
		return nil, false
	}
	var messages []models.MessageResponse
	if !mc.load(ctx, historyKey(chatID), &messages) {
		return nil, false
	}
	return messages, true
}

// SetHistory caches the newest page of a chat
func (mc *MessageCache) SetHistory(ctx context.Context, chatID uint, messages []models.MessageResponse) error {
	if !mc.enabled() {
		return nil
	}
	return mc.store(ctx, historyKey(chatID), messages, HistoryTTL)
}

// InvalidateHistory drops the cached page after a write to the chat
func (mc *MessageCache) InvalidateHistory(ctx context.Context, chatID uint) error {
	if !mc.enabled() {
		return nil
	}
	return mc.redis.Delete(ctx, historyKey(chatID))
}

// GetChatList retrieves a user's cached first chat-list page
func (mc *MessageCache) GetChatList(ctx context.Context, userID uint) ([]models.ChatSummary, bool) {
	if !mc.enabled() {
		return nil, false
	}
	var list []models.ChatSummary
	if !mc.load(ctx, chatListKey(userID), &list) {
		return nil, false
	}
	return list, true
}

// SetChatList caches a user's first chat-list page
func (mc *MessageCache) SetChatList(ctx context.Context, userID uint, list []models.ChatSummary) error {
	if !mc.enabled() {
		return nil
	}
	return mc.store(ctx, chatListKey(userID), list, ChatListTTL)
}

// InvalidateChatLists drops the chat lists of every given user
func (mc *MessageCache) InvalidateChatLists(ctx context.Context, userIDs ...uint) error {
	if !mc.enabled() || len(userIDs) == 0 {
		return nil
	}
	keys := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		keys = append(keys, chatListKey(id))
	}
	return mc.redis.Delete(ctx, keys...)
}

// GetUnreadCount retrieves a cached unread count
func (mc *MessageCache) GetUnreadCount(ctx context.Context, chatID, userID uint) (int64, bool) {
	if !mc.enabled() {
		return 0, false
	}
	var count int64
	if !mc.load(ctx, unreadKey(chatID, userID), &count) {
		return 0, false
	}
	return count, true
}

// SetUnreadCount caches an unread count
func (mc *MessageCache) SetUnreadCount(ctx context.Context, chatID, userID uint, count int64) error {
	if !mc.enabled() {
		return nil
	}
	return mc.store(ctx, unreadKey(chatID, userID), count, UnreadCountTTL)
}

// InvalidateUnreadCounts removes the unread counts of the given users in a chat
func (mc *MessageCache) InvalidateUnreadCounts(ctx context.Context, chatID uint, userIDs ...uint) error {
	if !mc.enabled() || len(userIDs) == 0 {
		return nil
	}
	keys := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		keys = append(keys, unreadKey(chatID, id))
	}
	return mc.redis.Delete(ctx, keys...)
}
