package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"
)

const (
	onlineSetKey = "online:users"

	// OnlineTTL matches the websocket pong timeout so a crashed node's users
	// drop out of the mirror on their own.
	OnlineTTL = 90 * time.Second
)

// PresenceCache mirrors the in-process presence table into Redis for other
// services. It is never the source of truth for is_online.
type PresenceCache struct {
	redis *RedisCache
}

// NewPresenceCache creates a new presence mirror
func NewPresenceCache(redis *RedisCache) *PresenceCache {
	return &PresenceCache{redis: redis}
}

func onlineKey(userID uint) string {
	return fmt.Sprintf("online:%d", userID)
}

// SetOnline adds a user to the online set
func (pc *PresenceCache) SetOnline(ctx context.Context, userID uint) error {
	if pc == nil || pc.redis == nil {
		return nil
	}
	if err := pc.redis.SetAdd(ctx, onlineSetKey, userID); err != nil {
		return err
	}
	return pc.redis.Set(ctx, onlineKey(userID), []byte("1"), OnlineTTL)
}

// SetOffline removes a user from the online set
func (pc *PresenceCache) SetOffline(ctx context.Context, userID uint) error {
	if pc == nil || pc.redis == nil {
		return nil
	}
	if err := pc.redis.SetRemove(ctx, onlineSetKey, userID); err != nil {
		return err
	}
	return pc.redis.Delete(ctx, onlineKey(userID))
}

// Refresh extends the TTL for an online user
func (pc *PresenceCache) Refresh(ctx context.Context, userID uint) error {
	if pc == nil || pc.redis == nil {
		return nil
	}
	return pc.redis.Set(ctx, onlineKey(userID), []byte("1"), OnlineTTL)
}

// IsOnline checks the mirror for a user
func (pc *PresenceCache) IsOnline(ctx context.Context, userID uint) bool {
	if pc == nil || pc.redis == nil {
		return false
	}
	return pc.redis.Exists(ctx, onlineKey(userID))
}

// OnlineUsers returns all mirrored online user IDs
func (pc *PresenceCache) OnlineUsers(ctx context.Context) ([]uint, error) {
	if pc == nil || pc.redis == nil {
		return nil, nil
	}
	members, err := pc.redis.SetMembers(ctx, onlineSetKey)
	if err != nil {
		return nil, err
	}

	userIDs := make([]uint, 0, len(members))
	for _, member := range members {
		if id, err := strconv.ParseUint(member, 10, 32); err == nil {
			userIDs = append(userIDs, uint(id))
		}
	}
	return userIDs, nil
}

// OnlineCount returns the size of the online set
func (pc *PresenceCache) OnlineCount(ctx context.Context) (int64, error) {
	if pc == nil || pc.redis == nil {
		return 0, nil
	}
	return pc.redis.SetCard(ctx, onlineSetKey)
}
