package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/mebelplace/mebelplace-backend/internal/realtime"
	"github.com/mebelplace/mebelplace-backend/internal/repository"
)

const pendingFlushBatch = 50

// FrameSink receives frames on one live connection.
type FrameSink interface {
	Enqueue(frame []byte) bool
}

// NotificationService delivers user-addressed events, queueing them when the
// user has no live connection.
type NotificationService struct {
	pendingRepo repository.PendingEventRepositoryInterface
	hub         Broadcaster
}

func NewNotificationService(pendingRepo repository.PendingEventRepositoryInterface, hub Broadcaster) *NotificationService {
	return &NotificationService{pendingRepo: pendingRepo, hub: hub}
}

// Notify sends eventType to every connection of userID. Reports whether it
// went out live; otherwise the frame is stored for the next connect.
func (s *NotificationService) Notify(ctx context.Context, userID uint, eventType string, payload interface{}) (bool, error) {
	frame, err := realtime.Encode(eventType, payload)
	if err != nil {
		return false, fmt.Errorf("encode %s: %w", eventType, err)
	}
	if s.hub.SendToUser(userID, frame) > 0 {
		return true, nil
	}
	if err := s.pendingRepo.Enqueue(ctx, userID, eventType, string(frame)); err != nil {
		return false, fmt.Errorf("queue %s for user %d: %w", eventType, userID, err)
	}
	return false, nil
}

// FlushPending replays queued frames for userID into sink, oldest first.
// Frames the sink refuses stay queued with their attempt counted.
func (s *NotificationService) FlushPending(ctx context.Context, userID uint, sink FrameSink) (int, error) {
	sent := 0
	for {
		events, err := s.pendingRepo.GetPendingForUser(ctx, userID, pendingFlushBatch)
		if err != nil {
			return sent, fmt.Errorf("load pending events: %w", err)
		}
		if len(events) == 0 {
			return sent, nil
		}

		delivered := make([]uint, 0, len(events))
		var failed []uint
		for i, ev := range events {
			if !sink.Enqueue([]byte(ev.Payload)) {
				for _, rest := range events[i:] {
					failed = append(failed, rest.ID)
				}
				break
			}
			delivered = append(delivered, ev.ID)
		}

		if len(delivered) > 0 {
			if err := s.pendingRepo.DeleteBatch(ctx, delivered); err != nil {
				return sent, fmt.Errorf("delete delivered events: %w", err)
			}
			sent += len(delivered)
		}
		if len(failed) > 0 {
			if err := s.pendingRepo.MarkAttempted(ctx, failed); err != nil {
				log.Printf("Failed to mark pending events attempted for user %d: %v", userID, err)
			}
			return sent, nil
		}
		if len(events) < pendingFlushBatch {
			return sent, nil
		}
	}
}

func (s *NotificationService) Cleanup(ctx context.Context, maxAge time.Duration) (int64, error) {
	return s.pendingRepo.CleanupOld(ctx, maxAge)
}

// RunCleanup drops queued events older than maxAge every interval until ctx ends.
func (s *NotificationService) RunCleanup(ctx context.Context, interval, maxAge time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.Cleanup(ctx, maxAge)
			if err != nil {
				log.Printf("Pending event cleanup failed: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("Removed %d expired pending events", n)
			}
		}
	}
}
