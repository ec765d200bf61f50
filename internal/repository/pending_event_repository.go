package repository

import (
	"context"
	"time"

	"github.com/mebelplace/mebelplace-backend/internal/models"
	"gorm.io/gorm"
)

type PendingEventRepository struct {
	db *gorm.DB
}

func NewPendingEventRepository(db *gorm.DB) *PendingEventRepository {
	return &PendingEventRepository{db: db}
}

// Enqueue adds an event to the offline queue for a user
func (r *PendingEventRepository) Enqueue(ctx context.Context, userID uint, eventType string, payload string) error {
	pending := &models.PendingEvent{
		UserID:    userID,
		EventType: eventType,
		Payload:   payload,
	}
	return r.db.WithContext(ctx).Create(pending).Error
}

// GetPendingForUser retrieves queued events for a user, oldest first
func (r *PendingEventRepository) GetPendingForUser(ctx context.Context, userID uint, limit int) ([]models.PendingEvent, error) {
	var pending []models.PendingEvent
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).
		Order("created_at ASC, id ASC").
		Limit(limit).
		Find(&pending).Error
	return pending, err
}

// MarkAttempted bumps the attempt counter on a batch that failed to flush
func (r *PendingEventRepository) MarkAttempted(ctx context.Context, ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Model(&models.PendingEvent{}).
		Where("id IN ?", ids).
		Updates(map[string]interface{}{
			"attempts":     gorm.Expr("attempts + 1"),
			"last_attempt": time.Now().UTC(),
		}).Error
}

// DeleteBatch removes events after they were handed to a live connection
func (r *PendingEventRepository) DeleteBatch(ctx context.Context, ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Delete(&models.PendingEvent{}, ids).Error
}

// CountPendingForUser returns the number of queued events for a user
func (r *PendingEventRepository) CountPendingForUser(ctx context.Context, userID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.PendingEvent{}).Where("user_id = ?", userID).Count(&count).Error
	return count, err
}

// CleanupOld removes queued events older than the specified duration
func (r *PendingEventRepository) CleanupOld(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	res := r.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&models.PendingEvent{})
	return res.RowsAffected, res.Error
}
