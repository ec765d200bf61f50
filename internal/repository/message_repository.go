package repository

import (
	"context"
	"time"

	"github.com/mebelplace/mebelplace-backend/internal/models"
	"gorm.io/gorm"
)

type MessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

func (r *MessageRepository) Create(ctx context.Context, message *models.Message) error {
	if message.Status == "" {
		message.Status = models.StatusSent
	}
	return r.db.WithContext(ctx).Create(message).Error
}

func (r *MessageRepository) FindByID(ctx context.Context, id uint) (*models.Message, error) {
	var message models.Message
	err := r.db.WithContext(ctx).Preload("Sender").First(&message, id).Error
	if err != nil {
		return nil, err
	}
	return &message, nil
}

// ListByChat returns up to limit messages older than cursor, newest first.
// A zero cursor starts from the latest message.
func (r *MessageRepository) ListByChat(ctx context.Context, chatID uint, cursor uint, limit int) ([]models.Message, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	q := r.db.WithContext(ctx).Preload("Sender").Where("chat_id = ?", chatID)
	if cursor > 0 {
		q = q.Where("id < ?", cursor)
	}

	var messages []models.Message
	err := q.Order("id DESC").Limit(limit).Find(&messages).Error
	return messages, err
}

// AdvanceStatus moves a message forward in its lifecycle. It reports false
// when the message is already at or past status.
func (r *MessageRepository) AdvanceStatus(ctx context.Context, messageID uint, status models.MessageStatus) (bool, error) {
	before := models.StatusesBefore(status)
	if len(before) == 0 {
		return false, nil
	}
	res := r.db.WithContext(ctx).Model(&models.Message{}).
		Where("id = ? AND status IN ?", messageID, before).
		Updates(map[string]interface{}{
			"status":     status,
			"updated_at": time.Now().UTC(),
		})
	return res.RowsAffected > 0, res.Error
}

// MarkReadUpTo flips every unread message from other senders created at or
// before upTo to read and returns the affected ids in ascending order.
func (r *MessageRepository) MarkReadUpTo(ctx context.Context, chatID, readerID uint, upTo time.Time) ([]uint, error) {
	var ids []uint
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Message{}).
			Where("chat_id = ? AND sender_id <> ? AND created_at <= ? AND status IN ?",
				chatID, readerID, upTo, models.StatusesBefore(models.StatusRead)).
			Order("id").
			Pluck("id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		return tx.Model(&models.Message{}).
			Where("id IN ?", ids).
			Updates(map[string]interface{}{
				"status":     models.StatusRead,
				"updated_at": time.Now().UTC(),
			}).Error
	})
	return ids, err
}
