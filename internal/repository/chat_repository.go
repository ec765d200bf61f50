package repository

import (
	"context"
	"errors"
	"time"

	"github.com/mebelplace/mebelplace-backend/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ChatRepository struct {
	db *gorm.DB
}

func NewChatRepository(db *gorm.DB) *ChatRepository {
	return &ChatRepository{db: db}
}

func (r *ChatRepository) FindByID(ctx context.Context, id uint) (*models.Chat, error) {
	var chat models.Chat
	err := r.db.WithContext(ctx).Preload("Participants").First(&chat, id).Error
	if err != nil {
		return nil, err
	}
	return &chat, nil
}

func (r *ChatRepository) GetParticipant(ctx context.Context, chatID, userID uint) (*models.ChatParticipant, error) {
	var p models.ChatParticipant
	err := r.db.WithContext(ctx).Where("chat_id = ? AND user_id = ?", chatID, userID).First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *ChatRepository) IsParticipant(ctx context.Context, chatID, userID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.ChatParticipant{}).
		Where("chat_id = ? AND user_id = ?", chatID, userID).
		Count(&count).Error
	return count > 0, err
}

func (r *ChatRepository) ParticipantIDs(ctx context.Context, chatID uint) ([]uint, error) {
	var ids []uint
	err := r.db.WithContext(ctx).Model(&models.ChatParticipant{}).
		Where("chat_id = ?", chatID).
		Order("user_id").
		Pluck("user_id", &ids).Error
	return ids, err
}

// FindPrivateChat looks the pair up by key first and falls back to a
// membership lookup for two-party chats created before pair keys existed.
func (r *ChatRepository) FindPrivateChat(ctx context.Context, userA, userB uint) (*models.Chat, error) {
	var chat models.Chat
	err := r.db.WithContext(ctx).Where("pair_key = ?", models.PairKeyFor(userA, userB)).First(&chat).Error
	if err == nil {
		return &chat, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	err = r.db.WithContext(ctx).
		Table("chats AS c").
		Select("c.*").
		Joins("JOIN chat_participants p1 ON p1.chat_id = c.id AND p1.user_id = ?", userA).
		Joins("JOIN chat_participants p2 ON p2.chat_id = c.id AND p2.user_id = ?", userB).
		Where("c.type IN ?", []models.ChatType{models.ChatPrivate, models.ChatOrder}).
		Where("(SELECT COUNT(*) FROM chat_participants p WHERE p.chat_id = c.id) = 2").
		Order("c.id").
		Limit(1).
		Scan(&chat).Error
	if err != nil {
		return nil, err
	}
	if chat.ID == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	return &chat, nil
}

// FindOrCreatePrivateChat returns the chat for {userA, userB}, creating it from
// template when none exists. The pair_key unique index makes concurrent
// creators converge on one row. A reused chat gets back any member who left,
// so both sides can always post. The bool reports whether this call created it.
func (r *ChatRepository) FindOrCreatePrivateChat(ctx context.Context, template *models.Chat, userA, userB uint) (*models.Chat, bool, error) {
	existing, err := r.FindPrivateChat(ctx, userA, userB)
	if err == nil {
		if err := r.ensurePair(ctx, existing, userA, userB); err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	key := models.PairKeyFor(userA, userB)
	chat := *template
	chat.ID = 0
	chat.PairKey = &key
	if chat.Type == "" {
		chat.Type = models.ChatPrivate
	}

	db := r.db.WithContext(ctx)
	res := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "pair_key"}},
		DoNothing: true,
	}).Create(&chat)
	if res.Error != nil {
		return nil, false, res.Error
	}
	if res.RowsAffected == 0 {
		// Lost the race to another creator.
		var winner models.Chat
		if err := db.Where("pair_key = ?", key).First(&winner).Error; err != nil {
			return nil, false, err
		}
		if err := r.ensurePair(ctx, &winner, userA, userB); err != nil {
			return nil, false, err
		}
		return &winner, false, nil
	}

	if err := r.ensurePair(ctx, &chat, userA, userB); err != nil {
		return nil, false, err
	}
	return &chat, true, nil
}

// ensurePair inserts whichever of the two membership rows is missing and
// loads chat.Participants. Existing rows keep their read marks.
func (r *ChatRepository) ensurePair(ctx context.Context, chat *models.Chat, userA, userB uint) error {
	db := r.db.WithContext(ctx)
	now := time.Now().UTC()
	participants := []models.ChatParticipant{
		{ChatID: chat.ID, UserID: userA, Role: models.ParticipantMember, LastReadAt: now},
		{ChatID: chat.ID, UserID: userB, Role: models.ParticipantMember, LastReadAt: now},
	}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&participants).Error; err != nil {
		return err
	}

	var current []models.ChatParticipant
	if err := db.Where("chat_id = ?", chat.ID).Order("user_id").Find(&current).Error; err != nil {
		return err
	}
	chat.Participants = current
	return nil
}

func (r *ChatRepository) RemoveParticipant(ctx context.Context, chatID, userID uint) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("chat_id = ? AND user_id = ?", chatID, userID).
		Delete(&models.ChatParticipant{})
	return res.RowsAffected > 0, res.Error
}

// AdvanceLastRead moves the high-water mark forward only.
func (r *ChatRepository) AdvanceLastRead(ctx context.Context, chatID, userID uint, at time.Time) error {
	return r.db.WithContext(ctx).Model(&models.ChatParticipant{}).
		Where("chat_id = ? AND user_id = ? AND last_read_at < ?", chatID, userID, at).
		UpdateColumn("last_read_at", at).Error
}

func (r *ChatRepository) UnreadCount(ctx context.Context, chatID, userID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Table("messages AS m").
		Joins("JOIN chat_participants cp ON cp.chat_id = m.chat_id AND cp.user_id = ?", userID).
		Where("m.chat_id = ? AND m.created_at > cp.last_read_at AND m.sender_id <> ?", chatID, userID).
		Count(&count).Error
	return count, err
}

type chatSummaryRow struct {
	ChatID        uint                   `gorm:"column:chat_id"`
	Role          models.ParticipantRole `gorm:"column:role"`
	LastReadAt    time.Time              `gorm:"column:last_read_at"`
	LastMessageID *uint                  `gorm:"column:last_message_id"`
	UnreadCount   int64                  `gorm:"column:unread_count"`
}

// ListForUser returns the user's chats, most recently active first, with the
// last message and the unread count in one query plus two batched loads.
func (r *ChatRepository) ListForUser(ctx context.Context, userID uint, limit, offset int) ([]models.ChatSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	db := r.db.WithContext(ctx)

	var rows []chatSummaryRow
	err := db.Raw(`
SELECT
	c.id AS chat_id,
	cp.role AS role,
	cp.last_read_at AS last_read_at,
	(SELECT m.id FROM messages m WHERE m.chat_id = c.id ORDER BY m.id DESC LIMIT 1) AS last_message_id,
	(SELECT COUNT(*) FROM messages m
		WHERE m.chat_id = c.id AND m.created_at > cp.last_read_at AND m.sender_id <> ?) AS unread_count
FROM chats c
JOIN chat_participants cp ON cp.chat_id = c.id
WHERE cp.user_id = ?
ORDER BY c.updated_at DESC, c.id DESC
LIMIT ? OFFSET ?
`, userID, userID, limit, offset).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return []models.ChatSummary{}, nil
	}

	chatIDs := make([]uint, 0, len(rows))
	messageIDs := make([]uint, 0, len(rows))
	for _, row := range rows {
		chatIDs = append(chatIDs, row.ChatID)
		if row.LastMessageID != nil {
			messageIDs = append(messageIDs, *row.LastMessageID)
		}
	}

	var chats []models.Chat
	if err := db.Preload("Participants.User").Where("id IN ?", chatIDs).Find(&chats).Error; err != nil {
		return nil, err
	}
	chatByID := make(map[uint]models.Chat, len(chats))
	for _, c := range chats {
		chatByID[c.ID] = c
	}

	messageByID := make(map[uint]models.Message, len(messageIDs))
	if len(messageIDs) > 0 {
		var messages []models.Message
		if err := db.Preload("Sender").Where("id IN ?", messageIDs).Find(&messages).Error; err != nil {
			return nil, err
		}
		for _, m := range messages {
			messageByID[m.ID] = m
		}
	}

	out := make([]models.ChatSummary, 0, len(rows))
	for _, row := range rows {
		summary := models.ChatSummary{
			Chat:        chatByID[row.ChatID],
			Role:        row.Role,
			LastReadAt:  row.LastReadAt,
			UnreadCount: row.UnreadCount,
		}
		if row.LastMessageID != nil {
			if m, ok := messageByID[*row.LastMessageID]; ok {
				resp := m.ToResponse()
				summary.LastMessage = &resp
			}
		}
		out = append(out, summary)
	}
	return out, nil
}

func (r *ChatRepository) Touch(ctx context.Context, chatID uint) error {
	return r.db.WithContext(ctx).Model(&models.Chat{}).
		Where("id = ?", chatID).
		UpdateColumn("updated_at", time.Now().UTC()).Error
}
