package testutil

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/mebelplace/mebelplace-backend/internal/auth"
	"github.com/mebelplace/mebelplace-backend/internal/models"
	"github.com/mebelplace/mebelplace-backend/internal/repository"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const TestJWTSecret = "test-secret-key-for-testing-only"

// TestHelper provides utility functions for tests
type TestHelper struct {
	t  *testing.T
	DB *gorm.DB
}

// NewTestHelper opens a migrated sqlite database in the test's temp dir.
// Writers are serialized through one connection with immediate transactions,
// so concurrent tests see the same conflicts postgres would report.
func NewTestHelper(t *testing.T) *TestHelper {
	t.Helper()

	path := filepath.Join(t.TempDir(), "chat.db")
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_txlock=immediate&_foreign_keys=off", path)
	db, err := gorm.Open(sqlite.Open(dsn), repository.GormConfig())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := repository.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return &TestHelper{t: t, DB: db}
}

// CreateUser persists an active user with the given role
func (h *TestHelper) CreateUser(username string, role models.UserRole) *models.User {
	h.t.Helper()
	user := &models.User{
		Username:  username,
		FirstName: username,
		Role:      role,
		IsActive:  true,
	}
	if err := h.DB.Create(user).Error; err != nil {
		h.t.Fatalf("create user %s: %v", username, err)
	}
	return user
}

// CreateChat persists a chat of the given type with members joined now
func (h *TestHelper) CreateChat(chatType models.ChatType, creatorID uint, members ...uint) *models.Chat {
	h.t.Helper()
	chat := &models.Chat{Type: chatType, CreatorID: creatorID}
	if chatType == models.ChatPrivate && len(members) == 2 {
		key := models.PairKeyFor(members[0], members[1])
		chat.PairKey = &key
	}
	if err := h.DB.Create(chat).Error; err != nil {
		h.t.Fatalf("create chat: %v", err)
	}
	now := time.Now().UTC()
	for _, id := range members {
		p := models.ChatParticipant{ChatID: chat.ID, UserID: id, Role: models.ParticipantMember, LastReadAt: now}
		if err := h.DB.Create(&p).Error; err != nil {
			h.t.Fatalf("add participant %d: %v", id, err)
		}
		chat.Participants = append(chat.Participants, p)
	}
	return chat
}

// CreateMessage persists a text message at the given time
func (h *TestHelper) CreateMessage(chatID, senderID uint, content string, at time.Time) *models.Message {
	h.t.Helper()
	msg := &models.Message{
		ChatID:    chatID,
		SenderID:  senderID,
		Content:   content,
		Type:      models.TextMessage,
		Status:    models.StatusSent,
		CreatedAt: at.UTC(),
	}
	if err := h.DB.Create(msg).Error; err != nil {
		h.t.Fatalf("create message: %v", err)
	}
	return msg
}

// CreateOrder persists a pending order with one response per master
func (h *TestHelper) CreateOrder(clientID uint, title string, masterIDs ...uint) (*models.Order, []models.OrderResponse) {
	h.t.Helper()
	order := &models.Order{ClientID: clientID, Title: title, Status: models.OrderPending, IsActive: true}
	if err := h.DB.Create(order).Error; err != nil {
		h.t.Fatalf("create order: %v", err)
	}
	responses := make([]models.OrderResponse, 0, len(masterIDs))
	for _, masterID := range masterIDs {
		resp := models.OrderResponse{OrderID: order.ID, MasterID: masterID, Message: "I can do it", IsActive: true}
		if err := h.DB.Create(&resp).Error; err != nil {
			h.t.Fatalf("create response: %v", err)
		}
		responses = append(responses, resp)
	}
	return order, responses
}

// SetLastRead overwrites a participant's read mark
func (h *TestHelper) SetLastRead(chatID, userID uint, at time.Time) {
	h.t.Helper()
	err := h.DB.Model(&models.ChatParticipant{}).
		Where("chat_id = ? AND user_id = ?", chatID, userID).
		UpdateColumn("last_read_at", at.UTC()).Error
	if err != nil {
		h.t.Fatalf("set last read: %v", err)
	}
}

// Token issues a valid access token for user
func (h *TestHelper) Token(user *models.User) string {
	h.t.Helper()
	token, err := auth.NewTokenVerifier(TestJWTSecret).Issue(auth.Identity{
		UserID: user.ID,
		Name:   user.DisplayName(),
		Role:   string(user.Role),
	}, time.Hour)
	if err != nil {
		h.t.Fatalf("issue token: %v", err)
	}
	return token
}
