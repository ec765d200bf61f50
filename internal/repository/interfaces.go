package repository

import (
	"context"
	"time"

	"github.com/mebelplace/mebelplace-backend/internal/models"
)

// UserRepositoryInterface defines the chat core's view of the users table
type UserRepositoryInterface interface {
	FindByID(ctx context.Context, id uint) (*models.User, error)
	FindByIDs(ctx context.Context, ids []uint) ([]models.User, error)
	TouchLastSeen(ctx context.Context, userID uint, at time.Time) error
}

// ChatRepositoryInterface defines the contract for chat and participant operations
type ChatRepositoryInterface interface {
	FindByID(ctx context.Context, id uint) (*models.Chat, error)
	GetParticipant(ctx context.Context, chatID, userID uint) (*models.ChatParticipant, error)
	IsParticipant(ctx context.Context, chatID, userID uint) (bool, error)
	ParticipantIDs(ctx context.Context, chatID uint) ([]uint, error)
	FindPrivateChat(ctx context.Context, userA, userB uint) (*models.Chat, error)
	FindOrCreatePrivateChat(ctx context.Context, template *models.Chat, userA, userB uint) (*models.Chat, bool, error)
	RemoveParticipant(ctx context.Context, chatID, userID uint) (bool, error)
	AdvanceLastRead(ctx context.Context, chatID, userID uint, at time.Time) error
	UnreadCount(ctx context.Context, chatID, userID uint) (int64, error)
	ListForUser(ctx context.Context, userID uint, limit, offset int) ([]models.ChatSummary, error)
	Touch(ctx context.Context, chatID uint) error
}

// MessageRepositoryInterface defines the contract for message operations
type MessageRepositoryInterface interface {
	Create(ctx context.Context, message *models.Message) error
	FindByID(ctx context.Context, id uint) (*models.Message, error)
	ListByChat(ctx context.Context, chatID uint, cursor uint, limit int) ([]models.Message, error)
	AdvanceStatus(ctx context.Context, messageID uint, status models.MessageStatus) (bool, error)
	MarkReadUpTo(ctx context.Context, chatID, readerID uint, upTo time.Time) ([]uint, error)
}

// OrderRepositoryInterface covers the reads and the single write the
// acceptance transaction performs on orders.
type OrderRepositoryInterface interface {
	FindByID(ctx context.Context, id uint) (*models.Order, error)
	FindResponse(ctx context.Context, orderID, responseID uint) (*models.OrderResponse, error)
	AssignMaster(ctx context.Context, orderID, responseID, masterID uint) (bool, error)
	MarkResponseAccepted(ctx context.Context, orderID, responseID uint) error
}

// PendingEventRepositoryInterface defines the contract for the offline event queue
type PendingEventRepositoryInterface interface {
	Enqueue(ctx context.Context, userID uint, eventType string, payload string) error
	GetPendingForUser(ctx context.Context, userID uint, limit int) ([]models.PendingEvent, error)
	MarkAttempted(ctx context.Context, ids []uint) error
	DeleteBatch(ctx context.Context, ids []uint) error
	CountPendingForUser(ctx context.Context, userID uint) (int64, error)
	CleanupOld(ctx context.Context, olderThan time.Duration) (int64, error)
}

// TxRepositories are bound to one open transaction.
type TxRepositories struct {
	Orders OrderRepositoryInterface
	Chats  ChatRepositoryInterface
}

// Transactor runs fn in a single transaction; any returned error rolls
// everything back.
type Transactor interface {
	WithinTransaction(ctx context.Context, fn func(repos TxRepositories) error) error
}
