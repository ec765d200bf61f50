package repository

import (
	"time"

	"github.com/mebelplace/mebelplace-backend/internal/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// GormConfig is shared by every dialect so timestamps compare the same way
// in postgres and in the sqlite test databases.
func GormConfig() *gorm.Config {
	return &gorm.Config{
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func InitDB(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), GormConfig())
	if err != nil {
		return nil, err
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	return db, nil
}

// Migrate creates the tables the chat core owns or reads.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Chat{},
		&models.ChatParticipant{},
		&models.Message{},
		&models.Order{},
		&models.OrderResponse{},
		&models.PendingEvent{},
	)
}
