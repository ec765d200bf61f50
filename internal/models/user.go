package models

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

type UserRole string

const (
	RoleClient UserRole = "client"
	RoleMaster UserRole = "master"
	RoleAdmin  UserRole = "admin"
)

// User is owned by the auth/registration service; the chat core only reads
// profile fields and writes LastSeen.
//
// IsActive is the account-enabled flag. Online status is never stored here,
// see PresenceState.
type User struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	Username  string     `gorm:"uniqueIndex;not null" json:"username"`
	FirstName string     `json:"first_name"`
	LastName  string     `json:"last_name"`
	Avatar    string     `json:"avatar"`
	Role      UserRole   `gorm:"type:varchar(20);not null;default:'client'" json:"role"`
	IsActive  bool       `gorm:"not null;default:true" json:"is_active"`
	LastSeen  *time.Time `json:"last_seen"`
}

func (u *User) DisplayName() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.Username
	}
	return name
}

type UserResponse struct {
	ID       uint       `json:"id"`
	Username string     `json:"username"`
	Name     string     `json:"name"`
	Avatar   string     `json:"avatar"`
	Role     UserRole   `json:"role"`
	LastSeen *time.Time `json:"last_seen"`
}

func (u *User) ToResponse() UserResponse {
	return UserResponse{
		ID:       u.ID,
		Username: u.Username,
		Name:     u.DisplayName(),
		Avatar:   u.Avatar,
		Role:     u.Role,
		LastSeen: u.LastSeen,
	}
}

// PresenceState is derived from live connections and only ever travels in
// events and API responses.
type PresenceState struct {
	UserID   uint       `json:"userId"`
	IsOnline bool       `json:"isOnline"`
	LastSeen *time.Time `json:"lastSeen,omitempty"`
}
