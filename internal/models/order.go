package models

import "time"

type OrderStatus string

const (
	OrderPending    OrderStatus = "pending"
	OrderInProgress OrderStatus = "in_progress"
	OrderCompleted  OrderStatus = "completed"
	OrderCancelled  OrderStatus = "cancelled"
)

// Order and OrderResponse belong to the orders service. The chat core reads
// them and performs the single acceptance transition.
type Order struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	ClientID           uint        `gorm:"not null;index" json:"client_id"`
	MasterID           *uint       `gorm:"index" json:"master_id"`
	AcceptedResponseID *uint       `json:"accepted_response_id"`
	Title              string      `gorm:"size:255;not null" json:"title"`
	Description        string      `gorm:"type:text" json:"description"`
	Status             OrderStatus `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	IsActive           bool        `gorm:"not null;default:true" json:"is_active"`
}

type OrderResponse struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	OrderID    uint     `gorm:"not null;index" json:"order_id"`
	MasterID   uint     `gorm:"not null;index" json:"master_id"`
	Message    string   `gorm:"type:text" json:"message"`
	Price      *float64 `json:"price"`
	IsAccepted bool     `gorm:"not null;default:false" json:"is_accepted"`
	IsActive   bool     `gorm:"not null;default:true" json:"is_active"`
}
