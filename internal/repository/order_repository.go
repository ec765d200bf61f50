package repository

import (
	"context"

	"github.com/mebelplace/mebelplace-backend/internal/models"
	"gorm.io/gorm"
)

type OrderRepository struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

func (r *OrderRepository) FindByID(ctx context.Context, id uint) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).First(&order, id).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *OrderRepository) FindResponse(ctx context.Context, orderID, responseID uint) (*models.OrderResponse, error) {
	var resp models.OrderResponse
	err := r.db.WithContext(ctx).
		Where("id = ? AND order_id = ?", responseID, orderID).
		First(&resp).Error
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// AssignMaster performs the pending -> in_progress transition. Re-assigning
// the master that already holds the order is allowed so a retried accept
// converges. It reports false when another master won or the order is closed.
func (r *OrderRepository) AssignMaster(ctx context.Context, orderID, responseID, masterID uint) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND is_active = ?", orderID, true).
		Where("status = ? OR (status = ? AND master_id = ?)",
			models.OrderPending, models.OrderInProgress, masterID).
		Updates(map[string]interface{}{
			"status":               models.OrderInProgress,
			"master_id":            masterID,
			"accepted_response_id": responseID,
		})
	return res.RowsAffected > 0, res.Error
}

// MarkResponseAccepted makes responseID the order's only accepted response.
func (r *OrderRepository) MarkResponseAccepted(ctx context.Context, orderID, responseID uint) error {
	db := r.db.WithContext(ctx)
	err := db.Model(&models.OrderResponse{}).
		Where("order_id = ? AND id <> ? AND is_accepted = ?", orderID, responseID, true).
		Update("is_accepted", false).Error
	if err != nil {
		return err
	}
	return db.Model(&models.OrderResponse{}).
		Where("id = ? AND order_id = ?", responseID, orderID).
		Update("is_accepted", true).Error
}
