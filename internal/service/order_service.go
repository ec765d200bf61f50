package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/mebelplace/mebelplace-backend/internal/apperr"
	"github.com/mebelplace/mebelplace-backend/internal/cache"
	"github.com/mebelplace/mebelplace-backend/internal/models"
	"github.com/mebelplace/mebelplace-backend/internal/realtime"
	"github.com/mebelplace/mebelplace-backend/internal/repository"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	ErrOrderNotFound    = apperr.NotFound("order_not_found", "Order not found")
	ErrResponseNotFound = apperr.NotFound("response_not_found", "Response not found")
	ErrNotOrderOwner    = apperr.Authorization("not_order_owner", "Only the order owner can accept responses")
	ErrOrderTaken       = apperr.Conflict("order_already_accepted", "Another response has already been accepted for this order")
)

type AcceptResult struct {
	Order       *models.Order `json:"order"`
	Chat        *models.Chat  `json:"chat"`
	ChatCreated bool          `json:"chat_created"`
}

// OrderService runs the acceptance of an order response: order transition
// and chat find-or-create commit together or not at all.
type OrderService struct {
	orderRepo  repository.OrderRepositoryInterface
	transactor repository.Transactor
	notifier   *NotificationService
	cache      *cache.MessageCache

	notifications sync.WaitGroup
}

func NewOrderService(orderRepo repository.OrderRepositoryInterface, transactor repository.Transactor, notifier *NotificationService, messageCache *cache.MessageCache) *OrderService {
	return &OrderService{
		orderRepo:  orderRepo,
		transactor: transactor,
		notifier:   notifier,
		cache:      messageCache,
	}
}

func (s *OrderService) AcceptResponse(ctx context.Context, orderID, responseID, clientID uint) (*AcceptResult, error) {
	order, err := s.orderRepo.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("find order: %w", err)
	}
	if !order.IsActive {
		return nil, ErrOrderNotFound
	}
	if order.ClientID != clientID {
		return nil, ErrNotOrderOwner
	}
	response, err := s.orderRepo.FindResponse(ctx, orderID, responseID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrResponseNotFound
		}
		return nil, fmt.Errorf("find response: %w", err)
	}
	if !response.IsActive {
		return nil, ErrResponseNotFound
	}
	masterID := response.MasterID

	var result AcceptResult
	err = s.transactor.WithinTransaction(ctx, func(repos repository.TxRepositories) error {
		ok, err := repos.Orders.AssignMaster(ctx, orderID, responseID, masterID)
		if err != nil {
			return fmt.Errorf("assign master: %w", err)
		}
		if !ok {
			return ErrOrderTaken
		}
		if err := repos.Orders.MarkResponseAccepted(ctx, orderID, responseID); err != nil {
			return fmt.Errorf("mark response accepted: %w", err)
		}

		template := &models.Chat{
			Type:      models.ChatOrder,
			CreatorID: clientID,
			Settings:  datatypes.NewJSONType(models.ChatSettings{OrderID: &orderID, OrderTitle: order.Title}),
		}
		chat, created, err := repos.Chats.FindOrCreatePrivateChat(ctx, template, clientID, masterID)
		if err != nil {
			return fmt.Errorf("find or create chat: %w", err)
		}

		updated, err := repos.Orders.FindByID(ctx, orderID)
		if err != nil {
			return fmt.Errorf("reload order: %w", err)
		}
		result = AcceptResult{Order: updated, Chat: chat, ChatCreated: created}
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrOrderTaken.Wrap(err)
		}
		if _, ok := apperr.As(err); ok {
			return nil, err
		}
		return nil, fmt.Errorf("accept response: %w", err)
	}

	if result.ChatCreated {
		_ = s.cache.InvalidateChatLists(ctx, clientID, masterID)
	}
	s.notifyMaster(masterID, realtime.ResponseAcceptedPayload{
		OrderID:    orderID,
		ResponseID: responseID,
		ChatID:     result.Chat.ID,
		ClientID:   clientID,
		OrderTitle: order.Title,
	})

	return &result, nil
}

// notifyMaster runs after commit and outlives the request.
func (s *OrderService) notifyMaster(masterID uint, payload realtime.ResponseAcceptedPayload) {
	if s.notifier == nil {
		return
	}
	s.notifications.Add(1)
	go func() {
		defer s.notifications.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if _, err := s.notifier.Notify(ctx, masterID, realtime.EventResponseAccepted, payload); err != nil {
			log.Printf("Failed to notify master %d about order %d: %v", masterID, payload.OrderID, err)
		}
	}()
}

// Wait blocks until pending notifications are sent or queued.
func (s *OrderService) Wait() {
	s.notifications.Wait()
}
