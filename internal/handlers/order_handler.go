package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/mebelplace/mebelplace-backend/internal/httpx"
	"github.com/mebelplace/mebelplace-backend/internal/service"
)

type OrderHandler struct {
	orderService *service.OrderService
}

func NewOrderHandler(orderService *service.OrderService) *OrderHandler {
	return &OrderHandler{orderService: orderService}
}

type acceptInput struct {
	ResponseID uint `json:"responseId"`
}

// AcceptResponse accepts one master's response to the caller's order and
// returns the order together with the chat opened for the pair.
func (h *OrderHandler) AcceptResponse(c *fiber.Ctx) error {
	userID, err := httpx.LocalUint(c, "userID")
	if err != nil {
		return httpx.Unauthorized(c, "unauthorized", "Unauthorized")
	}
	orderID, ok := paramID(c, "id")
	if !ok {
		return httpx.BadRequest(c, "invalid_order_id", "Invalid order id")
	}
	var input acceptInput
	if err := c.BodyParser(&input); err != nil || input.ResponseID == 0 {
		return httpx.BadRequest(c, "invalid_request_body", "responseId is required")
	}

	res, err := h.orderService.AcceptResponse(c.UserContext(), orderID, input.ResponseID, userID)
	if err != nil {
		return httpx.FromError(c, err)
	}
	return c.JSON(res)
}
