package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/mebelplace/mebelplace-backend/internal/httpx"
	"github.com/mebelplace/mebelplace-backend/internal/service"
)

type ChatHandler struct {
	chatService *service.ChatService
}

func NewChatHandler(chatService *service.ChatService) *ChatHandler {
	return &ChatHandler{chatService: chatService}
}

func (h *ChatHandler) List(c *fiber.Ctx) error {
	userID, err := httpx.LocalUint(c, "userID")
	if err != nil {
		return httpx.Unauthorized(c, "unauthorized", "Unauthorized")
	}

	chats, err := h.chatService.List(c.UserContext(), userID, queryInt(c, "limit", 0), queryInt(c, "offset", 0))
	if err != nil {
		return httpx.FromError(c, err)
	}
	return c.JSON(fiber.Map{"chats": chats, "count": len(chats)})
}

func (h *ChatHandler) Get(c *fiber.Ctx) error {
	userID, err := httpx.LocalUint(c, "userID")
	if err != nil {
		return httpx.Unauthorized(c, "unauthorized", "Unauthorized")
	}
	chatID, ok := paramID(c, "id")
	if !ok {
		return httpx.BadRequest(c, "invalid_chat_id", "Invalid chat id")
	}

	chat, err := h.chatService.Get(c.UserContext(), chatID, userID)
	if err != nil {
		return httpx.FromError(c, err)
	}
	return c.JSON(chat)
}

type openPrivateInput struct {
	UserID uint `json:"userId"`
}

func (h *ChatHandler) OpenPrivate(c *fiber.Ctx) error {
	userID, err := httpx.LocalUint(c, "userID")
	if err != nil {
		return httpx.Unauthorized(c, "unauthorized", "Unauthorized")
	}
	var input openPrivateInput
	if err := c.BodyParser(&input); err != nil || input.UserID == 0 {
		return httpx.BadRequest(c, "invalid_request_body", "userId is required")
	}

	res, err := h.chatService.OpenPrivateChat(c.UserContext(), userID, input.UserID)
	if err != nil {
		return httpx.FromError(c, err)
	}
	status := fiber.StatusOK
	if res.Created {
		status = fiber.StatusCreated
	}
	return c.Status(status).JSON(fiber.Map{"chat": res.Chat, "created": res.Created})
}

func (h *ChatHandler) Leave(c *fiber.Ctx) error {
	userID, err := httpx.LocalUint(c, "userID")
	if err != nil {
		return httpx.Unauthorized(c, "unauthorized", "Unauthorized")
	}
	chatID, ok := paramID(c, "id")
	if !ok {
		return httpx.BadRequest(c, "invalid_chat_id", "Invalid chat id")
	}
	userName, _ := c.Locals("userName").(string)

	if err := h.chatService.Leave(c.UserContext(), chatID, userID, userName); err != nil {
		return httpx.FromError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
