package handlers

import (
	"errors"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/mebelplace/mebelplace-backend/internal/httpx"
	"github.com/mebelplace/mebelplace-backend/internal/service"
)

type MessageHandler struct {
	messageService *service.MessageService
	mediaService   *service.MediaService
}

func NewMessageHandler(messageService *service.MessageService, mediaService *service.MediaService) *MessageHandler {
	return &MessageHandler{
		messageService: messageService,
		mediaService:   mediaService,
	}
}

// SendMessage posts into a chat over REST. A multipart body with a "file"
// field becomes a file message.
func (h *MessageHandler) SendMessage(c *fiber.Ctx) error {
	userID, err := httpx.LocalUint(c, "userID")
	if err != nil {
		return httpx.Unauthorized(c, "unauthorized", "Unauthorized")
	}
	chatID, ok := paramID(c, "id")
	if !ok {
		return httpx.BadRequest(c, "invalid_chat_id", "Invalid chat id")
	}

	if strings.HasPrefix(string(c.Request().Header.ContentType()), fiber.MIMEMultipartForm) {
		return h.sendFile(c, userID, chatID)
	}

	var input service.SendMessageInput
	if err := c.BodyParser(&input); err != nil {
		return httpx.BadRequest(c, "invalid_request_body", "Invalid request body")
	}
	input.ChatID = chatID

	message, err := h.messageService.Send(c.UserContext(), userID, input)
	if err != nil {
		return httpx.FromError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(message)
}

func (h *MessageHandler) sendFile(c *fiber.Ctx, userID, chatID uint) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return httpx.BadRequest(c, "missing_file", "file is required")
	}
	f, err := fh.Open()
	if err != nil {
		return httpx.BadRequest(c, "invalid_file", "Could not read file")
	}
	defer f.Close()

	upload := service.Upload{
		Body:        f,
		FileName:    fh.Filename,
		Size:        fh.Size,
		ContentType: fh.Header.Get("Content-Type"),
		Caption:     c.FormValue("content"),
	}
	if raw := c.FormValue("replyTo"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			return httpx.BadRequest(c, "invalid_reply_to", "Invalid replyTo")
		}
		replyTo := uint(id)
		upload.ReplyTo = &replyTo
	}

	message, err := h.mediaService.SendFile(c.UserContext(), userID, chatID, upload)
	if err != nil {
		if errors.Is(err, service.ErrStorageNotConfigured) {
			return httpx.ServiceUnavailable(c, "storage_not_configured", "Storage not configured")
		}
		return httpx.FromError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(message)
}

func (h *MessageHandler) GetMessages(c *fiber.Ctx) error {
	userID, err := httpx.LocalUint(c, "userID")
	if err != nil {
		return httpx.Unauthorized(c, "unauthorized", "Unauthorized")
	}
	chatID, ok := paramID(c, "id")
	if !ok {
		return httpx.BadRequest(c, "invalid_chat_id", "Invalid chat id")
	}

	var cursor uint
	if cursorStr := c.Query("cursor"); cursorStr != "" {
		v, err := strconv.ParseUint(cursorStr, 10, 32)
		if err != nil {
			return httpx.BadRequest(c, "invalid_cursor", "Invalid cursor")
		}
		cursor = uint(v)
	}
	limit := queryInt(c, "limit", service.DefaultHistoryLimit)

	page, err := h.messageService.History(c.UserContext(), chatID, userID, cursor, limit)
	if err != nil {
		return httpx.FromError(c, err)
	}
	return c.JSON(page)
}

func (h *MessageHandler) MarkRead(c *fiber.Ctx) error {
	userID, err := httpx.LocalUint(c, "userID")
	if err != nil {
		return httpx.Unauthorized(c, "unauthorized", "Unauthorized")
	}
	chatID, ok := paramID(c, "id")
	if !ok {
		return httpx.BadRequest(c, "invalid_chat_id", "Invalid chat id")
	}

	receipt, err := h.messageService.MarkRead(c.UserContext(), chatID, userID)
	if err != nil {
		return httpx.FromError(c, err)
	}
	return c.JSON(receipt)
}

func (h *MessageHandler) UnreadCount(c *fiber.Ctx) error {
	userID, err := httpx.LocalUint(c, "userID")
	if err != nil {
		return httpx.Unauthorized(c, "unauthorized", "Unauthorized")
	}
	chatID, ok := paramID(c, "id")
	if !ok {
		return httpx.BadRequest(c, "invalid_chat_id", "Invalid chat id")
	}

	n, err := h.messageService.UnreadCount(c.UserContext(), chatID, userID)
	if err != nil {
		return httpx.FromError(c, err)
	}
	return c.JSON(fiber.Map{"chat_id": chatID, "unread_count": n})
}
