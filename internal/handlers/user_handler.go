package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/mebelplace/mebelplace-backend/internal/httpx"
	"github.com/mebelplace/mebelplace-backend/internal/models"
	"github.com/mebelplace/mebelplace-backend/internal/repository"
	"github.com/mebelplace/mebelplace-backend/internal/validation"
	"gorm.io/gorm"
)

// PresenceReader is the live-connection view of the realtime hub.
type PresenceReader interface {
	Presence(ids []uint) map[uint]bool
	IsOnline(userID uint) bool
	GetOnlineUsers() []uint
}

type UserHandler struct {
	userRepo repository.UserRepositoryInterface
	presence PresenceReader
}

func NewUserHandler(userRepo repository.UserRepositoryInterface, presence PresenceReader) *UserHandler {
	return &UserHandler{userRepo: userRepo, presence: presence}
}

// Presence answers GET /presence?ids=1,2,3 with {"1": true, ...}.
func (h *UserHandler) Presence(c *fiber.Ctx) error {
	ids, err := validation.ParseIDList(c.Query("ids"))
	if err != nil {
		return httpx.FromError(c, err)
	}
	return c.JSON(h.presence.Presence(ids))
}

// OnlineUsers lists every user with a live connection.
func (h *UserHandler) OnlineUsers(c *fiber.Ctx) error {
	users := h.presence.GetOnlineUsers()
	return c.JSON(fiber.Map{"users": users, "count": len(users)})
}

// GetUserStatus returns the derived online flag with the persisted last_seen.
func (h *UserHandler) GetUserStatus(c *fiber.Ctx) error {
	userID, ok := paramID(c, "id")
	if !ok {
		return httpx.BadRequest(c, "invalid_user_id", "Invalid user id")
	}

	user, err := h.userRepo.FindByID(c.UserContext(), userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return httpx.NotFound(c, "user_not_found", "User not found")
		}
		return httpx.FromError(c, err)
	}

	return c.JSON(models.PresenceState{
		UserID:   user.ID,
		IsOnline: h.presence.IsOnline(user.ID),
		LastSeen: user.LastSeen,
	})
}
