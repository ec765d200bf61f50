package httpx

import (
	"fmt"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/mebelplace/mebelplace-backend/internal/apperr"
)

type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

func requestID(c *fiber.Ctx) string {
	if v := c.Locals("requestid"); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func Error(c *fiber.Ctx, status int, code string, message string) error {
	if message == "" {
		message = "Request failed"
	}
	return c.Status(status).JSON(ErrorResponse{
		Error:     message,
		Code:      code,
		RequestID: requestID(c),
	})
}

func BadRequest(c *fiber.Ctx, code string, message string) error {
	return Error(c, fiber.StatusBadRequest, code, message)
}

func Unauthorized(c *fiber.Ctx, code string, message string) error {
	return Error(c, fiber.StatusUnauthorized, code, message)
}

func Forbidden(c *fiber.Ctx, code string, message string) error {
	return Error(c, fiber.StatusForbidden, code, message)
}

func NotFound(c *fiber.Ctx, code string, message string) error {
	return Error(c, fiber.StatusNotFound, code, message)
}

func Conflict(c *fiber.Ctx, code string, message string) error {
	return Error(c, fiber.StatusConflict, code, message)
}

func ServiceUnavailable(c *fiber.Ctx, code string, message string) error {
	return Error(c, fiber.StatusServiceUnavailable, code, message)
}

func Internal(c *fiber.Ctx, code string) error {
	return Error(c, fiber.StatusInternalServerError, code, "Internal server error")
}

// FromError writes the envelope for err by its apperr kind. Anything without
// a kind is logged and reported as a plain 500.
func FromError(c *fiber.Ctx, err error) error {
	e, ok := apperr.As(err)
	if !ok || e.Kind == apperr.KindInternal {
		log.Printf("%s %s failed (request %s): %v", c.Method(), c.Path(), requestID(c), err)
		return Internal(c, "internal_error")
	}
	code := e.Code
	if code == "" {
		code = e.Kind.String()
	}
	switch e.Kind {
	case apperr.KindAuthentication:
		return Unauthorized(c, code, e.Message)
	case apperr.KindAuthorization:
		return Forbidden(c, code, e.Message)
	case apperr.KindNotFound:
		return NotFound(c, code, e.Message)
	case apperr.KindConflict:
		return Conflict(c, code, e.Message)
	default:
		return BadRequest(c, code, e.Message)
	}
}

func LocalUint(c *fiber.Ctx, key string) (uint, error) {
	v := c.Locals(key)
	if v == nil {
		return 0, fmt.Errorf("missing local %s", key)
	}
	u, ok := v.(uint)
	if !ok {
		return 0, fmt.Errorf("invalid local %s", key)
	}
	return u, nil
}
