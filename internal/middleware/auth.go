package middleware

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/mebelplace/mebelplace-backend/internal/auth"
	"github.com/mebelplace/mebelplace-backend/internal/httpx"
)

// AccessCookie carries the access token for browser clients.
const AccessCookie = "mp_access"

// AuthRequired verifies the bearer credential before the handler runs and
// stores userID, userName and role in Locals. allowQuery also accepts
// ?token= for WebSocket upgrades, where browsers cannot set headers.
func AuthRequired(verifier *auth.TokenVerifier, allowQuery bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		var tokenString string
		if authHeader != "" {
			// Extract token from "Bearer <token>"
			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				return httpx.Unauthorized(c, "invalid_authorization", "Invalid authorization format")
			}
			tokenString = parts[1]
		} else {
			tokenString = c.Cookies(AccessCookie)
		}
		if tokenString == "" && allowQuery {
			tokenString = c.Query("token")
		}

		id, err := verifier.Verify(tokenString)
		if err != nil {
			if errors.Is(err, auth.ErrMissingToken) {
				return httpx.Unauthorized(c, "missing_access_token", "Missing access token")
			}
			return httpx.Unauthorized(c, "invalid_access_token", "Invalid or expired token")
		}

		// Store user info in context
		c.Locals("userID", id.UserID)
		c.Locals("userName", id.Name)
		c.Locals("role", id.Role)

		return c.Next()
	}
}
