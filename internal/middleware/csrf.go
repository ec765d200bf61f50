package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/mebelplace/mebelplace-backend/internal/httpx"
)

const (
	CSRFCookie = "mp_csrf"
	CSRFHeader = "X-MP-CSRF"
)

// CSRFRequired protects cookie-authenticated browser requests.
// Modes (CSRF_MODE):
// - token: require X-MP-CSRF header to match mp_csrf cookie
// - origin: only enforce Origin allow-list (default)
// - off: disable checks
func CSRFRequired(mode string, allowedOriginsCSV string) fiber.Handler {
	mode = strings.ToLower(strings.TrimSpace(mode))
	if mode == "" {
		mode = "origin"
	}
	allowedOrigins := splitCSV(strings.TrimSpace(allowedOriginsCSV))

	return func(c *fiber.Ctx) error {
		if mode == "off" {
			return c.Next()
		}

		switch c.Method() {
		case fiber.MethodGet, fiber.MethodHead, fiber.MethodOptions:
			return c.Next()
		}

		origin := strings.TrimSpace(c.Get("Origin"))
		if origin == "" {
			// Non-browser clients typically have no Origin; allow.
			return c.Next()
		}

		if len(allowedOrigins) > 0 && !originAllowed(origin, allowedOrigins) {
			return httpx.Forbidden(c, "forbidden_origin", "Origin not allowed")
		}

		if mode == "origin" {
			return c.Next()
		}

		csrfCookie := c.Cookies(CSRFCookie)
		csrfHeader := c.Get(CSRFHeader)
		if csrfCookie == "" || csrfHeader == "" {
			return httpx.Forbidden(c, "csrf_required", "Missing CSRF token")
		}

		if subtle.ConstantTimeCompare([]byte(csrfCookie), []byte(csrfHeader)) != 1 {
			return httpx.Forbidden(c, "csrf_invalid", "Invalid CSRF token")
		}

		return c.Next()
	}
}
