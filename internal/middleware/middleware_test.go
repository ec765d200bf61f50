package middleware

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/mebelplace/mebelplace-backend/internal/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "middleware-test-secret"

func token(t *testing.T, role string) string {
	t.Helper()
	tok, err := auth.NewTokenVerifier(secret).Issue(auth.Identity{UserID: 5, Name: "Dana", Role: role}, time.Hour)
	require.NoError(t, err)
	return tok
}

func authApp(allowQuery bool) *fiber.App {
	app := fiber.New()
	app.Get("/me", AuthRequired(auth.NewTokenVerifier(secret), allowQuery), func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"id": c.Locals("userID"), "name": c.Locals("userName")})
	})
	return app
}

func TestAuthRequired(t *testing.T) {
	good := token(t, "client")

	tests := []struct {
		name       string
		allowQuery bool
		header     string
		cookie     string
		query      string
		want       int
	}{
		{name: "bearer header", header: "Bearer " + good, want: 200},
		{name: "cookie", cookie: good, want: 200},
		{name: "missing", want: 401},
		{name: "malformed header", header: "Token " + good, want: 401},
		{name: "bad token", header: "Bearer nope", want: 401},
		{name: "query ignored on REST", query: good, want: 401},
		{name: "query on upgrade route", allowQuery: true, query: good, want: 200},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := "/me"
			if tt.query != "" {
				target += "?token=" + tt.query
			}
			req := httptest.NewRequest("GET", target, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			if tt.cookie != "" {
				req.Header.Set("Cookie", AccessCookie+"="+tt.cookie)
			}
			resp, err := authApp(tt.allowQuery).Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestRequireRole(t *testing.T) {
	app := fiber.New()
	app.Post("/accept",
		AuthRequired(auth.NewTokenVerifier(secret), false),
		RequireRole("client", "admin"),
		func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusNoContent) },
	)

	for role, want := range map[string]int{"client": 204, "ADMIN": 204, "master": 403, "": 403} {
		req := httptest.NewRequest("POST", "/accept", nil)
		req.Header.Set("Authorization", "Bearer "+token(t, role))
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, want, resp.StatusCode, "role %q", role)
	}
}

func TestCSRFRequired(t *testing.T) {
	handler := func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusNoContent) }

	tests := []struct {
		name   string
		mode   string
		origin string
		cookie string
		header string
		want   int
	}{
		{name: "no origin passes", mode: "token", want: 204},
		{name: "foreign origin", mode: "origin", origin: "https://evil.example", want: 403},
		{name: "allowed origin", mode: "origin", origin: "https://mebelplace.com.kz", want: 204},
		{name: "token missing", mode: "token", origin: "https://mebelplace.com.kz", want: 403},
		{name: "token mismatch", mode: "token", origin: "https://mebelplace.com.kz", cookie: "a", header: "b", want: 403},
		{name: "token match", mode: "token", origin: "https://mebelplace.com.kz", cookie: "a", header: "a", want: 204},
		{name: "off", mode: "off", origin: "https://evil.example", want: 204},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := fiber.New()
			app.Post("/x", CSRFRequired(tt.mode, "https://mebelplace.com.kz"), handler)
			req := httptest.NewRequest("POST", "/x", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if tt.cookie != "" {
				req.Header.Set("Cookie", CSRFCookie+"="+tt.cookie)
			}
			if tt.header != "" {
				req.Header.Set(CSRFHeader, tt.header)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestOriginAllowed(t *testing.T) {
	app := fiber.New()
	app.Get("/ws", OriginAllowed("https://mebelplace.com.kz/"), func(c *fiber.Ctx) error { return c.SendStatus(204) })

	for origin, want := range map[string]int{"": 204, "https://mebelplace.com.kz": 204, "https://evil.example": 403} {
		req := httptest.NewRequest("GET", "/ws", nil)
		if origin != "" {
			req.Header.Set("Origin", origin)
		}
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, want, resp.StatusCode, origin)
	}
}
