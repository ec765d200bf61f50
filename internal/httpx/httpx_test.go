package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/mebelplace/mebelplace-backend/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromErrorMapsKinds(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		status   int
		code     string
		hideBody bool
	}{
		{"authentication", apperr.Authentication("missing_access_token", "Missing access token"), 401, "missing_access_token", false},
		{"not a participant", fmt.Errorf("send: %w", apperr.ErrNotAParticipant), 403, "not_a_participant", false},
		{"not found", apperr.ErrChatNotFound, 404, "chat_not_found", false},
		{"conflict", apperr.Conflict("order_already_accepted", "taken"), 409, "order_already_accepted", false},
		{"validation", apperr.Validation("empty_content", "Content is required"), 400, "empty_content", false},
		{"kind only", apperr.ErrConflict, 409, "conflict", false},
		{"internal", errors.New("pq: connection refused"), 500, "internal_error", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := fiber.New()
			app.Get("/", func(c *fiber.Ctx) error { return FromError(c, tt.err) })

			resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)

			raw, _ := io.ReadAll(resp.Body)
			var body ErrorResponse
			require.NoError(t, json.Unmarshal(raw, &body))
			assert.Equal(t, tt.code, body.Code)
			if tt.hideBody {
				assert.NotContains(t, body.Error, "pq:")
			}
		})
	}
}
