package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/mebelplace/mebelplace-backend/internal/auth"
	"github.com/mebelplace/mebelplace-backend/internal/httpx"
	"github.com/mebelplace/mebelplace-backend/internal/middleware"
	"github.com/mebelplace/mebelplace-backend/internal/models"
	"github.com/mebelplace/mebelplace-backend/internal/realtime"
	"github.com/mebelplace/mebelplace-backend/internal/repository"
	"github.com/mebelplace/mebelplace-backend/internal/service"
	"github.com/mebelplace/mebelplace-backend/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	*testutil.TestHelper
	app    *fiber.App
	hub    *realtime.Hub
	orders *service.OrderService
}

// newTestServer mounts the REST routes on a sqlite-backed stack without
// Redis or object storage.
func newTestServer(t *testing.T) *testServer {
	t.Helper()
	h := testutil.NewTestHelper(t)

	userRepo := repository.NewUserRepository(h.DB)
	chatRepo := repository.NewChatRepository(h.DB)
	hub := realtime.NewHub(userRepo, nil, time.Second)

	messages := service.NewMessageService(repository.NewMessageRepository(h.DB), chatRepo, nil, hub, service.MessageServiceConfig{})
	chats := service.NewChatService(chatRepo, userRepo, nil, hub)
	notifications := service.NewNotificationService(repository.NewPendingEventRepository(h.DB), hub)
	orders := service.NewOrderService(repository.NewOrderRepository(h.DB), repository.NewTransactor(h.DB), notifications, nil)
	media := service.NewMediaService(nil, chatRepo, messages)

	chatHandler := NewChatHandler(chats)
	messageHandler := NewMessageHandler(messages, media)
	orderHandler := NewOrderHandler(orders)
	userHandler := NewUserHandler(userRepo, hub)

	app := fiber.New()
	api := app.Group("/api", middleware.AuthRequired(auth.NewTokenVerifier(testutil.TestJWTSecret), false))
	api.Get("/chat/list", chatHandler.List)
	api.Post("/chat/private", chatHandler.OpenPrivate)
	api.Get("/chat/:id", chatHandler.Get)
	api.Get("/chat/:id/messages", messageHandler.GetMessages)
	api.Post("/chat/:id/message", messageHandler.SendMessage)
	api.Put("/chat/:id/read", messageHandler.MarkRead)
	api.Get("/chat/:id/unread", messageHandler.UnreadCount)
	api.Post("/chat/:id/leave", chatHandler.Leave)
	api.Post("/orders/:id/accept", middleware.RequireRole("client", "admin"), orderHandler.AcceptResponse)
	api.Get("/presence", userHandler.Presence)
	api.Get("/presence/online", userHandler.OnlineUsers)
	api.Get("/users/:id/status", userHandler.GetUserStatus)

	t.Cleanup(func() {
		orders.Wait()
		messages.Close()
		hub.Wait()
	})
	return &testServer{TestHelper: h, app: app, hub: hub, orders: orders}
}

func (s *testServer) do(t *testing.T, method, path string, user *models.User, body interface{}) (int, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != nil {
		req.Header.Set("Authorization", "Bearer "+s.Token(user))
	}
	return s.send(t, req)
}

func (s *testServer) send(t *testing.T, req *http.Request) (int, []byte) {
	t.Helper()
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, raw
}

func errorCode(t *testing.T, raw []byte) string {
	t.Helper()
	var env httpx.ErrorResponse
	require.NoError(t, json.Unmarshal(raw, &env), string(raw))
	return env.Code
}

func TestAcceptResponseRoute(t *testing.T) {
	s := newTestServer(t)
	client := s.CreateUser("client1", models.RoleClient)
	master := s.CreateUser("master1", models.RoleMaster)
	rival := s.CreateUser("master2", models.RoleMaster)
	order, responses := s.CreateOrder(client.ID, "Kitchen cabinets", master.ID, rival.ID)

	type acceptBody struct {
		Order       models.Order `json:"order"`
		Chat        models.Chat  `json:"chat"`
		ChatCreated bool         `json:"chat_created"`
	}

	path := fmt.Sprintf("/api/orders/%d/accept", order.ID)
	status, raw := s.do(t, http.MethodPost, path, client, fiber.Map{"responseId": responses[0].ID})
	require.Equal(t, http.StatusOK, status, string(raw))

	var res acceptBody
	require.NoError(t, json.Unmarshal(raw, &res))
	assert.Equal(t, models.OrderInProgress, res.Order.Status)
	require.NotNil(t, res.Order.MasterID)
	assert.Equal(t, master.ID, *res.Order.MasterID)
	assert.True(t, res.ChatCreated)
	assert.Equal(t, models.ChatOrder, res.Chat.Type)

	// Retrying the same acceptance converges on the same chat.
	status, raw = s.do(t, http.MethodPost, path, client, fiber.Map{"responseId": responses[0].ID})
	require.Equal(t, http.StatusOK, status, string(raw))
	var retry acceptBody
	require.NoError(t, json.Unmarshal(raw, &retry))
	assert.Equal(t, res.Chat.ID, retry.Chat.ID)
	assert.False(t, retry.ChatCreated)

	status, raw = s.do(t, http.MethodPost, path, client, fiber.Map{"responseId": responses[1].ID})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "order_already_accepted", errorCode(t, raw))
}

func TestAcceptResponseRouteRejects(t *testing.T) {
	s := newTestServer(t)
	client := s.CreateUser("client1", models.RoleClient)
	other := s.CreateUser("client2", models.RoleClient)
	master := s.CreateUser("master1", models.RoleMaster)
	order, responses := s.CreateOrder(client.ID, "Wardrobe", master.ID)
	path := fmt.Sprintf("/api/orders/%d/accept", order.ID)

	tests := []struct {
		name   string
		path   string
		user   *models.User
		body   interface{}
		status int
		code   string
	}{
		{"no token", path, nil, fiber.Map{"responseId": responses[0].ID}, http.StatusUnauthorized, "missing_access_token"},
		{"master role", path, master, fiber.Map{"responseId": responses[0].ID}, http.StatusForbidden, "forbidden"},
		{"not the owner", path, other, fiber.Map{"responseId": responses[0].ID}, http.StatusForbidden, "not_order_owner"},
		{"missing response id", path, client, fiber.Map{}, http.StatusBadRequest, "invalid_request_body"},
		{"unknown order", "/api/orders/999/accept", client, fiber.Map{"responseId": responses[0].ID}, http.StatusNotFound, "order_not_found"},
		{"bad order id", "/api/orders/abc/accept", client, fiber.Map{"responseId": responses[0].ID}, http.StatusBadRequest, "invalid_order_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, raw := s.do(t, http.MethodPost, tt.path, tt.user, tt.body)
			assert.Equal(t, tt.status, status, string(raw))
			assert.Equal(t, tt.code, errorCode(t, raw))
		})
	}
}

func TestSendHistoryAndReadRoutes(t *testing.T) {
	s := newTestServer(t)
	alice := s.CreateUser("alice", models.RoleClient)
	bob := s.CreateUser("bob", models.RoleMaster)
	chat := s.CreateChat(models.ChatPrivate, alice.ID, alice.ID, bob.ID)
	base := "/api/chat/" + strconv.FormatUint(uint64(chat.ID), 10)

	for _, text := range []string{"hello", "are you free on monday?"} {
		status, raw := s.do(t, http.MethodPost, base+"/message", alice, fiber.Map{"content": text})
		require.Equal(t, http.StatusCreated, status, string(raw))
	}

	status, raw := s.do(t, http.MethodGet, base+"/unread", bob, nil)
	require.Equal(t, http.StatusOK, status)
	var unread struct {
		UnreadCount int64 `json:"unread_count"`
	}
	require.NoError(t, json.Unmarshal(raw, &unread))
	assert.Equal(t, int64(2), unread.UnreadCount)

	status, raw = s.do(t, http.MethodGet, base+"/messages?limit=1", bob, nil)
	require.Equal(t, http.StatusOK, status)
	var page service.HistoryPage
	require.NoError(t, json.Unmarshal(raw, &page))
	require.Len(t, page.Messages, 1)
	assert.Equal(t, "are you free on monday?", page.Messages[0].Content)
	assert.NotNil(t, page.NextCursor)

	status, raw = s.do(t, http.MethodPut, base+"/read", bob, nil)
	require.Equal(t, http.StatusOK, status, string(raw))
	var receipt service.ReadReceipt
	require.NoError(t, json.Unmarshal(raw, &receipt))
	assert.Len(t, receipt.MessageIDs, 2)

	_, raw = s.do(t, http.MethodGet, base+"/unread", bob, nil)
	require.NoError(t, json.Unmarshal(raw, &unread))
	assert.Equal(t, int64(0), unread.UnreadCount)
}

func TestChatRoutesRequireParticipation(t *testing.T) {
	s := newTestServer(t)
	alice := s.CreateUser("alice", models.RoleClient)
	bob := s.CreateUser("bob", models.RoleMaster)
	eve := s.CreateUser("eve", models.RoleClient)
	chat := s.CreateChat(models.ChatPrivate, alice.ID, alice.ID, bob.ID)
	base := "/api/chat/" + strconv.FormatUint(uint64(chat.ID), 10)

	status, raw := s.do(t, http.MethodPost, base+"/message", eve, fiber.Map{"content": "hi"})
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "not_a_participant", errorCode(t, raw))

	var count int64
	require.NoError(t, s.DB.Model(&models.Message{}).Count(&count).Error)
	assert.Zero(t, count)

	status, _ = s.do(t, http.MethodGet, base+"/messages", eve, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, raw = s.do(t, http.MethodGet, "/api/chat/999", alice, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "chat_not_found", errorCode(t, raw))

	status, raw = s.do(t, http.MethodPost, base+"/message", alice, fiber.Map{"content": "   "})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "empty_content", errorCode(t, raw))
}

func TestOpenPrivateAndLeaveRoutes(t *testing.T) {
	s := newTestServer(t)
	alice := s.CreateUser("alice", models.RoleClient)
	bob := s.CreateUser("bob", models.RoleMaster)

	status, raw := s.do(t, http.MethodPost, "/api/chat/private", alice, fiber.Map{"userId": bob.ID})
	require.Equal(t, http.StatusCreated, status, string(raw))
	var opened struct {
		Chat    models.Chat `json:"chat"`
		Created bool        `json:"created"`
	}
	require.NoError(t, json.Unmarshal(raw, &opened))
	assert.True(t, opened.Created)

	status, raw = s.do(t, http.MethodPost, "/api/chat/private", bob, fiber.Map{"userId": alice.ID})
	require.Equal(t, http.StatusOK, status, string(raw))
	var again struct {
		Chat models.Chat `json:"chat"`
	}
	require.NoError(t, json.Unmarshal(raw, &again))
	assert.Equal(t, opened.Chat.ID, again.Chat.ID)

	status, raw = s.do(t, http.MethodGet, "/api/chat/list", alice, nil)
	require.Equal(t, http.StatusOK, status)
	var list struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(raw, &list))
	assert.Equal(t, 1, list.Count)

	leave := fmt.Sprintf("/api/chat/%d/leave", opened.Chat.ID)
	status, _ = s.do(t, http.MethodPost, leave, alice, nil)
	assert.Equal(t, http.StatusNoContent, status)

	status, _ = s.do(t, http.MethodPost, leave, alice, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, raw = s.do(t, http.MethodPost, "/api/chat/private", alice, fiber.Map{"userId": alice.ID})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "self_chat", errorCode(t, raw))
}

func TestFileUploadWithoutStorage(t *testing.T) {
	s := newTestServer(t)
	alice := s.CreateUser("alice", models.RoleClient)
	bob := s.CreateUser("bob", models.RoleMaster)
	chat := s.CreateChat(models.ChatPrivate, alice.ID, alice.ID, bob.ID)

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", "plan.pdf")
	require.NoError(t, err)
	_, err = part.Write([]byte("%PDF-1.4 fake"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/api/chat/%d/message", chat.ID), &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+s.Token(alice))

	status, raw := s.send(t, req)
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, "storage_not_configured", errorCode(t, raw))
}

func TestPresenceRoutes(t *testing.T) {
	s := newTestServer(t)
	alice := s.CreateUser("alice", models.RoleClient)
	bob := s.CreateUser("bob", models.RoleMaster)

	conn := realtime.NewClient(bob.ID, "bob", 8)
	s.hub.Register(conn)

	status, raw := s.do(t, http.MethodGet, fmt.Sprintf("/api/presence?ids=%d,%d", alice.ID, bob.ID), alice, nil)
	require.Equal(t, http.StatusOK, status, string(raw))
	var presence map[string]bool
	require.NoError(t, json.Unmarshal(raw, &presence))
	assert.False(t, presence[strconv.FormatUint(uint64(alice.ID), 10)])
	assert.True(t, presence[strconv.FormatUint(uint64(bob.ID), 10)])

	status, raw = s.do(t, http.MethodGet, fmt.Sprintf("/api/users/%d/status", bob.ID), alice, nil)
	require.Equal(t, http.StatusOK, status)
	var state models.PresenceState
	require.NoError(t, json.Unmarshal(raw, &state))
	assert.True(t, state.IsOnline)

	status, raw = s.do(t, http.MethodGet, "/api/presence?ids=x", alice, nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "invalid_ids", errorCode(t, raw))

	status, _ = s.do(t, http.MethodGet, "/api/users/999/status", alice, nil)
	assert.Equal(t, http.StatusNotFound, status)

	s.hub.Unregister(conn)
	s.hub.Wait()

	_, raw = s.do(t, http.MethodGet, fmt.Sprintf("/api/users/%d/status", bob.ID), alice, nil)
	require.NoError(t, json.Unmarshal(raw, &state))
	assert.False(t, state.IsOnline)
	assert.NotNil(t, state.LastSeen)
}
