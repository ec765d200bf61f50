package handlers

import (
	"context"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/mebelplace/mebelplace-backend/internal/handlers/ws"
	"github.com/mebelplace/mebelplace-backend/internal/realtime"
	"github.com/mebelplace/mebelplace-backend/internal/service"
)

const (
	writeWait       = 10 * time.Second
	maxInboundFrame = 64 * 1024
	// Outbound frames above this size are gzipped for clients that opt in.
	compressThreshold = 512
)

type WebSocketConfig struct {
	PingInterval time.Duration
	PongTimeout  time.Duration
	SendBuffer   int
	Debug        bool
}

type WebSocketHandler struct {
	hub                 *realtime.Hub
	messageService      *service.MessageService
	chatService         *service.ChatService
	notificationService *service.NotificationService
	cfg                 WebSocketConfig
}

func NewWebSocketHandler(hub *realtime.Hub, messageService *service.MessageService, chatService *service.ChatService, notificationService *service.NotificationService, cfg WebSocketConfig) *WebSocketHandler {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.PongTimeout <= cfg.PingInterval {
		cfg.PongTimeout = 3 * cfg.PingInterval
	}
	return &WebSocketHandler{
		hub:                 hub,
		messageService:      messageService,
		chatService:         chatService,
		notificationService: notificationService,
		cfg:                 cfg,
	}
}

// Upgrade runs after authentication and rejects plain HTTP requests.
func (h *WebSocketHandler) Upgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

func (h *WebSocketHandler) HandleWebSocket(c *websocket.Conn) {
	userID, ok := c.Locals("userID").(uint)
	if !ok || userID == 0 {
		// Auth middleware guarantees this; refuse rather than run anonymous.
		_ = c.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "unauthenticated"),
			time.Now().Add(writeWait))
		return
	}
	userName, _ := c.Locals("userName").(string)

	// Check if client supports gzip compression (via query param or header)
	supportsGzip := c.Query("gzip") == "1" || c.Headers("X-Supports-Gzip") == "1"

	client := realtime.NewClient(userID, userName, h.cfg.SendBuffer)
	h.hub.Register(client)

	ctx, cancel := context.WithCancel(context.Background())
	writerDone := make(chan struct{})
	go h.writePump(c, client, supportsGzip, writerDone)

	defer func() {
		cancel()
		h.hub.Unregister(client)
		<-writerDone
		log.Printf("User %d disconnected from WebSocket (conn %s)", userID, client.ID)
	}()

	// Flush queued notifications after the connection is live
	go func() {
		n, err := h.notificationService.FlushPending(ctx, userID, client)
		if err != nil {
			log.Printf("Failed to flush pending events for user %d: %v", userID, err)
			return
		}
		if n > 0 {
			log.Printf("Flushed %d pending events to user %d", n, userID)
		}
	}()

	c.SetReadLimit(maxInboundFrame)
	_ = c.SetReadDeadline(time.Now().Add(h.cfg.PongTimeout))
	c.SetPongHandler(func(string) error {
		return c.SetReadDeadline(time.Now().Add(h.cfg.PongTimeout))
	})

	log.Printf("User %d connected via WebSocket (conn %s, gzip: %v)", userID, client.ID, supportsGzip)

	msgCtx := &ws.MessageContext{
		Ctx:      ctx,
		Client:   client,
		Hub:      h.hub,
		Messages: h.messageService,
		Chats:    h.chatService,
	}

	// Handle incoming messages
	for {
		messageType, messageBytes, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("Error reading message from user %d: %v", userID, err)
			}
			break
		}
		// Any inbound frame proves the peer is alive.
		_ = c.SetReadDeadline(time.Now().Add(h.cfg.PongTimeout))

		if h.cfg.Debug {
			log.Printf("ws_recv user_id=%d conn=%s frame_type=%d size=%d", userID, client.ID, messageType, len(messageBytes))
		}

		// Decompress if binary message (gzip compressed)
		if messageType == websocket.BinaryMessage {
			decompressed, err := ws.Decompress(messageBytes)
			if err != nil {
				ws.SendErrorCode(client, "decompression_failed", "Failed to decompress message")
				continue
			}
			messageBytes = decompressed
		}

		msg, err := ws.Deserialize(messageBytes)
		if err != nil {
			ws.SendErrorCode(client, "invalid_message", "Invalid message format")
			continue
		}

		if err := msg.Process(msgCtx); err != nil {
			ws.SendError(client, err)
		}
	}
}

// writePump is the only goroutine that writes to the socket. It exits when
// the client is closed, which also unblocks the reader.
func (h *WebSocketHandler) writePump(c *websocket.Conn, client *realtime.Client, supportsGzip bool, done chan<- struct{}) {
	ticker := time.NewTicker(h.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.Close()
		close(done)
	}()

	for {
		select {
		case frame := <-client.Send():
			frameType := websocket.TextMessage
			if supportsGzip && len(frame) > compressThreshold {
				if compressed, err := ws.Compress(frame); err == nil && len(compressed) < len(frame) {
					frame = compressed
					frameType = websocket.BinaryMessage
				}
			}
			_ = c.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.WriteMessage(frameType, frame); err != nil {
				log.Printf("Error sending to user %d (conn %s): %v", client.UserID, client.ID, err)
				client.Close()
				return
			}
			if h.cfg.Debug {
				log.Printf("ws_send user_id=%d conn=%s size=%d", client.UserID, client.ID, len(frame))
			}
		case <-ticker.C:
			if err := c.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				log.Printf("Ping failed for user %d (conn %s): %v", client.UserID, client.ID, err)
				client.Close()
				return
			}
		case <-client.Done():
			_ = c.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}
