package realtime

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/mebelplace/mebelplace-backend/internal/cache"
)

// LastSeenWriter persists the only durable presence artifact.
type LastSeenWriter interface {
	TouchLastSeen(ctx context.Context, userID uint, at time.Time) error
}

// Hub is the connection gateway: it maps users to their live connections,
// derives presence from them and owns the room and typing tables.
type Hub struct {
	mu      sync.RWMutex
	clients map[uint]map[string]*Client

	presence *Presence
	rooms    *Rooms
	typing   *Typing

	lastSeen LastSeenWriter
	mirror   *cache.PresenceCache

	wg sync.WaitGroup
}

// NewHub creates a hub. lastSeen and mirror may be nil.
func NewHub(lastSeen LastSeenWriter, mirror *cache.PresenceCache, typingTTL time.Duration) *Hub {
	rooms := NewRooms()
	return &Hub{
		clients:  make(map[uint]map[string]*Client),
		presence: NewPresence(),
		rooms:    rooms,
		typing:   NewTyping(rooms, typingTTL),
		lastSeen: lastSeen,
		mirror:   mirror,
	}
}

// Register binds c to its user. The first connection of a user flips them
// online and tells every other connected user.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	conns, ok := h.clients[c.UserID]
	if !ok {
		conns = make(map[string]*Client)
		h.clients[c.UserID] = conns
	}
	conns[c.ID] = c
	online := h.presence.Connect(c.UserID)
	if online {
		h.broadcastStatusLocked(UserStatusPayload{UserID: c.UserID, IsOnline: true})
	}
	total := len(h.clients)
	h.mu.Unlock()

	if online && h.mirror != nil {
		h.background(func(ctx context.Context) {
			if err := h.mirror.SetOnline(ctx, c.UserID); err != nil {
				log.Printf("Failed to mirror user %d online: %v", c.UserID, err)
			}
		})
	}

	log.Printf("User %d connected to hub (conn: %s, users online: %d)", c.UserID, c.ID, total)
}

// Unregister releases everything c holds. It is safe to call more than once;
// only the first call has any effect, so presence is decremented once.
func (h *Hub) Unregister(c *Client) {
	c.leaveOnce.Do(func() {
		h.typing.ClearConnection(c)
		h.rooms.LeaveAll(c)

		now := time.Now().UTC()
		h.mu.Lock()
		if conns, ok := h.clients[c.UserID]; ok {
			delete(conns, c.ID)
			if len(conns) == 0 {
				delete(h.clients, c.UserID)
			}
		}
		offline := h.presence.Disconnect(c.UserID)
		if offline {
			h.broadcastStatusLocked(UserStatusPayload{UserID: c.UserID, IsOnline: false, LastSeen: &now})
		}
		total := len(h.clients)
		h.mu.Unlock()

		c.Close()

		h.background(func(ctx context.Context) {
			if h.lastSeen != nil {
				if err := h.lastSeen.TouchLastSeen(ctx, c.UserID, now); err != nil {
					log.Printf("Failed to update last_seen for user %d: %v", c.UserID, err)
				}
			}
			if offline && h.mirror != nil {
				if err := h.mirror.SetOffline(ctx, c.UserID); err != nil {
					log.Printf("Failed to mirror user %d offline: %v", c.UserID, err)
				}
			}
		})

		log.Printf("User %d disconnected from hub (conn: %s, users online: %d)", c.UserID, c.ID, total)
	})
}

// broadcastStatusLocked runs under h.mu so transitions for one user are
// observed by peers in the order they happened.
func (h *Hub) broadcastStatusLocked(payload UserStatusPayload) {
	frame, err := Encode(EventUserStatusChanged, payload)
	if err != nil {
		log.Printf("Error encoding status for user %d: %v", payload.UserID, err)
		return
	}
	for userID, conns := range h.clients {
		if userID == payload.UserID {
			continue
		}
		for _, c := range conns {
			c.Enqueue(frame)
		}
	}
}

func (h *Hub) background(fn func(ctx context.Context)) {
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		fn(ctx)
	}()
}

// IsOnline checks if a user has at least one live connection
func (h *Hub) IsOnline(userID uint) bool {
	return h.presence.IsOnline(userID)
}

// Presence resolves the online flag for each id.
func (h *Hub) Presence(ids []uint) map[uint]bool {
	out := make(map[uint]bool, len(ids))
	for _, id := range ids {
		out[id] = h.presence.IsOnline(id)
	}
	return out
}

// GetOnlineUsers returns list of currently connected user IDs
func (h *Hub) GetOnlineUsers() []uint {
	return h.presence.OnlineUsers()
}

// Count returns the number of live connections
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, conns := range h.clients {
		n += len(conns)
	}
	return n
}

// Connections returns a snapshot of userID's live connections.
func (h *Hub) Connections(userID uint) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	conns := h.clients[userID]
	out := make([]*Client, 0, len(conns))
	for _, c := range conns {
		out = append(out, c)
	}
	return out
}

// Join subscribes c to chatID's broadcasts.
func (h *Hub) Join(c *Client, chatID uint) bool {
	return h.rooms.Join(c, chatID)
}

func (h *Hub) IsJoined(c *Client, chatID uint) bool {
	return h.rooms.IsMember(c, chatID)
}

// RemoveUserFromChat unsubscribes all of userID's connections from chatID,
// clearing any typing entry they held there first.
func (h *Hub) RemoveUserFromChat(chatID, userID uint) {
	for _, c := range h.rooms.Members(chatID) {
		if c.UserID == userID {
			h.typing.Stop(c, chatID)
		}
	}
	h.rooms.RemoveUser(chatID, userID)
}

func (h *Hub) StartTyping(c *Client, chatID uint) bool {
	return h.typing.Start(c, chatID)
}

func (h *Hub) StopTyping(c *Client, chatID uint) bool {
	return h.typing.Stop(c, chatID)
}

// SendToUser queues frame on every connection of userID and returns how
// many accepted it.
func (h *Hub) SendToUser(userID uint, frame []byte) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, c := range h.clients[userID] {
		if c.Enqueue(frame) {
			n++
		}
	}
	return n
}

// EmitToUser encodes and sends one event to every connection of userID.
func (h *Hub) EmitToUser(userID uint, eventType string, payload interface{}) (int, error) {
	frame, err := Encode(eventType, payload)
	if err != nil {
		return 0, err
	}
	return h.SendToUser(userID, frame), nil
}

// EmitToChat sends one event to every connection joined to chatID.
func (h *Hub) EmitToChat(chatID uint, eventType string, payload interface{}) (int, error) {
	frame, err := Encode(eventType, payload)
	if err != nil {
		return 0, err
	}
	return h.rooms.Broadcast(chatID, frame, nil), nil
}

// EmitToChatExceptUser is EmitToChat skipping every connection of userID.
func (h *Hub) EmitToChatExceptUser(chatID, userID uint, eventType string, payload interface{}) (int, error) {
	frame, err := Encode(eventType, payload)
	if err != nil {
		return 0, err
	}
	return h.rooms.Broadcast(chatID, frame, func(c *Client) bool { return c.UserID == userID }), nil
}

// Shutdown closes every connection and waits for background presence writes.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.RLock()
	var all []*Client
	for _, conns := range h.clients {
		for _, c := range conns {
			all = append(all, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range all {
		h.Unregister(c)
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wait blocks until queued presence side effects finish. Used by tests.
func (h *Hub) Wait() {
	h.wg.Wait()
}
