package realtime

import (
	"log"
	"sync"
	"time"
)

// DefaultTypingTTL is how long a typing signal lives without a refresh.
const DefaultTypingTTL = 6 * time.Second

type typingKey struct {
	chatID uint
	userID uint
}

type typingEntry struct {
	owner *Client
	timer *time.Timer
}

// Typing holds the in-memory (chat, user) typing table. Entries expire after
// ttl, are removed on an explicit stop and are cleared when the owning
// connection goes away. Every removal emits typing_stop to the room.
type Typing struct {
	mu      sync.Mutex
	ttl     time.Duration
	rooms   *Rooms
	entries map[typingKey]*typingEntry
}

func NewTyping(rooms *Rooms, ttl time.Duration) *Typing {
	if ttl <= 0 {
		ttl = DefaultTypingTTL
	}
	return &Typing{
		ttl:     ttl,
		rooms:   rooms,
		entries: make(map[typingKey]*typingEntry),
	}
}

// Start records or refreshes c's user as typing in chatID. typing_start is
// broadcast only for a new entry; a refresh just extends the expiry.
func (t *Typing) Start(c *Client, chatID uint) bool {
	key := typingKey{chatID: chatID, userID: c.UserID}

	t.mu.Lock()
	defer t.mu.Unlock()

	if e, ok := t.entries[key]; ok {
		e.owner = c
		e.timer.Reset(t.ttl)
		return false
	}

	e := &typingEntry{owner: c}
	e.timer = time.AfterFunc(t.ttl, func() { t.expire(key, e) })
	t.entries[key] = e
	t.emit(EventTypingStart, key, c.UserName)
	return true
}

// Stop removes the entry for c's user in chatID, if any.
func (t *Typing) Stop(c *Client, chatID uint) bool {
	key := typingKey{chatID: chatID, userID: c.UserID}

	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[key]
	if !ok {
		return false
	}
	t.removeLocked(key, e)
	return true
}

// ClearConnection removes every entry owned by c and returns the affected
// chats. Called on disconnect before the connection leaves its rooms.
func (t *Typing) ClearConnection(c *Client) []uint {
	t.mu.Lock()
	defer t.mu.Unlock()

	var chats []uint
	for key, e := range t.entries {
		if e.owner != c {
			continue
		}
		t.removeLocked(key, e)
		chats = append(chats, key.chatID)
	}
	return chats
}

// IsTyping reports whether userID currently has a live entry in chatID.
func (t *Typing) IsTyping(chatID, userID uint) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.entries[typingKey{chatID: chatID, userID: userID}]
	return ok
}

func (t *Typing) expire(key typingKey, e *typingEntry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	// A stop or a newer entry may have won the race with the timer.
	if cur, ok := t.entries[key]; !ok || cur != e {
		return
	}
	t.removeLocked(key, e)
}

func (t *Typing) removeLocked(key typingKey, e *typingEntry) {
	e.timer.Stop()
	delete(t.entries, key)
	t.emit(EventTypingStop, key, e.owner.UserName)
}

// emit runs under t.mu so start and stop for one key reach peers in order.
func (t *Typing) emit(eventType string, key typingKey, userName string) {
	frame, err := Encode(eventType, TypingPayload{ChatID: key.chatID, UserID: key.userID, UserName: userName})
	if err != nil {
		log.Printf("Error encoding %s for chat %d: %v", eventType, key.chatID, err)
		return
	}
	t.rooms.Broadcast(key.chatID, frame, func(c *Client) bool {
		return c.UserID == key.userID
	})
}
