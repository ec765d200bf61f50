package realtime

import (
	"sync"

	"github.com/google/uuid"
)

// DefaultSendBuffer is the per-connection outbound queue length.
const DefaultSendBuffer = 256

// Client is one authenticated live connection. Frames are queued on a
// bounded channel and written by a single writer goroutine owned by the
// transport, so producers never block on a slow socket.
type Client struct {
	ID       string
	UserID   uint
	UserName string

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	leaveOnce sync.Once

	mu    sync.Mutex
	rooms map[uint]struct{}
}

func NewClient(userID uint, userName string, buffer int) *Client {
	if buffer <= 0 {
		buffer = DefaultSendBuffer
	}
	return &Client{
		ID:       uuid.NewString(),
		UserID:   userID,
		UserName: userName,
		send:     make(chan []byte, buffer),
		done:     make(chan struct{}),
		rooms:    make(map[uint]struct{}),
	}
}

// Enqueue queues a frame without blocking. A full queue means the peer
// stopped reading; the connection is closed and false is returned.
func (c *Client) Enqueue(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- frame:
		return true
	case <-c.done:
		return false
	default:
		c.Close()
		return false
	}
}

// Send is drained by the connection's writer.
func (c *Client) Send() <-chan []byte {
	return c.send
}

// Done is closed once the connection is shutting down.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

func (c *Client) Closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Rooms returns a snapshot of the chats this connection is joined to.
func (c *Client) Rooms() []uint {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]uint, 0, len(c.rooms))
	for id := range c.rooms {
		out = append(out, id)
	}
	return out
}

func (c *Client) addRoom(chatID uint) {
	c.mu.Lock()
	c.rooms[chatID] = struct{}{}
	c.mu.Unlock()
}

func (c *Client) removeRoom(chatID uint) {
	c.mu.Lock()
	delete(c.rooms, chatID)
	c.mu.Unlock()
}
