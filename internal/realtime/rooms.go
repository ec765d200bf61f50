package realtime

import "sync"

type room struct {
	mu      sync.RWMutex
	members map[*Client]struct{}
	closed  bool
}

// Rooms is the transport-level subscription table chat -> connections.
// Each chat has its own lock; the outer map lock is only held to look a
// room up or drop an empty one.
type Rooms struct {
	mu    sync.Mutex
	rooms map[uint]*room
}

func NewRooms() *Rooms {
	return &Rooms{rooms: make(map[uint]*room)}
}

func (r *Rooms) get(chatID uint, create bool) *room {
	r.mu.Lock()
	defer r.mu.Unlock()
	rm, ok := r.rooms[chatID]
	if ok && create {
		rm.mu.RLock()
		ok = !rm.closed
		rm.mu.RUnlock()
	}
	if !ok && create {
		rm = &room{members: make(map[*Client]struct{})}
		r.rooms[chatID] = rm
	}
	return rm
}

// Join subscribes c to chatID. It reports false if c was already joined.
func (r *Rooms) Join(c *Client, chatID uint) bool {
	for {
		rm := r.get(chatID, true)
		rm.mu.Lock()
		if rm.closed {
			rm.mu.Unlock()
			continue
		}
		_, already := rm.members[c]
		rm.members[c] = struct{}{}
		rm.mu.Unlock()
		c.addRoom(chatID)
		return !already
	}
}

// Leave unsubscribes c from chatID.
func (r *Rooms) Leave(c *Client, chatID uint) {
	c.removeRoom(chatID)
	rm := r.get(chatID, false)
	if rm == nil {
		return
	}
	rm.mu.Lock()
	delete(rm.members, c)
	empty := len(rm.members) == 0
	if empty {
		rm.closed = true
	}
	rm.mu.Unlock()

	if empty {
		r.mu.Lock()
		if r.rooms[chatID] == rm {
			delete(r.rooms, chatID)
		}
		r.mu.Unlock()
	}
}

// LeaveAll drops every subscription of c and returns the chats it left.
func (r *Rooms) LeaveAll(c *Client) []uint {
	chats := c.Rooms()
	for _, chatID := range chats {
		r.Leave(c, chatID)
	}
	return chats
}

// RemoveUser unsubscribes every connection of userID from chatID.
func (r *Rooms) RemoveUser(chatID, userID uint) int {
	var leaving []*Client
	for _, c := range r.Members(chatID) {
		if c.UserID == userID {
			leaving = append(leaving, c)
		}
	}
	for _, c := range leaving {
		r.Leave(c, chatID)
	}
	return len(leaving)
}

func (r *Rooms) IsMember(c *Client, chatID uint) bool {
	rm := r.get(chatID, false)
	if rm == nil {
		return false
	}
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	_, ok := rm.members[c]
	return ok
}

func (r *Rooms) Members(chatID uint) []*Client {
	rm := r.get(chatID, false)
	if rm == nil {
		return nil
	}
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	out := make([]*Client, 0, len(rm.members))
	for c := range rm.members {
		out = append(out, c)
	}
	return out
}

// Broadcast queues frame on every member for which skip returns false and
// returns how many accepted it. The room lock is held for the whole fan-out
// so two broadcasts to one chat reach every member in the same order.
func (r *Rooms) Broadcast(chatID uint, frame []byte, skip func(*Client) bool) int {
	rm := r.get(chatID, false)
	if rm == nil {
		return 0
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	n := 0
	for c := range rm.members {
		if skip != nil && skip(c) {
			continue
		}
		if c.Enqueue(frame) {
			n++
		}
	}
	return n
}
