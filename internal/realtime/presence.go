package realtime

import "sync"

// Presence counts live connections per user. A user is online while the
// count is positive; only the 0->1 and 1->0 edges are transitions.
type Presence struct {
	mu     sync.Mutex
	counts map[uint]int
}

func NewPresence() *Presence {
	return &Presence{counts: make(map[uint]int)}
}

// Connect reports whether this connection brought the user online.
func (p *Presence) Connect(userID uint) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.counts[userID]++
	return p.counts[userID] == 1
}

// Disconnect reports whether this was the user's last connection.
func (p *Presence) Disconnect(userID uint) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	n, ok := p.counts[userID]
	if !ok {
		return false
	}
	if n <= 1 {
		delete(p.counts, userID)
		return true
	}
	p.counts[userID] = n - 1
	return false
}

func (p *Presence) IsOnline(userID uint) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.counts[userID] > 0
}

func (p *Presence) Connections(userID uint) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.counts[userID]
}

func (p *Presence) OnlineUsers() []uint {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]uint, 0, len(p.counts))
	for id := range p.counts {
		out = append(out, id)
	}
	return out
}
