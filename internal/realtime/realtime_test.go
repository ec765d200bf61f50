package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type received struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// drain returns every frame queued on c so far.
func drain(t *testing.T, c *Client) []received {
	t.Helper()
	var out []received
	for {
		select {
		case frame := <-c.Send():
			var r received
			require.NoError(t, json.Unmarshal(frame, &r))
			out = append(out, r)
		default:
			return out
		}
	}
}

func ofType(frames []received, eventType string) []received {
	var out []received
	for _, f := range frames {
		if f.Type == eventType {
			out = append(out, f)
		}
	}
	return out
}

type fakeLastSeen struct {
	mu    sync.Mutex
	calls map[uint]int
}

func (f *fakeLastSeen) TouchLastSeen(_ context.Context, userID uint, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = make(map[uint]int)
	}
	f.calls[userID]++
	return nil
}

func TestPresenceRefCounting(t *testing.T) {
	p := NewPresence()

	assert.True(t, p.Connect(1))
	assert.False(t, p.Connect(1))
	assert.True(t, p.IsOnline(1))
	assert.Equal(t, 2, p.Connections(1))

	assert.False(t, p.Disconnect(1))
	assert.True(t, p.IsOnline(1))
	assert.True(t, p.Disconnect(1))
	assert.False(t, p.IsOnline(1))

	assert.False(t, p.Disconnect(1), "extra disconnect is not a transition")
}

func TestHubStatusTransitionsOncePerUser(t *testing.T) {
	lastSeen := &fakeLastSeen{}
	hub := NewHub(lastSeen, nil, time.Minute)

	watcher := NewClient(9, "watcher", 0)
	hub.Register(watcher)

	phone := NewClient(1, "Aidos", 0)
	laptop := NewClient(1, "Aidos", 0)
	hub.Register(phone)
	hub.Register(laptop)
	assert.True(t, hub.IsOnline(1))

	hub.Unregister(phone)
	hub.Unregister(phone)
	assert.True(t, hub.IsOnline(1), "one device still connected")

	hub.Unregister(laptop)
	assert.False(t, hub.IsOnline(1))
	hub.Wait()

	statuses := ofType(drain(t, watcher), EventUserStatusChanged)
	require.Len(t, statuses, 2)

	var first, second UserStatusPayload
	require.NoError(t, json.Unmarshal(statuses[0].Payload, &first))
	require.NoError(t, json.Unmarshal(statuses[1].Payload, &second))
	assert.Equal(t, UserStatusPayload{UserID: 1, IsOnline: true}, first)
	assert.Equal(t, uint(1), second.UserID)
	assert.False(t, second.IsOnline)
	assert.NotNil(t, second.LastSeen)

	assert.Empty(t, ofType(drain(t, laptop), EventUserStatusChanged), "users do not receive their own transitions")
	assert.True(t, phone.Closed())
	assert.Equal(t, 2, lastSeen.calls[1])
}

func TestHubConcurrentConnectDisconnect(t *testing.T) {
	hub := NewHub(nil, nil, time.Minute)
	watcher := NewClient(99, "watcher", 1024)
	hub.Register(watcher)

	const devices = 50
	var wg sync.WaitGroup
	for i := 0; i < devices; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := NewClient(5, "busy", 0)
			hub.Register(c)
			hub.Unregister(c)
		}()
	}
	wg.Wait()
	hub.Wait()

	assert.False(t, hub.IsOnline(5))
	assert.Equal(t, 1, hub.Count())

	statuses := ofType(drain(t, watcher), EventUserStatusChanged)
	require.NotEmpty(t, statuses)
	require.Zero(t, len(statuses)%2)
	for i, s := range statuses {
		var p UserStatusPayload
		require.NoError(t, json.Unmarshal(s.Payload, &p))
		assert.Equal(t, i%2 == 0, p.IsOnline, "transitions must alternate online/offline")
	}
}

func TestRoomsFanOutToEveryDevice(t *testing.T) {
	hub := NewHub(nil, nil, time.Minute)

	phone := NewClient(1, "a", 0)
	laptop := NewClient(1, "a", 0)
	peer := NewClient(2, "b", 0)
	outsider := NewClient(3, "c", 0)
	for _, c := range []*Client{phone, laptop, peer, outsider} {
		hub.Register(c)
	}
	drain(t, peer)

	assert.True(t, hub.Join(phone, 10))
	assert.False(t, hub.Join(phone, 10))
	hub.Join(laptop, 10)
	hub.Join(peer, 10)

	n, err := hub.EmitToChat(10, EventNewMessage, NewMessagePayload{ChatID: 10})
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Len(t, ofType(drain(t, phone), EventNewMessage), 1)
	assert.Len(t, ofType(drain(t, laptop), EventNewMessage), 1)
	assert.Len(t, ofType(drain(t, peer), EventNewMessage), 1)
	assert.Empty(t, ofType(drain(t, outsider), EventNewMessage))

	hub.Unregister(phone)
	n, _ = hub.EmitToChat(10, EventNewMessage, NewMessagePayload{ChatID: 10})
	assert.Equal(t, 2, n)
	assert.Empty(t, phone.Rooms())

	hub.RemoveUserFromChat(10, 2)
	n, _ = hub.EmitToChat(10, EventNewMessage, NewMessagePayload{ChatID: 10})
	assert.Equal(t, 1, n)
}

func TestRoomsPreserveOrderPerChat(t *testing.T) {
	rooms := NewRooms()
	a := NewClient(1, "a", 1024)
	b := NewClient(2, "b", 1024)
	rooms.Join(a, 1)
	rooms.Join(b, 1)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				frame, _ := Encode(EventNewMessage, map[string]int{"w": i, "n": j})
				rooms.Broadcast(1, frame, nil)
			}
		}(i)
	}
	wg.Wait()

	fa := drain(t, a)
	fb := drain(t, b)
	require.Len(t, fa, 200)
	require.Equal(t, len(fa), len(fb))
	for i := range fa {
		assert.JSONEq(t, string(fa[i].Payload), string(fb[i].Payload))
	}
}

func TestRoomRecreatedAfterEmptied(t *testing.T) {
	rooms := NewRooms()
	a := NewClient(1, "a", 0)
	rooms.Join(a, 7)
	rooms.Leave(a, 7)
	assert.Empty(t, rooms.Members(7))

	rooms.Join(a, 7)
	assert.True(t, rooms.IsMember(a, 7))
}

func TestSlowConsumerIsClosed(t *testing.T) {
	c := NewClient(1, "slow", 1)
	assert.True(t, c.Enqueue([]byte("1")))
	assert.False(t, c.Enqueue([]byte("2")))
	assert.True(t, c.Closed())
	assert.False(t, c.Enqueue([]byte("3")))
}

func TestTypingStartStopExcludesTyper(t *testing.T) {
	hub := NewHub(nil, nil, time.Minute)
	typer := NewClient(1, "Aidos", 0)
	typerOther := NewClient(1, "Aidos", 0)
	peer := NewClient(2, "Dana", 0)
	for _, c := range []*Client{typer, typerOther, peer} {
		hub.Register(c)
		hub.Join(c, 3)
	}
	drain(t, peer)

	assert.True(t, hub.StartTyping(typer, 3))
	assert.False(t, hub.StartTyping(typer, 3), "refresh does not rebroadcast")
	assert.True(t, hub.StopTyping(typer, 3))
	assert.False(t, hub.StopTyping(typer, 3))

	frames := drain(t, peer)
	require.Len(t, frames, 2)
	assert.Equal(t, EventTypingStart, frames[0].Type)
	assert.Equal(t, EventTypingStop, frames[1].Type)

	var p TypingPayload
	require.NoError(t, json.Unmarshal(frames[0].Payload, &p))
	assert.Equal(t, TypingPayload{ChatID: 3, UserID: 1, UserName: "Aidos"}, p)

	assert.Empty(t, ofType(drain(t, typer), EventTypingStart))
	assert.Empty(t, ofType(drain(t, typerOther), EventTypingStart))
}

func TestTypingClearedOnDisconnect(t *testing.T) {
	hub := NewHub(nil, nil, time.Minute)
	typer := NewClient(1, "Aidos", 0)
	peer := NewClient(2, "Dana", 0)
	for _, c := range []*Client{typer, peer} {
		hub.Register(c)
		hub.Join(c, 3)
		hub.Join(c, 4)
	}
	hub.StartTyping(typer, 3)
	hub.StartTyping(typer, 4)
	drain(t, peer)

	hub.Unregister(typer)

	stops := ofType(drain(t, peer), EventTypingStop)
	assert.Len(t, stops, 2)
	assert.False(t, hub.typing.IsTyping(3, 1))
	assert.False(t, hub.typing.IsTyping(4, 1))
}

func TestTypingExpires(t *testing.T) {
	rooms := NewRooms()
	typing := NewTyping(rooms, 30*time.Millisecond)
	typer := NewClient(1, "Aidos", 0)
	peer := NewClient(2, "Dana", 0)
	rooms.Join(typer, 3)
	rooms.Join(peer, 3)

	typing.Start(typer, 3)
	assert.Eventually(t, func() bool { return !typing.IsTyping(3, 1) }, time.Second, 5*time.Millisecond)

	frames := drain(t, peer)
	require.Len(t, frames, 2)
	assert.Equal(t, EventTypingStop, frames[1].Type)
}

func TestShutdownClosesClients(t *testing.T) {
	hub := NewHub(&fakeLastSeen{}, nil, time.Minute)
	c := NewClient(1, "a", 0)
	hub.Register(c)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, hub.Shutdown(ctx))
	assert.True(t, c.Closed())
	assert.Zero(t, hub.Count())
}
