package service

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/mebelplace/mebelplace-backend/internal/models"
	"github.com/mebelplace/mebelplace-backend/internal/realtime"
	"github.com/mebelplace/mebelplace-backend/internal/repository"
	"github.com/mebelplace/mebelplace-backend/internal/testutil"
)

type frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// frames drains whatever is queued on c without blocking.
func frames(t *testing.T, c *realtime.Client) []frame {
	t.Helper()
	var out []frame
	for {
		select {
		case raw := <-c.Send():
			var f frame
			if err := json.Unmarshal(raw, &f); err != nil {
				t.Fatalf("bad frame %s: %v", raw, err)
			}
			out = append(out, f)
		default:
			return out
		}
	}
}

func framesOf(t *testing.T, c *realtime.Client, eventType string) []frame {
	t.Helper()
	var out []frame
	for _, f := range frames(t, c) {
		if f.Type == eventType {
			out = append(out, f)
		}
	}
	return out
}

type fixture struct {
	*testutil.TestHelper
	hub      *realtime.Hub
	chats    *repository.ChatRepository
	messages *repository.MessageRepository
	users    *repository.UserRepository
	orders   *repository.OrderRepository
	pending  *repository.PendingEventRepository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	h := testutil.NewTestHelper(t)
	return &fixture{
		TestHelper: h,
		hub:        realtime.NewHub(nil, nil, time.Second),
		chats:      repository.NewChatRepository(h.DB),
		messages:   repository.NewMessageRepository(h.DB),
		users:      repository.NewUserRepository(h.DB),
		orders:     repository.NewOrderRepository(h.DB),
		pending:    repository.NewPendingEventRepository(h.DB),
	}
}

// connect registers a live connection for user and joins it to chats.
func (f *fixture) connect(user *models.User, chatIDs ...uint) *realtime.Client {
	c := realtime.NewClient(user.ID, user.DisplayName(), 64)
	f.hub.Register(c)
	for _, id := range chatIDs {
		f.hub.Join(c, id)
	}
	return c
}

func (f *fixture) messageService(cfg MessageServiceConfig) *MessageService {
	svc := NewMessageService(f.messages, f.chats, nil, f.hub, cfg)
	return svc
}

func (f *fixture) countRows(model interface{}) int64 {
	var n int64
	f.DB.Model(model).Count(&n)
	return n
}
