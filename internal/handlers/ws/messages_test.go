package ws

import (
	"context"
	"encoding/json"
	"strconv"
	"testing"
	"time"

	"github.com/mebelplace/mebelplace-backend/internal/apperr"
	"github.com/mebelplace/mebelplace-backend/internal/models"
	"github.com/mebelplace/mebelplace-backend/internal/realtime"
	"github.com/mebelplace/mebelplace-backend/internal/repository"
	"github.com/mebelplace/mebelplace-backend/internal/service"
	"github.com/mebelplace/mebelplace-backend/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type env struct {
	helper   *testutil.TestHelper
	hub      *realtime.Hub
	messages *service.MessageService
	chats    *service.ChatService
}

func newEnv(t *testing.T) *env {
	t.Helper()
	h := testutil.NewTestHelper(t)
	hub := realtime.NewHub(nil, nil, time.Second)
	chatRepo := repository.NewChatRepository(h.DB)
	messages := service.NewMessageService(repository.NewMessageRepository(h.DB), chatRepo, nil, hub, service.MessageServiceConfig{})
	t.Cleanup(messages.Close)
	return &env{
		helper:   h,
		hub:      hub,
		messages: messages,
		chats:    service.NewChatService(chatRepo, repository.NewUserRepository(h.DB), nil, hub),
	}
}

func (e *env) context(c *realtime.Client) *MessageContext {
	return &MessageContext{Ctx: context.Background(), Client: c, Hub: e.hub, Messages: e.messages, Chats: e.chats}
}

func (e *env) connect(u *models.User) *realtime.Client {
	c := realtime.NewClient(u.ID, u.DisplayName(), 32)
	e.hub.Register(c)
	return c
}

// process runs one raw frame through the registry the way the read loop does.
func process(t *testing.T, ctx *MessageContext, raw string) error {
	t.Helper()
	msg, err := Deserialize([]byte(raw))
	require.NoError(t, err)
	return msg.Process(ctx)
}

func received(c *realtime.Client) []realtime.Envelope {
	var out []realtime.Envelope
	for {
		select {
		case raw := <-c.Send():
			var env realtime.Envelope
			if json.Unmarshal(raw, &env) == nil {
				out = append(out, env)
			}
		default:
			return out
		}
	}
}

func types(envs []realtime.Envelope) []string {
	out := make([]string, 0, len(envs))
	for _, e := range envs {
		out = append(out, e.Type)
	}
	return out
}

func TestRegistryCoversInboundEvents(t *testing.T) {
	for _, name := range []string{"join_chat", "send_message", "typing_start", "typing_stop", "message_delivered", "mark_read", "ping", "pong"} {
		_, ok := GetTypeRegistry()[name]
		assert.True(t, ok, name)
	}
}

func TestDeserialize(t *testing.T) {
	msg, err := Deserialize([]byte(`{"type":"send_message","payload":{"chatId":3,"content":"hi","replyTo":9}}`))
	require.NoError(t, err)
	send, ok := msg.(*MessageSend)
	require.True(t, ok)
	assert.Equal(t, uint(3), send.ChatID)
	require.NotNil(t, send.ReplyTo)
	assert.Equal(t, uint(9), *send.ReplyTo)

	msg, err = Deserialize([]byte(`{"type":"ping"}`))
	require.NoError(t, err)
	assert.Equal(t, "ping", msg.GetType())

	_, err = Deserialize([]byte(`{"type":"launch_rockets","payload":{}}`))
	assert.Error(t, err)
	_, err = Deserialize([]byte(`not json`))
	assert.Error(t, err)
}

func TestCompressRoundTrip(t *testing.T) {
	in := []byte(`{"type":"ping"}`)
	packed, err := Compress(in)
	require.NoError(t, err)
	out, err := Decompress(packed)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	_, err = Decompress([]byte("plain"))
	assert.Error(t, err)
}

func TestJoinSendTypingFlow(t *testing.T) {
	e := newEnv(t)
	a := e.helper.CreateUser("a", models.RoleClient)
	b := e.helper.CreateUser("b", models.RoleMaster)
	chat := e.helper.CreateChat(models.ChatPrivate, a.ID, a.ID, b.ID)
	ca, cb := e.connect(a), e.connect(b)
	received(ca)
	received(cb)

	require.NoError(t, process(t, e.context(ca), `{"type":"join_chat","payload":{"chatId":`+itoa(chat.ID)+`}}`))
	assert.Equal(t, []string{realtime.EventJoinedChat}, types(received(ca)))

	require.NoError(t, process(t, e.context(cb), `{"type":"join_chat","payload":{"chatId":`+itoa(chat.ID)+`}}`))
	assert.Equal(t, []string{realtime.EventUserJoined}, types(received(ca)))
	assert.Equal(t, []string{realtime.EventJoinedChat}, types(received(cb)))

	require.NoError(t, process(t, e.context(ca), `{"type":"typing_start","payload":{"chatId":`+itoa(chat.ID)+`}}`))
	assert.Equal(t, []string{realtime.EventTypingStart}, types(received(cb)))
	assert.Empty(t, received(ca))

	require.NoError(t, process(t, e.context(ca), `{"type":"send_message","payload":{"chatId":`+itoa(chat.ID)+`,"content":"hello"}}`))
	assert.Contains(t, types(received(cb)), realtime.EventNewMessage)
	assert.Contains(t, types(received(ca)), realtime.EventNewMessage)

	require.NoError(t, process(t, e.context(ca), `{"type":"ping"}`))
	assert.Equal(t, []string{realtime.EventPong}, types(received(ca)))
}

func TestProcessErrors(t *testing.T) {
	e := newEnv(t)
	a := e.helper.CreateUser("a", models.RoleClient)
	b := e.helper.CreateUser("b", models.RoleMaster)
	outsider := e.helper.CreateUser("c", models.RoleClient)
	chat := e.helper.CreateChat(models.ChatPrivate, a.ID, a.ID, b.ID)
	ca, co := e.connect(a), e.connect(outsider)
	id := itoa(chat.ID)

	err := process(t, e.context(co), `{"type":"join_chat","payload":{"chatId":`+id+`}}`)
	assert.ErrorIs(t, err, apperr.ErrNotAParticipant)
	assert.False(t, e.hub.IsJoined(co, chat.ID))

	err = process(t, e.context(ca), `{"type":"typing_start","payload":{"chatId":`+id+`}}`)
	assert.ErrorIs(t, err, ErrNotJoined)

	err = process(t, e.context(ca), `{"type":"send_message","payload":{"content":"x"}}`)
	assert.ErrorIs(t, err, ErrMissingChatID)

	err = process(t, e.context(co), `{"type":"send_message","payload":{"chatId":`+id+`,"content":"x"}}`)
	assert.ErrorIs(t, err, apperr.ErrNotAParticipant)

	received(co)
	SendError(co, err)
	got := received(co)
	require.Len(t, got, 1)
	assert.Equal(t, realtime.EventError, got[0].Type)
	payload := got[0].Payload.(map[string]interface{})
	assert.Equal(t, "not_a_participant", payload["code"])
	assert.Empty(t, received(ca), "errors go to the originating connection only")
}

func itoa(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}
