package relay

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"chat-backend/internal/storage"
)

type fakeStore struct {
	messages []storage.Message
	err      error
}

func (f *fakeStore) CreateMessage(_ context.Context, from, to, text string) (storage.Message, error) {
	if f.err != nil {
		return storage.Message{}, f.err
	}

	now := time.Now()
	m := storage.Message{
		ID:        "m" + time.Now().Format("150405.000000000"),
		From:      from,
		To:        to,
		Text:      text,
		CreatedAt: now,
		UpdatedAt: now,
	}
	f.messages = append(f.messages, m)

	return m, nil
}

func bootstrapHub(t *testing.T) (*Hub, *fakeStore) {
	logger, err := zap.NewDevelopment()
	require.NoError(t, err)

	store := &fakeStore{}

	return NewHub(logger.Sugar(), store), store
}

// connect attaches a pumpless client directly, the way ServeWS would
func connect(h *Hub) *Client {
	c := newClient(h, nil)
	h.register(c)
	return c
}

func readEvent(t *testing.T, c *Client) (string, json.RawMessage) {
	t.Helper()

	select {
	case frame := <-c.send:
		var e struct {
			Event string          `json:"event"`
			Data  json.RawMessage `json:"data"`
		}
		require.NoError(t, json.Unmarshal(frame, &e))
		return e.Event, e.Data
	default:
		t.Fatal("no pending event")
		return "", nil
	}
}

func requireNoEvent(t *testing.T, c *Client) {
	t.Helper()

	select {
	case frame := <-c.send:
		t.Fatalf("unexpected event: %s", frame)
	default:
	}
}

func drain(c *Client) {
	for {
		select {
		case <-c.send:
		default:
			return
		}
	}
}

func TestJoinBroadcastsOnlineUsers(t *testing.T) {
	t.Parallel()

	h, _ := bootstrapHub(t)
	a := connect(h)
	b := connect(h)

	h.HandleJoin(a, "u1")

	// every connected client gets the snapshot, identified or not
	for _, c := range []*Client{a, b} {
		event, data := readEvent(t, c)
		require.Equal(t, EventOnlineUsers, event)

		var users []string
		require.NoError(t, json.Unmarshal(data, &users))
		require.ElementsMatch(t, []string{"u1"}, users)
	}

	h.HandleJoin(b, "u2")

	for _, c := range []*Client{a, b} {
		event, data := readEvent(t, c)
		require.Equal(t, EventOnlineUsers, event)

		var users []string
		require.NoError(t, json.Unmarshal(data, &users))
		require.ElementsMatch(t, []string{"u1", "u2"}, users)
	}
}

func TestSendMessageDeliveredToBothParties(t *testing.T) {
	t.Parallel()

	h, store := bootstrapHub(t)
	a := connect(h)
	b := connect(h)
	h.HandleJoin(a, "u1")
	h.HandleJoin(b, "u2")
	drain(a)
	drain(b)

	h.HandleSendMessage(context.Background(), a, "u1", "u2", "hi")

	require.Len(t, store.messages, 1)

	for _, c := range []*Client{a, b} {
		event, data := readEvent(t, c)
		require.Equal(t, EventReceiveMessage, event)

		var m storage.Message
		require.NoError(t, json.Unmarshal(data, &m))
		require.Equal(t, store.messages[0].ID, m.ID)
		require.Equal(t, "u1", m.From)
		require.Equal(t, "u2", m.To)
		require.Equal(t, "hi", m.Text)
		require.False(t, m.CreatedAt.IsZero())
	}
}

func TestSendMessageRecipientOffline(t *testing.T) {
	t.Parallel()

	h, store := bootstrapHub(t)
	a := connect(h)
	h.HandleJoin(a, "u1")
	drain(a)

	h.HandleSendMessage(context.Background(), a, "u1", "u2", "hi")

	// persisted and echoed even though u2 never joined
	require.Len(t, store.messages, 1)

	event, _ := readEvent(t, a)
	require.Equal(t, EventReceiveMessage, event)
	requireNoEvent(t, a)
}

func TestSendMessagePersistenceFailure(t *testing.T) {
	t.Parallel()

	h, store := bootstrapHub(t)
	store.err = errors.New("connection refused")

	a := connect(h)
	b := connect(h)
	h.HandleJoin(a, "u1")
	h.HandleJoin(b, "u2")
	drain(a)
	drain(b)

	h.HandleSendMessage(context.Background(), a, "u1", "u2", "hi")

	// fail-closed: error to the sender only, no delivery to anyone
	event, data := readEvent(t, a)
	require.Equal(t, EventMessageError, event)

	var e errorPayload
	require.NoError(t, json.Unmarshal(data, &e))
	require.Equal(t, "Failed to send message", e.Error)

	requireNoEvent(t, a)
	requireNoEvent(t, b)
}

func TestSendMessageEmptyText(t *testing.T) {
	t.Parallel()

	h, store := bootstrapHub(t)
	a := connect(h)
	h.HandleJoin(a, "u1")
	drain(a)

	h.HandleSendMessage(context.Background(), a, "u1", "u2", "   ")

	require.Empty(t, store.messages)

	event, _ := readEvent(t, a)
	require.Equal(t, EventMessageError, event)
	requireNoEvent(t, a)
}

func TestSendMessageTextTooLong(t *testing.T) {
	t.Parallel()

	h, store := bootstrapHub(t)
	a := connect(h)
	h.HandleJoin(a, "u1")
	drain(a)

	h.HandleSendMessage(context.Background(), a, "u1", "u2", strings.Repeat("a", storage.MaxTextLength+1))

	require.Empty(t, store.messages)

	event, _ := readEvent(t, a)
	require.Equal(t, EventMessageError, event)
}

func TestTypingRelayedToRecipient(t *testing.T) {
	t.Parallel()

	h, _ := bootstrapHub(t)
	a := connect(h)
	b := connect(h)
	h.HandleJoin(a, "u1")
	h.HandleJoin(b, "u2")
	drain(a)
	drain(b)

	h.HandleTyping(a, "u2", true)

	event, data := readEvent(t, b)
	require.Equal(t, EventUserTyping, event)

	var p typingPayload
	require.NoError(t, json.Unmarshal(data, &p))
	require.Equal(t, "u1", p.UserID)
	require.True(t, p.IsTyping)

	// no echo to the sender
	requireNoEvent(t, a)
}

func TestTypingRecipientOffline(t *testing.T) {
	t.Parallel()

	h, _ := bootstrapHub(t)
	a := connect(h)
	h.HandleJoin(a, "u1")
	drain(a)

	h.HandleTyping(a, "u2", true)

	// silent drop, no error to the sender
	requireNoEvent(t, a)
}

func TestTypingFromUnidentifiedConnection(t *testing.T) {
	t.Parallel()

	h, _ := bootstrapHub(t)
	a := connect(h)
	b := connect(h)
	h.HandleJoin(b, "u2")
	drain(a)
	drain(b)

	h.HandleTyping(a, "u2", true)

	requireNoEvent(t, b)
}

func TestDisconnectBroadcastsSnapshot(t *testing.T) {
	t.Parallel()

	h, _ := bootstrapHub(t)
	a := connect(h)
	b := connect(h)
	h.HandleJoin(a, "u1")
	h.HandleJoin(b, "u2")
	drain(a)
	drain(b)

	h.HandleDisconnect(a)

	event, data := readEvent(t, b)
	require.Equal(t, EventOnlineUsers, event)

	var users []string
	require.NoError(t, json.Unmarshal(data, &users))
	require.ElementsMatch(t, []string{"u2"}, users)
}

func TestDisconnectOfUnidentifiedConnectionStillBroadcasts(t *testing.T) {
	t.Parallel()

	h, _ := bootstrapHub(t)
	a := connect(h)
	b := connect(h)
	h.HandleJoin(b, "u2")
	drain(a)
	drain(b)

	// a never joined, yet the snapshot is fanned out anyway
	h.HandleDisconnect(a)

	event, data := readEvent(t, b)
	require.Equal(t, EventOnlineUsers, event)

	var users []string
	require.NoError(t, json.Unmarshal(data, &users))
	require.ElementsMatch(t, []string{"u2"}, users)
}

func TestReconnectDisplacesOldConnection(t *testing.T) {
	t.Parallel()

	h, _ := bootstrapHub(t)
	old := connect(h)
	h.HandleJoin(old, "u2")

	fresh := connect(h)
	h.HandleJoin(fresh, "u2")
	drain(old)
	drain(fresh)

	a := connect(h)
	h.HandleJoin(a, "u1")
	drain(a)
	drain(old)
	drain(fresh)

	h.HandleSendMessage(context.Background(), a, "u1", "u2", "hi")

	// delivery goes to the displacing connection only
	event, _ := readEvent(t, fresh)
	require.Equal(t, EventReceiveMessage, event)
	requireNoEvent(t, old)
}
