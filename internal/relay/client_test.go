package relay

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/valyala/fastjson"
)

func dispatchFrame(t *testing.T, c *Client, frame string) {
	t.Helper()

	var parser fastjson.Parser
	v, err := parser.Parse(frame)
	require.NoError(t, err)

	c.dispatch(v)
}

func TestDispatchJoin(t *testing.T) {
	t.Parallel()

	h, _ := bootstrapHub(t)
	a := connect(h)

	dispatchFrame(t, a, `{"event":"join","data":"u1"}`)

	connID, ok := h.Presence().Lookup("u1")
	require.True(t, ok)
	require.Equal(t, a.id, connID)
}

func TestDispatchSendMessage(t *testing.T) {
	t.Parallel()

	h, store := bootstrapHub(t)
	a := connect(h)

	dispatchFrame(t, a, `{"event":"sendMessage","data":{"from":"u1","to":"u2","text":"hi"}}`)

	require.Len(t, store.messages, 1)
	require.Equal(t, "u1", store.messages[0].From)
	require.Equal(t, "u2", store.messages[0].To)
	require.Equal(t, "hi", store.messages[0].Text)
}

func TestDispatchTyping(t *testing.T) {
	t.Parallel()

	h, _ := bootstrapHub(t)
	a := connect(h)
	b := connect(h)
	h.HandleJoin(a, "u1")
	h.HandleJoin(b, "u2")
	drain(a)
	drain(b)

	dispatchFrame(t, a, `{"event":"typing","data":{"to":"u2","isTyping":true}}`)

	event, _ := readEvent(t, b)
	require.Equal(t, EventUserTyping, event)
}

func TestDispatchUnknownEvent(t *testing.T) {
	t.Parallel()

	h, store := bootstrapHub(t)
	a := connect(h)

	dispatchFrame(t, a, `{"event":"selfDestruct","data":{}}`)

	require.Empty(t, store.messages)
	requireNoEvent(t, a)
}
