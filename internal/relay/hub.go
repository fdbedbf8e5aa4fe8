package relay

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"

	"chat-backend/internal/storage"
)

// MessageStore is the durable persistence the Hub writes messages through.
// *storage.Store satisfies it.
type MessageStore interface {
	CreateMessage(ctx context.Context, from, to, text string) (storage.Message, error)
}

// Hub owns all live connections and the presence table. Connection read loops
// call its Handle* methods; each connection's events are therefore processed
// in order, while the table itself is guarded by its own mutex.
type Hub struct {
	logger   *zap.SugaredLogger
	store    MessageStore
	presence *PresenceTable

	mu      sync.RWMutex
	clients map[string]*Client
}

func NewHub(logger *zap.SugaredLogger, store MessageStore) *Hub {
	return &Hub{
		logger:   logger,
		store:    store,
		presence: NewPresenceTable(),
		clients:  make(map[string]*Client),
	}
}

// Presence exposes the table for read-only inspection
func (h *Hub) Presence() *PresenceTable {
	return h.presence
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()

	h.logger.Debugf("New client connected (conn: %s)", c.id)
}

func (h *Hub) client(connID string) (*Client, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	c, ok := h.clients[connID]
	return c, ok
}

// HandleJoin identifies a connection as userID and fans the updated online
// list out to every connected client, the joining one included
func (h *Hub) HandleJoin(c *Client, userID string) {
	if userID == "" {
		return
	}

	h.presence.RecordJoin(userID, c.id)
	h.logger.Infof("User %s joined (conn: %s)", userID, c.id)

	h.broadcastOnlineUsers()
}

// HandleDisconnect removes the connection and its presence entry. The online
// list is broadcast even when the connection never joined, matching the
// eager fan-out on every lifecycle event.
func (h *Hub) HandleDisconnect(c *Client) {
	h.mu.Lock()
	delete(h.clients, c.id)
	h.mu.Unlock()

	if userID, ok := h.presence.RecordDisconnect(c.id); ok {
		h.logger.Infof("User %s went offline (conn: %s)", userID, c.id)
	} else {
		h.logger.Debugf("Client disconnected (conn: %s)", c.id)
	}

	h.broadcastOnlineUsers()
}

// HandleSendMessage validates, persists and then delivers a message. Delivery
// never happens without a durable record: a store failure is reported to the
// sender only. The sender always gets an echo carrying the canonical id and
// timestamps; an offline recipient is a silent drop.
func (h *Hub) HandleSendMessage(ctx context.Context, c *Client, from, to, text string) {
	if from == "" || to == "" {
		h.sendError(c, "Missing sender or recipient id")
		return
	}
	if strings.TrimSpace(text) == "" {
		h.sendError(c, "Message text must be non-empty")
		return
	}
	if len(text) > storage.MaxTextLength {
		h.sendError(c, "Message text is too long")
		return
	}

	m, err := h.store.CreateMessage(ctx, from, to, text)
	if err != nil {
		h.logger.Errorf("saving message from %s to %s: %v", from, to, err)
		h.sendError(c, "Failed to send message")
		return
	}

	payload, err := encode(EventReceiveMessage, m)
	if err != nil {
		h.logger.Errorf("encoding message %s: %v", m.ID, err)
		h.sendError(c, "Failed to send message")
		return
	}

	if connID, ok := h.presence.Lookup(to); ok {
		if recipient, ok := h.client(connID); ok {
			recipient.enqueue(payload)
		}
	}

	c.enqueue(payload)
}

// HandleTyping relays a typing indicator to the recipient if online. The
// sender's identity comes from the connection's presence entry; a connection
// that never joined is ignored.
func (h *Hub) HandleTyping(c *Client, to string, isTyping bool) {
	userID, ok := h.presence.UserByConn(c.id)
	if !ok {
		return
	}

	connID, ok := h.presence.Lookup(to)
	if !ok {
		return
	}

	recipient, ok := h.client(connID)
	if !ok {
		return
	}

	payload, err := encode(EventUserTyping, typingPayload{UserID: userID, IsTyping: isTyping})
	if err != nil {
		h.logger.Errorf("encoding typing event: %v", err)
		return
	}

	recipient.enqueue(payload)
}

func (h *Hub) broadcastOnlineUsers() {
	payload, err := encode(EventOnlineUsers, h.presence.Snapshot())
	if err != nil {
		h.logger.Errorf("encoding online users: %v", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, c := range h.clients {
		c.enqueue(payload)
	}
}

func (h *Hub) sendError(c *Client, msg string) {
	payload, err := encode(EventMessageError, errorPayload{Error: msg})
	if err != nil {
		h.logger.Errorf("encoding error event: %v", err)
		return
	}

	c.enqueue(payload)
}
