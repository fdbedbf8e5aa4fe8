package relay

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/xid"
	"github.com/valyala/fastjson"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	maxFrameSize   = 8 * 1024
	sendBufferSize = 256
)

// Client is one live websocket connection. Outbound frames go through a
// buffered channel; a client that cannot keep up is dropped.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	id   string

	send chan []byte
	done chan struct{}
	once sync.Once
}

func newClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		hub:  hub,
		conn: conn,
		id:   xid.New().String(),
		send: make(chan []byte, sendBufferSize),
		done: make(chan struct{}),
	}
}

// enqueue hands a frame to the write pump without blocking
func (c *Client) enqueue(payload []byte) {
	select {
	case c.send <- payload:
	default:
		c.hub.logger.Warnf("Dropping slow client (conn: %s)", c.id)
		go c.close()
	}
}

// close runs the disconnect transition exactly once
func (c *Client) close() {
	c.once.Do(func() {
		c.hub.HandleDisconnect(c)
		close(c.done)
		if c.conn != nil {
			_ = c.conn.Close()
		}
	})
}

func (c *Client) readPump() {
	defer c.close()

	c.conn.SetReadLimit(maxFrameSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	var parser fastjson.Parser
	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		v, err := parser.ParseBytes(frame)
		if err != nil {
			c.hub.logger.Debugf("Malformed frame from conn %s: %v", c.id, err)
			continue
		}

		c.dispatch(v)
	}
}

// dispatch routes one parsed inbound frame to the matching hub transition
func (c *Client) dispatch(v *fastjson.Value) {
	switch string(v.GetStringBytes("event")) {
	case EventJoin:
		c.hub.HandleJoin(c, string(v.GetStringBytes("data")))
	case EventSendMessage:
		c.hub.HandleSendMessage(
			context.Background(),
			c,
			string(v.GetStringBytes("data", "from")),
			string(v.GetStringBytes("data", "to")),
			string(v.GetStringBytes("data", "text")),
		)
	case EventTyping:
		c.hub.HandleTyping(c, string(v.GetStringBytes("data", "to")), v.GetBool("data", "isTyping"))
	default:
		c.hub.logger.Debugf("Unknown event from conn %s", c.id)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case payload := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}
