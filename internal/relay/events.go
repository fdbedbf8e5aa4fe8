package relay

import "encoding/json"

// Client-to-server event names
const (
	EventJoin        = "join"
	EventSendMessage = "sendMessage"
	EventTyping      = "typing"
)

// Server-to-client event names
const (
	EventOnlineUsers    = "onlineUsers"
	EventReceiveMessage = "receiveMessage"
	EventMessageError   = "messageError"
	EventUserTyping     = "userTyping"
)

// envelope is the frame shape both directions: {"event": ..., "data": ...}
type envelope struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

type typingPayload struct {
	UserID   string `json:"userId"`
	IsTyping bool   `json:"isTyping"`
}

type errorPayload struct {
	Error string `json:"error"`
}

func encode(event string, data interface{}) ([]byte, error) {
	return json.Marshal(envelope{Event: event, Data: data})
}
