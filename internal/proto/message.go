package proto

import "encoding/json"

// Inbound is the envelope for messages coming from the client.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

const (
	InboundTypeHello  = "hello"
	InboundTypeJoin   = "join"
	InboundTypeLeave  = "leave"
	InboundTypeMsg    = "msg"
	InboundTypeDM     = "dm"
	InboundTypeTyping = "typing"
	InboundTypeRead   = "read"

	OutboundTypeEvent = "event"
	OutboundTypeError = "error"
)

// HelloData is sent by the client to introduce its display identity.
type HelloData struct {
	User string `json:"user"`
}

// JoinData requests to join or leave a specific room.
type JoinData struct {
	Room string `json:"room"`
}

// MsgData is a chat message from the client to a room.
type MsgData struct {
	Room        string `json:"room"`
	Text        string `json:"text"`
	ContentType string `json:"content_type,omitempty"`
}

// DMData is a private message to another identity.
type DMData struct {
	To          string `json:"to"`
	Text        string `json:"text"`
	ContentType string `json:"content_type,omitempty"`
}

// TypingData reports the client's typing state in a room.
type TypingData struct {
	Room     string `json:"room"`
	IsTyping bool   `json:"is_typing"`
}

// ReadData acknowledges messages in a room as read.
type ReadData struct {
	Room       string  `json:"room"`
	MessageIDs []int64 `json:"message_ids"`
}

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Type  string `json:"type"`
	Event string `json:"event,omitempty"`
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// EventMessage carries a stored message to room members or DM parties.
type EventMessage struct {
	ID          int64    `json:"id"`
	Room        string   `json:"room"`
	User        string   `json:"user"`
	Text        string   `json:"text"`
	ContentType string   `json:"content_type"`
	TS          int64    `json:"ts"`
	ReadBy      []string `json:"read_by,omitempty"`
}

// EventUserJoined notifies that a user joined a room.
type EventUserJoined struct {
	Room string `json:"room"`
	User string `json:"user"`
}

// EventUserLeft notifies that a user left a room.
type EventUserLeft struct {
	Room string `json:"room"`
	User string `json:"user"`
}

// EventPresence notifies all clients that an identity came online or
// went offline.
type EventPresence struct {
	Type    string `json:"type"` // "joined" or "left"
	User    string `json:"user"`
	Message string `json:"message"`
}

// EventTyping notifies room members about a typing state change.
type EventTyping struct {
	Room     string `json:"room"`
	User     string `json:"user"`
	IsTyping bool   `json:"is_typing"`
}

// EventRead notifies room members that messages were acknowledged.
type EventRead struct {
	Room       string  `json:"room"`
	ReadBy     string  `json:"read_by"`
	MessageIDs []int64 `json:"message_ids"`
}

// EventHistory delivers recent room messages on join, oldest first.
type EventHistory struct {
	Room     string         `json:"room"`
	Messages []EventMessage `json:"messages"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}
