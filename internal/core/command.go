package core

import "github.com/relaychat/relay-server/internal/store"

// CommandKind describes what the client wants to do.
type CommandKind int

const (
	// CommandHello binds a display identity to the connection.
	CommandHello CommandKind = iota
	// CommandJoinRoom subscribes the client to a room.
	CommandJoinRoom
	// CommandLeaveRoom unsubscribes the client from a room.
	CommandLeaveRoom
	// CommandSendRoomMessage delivers a chat message to room participants.
	CommandSendRoomMessage
	// CommandSendPrivate delivers a direct message to another identity.
	CommandSendPrivate
	// CommandTyping reports the client's typing state in a room.
	CommandTyping
	// CommandMarkRead acknowledges messages as read.
	CommandMarkRead
)

// Command represents an action requested by a client.
type Command struct {
	Kind        CommandKind
	User        string // hello: identity to bind
	Room        string
	To          string // private send: recipient identity
	Body        string
	ContentType store.ContentType
	IsTyping    bool
	MessageIDs  []int64 // mark read
}
