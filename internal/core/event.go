package core

import "github.com/relaychat/relay-server/internal/store"

// EventKind is a notification the relay emits to clients.
type EventKind int

const (
	// EventRoomMessage notifies room members about a chat message,
	// including the sender.
	EventRoomMessage EventKind = iota
	// EventPrivateMessage delivers a direct message to the recipient
	// and echoes it back to the sender.
	EventPrivateMessage
	// EventUserJoined notifies existing room members about a user
	// joining the room.
	EventUserJoined
	// EventUserLeft notifies remaining room members about a user
	// leaving the room.
	EventUserLeft
	// EventPresence notifies all other connections that an identity
	// came online or went offline.
	EventPresence
	// EventTyping notifies room members, except the typist, about a
	// typing state change.
	EventTyping
	// EventRead notifies room members, except the reader, that
	// messages were acknowledged.
	EventRead
	// EventHistory delivers recent messages to a client upon joining a room.
	EventHistory
	// EventError notifies the originating client about a domain error.
	EventError
)

// Event is sent to clients to describe what happened in the system.
type Event struct {
	Kind       EventKind
	Room       string
	User       string // identity the event is about
	Online     bool   // for EventPresence
	IsTyping   bool   // for EventTyping
	MessageIDs []int64
	Message    *store.Message  // for message events
	Messages   []store.Message // for EventHistory
	Error      *CoreError
}
