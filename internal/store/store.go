package store

import (
	"context"
	"time"
)

// ContentType tags what kind of payload a message body carries.
type ContentType string

const (
	ContentTypeText  ContentType = "text"
	ContentTypeImage ContentType = "image"
	ContentTypeFile  ContentType = "file"
)

// Valid reports whether the content type is one of the known tags.
func (t ContentType) Valid() bool {
	switch t {
	case ContentTypeText, ContentTypeImage, ContentTypeFile:
		return true
	}
	return false
}

// Message is a persisted chat message. Messages are immutable after
// creation except for ReadBy, which only ever grows.
type Message struct {
	ID          int64
	Room        string
	From        string
	Body        string
	ContentType ContentType
	CreatedAt   time.Time
	ReadBy      []string
}

// MessageStore handles durable message persistence. Within a room,
// message IDs are strictly increasing in append order.
type MessageStore interface {
	// Append persists a new message, assigns its ID and timestamp, and
	// seeds the read set with the sender. The message is durable once
	// Append returns.
	Append(ctx context.Context, from, room, body string, contentType ContentType) (*Message, error)

	// History returns one page of a room's messages, newest first
	// (page 1 holds the most recent messages), plus the total message
	// count for pagination. Pages are independent; no cursor is kept.
	History(ctx context.Context, room string, page, pageSize int) ([]Message, int, error)

	// Recent returns up to limit of the room's latest messages in
	// oldest-first order, for the initial sync on room join.
	Recent(ctx context.Context, room string, limit int) ([]Message, error)

	// MarkRead adds reader to the read set of each message. Already
	// present readers are ignored.
	MarkRead(ctx context.Context, messageIDs []int64, reader string) error

	// ListRooms returns the distinct room names known to the store.
	ListRooms(ctx context.Context) ([]string, error)

	// Close closes the underlying database connection.
	Close() error
}
