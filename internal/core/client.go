package core

import "time"

// Client is one live connection as seen by the relay. The hub owns
// Name and Rooms; transport code must not touch them after handoff.
type Client struct {
	ID          string
	Name        string
	ConnectedAt time.Time
	Commands    chan *Command
	Events      chan *Event
	Rooms       map[string]struct{}

	done chan struct{}
}

// NewClient constructs a client with initialized channels. The name is
// empty until the client introduces itself with a hello command.
func NewClient(id string) *Client {
	return &Client{
		ID:          id,
		ConnectedAt: time.Now(),
		Commands:    make(chan *Command, 8),
		Events:      make(chan *Event, 32),
		Rooms:       make(map[string]struct{}),
		done:        make(chan struct{}),
	}
}

// joined reports whether an identity has been bound to this connection.
func (c *Client) joined() bool {
	return c.Name != ""
}
