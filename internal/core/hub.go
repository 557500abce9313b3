package core

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/relaychat/relay-server/internal/store"
)

// DirectRoomName derives the conversation name for a private message
// between two identities. Both sides compute the same name without a
// lookup because the pair is sorted lexicographically.
func DirectRoomName(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return "dm:" + a + ":" + b
}

type clientCommand struct {
	client *Client
	cmd    *Command
}

// Hub is the event relay. A single Run loop owns the connection
// registry and the room roster; every mutation and every durable
// append happens inside that loop, and fan-out only starts after the
// mutation has committed. Fan-out itself never blocks: slow consumers
// get events dropped, not the loop stalled.
type Hub struct {
	store        store.MessageStore
	log          zerolog.Logger
	historyLimit int

	registry *registry
	roster   *roster

	register   chan *Client
	unregister chan *Client
	commands   chan clientCommand
}

// NewHub creates a hub. A nil store disables durability (used by tests
// and benchmarks); a nil logger disables logging.
func NewHub(st store.MessageStore, logger *zerolog.Logger, historyLimit int) *Hub {
	l := zerolog.Nop()
	if logger != nil {
		l = *logger
	}
	if historyLimit <= 0 {
		historyLimit = 50
	}
	return &Hub{
		store:        st,
		log:          l,
		historyLimit: historyLimit,
		registry:     newRegistry(),
		roster:       newRoster(),
		register:     make(chan *Client),
		unregister:   make(chan *Client),
		commands:     make(chan clientCommand),
	}
}

// RegisterClient hands a freshly accepted connection to the hub.
func (h *Hub) RegisterClient(c *Client) {
	h.register <- c
}

// UnregisterClient tears down a connection: memberships are revoked,
// remaining room members and all other connections are notified, and
// the client's event channel is closed. Safe to call twice.
func (h *Hub) UnregisterClient(c *Client) {
	h.unregister <- c
}

// Run processes registrations and commands until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case c := <-h.register:
			h.handleRegister(ctx, c)
		case c := <-h.unregister:
			h.handleUnregister(c)
		case cc := <-h.commands:
			h.dispatch(ctx, cc.client, cc.cmd)
		case <-ctx.Done():
			return
		}
	}
}

func (h *Hub) handleRegister(ctx context.Context, c *Client) {
	h.registry.add(c)
	h.log.Debug().Str("conn_id", c.ID).Msg("connection registered")
	go h.pump(ctx, c)
}

// pump forwards one client's commands into the hub loop so dispatch
// stays single-threaded regardless of connection count.
func (h *Hub) pump(ctx context.Context, c *Client) {
	for {
		select {
		case cmd, ok := <-c.Commands:
			if !ok {
				return
			}
			select {
			case h.commands <- clientCommand{client: c, cmd: cmd}:
			case <-c.done:
				return
			case <-ctx.Done():
				return
			}
		case <-c.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (h *Hub) handleUnregister(c *Client) {
	if h.registry.get(c.ID) == nil {
		// Already gone; disconnecting twice must never crash the relay.
		h.log.Debug().Str("conn_id", c.ID).Msg("unregister of unknown connection")
		return
	}

	for room := range c.Rooms {
		h.roster.leave(c.ID, room)
		delete(c.Rooms, room)
		if c.joined() {
			h.notifyRoomLeft(room, c)
		}
	}

	if c.joined() {
		h.notifyOffline(c)
	}

	h.registry.remove(c)
	close(c.done)
	close(c.Events)
	h.log.Info().Str("conn_id", c.ID).Str("user", c.Name).Msg("connection unregistered")
}

func (h *Hub) dispatch(ctx context.Context, c *Client, cmd *Command) {
	if h.registry.get(c.ID) == nil {
		// Command raced with disconnect; drop it.
		return
	}

	switch cmd.Kind {
	case CommandHello:
		h.handleHello(c, cmd)
	case CommandJoinRoom:
		h.handleJoinRoom(ctx, c, cmd)
	case CommandLeaveRoom:
		h.handleLeaveRoom(c, cmd)
	case CommandSendRoomMessage:
		h.handleSendRoom(ctx, c, cmd)
	case CommandSendPrivate:
		h.handleSendPrivate(ctx, c, cmd)
	case CommandTyping:
		h.handleTyping(c, cmd)
	case CommandMarkRead:
		h.handleMarkRead(ctx, c, cmd)
	default:
		h.replyError(c, ErrCodeBadEvent, "unknown command")
	}
}

func (h *Hub) handleHello(c *Client, cmd *Command) {
	identity := strings.TrimSpace(cmd.User)
	if identity == "" {
		h.replyError(c, ErrCodeBadEvent, "identity is required")
		return
	}

	// Last join wins: a second hello with the same identity supersedes
	// the mapping; the older connection lingers until its own disconnect.
	h.registry.bind(c, identity)
	h.notifyOnline(c)
	h.log.Info().Str("conn_id", c.ID).Str("user", identity).Msg("identity bound")
}

func (h *Hub) handleJoinRoom(ctx context.Context, c *Client, cmd *Command) {
	if !h.requireIdentity(c) {
		return
	}
	if cmd.Room == "" {
		h.replyError(c, ErrCodeBadEvent, "room is required")
		return
	}

	if !h.roster.join(c.ID, cmd.Room) {
		// Already a member; a second join has no further effect.
		return
	}
	c.Rooms[cmd.Room] = struct{}{}

	h.sendHistory(ctx, c, cmd.Room)
	h.notifyRoomJoined(cmd.Room, c)
	h.log.Info().Str("user", c.Name).Str("room", cmd.Room).Msg("joined room")
}

func (h *Hub) handleLeaveRoom(c *Client, cmd *Command) {
	if cmd.Room == "" {
		h.replyError(c, ErrCodeBadEvent, "room is required")
		return
	}

	if !h.roster.leave(c.ID, cmd.Room) {
		// Not a member; leaving is idempotent.
		return
	}
	delete(c.Rooms, cmd.Room)

	h.notifyRoomLeft(cmd.Room, c)
	h.log.Info().Str("user", c.Name).Str("room", cmd.Room).Msg("left room")
}

func (h *Hub) handleSendRoom(ctx context.Context, c *Client, cmd *Command) {
	if !h.requireIdentity(c) {
		return
	}
	if cmd.Room == "" {
		h.replyError(c, ErrCodeBadEvent, "room is required")
		return
	}
	if !h.roster.contains(c.ID, cmd.Room) {
		h.replyError(c, ErrCodeNotMember, "not a member of "+cmd.Room)
		return
	}

	msg, cerr := h.appendMessage(ctx, c.Name, cmd.Room, cmd.Body, cmd.ContentType)
	if cerr != nil {
		h.trySend(c, &Event{Kind: EventError, Room: cmd.Room, Error: cerr})
		return
	}

	// Room broadcast includes the sender so its UI reflects the
	// server-assigned ID and order.
	h.broadcastRoom(cmd.Room, &Event{
		Kind:    EventRoomMessage,
		Room:    cmd.Room,
		User:    c.Name,
		Message: msg,
	}, "")
}

func (h *Hub) handleSendPrivate(ctx context.Context, c *Client, cmd *Command) {
	if !h.requireIdentity(c) {
		return
	}
	to := strings.TrimSpace(cmd.To)
	if to == "" {
		h.replyError(c, ErrCodeBadEvent, "recipient is required")
		return
	}

	room := DirectRoomName(c.Name, to)
	msg, cerr := h.appendMessage(ctx, c.Name, room, cmd.Body, cmd.ContentType)
	if cerr != nil {
		h.trySend(c, &Event{Kind: EventError, Room: room, Error: cerr})
		return
	}

	ev := &Event{
		Kind:    EventPrivateMessage,
		Room:    room,
		User:    c.Name,
		Message: msg,
	}

	// Deliver if the recipient is online; the message is stored either
	// way and reachable through history. The sender always gets an echo.
	if rc := h.registry.resolve(to); rc != nil && rc.ID != c.ID {
		h.trySend(rc, ev)
	}
	h.trySend(c, ev)
}

func (h *Hub) handleTyping(c *Client, cmd *Command) {
	if !h.requireIdentity(c) {
		return
	}
	if cmd.Room == "" {
		h.replyError(c, ErrCodeBadEvent, "room is required")
		return
	}
	if !h.roster.contains(c.ID, cmd.Room) {
		h.replyError(c, ErrCodeNotMember, "not a member of "+cmd.Room)
		return
	}

	// The typist already knows its own state; everyone else gets told.
	h.broadcastRoom(cmd.Room, &Event{
		Kind:     EventTyping,
		Room:     cmd.Room,
		User:     c.Name,
		IsTyping: cmd.IsTyping,
	}, c.ID)
}

func (h *Hub) handleMarkRead(ctx context.Context, c *Client, cmd *Command) {
	if !h.requireIdentity(c) {
		return
	}
	if len(cmd.MessageIDs) == 0 {
		return
	}

	if h.store != nil {
		if err := h.store.MarkRead(ctx, cmd.MessageIDs, c.Name); err != nil {
			h.log.Error().Err(err).Str("user", c.Name).Msg("mark read failed")
			h.replyError(c, ErrCodeStoreUnavailable, "read receipts not saved")
			return
		}
	}

	h.broadcastRoom(cmd.Room, &Event{
		Kind:       EventRead,
		Room:       cmd.Room,
		User:       c.Name,
		MessageIDs: cmd.MessageIDs,
	}, c.ID)
}

// requireIdentity rejects room-scoped commands from connections that
// never introduced themselves; memberships require a bound identity.
func (h *Hub) requireIdentity(c *Client) bool {
	if !c.joined() {
		h.replyError(c, ErrCodeInvalidConnection, "no identity bound")
		return false
	}
	return true
}

// appendMessage makes the message durable before anyone hears about
// it. On store failure only the sender learns, via the returned error.
func (h *Hub) appendMessage(ctx context.Context, from, room, body string, ct store.ContentType) (*store.Message, *CoreError) {
	if ct == "" {
		ct = store.ContentTypeText
	}
	if !ct.Valid() {
		return nil, coreError(ErrCodeBadEvent, "unknown content type")
	}

	if h.store == nil {
		return &store.Message{
			Room:        room,
			From:        from,
			Body:        body,
			ContentType: ct,
			CreatedAt:   time.Now().UTC(),
			ReadBy:      []string{from},
		}, nil
	}

	msg, err := h.store.Append(ctx, from, room, body, ct)
	if err != nil {
		h.log.Error().Err(err).Str("user", from).Str("room", room).Msg("append failed")
		return nil, coreError(ErrCodeStoreUnavailable, "message not saved")
	}
	return msg, nil
}

func (h *Hub) sendHistory(ctx context.Context, c *Client, room string) {
	msgs := []store.Message{}
	if h.store != nil {
		var err error
		msgs, err = h.store.Recent(ctx, room, h.historyLimit)
		if err != nil {
			h.log.Error().Err(err).Str("room", room).Msg("history load failed")
			h.replyError(c, ErrCodeStoreUnavailable, "history unavailable")
			return
		}
	}
	h.trySend(c, &Event{Kind: EventHistory, Room: room, Messages: msgs})
}

func (h *Hub) replyError(c *Client, code, msg string) {
	h.trySend(c, &Event{Kind: EventError, Error: coreError(code, msg)})
}

// broadcastRoom fans an event out to the room's current members,
// skipping exceptID when set.
func (h *Hub) broadcastRoom(room string, ev *Event, exceptID string) {
	for _, id := range h.roster.membersOf(room) {
		if id == exceptID {
			continue
		}
		if rc := h.registry.get(id); rc != nil {
			h.trySend(rc, ev)
		}
	}
}

// trySend delivers without blocking the hub loop. Events for a closed
// or slow connection are dropped.
func (h *Hub) trySend(c *Client, ev *Event) {
	select {
	case <-c.done:
		return
	default:
	}
	select {
	case c.Events <- ev:
	default:
		h.log.Debug().Str("conn_id", c.ID).Msg("dropping event for slow consumer")
	}
}
