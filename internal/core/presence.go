package core

// Presence is a projection over the registry and the roster: it holds
// no state of its own and only formats notifications pushed through
// the hub's broadcast primitives.

// notifyOnline tells every other live connection that an identity
// came online.
func (h *Hub) notifyOnline(c *Client) {
	h.broadcastAll(&Event{
		Kind:   EventPresence,
		User:   c.Name,
		Online: true,
	}, c.ID)
}

// notifyOffline tells every other live connection that an identity
// went offline.
func (h *Hub) notifyOffline(c *Client) {
	h.broadcastAll(&Event{
		Kind:   EventPresence,
		User:   c.Name,
		Online: false,
	}, c.ID)
}

// notifyRoomJoined tells existing room members about a new member.
// The joiner itself gets history instead.
func (h *Hub) notifyRoomJoined(room string, c *Client) {
	h.broadcastRoom(room, &Event{
		Kind: EventUserJoined,
		Room: room,
		User: c.Name,
	}, c.ID)
}

// notifyRoomLeft tells remaining room members that a member left.
func (h *Hub) notifyRoomLeft(room string, c *Client) {
	h.broadcastRoom(room, &Event{
		Kind: EventUserLeft,
		Room: room,
		User: c.Name,
	}, c.ID)
}

// broadcastAll fans an event out to every live connection except the
// one identified by exceptID.
func (h *Hub) broadcastAll(ev *Event, exceptID string) {
	for id, rc := range h.registry.clients {
		if id == exceptID {
			continue
		}
		h.trySend(rc, ev)
	}
}
