package core

// roster is the room membership table: room name -> set of connection
// IDs. Rooms come into existence on first join and persist as empty
// sets after everyone leaves; an empty set costs one map entry. Owned
// by the hub loop, never accessed concurrently.
type roster struct {
	rooms map[string]map[string]struct{}
}

func newRoster() *roster {
	return &roster{rooms: make(map[string]map[string]struct{})}
}

// join adds a connection to a room. Returns false if it was already a
// member; joining twice has no further effect.
func (t *roster) join(connID, room string) bool {
	members, ok := t.rooms[room]
	if !ok {
		members = make(map[string]struct{})
		t.rooms[room] = members
	}
	if _, exists := members[connID]; exists {
		return false
	}
	members[connID] = struct{}{}
	return true
}

// leave removes a connection from a room. Returns false if it was not
// a member; leaving a room you are not in is a no-op.
func (t *roster) leave(connID, room string) bool {
	members, ok := t.rooms[room]
	if !ok {
		return false
	}
	if _, exists := members[connID]; !exists {
		return false
	}
	delete(members, connID)
	return true
}

// contains reports whether the connection is a member of the room.
func (t *roster) contains(connID, room string) bool {
	_, ok := t.rooms[room][connID]
	return ok
}

// membersOf returns the connection IDs currently in a room.
func (t *roster) membersOf(room string) []string {
	members := t.rooms[room]
	out := make([]string, 0, len(members))
	for id := range members {
		out = append(out, id)
	}
	return out
}
