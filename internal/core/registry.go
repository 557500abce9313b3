package core

// registry is the connection table: every live connection by ID, plus
// the identity binding used to route private messages. It is owned by
// the hub loop and never accessed concurrently.
type registry struct {
	clients map[string]*Client // connection ID -> client
	byName  map[string]string  // identity -> connection ID, last write wins
}

func newRegistry() *registry {
	return &registry{
		clients: make(map[string]*Client),
		byName:  make(map[string]string),
	}
}

// add inserts a freshly connected client. No identity is bound yet.
func (r *registry) add(c *Client) {
	r.clients[c.ID] = c
}

// bind associates an identity with a connection, superseding any prior
// binding for that identity. The superseded connection keeps its entry
// until its own disconnect; only its identity lookup goes stale. A
// connection rebinding to a new identity releases its old one, unless
// another connection already took it over.
func (r *registry) bind(c *Client, identity string) {
	if c.Name != "" && c.Name != identity && r.byName[c.Name] == c.ID {
		delete(r.byName, c.Name)
	}
	c.Name = identity
	r.byName[identity] = c.ID
}

// remove deletes a connection entry. The identity binding is dropped
// only if it still points at this connection, so a superseded
// connection's disconnect cannot evict its successor.
func (r *registry) remove(c *Client) {
	delete(r.clients, c.ID)
	if c.Name != "" && r.byName[c.Name] == c.ID {
		delete(r.byName, c.Name)
	}
}

// get returns the client for a connection ID, or nil if unknown.
func (r *registry) get(id string) *Client {
	return r.clients[id]
}

// resolve returns the live connection currently bound to an identity,
// or nil if the identity is offline.
func (r *registry) resolve(identity string) *Client {
	id, ok := r.byName[identity]
	if !ok {
		return nil
	}
	return r.clients[id]
}
