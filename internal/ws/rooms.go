package ws

import "sync"

// BroadcastOptions controls recipient selection for Registry.Broadcast, per
// spec.md §4.9.
type BroadcastOptions struct {
	Room        string
	IncludeSelf bool
}

// Registry is a per-WebSocket-handler connection and room directory.
// Broadcasts never cross registries. All room mutation is serialized
// through mu so join/leave are observable atomically with respect to
// broadcast, per spec.md §5.
type Registry struct {
	mu         sync.Mutex
	conns      map[string]*Connection
	rooms      map[string]map[string]bool // room -> connection ids
	membership map[string]map[string]bool // connection id -> rooms
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		conns:      map[string]*Connection{},
		rooms:      map[string]map[string]bool{},
		membership: map[string]map[string]bool{},
	}
}

// Add registers a connection, making it a broadcast/lookup target.
func (r *Registry) Add(c *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[c.ID] = c
}

// Remove deregisters a connection and atomically evicts it from every room
// it belonged to, per spec.md §3 rooms invariant (ii).
func (r *Registry) Remove(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for room := range r.membership[connID] {
		delete(r.rooms[room], connID)
		if len(r.rooms[room]) == 0 {
			delete(r.rooms, room)
		}
	}
	delete(r.membership, connID)
	delete(r.conns, connID)
}

// Join adds connID to room.
func (r *Registry) Join(connID, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rooms[room] == nil {
		r.rooms[room] = map[string]bool{}
	}
	r.rooms[room][connID] = true
	if r.membership[connID] == nil {
		r.membership[connID] = map[string]bool{}
	}
	r.membership[connID][room] = true
}

// Leave removes connID from room, deleting the room entry if it becomes
// empty, per spec.md §3 rooms invariant (iii).
func (r *Registry) Leave(connID, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rooms[room], connID)
	if len(r.rooms[room]) == 0 {
		delete(r.rooms, room)
	}
	delete(r.membership[connID], room)
}

// Rooms returns the set of rooms connID currently belongs to.
func (r *Registry) Rooms(connID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.membership[connID]))
	for room := range r.membership[connID] {
		out = append(out, room)
	}
	return out
}

// ConnByID looks up a registered connection.
func (r *Registry) ConnByID(id string) (*Connection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conns[id]
	return c, ok
}

// Broadcast delivers data to every connection selected by opts, per
// spec.md §4.9: an explicit Room, or the union of the sender's rooms
// (falling back to every registered connection when the sender is
// roomless). Delivery is best-effort; a failure on one recipient does not
// affect others.
func (r *Registry) Broadcast(senderID string, data []byte, isText bool, opts BroadcastOptions) {
	for _, id := range r.recipients(senderID, opts) {
		if c, ok := r.ConnByID(id); ok {
			_ = c.trySend(data, isText)
		}
	}
}

func (r *Registry) recipients(senderID string, opts BroadcastOptions) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	set := map[string]bool{}
	switch {
	case opts.Room != "":
		for id := range r.rooms[opts.Room] {
			set[id] = true
		}
	case len(r.membership[senderID]) > 0:
		for room := range r.membership[senderID] {
			for id := range r.rooms[room] {
				set[id] = true
			}
		}
	default:
		for id := range r.conns {
			set[id] = true
		}
	}

	out := make([]string, 0, len(set))
	for id := range set {
		if id == senderID && !opts.IncludeSelf {
			continue
		}
		out = append(out, id)
	}
	return out
}
