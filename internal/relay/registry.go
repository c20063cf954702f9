package relay

import (
	"errors"
	"sync"

	"github.com/merhawi-21/video-meeting/internal/logger"
	"github.com/merhawi-21/video-meeting/internal/monitoring"
	"github.com/merhawi-21/video-meeting/internal/signal"
)

var (
	ErrAlreadyJoined = errors.New("connection already in a room")
	ErrPeerNotFound  = errors.New("peer not found in room")
	ErrNotInRoom     = errors.New("connection not in a room")
)

// room holds one member set. Its mutex serializes membership changes
// against broadcasts so fan-out always sees a stable snapshot.
type room struct {
	id      string
	mu      sync.Mutex
	members map[string]*Conn
}

func (r *room) add(c *Conn) {
	r.mu.Lock()
	r.members[c.id] = c
	r.mu.Unlock()
}

// remove deletes c and reports whether the room is now empty, returning
// the members left behind so the caller can notify them.
func (r *room) remove(c *Conn) (rest []*Conn, empty bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.members, c.id)
	for _, m := range r.members {
		rest = append(rest, m)
	}
	return rest, len(r.members) == 0
}

func (r *room) snapshot() []*Conn {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Conn, 0, len(r.members))
	for _, m := range r.members {
		out = append(out, m)
	}
	return out
}

func (r *room) member(id string) (*Conn, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.members[id]
	return m, ok
}

// Registry tracks which connections belong to which room. It is passed
// explicitly to the relay; rooms are created on first join and deleted
// when their member set becomes empty. Nothing persists across restarts.
type Registry struct {
	mu     sync.RWMutex
	rooms  map[string]*room
	joined map[*Conn]*room

	log     *logger.Logger
	metrics *monitoring.Metrics
}

func NewRegistry(log *logger.Logger, metrics *monitoring.Metrics) *Registry {
	return &Registry{
		rooms:   make(map[string]*room),
		joined:  make(map[*Conn]*room),
		log:     log,
		metrics: metrics,
	}
}

// Join adds c to roomID, creating the room if absent. A connection
// belongs to at most one room at a time.
func (g *Registry) Join(c *Conn, roomID string) error {
	g.mu.Lock()
	if _, ok := g.joined[c]; ok {
		g.mu.Unlock()
		return ErrAlreadyJoined
	}
	r, ok := g.rooms[roomID]
	if !ok {
		r = &room{id: roomID, members: make(map[string]*Conn)}
		g.rooms[roomID] = r
		g.metrics.RoomsActive.Inc()
	}
	g.joined[c] = r
	// The member set is updated before the registry lock is released,
	// otherwise a concurrent leave of the last member can observe the
	// room empty and delete it out from under this join.
	r.add(c)
	g.mu.Unlock()

	g.log.Debug().Str("conn", c.id).Str("room", roomID).Msg("joined room")
	return nil
}

// Leave removes c from its room and deletes the room once empty. It is
// a no-op for connections that never joined. The former room id and the
// remaining members are returned so the caller can announce the
// departure.
func (g *Registry) Leave(c *Conn) (string, []*Conn) {
	g.mu.Lock()
	r, ok := g.joined[c]
	if !ok {
		g.mu.Unlock()
		return "", nil
	}
	delete(g.joined, c)
	g.mu.Unlock()

	rest, empty := r.remove(c)

	if empty {
		g.mu.Lock()
		// Another connection may have joined between remove and
		// this lock; only delete a room that is still empty.
		if cur, ok := g.rooms[r.id]; ok && cur == r {
			cur.mu.Lock()
			stillEmpty := len(cur.members) == 0
			cur.mu.Unlock()
			if stillEmpty {
				delete(g.rooms, r.id)
				g.metrics.RoomsActive.Dec()
			}
		}
		g.mu.Unlock()
	}

	g.log.Debug().Str("conn", c.id).Str("room", r.id).Msg("left room")
	return r.id, rest
}

// RoomOf reports the room c currently belongs to.
func (g *Registry) RoomOf(c *Conn) (string, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	r, ok := g.joined[c]
	if !ok {
		return "", false
	}
	return r.id, true
}

// Broadcast delivers env to every member of roomID except sender. A
// member whose transport is not writable misses the message; delivery
// to the others proceeds.
func (g *Registry) Broadcast(roomID string, sender *Conn, env *signal.Envelope) {
	g.mu.RLock()
	r, ok := g.rooms[roomID]
	g.mu.RUnlock()
	if !ok {
		return
	}
	for _, m := range r.snapshot() {
		if sender != nil && m.id == sender.id {
			continue
		}
		g.deliver(m, env)
	}
}

// Unicast delivers env to exactly one member of roomID.
func (g *Registry) Unicast(roomID, targetID string, env *signal.Envelope) error {
	g.mu.RLock()
	r, ok := g.rooms[roomID]
	g.mu.RUnlock()
	if !ok {
		return ErrPeerNotFound
	}
	m, ok := r.member(targetID)
	if !ok {
		return ErrPeerNotFound
	}
	g.deliver(m, env)
	return nil
}

func (g *Registry) deliver(m *Conn, env *signal.Envelope) {
	if !m.trySend(env) {
		g.metrics.WriteFailures.Inc()
		g.log.Warn().Str("conn", m.id).Str("type", string(env.Type)).
			Msg("member not writable, message abandoned")
	}
}

// RoomCount reports how many rooms currently exist.
func (g *Registry) RoomCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.rooms)
}

// Members returns the member ids of roomID, mainly for tests.
func (g *Registry) Members(roomID string) []string {
	g.mu.RLock()
	r, ok := g.rooms[roomID]
	g.mu.RUnlock()
	if !ok {
		return nil
	}
	var ids []string
	for _, m := range r.snapshot() {
		ids = append(ids, m.id)
	}
	return ids
}
