package peer

import "sync"

// Store maps participant ids to their sessions. It is owned by the
// negotiation layer, scoped to one room membership and never shared
// outside the client process.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func NewStore() *Store {
	return &Store{sessions: make(map[string]*Session)}
}

// GetOrCreate returns the session for id, creating it with create when
// absent. The boolean reports whether a new session was created.
func (st *Store) GetOrCreate(id string, create func() (*Session, error)) (*Session, bool, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if s, ok := st.sessions[id]; ok {
		return s, false, nil
	}
	s, err := create()
	if err != nil {
		return nil, false, err
	}
	st.sessions[id] = s
	return s, true, nil
}

func (st *Store) Get(id string) (*Session, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.sessions[id]
	return s, ok
}

// Remove detaches the session for id, if any. Removing an unknown
// participant is a no-op.
func (st *Store) Remove(id string) (*Session, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.sessions[id]
	if ok {
		delete(st.sessions, id)
	}
	return s, ok
}

// CompareAndRemove removes id only while it still maps to s, so a
// session replaced under the same participant id (glare) cannot tear
// down its successor.
func (st *Store) CompareAndRemove(id string, s *Session) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	if cur, ok := st.sessions[id]; ok && cur == s {
		delete(st.sessions, id)
		return true
	}
	return false
}

// ForEach calls fn for every session, outside the store lock so fn may
// call back into the store.
func (st *Store) ForEach(fn func(*Session)) {
	for _, s := range st.snapshot() {
		fn(s)
	}
}

// Drain removes and returns every session, used for fan-out teardown
// when the local client leaves the room.
func (st *Store) Drain() []*Session {
	st.mu.Lock()
	defer st.mu.Unlock()
	out := make([]*Session, 0, len(st.sessions))
	for id, s := range st.sessions {
		out = append(out, s)
		delete(st.sessions, id)
	}
	return out
}

func (st *Store) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}

func (st *Store) snapshot() []*Session {
	st.mu.Lock()
	defer st.mu.Unlock()
	out := make([]*Session, 0, len(st.sessions))
	for _, s := range st.sessions {
		out = append(out, s)
	}
	return out
}
