package music

import (
	"sync"

	"github.com/disgoorg/snowflake/v2"
)

// Store owns one Session per room.
type Store struct {
	mu       sync.Mutex
	sessions map[snowflake.ID]*Session
	create   func(room snowflake.ID) *Session
}

// NewStore returns a store that builds sessions with create. A nil create
// builds sessions with DefaultSettings.
func NewStore(create func(room snowflake.ID) *Session) *Store {
	if create == nil {
		create = func(room snowflake.ID) *Session {
			return NewSession(room, DefaultSettings())
		}
	}
	return &Store{
		sessions: make(map[snowflake.ID]*Session),
		create:   create,
	}
}

// GetOrCreate never fails. A torn down session still in the map is replaced.
func (st *Store) GetOrCreate(room snowflake.ID) *Session {
	st.mu.Lock()
	defer st.mu.Unlock()
	if s, ok := st.sessions[room]; ok && !s.Closed() {
		return s
	}
	s := st.create(room)
	st.sessions[room] = s
	sessionsActive.Set(float64(len(st.sessions)))
	return s
}

func (st *Store) Get(room snowflake.ID) (*Session, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.sessions[room]
	if !ok || s.Closed() {
		return nil, false
	}
	return s, true
}

// Destroy drops the room's session. Destroying a missing room is a no-op.
// It does not touch the sink or the voice connection; Engine.Stop does.
func (st *Store) Destroy(room snowflake.ID) {
	st.mu.Lock()
	s, ok := st.sessions[room]
	delete(st.sessions, room)
	sessionsActive.Set(float64(len(st.sessions)))
	st.mu.Unlock()
	if ok {
		s.shutdown()
	}
}

// release removes s only if it is still the room's session.
func (st *Store) release(s *Session) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if cur, ok := st.sessions[s.ID]; ok && cur == s {
		delete(st.sessions, s.ID)
		sessionsActive.Set(float64(len(st.sessions)))
	}
}

func (st *Store) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}

// Sessions returns the live sessions in no particular order.
func (st *Store) Sessions() []*Session {
	st.mu.Lock()
	defer st.mu.Unlock()
	out := make([]*Session, 0, len(st.sessions))
	for _, s := range st.sessions {
		if !s.Closed() {
			out = append(out, s)
		}
	}
	return out
}
