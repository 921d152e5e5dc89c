package router

import (
	"sync"
	"time"
)

// InMemorySessionStore is the map-backed SessionStore used in production.
// All methods are safe for concurrent use. The clock is a field so tests
// can drive idle-time behavior deterministically.
type InMemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[SessionKey]*Session

	// maxSessions caps concurrent sessions. Zero means unlimited.
	maxSessions int

	now func() time.Time
}

// NewInMemorySessionStore returns an empty store using the wall clock.
func NewInMemorySessionStore() *InMemorySessionStore {
	return &InMemorySessionStore{sessions: make(map[SessionKey]*Session), now: time.Now}
}

// SetMaxSessions caps the number of concurrent sessions. Zero removes the cap.
func (st *InMemorySessionStore) SetMaxSessions(limit int) {
	st.mu.Lock()
	st.maxSessions = limit
	st.mu.Unlock()
}

// GetOrCreate returns the session for key, creating one when absent. The
// bool reports whether a session was created. At the cap, nothing is
// created and (nil, false) comes back.
func (st *InMemorySessionStore) GetOrCreate(key SessionKey) (*Session, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()

	if sess, ok := st.sessions[key]; ok {
		return sess, false
	}
	if st.maxSessions > 0 && len(st.sessions) >= st.maxSessions {
		return nil, false
	}

	now := st.now()
	sess := &Session{
		ID:           newSessionID(),
		Key:          key,
		CreatedAt:    now,
		LastActiveAt: now,
		// Metadata stays nil until a hook stores something.
	}
	st.sessions[key] = sess
	return sess, true
}

// Get returns the session for key, or nil when none exists.
func (st *InMemorySessionStore) Get(key SessionKey) *Session {
	st.mu.RLock()
	sess := st.sessions[key]
	st.mu.RUnlock()
	return sess
}

// Touch refreshes the session's LastActiveAt. Missing keys are ignored.
func (st *InMemorySessionStore) Touch(key SessionKey) {
	st.mu.Lock()
	if sess, ok := st.sessions[key]; ok {
		sess.LastActiveAt = st.now()
	}
	st.mu.Unlock()
}

// Delete removes the session for key. Missing keys are ignored.
func (st *InMemorySessionStore) Delete(key SessionKey) {
	st.mu.Lock()
	delete(st.sessions, key)
	st.mu.Unlock()
}

// Prune deletes sessions idle for longer than maxIdle and reports how
// many were removed. Intended for a periodic sweeper.
func (st *InMemorySessionStore) Prune(maxIdle time.Duration) int {
	st.mu.Lock()
	defer st.mu.Unlock()

	now := st.now()
	removed := 0
	for key, sess := range st.sessions {
		if now.Sub(sess.LastActiveAt) > maxIdle {
			delete(st.sessions, key)
			removed++
		}
	}
	return removed
}

// Len reports the number of live sessions.
func (st *InMemorySessionStore) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

// Range calls fn for each session until fn returns false. The read lock
// is held for the whole walk, so fn must not call back into the store.
func (st *InMemorySessionStore) Range(fn func(SessionKey, *Session) bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()

	for key, sess := range st.sessions {
		if !fn(key, sess) {
			break
		}
	}
}
