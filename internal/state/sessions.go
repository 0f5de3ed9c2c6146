// Package state holds the console's observable client state. Stores are
// explicit containers injected into their consumers; mutations arrive from
// the dispatcher goroutine while the UI reads concurrently, so every method
// is safe for concurrent use. Listeners are invoked after each mutation,
// outside the store lock.
package state

import (
	"sync"

	"github.com/halim/overlook/internal/model"
)

// Listener is notified after a store mutation.
type Listener func()

// SessionStore holds the list of known sessions, the selected session id,
// and the loading/error flags for the session fetch.
type SessionStore struct {
	mu        sync.RWMutex
	sessions  []model.Session
	selected  int64
	loading   bool
	errMsg    string
	listeners []Listener
}

// NewSessionStore creates an empty session store.
func NewSessionStore() *SessionStore {
	return &SessionStore{}
}

// Subscribe registers a listener invoked after every mutation.
func (s *SessionStore) Subscribe(l Listener) {
	s.mu.Lock()
	s.listeners = append(s.listeners, l)
	s.mu.Unlock()
}

func (s *SessionStore) notify() {
	s.mu.RLock()
	listeners := make([]Listener, len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.RUnlock()

	for _, l := range listeners {
		l()
	}
}

// Sessions returns a copy of the session list in store order.
func (s *SessionStore) Sessions() []model.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Session, len(s.sessions))
	copy(out, s.sessions)
	return out
}

// Get returns the session with the given id.
func (s *SessionStore) Get(id int64) (model.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, sess := range s.sessions {
		if sess.ID == id {
			return sess, true
		}
	}
	return model.Session{}, false
}

// Selected returns the selected session id, 0 when nothing is selected.
func (s *SessionStore) Selected() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selected
}

// Loading reports whether a session fetch is in flight.
func (s *SessionStore) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// Err returns the last fetch error message, empty when none.
func (s *SessionStore) Err() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.errMsg
}

// SetLoading sets the loading flag.
func (s *SessionStore) SetLoading(loading bool) {
	s.mu.Lock()
	s.loading = loading
	s.mu.Unlock()
	s.notify()
}

// SetError records a fetch error message. Empty clears it.
func (s *SessionStore) SetError(msg string) {
	s.mu.Lock()
	s.errMsg = msg
	s.mu.Unlock()
	s.notify()
}

// SetSessions replaces the whole session list, clearing loading and error
// flags. A selection pointing at a vanished session is dropped.
func (s *SessionStore) SetSessions(sessions []model.Session) {
	s.mu.Lock()
	s.sessions = make([]model.Session, len(sessions))
	copy(s.sessions, sessions)
	s.loading = false
	s.errMsg = ""

	if s.selected != 0 {
		found := false
		for _, sess := range s.sessions {
			if sess.ID == s.selected {
				found = true
				break
			}
		}
		if !found {
			s.selected = 0
		}
	}
	s.mu.Unlock()
	s.notify()
}

// UpdateStatus changes only the status field of the target session. Returns
// false when the session is not in the store.
func (s *SessionStore) UpdateStatus(id int64, status model.Status) bool {
	s.mu.Lock()
	updated := false
	for i := range s.sessions {
		if s.sessions[i].ID == id {
			s.sessions[i].Status = status
			updated = true
			break
		}
	}
	s.mu.Unlock()

	if updated {
		s.notify()
	}
	return updated
}

// ReplaceSession replaces the full record for a session, inserting it at the
// front when it was not known yet.
func (s *SessionStore) ReplaceSession(sess model.Session) {
	s.mu.Lock()
	replaced := false
	for i := range s.sessions {
		if s.sessions[i].ID == sess.ID {
			s.sessions[i] = sess
			replaced = true
			break
		}
	}
	if !replaced {
		s.sessions = append([]model.Session{sess}, s.sessions...)
	}
	s.mu.Unlock()
	s.notify()
}

// Select sets the selected session id.
func (s *SessionStore) Select(id int64) {
	s.mu.Lock()
	s.selected = id
	s.mu.Unlock()
	s.notify()
}

// MarkHalted marks a session halted locally, used after a successful halt
// request. Sessions are never removed from the store.
func (s *SessionStore) MarkHalted(id int64) bool {
	return s.UpdateStatus(id, model.StatusHalted)
}
