package state

import (
	"sync"

	"github.com/halim/overlook/internal/model"
)

// TrajectoryStore holds trajectory records keyed by id, preserving first
// insertion order.
type TrajectoryStore struct {
	mu        sync.RWMutex
	order     []string
	records   map[string]model.Trajectory
	listeners []Listener
}

// NewTrajectoryStore creates an empty trajectory store.
func NewTrajectoryStore() *TrajectoryStore {
	return &TrajectoryStore{
		records: make(map[string]model.Trajectory),
	}
}

// Subscribe registers a listener invoked after every mutation.
func (s *TrajectoryStore) Subscribe(l Listener) {
	s.mu.Lock()
	s.listeners = append(s.listeners, l)
	s.mu.Unlock()
}

func (s *TrajectoryStore) notify() {
	s.mu.RLock()
	listeners := make([]Listener, len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.RUnlock()

	for _, l := range listeners {
		l()
	}
}

// Upsert inserts the record, or replaces an existing record with the same
// id in place. Applying the same record twice leaves the store unchanged.
func (s *TrajectoryStore) Upsert(rec model.Trajectory) {
	s.mu.Lock()
	if _, exists := s.records[rec.ID]; !exists {
		s.order = append(s.order, rec.ID)
	}
	s.records[rec.ID] = rec
	s.mu.Unlock()
	s.notify()
}

// Reset replaces the whole store content, used when loading a session's
// history from the API.
func (s *TrajectoryStore) Reset(records []model.Trajectory) {
	s.mu.Lock()
	s.order = s.order[:0]
	s.records = make(map[string]model.Trajectory, len(records))
	for _, rec := range records {
		if _, exists := s.records[rec.ID]; !exists {
			s.order = append(s.order, rec.ID)
		}
		s.records[rec.ID] = rec
	}
	s.mu.Unlock()
	s.notify()
}

// Get returns the record with the given id.
func (s *TrajectoryStore) Get(id string) (model.Trajectory, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	return rec, ok
}

// Len returns the number of stored records.
func (s *TrajectoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// All returns every record in insertion order.
func (s *TrajectoryStore) All() []model.Trajectory {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Trajectory, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.records[id])
	}
	return out
}

// BySession returns the records belonging to one session, in insertion order.
func (s *TrajectoryStore) BySession(sessionID int64) []model.Trajectory {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Trajectory, 0, len(s.order))
	for _, id := range s.order {
		if rec := s.records[id]; rec.SessionID == sessionID {
			out = append(out, rec)
		}
	}
	return out
}
