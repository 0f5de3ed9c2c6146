package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halim/overlook/internal/model"
)

func TestSessionStore_SetSessions(t *testing.T) {
	s := NewSessionStore()
	s.SetLoading(true)
	s.SetError("boom")

	s.SetSessions([]model.Session{
		{ID: 1, Name: "a", Status: model.StatusRunning},
		{ID: 2, Name: "b", Status: model.StatusPending},
	})

	assert.Len(t, s.Sessions(), 2)
	assert.False(t, s.Loading())
	assert.Empty(t, s.Err())
}

func TestSessionStore_SetSessionsDropsVanishedSelection(t *testing.T) {
	s := NewSessionStore()
	s.SetSessions([]model.Session{{ID: 1}, {ID: 2}})
	s.Select(2)

	s.SetSessions([]model.Session{{ID: 1}})
	assert.Zero(t, s.Selected())

	s.Select(1)
	s.SetSessions([]model.Session{{ID: 1}, {ID: 3}})
	assert.Equal(t, int64(1), s.Selected())
}

func TestSessionStore_UpdateStatus(t *testing.T) {
	s := NewSessionStore()
	s.SetSessions([]model.Session{{ID: 5, Status: model.StatusPending, Name: "x"}})

	require.True(t, s.UpdateStatus(5, model.StatusRunning))

	sess, ok := s.Get(5)
	require.True(t, ok)
	assert.Equal(t, model.StatusRunning, sess.Status)
	assert.Equal(t, "x", sess.Name) // only the status field changed

	assert.False(t, s.UpdateStatus(404, model.StatusHalted))
}

func TestSessionStore_ReplaceSession(t *testing.T) {
	s := NewSessionStore()
	s.SetSessions([]model.Session{{ID: 1, Name: "old", Status: model.StatusPending}})

	s.ReplaceSession(model.Session{ID: 1, Name: "new", Status: model.StatusRunning})
	sess, ok := s.Get(1)
	require.True(t, ok)
	assert.Equal(t, "new", sess.Name)
	assert.Len(t, s.Sessions(), 1)

	// Unknown sessions are inserted at the front
	s.ReplaceSession(model.Session{ID: 2, Name: "fresh", Status: model.StatusPending})
	sessions := s.Sessions()
	require.Len(t, sessions, 2)
	assert.Equal(t, int64(2), sessions[0].ID)
}

func TestSessionStore_MarkHalted(t *testing.T) {
	s := NewSessionStore()
	s.SetSessions([]model.Session{{ID: 7, Status: model.StatusRunning}})

	require.True(t, s.MarkHalted(7))
	sess, _ := s.Get(7)
	assert.Equal(t, model.StatusHalted, sess.Status)
	assert.Len(t, s.Sessions(), 1) // halted, never removed
}

func TestSessionStore_Notify(t *testing.T) {
	s := NewSessionStore()

	var calls int
	s.Subscribe(func() { calls++ })

	s.SetSessions([]model.Session{{ID: 1, Status: model.StatusPending}})
	s.UpdateStatus(1, model.StatusRunning)
	s.Select(1)
	assert.Equal(t, 3, calls)

	// A missed status update does not notify
	s.UpdateStatus(99, model.StatusRunning)
	assert.Equal(t, 3, calls)
}

func TestSessionStore_ListenerMayReadStore(t *testing.T) {
	s := NewSessionStore()

	var seen int
	s.Subscribe(func() { seen = len(s.Sessions()) })

	s.SetSessions([]model.Session{{ID: 1}, {ID: 2}})
	assert.Equal(t, 2, seen)
}
