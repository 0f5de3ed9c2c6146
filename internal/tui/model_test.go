package tui

import (
	"testing"
	"time"
	"unicode/utf8"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halim/overlook/internal/client"
	"github.com/halim/overlook/internal/config"
	"github.com/halim/overlook/internal/model"
	"github.com/halim/overlook/internal/state"
)

func newTestModel(t *testing.T) Model {
	t.Helper()

	sessions := state.NewSessionStore()
	trajectories := state.NewTrajectoryStore()

	api, err := client.NewAPI(client.APIConfig{
		BaseURL: "http://127.0.0.1:1",
		Timeout: 100 * time.Millisecond,
		Logger:  zerolog.Nop(),
	})
	require.NoError(t, err)

	actions, err := client.NewActions(client.ActionsConfig{
		API:          api,
		Sessions:     sessions,
		Trajectories: trajectories,
		Logger:       zerolog.Nop(),
	})
	require.NoError(t, err)

	m, err := New(Config{
		Sessions:     sessions,
		Trajectories: trajectories,
		Actions:      actions,
		Theme:        config.ThemeDark,
		Logger:       zerolog.Nop(),
	})
	require.NoError(t, err)

	return m
}

func keyPress(s string) tea.KeyMsg {
	switch s {
	case "ctrl+n":
		return tea.KeyMsg{Type: tea.KeyCtrlN}
	case "ctrl+c":
		return tea.KeyMsg{Type: tea.KeyCtrlC}
	default:
		return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
	}
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(Config{})
	assert.ErrorContains(t, err, "state containers are required")
}

func TestModel_QuitKey(t *testing.T) {
	m := newTestModel(t)

	_, cmd := m.Update(keyPress("q"))
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

func TestModel_FollowToggleKey(t *testing.T) {
	m := newTestModel(t)

	updated, _ := m.Update(keyPress("f"))
	m = updated.(Model)
	assert.Equal(t, PinnedByUser, m.follow.Mode())

	updated, _ = m.Update(keyPress("f"))
	m = updated.(Model)
	assert.Equal(t, Following, m.follow.Mode())
}

func TestModel_ThemeToggle(t *testing.T) {
	m := newTestModel(t)
	require.Equal(t, config.ThemeDark, m.theme)

	updated, _ := m.Update(keyPress("t"))
	m = updated.(Model)
	assert.Equal(t, config.ThemeLight, m.theme)

	updated, _ = m.Update(keyPress("t"))
	m = updated.(Model)
	assert.Equal(t, config.ThemeDark, m.theme)
}

func TestModel_NewSessionKeyIssuesCommand(t *testing.T) {
	m := newTestModel(t)

	_, cmd := m.Update(keyPress("ctrl+n"))
	require.NotNil(t, cmd)

	// The backend is unreachable, so the command reports the failure
	msg := cmd()
	started, ok := msg.(sessionStartedMsg)
	require.True(t, ok)
	assert.Error(t, started.err)
}

func TestModel_SwitchingSessionResetsFollow(t *testing.T) {
	m := newTestModel(t)
	m.sessions.SetSessions([]model.Session{
		{ID: 2, Name: "b", Status: model.StatusRunning},
		{ID: 1, Name: "a", Status: model.StatusCompleted},
	})
	m.sessions.Select(2)
	m.cursor = 0
	m.follow.OnUserScroll(50)
	require.Equal(t, PinnedByUser, m.follow.Mode())

	updated, cmd := m.Update(keyPress("j"))
	m = updated.(Model)
	require.NotNil(t, cmd)

	assert.Equal(t, int64(1), m.sessions.Selected())
	assert.Equal(t, Following, m.follow.Mode())
}

func TestModel_StoreChangeKeepsCursorOnSelection(t *testing.T) {
	m := newTestModel(t)
	m.sessions.SetSessions([]model.Session{
		{ID: 3, Name: "c", Status: model.StatusPending},
		{ID: 2, Name: "b", Status: model.StatusRunning},
	})
	m.sessions.Select(2)

	updated, _ := m.Update(StoreChangedMsg{})
	m = updated.(Model)
	assert.Equal(t, 1, m.cursor)

	// A new session lands at the front; the cursor follows the selection
	m.sessions.ReplaceSession(model.Session{ID: 4, Name: "d", Status: model.StatusPending})
	updated, _ = m.Update(StoreChangedMsg{})
	m = updated.(Model)
	assert.Equal(t, 2, m.cursor)
}

func TestModel_ViewRendersStatuses(t *testing.T) {
	m := newTestModel(t)
	m.sessions.SetSessions([]model.Session{
		{ID: 1, Name: "alpha", Status: model.StatusRunning},
	})
	m.sessions.Select(1)
	m.trajectories.Reset([]model.Trajectory{
		{ID: "t1", SessionID: 1, RecordType: "tool_execution", ToolName: "probe", CreatedAt: time.Now()},
	})

	updated, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	m = updated.(Model)
	updated, _ = m.Update(StoreChangedMsg{})
	m = updated.(Model)

	view := m.View()
	assert.Contains(t, view, "alpha")
	assert.Contains(t, view, "running")
	assert.Contains(t, view, "probe")
	assert.Contains(t, view, "following")
}

func TestDisplayTitle(t *testing.T) {
	assert.Equal(t, "hello", displayTitle(map[string]any{"display_title": "hello"}, "output"))
	assert.Equal(t, "output", displayTitle(map[string]any{"display_title": ""}, "output"))
	assert.Equal(t, "output", displayTitle(nil, "output"))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "very long…", truncate("very long name", 10))

	// Multibyte names must not be cut mid-rune
	got := truncate("セッションの長い名前です", 8)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, "セッションの長…", got)
}
