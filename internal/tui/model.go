package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog"

	"github.com/halim/overlook/internal/client"
	"github.com/halim/overlook/internal/config"
	"github.com/halim/overlook/internal/state"
)

const (
	sidebarWidth = 32
	chromeRows   = 2
)

// StoreChangedMsg tells the model to re-render from the state containers.
// The wiring layer sends one whenever a store notifies its listeners.
type StoreChangedMsg struct{}

type sessionStartedMsg struct{ err error }

type themeSavedMsg struct{ err error }

// Model is the root bubbletea model: a session sidebar next to a live
// trajectory feed.
type Model struct {
	sessions     *state.SessionStore
	trajectories *state.TrajectoryStore
	actions      *client.Actions
	loader       *config.Loader
	logger       zerolog.Logger

	keys     keyMap
	styles   Styles
	theme    string
	follow   *FollowController
	viewport viewport.Model

	cursor   int
	width    int
	height   int
	ready    bool
	quitting bool
}

// Config holds the model's collaborators.
type Config struct {
	Sessions     *state.SessionStore
	Trajectories *state.TrajectoryStore
	Actions      *client.Actions
	Loader       *config.Loader
	Theme        string
	Logger       zerolog.Logger
}

// New creates the root model
func New(cfg Config) (Model, error) {
	if cfg.Sessions == nil || cfg.Trajectories == nil {
		return Model{}, errors.New("state containers are required")
	}
	if cfg.Actions == nil {
		return Model{}, errors.New("actions are required")
	}

	theme := cfg.Theme
	if theme == "" {
		theme = config.ThemeDark
	}

	return Model{
		sessions:     cfg.Sessions,
		trajectories: cfg.Trajectories,
		actions:      cfg.Actions,
		loader:       cfg.Loader,
		logger:       cfg.Logger,
		keys:         defaultKeyMap(),
		styles:       NewStyles(theme),
		theme:        theme,
		follow:       NewFollowController(),
		viewport:     viewport.New(80, 20),
		width:        120,
		height:       30,
	}, nil
}

func (m Model) Init() tea.Cmd {
	return m.fetchSessionsCmd()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewport.Width = max(20, msg.Width-sidebarWidth-1)
		m.viewport.Height = max(5, msg.Height-chromeRows)
		m.ready = true
		m.refreshFeed()
		return m, nil

	case StoreChangedMsg:
		m.syncCursor()
		m.refreshFeed()
		return m, nil

	case sessionStartedMsg:
		if msg.err != nil {
			m.logger.Warn().Err(msg.err).Msg("Failed to start session")
		}
		m.syncCursor()
		m.refreshFeed()
		return m, nil

	case themeSavedMsg:
		if msg.err != nil {
			m.logger.Warn().Err(msg.err).Msg("Failed to persist theme")
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.MouseMsg:
		var cmd tea.Cmd
		before := m.viewport.YOffset
		m.viewport, cmd = m.viewport.Update(msg)
		if m.viewport.YOffset != before {
			m.follow.OnUserScroll(m.distanceFromBottom())
		}
		return m, cmd
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.quitting = true
		return m, tea.Quit

	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
			return m, m.selectUnderCursor()
		}
		return m, nil

	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(m.sessions.Sessions())-1 {
			m.cursor++
			return m, m.selectUnderCursor()
		}
		return m, nil

	case key.Matches(msg, m.keys.NewSession):
		return m, m.startSessionCmd()

	case key.Matches(msg, m.keys.Halt):
		if id := m.sessions.Selected(); id != 0 {
			return m, m.haltSessionCmd(id)
		}
		return m, nil

	case key.Matches(msg, m.keys.Follow):
		if m.follow.Toggle() {
			m.viewport.GotoBottom()
		}
		return m, nil

	case key.Matches(msg, m.keys.Theme):
		return m, m.toggleTheme()

	case key.Matches(msg, m.keys.Refresh):
		return m, m.fetchSessionsCmd()
	}

	// Everything else belongs to the viewport (pgup/pgdn and friends)
	var cmd tea.Cmd
	before := m.viewport.YOffset
	m.viewport, cmd = m.viewport.Update(msg)
	if m.viewport.YOffset != before {
		m.follow.OnUserScroll(m.distanceFromBottom())
	}
	return m, cmd
}

// selectUnderCursor makes the session under the cursor the selected one
// and loads its trajectory history.
func (m *Model) selectUnderCursor() tea.Cmd {
	sessions := m.sessions.Sessions()
	if m.cursor < 0 || m.cursor >= len(sessions) {
		return nil
	}

	id := sessions[m.cursor].ID
	if id == m.sessions.Selected() {
		return nil
	}

	m.sessions.Select(id)
	m.follow.Reset()
	m.viewport.GotoTop()

	actions := m.actions
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		actions.LoadTrajectories(ctx, id)
		return StoreChangedMsg{}
	}
}

func (m Model) fetchSessionsCmd() tea.Cmd {
	actions := m.actions
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		actions.FetchSessions(ctx)
		return StoreChangedMsg{}
	}
}

func (m Model) startSessionCmd() tea.Cmd {
	actions := m.actions
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_, err := actions.StartNewSession(ctx, "")
		return sessionStartedMsg{err: err}
	}
}

func (m Model) haltSessionCmd(id int64) tea.Cmd {
	actions := m.actions
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		actions.HaltSession(ctx, id)
		return StoreChangedMsg{}
	}
}

func (m *Model) toggleTheme() tea.Cmd {
	if m.theme == config.ThemeDark {
		m.theme = config.ThemeLight
	} else {
		m.theme = config.ThemeDark
	}
	m.styles = NewStyles(m.theme)

	loader := m.loader
	theme := m.theme
	if loader == nil {
		return nil
	}
	return func() tea.Msg {
		return themeSavedMsg{err: loader.SaveTheme(theme)}
	}
}

// syncCursor keeps the cursor on the selected session as the list shifts
// under it.
func (m *Model) syncCursor() {
	sessions := m.sessions.Sessions()
	selected := m.sessions.Selected()

	for i, sess := range sessions {
		if sess.ID == selected {
			m.cursor = i
			return
		}
	}
	if m.cursor >= len(sessions) {
		m.cursor = max(0, len(sessions)-1)
	}
}

// refreshFeed rebuilds the viewport content and, when following, snaps to
// the bottom.
func (m *Model) refreshFeed() {
	m.viewport.SetContent(m.renderFeed())
	if m.follow.ShouldAutoScroll() {
		m.viewport.GotoBottom()
	}
}

func (m *Model) distanceFromBottom() int {
	return max(0, m.viewport.TotalLineCount()-(m.viewport.YOffset+m.viewport.Height))
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	header := m.renderHeader()
	body := lipgloss.JoinHorizontal(lipgloss.Top, m.renderSidebar(), m.viewport.View())
	status := m.renderStatusBar()

	return lipgloss.JoinVertical(lipgloss.Left, header, body, status)
}

func (m Model) renderHeader() string {
	title := "overlook"
	if m.sessions.Loading() {
		title += " · loading"
	}
	return m.styles.Header.Width(m.width).Render(title)
}

func (m Model) renderSidebar() string {
	sessions := m.sessions.Sessions()
	height := max(5, m.height-chromeRows)

	var b strings.Builder
	if len(sessions) == 0 {
		b.WriteString(m.styles.Dim.Render(" no sessions yet"))
		b.WriteString("\n")
		b.WriteString(m.styles.Dim.Render(" ctrl+n starts one"))
	}

	for i, sess := range sessions {
		if i >= height {
			break
		}

		status := m.styles.Status(sess.Status).Render(string(sess.Status))
		row := fmt.Sprintf("#%d %s %s", sess.ID, truncate(sess.Name, 16), status)
		if i == m.cursor {
			b.WriteString(m.styles.SelectedRow.Width(sidebarWidth - 2).Render(row))
		} else {
			b.WriteString(m.styles.Item.Width(sidebarWidth - 2).Render(row))
		}
		b.WriteString("\n")
	}

	return m.styles.Sidebar.Width(sidebarWidth).Height(height).Render(b.String())
}

func (m Model) renderStatusBar() string {
	parts := []string{m.follow.Mode().String(), "theme:" + m.theme}

	if errMsg := m.sessions.Err(); errMsg != "" {
		parts = append(parts, m.styles.ErrorText.Render(errMsg))
	}

	help := m.styles.Help.Render("ctrl+n new · x halt · f follow · t theme · q quit")
	left := strings.Join(parts, " · ")

	gap := m.width - lipgloss.Width(left) - lipgloss.Width(help) - 2
	if gap < 1 {
		gap = 1
	}
	return m.styles.StatusBar.Width(m.width).Render(left + strings.Repeat(" ", gap) + help)
}

func (m Model) renderFeed() string {
	selected := m.sessions.Selected()
	if selected == 0 {
		return m.styles.Dim.Render("select a session to watch its trajectory")
	}

	records := m.trajectories.BySession(selected)
	if len(records) == 0 {
		return m.styles.Dim.Render("no trajectory records yet")
	}

	var b strings.Builder
	for _, rec := range records {
		ts := rec.CreatedAt.Format("15:04:05")
		b.WriteString(m.styles.Dim.Render(ts))
		b.WriteString(" ")

		if rec.ToolName != "" {
			b.WriteString(m.styles.ToolName.Render(rec.ToolName))
			b.WriteString(" ")
		}

		title := displayTitle(rec.StepData, rec.RecordType)
		if rec.IsError {
			b.WriteString(m.styles.ErrorText.Render(title))
		} else {
			b.WriteString(m.styles.RecordTitle.Render(title))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func displayTitle(stepData map[string]any, fallback string) string {
	if stepData != nil {
		if title, ok := stepData["display_title"].(string); ok && title != "" {
			return title
		}
	}
	return fallback
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	if n <= 1 {
		return "…"
	}
	return string(runes[:n-1]) + "…"
}
