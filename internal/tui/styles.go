package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/halim/overlook/internal/config"
	"github.com/halim/overlook/internal/model"
)

// Styles holds the lipgloss styles for one theme.
type Styles struct {
	Header      lipgloss.Style
	Sidebar     lipgloss.Style
	Item        lipgloss.Style
	SelectedRow lipgloss.Style
	Dim         lipgloss.Style
	StatusBar   lipgloss.Style
	ErrorText   lipgloss.Style
	ToolName    lipgloss.Style
	RecordTitle lipgloss.Style
	Help        lipgloss.Style

	statusColors map[model.Status]lipgloss.Style
}

// NewStyles builds the palette for a theme name. Anything but light gets
// the dark palette.
func NewStyles(theme string) Styles {
	if theme == config.ThemeLight {
		return lightStyles()
	}
	return darkStyles()
}

func darkStyles() Styles {
	return Styles{
		Header: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("255")).
			Background(lipgloss.Color("236")).
			Padding(0, 1),
		Sidebar: lipgloss.NewStyle().
			BorderStyle(lipgloss.NormalBorder()).
			BorderRight(true).
			BorderForeground(lipgloss.Color("238")),
		Item: lipgloss.NewStyle().
			Padding(0, 1),
		SelectedRow: lipgloss.NewStyle().
			Background(lipgloss.Color("25")).
			Foreground(lipgloss.Color("255")).
			Padding(0, 1),
		Dim: lipgloss.NewStyle().
			Foreground(lipgloss.Color("242")),
		StatusBar: lipgloss.NewStyle().
			Background(lipgloss.Color("236")).
			Foreground(lipgloss.Color("252")).
			Padding(0, 1),
		ErrorText: lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true),
		ToolName: lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")).
			Bold(true),
		RecordTitle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")),
		Help: lipgloss.NewStyle().
			Foreground(lipgloss.Color("242")),
		statusColors: map[model.Status]lipgloss.Style{
			model.StatusPending:   lipgloss.NewStyle().Foreground(lipgloss.Color("246")),
			model.StatusRunning:   lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
			model.StatusCompleted: lipgloss.NewStyle().Foreground(lipgloss.Color("39")),
			model.StatusError:     lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
			model.StatusHalting:   lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
			model.StatusHalted:    lipgloss.NewStyle().Foreground(lipgloss.Color("208")),
		},
	}
}

func lightStyles() Styles {
	return Styles{
		Header: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("0")).
			Background(lipgloss.Color("252")).
			Padding(0, 1),
		Sidebar: lipgloss.NewStyle().
			BorderStyle(lipgloss.NormalBorder()).
			BorderRight(true).
			BorderForeground(lipgloss.Color("250")),
		Item: lipgloss.NewStyle().
			Padding(0, 1).
			Foreground(lipgloss.Color("235")),
		SelectedRow: lipgloss.NewStyle().
			Background(lipgloss.Color("153")).
			Foreground(lipgloss.Color("0")).
			Padding(0, 1),
		Dim: lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")),
		StatusBar: lipgloss.NewStyle().
			Background(lipgloss.Color("252")).
			Foreground(lipgloss.Color("235")).
			Padding(0, 1),
		ErrorText: lipgloss.NewStyle().
			Foreground(lipgloss.Color("124")).
			Bold(true),
		ToolName: lipgloss.NewStyle().
			Foreground(lipgloss.Color("130")).
			Bold(true),
		RecordTitle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("235")),
		Help: lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")),
		statusColors: map[model.Status]lipgloss.Style{
			model.StatusPending:   lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
			model.StatusRunning:   lipgloss.NewStyle().Foreground(lipgloss.Color("28")),
			model.StatusCompleted: lipgloss.NewStyle().Foreground(lipgloss.Color("26")),
			model.StatusError:     lipgloss.NewStyle().Foreground(lipgloss.Color("124")),
			model.StatusHalting:   lipgloss.NewStyle().Foreground(lipgloss.Color("130")),
			model.StatusHalted:    lipgloss.NewStyle().Foreground(lipgloss.Color("94")),
		},
	}
}

// Status returns the style for a lifecycle status, falling back to dim for
// anything unrecognized.
func (s Styles) Status(status model.Status) lipgloss.Style {
	if style, ok := s.statusColors[status]; ok {
		return style
	}
	return s.Dim
}
