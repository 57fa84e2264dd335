// Package tui provides the Bubble Tea upload progress view.
//
// The TUI is opt-in (--tui) and shows the same progress events the
// non-interactive output prints. It never asks the user anything.
package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/pithecene-io/brainlink/upload"
)

var (
	accentColor  = lipgloss.Color("#2563EB")
	successColor = lipgloss.Color("#16A34A")
	warningColor = lipgloss.Color("#D97706")
	errorColor   = lipgloss.Color("#DC2626")
	dimColor     = lipgloss.Color("#9CA3AF")
)

var (
	TitleStyle   = lipgloss.NewStyle().Bold(true).Foreground(accentColor).MarginBottom(1)
	LabelStyle   = lipgloss.NewStyle().Foreground(dimColor).Width(8)
	ValueStyle   = lipgloss.NewStyle()
	SuccessStyle = lipgloss.NewStyle().Foreground(successColor)
	WarningStyle = lipgloss.NewStyle().Foreground(warningColor)
	ErrorStyle   = lipgloss.NewStyle().Foreground(errorColor).Bold(true)
	HelpStyle    = lipgloss.NewStyle().Foreground(dimColor).Italic(true).MarginTop(1)
)

// StateStyle colors an orchestrator state name. Active states, and the
// view's own "canceling", are shown as in flight.
func StateStyle(state string) lipgloss.Style {
	switch upload.State(state) {
	case upload.StateDone:
		return SuccessStyle
	case upload.StateFailed:
		return ErrorStyle
	case upload.StateIdle:
		return ValueStyle
	}
	return WarningStyle
}
