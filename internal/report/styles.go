// Package report renders loop progress and results for the terminal.
package report

import (
	"io"

	"github.com/charmbracelet/lipgloss"
)

// Semantic colors
var (
	Primary     = lipgloss.Color("#8BC34A") // Lime Green
	Destructive = lipgloss.Color("#e53935") // Red
	Warning     = lipgloss.Color("#FFC107") // Yellow
	Info        = lipgloss.Color("#2196F3") // Blue
	Muted       = lipgloss.Color("#6b7280") // Grey
)

// Styles holds the styled components used by the reporter.
type Styles struct {
	Title   lipgloss.Style
	Round   lipgloss.Style
	TaskID  lipgloss.Style
	Passed  lipgloss.Style
	Failed  lipgloss.Style
	Skipped lipgloss.Style
	Warning lipgloss.Style
	Muted   lipgloss.Style
}

// NewStyles builds styles bound to w's color profile. Writers that are not
// terminals get plain text.
func NewStyles(w io.Writer) Styles {
	r := lipgloss.NewRenderer(w)
	return Styles{
		Title:   r.NewStyle().Bold(true).Foreground(Primary),
		Round:   r.NewStyle().Bold(true).Foreground(Info),
		TaskID:  r.NewStyle().Bold(true),
		Passed:  r.NewStyle().Foreground(Primary),
		Failed:  r.NewStyle().Foreground(Destructive),
		Skipped: r.NewStyle().Foreground(Muted),
		Warning: r.NewStyle().Bold(true).Foreground(Warning),
		Muted:   r.NewStyle().Foreground(Muted),
	}
}
