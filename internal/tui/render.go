package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/studiowebux/relaunchprobe/internal/pool"
	"github.com/studiowebux/relaunchprobe/internal/probe"
)

// Adaptive colors for light and dark terminals
var (
	colorGreen  = lipgloss.AdaptiveColor{Light: "#006400", Dark: "#00ff00"} // Dark green / Bright green
	colorRed    = lipgloss.AdaptiveColor{Light: "#8b0000", Dark: "#ff0000"} // Dark red / Bright red
	colorYellow = lipgloss.AdaptiveColor{Light: "#b8860b", Dark: "#ffff00"} // Dark goldenrod / Yellow
	colorGray   = lipgloss.AdaptiveColor{Light: "#555555", Dark: "#888888"} // Dark gray / Light gray
	colorCyan   = lipgloss.AdaptiveColor{Light: "#008b8b", Dark: "#00ffff"} // Dark cyan / Cyan
)

// Styles
var (
	styleTitle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorCyan)

	styleHeader = lipgloss.NewStyle().
			Bold(true)

	styleSuccess = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorGreen)

	styleError = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorRed)

	styleWarning = lipgloss.NewStyle().
			Foreground(colorYellow)

	styleSubtle = lipgloss.NewStyle().
			Foreground(colorGray)
)

var styledPalette = palette{
	header:  func(s string) string { return styleHeader.Render(s) },
	waiting: func(s string) string { return styleWarning.Render(s) },
	success: func(s string) string { return styleSuccess.Render(s) },
	failure: func(s string) string { return styleError.Render(s) },
}

// View renders the dashboard
func (m Model) View() string {
	var b strings.Builder
	if m.title != "" {
		b.WriteString(styleTitle.Render(m.title))
		b.WriteString("\n\n")
	}
	if m.quitting {
		b.WriteString(styleWarning.Render(ShuttingDownText))
		b.WriteString("\n")
		return b.String()
	}

	b.WriteString(renderTable(m.visibleRows(), styledPalette))
	b.WriteString("\n\n")

	b.WriteString(styleSubtle.Render(probe.Summarize(m.rows).String()))
	b.WriteString("\n")
	b.WriteString(renderRelaunchStatus(m.report))
	b.WriteString("\n")
	b.WriteString(m.help.View(m.keys))

	return b.String()
}

// visibleRows keeps the newest rows that fit the terminal height
func (m Model) visibleRows() []probe.Snapshot {
	if m.height <= 0 {
		return m.rows
	}
	fit := m.height - chromeLines - 2
	if fit < 1 {
		fit = 1
	}
	if len(m.rows) <= fit {
		return m.rows
	}
	return m.rows[len(m.rows)-fit:]
}

func renderRelaunchStatus(r pool.Report) string {
	label := "relaunch: " + r.String()
	switch r.State {
	case pool.RelaunchInProgress:
		return styleWarning.Render(label)
	case pool.RelaunchDone:
		return styleSuccess.Render(label)
	case pool.RelaunchDegraded:
		return styleError.Render(label)
	default:
		return styleSubtle.Render(label)
	}
}
