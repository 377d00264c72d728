package tui

import "time"

// Table layout
const (
	SeqWidth      = 3
	ResponseWidth = 32
	DurationWidth = 13

	CellPadding   = " "
	CellSeparator = "│"
	RuleChar      = "━"
	RuleCross     = "┿"

	// EllipsisMarker replaces the tail of truncated cells
	EllipsisMarker = "..."

	WaitingText = "Waiting..."
	ErrorText   = "Error"

	// ShuttingDownText replaces the table while backends are stopped on quit
	ShuttingDownText = "Shutting down backends..."
)

// DefaultTick is the refresh period of the dashboard
const DefaultTick = 100 * time.Millisecond

// Lines used by title, blank lines, summary, status and help around the table
const chromeLines = 7
