package tui

import (
	"strconv"
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/studiowebux/relaunchprobe/internal/probe"
)

// cells measures text in terminal cells. East Asian ambiguous runes count as
// narrow whatever the locale so the layout is stable.
var cells = &runewidth.Condition{StrictEmojiNeutral: true}

// Resize fits s to exactly width terminal cells: shorter strings are
// right-padded, longer ones are cut to leave room for "...". Widths below the
// marker length truncate without it. A wide rune that would straddle the
// boundary is dropped and replaced by padding.
func Resize(s string, width int) string {
	if width <= 0 {
		return ""
	}
	switch w := cells.StringWidth(s); {
	case w == width:
		return s
	case w < width:
		return cells.FillRight(s, width)
	case width < cells.StringWidth(EllipsisMarker):
		return cells.FillRight(cells.Truncate(s, width, ""), width)
	default:
		return cells.FillRight(cells.Truncate(s, width, EllipsisMarker), width)
	}
}

// palette styles already-resized cell text
type palette struct {
	header  func(string) string
	waiting func(string) string
	success func(string) string
	failure func(string) string
}

func identity(s string) string { return s }

// plainPalette leaves text untouched, for non-terminal output
var plainPalette = palette{
	header:  identity,
	waiting: identity,
	success: identity,
	failure: identity,
}

// joinRow pads each cell and separates cells with the column separator
func joinRow(cells ...string) string {
	padded := make([]string, len(cells))
	for i, c := range cells {
		padded[i] = CellPadding + c + CellPadding
	}
	return strings.Join(padded, CellSeparator)
}

// HeaderRule is the line between the header and the first probe row
func HeaderRule() string {
	pad := len(CellPadding) * 2
	return strings.Repeat(RuleChar, SeqWidth+pad) +
		RuleCross +
		strings.Repeat(RuleChar, ResponseWidth+pad) +
		RuleCross +
		strings.Repeat(RuleChar, DurationWidth+pad)
}

func renderHeader(p palette) string {
	return joinRow(
		p.header(Resize("#", SeqWidth)),
		p.header(Resize("Response", ResponseWidth)),
		p.header(Resize("Duration (ms)", DurationWidth)),
	)
}

func renderRow(s probe.Snapshot, p palette) string {
	seq := Resize(strconv.Itoa(s.Seq), SeqWidth)

	switch s.State {
	case probe.StateSuccess:
		return joinRow(
			seq,
			p.success(Resize(s.Response, ResponseWidth)),
			Resize(strconv.FormatInt(s.ElapsedMs(), 10), DurationWidth),
		)
	case probe.StateError:
		return joinRow(
			seq,
			p.failure(Resize(ErrorText, ResponseWidth)),
			Resize(strconv.FormatInt(s.ElapsedMs(), 10), DurationWidth),
		)
	default:
		return joinRow(
			seq,
			p.waiting(Resize(WaitingText, ResponseWidth)),
			Resize("", DurationWidth),
		)
	}
}

// renderTable lays out the header, the rule and one row per snapshot
func renderTable(snaps []probe.Snapshot, p palette) string {
	lines := make([]string, 0, len(snaps)+2)
	lines = append(lines, renderHeader(p), HeaderRule())
	for _, s := range snaps {
		lines = append(lines, renderRow(s, p))
	}
	return strings.Join(lines, "\n")
}

// PlainTable renders the table without styles
func PlainTable(snaps []probe.Snapshot) string {
	return renderTable(snaps, plainPalette)
}
