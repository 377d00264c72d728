package tui

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"

	"github.com/studiowebux/relaunchprobe/internal/probe"
)

func TestResize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		width int
		want  string
	}{
		{"exact fit", "Hello", 5, "Hello"},
		{"padded", "Hi", 5, "Hi   "},
		{"truncated", "Hello World", 5, "He..."},
		{"empty", "", 3, "   "},
		{"width equals marker", "Hello", 3, "..."},
		{"narrow without marker", "Hello", 2, "He"},
		{"zero width", "Hello", 0, ""},
		{"multibyte truncated", "héllo wörld", 8, "héllo..."},
		{"multibyte padded", "wörld", 7, "wörld  "},
		{"wide padded", "日本", 6, "日本  "},
		{"wide truncated", "日本語", 5, "日..."},
		{"wide rune straddles boundary", "日本語のレスポンス", 8, "日本... "},
		{"wide narrow without marker", "日本語", 2, "日"},
		{"wide rune wider than cell", "日本", 1, " "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Resize(tt.input, tt.width))
		})
	}
}

func TestResize_LengthAndIdempotence(t *testing.T) {
	inputs := []string{"", "a", "ECHO from 4567: Request 1", "ECHO (updated) from 4568: Request 39", "日本語のレスポンス"}
	for _, s := range inputs {
		for _, w := range []int{1, 3, 13, 32} {
			once := Resize(s, w)
			assert.Equal(t, w, utf8.RuneCountInString(once), "Resize(%q, %d)", s, w)
			assert.Equal(t, once, Resize(once, w), "Resize(%q, %d) is not idempotent", s, w)
		}
	}
}

func TestHeaderRule(t *testing.T) {
	want := strings.Repeat("━", 5) + "┿" + strings.Repeat("━", 34) + "┿" + strings.Repeat("━", 15)
	assert.Equal(t, want, HeaderRule())
}

func TestPlainTable(t *testing.T) {
	snaps := []probe.Snapshot{
		{Seq: 0, State: probe.StateSuccess, Response: "ECHO from 4567: Request 0", Elapsed: 2004*time.Millisecond + 900*time.Microsecond},
		{Seq: 1, State: probe.StateError, Elapsed: 3 * time.Millisecond},
		{Seq: 2, State: probe.StateWaiting},
		{Seq: 12, State: probe.StateSuccess, Response: "ECHO (updated) from 4568: Request 12", Elapsed: 2 * time.Second},
	}

	lines := strings.Split(PlainTable(snaps), "\n")

	assert.Equal(t, []string{
		" #   │ Response                         │ Duration (ms) ",
		HeaderRule(),
		" 0   │ ECHO from 4567: Request 0        │ 2004          ",
		" 1   │ Error                            │ 3             ",
		" 2   │ Waiting...                       │               ",
		" 12  │ ECHO (updated) from 4568: Req... │ 2000          ",
	}, lines)
}

func TestPlainTable_WideResponseKeepsColumnsAligned(t *testing.T) {
	snaps := []probe.Snapshot{
		{Seq: 0, State: probe.StateSuccess, Response: "ECHO from 4567: Request 0", Elapsed: time.Second},
		{Seq: 1, State: probe.StateSuccess, Response: "ECHO from 4567: 日本語のレスポンスを返します", Elapsed: time.Second},
	}

	lines := strings.Split(PlainTable(snaps), "\n")
	for _, line := range lines {
		assert.Equal(t, cells.StringWidth(lines[0]), cells.StringWidth(line), "line %q", line)
	}
}
