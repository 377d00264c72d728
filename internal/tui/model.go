package tui

import (
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/studiowebux/relaunchprobe/internal/pool"
	"github.com/studiowebux/relaunchprobe/internal/probe"
)

// Source provides the probes to display
type Source interface {
	Snapshot() []probe.Snapshot
}

// Options configures the dashboard
type Options struct {
	Title   string
	Tick    time.Duration
	QuitKey string

	// Report returns the current relaunch report. Nil shows "pending".
	Report func() pool.Report

	// OnStart runs once the program is up and rendering. It must not block.
	OnStart func()

	// OnQuit runs in a command after the shutdown frame is drawn and before
	// the program exits
	OnQuit func()
}

// tickMsg triggers a refresh
type tickMsg time.Time

// Model is the dashboard state
type Model struct {
	source Source
	opts   Options
	title  string
	keys   keyMap
	help   help.Model

	rows   []probe.Snapshot
	report pool.Report

	width    int
	height   int
	quitting bool
}

// New creates a dashboard reading from source
func New(source Source, opts Options) Model {
	if opts.Tick <= 0 {
		opts.Tick = DefaultTick
	}
	return Model{
		source: source,
		opts:   opts,
		title:  opts.Title,
		keys:   newKeyMap(opts.QuitKey),
		help:   help.New(),
	}
}

// Init starts the refresh loop and the OnStart hook
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.refreshNow, m.tick()}
	if start := m.opts.OnStart; start != nil {
		cmds = append(cmds, func() tea.Msg {
			start()
			return nil
		})
	}
	return tea.Batch(cmds...)
}

func (m Model) refreshNow() tea.Msg {
	return tickMsg(time.Now())
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.opts.Tick, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update handles ticks, resizes and the quit key
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		if m.quitting {
			return m, nil
		}
		m.refresh()
		return m, m.tick()

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, m.keys.Quit) {
			return m.quit()
		}
	}
	return m, nil
}

func (m *Model) refresh() {
	m.rows = m.source.Snapshot()
	if m.opts.Report != nil {
		m.report = m.opts.Report()
	}
}

// quit switches to the shutdown frame and runs OnQuit once, off the event
// loop. Further quit keys wait for it.
func (m Model) quit() (tea.Model, tea.Cmd) {
	if m.quitting {
		return m, nil
	}
	m.quitting = true
	onQuit := m.opts.OnQuit
	if onQuit == nil {
		return m, tea.Quit
	}
	return m, func() tea.Msg {
		onQuit()
		return tea.Quit()
	}
}

// Rows returns the snapshot taken on the last refresh
func (m Model) Rows() []probe.Snapshot {
	return m.rows
}

// Quitting reports whether quit was requested
func (m Model) Quitting() bool {
	return m.quitting
}
