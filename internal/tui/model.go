// Package tui implements the Bubbletea terminal interface of the player.
package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Honorable-Knights-of-the-Roundtable/cassette/internal/playlist"
	"github.com/Honorable-Knights-of-the-Roundtable/cassette/internal/spectrum"
	"github.com/Honorable-Knights-of-the-Roundtable/cassette/internal/transport"
)

const (
	volumeStep      = 0.05
	minPlaylistRows = 3
	fixedRows       = 26
)

// What the interface needs from the playback engine.
type Engine interface {
	State() transport.PlaybackStateView
	Spectrum() spectrum.Snapshot
	Send(cmd transport.Command) error
	Tracks() []playlist.Track
}

type Options struct {
	Refresh  time.Duration
	SeekStep time.Duration
	Theme    int
}

type tickMsg time.Time

// Model is the Bubbletea model. State and spectrum are sampled on every tick,
// so View only renders what the model holds.
type Model struct {
	engine Engine
	opts   Options
	tracks []playlist.Track

	state    transport.PlaybackStateView
	spectrum spectrum.Snapshot

	theme    int
	styles   styles
	cursor   int
	scroll   int
	visible  int
	err      error
	quitting bool
}

func NewModel(engine Engine, opts Options) Model {
	return Model{
		engine:   engine,
		opts:     opts,
		tracks:   engine.Tracks(),
		state:    engine.State(),
		spectrum: engine.Spectrum(),
		theme:    opts.Theme,
		styles:   newStyles(ThemeAt(opts.Theme)),
		visible:  6,
	}
}

// Init starts the tick timer.
func (m Model) Init() tea.Cmd {
	return m.tickCmd()
}

func (m Model) tickCmd() tea.Cmd {
	return tea.Tick(m.opts.Refresh, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update handles messages: key presses, ticks, and window resizes.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		m.handleKey(msg)
		if m.quitting {
			return m, tea.Quit
		}
		return m, nil

	case tea.WindowSizeMsg:
		// Everything but the playlist takes a fixed number of rows
		m.visible = max(minPlaylistRows, msg.Height-fixedRows)
		m.adjustScroll()

	case tickMsg:
		m.state = m.engine.State()
		m.spectrum = m.engine.Spectrum()
		if m.state.LastError != nil {
			m.err = m.state.LastError
		}
		return m, m.tickCmd()
	}

	return m, nil
}

func (m *Model) send(cmd transport.Command) {
	if err := m.engine.Send(cmd); err != nil {
		m.err = err
	}
}

func (m *Model) handleKey(msg tea.KeyMsg) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
	case " ":
		m.send(transport.TogglePause())
	case "left", "h":
		m.send(transport.SeekRelative(-m.opts.SeekStep))
	case "right", "l":
		m.send(transport.SeekRelative(m.opts.SeekStep))
	case "n":
		m.send(transport.Next())
	case "p":
		m.send(transport.Previous())
	case "s":
		m.send(transport.Stop())
	case "+", "=":
		m.send(transport.SetVolume(m.state.Volume + volumeStep))
		m.state.Volume += volumeStep
	case "-":
		m.send(transport.SetVolume(max(0, m.state.Volume-volumeStep)))
		m.state.Volume = max(0, m.state.Volume-volumeStep)
	case "t":
		m.theme++
		m.styles = newStyles(ThemeAt(m.theme))
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
			m.adjustScroll()
		}
	case "down", "j":
		if m.cursor < len(m.tracks)-1 {
			m.cursor++
			m.adjustScroll()
		}
	case "enter":
		if len(m.tracks) > 0 {
			m.err = nil
			m.send(transport.LoadTrack(m.cursor))
		}
	}
}

// adjustScroll ensures cursor is visible in the playlist view.
func (m *Model) adjustScroll() {
	if m.cursor < m.scroll {
		m.scroll = m.cursor
	}
	if m.cursor >= m.scroll+m.visible {
		m.scroll = m.cursor - m.visible + 1
	}
}

// Index of the theme in use.
func (m Model) Theme() int {
	return m.theme
}
