package tui

import (
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Honorable-Knights-of-the-Roundtable/cassette/internal/playlist"
	"github.com/Honorable-Knights-of-the-Roundtable/cassette/internal/spectrum"
	"github.com/Honorable-Knights-of-the-Roundtable/cassette/internal/transport"
)

type fakeEngine struct {
	state    transport.PlaybackStateView
	snapshot spectrum.Snapshot
	tracks   []playlist.Track
	sent     []transport.Command
	sendErr  error
}

func (e *fakeEngine) State() transport.PlaybackStateView { return e.state }
func (e *fakeEngine) Spectrum() spectrum.Snapshot        { return e.snapshot }
func (e *fakeEngine) Tracks() []playlist.Track           { return e.tracks }

func (e *fakeEngine) Send(cmd transport.Command) error {
	e.sent = append(e.sent, cmd)
	return e.sendErr
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		state: transport.PlaybackStateView{TrackIndex: -1, Volume: 0.7},
		tracks: []playlist.Track{
			playlist.TrackFromPath("/music/first.wav"),
			playlist.TrackFromPath("/music/second.mp3"),
			playlist.TrackFromPath("/music/third.flac"),
		},
	}
}

func runeKey(r string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(r)}
}

func press(t *testing.T, m Model, msg tea.KeyMsg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	model, ok := next.(Model)
	require.True(t, ok)
	return model, cmd
}

func TestKeysSendCommands(t *testing.T) {
	step := 5 * time.Second
	cases := []struct {
		name string
		key  tea.KeyMsg
		want transport.Command
	}{
		{"space toggles pause", tea.KeyMsg{Type: tea.KeySpace}, transport.TogglePause()},
		{"left seeks back", tea.KeyMsg{Type: tea.KeyLeft}, transport.SeekRelative(-step)},
		{"right seeks forward", tea.KeyMsg{Type: tea.KeyRight}, transport.SeekRelative(step)},
		{"n skips", runeKey("n"), transport.Next()},
		{"p goes back", runeKey("p"), transport.Previous()},
		{"s stops", runeKey("s"), transport.Stop()},
		{"enter loads the cursor", tea.KeyMsg{Type: tea.KeyEnter}, transport.LoadTrack(0)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			engine := newFakeEngine()
			m := NewModel(engine, Options{Refresh: 50 * time.Millisecond, SeekStep: step})

			_, cmd := press(t, m, tc.key)
			assert.Nil(t, cmd)
			require.Len(t, engine.sent, 1)
			assert.Equal(t, tc.want.Kind, engine.sent[0].Kind)
			assert.Equal(t, tc.want.Delta, engine.sent[0].Delta)
			assert.Equal(t, tc.want.Index, engine.sent[0].Index)
		})
	}
}

func TestCursorSelectsTrack(t *testing.T) {
	engine := newFakeEngine()
	m := NewModel(engine, Options{Refresh: time.Second})

	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyDown})
	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyDown})
	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyDown})
	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyUp})
	_, _ = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	require.Len(t, engine.sent, 1)
	assert.Equal(t, transport.CommandLoadTrack, engine.sent[0].Kind)
	assert.Equal(t, 1, engine.sent[0].Index)
}

func TestVolumeKeys(t *testing.T) {
	engine := newFakeEngine()
	m := NewModel(engine, Options{Refresh: time.Second})

	m, _ = press(t, m, runeKey("+"))
	_, _ = press(t, m, runeKey("-"))

	require.Len(t, engine.sent, 2)
	assert.InDelta(t, 0.75, engine.sent[0].Volume, 1e-6)
	assert.InDelta(t, 0.70, engine.sent[1].Volume, 1e-6)
}

func TestThemeCycles(t *testing.T) {
	m := NewModel(newFakeEngine(), Options{Refresh: time.Second})
	for range Themes {
		m, _ = press(t, m, runeKey("t"))
	}
	assert.Equal(t, len(Themes), m.Theme())
	assert.Equal(t, Themes[0].Name, ThemeAt(m.Theme()).Name)
	assert.Equal(t, Themes[len(Themes)-1].Name, ThemeAt(-1).Name)
}

func TestQuit(t *testing.T) {
	for _, key := range []tea.KeyMsg{runeKey("q"), {Type: tea.KeyCtrlC}} {
		m := NewModel(newFakeEngine(), Options{Refresh: time.Second})
		m, cmd := press(t, m, key)
		require.NotNil(t, cmd)
		assert.Equal(t, tea.QuitMsg{}, cmd())
		assert.Empty(t, m.View())
	}
}

func TestTickRefreshesView(t *testing.T) {
	engine := newFakeEngine()
	m := NewModel(engine, Options{Refresh: time.Second})
	assert.Contains(t, m.View(), "No track loaded")

	engine.state = transport.PlaybackStateView{
		State:      transport.Playing,
		TrackIndex: 1,
		Track:      engine.tracks[1],
		Position:   65 * time.Second,
		Duration:   3 * time.Minute,
		Volume:     0.7,
		LastError:  errors.New("corrupt stream"),
	}
	engine.snapshot = spectrum.Snapshot{Bins: []float64{0.1, 0.5, 1}, Beat: 0.5}

	next, cmd := m.Update(tickMsg(time.Now()))
	require.NotNil(t, cmd)
	m = next.(Model)

	view := m.View()
	assert.Contains(t, view, engine.tracks[1].DisplayName())
	assert.Contains(t, view, "01:05 / 03:00")
	assert.Contains(t, view, "Playing")
	assert.Contains(t, view, "corrupt stream")
}

func TestSendErrorIsShown(t *testing.T) {
	engine := newFakeEngine()
	engine.sendErr = transport.ErrQueueFull
	m := NewModel(engine, Options{Refresh: time.Second})

	m, _ = press(t, m, runeKey("n"))
	assert.Contains(t, m.View(), transport.ErrQueueFull.Error())
}
