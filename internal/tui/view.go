package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/Honorable-Knights-of-the-Roundtable/cassette/internal/transport"
)

const (
	panelWidth     = 64
	spectrumHeight = 8
	volumeBarWidth = 22
)

// Eighth blocks, from empty to full
var barRunes = []rune(" ▁▂▃▄▅▆▇█")

// View renders the full frame.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	sections := []string{
		m.renderTitle(),
		m.renderTrackInfo(),
		m.renderTimeStatus(),
		"",
		m.renderSpectrum(),
		m.renderSeekBar(),
		"",
		m.renderVolume(),
		"",
		m.styles.dim.Render("── Playlist ──"),
		m.renderPlaylist(),
		"",
		m.renderHelp(),
	}

	if m.err != nil {
		sections = append(sections, m.styles.errorLine.Render(fmt.Sprintf("ERR: %s", m.err)))
	}

	return m.styles.frame.Render(strings.Join(sections, "\n"))
}

func (m Model) renderTitle() string {
	title := m.styles.title.Render("C A S S E T T E")
	theme := m.styles.dim.Render(ThemeAt(m.theme).Name)
	gap := max(1, panelWidth-lipgloss.Width(title)-lipgloss.Width(theme))
	return title + strings.Repeat(" ", gap) + theme
}

func (m Model) renderTrackInfo() string {
	if m.state.TrackIndex < 0 {
		return m.styles.dim.Render("♫ No track loaded")
	}

	name := []rune(m.state.Track.DisplayName())
	if len(name) > panelWidth-2 {
		name = append(name[:panelWidth-3], '…')
	}
	return m.styles.track.Render("♫ " + string(name))
}

func formatDuration(d time.Duration) string {
	d = max(0, d)
	return fmt.Sprintf("%02d:%02d", int(d.Minutes()), int(d.Seconds())%60)
}

func (m Model) position() time.Duration {
	if m.state.State == transport.Seeking {
		return m.state.SeekTarget
	}
	return m.state.Position
}

func (m Model) renderTimeStatus() string {
	left := m.styles.text.Render(formatDuration(m.position()) + " / " + formatDuration(m.state.Duration))

	var status string
	switch m.state.State {
	case transport.Playing:
		status = m.styles.label.Render("▶ Playing")
	case transport.Paused:
		status = m.styles.label.Render("⏸ Paused")
	case transport.Seeking:
		status = m.styles.label.Render("» Seeking")
	default:
		status = m.styles.dim.Render("■ Stopped")
	}

	gap := max(1, panelWidth-lipgloss.Width(left)-lipgloss.Width(status))
	return left + strings.Repeat(" ", gap) + status
}

// renderSpectrum draws the bars bottom up, eight levels per row. Bars above
// the beat threshold take the highlight colour while a beat is decaying.
func (m Model) renderSpectrum() string {
	bins := m.spectrum.Bins
	if len(bins) == 0 {
		return strings.Repeat("\n", spectrumHeight-1)
	}

	width := max(1, panelWidth/len(bins)-1)
	rows := make([]string, spectrumHeight)
	for row := range spectrumHeight {
		var b strings.Builder
		floor := float64(spectrumHeight-1-row) / spectrumHeight
		for i, level := range bins {
			level = max(0, min(1, level))
			fill := (level - floor) * spectrumHeight
			r := barRunes[int(max(0, min(1, fill))*float64(len(barRunes)-1))]

			style := m.styles.barLow
			if m.spectrum.Beat > 0 && level >= 1-m.spectrum.Beat {
				style = m.styles.barHigh
			}
			b.WriteString(style.Render(strings.Repeat(string(r), width)))
			if i < len(bins)-1 {
				b.WriteByte(' ')
			}
		}
		rows[row] = b.String()
	}
	return strings.Join(rows, "\n")
}

func (m Model) renderSeekBar() string {
	var progress float64
	if m.state.Duration > 0 {
		progress = float64(m.position()) / float64(m.state.Duration)
	}
	progress = max(0, min(1, progress))
	filled := int(progress * float64(panelWidth-1))

	return m.styles.highlight.Render(strings.Repeat("━", filled)+"●") +
		m.styles.dim.Render(strings.Repeat("━", max(0, panelWidth-filled-1)))
}

func (m Model) renderVolume() string {
	vol := float64(m.state.Volume)
	filled := int(max(0, min(1, vol)) * volumeBarWidth)
	bar := m.styles.highlight.Render(strings.Repeat("█", filled)) +
		m.styles.dim.Render(strings.Repeat("░", volumeBarWidth-filled))

	line := m.styles.label.Render("VOL ") + bar + m.styles.dim.Render(fmt.Sprintf(" %3.0f%%", vol*100))
	if m.state.Underruns > 0 {
		line += m.styles.dim.Render(fmt.Sprintf("  underruns %d", m.state.Underruns))
	}
	return line
}

func (m Model) renderPlaylist() string {
	if len(m.tracks) == 0 {
		return m.styles.dim.Render("  No tracks loaded")
	}

	visible := min(m.visible, len(m.tracks))
	scroll := max(0, min(m.scroll, len(m.tracks)-visible))

	lines := make([]string, 0, visible)
	for i := scroll; i < scroll+visible; i++ {
		prefix := "  "
		style := m.styles.text
		if i == m.state.TrackIndex && m.state.State != transport.Stopped {
			prefix = "▶ "
			style = m.styles.track
		}
		if i == m.cursor {
			style = m.styles.highlight
		}

		name := []rune(m.tracks[i].DisplayName())
		if maxW := panelWidth - 6; len(name) > maxW {
			name = append(name[:maxW-1], '…')
		}
		lines = append(lines, style.Render(fmt.Sprintf("%s%d. %s", prefix, i+1, string(name))))
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderHelp() string {
	return m.styles.dim.Render("[Spc]Pause [←→]Seek [n/p]Trk [Enter]Play [s]Stop [+-]Vol [t]Theme [q]Quit")
}
