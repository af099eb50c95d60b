package tui

import "github.com/charmbracelet/lipgloss"

// A Theme is a palette; the model builds its styles from the selected one.
type Theme struct {
	Name      string
	Primary   lipgloss.Color // titles
	Secondary lipgloss.Color // labels
	Accent    lipgloss.Color // current track, cursor
	Border    lipgloss.Color
	Text      lipgloss.Color
	Highlight lipgloss.Color // progress, loud bars
}

var Themes = []Theme{
	{
		Name:      "System",
		Primary:   "#00FF64",
		Secondary: "#FF64FF",
		Accent:    "#FFFF00",
		Border:    "#00FF64",
		Text:      "#C8FFC8",
		Highlight: "#FFFF00",
	},
	{
		Name:      "Dark",
		Primary:   "12",
		Secondary: "14",
		Accent:    "11",
		Border:    "8",
		Text:      "15",
		Highlight: "13",
	},
	{
		Name:      "Synthwave",
		Primary:   "#FF64FF",
		Secondary: "#64FFFF",
		Accent:    "#FFFF64",
		Border:    "#6464C8",
		Text:      "#FFFFFF",
		Highlight: "#FF3296",
	},
	{
		Name:      "Ocean",
		Primary:   "#0096FF",
		Secondary: "#64FFFF",
		Accent:    "#FFFF64",
		Border:    "#326496",
		Text:      "#C8DCFF",
		Highlight: "#00FFC8",
	},
	{
		Name:      "Forest",
		Primary:   "#00C800",
		Secondary: "#64FF64",
		Accent:    "#FFFF64",
		Border:    "#649664",
		Text:      "#C8FFC8",
		Highlight: "#FFC800",
	},
	{
		Name:      "Retro",
		Primary:   "#FF9600",
		Secondary: "#FFC864",
		Accent:    "#FF6400",
		Border:    "#966432",
		Text:      "#FFDCB4",
		Highlight: "#FFB400",
	},
	{
		Name:      "Matrix",
		Primary:   "#00FF00",
		Secondary: "#00C800",
		Accent:    "#00FF64",
		Border:    "#006400",
		Text:      "#00FF00",
		Highlight: "#64FF64",
	},
	{
		Name:      "Fire",
		Primary:   "#FF9600",
		Secondary: "#FF6400",
		Accent:    "#FFC800",
		Border:    "#963200",
		Text:      "#FFB496",
		Highlight: "#FF7800",
	},
}

// ThemeAt returns the theme for any index, wrapping around the list.
func ThemeAt(index int) Theme {
	n := len(Themes)
	return Themes[((index%n)+n)%n]
}

type styles struct {
	frame     lipgloss.Style
	title     lipgloss.Style
	label     lipgloss.Style
	track     lipgloss.Style
	text      lipgloss.Style
	dim       lipgloss.Style
	highlight lipgloss.Style
	errorLine lipgloss.Style
	barLow    lipgloss.Style
	barHigh   lipgloss.Style
}

func newStyles(t Theme) styles {
	return styles{
		frame: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(t.Border).
			Padding(1, 2),
		title:     lipgloss.NewStyle().Foreground(t.Primary).Bold(true),
		label:     lipgloss.NewStyle().Foreground(t.Secondary).Bold(true),
		track:     lipgloss.NewStyle().Foreground(t.Accent),
		text:      lipgloss.NewStyle().Foreground(t.Text),
		dim:       lipgloss.NewStyle().Foreground(t.Border),
		highlight: lipgloss.NewStyle().Foreground(t.Highlight).Bold(true),
		errorLine: lipgloss.NewStyle().Foreground(lipgloss.ANSIColor(9)),
		barLow:    lipgloss.NewStyle().Foreground(t.Primary),
		barHigh:   lipgloss.NewStyle().Foreground(t.Highlight),
	}
}
