package switcher

import "github.com/charmbracelet/lipgloss"

// Theme defines the colors of the overlay.
type Theme struct {
	Highlight lipgloss.Color // border and title of the highlighted card
	Origin    lipgloss.Color // marker on the tab the overlay opened from
	Text      lipgloss.Color // card titles
	TextMuted lipgloss.Color // stale previews, hints
	Border    lipgloss.Color // border of the other cards
}

// DarkTheme returns the default dark theme.
func DarkTheme() Theme {
	return Theme{
		Highlight: lipgloss.Color("#fab283"),
		Origin:    lipgloss.Color("#5c9cf5"),
		Text:      lipgloss.Color("#eeeeee"),
		TextMuted: lipgloss.Color("#808080"),
		Border:    lipgloss.Color("#484848"),
	}
}

// LightTheme returns a light theme for bright terminal backgrounds.
func LightTheme() Theme {
	return Theme{
		Highlight: lipgloss.Color("#b35c00"),
		Origin:    lipgloss.Color("#0550ae"),
		Text:      lipgloss.Color("#1f2328"),
		TextMuted: lipgloss.Color("#656d76"),
		Border:    lipgloss.Color("#d0d7de"),
	}
}

// ThemeByName returns a theme by name. Defaults to dark.
func ThemeByName(name string) Theme {
	switch name {
	case "light":
		return LightTheme()
	default:
		return DarkTheme()
	}
}

// styles holds the lipgloss styles derived from a Theme.
type styles struct {
	card         lipgloss.Style
	cardSelected lipgloss.Style
	title        lipgloss.Style
	titleSel     lipgloss.Style
	origin       lipgloss.Style
	stale        lipgloss.Style
	empty        lipgloss.Style

	hintKey  lipgloss.Style
	hintDesc lipgloss.Style
}

func newStyles(t Theme) styles {
	card := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(t.Border).
		Padding(0, 1)
	return styles{
		card:         card,
		cardSelected: card.BorderForeground(t.Highlight),
		title:        lipgloss.NewStyle().Foreground(t.Text),
		titleSel:     lipgloss.NewStyle().Bold(true).Foreground(t.Highlight),
		origin:       lipgloss.NewStyle().Foreground(t.Origin),
		stale:        lipgloss.NewStyle().Faint(true),
		empty:        lipgloss.NewStyle().Foreground(t.TextMuted),

		hintKey:  lipgloss.NewStyle().Foreground(t.Text),
		hintDesc: lipgloss.NewStyle().Foreground(t.TextMuted),
	}
}
