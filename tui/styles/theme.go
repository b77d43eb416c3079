package styles

import (
	"github.com/charmbracelet/lipgloss"
)

// Theme is the palette the REPL draws with
type Theme struct {
	Name    string
	Accent  lipgloss.AdaptiveColor
	Text    lipgloss.AdaptiveColor
	Muted   lipgloss.AdaptiveColor
	Border  lipgloss.AdaptiveColor
	Success lipgloss.AdaptiveColor
	Warning lipgloss.AdaptiveColor
	Error   lipgloss.AdaptiveColor
	Tool    lipgloss.AdaptiveColor
	// Highlight backs the selected suggestion
	Highlight lipgloss.AdaptiveColor
}

// DefaultTheme uses the terminal's 256-colour palette
var DefaultTheme = Theme{
	Name:      "default",
	Accent:    lipgloss.AdaptiveColor{Light: "26", Dark: "75"},
	Text:      lipgloss.AdaptiveColor{Light: "0", Dark: "15"},
	Muted:     lipgloss.AdaptiveColor{Light: "242", Dark: "245"},
	Border:    lipgloss.AdaptiveColor{Light: "240", Dark: "15"},
	Success:   lipgloss.AdaptiveColor{Light: "28", Dark: "78"},
	Warning:   lipgloss.AdaptiveColor{Light: "166", Dark: "214"},
	Error:     lipgloss.AdaptiveColor{Light: "160", Dark: "196"},
	Tool:      lipgloss.AdaptiveColor{Light: "30", Dark: "80"},
	Highlight: lipgloss.AdaptiveColor{Light: "153", Dark: "62"},
}

// DraculaTheme follows the Dracula palette
var DraculaTheme = Theme{
	Name:      "dracula",
	Accent:    lipgloss.AdaptiveColor{Light: "#BD93F9", Dark: "#BD93F9"},
	Text:      lipgloss.AdaptiveColor{Light: "#282A36", Dark: "#F8F8F2"},
	Muted:     lipgloss.AdaptiveColor{Light: "#6272A4", Dark: "#6272A4"},
	Border:    lipgloss.AdaptiveColor{Light: "#6272A4", Dark: "#6272A4"},
	Success:   lipgloss.AdaptiveColor{Light: "#50FA7B", Dark: "#50FA7B"},
	Warning:   lipgloss.AdaptiveColor{Light: "#F1FA8C", Dark: "#F1FA8C"},
	Error:     lipgloss.AdaptiveColor{Light: "#FF5555", Dark: "#FF5555"},
	Tool:      lipgloss.AdaptiveColor{Light: "#8BE9FD", Dark: "#8BE9FD"},
	Highlight: lipgloss.AdaptiveColor{Light: "#44475A", Dark: "#44475A"},
}

// NordTheme follows the Nord palette
var NordTheme = Theme{
	Name:      "nord",
	Accent:    lipgloss.AdaptiveColor{Light: "#5E81AC", Dark: "#81A1C1"},
	Text:      lipgloss.AdaptiveColor{Light: "#2E3440", Dark: "#D8DEE9"},
	Muted:     lipgloss.AdaptiveColor{Light: "#4C566A", Dark: "#4C566A"},
	Border:    lipgloss.AdaptiveColor{Light: "#4C566A", Dark: "#4C566A"},
	Success:   lipgloss.AdaptiveColor{Light: "#A3BE8C", Dark: "#A3BE8C"},
	Warning:   lipgloss.AdaptiveColor{Light: "#EBCB8B", Dark: "#EBCB8B"},
	Error:     lipgloss.AdaptiveColor{Light: "#BF616A", Dark: "#BF616A"},
	Tool:      lipgloss.AdaptiveColor{Light: "#88C0D0", Dark: "#88C0D0"},
	Highlight: lipgloss.AdaptiveColor{Light: "#3B4252", Dark: "#3B4252"},
}

// GetTheme returns a theme by name, falling back to the default
func GetTheme(name string) Theme {
	switch name {
	case "dracula":
		return DraculaTheme
	case "nord":
		return NordTheme
	default:
		return DefaultTheme
	}
}
