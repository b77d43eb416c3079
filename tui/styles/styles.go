package styles

import (
	"github.com/charmbracelet/lipgloss"
)

// Styles holds the styles of the REPL output
type Styles struct {
	Theme Theme

	// Transcript
	User      lipgloss.Style
	Assistant lipgloss.Style
	Thought   lipgloss.Style
	Command   lipgloss.Style
	Error     lipgloss.Style
	Notice    lipgloss.Style

	// Tools
	ToolStart   lipgloss.Style
	ToolSuccess lipgloss.Style
	ToolFailure lipgloss.Style
	ToolArgs    lipgloss.Style

	// Prompt area
	Input       lipgloss.Style
	Status      lipgloss.Style
	Spinner     lipgloss.Style
	SuggestName lipgloss.Style
	SuggestDesc lipgloss.Style
	SuggestSel  lipgloss.Style

	// Header
	Title lipgloss.Style
	Label lipgloss.Style
}

// NewStyles creates the styles for a theme
func NewStyles(theme Theme) *Styles {
	s := &Styles{Theme: theme}

	s.User = lipgloss.NewStyle().Foreground(theme.Text)
	s.Assistant = lipgloss.NewStyle().Foreground(theme.Accent).Bold(true)
	s.Thought = lipgloss.NewStyle().Foreground(theme.Muted).Italic(true)
	s.Command = lipgloss.NewStyle().Foreground(theme.Muted)
	s.Error = lipgloss.NewStyle().Foreground(theme.Error)
	s.Notice = lipgloss.NewStyle().Foreground(theme.Warning).Bold(true)

	s.ToolStart = lipgloss.NewStyle().Foreground(theme.Tool).Italic(true)
	s.ToolSuccess = lipgloss.NewStyle().Foreground(theme.Success)
	s.ToolFailure = lipgloss.NewStyle().Foreground(theme.Error)
	s.ToolArgs = lipgloss.NewStyle().Foreground(theme.Muted)

	s.Input = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(theme.Border).
		PaddingLeft(1).
		PaddingRight(1)
	s.Status = lipgloss.NewStyle().Foreground(theme.Muted)
	s.Spinner = lipgloss.NewStyle().Foreground(theme.Accent)
	s.SuggestName = lipgloss.NewStyle().Foreground(theme.Accent)
	s.SuggestDesc = lipgloss.NewStyle().Foreground(theme.Muted)
	s.SuggestSel = lipgloss.NewStyle().Background(theme.Highlight)

	s.Title = lipgloss.NewStyle().Foreground(theme.Text).Bold(true)
	s.Label = lipgloss.NewStyle().Foreground(theme.Accent)

	return s
}
