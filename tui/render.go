package tui

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/muesli/reflow/wordwrap"

	"github.com/nachoal/mini-agent-go/agent"
	"github.com/nachoal/mini-agent-go/tui/styles"
)

const (
	wrapWidth             = 74
	maxToolArgDisplayLen  = 140
	maxToolResultPreview  = 160
	maxSuggestionsVisible = 8
)

// Renderer turns session events into terminal text
type Renderer struct {
	styles   *styles.Styles
	markdown *glamour.TermRenderer
}

// NewRenderer creates a renderer. With plain set, markdown is printed
// as-is instead of through glamour.
func NewRenderer(theme styles.Theme, plain bool) *Renderer {
	r := &Renderer{styles: styles.NewStyles(theme)}
	if !plain {
		md, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle("notty"),
			glamour.WithWordWrap(wrapWidth),
		)
		if err == nil {
			r.markdown = md
		}
	}
	return r
}

// Styles returns the renderer's styles
func (r *Renderer) Styles() *styles.Styles {
	return r.styles
}

// User renders a submitted prompt
func (r *Renderer) User(text string) string {
	return r.styles.Label.Render("You: ") + r.styles.User.Render(text)
}

// Assistant renders the final answer of a turn
func (r *Renderer) Assistant(text string) string {
	label := r.styles.Assistant.Render("Assistant:")
	if strings.TrimSpace(text) == "" {
		return label + " " + r.styles.Command.Render("(no answer)")
	}
	if r.markdown != nil {
		if out, err := r.markdown.Render(text); err == nil {
			return label + "\n" + strings.Trim(out, "\n")
		}
	}
	return label + "\n" + text
}

// Thought renders model reasoning as muted text
func (r *Renderer) Thought(text string) string {
	return r.styles.Thought.Render(wrapText(strings.TrimSpace(text), wrapWidth))
}

// ToolStarted renders the start of a tool call
func (r *Renderer) ToolStarted(ev *agent.ToolEvent) string {
	line := "→ " + ev.Name
	if args := formatArguments(ev.Arguments); args != "" {
		line += " " + r.styles.ToolArgs.Render(args)
	}
	return r.styles.ToolStart.Render(line)
}

// ToolProgress renders an interim tool status line
func (r *Renderer) ToolProgress(ev *agent.ToolEvent, progress string) string {
	return r.styles.ToolArgs.Render(fmt.Sprintf("  %s: %s", ev.Name, truncateToWidth(progress, maxToolResultPreview)))
}

// ToolFinished renders a compact result line
func (r *Renderer) ToolFinished(ev *agent.ToolEvent) string {
	res := ev.Result
	if res == nil {
		return r.styles.ToolSuccess.Render("✓ " + ev.Name)
	}
	if res.OK {
		line := "✓ " + ev.Name
		if len(res.SideEffects) > 0 {
			line += " (" + strings.Join(res.SideEffects, "; ") + ")"
		}
		return r.styles.ToolSuccess.Render(line)
	}
	msg := res.ErrorMessage
	if msg == "" {
		msg = res.ErrorKind
	}
	return r.styles.ToolFailure.Render(fmt.Sprintf("✗ %s %s: %s", ev.Name, res.ErrorKind, truncateToWidth(msg, maxToolResultPreview)))
}

// Command renders meta-command output
func (r *Renderer) Command(text string) string {
	return r.styles.Command.Render(text)
}

// Error renders an error line
func (r *Renderer) Error(text string) string {
	return r.styles.Error.Render("Error: " + text)
}

// Notice renders a highlighted one-line notice
func (r *Renderer) Notice(text string) string {
	return r.styles.Notice.Render(text)
}

// Event renders one session event; it returns "" for events that have no
// transcript line of their own
func (r *Renderer) Event(ev agent.Event) string {
	switch ev.Type {
	case agent.EventAgentThought:
		return r.Thought(ev.Text)
	case agent.EventToolStarted:
		return r.ToolStarted(ev.Tool)
	case agent.EventToolProgress:
		return r.ToolProgress(ev.Tool, ev.Progress)
	case agent.EventToolFinished:
		return r.ToolFinished(ev.Tool)
	case agent.EventAssistantMessage:
		return r.Assistant(ev.Text)
	case agent.EventError:
		return r.Error(ev.Message)
	case agent.EventTurnFinished:
		switch ev.Reason {
		case agent.StopCancelled:
			return r.Notice("Turn cancelled.")
		case agent.StopStepLimit:
			return r.Notice("Stopped: step limit reached.")
		}
	}
	return ""
}

// Banner renders the startup header
func (r *Renderer) Banner(provider, model, workspace string, toolCount, skillCount int) string {
	line1 := fmt.Sprintf("%s | Model: %s | Provider: %s",
		r.styles.Title.Render("mini-agent"),
		r.styles.Label.Render(model),
		r.styles.Label.Render(provider))
	line2 := r.styles.Status.Render(fmt.Sprintf("Workspace: %s | Tools: %d | Skills: %d | /help for commands",
		workspace, toolCount, skillCount))
	return line1 + "\n" + line2
}

// formatArguments formats tool arguments for display
func formatArguments(args map[string]interface{}) string {
	if len(args) == 0 {
		return ""
	}

	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		var v string
		switch val := args[k].(type) {
		case string:
			v = val
		default:
			b, err := json.Marshal(val)
			if err != nil {
				v = fmt.Sprintf("%v", val)
			} else {
				v = string(b)
			}
		}
		v = truncateToWidth(strings.Join(strings.Fields(v), " "), maxToolArgDisplayLen)
		parts = append(parts, fmt.Sprintf("%s=%s", k, v))
	}
	return fmt.Sprintf("(%s)", strings.Join(parts, ", "))
}

func truncateToWidth(s string, max int) string {
	if max <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	if max == 1 {
		return "…"
	}
	return string(r[:max-1]) + "…"
}

func wrapText(text string, width int) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if strings.TrimSpace(line) != "" {
			lines[i] = wordwrap.String(line, width)
		}
	}
	return strings.Join(lines, "\n")
}
