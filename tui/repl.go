package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nachoal/mini-agent-go/agent"
	"github.com/nachoal/mini-agent-go/tui/styles"
)

// Message types
type (
	eventMsg struct {
		event agent.Event
	}
	turnDoneMsg struct {
		result agent.TurnResult
	}
)

// REPL is the interactive bubbletea front end. Finished output is printed
// above the live region so the terminal keeps its native scrollback.
type REPL struct {
	ctx      context.Context
	session  *agent.Session
	commands *Commands
	renderer *Renderer
	opts     Options

	textarea textarea.Model
	spinner  spinner.Model
	width    int

	stream      *agent.Stream
	running     bool
	cancelling  bool
	interrupted bool

	suggestItems []commandEntry
	suggestIndex int
}

// NewREPL creates the interactive REPL model
func NewREPL(ctx context.Context, session *agent.Session, opts Options) REPL {
	renderer := NewRenderer(styles.GetTheme(opts.Theme), false)

	ta := textarea.New()
	ta.Placeholder = ""
	ta.ShowLineNumbers = false
	ta.Prompt = ""
	ta.CharLimit = 0
	ta.SetHeight(1)
	ta.Focus()

	transparent := lipgloss.NewStyle().
		UnsetBackground().
		UnsetBorderBackground().
		UnsetBorderStyle()
	ta.FocusedStyle.Base = transparent
	ta.FocusedStyle.Text = transparent
	ta.FocusedStyle.Placeholder = transparent
	ta.FocusedStyle.Prompt = transparent
	ta.FocusedStyle.CursorLine = transparent
	ta.BlurredStyle = ta.FocusedStyle

	// Enter sends
	ta.KeyMap.InsertNewline.SetEnabled(false)
	ta.SetWidth(wrapWidth)

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = renderer.Styles().Spinner

	return REPL{
		ctx:      ctx,
		session:  session,
		commands: NewCommands(session, opts.History),
		renderer: renderer,
		opts:     opts,
		textarea: ta,
		spinner:  s,
		width:    80,
	}
}

// Run starts the interactive REPL and blocks until the user exits
func Run(ctx context.Context, session *agent.Session, opts Options) error {
	m := NewREPL(ctx, session, opts)
	final, err := tea.NewProgram(m, tea.WithContext(ctx)).Run()
	if err != nil {
		return fmt.Errorf("running terminal UI: %w", err)
	}
	if r, ok := final.(REPL); ok && r.interrupted {
		return ErrInterrupted
	}
	return nil
}

func (m REPL) Init() tea.Cmd {
	banner := m.renderer.Banner(m.opts.Provider, m.opts.Model, m.session.Workspace().Root(),
		m.session.Registry().Len(), m.session.Skills().Len())
	return tea.Batch(textarea.Blink, printAboveBlock(banner))
}

func (m REPL) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.textarea.SetWidth(max(m.width-6, 1))
		return m, nil

	case spinner.TickMsg:
		if !m.running {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case eventMsg:
		if out := m.renderer.Event(msg.event); out != "" {
			cmds = append(cmds, printAboveLine(out))
		}
		cmds = append(cmds, m.listen())
		return m, tea.Batch(cmds...)

	case turnDoneMsg:
		m.running = false
		m.cancelling = false
		m.stream = nil
		m.textarea.Focus()
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			if m.running {
				m.cancel()
				return m, nil
			}
			m.interrupted = true
			return m, tea.Quit

		case tea.KeyEsc:
			if m.running {
				m.cancel()
				return m, nil
			}
			m.clearSuggestions()
			return m, nil

		case tea.KeyUp:
			if len(m.suggestItems) > 0 {
				if m.suggestIndex > 0 {
					m.suggestIndex--
				} else {
					m.suggestIndex = len(m.suggestItems) - 1
				}
				return m, nil
			}

		case tea.KeyDown:
			if len(m.suggestItems) > 0 {
				m.suggestIndex = (m.suggestIndex + 1) % len(m.suggestItems)
				return m, nil
			}

		case tea.KeyTab:
			if len(m.suggestItems) > 0 {
				m.complete()
				return m, nil
			}

		case tea.KeyEnter:
			if m.running {
				return m, nil
			}
			return m.submit()
		}
	}

	if !m.running {
		var cmd tea.Cmd
		m.textarea, cmd = m.textarea.Update(msg)
		cmds = append(cmds, cmd)
		m.updateSuggestions()
	}
	return m, tea.Batch(cmds...)
}

func (m REPL) View() string {
	var b strings.Builder

	if m.running {
		label := "Thinking..."
		if m.cancelling {
			label = "Cancelling..."
		}
		fmt.Fprintf(&b, "%s %s\n\n", m.spinner.View(), label)
	} else {
		b.WriteString("\n")
	}

	boxWidth := max(m.width-2, 1)
	status := fmt.Sprintf("Model: %s | Provider: %s | Workspace: %s",
		m.opts.Model, m.opts.Provider, m.session.Workspace().Root())
	b.WriteString(m.renderer.Styles().Status.Render(truncateToWidth(status, boxWidth-1)))
	b.WriteString("\n")

	input := m.renderer.Styles().Input.Width(boxWidth).Render("> " + m.textarea.View())
	b.WriteString(input)
	b.WriteString("\n")

	if n := len(m.suggestItems); n > 0 {
		st := m.renderer.Styles()
		visible := min(n, maxSuggestionsVisible)
		for i := 0; i < visible; i++ {
			item := m.suggestItems[i]
			line := fmt.Sprintf(" %s  %s", st.SuggestName.Render(item.name), st.SuggestDesc.Render(item.desc))
			if i == m.suggestIndex {
				line = st.SuggestSel.Render(line)
			}
			b.WriteString(line)
			b.WriteString("\n")
		}
		if n > visible {
			b.WriteString(st.SuggestDesc.Render(" … more"))
			b.WriteString("\n")
		}
	}

	return b.String()
}

func (m REPL) submit() (tea.Model, tea.Cmd) {
	value := m.textarea.Value()
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return m, nil
	}

	// A bare command prefix runs the highlighted suggestion
	if len(m.suggestItems) > 0 && !strings.ContainsAny(trimmed, " \t") {
		selected := m.suggestItems[m.suggestIndex].name
		if _, exact := lookupCommand(trimmed); !exact && strings.HasPrefix(selected, strings.ToLower(trimmed)) {
			trimmed = selected
		}
	}

	m.textarea.Reset()
	m.textarea.SetHeight(1)
	m.clearSuggestions()

	if IsCommand(trimmed) {
		res := m.commands.Run(trimmed)
		if res.quit {
			return m, tea.Quit
		}
		if res.err != nil {
			return m, printAboveBlock(m.renderer.Error(res.err.Error()))
		}
		if res.output == "" {
			return m, nil
		}
		return m, printAboveBlock(m.renderer.Command(res.output))
	}

	stream, err := m.session.Prompt(m.ctx, value)
	if err != nil {
		return m, printAboveBlock(m.renderer.Error(err.Error()))
	}
	m.stream = stream
	m.running = true
	m.textarea.Blur()

	return m, tea.Batch(
		printAboveBlock(m.renderer.User(value)),
		m.spinner.Tick,
		m.listen(),
	)
}

// listen waits for the next event of the running turn
func (m REPL) listen() tea.Cmd {
	stream := m.stream
	if stream == nil {
		return nil
	}
	return func() tea.Msg {
		ev, ok := <-stream.Events()
		if !ok {
			return turnDoneMsg{result: stream.Wait()}
		}
		return eventMsg{event: ev}
	}
}

func (m *REPL) cancel() {
	if !m.cancelling {
		m.cancelling = true
		m.session.Cancel()
	}
}

func (m *REPL) complete() {
	selected := m.suggestItems[m.suggestIndex].name
	current := strings.TrimLeft(m.textarea.Value(), " ")
	if i := strings.IndexAny(current, " \t"); i >= 0 {
		m.textarea.SetValue(selected + current[i:])
	} else {
		m.textarea.SetValue(selected + " ")
	}
	m.clearSuggestions()
}

func (m *REPL) updateSuggestions() {
	cur := strings.TrimSpace(m.textarea.Value())
	if !IsCommand(cur) || strings.ContainsAny(cur, " \t") {
		m.clearSuggestions()
		return
	}
	m.suggestItems = suggest(cur)
	if m.suggestIndex >= len(m.suggestItems) {
		m.suggestIndex = 0
	}
}

func (m *REPL) clearSuggestions() {
	m.suggestItems = nil
	m.suggestIndex = 0
}

func lookupCommand(name string) (commandEntry, bool) {
	name = strings.ToLower(name)
	for _, c := range commands {
		if c.name == name {
			return c, true
		}
	}
	return commandEntry{}, false
}

func printAboveLine(content string) tea.Cmd {
	return tea.Printf("%s\n", content)
}

func printAboveBlock(content string) tea.Cmd {
	return tea.Printf("%s\n\n", content)
}
