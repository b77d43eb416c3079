package tui

import (
	"fmt"
	"strings"

	"github.com/sahilm/fuzzy"

	"github.com/nachoal/mini-agent-go/agent"
	"github.com/nachoal/mini-agent-go/history"
)

// commandEntry represents a meta-command and its short description
type commandEntry struct {
	name  string
	usage string
	desc  string
}

var commands = []commandEntry{
	{name: "/help", desc: "Show this help"},
	{name: "/tools", desc: "List available tools"},
	{name: "/skills", desc: "List discovered skills"},
	{name: "/allow", usage: "<tool|category>", desc: "Allow a tool or category for this session"},
	{name: "/deny", usage: "<tool|category>", desc: "Deny a tool or category for this session"},
	{name: "/save", desc: "Save the conversation under the workspace"},
	{name: "/clear", desc: "Clear the conversation"},
	{name: "/exit", desc: "Exit (also /quit)"},
	{name: "/quit", desc: "Exit"},
}

// commandResult is the outcome of a meta-command
type commandResult struct {
	output string
	err    error
	quit   bool
	clear  bool
}

// Commands runs meta-commands against a session
type Commands struct {
	session *agent.Session
	history *history.Manager
}

// NewCommands creates a command runner. A nil history manager saves under
// the session workspace.
func NewCommands(session *agent.Session, hist *history.Manager) *Commands {
	return &Commands{session: session, history: hist}
}

// IsCommand reports whether a line is a meta-command
func IsCommand(line string) bool {
	return strings.HasPrefix(strings.TrimSpace(line), "/")
}

// Run executes one meta-command line
func (c *Commands) Run(line string) commandResult {
	fields := strings.Fields(strings.TrimSpace(line))
	if len(fields) == 0 {
		return commandResult{}
	}
	name := strings.ToLower(fields[0])
	args := fields[1:]

	switch name {
	case "/help":
		return commandResult{output: helpText()}
	case "/exit", "/quit":
		return commandResult{quit: true}
	case "/clear":
		if err := c.session.Clear(); err != nil {
			return commandResult{err: err}
		}
		return commandResult{output: "Conversation cleared.", clear: true}
	case "/tools":
		return commandResult{output: c.toolsText()}
	case "/skills":
		return commandResult{output: c.skillsText()}
	case "/allow", "/deny":
		return c.permission(name, args)
	case "/save":
		path, err := c.session.Save(c.history)
		if err != nil {
			return commandResult{err: fmt.Errorf("save failed: %w", err)}
		}
		return commandResult{output: "Conversation saved to " + path}
	}

	msg := fmt.Sprintf("Unknown command %s.", fields[0])
	if suggestions := suggest(name); len(suggestions) > 0 {
		names := make([]string, len(suggestions))
		for i, s := range suggestions {
			names[i] = s.name
		}
		msg += " Did you mean " + strings.Join(names, ", ") + "?"
	} else {
		msg += " Type /help for the list of commands."
	}
	return commandResult{err: fmt.Errorf("%s", msg)}
}

func (c *Commands) permission(name string, args []string) commandResult {
	if len(args) != 1 {
		return commandResult{err: fmt.Errorf("usage: %s <tool|category>", name)}
	}
	target := args[0]
	if !c.knownTarget(target) {
		return commandResult{err: fmt.Errorf("no tool or category named %q", target)}
	}

	perms := c.session.Permissions()
	if name == "/allow" {
		perms.Allow(target)
		return commandResult{output: fmt.Sprintf("Allowed %s for this session.", target)}
	}
	perms.Deny(target)
	return commandResult{output: fmt.Sprintf("Denied %s for this session.", target)}
}

func (c *Commands) knownTarget(target string) bool {
	for _, t := range c.session.Registry().List() {
		if t.Name() == target || string(t.Category()) == target {
			return true
		}
	}
	return false
}

func (c *Commands) toolsText() string {
	list := c.session.Registry().List()
	if len(list) == 0 {
		return "No tools are enabled."
	}

	perms := c.session.Permissions()
	var b strings.Builder
	b.WriteString("Available tools:\n")
	for _, t := range list {
		flags := []string{string(t.Category())}
		if t.ReadOnly() {
			flags = append(flags, "read-only")
		}
		if !perms.Allowed(t.Name(), t.Category()) {
			flags = append(flags, "denied")
		}
		fmt.Fprintf(&b, "  %-15s %s [%s]\n", t.Name(), firstLine(t.Description()), strings.Join(flags, ", "))
	}
	return strings.TrimRight(b.String(), "\n")
}

func (c *Commands) skillsText() string {
	list := c.session.Skills().List()
	if len(list) == 0 {
		return "No skills found."
	}
	var b strings.Builder
	b.WriteString("Skills:\n")
	for _, m := range list {
		fmt.Fprintf(&b, "  %-15s %s", m.Name, m.Description)
		if len(m.Tags) > 0 {
			fmt.Fprintf(&b, " [%s]", strings.Join(m.Tags, ", "))
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func helpText() string {
	var b strings.Builder
	b.WriteString("Commands:\n")
	for _, c := range commands {
		name := c.name
		if c.usage != "" {
			name += " " + c.usage
		}
		fmt.Fprintf(&b, "  %-26s %s\n", name, c.desc)
	}
	b.WriteString("\nKeys: Enter sends, Ctrl+C cancels a running turn or exits when idle.")
	return b.String()
}

// suggest ranks commands against a partial or misspelled name
func suggest(token string) []commandEntry {
	token = strings.TrimPrefix(strings.ToLower(token), "/")
	if token == "" {
		return commands
	}

	var out []commandEntry
	for _, c := range commands {
		if strings.HasPrefix(c.name[1:], token) {
			out = append(out, c)
		}
	}
	if len(out) > 0 {
		return out
	}

	names := make([]string, len(commands))
	for i, c := range commands {
		names[i] = c.name[1:]
	}
	for _, m := range fuzzy.Find(token, names) {
		out = append(out, commands[m.Index])
	}
	if len(out) == 0 {
		out = nearest(token)
	}
	return out
}

// nearest returns commands within a small edit distance, for typos that
// a subsequence match cannot catch
func nearest(token string) []commandEntry {
	var out []commandEntry
	for _, c := range commands {
		if editDistance(token, c.name[1:]) <= 2 {
			out = append(out, c)
		}
	}
	return out
}

func editDistance(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		cur := make([]int, len(rb)+1)
		cur[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev = cur
	}
	return prev[len(rb)]
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
