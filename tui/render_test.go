package tui

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nachoal/mini-agent-go/agent"
	"github.com/nachoal/mini-agent-go/tools"
	"github.com/nachoal/mini-agent-go/tui/styles"
)

func TestFormatArguments(t *testing.T) {
	assert.Equal(t, "", formatArguments(nil))
	assert.Equal(t, "(limit=5, path=a.txt)", formatArguments(map[string]interface{}{
		"path":  "a.txt",
		"limit": 5,
	}))
	assert.Equal(t, "(cmd=echo hi)", formatArguments(map[string]interface{}{
		"cmd": "echo\n   hi",
	}))

	long := formatArguments(map[string]interface{}{"text": strings.Repeat("x", 500)})
	assert.LessOrEqual(t, len([]rune(long)), maxToolArgDisplayLen+len("(text=)"))
	assert.True(t, strings.HasSuffix(long, "…)"))
}

func TestTruncateToWidth(t *testing.T) {
	assert.Equal(t, "abc", truncateToWidth("abc", 3))
	assert.Equal(t, "ab…", truncateToWidth("abcd", 3))
	assert.Equal(t, "…", truncateToWidth("abcd", 1))
	assert.Equal(t, "", truncateToWidth("abcd", 0))
	assert.Equal(t, "héé…", truncateToWidth("hééllo", 4))
}

func TestRendererEvents(t *testing.T) {
	r := NewRenderer(styles.GetTheme(""), true)

	tool := &agent.ToolEvent{CallID: "c1", Name: "file.read", Arguments: map[string]interface{}{"path": "a.txt"}}
	assert.Contains(t, r.Event(agent.Event{Type: agent.EventToolStarted, Tool: tool}), "file.read (path=a.txt)")
	assert.Contains(t, r.Event(agent.Event{Type: agent.EventToolProgress, Tool: tool, Progress: "reading"}), "file.read: reading")

	tool.Result = &tools.Result{OK: true, SideEffects: []string{"wrote a.txt"}}
	assert.Contains(t, r.Event(agent.Event{Type: agent.EventToolFinished, Tool: tool}), "✓ file.read (wrote a.txt)")

	tool.Result = &tools.Result{ErrorKind: "not_found", ErrorMessage: "no such file"}
	assert.Contains(t, r.Event(agent.Event{Type: agent.EventToolFinished, Tool: tool}), "✗ file.read not_found: no such file")

	assert.Contains(t, r.Event(agent.Event{Type: agent.EventAssistantMessage, Text: "All done"}), "All done")
	assert.Contains(t, r.Event(agent.Event{Type: agent.EventAssistantMessage}), "(no answer)")
	assert.Contains(t, r.Event(agent.Event{Type: agent.EventError, Message: "boom"}), "Error: boom")
	assert.Contains(t, r.Event(agent.Event{Type: agent.EventAgentThought, Text: "hmm"}), "hmm")

	assert.Empty(t, r.Event(agent.Event{Type: agent.EventTurnFinished, Reason: agent.StopCompleted}))
	assert.Contains(t, r.Event(agent.Event{Type: agent.EventTurnFinished, Reason: agent.StopCancelled}), "cancelled")
	assert.Contains(t, r.Event(agent.Event{Type: agent.EventTurnFinished, Reason: agent.StopStepLimit}), "step limit")
}

func TestRendererBanner(t *testing.T) {
	r := NewRenderer(styles.GetTheme("nord"), true)
	banner := r.Banner("openai", "gpt-4o", "/tmp/ws", 7, 2)
	assert.Contains(t, banner, "mini-agent")
	assert.Contains(t, banner, "gpt-4o")
	assert.Contains(t, banner, "Workspace: /tmp/ws")
	assert.Contains(t, banner, "Tools: 7")
	assert.Contains(t, banner, "Skills: 2")
}

func TestWrapText(t *testing.T) {
	out := wrapText(strings.Repeat("word ", 40), 20)
	for _, line := range strings.Split(out, "\n") {
		assert.LessOrEqual(t, len(strings.TrimSpace(line)), 20)
	}
}
