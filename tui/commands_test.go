package tui

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nachoal/mini-agent-go/history"
	"github.com/nachoal/mini-agent-go/tools"
)

func TestIsCommand(t *testing.T) {
	assert.True(t, IsCommand("/help"))
	assert.True(t, IsCommand("  /tools"))
	assert.False(t, IsCommand("hello /help"))
	assert.False(t, IsCommand(""))
}

func TestCommandsHelpAndExit(t *testing.T) {
	c := NewCommands(newTestSession(t), nil)

	res := c.Run("/help")
	require.NoError(t, res.err)
	for _, entry := range commands {
		assert.Contains(t, res.output, entry.name)
	}

	assert.True(t, c.Run("/exit").quit)
	assert.True(t, c.Run("/QUIT").quit)
}

func TestCommandsUnknownSuggests(t *testing.T) {
	c := NewCommands(newTestSession(t), nil)

	res := c.Run("/hlp")
	require.Error(t, res.err)
	assert.Contains(t, res.err.Error(), "Unknown command /hlp.")
	assert.Contains(t, res.err.Error(), "/help")

	res = c.Run("/zzzzzzzz")
	require.Error(t, res.err)
	assert.Contains(t, res.err.Error(), "Type /help")
}

func TestCommandsTools(t *testing.T) {
	s := newTestSession(t)
	c := NewCommands(s, nil)

	res := c.Run("/tools")
	require.NoError(t, res.err)
	assert.Contains(t, res.output, "file.read")
	assert.Contains(t, res.output, "file.list")
	assert.Contains(t, res.output, "read-only")
	assert.NotContains(t, res.output, "denied")
}

func TestCommandsAllowDeny(t *testing.T) {
	s := newTestSession(t)
	c := NewCommands(s, nil)

	res := c.Run("/deny file")
	require.NoError(t, res.err)
	assert.False(t, s.Permissions().Allowed("file.read", tools.CategoryFile))
	assert.Contains(t, c.Run("/tools").output, "denied")

	res = c.Run("/allow file.read")
	require.NoError(t, res.err)
	assert.True(t, s.Permissions().Allowed("file.read", tools.CategoryFile))
	assert.False(t, s.Permissions().Allowed("file.list", tools.CategoryFile))

	res = c.Run("/allow")
	require.Error(t, res.err)
	assert.Contains(t, res.err.Error(), "usage")

	res = c.Run("/deny nosuch")
	require.Error(t, res.err)
	assert.Contains(t, res.err.Error(), "nosuch")
}

func TestCommandsSkillsEmpty(t *testing.T) {
	c := NewCommands(newTestSession(t), nil)
	assert.Equal(t, "No skills found.", c.Run("/skills").output)
}

func TestCommandsClear(t *testing.T) {
	s := newTestSession(t, "hi there")
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	stream, err := s.Prompt(ctx, "hello")
	require.NoError(t, err)
	stream.Collect()
	require.Greater(t, s.Conversation().Len(), 1)

	res := NewCommands(s, nil).Run("/clear")
	require.NoError(t, res.err)
	assert.True(t, res.clear)
	assert.Equal(t, 1, s.Conversation().Len())
}

func TestCommandsSave(t *testing.T) {
	s := newTestSession(t, "hi there")
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	stream, err := s.Prompt(ctx, "hello")
	require.NoError(t, err)
	stream.Collect()

	dir := t.TempDir()
	mgr := history.NewManager(dir)
	res := NewCommands(s, mgr).Run("/save")
	require.NoError(t, res.err)
	assert.Contains(t, res.output, "Conversation saved to ")

	entries, err := os.ReadDir(mgr.Dir())
	require.NoError(t, err)
	assert.NotEmpty(t, entries)
	assert.FileExists(t, filepath.Join(mgr.Dir(), "index.json"))
}

func TestSuggest(t *testing.T) {
	names := func(entries []commandEntry) []string {
		out := make([]string, len(entries))
		for i, e := range entries {
			out[i] = e.name
		}
		return out
	}

	assert.Len(t, suggest("/"), len(commands))
	assert.Equal(t, []string{"/skills", "/save"}, names(suggest("/s")))
	assert.Contains(t, names(suggest("/hlp")), "/help")
	assert.Contains(t, names(suggest("/exti")), "/exit")
	assert.Empty(t, suggest("/zzzzzzzz"))
}

func TestEditDistance(t *testing.T) {
	assert.Equal(t, 0, editDistance("help", "help"))
	assert.Equal(t, 2, editDistance("hepl", "help"))
	assert.Equal(t, 3, editDistance("", "abc"))
}
