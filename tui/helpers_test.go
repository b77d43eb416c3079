package tui

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nachoal/mini-agent-go/agent"
	"github.com/nachoal/mini-agent-go/llm"
	"github.com/nachoal/mini-agent-go/tools"
	"github.com/nachoal/mini-agent-go/tools/registry"
)

// cannedClient answers every request with the next queued text
type cannedClient struct {
	mu      sync.Mutex
	answers []string
	calls   int
}

func (c *cannedClient) Complete(_ context.Context, _ *llm.Request) (*llm.Reply, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if len(c.answers) == 0 {
		return nil, errors.New("no canned answer")
	}
	text := c.answers[0]
	c.answers = c.answers[1:]
	return &llm.Reply{Message: llm.Message{Role: llm.RoleAssistant, Content: text}}, nil
}

func (c *cannedClient) Close() error { return nil }

func newTestSession(t *testing.T, answers ...string) *agent.Session {
	t.Helper()
	ws, err := tools.NewWorkspace(t.TempDir())
	require.NoError(t, err)

	reg := registry.New()
	require.NoError(t, reg.Register(tools.NewFileReadTool()))
	require.NoError(t, reg.Register(tools.NewFileListTool()))

	s := agent.NewSession(&cannedClient{answers: answers}, reg, ws, agent.WithStream(false))
	t.Cleanup(s.Close)
	return s
}
