package agent

import (
	"github.com/nachoal/mini-agent-go/history"
)

// Save exports the conversation to the workspace transcript directory and
// returns the written path
func (s *Session) Save(m *history.Manager) (string, error) {
	if m == nil {
		m = history.NewManager(s.workspace.Root())
	}
	t := history.New(s.ID, s.workspace.Root(), s.conversation.Messages())
	t.Model = s.config.Model
	return m.Save(t)
}
