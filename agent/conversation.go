package agent

import (
	"fmt"
	"sync"

	"github.com/nachoal/mini-agent-go/llm"
)

// Conversation is the append-only message log of a session. Messages are
// copied on the way in and out, so callers never share state with it.
type Conversation struct {
	mu       sync.RWMutex
	messages []llm.Message
}

// NewConversation starts a conversation with an optional system prompt
func NewConversation(systemPrompt string) *Conversation {
	c := &Conversation{}
	if systemPrompt != "" {
		c.messages = append(c.messages, llm.Message{Role: llm.RoleSystem, Content: systemPrompt})
	}
	return c
}

// Append adds messages to the end
func (c *Conversation) Append(msgs ...llm.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range msgs {
		c.messages = append(c.messages, m.Clone())
	}
}

// Messages returns every message, hidden ones included
func (c *Conversation) Messages() []llm.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]llm.Message, len(c.messages))
	for i, m := range c.messages {
		out[i] = m.Clone()
	}
	return out
}

// Window returns the messages sent to the model
func (c *Conversation) Window() []llm.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]llm.Message, 0, len(c.messages))
	for _, m := range c.messages {
		if !m.Hidden {
			out = append(out, m.Clone())
		}
	}
	return out
}

// Len returns the number of messages
func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.messages)
}

// SystemPrompt returns the leading system message content
func (c *Conversation) SystemPrompt() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.messages) > 0 && c.messages[0].Role == llm.RoleSystem {
		return c.messages[0].Content
	}
	return ""
}

// Reset drops everything but the system prompt
func (c *Conversation) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.messages) > 0 && c.messages[0].Role == llm.RoleSystem {
		c.messages = c.messages[:1]
		return
	}
	c.messages = nil
}

// Truncate drops messages past n
func (c *Conversation) Truncate(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n >= 0 && n < len(c.messages) {
		c.messages = c.messages[:n]
	}
}

// DropOldestCluster removes the oldest user message together with every
// assistant and tool message up to the next user message. The latest
// cluster is never dropped. It reports whether anything was removed.
func (c *Conversation) DropOldestCluster() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	start := 0
	if len(c.messages) > 0 && c.messages[0].Role == llm.RoleSystem {
		start = 1
	}
	if start >= len(c.messages) {
		return false
	}

	end := -1
	for i := start + 1; i < len(c.messages); i++ {
		if c.messages[i].Role == llm.RoleUser && !c.messages[i].Hidden {
			end = i
			break
		}
	}
	if end < 0 {
		return false
	}
	c.messages = append(c.messages[:start], c.messages[end:]...)
	return true
}

// CheckInvariants verifies the message-order rules on the visible
// messages: at most one system message, first; every assistant tool call
// answered by a tool message in call order right after it; no stray tool
// messages.
func CheckInvariants(msgs []llm.Message) error {
	var visible []llm.Message
	for _, m := range msgs {
		if !m.Hidden {
			visible = append(visible, m)
		}
	}

	for i := 0; i < len(visible); i++ {
		m := visible[i]
		switch m.Role {
		case llm.RoleSystem:
			if i != 0 {
				return fmt.Errorf("message %d: system message not at the start", i)
			}
		case llm.RoleTool:
			return fmt.Errorf("message %d: tool message %q without a preceding tool call", i, m.ToolCallID)
		case llm.RoleAssistant:
			for j, call := range m.ToolCalls {
				k := i + 1 + j
				if k >= len(visible) {
					return fmt.Errorf("message %d: tool call %q has no result", i, call.ID)
				}
				reply := visible[k]
				if reply.Role != llm.RoleTool || reply.ToolCallID != call.ID {
					return fmt.Errorf("message %d: expected result for tool call %q, got %s %q", k, call.ID, reply.Role, reply.ToolCallID)
				}
			}
			i += len(m.ToolCalls)
		}
	}
	return nil
}
