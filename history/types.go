package history

import (
	"time"
)

// Version of the transcript file format
const Version = "1.0"

// Transcript is a saved conversation
type Transcript struct {
	ID        string    `json:"id"`
	Version   string    `json:"version"`
	SessionID string    `json:"session_id"`
	CreatedAt time.Time `json:"created_at"`
	SavedAt   time.Time `json:"saved_at"`
	Workspace string    `json:"workspace"`
	Provider  string    `json:"provider,omitempty"`
	Model     string    `json:"model,omitempty"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
}

// Message is one conversation message as stored on disk
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	Thinking   string     `json:"thinking,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
	Hidden     bool       `json:"hidden,omitempty"`
}

// ToolCall represents a tool invocation
type ToolCall struct {
	ID        string                 `json:"id"`
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments,omitempty"`
}

// Index tracks saved transcripts
type Index struct {
	Version string `json:"version"`
	Last    string `json:"last_id,omitempty"`
	// Sessions maps a session id to its transcript ids, oldest first
	Sessions map[string][]string `json:"sessions"`
}

// Info provides summary information for listing
type Info struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	SavedAt  time.Time `json:"saved_at"`
	Messages int       `json:"messages"`
	Model    string    `json:"model,omitempty"`
}
