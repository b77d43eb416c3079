package llm

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

// Client defines the interface for LLM providers
type Client interface {
	// Complete sends the conversation and returns the assistant's reply.
	// Failures after retries are returned as *Error; cancellation of ctx
	// is returned as ctx.Err().
	Complete(ctx context.Context, request *Request) (*Reply, error)

	// Close cleans up any resources
	Close() error
}

// NewCallID generates a tool call id for providers that omit one
func NewCallID() string {
	return "call_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:24]
}

// WireName maps a canonical tool name to the characters providers accept
func WireName(name string) string {
	return strings.ReplaceAll(name, ".", "_")
}

// NameMap resolves wire tool names back to canonical names
type NameMap map[string]string

// NewNameMap builds the reverse mapping for the tools offered in a request
func NewNameMap(tools []ToolSchema) NameMap {
	m := make(NameMap, len(tools))
	for _, t := range tools {
		m[WireName(t.Name)] = t.Name
	}
	return m
}

// Canonical returns the canonical name for a wire name. Unknown names are
// returned unchanged so the registry can report them as not found.
func (m NameMap) Canonical(wire string) string {
	if name, ok := m[wire]; ok {
		return name
	}
	return wire
}
