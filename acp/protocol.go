// Package acp serves agent sessions over line-delimited JSON-RPC 2.0.
package acp

import (
	"encoding/json"
	"fmt"
	"strings"
)

// JSON-RPC error codes
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeUnknownSession = -32000
	CodeTurnFailed     = -32001
	CodeSessionBusy    = -32002
)

// Method names. Each has a slash-separated alias.
const (
	MethodInitialize   = "initialize"
	MethodNewSession   = "newSession"
	MethodPrompt       = "prompt"
	MethodCancel       = "cancel"
	MethodCloseSession = "closeSession"
)

var aliases = map[string]string{
	"session/new":    MethodNewSession,
	"session/prompt": MethodPrompt,
	"session/cancel": MethodCancel,
	"session/close":  MethodCloseSession,
}

// ProtocolVersion is reported by initialize
const ProtocolVersion = 1

// request is a JSON-RPC 2.0 request or notification
type request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// notification reports whether the request expects no response
func (r *request) notification() bool {
	return len(r.ID) == 0
}

// response is a JSON-RPC 2.0 response
type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// outbound is a server-initiated notification
type outbound struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
}

// Error is a JSON-RPC error object
type Error struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

func newError(code int, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// InitializeParams are the arguments of initialize. Both fields are optional.
type InitializeParams struct {
	ProtocolVersion int             `json:"protocolVersion,omitempty"`
	ClientInfo      *Implementation `json:"clientInfo,omitempty"`
}

// InitializeResult describes the agent
type InitializeResult struct {
	ProtocolVersion   int               `json:"protocolVersion"`
	AgentCapabilities AgentCapabilities `json:"agentCapabilities"`
	AgentInfo         Implementation    `json:"agentInfo"`
}

// Implementation names one side of the connection
type Implementation struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

// AgentCapabilities lists what the agent supports
type AgentCapabilities struct {
	Streaming bool     `json:"streaming"`
	Methods   []string `json:"methods"`
}

// NewSessionParams are the arguments of newSession
type NewSessionParams struct {
	// Workspace overrides the server's default workspace root
	Workspace string `json:"workspace,omitempty"`
	Cwd       string `json:"cwd,omitempty"`
}

// NewSessionResult is returned by newSession
type NewSessionResult struct {
	SessionID string `json:"sessionId"`
	Workspace string `json:"workspace"`
}

// SessionParams identify a session
type SessionParams struct {
	SessionID string `json:"sessionId"`
}

// PromptParams are the arguments of prompt
type PromptParams struct {
	SessionID string          `json:"sessionId"`
	Prompt    json.RawMessage `json:"prompt"`
}

// ContentBlock is one piece of prompt or reply content
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// PromptResult is returned when a turn ends
type PromptResult struct {
	Content    []ContentBlock `json:"content"`
	StopReason string         `json:"stopReason"`
}

// promptText accepts a plain string or a list of text content blocks
func promptText(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", fmt.Errorf("prompt is required")
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if strings.TrimSpace(s) == "" {
			return "", fmt.Errorf("prompt is empty")
		}
		return s, nil
	}

	var blocks []ContentBlock
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return "", fmt.Errorf("prompt must be a string or a list of content blocks")
	}
	var parts []string
	for _, b := range blocks {
		if b.Type == "text" && b.Text != "" {
			parts = append(parts, b.Text)
		}
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("prompt has no text content")
	}
	return strings.Join(parts, "\n"), nil
}
