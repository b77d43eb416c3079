package tools

import (
	"context"
	"encoding/json"

	"github.com/nachoal/mini-agent-go/tools/base"
)

// Category groups tools for timeouts and permission overrides
type Category = base.Category

const (
	CategoryFile   = base.CategoryFile
	CategoryShell  = base.CategoryShell
	CategoryWeb    = base.CategoryWeb
	CategorySkills = base.CategorySkills
)

// Tool defines the interface that all tools must implement
type Tool interface {
	// Name returns the unique name of the tool
	Name() string

	// Description returns a brief description of what the tool does
	Description() string

	// Category returns the tool's category
	Category() Category

	// ReadOnly reports whether the tool leaves the workspace untouched.
	// Batches of read-only calls may run concurrently.
	ReadOnly() bool

	// Parameters returns a struct that defines the tool's parameters
	// This struct will be used for schema generation
	Parameters() interface{}

	// Execute runs the tool. Arguments have already been validated.
	Execute(ctx context.Context, inv *Invocation) (interface{}, error)
}

// Error kinds reported in a Result
const (
	KindInvalidArguments = "invalid_arguments"
	KindOutsideWorkspace = "path_outside_workspace"
	KindNotFound         = "not_found"
	KindTimeout          = "timeout"
	KindRuntime          = "runtime"
	KindCancelled        = "cancelled"
	KindExists           = "exists"
	KindPermissionDenied = "permission_denied"
)

// ToolError represents a structured error from a tool
type ToolError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`

	// Output is partial output kept on the failed Result
	Output interface{} `json:"-"`
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return e.Code + ": " + e.Message
	}
	return e.Message
}

// NewToolError creates a new tool error
func NewToolError(code, message string) *ToolError {
	return &ToolError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
	}
}

// WithDetail adds a detail to the error
func (e *ToolError) WithDetail(key string, value interface{}) *ToolError {
	e.Details[key] = value
	return e
}

// WithOutput attaches partial output
func (e *ToolError) WithOutput(output interface{}) *ToolError {
	e.Output = output
	return e
}

// Result is the outcome of one tool call. It is serialised as JSON into the
// tool message content.
type Result struct {
	OK           bool                   `json:"ok"`
	Output       interface{}            `json:"output,omitempty"`
	ErrorKind    string                 `json:"error_kind,omitempty"`
	ErrorMessage string                 `json:"error_message,omitempty"`
	Details      map[string]interface{} `json:"details,omitempty"`
	SideEffects  []string               `json:"side_effects,omitempty"`
}

// Success builds a successful result
func Success(output interface{}, sideEffects ...string) Result {
	return Result{OK: true, Output: output, SideEffects: sideEffects}
}

// Failure builds a failed result
func Failure(kind, message string) Result {
	return Result{ErrorKind: kind, ErrorMessage: message}
}

// JSON renders the result for the conversation
func (r Result) JSON() string {
	b, err := json.Marshal(r)
	if err != nil {
		b, _ = json.Marshal(Failure(KindRuntime, "result could not be encoded: "+err.Error()))
	}
	return string(b)
}
