package llm

import (
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Role represents the role of a message
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is the provider-neutral chat message kept in a conversation.
// Thinking holds model reasoning; adapters never send it back.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	Thinking   string     `json:"thinking,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"` // For tool results
	Name       string     `json:"name,omitempty"`         // Tool name on tool results
	Hidden     bool       `json:"hidden,omitempty"`       // Excluded from the model window
}

// Clone returns a deep copy of the message
func (m Message) Clone() Message {
	out := m
	if m.ToolCalls != nil {
		out.ToolCalls = make([]ToolCall, len(m.ToolCalls))
		for i, tc := range m.ToolCalls {
			out.ToolCalls[i] = tc.Clone()
		}
	}
	return out
}

// ToolCall is a request from the model to invoke a tool
type ToolCall struct {
	ID        string                 `json:"id"`
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

// Clone returns a copy of the call with its own argument map
func (tc ToolCall) Clone() ToolCall {
	out := tc
	out.Arguments = cloneMap(tc.Arguments)
	return out
}

func cloneMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		switch vv := v.(type) {
		case map[string]interface{}:
			out[k] = cloneMap(vv)
		case []interface{}:
			items := make([]interface{}, len(vv))
			copy(items, vv)
			out[k] = items
		default:
			out[k] = v
		}
	}
	return out
}

// ToolSchema describes a tool offered to the model
type ToolSchema struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// Usage represents token usage information
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Delta is an incremental piece of a streamed reply
type Delta struct {
	Text     string
	Thinking string
}

// Request is a single completion request
type Request struct {
	Model       string
	Messages    []Message
	Tools       []ToolSchema
	MaxTokens   int
	Temperature float64
	Stream      bool

	// OnDelta receives streamed fragments when Stream is set. It is called
	// from the goroutine running Complete.
	OnDelta func(Delta)
}

// Reply is the assistant's answer to a Request
type Reply struct {
	Message      Message
	Usage        *Usage
	FinishReason string
}

// ClientOptions contains options for creating an LLM client
type ClientOptions struct {
	APIKey       string
	BaseURL      string
	Timeout      time.Duration
	DefaultModel string
	Headers      map[string]string
	Retry        RetryPolicy
	HTTPClient   *http.Client
	Logger       *slog.Logger
}

// ClientOption is a functional option for configuring clients
type ClientOption func(*ClientOptions)

// DefaultClientOptions returns options shared by every dialect
func DefaultClientOptions(baseURL, model string) ClientOptions {
	return ClientOptions{
		BaseURL:      baseURL,
		Timeout:      120 * time.Second,
		DefaultModel: model,
		Headers:      make(map[string]string),
		Retry:        DefaultRetryPolicy(),
	}
}

// WithAPIKey sets the API key
func WithAPIKey(key string) ClientOption {
	return func(o *ClientOptions) {
		o.APIKey = key
	}
}

// WithBaseURL sets the base URL
func WithBaseURL(url string) ClientOption {
	return func(o *ClientOptions) {
		if url != "" {
			o.BaseURL = url
		}
	}
}

// WithTimeout sets the request timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(o *ClientOptions) {
		if timeout > 0 {
			o.Timeout = timeout
		}
	}
}

// WithModel sets the default model
func WithModel(model string) ClientOption {
	return func(o *ClientOptions) {
		if model != "" {
			o.DefaultModel = model
		}
	}
}

// WithMaxAttempts sets how many times a retryable request is attempted
func WithMaxAttempts(attempts int) ClientOption {
	return func(o *ClientOptions) {
		if attempts > 0 {
			o.Retry.MaxAttempts = attempts
		}
	}
}

// WithRetryPolicy replaces the retry policy
func WithRetryPolicy(p RetryPolicy) ClientOption {
	return func(o *ClientOptions) {
		o.Retry = p
	}
}

// WithHTTPClient sets the HTTP client used for requests
func WithHTTPClient(c *http.Client) ClientOption {
	return func(o *ClientOptions) {
		o.HTTPClient = c
	}
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) ClientOption {
	return func(o *ClientOptions) {
		o.Logger = l
	}
}

// WithHeaders sets additional headers
func WithHeaders(headers map[string]string) ClientOption {
	return func(o *ClientOptions) {
		if o.Headers == nil {
			o.Headers = make(map[string]string)
		}
		for k, v := range headers {
			o.Headers[k] = v
		}
	}
}

// Apply builds the final options and fills in the HTTP client and logger
func (o ClientOptions) Apply(opts ...ClientOption) ClientOptions {
	for _, opt := range opts {
		opt(&o)
	}
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{Timeout: o.Timeout}
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return o
}
