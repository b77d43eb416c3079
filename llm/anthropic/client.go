package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/nachoal/mini-agent-go/llm"
)

const (
	defaultBaseURL   = "https://api.anthropic.com"
	defaultModel     = "claude-sonnet-4-20250514"
	defaultMaxTokens = 4096
	apiVersion       = "2023-06-01"
)

// Client speaks the Anthropic messages dialect. MiniMax exposes the same
// API under its own base URL.
type Client struct {
	options llm.ClientOptions
}

// Message is a message in Anthropic's format
type Message struct {
	Role    string         `json:"role"`
	Content []ContentBlock `json:"content"`
}

// ContentBlock is a typed content block
type ContentBlock struct {
	Type      string      `json:"type"`
	Text      string      `json:"text,omitempty"`
	Thinking  string      `json:"thinking,omitempty"`
	ID        string      `json:"id,omitempty"`
	Name      string      `json:"name,omitempty"`
	Input     interface{} `json:"input,omitempty"`
	ToolUseID string      `json:"tool_use_id,omitempty"`
	Content   string      `json:"content,omitempty"`
	IsError   bool        `json:"is_error,omitempty"`
}

// Tool is a tool in Anthropic's format
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	InputSchema map[string]interface{} `json:"input_schema"`
}

// Request is a request to the messages endpoint
type Request struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature *float64  `json:"temperature,omitempty"`
	Stream      bool      `json:"stream,omitempty"`
	System      string    `json:"system,omitempty"`
	Tools       []Tool    `json:"tools,omitempty"`
}

// Response is a response from the messages endpoint
type Response struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Role       string          `json:"role"`
	Content    []responseBlock `json:"content"`
	Model      string          `json:"model"`
	StopReason string          `json:"stop_reason"`
	Usage      Usage           `json:"usage"`
}

type responseBlock struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	Thinking string          `json:"thinking,omitempty"`
	ID       string          `json:"id,omitempty"`
	Name     string          `json:"name,omitempty"`
	Input    json.RawMessage `json:"input,omitempty"`
}

// Usage represents token usage
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// NewClient creates a new Anthropic-compatible client
func NewClient(opts ...llm.ClientOption) (*Client, error) {
	options := llm.DefaultClientOptions(defaultBaseURL, defaultModel).Apply(opts...)

	if options.APIKey == "" {
		return nil, fmt.Errorf("anthropic: API key not provided")
	}
	options.BaseURL = strings.TrimRight(options.BaseURL, "/")

	return &Client{options: options}, nil
}

func (c *Client) endpoint() string {
	if strings.HasSuffix(c.options.BaseURL, "/v1") {
		return c.options.BaseURL + "/messages"
	}
	return c.options.BaseURL + "/v1/messages"
}

// Complete sends a messages request
func (c *Client) Complete(ctx context.Context, request *llm.Request) (*llm.Reply, error) {
	body, err := json.Marshal(c.convertRequest(request))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	c.options.Logger.Debug("anthropic request", "url", c.endpoint(), "messages", len(request.Messages), "tools", len(request.Tools), "stream", request.Stream)

	var resp *http.Response
	err = llm.Retry(ctx, c.options.Retry, c.options.Logger, func(int) error {
		var err error
		resp, err = c.post(ctx, body, request.Stream)
		return err
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	names := llm.NewNameMap(request.Tools)

	var reply *llm.Reply
	if request.Stream {
		reply, err = c.readStream(ctx, resp.Body, names, request.OnDelta)
	} else {
		var r Response
		if err = json.NewDecoder(resp.Body).Decode(&r); err == nil {
			reply = convertResponse(&r, names)
		} else {
			err = &llm.Error{Kind: llm.ErrServer, Message: "failed to parse response: " + err.Error(), Err: err}
		}
	}
	if err != nil {
		return nil, llm.ClassifyTransport(ctx, err)
	}

	c.options.Logger.Debug("anthropic reply", "tool_calls", len(reply.Message.ToolCalls), "stop_reason", reply.FinishReason)
	return reply, nil
}

// Close cleans up resources
func (c *Client) Close() error {
	return nil
}

func (c *Client) post(ctx context.Context, body []byte, stream bool) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")
	if stream {
		req.Header.Set("Accept", "text/event-stream")
	}

	resp, err := c.options.HTTPClient.Do(req)
	if err != nil {
		return nil, llm.ClassifyTransport(ctx, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		e := llm.ClassifyResponse(resp.StatusCode, resp.Header, respBody)
		c.options.Logger.Debug("anthropic error response", "status", resp.StatusCode, "kind", e.Kind, "message", e.Message)
		return nil, e
	}
	return resp, nil
}

// setHeaders sets common headers for requests. Compatible gateways differ
// in which auth header they read, so both are sent.
func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("x-api-key", c.options.APIKey)
	req.Header.Set("Authorization", "Bearer "+c.options.APIKey)
	req.Header.Set("anthropic-version", apiVersion)
	req.Header.Set("User-Agent", "mini-agent-go/1.0")

	for k, v := range c.options.Headers {
		req.Header.Set(k, v)
	}
}

// convertRequest converts from the conversation format to Anthropic format.
// Consecutive tool results are grouped into one user message. Assistant
// turns with neither text nor tool calls are left out, since the API
// rejects empty text blocks, and the user turns around them are merged.
func (c *Client) convertRequest(req *llm.Request) *Request {
	out := &Request{
		Model:     req.Model,
		MaxTokens: req.MaxTokens,
		Stream:    req.Stream,
	}
	if out.Model == "" {
		out.Model = c.options.DefaultModel
	}
	if out.MaxTokens <= 0 {
		out.MaxTokens = defaultMaxTokens
	}
	if req.Temperature > 0 {
		t := req.Temperature
		out.Temperature = &t
	}

	var system []string
	for _, msg := range req.Messages {
		switch msg.Role {
		case llm.RoleSystem:
			system = append(system, msg.Content)

		case llm.RoleUser:
			block := ContentBlock{Type: "text", Text: msg.Content}
			if n := len(out.Messages); n > 0 && out.Messages[n-1].Role == "user" {
				out.Messages[n-1].Content = append(out.Messages[n-1].Content, block)
			} else {
				out.Messages = append(out.Messages, Message{Role: "user", Content: []ContentBlock{block}})
			}

		case llm.RoleAssistant:
			var blocks []ContentBlock
			if msg.Content != "" {
				blocks = append(blocks, ContentBlock{Type: "text", Text: msg.Content})
			}
			for _, tc := range msg.ToolCalls {
				input := tc.Arguments
				if input == nil {
					input = map[string]interface{}{}
				}
				blocks = append(blocks, ContentBlock{
					Type:  "tool_use",
					ID:    tc.ID,
					Name:  llm.WireName(tc.Name),
					Input: input,
				})
			}
			if len(blocks) == 0 {
				continue
			}
			out.Messages = append(out.Messages, Message{Role: "assistant", Content: blocks})

		case llm.RoleTool:
			block := ContentBlock{
				Type:      "tool_result",
				ToolUseID: msg.ToolCallID,
				Content:   msg.Content,
				IsError:   toolResultFailed(msg.Content),
			}
			if n := len(out.Messages); n > 0 && isToolResultMessage(out.Messages[n-1]) {
				out.Messages[n-1].Content = append(out.Messages[n-1].Content, block)
			} else {
				out.Messages = append(out.Messages, Message{Role: "user", Content: []ContentBlock{block}})
			}
		}
	}
	out.System = strings.Join(system, "\n\n")

	for _, t := range req.Tools {
		out.Tools = append(out.Tools, Tool{
			Name:        llm.WireName(t.Name),
			Description: t.Description,
			InputSchema: t.Parameters,
		})
	}

	return out
}

func isToolResultMessage(m Message) bool {
	return m.Role == "user" && len(m.Content) > 0 && m.Content[0].Type == "tool_result"
}

func toolResultFailed(content string) bool {
	var r struct {
		OK *bool `json:"ok"`
	}
	if err := json.Unmarshal([]byte(content), &r); err != nil || r.OK == nil {
		return false
	}
	return !*r.OK
}

// convertResponse converts from Anthropic format to the conversation format
func convertResponse(resp *Response, names llm.NameMap) *llm.Reply {
	var text, thinking []string
	var calls []llm.ToolCall

	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			text = append(text, block.Text)
		case "thinking":
			thinking = append(thinking, block.Thinking)
		case "tool_use":
			id := block.ID
			if id == "" {
				id = llm.NewCallID()
			}
			args, _ := llm.NormalizeToolArguments(block.Input)
			calls = append(calls, llm.ToolCall{ID: id, Name: names.Canonical(block.Name), Arguments: args})
		}
	}

	content, inline := llm.SplitThinking(strings.Join(text, ""))
	if inline != "" {
		thinking = append(thinking, inline)
	}

	return &llm.Reply{
		Message: llm.Message{
			Role:      llm.RoleAssistant,
			Content:   strings.TrimSpace(content),
			Thinking:  strings.TrimSpace(strings.Join(thinking, "\n")),
			ToolCalls: calls,
		},
		Usage: &llm.Usage{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
			TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
		},
		FinishReason: resp.StopReason,
	}
}
