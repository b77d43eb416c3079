package openai

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
	defaultBaseURL = "https://api.openai.com/v1"
	defaultModel   = "gpt-4o"
)

// Client speaks the OpenAI chat-completions dialect. It is used for
// OpenAI itself and for compatible providers such as Z.ai.
type Client struct {
	options llm.ClientOptions
}

// NewClient creates a new OpenAI-compatible client
func NewClient(opts ...llm.ClientOption) (*Client, error) {
	options := llm.DefaultClientOptions(defaultBaseURL, defaultModel).Apply(opts...)

	if options.APIKey == "" {
		return nil, fmt.Errorf("openai: API key not provided")
	}
	options.BaseURL = strings.TrimRight(options.BaseURL, "/")

	return &Client{options: options}, nil
}

type chatMessage struct {
	Role       string         `json:"role"`
	Content    *string        `json:"content"`
	ToolCalls  []wireToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	Name       string         `json:"name,omitempty"`
}

type wireToolCall struct {
	Index    *int         `json:"index,omitempty"`
	ID       string       `json:"id,omitempty"`
	Type     string       `json:"type,omitempty"`
	Function wireFunction `json:"function"`
}

type wireFunction struct {
	Name      string          `json:"name,omitempty"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

type wireTool struct {
	Type     string           `json:"type"`
	Function wireToolFunction `json:"function"`
}

type wireToolFunction struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Parameters  map[string]interface{} `json:"parameters"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Tools       []wireTool    `json:"tools,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature *float64      `json:"temperature,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
}

type responseMessage struct {
	Role             string         `json:"role"`
	Content          string         `json:"content"`
	ReasoningContent string         `json:"reasoning_content"`
	ToolCalls        []wireToolCall `json:"tool_calls"`
}

type chatResponse struct {
	Choices []struct {
		Message      responseMessage `json:"message"`
		Delta        responseMessage `json:"delta"`
		FinishReason string          `json:"finish_reason"`
	} `json:"choices"`
	Usage *llm.Usage `json:"usage,omitempty"`
}

// Complete sends a chat completion request
func (c *Client) Complete(ctx context.Context, request *llm.Request) (*llm.Reply, error) {
	body, err := json.Marshal(c.buildRequest(request))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	c.options.Logger.Debug("openai request", "url", c.options.BaseURL+"/chat/completions", "messages", len(request.Messages), "tools", len(request.Tools), "stream", request.Stream)

	names := llm.NewNameMap(request.Tools)

	// Only establishing the response is retried; a stream that already
	// delivered deltas is not replayed.
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

	var reply *llm.Reply
	if request.Stream {
		reply, err = c.readStream(ctx, resp.Body, names, request.OnDelta)
	} else {
		reply, err = c.readResponse(resp.Body, names)
	}
	if err != nil {
		return nil, llm.ClassifyTransport(ctx, err)
	}
	return reply, nil
}

// Close cleans up resources
func (c *Client) Close() error {
	return nil
}

func (c *Client) post(ctx context.Context, body []byte, stream bool) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.options.BaseURL+"/chat/completions", bytes.NewReader(body))
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
		c.options.Logger.Debug("openai error response", "status", resp.StatusCode, "kind", e.Kind, "message", e.Message)
		return nil, e
	}
	return resp, nil
}

// setHeaders sets common headers for requests
func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.options.APIKey)
	req.Header.Set("User-Agent", "mini-agent-go/1.0")

	for k, v := range c.options.Headers {
		req.Header.Set(k, v)
	}
}

func (c *Client) buildRequest(request *llm.Request) *chatRequest {
	out := &chatRequest{
		Model:     request.Model,
		MaxTokens: request.MaxTokens,
		Stream:    request.Stream,
	}
	if out.Model == "" {
		out.Model = c.options.DefaultModel
	}
	if request.Temperature > 0 {
		t := request.Temperature
		out.Temperature = &t
	}

	for _, msg := range request.Messages {
		out.Messages = append(out.Messages, toWireMessage(msg))
	}

	for _, t := range request.Tools {
		out.Tools = append(out.Tools, wireTool{
			Type: "function",
			Function: wireToolFunction{
				Name:        llm.WireName(t.Name),
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}

	return out
}

// toWireMessage converts a conversation message. Thinking is never sent.
func toWireMessage(msg llm.Message) chatMessage {
	content := msg.Content
	wire := chatMessage{
		Role:    string(msg.Role),
		Content: &content,
	}

	switch msg.Role {
	case llm.RoleAssistant:
		if len(msg.ToolCalls) > 0 && content == "" {
			wire.Content = nil
		}
		for _, tc := range msg.ToolCalls {
			args, _ := json.Marshal(llm.EncodeToolArguments(tc.Arguments))
			wire.ToolCalls = append(wire.ToolCalls, wireToolCall{
				ID:   tc.ID,
				Type: "function",
				Function: wireFunction{
					Name:      llm.WireName(tc.Name),
					Arguments: args,
				},
			})
		}
	case llm.RoleTool:
		wire.ToolCallID = msg.ToolCallID
	}

	return wire
}

func (c *Client) readResponse(body io.Reader, names llm.NameMap) (*llm.Reply, error) {
	var resp chatResponse
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		return nil, &llm.Error{Kind: llm.ErrServer, Message: "failed to parse response: " + err.Error(), Err: err}
	}
	if len(resp.Choices) == 0 {
		return nil, &llm.Error{Kind: llm.ErrServer, Message: "response contained no choices"}
	}

	choice := resp.Choices[0]
	text, thinking := llm.SplitThinking(choice.Message.Content)
	if choice.Message.ReasoningContent != "" {
		thinking = joinThinking(choice.Message.ReasoningContent, thinking)
	}

	msg := llm.Message{
		Role:     llm.RoleAssistant,
		Content:  text,
		Thinking: thinking,
	}
	for _, tc := range choice.Message.ToolCalls {
		if tc.Function.Name == "" {
			continue
		}
		id := tc.ID
		if id == "" {
			id = llm.NewCallID()
		}
		args, _ := llm.NormalizeToolArguments(tc.Function.Arguments)
		msg.ToolCalls = append(msg.ToolCalls, llm.ToolCall{
			ID:        id,
			Name:      names.Canonical(tc.Function.Name),
			Arguments: args,
		})
	}

	return &llm.Reply{Message: msg, Usage: resp.Usage, FinishReason: choice.FinishReason}, nil
}

func (c *Client) readStream(ctx context.Context, body io.Reader, names llm.NameMap, onDelta func(llm.Delta)) (*llm.Reply, error) {
	var (
		text     strings.Builder
		thinking strings.Builder
		filter   llm.ThinkFilter
		states   []*streamToolCall
		finish   string
		usage    *llm.Usage
	)

	deliver := func(d llm.Delta) {
		text.WriteString(d.Text)
		thinking.WriteString(d.Thinking)
		if onDelta != nil && (d.Text != "" || d.Thinking != "") {
			onDelta(d)
		}
	}

	err := llm.ReadSSE(body, func(_, data string) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if data == "[DONE]" {
			return llm.ErrStopStream
		}

		var chunk chatResponse
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			c.options.Logger.Debug("skipping malformed stream chunk", "error", err)
			return nil
		}
		if chunk.Usage != nil {
			usage = chunk.Usage
		}
		if len(chunk.Choices) == 0 {
			return nil
		}

		choice := chunk.Choices[0]
		if choice.Delta.ReasoningContent != "" {
			deliver(llm.Delta{Thinking: choice.Delta.ReasoningContent})
		}
		if choice.Delta.Content != "" {
			t, th := filter.Feed(choice.Delta.Content)
			deliver(llm.Delta{Text: t, Thinking: th})
		}
		if len(choice.Delta.ToolCalls) > 0 {
			states = mergeStreamToolCallDeltas(states, choice.Delta.ToolCalls)
		}
		if choice.FinishReason != "" {
			finish = choice.FinishReason
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	t, th := filter.Flush()
	deliver(llm.Delta{Text: t, Thinking: th})

	msg := llm.Message{
		Role:      llm.RoleAssistant,
		Content:   strings.TrimSpace(text.String()),
		Thinking:  strings.TrimSpace(thinking.String()),
		ToolCalls: toToolCalls(states, names),
	}
	return &llm.Reply{Message: msg, Usage: usage, FinishReason: finish}, nil
}

func joinThinking(parts ...string) string {
	var out []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, "\n")
}
