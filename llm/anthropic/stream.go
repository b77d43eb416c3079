package anthropic

import (
	"context"
	"encoding/json"
	"io"
	"strings"

	"github.com/nachoal/mini-agent-go/llm"
)

type streamEvent struct {
	Type    string `json:"type"`
	Index   int    `json:"index"`
	Message *struct {
		Usage Usage `json:"usage"`
	} `json:"message,omitempty"`
	ContentBlock *responseBlock `json:"content_block,omitempty"`
	Delta        *struct {
		Type        string `json:"type"`
		Text        string `json:"text"`
		Thinking    string `json:"thinking"`
		PartialJSON string `json:"partial_json"`
		StopReason  string `json:"stop_reason"`
	} `json:"delta,omitempty"`
	Usage *Usage `json:"usage,omitempty"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

type blockState struct {
	kind string
	id   string
	name string
	text strings.Builder
}

func (c *Client) readStream(ctx context.Context, body io.Reader, names llm.NameMap, onDelta func(llm.Delta)) (*llm.Reply, error) {
	var (
		blocks   = map[int]*blockState{}
		order    []int
		filter   llm.ThinkFilter
		usage    Usage
		stop     string
		streamed error
	)

	deliver := func(d llm.Delta) {
		if onDelta != nil && (d.Text != "" || d.Thinking != "") {
			onDelta(d)
		}
	}

	block := func(index int) *blockState {
		b, ok := blocks[index]
		if !ok {
			b = &blockState{kind: "text"}
			blocks[index] = b
			order = append(order, index)
		}
		return b
	}

	err := llm.ReadSSE(body, func(_, data string) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		var ev streamEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			c.options.Logger.Debug("skipping malformed stream event", "error", err)
			return nil
		}

		switch ev.Type {
		case "message_start":
			if ev.Message != nil {
				usage.InputTokens = ev.Message.Usage.InputTokens
			}
		case "content_block_start":
			b := block(ev.Index)
			if ev.ContentBlock != nil {
				b.kind = ev.ContentBlock.Type
				b.id = ev.ContentBlock.ID
				b.name = ev.ContentBlock.Name
				if ev.ContentBlock.Text != "" {
					b.text.WriteString(ev.ContentBlock.Text)
				}
			}
		case "content_block_delta":
			if ev.Delta == nil {
				return nil
			}
			b := block(ev.Index)
			switch ev.Delta.Type {
			case "text_delta":
				b.text.WriteString(ev.Delta.Text)
				t, th := filter.Feed(ev.Delta.Text)
				deliver(llm.Delta{Text: t, Thinking: th})
			case "thinking_delta":
				b.text.WriteString(ev.Delta.Thinking)
				deliver(llm.Delta{Thinking: ev.Delta.Thinking})
			case "input_json_delta":
				b.text.WriteString(ev.Delta.PartialJSON)
			}
		case "message_delta":
			if ev.Delta != nil && ev.Delta.StopReason != "" {
				stop = ev.Delta.StopReason
			}
			if ev.Usage != nil {
				usage.OutputTokens = ev.Usage.OutputTokens
			}
		case "message_stop":
			return llm.ErrStopStream
		case "error":
			msg := "stream error"
			kind := llm.ErrServer
			if ev.Error != nil {
				msg = ev.Error.Message
				if ev.Error.Type == "rate_limit_error" {
					kind = llm.ErrRateLimited
				} else if ev.Error.Type == "invalid_request_error" {
					kind = llm.ErrBadRequest
				}
			}
			streamed = &llm.Error{Kind: kind, Message: msg}
			return llm.ErrStopStream
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if streamed != nil {
		return nil, streamed
	}

	t, th := filter.Flush()
	deliver(llm.Delta{Text: t, Thinking: th})

	resp := &Response{StopReason: stop, Usage: usage}
	for _, idx := range order {
		b := blocks[idx]
		rb := responseBlock{Type: b.kind, ID: b.id, Name: b.name}
		switch b.kind {
		case "thinking":
			rb.Thinking = b.text.String()
		case "tool_use":
			rb.Input = json.RawMessage(b.text.String())
		default:
			rb.Text = b.text.String()
		}
		resp.Content = append(resp.Content, rb)
	}
	return convertResponse(resp, names), nil
}
