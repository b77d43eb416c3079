package openai

import (
	"encoding/json"
	"strings"

	"github.com/nachoal/mini-agent-go/llm"
)

// streamToolCall accumulates one tool call across stream deltas
type streamToolCall struct {
	index int
	id    string
	name  string
	args  strings.Builder
}

// mergeStreamToolCallDeltas folds tool-call deltas into the accumulated
// states. Deltas are matched by index, then id, then name. A delta with
// neither continues the latest call, and an unnamed placeholder is
// promoted when its id and name arrive late.
func mergeStreamToolCallDeltas(states []*streamToolCall, deltas []wireToolCall) []*streamToolCall {
	for _, d := range deltas {
		state := findStreamState(states, d)
		if state == nil {
			index := -1
			if d.Index != nil {
				index = *d.Index
			}
			state = &streamToolCall{index: index}
			states = append(states, state)
		}

		if state.index < 0 && d.Index != nil {
			state.index = *d.Index
		}
		if state.id == "" && d.ID != "" {
			state.id = d.ID
		}
		if state.name == "" && d.Function.Name != "" {
			state.name = d.Function.Name
		}
		state.args.WriteString(argumentFragment(d.Function.Arguments))
	}
	return states
}

func findStreamState(states []*streamToolCall, d wireToolCall) *streamToolCall {
	if d.Index != nil {
		for _, s := range states {
			if s.index == *d.Index {
				return s
			}
		}
	}
	if d.ID != "" {
		for _, s := range states {
			if s.id == d.ID {
				return s
			}
		}
	}
	if len(states) == 0 {
		return nil
	}
	last := states[len(states)-1]

	if d.ID == "" && d.Function.Name != "" {
		for i := len(states) - 1; i >= 0; i-- {
			if states[i].name == d.Function.Name {
				return states[i]
			}
		}
	}
	if d.ID == "" && d.Function.Name == "" {
		return last
	}
	if last.id == "" && last.name == "" {
		return last
	}
	return nil
}

// argumentFragment extracts the raw text of an arguments delta, which is
// usually a JSON string holding a piece of the encoded object
func argumentFragment(raw json.RawMessage) string {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return ""
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal([]byte(trimmed), &s); err == nil {
			return s
		}
	}
	return trimmed
}

// toToolCalls finalizes accumulated states, dropping calls that never
// received a name and generating ids where the provider sent none
func toToolCalls(states []*streamToolCall, names llm.NameMap) []llm.ToolCall {
	var calls []llm.ToolCall
	for _, s := range states {
		if s.name == "" {
			continue
		}
		id := s.id
		if id == "" {
			id = llm.NewCallID()
		}
		calls = append(calls, llm.ToolCall{
			ID:        id,
			Name:      names.Canonical(s.name),
			Arguments: llm.ParseToolArguments(s.args.String()),
		})
	}
	return calls
}
