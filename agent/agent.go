package agent

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/nachoal/mini-agent-go/llm"
	"github.com/nachoal/mini-agent-go/tools"
)

const cancelledNote = "[The user cancelled the previous turn before it finished.]"

// turn drives one user message through the model/tool loop
type turn struct {
	session *Session
	stream  *Stream

	steps    int
	lastText string
	calls    map[string]string // call id -> tool name, for progress events
}

func (t *turn) run(ctx context.Context, text string) TurnResult {
	s := t.session
	s.conversation.Append(llm.Message{Role: llm.RoleUser, Content: text})
	schemas := s.registry.Schemas()

	for {
		if s.stopped(ctx) {
			return t.cancelled()
		}
		if t.steps >= s.config.MaxSteps {
			return t.finish(StopStepLimit, nil)
		}
		t.steps++

		reply, err := t.complete(ctx, schemas)
		if err != nil {
			if s.stopped(ctx) {
				return t.cancelled()
			}
			if llm.IsKind(err, llm.ErrContextOverflow) && s.conversation.DropOldestCluster() {
				s.logger.Info("context overflow, dropped oldest exchange")
				t.steps--
				continue
			}
			s.logger.Error("model request failed", "error", err)
			t.stream.emit(Event{Type: EventError, ErrorKind: "transport", Message: err.Error()})
			return t.finish(StopError, err)
		}

		msg := reply.Message
		msg.Role = llm.RoleAssistant
		for i := range msg.ToolCalls {
			if msg.ToolCalls[i].ID == "" {
				msg.ToolCalls[i].ID = llm.NewCallID()
			}
		}
		s.conversation.Append(msg)

		if !s.config.Stream && msg.Thinking != "" {
			t.stream.emit(Event{Type: EventAgentThought, Text: msg.Thinking})
		}
		if msg.Content != "" || len(msg.ToolCalls) == 0 {
			t.lastText = msg.Content
			t.stream.emit(Event{Type: EventAssistantMessage, Text: msg.Content})
		}
		if len(msg.ToolCalls) == 0 {
			return t.finish(StopCompleted, nil)
		}

		results := t.dispatch(ctx, msg.ToolCalls)
		replies := make([]llm.Message, len(msg.ToolCalls))
		for i, call := range msg.ToolCalls {
			replies[i] = llm.Message{
				Role:       llm.RoleTool,
				Content:    results[i].JSON(),
				ToolCallID: call.ID,
				Name:       call.Name,
			}
		}
		s.conversation.Append(replies...)
	}
}

func (t *turn) complete(ctx context.Context, schemas []llm.ToolSchema) (*llm.Reply, error) {
	cfg := t.session.config
	req := &llm.Request{
		Model:       cfg.Model,
		Messages:    t.session.conversation.Window(),
		Tools:       schemas,
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
		Stream:      cfg.Stream,
	}
	if cfg.Stream {
		req.OnDelta = func(d llm.Delta) {
			if d.Thinking != "" {
				t.stream.emit(Event{Type: EventAgentThought, Text: d.Thinking})
			}
		}
	}

	reply, err := t.session.client.Complete(ctx, req)
	if err != nil {
		return nil, err
	}
	if reply == nil {
		return nil, errors.New("model returned no reply")
	}
	return reply, nil
}

// dispatch runs the calls of one assistant message and returns a result
// per call in call order. Calls not started because of cancellation get
// a cancelled result.
func (t *turn) dispatch(ctx context.Context, calls []llm.ToolCall) []tools.Result {
	s := t.session
	batch := s.registry.Batch()
	results := make([]tools.Result, len(calls))

	t.calls = make(map[string]string, len(calls))
	for _, call := range calls {
		t.calls[call.ID] = call.Name
	}

	invocation := func(call llm.ToolCall) *tools.Invocation {
		inv := s.invocation()
		inv.Progress = tools.ProgressFor(t, call.ID)
		return inv
	}

	if len(calls) > 1 && s.registry.ReadOnly(calls) {
		for _, call := range calls {
			t.stream.emit(Event{Type: EventToolStarted, Tool: toolEvent(call, nil)})
		}

		var g errgroup.Group
		for i, call := range calls {
			i, call := i, call
			if s.stopped(ctx) {
				results[i] = cancelledResult()
				continue
			}
			if !batch.Claim(call.ID) {
				results[i] = duplicateResult(call.ID)
				continue
			}
			g.Go(func() error {
				results[i] = s.registry.Dispatch(ctx, call, invocation(call))
				return nil
			})
		}
		_ = g.Wait()

		for i, call := range calls {
			t.stream.emit(Event{Type: EventToolFinished, Tool: toolEvent(call, &results[i])})
		}
		return results
	}

	for i, call := range calls {
		if s.stopped(ctx) {
			results[i] = cancelledResult()
			t.stream.emit(Event{Type: EventToolFinished, Tool: toolEvent(call, &results[i])})
			continue
		}
		t.stream.emit(Event{Type: EventToolStarted, Tool: toolEvent(call, nil)})
		results[i] = batch.Dispatch(ctx, call, invocation(call))
		t.stream.emit(Event{Type: EventToolFinished, Tool: toolEvent(call, &results[i])})
	}
	return results
}

// ReportProgress turns tool progress lines into events
func (t *turn) ReportProgress(callID, message string) {
	t.stream.emit(Event{
		Type:     EventToolProgress,
		Tool:     &ToolEvent{CallID: callID, Name: t.calls[callID]},
		Progress: message,
	})
}

func (t *turn) cancelled() TurnResult {
	t.session.conversation.Append(llm.Message{Role: llm.RoleUser, Content: cancelledNote, Hidden: true})
	return t.finish(StopCancelled, context.Canceled)
}

func (t *turn) finish(reason StopReason, err error) TurnResult {
	if reason == StopStepLimit {
		err = fmt.Errorf("stopped after %d model calls", t.steps)
	}
	t.stream.emit(Event{Type: EventTurnFinished, Reason: reason})
	return TurnResult{Reason: reason, Text: t.lastText, Steps: t.steps, Err: err}
}

func toolEvent(call llm.ToolCall, result *tools.Result) *ToolEvent {
	return &ToolEvent{CallID: call.ID, Name: call.Name, Arguments: call.Arguments, Result: result}
}

func cancelledResult() tools.Result {
	return tools.Failure(tools.KindCancelled, "the turn was cancelled before this call ran")
}

func duplicateResult(id string) tools.Result {
	return tools.Failure(tools.KindInvalidArguments, fmt.Sprintf("duplicate tool call id %q", id))
}
