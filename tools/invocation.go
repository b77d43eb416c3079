package tools

import (
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/mitchellh/mapstructure"

	"github.com/nachoal/mini-agent-go/skills"
)

// Invocation carries one tool call and the session state a tool may touch
type Invocation struct {
	CallID string
	Args   map[string]interface{}

	Workspace   *Workspace
	Permissions *Permissions
	Skills      *skills.Index
	WorkingSet  *skills.WorkingSet
	Logger      *slog.Logger

	// Progress receives interim status lines; may be nil
	Progress ProgressFunc

	mu          sync.Mutex
	sideEffects []string
}

// ForCall returns a copy of the session template bound to one call
func (inv *Invocation) ForCall(callID string, args map[string]interface{}) *Invocation {
	return &Invocation{
		CallID:      callID,
		Args:        args,
		Workspace:   inv.Workspace,
		Permissions: inv.Permissions,
		Skills:      inv.Skills,
		WorkingSet:  inv.WorkingSet,
		Logger:      inv.Logger,
		Progress:    inv.Progress,
	}
}

// Decode copies the arguments into a parameter struct using its json tags
func (inv *Invocation) Decode(out interface{}) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(inv.Args); err != nil {
		return NewToolError(KindInvalidArguments, fmt.Sprintf("arguments could not be decoded: %v", err))
	}
	return nil
}

// Report sends a progress line
func (inv *Invocation) Report(format string, args ...interface{}) {
	if inv.Progress != nil {
		inv.Progress(fmt.Sprintf(format, args...))
	}
}

// RecordSideEffect notes a change the call made outside the conversation
func (inv *Invocation) RecordSideEffect(effect string) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	inv.sideEffects = append(inv.sideEffects, effect)
}

// SideEffects returns the recorded side effects
func (inv *Invocation) SideEffects() []string {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	if len(inv.sideEffects) == 0 {
		return nil
	}
	out := make([]string, len(inv.sideEffects))
	copy(out, inv.sideEffects)
	return out
}

// Log returns the invocation logger or a discarding one
func (inv *Invocation) Log() *slog.Logger {
	if inv.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return inv.Logger
}
