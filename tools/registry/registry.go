package registry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/nachoal/mini-agent-go/internal/schema"
	"github.com/nachoal/mini-agent-go/internal/validator"
	"github.com/nachoal/mini-agent-go/llm"
	"github.com/nachoal/mini-agent-go/tools"
)

// ErrDuplicateTool is returned when a tool name is registered twice
var ErrDuplicateTool = errors.New("tool already registered")

// DefaultTimeout applies to calls that do not ask for another one
const DefaultTimeout = 60 * time.Second

// TimeoutArgument is the argument a tool declares to accept per-call timeouts
const TimeoutArgument = "timeout_ms"

// Per-category hard ceilings
var categoryCeilings = map[tools.Category]time.Duration{
	tools.CategoryFile:   60 * time.Second,
	tools.CategoryShell:  10 * time.Minute,
	tools.CategorySkills: 10 * time.Minute,
	tools.CategoryWeb:    2 * time.Minute,
}

type entry struct {
	tool   tools.Tool
	schema *schema.Schema
}

// Registry manages tool registration, schemas and dispatch. It is
// safe for concurrent use and treated as immutable once sessions start.
type Registry struct {
	mu             sync.RWMutex
	entries        map[string]*entry
	order          []string
	generator      *schema.Generator
	validator      *validator.Validator
	defaultTimeout time.Duration
	logger         *slog.Logger
}

// Option configures a Registry
type Option func(*Registry)

// WithLogger sets the logger used for dispatch diagnostics
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithDefaultTimeout overrides DefaultTimeout
func WithDefaultTimeout(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.defaultTimeout = d
		}
	}
}

// New creates a new tool registry
func New(opts ...Option) *Registry {
	r := &Registry{
		entries:        make(map[string]*entry),
		generator:      schema.NewGenerator(),
		validator:      validator.New(),
		defaultTimeout: DefaultTimeout,
		logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a tool. Its parameter schema is generated once here.
func (r *Registry) Register(tool tools.Tool) error {
	s, err := r.generator.Generate(tool.Parameters())
	if err != nil {
		return fmt.Errorf("tool %q: %w", tool.Name(), err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[tool.Name()]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTool, tool.Name())
	}
	r.entries[tool.Name()] = &entry{tool: tool, schema: s}
	r.order = append(r.order, tool.Name())
	return nil
}

// Get retrieves a tool by name
func (r *Registry) Get(name string) (tools.Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[name]
	if !ok {
		return nil, false
	}
	return e.tool, true
}

// List returns the tools in registration order
func (r *Registry) List() []tools.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]tools.Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.entries[name].tool)
	}
	return out
}

// Len returns the number of registered tools
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Schema returns the parameter schema of a tool
func (r *Registry) Schema(name string) (*schema.Schema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[name]
	if !ok {
		return nil, false
	}
	return e.schema, true
}

// Schemas returns the tool schemas advertised to the model, in
// registration order
func (r *Registry) Schemas() []llm.ToolSchema {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]llm.ToolSchema, 0, len(r.order))
	for _, name := range r.order {
		e := r.entries[name]
		out = append(out, llm.ToolSchema{
			Name:        name,
			Description: e.tool.Description(),
			Parameters:  e.schema.Map(),
		})
	}
	return out
}

// ReadOnly reports whether every call targets a registered read-only tool
func (r *Registry) ReadOnly(calls []llm.ToolCall) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, call := range calls {
		e, ok := r.entries[call.Name]
		if !ok || !e.tool.ReadOnly() {
			return false
		}
	}
	return true
}

// Dispatch runs one tool call. Failures of any kind come back as a
// failed Result; Dispatch itself never returns an error.
func (r *Registry) Dispatch(ctx context.Context, call llm.ToolCall, session *tools.Invocation) tools.Result {
	r.mu.RLock()
	e, ok := r.entries[call.Name]
	r.mu.RUnlock()
	if !ok {
		return tools.Failure(tools.KindNotFound, fmt.Sprintf("unknown tool %q", call.Name))
	}

	if session == nil {
		session = &tools.Invocation{}
	}
	if !session.Permissions.Allowed(call.Name, e.tool.Category()) {
		return tools.Failure(tools.KindPermissionDenied, fmt.Sprintf("tool %q is denied for this session", call.Name))
	}

	args := call.Arguments
	if args == nil {
		args = map[string]interface{}{}
	}
	if err := r.validator.Validate(e.schema, args); err != nil {
		return tools.Failure(tools.KindInvalidArguments, err.Error())
	}

	timeout := r.timeoutFor(e, args)
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	inv := session.ForCall(call.ID, args)
	start := time.Now()
	out, err := r.invoke(callCtx, e.tool, inv)

	log := inv.Log().With("tool", call.Name, "call_id", call.ID, "duration", time.Since(start))
	if err == nil {
		log.Debug("tool finished")
		return tools.Success(out, inv.SideEffects()...)
	}

	res := r.classify(ctx, callCtx, err, timeout)
	res.SideEffects = inv.SideEffects()
	log.Debug("tool failed", "kind", res.ErrorKind, "error", err)
	return res
}

func (r *Registry) invoke(ctx context.Context, tool tools.Tool, inv *tools.Invocation) (out interface{}, err error) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("tool panicked", "tool", tool.Name(), "panic", p, "stack", string(debug.Stack()))
			out = nil
			err = &panicError{value: p}
		}
	}()
	return tool.Execute(ctx, inv)
}

type panicError struct {
	value interface{}
}

func (e *panicError) Error() string {
	return fmt.Sprintf("tool crashed: %v", e.value)
}

func (r *Registry) classify(parent, callCtx context.Context, err error, timeout time.Duration) tools.Result {
	var te *tools.ToolError
	if errors.As(err, &te) {
		res := tools.Failure(te.Code, te.Message)
		if len(te.Details) > 0 {
			res.Details = te.Details
		}
		res.Output = te.Output
		return res
	}

	var pe *panicError
	switch {
	case errors.As(err, &pe):
		return tools.Failure(tools.KindRuntime, sanitize(pe.Error()))
	case parent.Err() != nil:
		return tools.Failure(tools.KindCancelled, "cancelled")
	case errors.Is(callCtx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded):
		return tools.Failure(tools.KindTimeout, fmt.Sprintf("timed out after %s", timeout))
	case errors.Is(err, context.Canceled):
		return tools.Failure(tools.KindCancelled, "cancelled")
	case errors.Is(err, fs.ErrNotExist):
		return tools.Failure(tools.KindNotFound, sanitize(err.Error()))
	case errors.Is(err, fs.ErrPermission):
		return tools.Failure(tools.KindPermissionDenied, sanitize(err.Error()))
	default:
		return tools.Failure(tools.KindRuntime, sanitize(err.Error()))
	}
}

func (r *Registry) timeoutFor(e *entry, args map[string]interface{}) time.Duration {
	d := r.defaultTimeout
	if e.schema.HasProperty(TimeoutArgument) {
		if ms, ok := millis(args[TimeoutArgument]); ok && ms > 0 {
			d = time.Duration(ms) * time.Millisecond
		}
	}
	if ceiling, ok := categoryCeilings[e.tool.Category()]; ok && d > ceiling {
		d = ceiling
	}
	return d
}

func millis(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int:
		return int64(n), true
	case int64:
		return n, true
	default:
		return 0, false
	}
}

// sanitize keeps the first line of an error message and caps its length
func sanitize(msg string) string {
	if i := strings.IndexByte(msg, '\n'); i >= 0 {
		msg = msg[:i]
	}
	msg = strings.TrimSpace(msg)
	if len(msg) > 300 {
		msg = msg[:300] + "..."
	}
	if msg == "" {
		msg = "tool failed"
	}
	return msg
}

// Batch dispatches the tool calls of one assistant message and rejects a
// repeated call id
type Batch struct {
	registry *Registry

	mu   sync.Mutex
	seen map[string]bool
}

// Batch starts a dispatcher for one assistant message
func (r *Registry) Batch() *Batch {
	return &Batch{registry: r, seen: make(map[string]bool)}
}

// Claim records a call id, returning false when it was already used
func (b *Batch) Claim(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if id == "" {
		return true
	}
	if b.seen[id] {
		return false
	}
	b.seen[id] = true
	return true
}

// Dispatch runs a call unless its id repeats an earlier one in the batch
func (b *Batch) Dispatch(ctx context.Context, call llm.ToolCall, session *tools.Invocation) tools.Result {
	if !b.Claim(call.ID) {
		return tools.Failure(tools.KindInvalidArguments, fmt.Sprintf("duplicate tool call id %q", call.ID))
	}
	return b.registry.Dispatch(ctx, call, session)
}
