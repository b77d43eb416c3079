package agent

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/nachoal/mini-agent-go/llm"
	"github.com/nachoal/mini-agent-go/skills"
	"github.com/nachoal/mini-agent-go/tools"
	"github.com/nachoal/mini-agent-go/tools/registry"
)

// Session is a single-client conversation bound to one workspace
type Session struct {
	ID string

	client    llm.Client
	registry  *registry.Registry
	workspace *tools.Workspace
	config    Config
	logger    *slog.Logger

	conversation *Conversation
	permissions  *tools.Permissions
	workingSet   *skills.WorkingSet

	cancelled atomic.Bool

	mu         sync.Mutex
	busy       bool
	closed     bool
	cancelTurn context.CancelFunc
}

// NewSession creates a session. The system prompt is assembled from the
// configured prompt, the workspace root and the skills preamble.
func NewSession(client llm.Client, reg *registry.Registry, workspace *tools.Workspace, opts ...Option) *Session {
	config := DefaultConfig()
	for _, opt := range opts {
		opt(&config)
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	id := uuid.NewString()
	s := &Session{
		ID:          id,
		client:      client,
		registry:    reg,
		workspace:   workspace,
		config:      config,
		logger:      logger.With("session", id),
		permissions: tools.NewPermissions(),
		workingSet:  skills.NewWorkingSet(config.Skills),
	}
	s.conversation = NewConversation(BuildSystemPrompt(config.SystemPrompt, workspace.Root(), config.Skills.Preamble()))
	return s
}

// Conversation returns the session's message log
func (s *Session) Conversation() *Conversation {
	return s.conversation
}

// Permissions returns the per-session tool overrides
func (s *Session) Permissions() *tools.Permissions {
	return s.permissions
}

// Workspace returns the session workspace
func (s *Session) Workspace() *tools.Workspace {
	return s.workspace
}

// Registry returns the tool registry the session dispatches to
func (s *Session) Registry() *registry.Registry {
	return s.registry
}

// Skills returns the skill index, which may be nil
func (s *Session) Skills() *skills.Index {
	return s.config.Skills
}

// Busy reports whether a turn is running
func (s *Session) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy
}

// Prompt starts a turn for one user message. Events are delivered on the
// returned stream; the turn runs until it finishes, ctx is cancelled or
// the session is cancelled.
func (s *Session) Prompt(ctx context.Context, text string) (*Stream, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrSessionClosed
	}
	if s.busy {
		s.mu.Unlock()
		return nil, ErrTurnInProgress
	}
	turnCtx, cancel := context.WithCancel(ctx)
	s.busy = true
	s.cancelTurn = cancel
	s.cancelled.Store(false)
	s.mu.Unlock()

	stream := newStream(func() { s.Cancel() })
	go func() {
		t := &turn{session: s, stream: stream}
		result := t.run(turnCtx, text)
		cancel()

		s.mu.Lock()
		s.busy = false
		s.cancelTurn = nil
		s.mu.Unlock()

		s.logger.Debug("turn finished", "reason", result.Reason, "steps", result.Steps)
		stream.finish(result)
	}()
	return stream, nil
}

// Cancel sets the cancellation flag and cancels the running turn. It
// reports whether a turn was running.
func (s *Session) Cancel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.busy {
		return false
	}
	s.cancelled.Store(true)
	if s.cancelTurn != nil {
		s.cancelTurn()
	}
	return true
}

// Close cancels any running turn and rejects further prompts
func (s *Session) Close() {
	s.Cancel()
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

// Clear resets the conversation to the system prompt and empties the
// skill working set
func (s *Session) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return ErrTurnInProgress
	}
	s.conversation.Reset()
	s.workingSet.Reset()
	return nil
}

func (s *Session) stopped(ctx context.Context) bool {
	return s.cancelled.Load() || ctx.Err() != nil
}

// invocation is the per-session template every tool call is derived from
func (s *Session) invocation() *tools.Invocation {
	return &tools.Invocation{
		Workspace:   s.workspace,
		Permissions: s.permissions,
		Skills:      s.config.Skills,
		WorkingSet:  s.workingSet,
		Logger:      s.logger,
	}
}
