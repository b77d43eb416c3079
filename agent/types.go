package agent

import (
	"errors"
	"log/slog"

	"github.com/nachoal/mini-agent-go/skills"
	"github.com/nachoal/mini-agent-go/tools"
)

var (
	// ErrTurnInProgress is returned when a session already runs a turn
	ErrTurnInProgress = errors.New("a turn is already in progress")
	// ErrSessionClosed is returned for operations on a closed session
	ErrSessionClosed = errors.New("session closed")
)

// Config contains session configuration
type Config struct {
	SystemPrompt string
	MaxSteps     int
	Model        string
	MaxTokens    int
	Temperature  float64
	Stream       bool

	Skills *skills.Index
	Logger *slog.Logger
}

// DefaultConfig returns a default session configuration
func DefaultConfig() Config {
	return Config{
		SystemPrompt: DefaultSystemPrompt,
		MaxSteps:     10,
		MaxTokens:    16384,
		Stream:       true,
	}
}

// Option is a functional option for configuring a session
type Option func(*Config)

// WithSystemPrompt sets the base system prompt
func WithSystemPrompt(prompt string) Option {
	return func(c *Config) {
		if prompt != "" {
			c.SystemPrompt = prompt
		}
	}
}

// WithMaxSteps bounds the model calls per turn
func WithMaxSteps(steps int) Option {
	return func(c *Config) {
		if steps > 0 {
			c.MaxSteps = steps
		}
	}
}

// WithModel overrides the client's default model
func WithModel(model string) Option {
	return func(c *Config) {
		c.Model = model
	}
}

// WithMaxTokens sets the completion token limit
func WithMaxTokens(limit int) Option {
	return func(c *Config) {
		c.MaxTokens = limit
	}
}

// WithTemperature sets the sampling temperature
func WithTemperature(temp float64) Option {
	return func(c *Config) {
		c.Temperature = temp
	}
}

// WithStream toggles streamed completions
func WithStream(stream bool) Option {
	return func(c *Config) {
		c.Stream = stream
	}
}

// WithSkills attaches the skill index
func WithSkills(idx *skills.Index) Option {
	return func(c *Config) {
		c.Skills = idx
	}
}

// WithLogger sets the session logger
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// EventType represents the type of stream event
type EventType string

const (
	EventAgentThought     EventType = "agent_thought"
	EventToolStarted      EventType = "tool_started"
	EventToolProgress     EventType = "tool_progress"
	EventToolFinished     EventType = "tool_finished"
	EventAssistantMessage EventType = "assistant_message"
	EventTurnFinished     EventType = "turn_finished"
	EventError            EventType = "error"
)

// StopReason is why a turn ended
type StopReason string

const (
	StopCompleted StopReason = "completed"
	StopCancelled StopReason = "cancelled"
	StopError     StopReason = "error"
	StopStepLimit StopReason = "step_limit"
)

// Event is one progress record of a turn
type Event struct {
	Type EventType `json:"type"`

	// agent_thought and assistant_message
	Text string `json:"text,omitempty"`

	// tool_started, tool_progress and tool_finished
	Tool     *ToolEvent `json:"tool,omitempty"`
	Progress string     `json:"progress,omitempty"`

	// turn_finished
	Reason StopReason `json:"reason,omitempty"`

	// error
	ErrorKind string `json:"errorKind,omitempty"`
	Message   string `json:"message,omitempty"`
}

// ToolEvent contains information about a tool execution
type ToolEvent struct {
	CallID    string                 `json:"callId"`
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments,omitempty"`
	Result    *tools.Result          `json:"result,omitempty"`
}

// TurnResult is the outcome of a finished turn
type TurnResult struct {
	Reason StopReason
	// Text is the content of the last assistant message
	Text  string
	Steps int
	Err   error
}

// DefaultSystemPrompt is used when no system prompt is configured
const DefaultSystemPrompt = `You are Mini Agent, a careful assistant that completes tasks inside a workspace directory.
Use the available tools to inspect and change files and to run commands. Prefer small, verifiable steps.
When a tool fails, read its error and adjust instead of repeating the same call.
When the task is complete, answer with a short summary of what you did.`
