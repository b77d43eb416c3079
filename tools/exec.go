package tools

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"
)

// DefaultMaxOutputBytes caps each of stdout and stderr
const DefaultMaxOutputBytes = 256 * 1024

// baseEnvAllowlist is what a child process inherits from the agent's
// environment unless the configuration passes more through
var baseEnvAllowlist = []string{
	"PATH", "HOME", "USER", "LOGNAME", "LANG", "TERM", "TMPDIR", "SHELL", "TZ",
	"SYSTEMROOT", "COMSPEC", "PATHEXT", "TEMP", "TMP", "USERPROFILE",
}

// ExecResult is the outcome of a process run
type ExecResult struct {
	Stdout     string `json:"stdout"`
	Stderr     string `json:"stderr"`
	ExitCode   int    `json:"exit_code"`
	DurationMS int64  `json:"duration_ms"`
	Truncated  bool   `json:"truncated"`
}

// ExecRequest describes a process to run
type ExecRequest struct {
	Command []string
	Dir     string
	Env     []string
	Stdin   io.Reader
	// MaxOutputBytes caps each stream; zero uses DefaultMaxOutputBytes
	MaxOutputBytes int
}

// Executor runs child processes in their own process group so the whole
// tree can be killed on timeout or cancellation
type Executor struct {
	// WaitDelay bounds how long output pipes are drained after a kill
	WaitDelay time.Duration
}

// NewExecutor creates an executor with default settings
func NewExecutor() *Executor {
	return &Executor{WaitDelay: 2 * time.Second}
}

// ShellCommand wraps a command line for the platform shell
func ShellCommand(line string) []string {
	if runtime.GOOS == "windows" {
		return []string{"cmd", "/C", line}
	}
	return []string{"sh", "-c", line}
}

// Run executes the request until it exits or ctx ends. A non-zero exit is
// not an error. When ctx ends the process group is killed and the partial
// output is returned along with ctx.Err().
func (e *Executor) Run(ctx context.Context, req ExecRequest) (*ExecResult, error) {
	if len(req.Command) == 0 {
		return nil, os.ErrInvalid
	}
	limit := req.MaxOutputBytes
	if limit <= 0 {
		limit = DefaultMaxOutputBytes
	}

	cmd := exec.Command(req.Command[0], req.Command[1:]...)
	cmd.Dir = req.Dir
	cmd.Env = req.Env
	cmd.Stdin = req.Stdin
	setProcessGroup(cmd)

	stdout := newCollector(limit)
	stderr := newCollector(limit)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = e.WaitDelay

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, err
	}

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	var waitErr, ctxErr error
	select {
	case waitErr = <-done:
	case <-ctx.Done():
		ctxErr = ctx.Err()
		killProcessGroup(cmd)
		waitErr = <-done
	}

	result := &ExecResult{
		Stdout:     stdout.String(),
		Stderr:     stderr.String(),
		ExitCode:   exitCode(waitErr),
		DurationMS: time.Since(start).Milliseconds(),
		Truncated:  stdout.Truncated() || stderr.Truncated(),
	}
	if ctxErr != nil {
		return result, ctxErr
	}

	var exitErr *exec.ExitError
	if waitErr != nil && !errors.As(waitErr, &exitErr) && !errors.Is(waitErr, exec.ErrWaitDelay) {
		return result, waitErr
	}
	return result, nil
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

// ChildEnv builds a scrubbed environment: the base allowlist, locale
// variables, the configured passthrough names, then explicit overrides.
func ChildEnv(passthrough []string, overrides map[string]string) []string {
	allowed := make(map[string]bool, len(baseEnvAllowlist)+len(passthrough))
	for _, k := range baseEnvAllowlist {
		allowed[k] = true
	}
	for _, k := range passthrough {
		allowed[k] = true
	}

	env := make(map[string]string)
	for _, kv := range os.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		if allowed[k] || strings.HasPrefix(k, "LC_") {
			env[k] = v
		}
	}
	for k, v := range overrides {
		env[k] = v
	}

	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+env[k])
	}
	return out
}

// collector captures output up to a byte cap
type collector struct {
	mu        sync.Mutex
	buffer    bytes.Buffer
	maxBytes  int
	truncated bool
}

func newCollector(maxBytes int) *collector {
	return &collector{maxBytes: maxBytes}
}

func (c *collector) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	remaining := c.maxBytes - c.buffer.Len()
	if remaining <= 0 {
		c.truncated = true
		return len(p), nil
	}
	toWrite := p
	if len(toWrite) > remaining {
		toWrite = toWrite[:remaining]
		c.truncated = true
	}
	c.buffer.Write(toWrite)
	return len(p), nil
}

func (c *collector) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return strings.ToValidUTF8(c.buffer.String(), "�")
}

func (c *collector) Truncated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.truncated
}
