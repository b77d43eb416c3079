package tools

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/nachoal/mini-agent-go/tools/base"
)

// ShellParams are the arguments of shell.exec
type ShellParams struct {
	Command      string            `json:"command" description:"Command line run through the platform shell"`
	Cwd          string            `json:"cwd,omitempty" description:"Working directory relative to the workspace root (default: the root)"`
	TimeoutMS    int               `json:"timeout_ms,omitempty" schema:"min:1,max:600000" description:"Timeout in milliseconds (default 60000)"`
	EnvOverrides map[string]string `json:"env_overrides,omitempty" description:"Extra environment variables for the command"`
}

// ShellTool executes shell commands inside the workspace
type ShellTool struct {
	base.BaseTool
	executor    *Executor
	passthrough []string
	maxOutput   int
}

// Parameters returns the parameters struct
func (t *ShellTool) Parameters() interface{} {
	return &ShellParams{}
}

// Execute runs a shell command. A non-zero exit code is a successful
// call; the output always carries stdout, stderr and exit_code.
func (t *ShellTool) Execute(ctx context.Context, inv *Invocation) (interface{}, error) {
	var args ShellParams
	if err := inv.Decode(&args); err != nil {
		return nil, err
	}
	if strings.TrimSpace(args.Command) == "" {
		return nil, NewToolError(KindInvalidArguments, "command cannot be empty")
	}

	cwd := "."
	if args.Cwd != "" {
		cwd = args.Cwd
	}
	dir, err := inv.Workspace.Resolve(cwd)
	if err != nil {
		return nil, err
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return nil, NewToolError(KindNotFound, fmt.Sprintf("working directory %q does not exist", cwd))
	}

	inv.Log().Debug("shell exec", "command", args.Command, "cwd", inv.Workspace.Rel(dir))
	inv.Report("running: %s", args.Command)

	result, err := t.executor.Run(ctx, ExecRequest{
		Command:        ShellCommand(args.Command),
		Dir:            dir,
		Env:            ChildEnv(t.passthrough, args.EnvOverrides),
		MaxOutputBytes: t.maxOutput,
	})
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return nil, NewToolError(KindTimeout, fmt.Sprintf("command timed out after %dms; process group killed", result.DurationMS)).
			WithOutput(result)
	case errors.Is(err, context.Canceled):
		return nil, NewToolError(KindCancelled, "command cancelled; process group killed").
			WithOutput(result)
	case err != nil:
		return nil, fmt.Errorf("start command: %w", err)
	}
	return result, nil
}
