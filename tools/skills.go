package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/nachoal/mini-agent-go/skills"
	"github.com/nachoal/mini-agent-go/tools/base"
)

// SkillsListTool returns Level 1 metadata for every skill
type SkillsListTool struct {
	base.BaseTool
}

// SkillsListParams is empty; skills.list takes no arguments
type SkillsListParams struct{}

// Parameters returns the parameters struct
func (t *SkillsListTool) Parameters() interface{} {
	return &SkillsListParams{}
}

// Execute lists the indexed skills
func (t *SkillsListTool) Execute(ctx context.Context, inv *Invocation) (interface{}, error) {
	return inv.Skills.List(), nil
}

// SkillsGetParams are the arguments of skills.get
type SkillsGetParams struct {
	Name string `json:"name" description:"Skill name as returned by skills.list"`
}

// SkillsGetTool returns a skill's instruction document
type SkillsGetTool struct {
	base.BaseTool
}

// Parameters returns the parameters struct
func (t *SkillsGetTool) Parameters() interface{} {
	return &SkillsGetParams{}
}

// Execute loads the document through the session working set
func (t *SkillsGetTool) Execute(ctx context.Context, inv *Invocation) (interface{}, error) {
	var args SkillsGetParams
	if err := inv.Decode(&args); err != nil {
		return nil, err
	}

	var (
		doc *skills.Document
		err error
	)
	if inv.WorkingSet != nil {
		doc, err = inv.WorkingSet.Get(args.Name)
	} else {
		doc, err = inv.Skills.Document(args.Name)
	}
	if errors.Is(err, skills.ErrNotFound) {
		return nil, NewToolError(KindNotFound, fmt.Sprintf("unknown skill %q", args.Name))
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// SkillsExecuteParams are the arguments of skills.execute
type SkillsExecuteParams struct {
	Name      string                 `json:"name" description:"Skill name"`
	Mode      string                 `json:"mode,omitempty" description:"Script to run from the skill's scripts directory (default: the skill's entrypoint)"`
	Inputs    map[string]interface{} `json:"inputs,omitempty" description:"Inputs passed to the script as JSON on stdin and in SKILL_INPUTS"`
	TimeoutMS int                    `json:"timeout_ms,omitempty" schema:"min:1,max:600000" description:"Timeout in milliseconds (default 60000)"`
}

// SkillRunOutput is the output of skills.execute
type SkillRunOutput struct {
	*ExecResult
	Script string `json:"script"`
	// Result is stdout decoded as JSON when it parses
	Result interface{} `json:"result,omitempty"`
}

// SkillsExecuteTool runs a skill script
type SkillsExecuteTool struct {
	base.BaseTool
	executor    *Executor
	passthrough []string
}

// Parameters returns the parameters struct
func (t *SkillsExecuteTool) Parameters() interface{} {
	return &SkillsExecuteParams{}
}

var interpreters = map[string][]string{
	".py": {"python3"},
	".sh": {"sh"},
	".js": {"node"},
	".rb": {"ruby"},
	".pl": {"perl"},
}

// Execute materialises the skill's resource root and runs the script for
// the requested mode with the workspace as working directory
func (t *SkillsExecuteTool) Execute(ctx context.Context, inv *Invocation) (interface{}, error) {
	var args SkillsExecuteParams
	if err := inv.Decode(&args); err != nil {
		return nil, err
	}
	mode := args.Mode
	if mode == "" {
		mode = "default"
	}
	if !skills.ValidName(mode) {
		return nil, NewToolError(KindInvalidArguments, fmt.Sprintf("invalid mode %q", mode))
	}

	meta, ok := inv.Skills.Lookup(args.Name)
	if !ok {
		return nil, NewToolError(KindNotFound, fmt.Sprintf("unknown skill %q", args.Name))
	}
	res, err := inv.Skills.Resources(args.Name)
	if err != nil {
		return nil, err
	}
	if res.Scripts == "" {
		return nil, NewToolError(KindNotFound, fmt.Sprintf("skill %q has no scripts directory", args.Name))
	}

	script, err := findScript(res.Scripts, mode, meta.Entrypoint)
	if err != nil {
		return nil, err
	}

	inputs := args.Inputs
	if inputs == nil {
		inputs = map[string]interface{}{}
	}
	payload, err := json.Marshal(inputs)
	if err != nil {
		return nil, NewToolError(KindInvalidArguments, "inputs are not JSON encodable")
	}

	command := []string{script}
	if interp, ok := interpreters[strings.ToLower(filepath.Ext(script))]; ok {
		command = append(append([]string{}, interp...), script)
	}

	inv.Report("running skill %s (%s)", args.Name, filepath.Base(script))
	inv.Log().Debug("skill exec", "skill", args.Name, "script", script)

	result, err := t.executor.Run(ctx, ExecRequest{
		Command: command,
		Dir:     inv.Workspace.Root(),
		Env: ChildEnv(t.passthrough, map[string]string{
			"SKILL_ROOT":      res.Root,
			"SKILL_RESOURCES": res.Assets,
			"SKILL_INPUTS":    string(payload),
			"WORKSPACE_ROOT":  inv.Workspace.Root(),
		}),
		Stdin: bytes.NewReader(payload),
	})
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return nil, NewToolError(KindTimeout, fmt.Sprintf("skill %q timed out", args.Name)).WithOutput(result)
	case errors.Is(err, context.Canceled):
		return nil, NewToolError(KindCancelled, fmt.Sprintf("skill %q cancelled", args.Name)).WithOutput(result)
	case err != nil:
		return nil, fmt.Errorf("start skill script: %w", err)
	}

	out := SkillRunOutput{ExecResult: result, Script: filepath.Base(script)}
	var parsed interface{}
	if trimmed := strings.TrimSpace(result.Stdout); trimmed != "" && json.Unmarshal([]byte(trimmed), &parsed) == nil {
		out.Result = parsed
	}
	return out, nil
}

// findScript resolves scripts/<mode>, with or without an extension. Mode
// "default" uses the front-matter entrypoint when one is declared.
func findScript(dir, mode, entrypoint string) (string, error) {
	if mode == "default" && entrypoint != "" {
		path := filepath.Join(dir, filepath.Clean(entrypoint))
		if !strings.HasPrefix(path, dir+string(filepath.Separator)) {
			return "", NewToolError(KindInvalidArguments, fmt.Sprintf("entrypoint %q escapes the scripts directory", entrypoint))
		}
		if _, err := os.Stat(path); err != nil {
			return "", NewToolError(KindNotFound, fmt.Sprintf("entrypoint %q not found", entrypoint))
		}
		return path, nil
	}

	exact := filepath.Join(dir, mode)
	if info, err := os.Stat(exact); err == nil && !info.IsDir() {
		return exact, nil
	}
	matches, _ := filepath.Glob(filepath.Join(dir, mode+".*"))
	sort.Strings(matches)
	if len(matches) == 0 {
		return "", NewToolError(KindNotFound, fmt.Sprintf("no script for mode %q", mode)).
			WithDetail("available", availableModes(dir))
	}
	return matches[0], nil
}

func availableModes(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	modes := []string{}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		modes = append(modes, strings.TrimSuffix(e.Name(), filepath.Ext(e.Name())))
	}
	return modes
}
