package tools

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/nachoal/mini-agent-go/tools/base"
)

// FileEditParams are the arguments of file.edit
type FileEditParams struct {
	Path       string `json:"path" description:"File path, relative to the workspace root"`
	Find       string `json:"find" description:"Exact text to find"`
	Replace    string `json:"replace" description:"Replacement text"`
	Occurrence string `json:"occurrence,omitempty" schema:"enum:first|all,default:first" description:"Replace the first match or all matches"`
}

// FileEditOutput is the output of file.edit
type FileEditOutput struct {
	Path         string `json:"path"`
	Replacements int    `json:"replacements"`
}

// FileEditTool replaces text inside a file
type FileEditTool struct {
	base.BaseTool
}

// Parameters returns the parameters struct
func (t *FileEditTool) Parameters() interface{} {
	return &FileEditParams{}
}

// Execute replaces text in a file. When find is absent the file is left
// untouched and not_found is returned, so repeating an applied edit is
// reported rather than silently succeeding.
func (t *FileEditTool) Execute(ctx context.Context, inv *Invocation) (interface{}, error) {
	var args FileEditParams
	if err := inv.Decode(&args); err != nil {
		return nil, err
	}
	if args.Find == "" {
		return nil, NewToolError(KindInvalidArguments, "find must not be empty")
	}
	if args.Occurrence == "" {
		args.Occurrence = "first"
	}

	path, err := inv.Workspace.Resolve(args.Path)
	if err != nil {
		return nil, err
	}

	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, NewToolError(KindNotFound, fmt.Sprintf("file %q does not exist", args.Path))
		}
		return nil, err
	}

	text := string(content)
	count := strings.Count(text, args.Find)
	if count == 0 {
		return nil, NewToolError(KindNotFound, fmt.Sprintf("text to find was not present in %q", args.Path)).
			WithDetail("path", args.Path)
	}

	var updated string
	replacements := 1
	if args.Occurrence == "all" {
		updated = strings.ReplaceAll(text, args.Find, args.Replace)
		replacements = count
	} else {
		updated = strings.Replace(text, args.Find, args.Replace, 1)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := writeFileAtomic(path, []byte(updated), fileMode(path), false); err != nil {
		return nil, err
	}

	rel := inv.Workspace.Rel(path)
	inv.RecordSideEffect(fmt.Sprintf("edited %s (%d replacement(s))", rel, replacements))

	return FileEditOutput{Path: rel, Replacements: replacements}, nil
}
