package tools

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/nachoal/mini-agent-go/tools/base"
)

// FileWriteParams are the arguments of file.write
type FileWriteParams struct {
	Path    string `json:"path" description:"File path, relative to the workspace root"`
	Content string `json:"content" description:"Text to write"`
	Mode    string `json:"mode,omitempty" schema:"enum:create|overwrite|append,default:overwrite" description:"create fails if the file exists; overwrite replaces it; append adds to the end"`
}

// FileWriteOutput is the output of file.write
type FileWriteOutput struct {
	Path         string `json:"path"`
	Mode         string `json:"mode"`
	BytesWritten int    `json:"bytes_written"`
	Created      bool   `json:"created"`
}

// FileWriteTool writes files atomically
type FileWriteTool struct {
	base.BaseTool
}

// Parameters returns the parameters struct
func (t *FileWriteTool) Parameters() interface{} {
	return &FileWriteParams{}
}

// Execute writes a file inside the workspace
func (t *FileWriteTool) Execute(ctx context.Context, inv *Invocation) (interface{}, error) {
	var args FileWriteParams
	if err := inv.Decode(&args); err != nil {
		return nil, err
	}
	if args.Mode == "" {
		args.Mode = "overwrite"
	}

	path, err := inv.Workspace.Resolve(args.Path)
	if err != nil {
		return nil, err
	}

	info, statErr := os.Stat(path)
	exists := statErr == nil
	if exists && info.IsDir() {
		return nil, NewToolError(KindInvalidArguments, fmt.Sprintf("%q is a directory", args.Path))
	}

	data := []byte(args.Content)
	switch args.Mode {
	case "create":
		if exists {
			return nil, NewToolError(KindExists, fmt.Sprintf("file %q already exists", args.Path))
		}
	case "append":
		if exists {
			prev, err := os.ReadFile(path)
			if err != nil {
				return nil, err
			}
			data = append(prev, data...)
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	err = writeFileAtomic(path, data, fileMode(path), args.Mode == "create")
	if errors.Is(err, fs.ErrExist) {
		return nil, NewToolError(KindExists, fmt.Sprintf("file %q already exists", args.Path))
	}
	if err != nil {
		return nil, err
	}

	rel := inv.Workspace.Rel(path)
	inv.RecordSideEffect(fmt.Sprintf("%s %s", verbFor(args.Mode, exists), rel))
	inv.Log().Debug("file written", "path", rel, "mode", args.Mode, "bytes", len(args.Content))

	return FileWriteOutput{
		Path:         rel,
		Mode:         args.Mode,
		BytesWritten: len(args.Content),
		Created:      !exists,
	}, nil
}

func verbFor(mode string, existed bool) string {
	switch {
	case !existed:
		return "created"
	case mode == "append":
		return "appended"
	default:
		return "overwrote"
	}
}
