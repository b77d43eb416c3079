package tools

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"unicode/utf8"

	"github.com/nachoal/mini-agent-go/tools/base"
)

const defaultReadMaxBytes = 1 << 20

// FileReadParams are the arguments of file.read
type FileReadParams struct {
	Path     string `json:"path" description:"File path, relative to the workspace root"`
	MaxBytes int    `json:"max_bytes,omitempty" schema:"min:1" description:"Maximum number of bytes to return (default 1048576)"`
}

// FileReadOutput is the output of file.read
type FileReadOutput struct {
	Path      string `json:"path"`
	Content   string `json:"content"`
	Encoding  string `json:"encoding"`
	Bytes     int64  `json:"bytes"`
	Truncated bool   `json:"truncated"`
}

// FileReadTool reads file contents
type FileReadTool struct {
	base.BaseTool
}

// Parameters returns the parameters struct
func (t *FileReadTool) Parameters() interface{} {
	return &FileReadParams{}
}

// Execute reads a file inside the workspace. Text is returned as UTF-8,
// anything else base64 encoded.
func (t *FileReadTool) Execute(ctx context.Context, inv *Invocation) (interface{}, error) {
	var args FileReadParams
	if err := inv.Decode(&args); err != nil {
		return nil, err
	}

	path, err := inv.Workspace.Resolve(args.Path)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, NewToolError(KindNotFound, fmt.Sprintf("file %q does not exist", args.Path)).
				WithDetail("path", args.Path)
		}
		return nil, err
	}
	if info.IsDir() {
		return nil, NewToolError(KindInvalidArguments, fmt.Sprintf("%q is a directory; use file.list", args.Path))
	}

	limit := args.MaxBytes
	if limit <= 0 {
		limit = defaultReadMaxBytes
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, int64(limit)+1))
	if err != nil {
		return nil, err
	}
	truncated := len(data) > limit
	if truncated {
		data = data[:limit]
		// Don't let the cut split a multi-byte character
		for i := 0; i < utf8.UTFMax-1 && len(data) > 0 && !utf8.Valid(data); i++ {
			data = data[:len(data)-1]
		}
	}

	out := FileReadOutput{
		Path:      inv.Workspace.Rel(path),
		Encoding:  "utf-8",
		Bytes:     info.Size(),
		Truncated: truncated,
	}
	if utf8.Valid(data) {
		out.Content = string(data)
	} else {
		out.Encoding = "base64"
		out.Content = base64.StdEncoding.EncodeToString(data)
	}
	return out, nil
}
