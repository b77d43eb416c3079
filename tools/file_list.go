package tools

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/format/gitignore"

	"github.com/nachoal/mini-agent-go/tools/base"
)

const defaultListMaxEntries = 1000

// FileListParams are the arguments of file.list
type FileListParams struct {
	Path       string `json:"path,omitempty" description:"Directory to list, relative to the workspace root (default \".\")"`
	Recursive  bool   `json:"recursive,omitempty" description:"Descend into subdirectories"`
	MaxEntries int    `json:"max_entries,omitempty" schema:"min:1,max:10000" description:"Maximum entries to return (default 1000)"`
}

// FileEntry is one listed path
type FileEntry struct {
	Path string `json:"path"`
	Type string `json:"type"`
	Size int64  `json:"size,omitempty"`
}

// FileListOutput is the output of file.list
type FileListOutput struct {
	Path      string      `json:"path"`
	Entries   []FileEntry `json:"entries"`
	Truncated bool        `json:"truncated"`
}

// FileListTool lists directory contents, honouring .gitignore files
type FileListTool struct {
	base.BaseTool
}

// Parameters returns the parameters struct
func (t *FileListTool) Parameters() interface{} {
	return &FileListParams{}
}

// Execute lists directory contents
func (t *FileListTool) Execute(ctx context.Context, inv *Invocation) (interface{}, error) {
	var args FileListParams
	if err := inv.Decode(&args); err != nil {
		return nil, err
	}
	if args.Path == "" {
		args.Path = "."
	}
	limit := args.MaxEntries
	if limit <= 0 {
		limit = defaultListMaxEntries
	}

	dir, err := inv.Workspace.Resolve(args.Path)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, NewToolError(KindNotFound, fmt.Sprintf("directory %q does not exist", args.Path))
		}
		return nil, err
	}
	if !info.IsDir() {
		return nil, NewToolError(KindInvalidArguments, fmt.Sprintf("%q is not a directory", args.Path))
	}

	root := inv.Workspace.Root()
	patterns := loadIgnorePatterns(root, root)
	// Patterns from .gitignore files between the root and the listed directory
	for _, seg := range ancestorDirs(root, dir) {
		patterns = append(patterns, loadIgnorePatterns(root, seg)...)
	}

	out := FileListOutput{Path: inv.Workspace.Rel(dir), Entries: []FileEntry{}}
	errLimit := errors.New("limit reached")

	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if path == dir {
				return walkErr
			}
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if path == dir {
			return nil
		}

		rel := inv.Workspace.Rel(path)
		if d.Name() == ".git" {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		matcher := gitignore.NewMatcher(patterns)
		if matcher.Match(strings.Split(rel, "/"), d.IsDir()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if len(out.Entries) >= limit {
			out.Truncated = true
			return errLimit
		}

		entry := FileEntry{Path: rel, Type: "file"}
		switch {
		case d.IsDir():
			entry.Type = "dir"
		case d.Type()&fs.ModeSymlink != 0:
			entry.Type = "symlink"
		default:
			if fi, err := d.Info(); err == nil {
				entry.Size = fi.Size()
			}
		}
		out.Entries = append(out.Entries, entry)

		if d.IsDir() {
			if !args.Recursive {
				return filepath.SkipDir
			}
			patterns = append(patterns, loadIgnorePatterns(root, path)...)
		}
		return nil
	})
	if err != nil && !errors.Is(err, errLimit) {
		return nil, err
	}

	sort.Slice(out.Entries, func(i, j int) bool { return out.Entries[i].Path < out.Entries[j].Path })
	return out, nil
}

// loadIgnorePatterns parses dir/.gitignore with patterns scoped to dir
func loadIgnorePatterns(root, dir string) []gitignore.Pattern {
	f, err := os.Open(filepath.Join(dir, ".gitignore"))
	if err != nil {
		return nil
	}
	defer f.Close()

	var domain []string
	if rel, err := filepath.Rel(root, dir); err == nil && rel != "." {
		domain = strings.Split(filepath.ToSlash(rel), "/")
	}

	var patterns []gitignore.Pattern
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, gitignore.ParsePattern(line, domain))
	}
	return patterns
}

// ancestorDirs lists the directories strictly between root and dir, plus dir
func ancestorDirs(root, dir string) []string {
	rel, err := filepath.Rel(root, dir)
	if err != nil || rel == "." {
		return nil
	}
	var dirs []string
	cur := root
	for _, seg := range strings.Split(rel, string(filepath.Separator)) {
		cur = filepath.Join(cur, seg)
		dirs = append(dirs, cur)
	}
	return dirs
}
