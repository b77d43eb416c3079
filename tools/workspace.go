package tools

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrOutsideWorkspace is returned when a path escapes the workspace root
var ErrOutsideWorkspace = errors.New("path outside workspace")

// Workspace confines file access to a root directory
type Workspace struct {
	root string
}

// NewWorkspace canonicalises root (absolute, symlinks resolved) and checks
// that it is a directory
func NewWorkspace(root string) (*Workspace, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("workspace %q: %w", root, err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("workspace %q: %w", root, err)
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return nil, fmt.Errorf("workspace %q: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("workspace %q is not a directory", root)
	}
	return &Workspace{root: resolved}, nil
}

// Root returns the canonical root
func (w *Workspace) Root() string {
	return w.root
}

// Resolve maps a relative or absolute path to an absolute path inside the
// workspace. Symlinks in the longest existing prefix are resolved before
// the boundary check, so a link pointing outside the root is rejected
// before anything is opened.
func (w *Workspace) Resolve(path string) (string, error) {
	var abs string
	if filepath.IsAbs(path) {
		abs = filepath.Clean(path)
	} else {
		abs = filepath.Clean(filepath.Join(w.root, path))
	}
	if !w.contains(abs) {
		return "", w.outside(path)
	}

	existing := abs
	for {
		if _, err := os.Lstat(existing); err == nil {
			break
		}
		parent := filepath.Dir(existing)
		if parent == existing {
			break
		}
		existing = parent
	}

	target, err := filepath.EvalSymlinks(existing)
	if err != nil {
		return "", fmt.Errorf("resolve %q: %w", path, err)
	}
	rest, err := filepath.Rel(existing, abs)
	if err != nil {
		return "", w.outside(path)
	}
	resolved := filepath.Join(target, rest)
	if !w.contains(resolved) {
		return "", w.outside(path)
	}
	return resolved, nil
}

// Rel returns abs relative to the root using forward slashes
func (w *Workspace) Rel(abs string) string {
	rel, err := filepath.Rel(w.root, abs)
	if err != nil {
		return abs
	}
	return filepath.ToSlash(rel)
}

func (w *Workspace) contains(abs string) bool {
	return abs == w.root || strings.HasPrefix(abs, w.root+string(filepath.Separator))
}

func (w *Workspace) outside(path string) error {
	return &ToolError{
		Code:    KindOutsideWorkspace,
		Message: fmt.Sprintf("path %q is outside the workspace", path),
		Details: map[string]interface{}{"cause": ErrOutsideWorkspace.Error()},
	}
}
