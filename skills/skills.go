// Package skills discovers user-authored skills on disk and serves them
// with progressive disclosure: metadata at index build, the instruction
// document on first use, and the resource tree only at execution time.
package skills

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// DocumentFile is the file that marks a directory as a skill
const DocumentFile = "SKILL.md"

// ErrNotFound is returned for unknown skill names
var ErrNotFound = errors.New("skill not found")

var slugPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// ValidName reports whether name is a valid skill slug
func ValidName(name string) bool {
	return slugPattern.MatchString(name)
}

// Metadata is the Level 1 view of a skill
type Metadata struct {
	Name        string   `yaml:"name" json:"name"`
	Description string   `yaml:"description" json:"description"`
	Tags        []string `yaml:"tags,omitempty" json:"tags,omitempty"`
	// Entrypoint is the script run for mode "default", relative to scripts/
	Entrypoint string `yaml:"entrypoint,omitempty" json:"-"`
}

// Document is the Level 2 view of a skill
type Document struct {
	Metadata
	Body string `json:"body"`
	Path string `json:"-"`
}

// Resources is the Level 3 view of a skill. Scripts and Assets are empty
// when the skill has no such directory.
type Resources struct {
	Root    string
	Scripts string
	Assets  string
}

type skill struct {
	meta Metadata
	dir  string
	root string
}

// Index is the read-only skill catalog built from one or more roots
type Index struct {
	byName map[string]*skill
	names  []string
	logger *slog.Logger
}

// Build scans each root's immediate subdirectories. Earlier roots shadow
// later ones by name. Two skills with the same name in one root fail the
// build; everything else that is wrong with a skill is logged and the
// skill is skipped.
func Build(roots []string, logger *slog.Logger) (*Index, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	idx := &Index{byName: make(map[string]*skill), logger: logger}

	for _, root := range roots {
		found, err := scanRoot(root, logger)
		if err != nil {
			return nil, err
		}
		for _, s := range found {
			if prev, ok := idx.byName[s.meta.Name]; ok {
				logger.Debug("skill shadowed", "name", s.meta.Name, "kept", prev.dir, "shadowed", s.dir)
				continue
			}
			idx.byName[s.meta.Name] = s
			idx.names = append(idx.names, s.meta.Name)
		}
	}
	sort.Strings(idx.names)
	return idx, nil
}

func scanRoot(root string, logger *slog.Logger) ([]*skill, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Debug("skills root missing", "root", root)
		} else {
			logger.Warn("skills root unreadable", "root", root, "error", err)
		}
		return nil, nil
	}

	var found []*skill
	seen := make(map[string]string)
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		dir := filepath.Join(root, entry.Name())
		docPath := filepath.Join(dir, DocumentFile)
		if _, err := os.Stat(docPath); err != nil {
			continue
		}

		meta, err := readMetadata(docPath)
		if err != nil {
			logger.Warn("skipping skill", "dir", dir, "error", err)
			continue
		}
		if other, dup := seen[meta.Name]; dup {
			return nil, fmt.Errorf("duplicate skill name %q in %s (%s and %s)", meta.Name, root, other, entry.Name())
		}
		seen[meta.Name] = entry.Name()
		found = append(found, &skill{meta: meta, dir: dir, root: root})
	}
	return found, nil
}

// readMetadata parses only the front-matter block
func readMetadata(path string) (Metadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return Metadata{}, err
	}
	defer f.Close()

	var block bytes.Buffer
	scanner := bufio.NewScanner(f)
	inBlock := false
	closed := false
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if !inBlock {
			if strings.TrimSpace(line) == "" {
				continue
			}
			if line != "---" {
				return Metadata{}, errors.New("missing front-matter")
			}
			inBlock = true
			continue
		}
		if line == "---" {
			closed = true
			break
		}
		block.WriteString(line)
		block.WriteByte('\n')
	}
	if err := scanner.Err(); err != nil {
		return Metadata{}, err
	}
	if !closed {
		return Metadata{}, errors.New("unterminated front-matter")
	}
	return parseMetadata(block.Bytes())
}

func parseMetadata(data []byte) (Metadata, error) {
	var meta Metadata
	if err := yaml.Unmarshal(data, &meta); err != nil {
		return Metadata{}, fmt.Errorf("malformed front-matter: %w", err)
	}
	meta.Name = strings.TrimSpace(meta.Name)
	meta.Description = strings.TrimSpace(meta.Description)
	if meta.Name == "" || meta.Description == "" {
		return Metadata{}, errors.New("front-matter needs name and description")
	}
	if !ValidName(meta.Name) {
		return Metadata{}, fmt.Errorf("invalid skill name %q", meta.Name)
	}
	return meta, nil
}

// splitDocument separates the front-matter from the body
func splitDocument(content string) (front, body string, err error) {
	lines := strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n")
	start := 0
	for start < len(lines) && strings.TrimSpace(lines[start]) == "" {
		start++
	}
	if start == len(lines) || lines[start] != "---" {
		return "", "", errors.New("missing front-matter")
	}
	for end := start + 1; end < len(lines); end++ {
		if lines[end] == "---" {
			front = strings.Join(lines[start+1:end], "\n")
			body = strings.Join(lines[end+1:], "\n")
			return front, strings.TrimSpace(body), nil
		}
	}
	return "", "", errors.New("unterminated front-matter")
}

// List returns Level 1 metadata for every skill, sorted by name
func (i *Index) List() []Metadata {
	if i == nil {
		return []Metadata{}
	}
	out := make([]Metadata, 0, len(i.names))
	for _, name := range i.names {
		out = append(out, i.byName[name].meta)
	}
	return out
}

// Len returns the number of indexed skills
func (i *Index) Len() int {
	if i == nil {
		return 0
	}
	return len(i.names)
}

// Lookup returns a skill's metadata
func (i *Index) Lookup(name string) (Metadata, bool) {
	if i == nil {
		return Metadata{}, false
	}
	s, ok := i.byName[name]
	if !ok {
		return Metadata{}, false
	}
	return s.meta, true
}

// Document reads the Level 2 instruction document from disk
func (i *Index) Document(name string) (*Document, error) {
	s, err := i.get(name)
	if err != nil {
		return nil, err
	}
	path := filepath.Join(s.dir, DocumentFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read skill %q: %w", name, err)
	}
	_, body, err := splitDocument(string(data))
	if err != nil {
		return nil, fmt.Errorf("skill %q: %w", name, err)
	}
	return &Document{Metadata: s.meta, Body: body, Path: path}, nil
}

// Resources exposes the Level 3 resource roots. Nothing under them is read.
func (i *Index) Resources(name string) (*Resources, error) {
	s, err := i.get(name)
	if err != nil {
		return nil, err
	}
	res := &Resources{Root: s.dir}
	if isDir(filepath.Join(s.dir, "scripts")) {
		res.Scripts = filepath.Join(s.dir, "scripts")
	}
	if isDir(filepath.Join(s.dir, "resources")) {
		res.Assets = filepath.Join(s.dir, "resources")
	}
	return res, nil
}

// Preamble summarises the skills for the system prompt
func (i *Index) Preamble() string {
	if i.Len() == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Available skills (call skills.get for instructions, skills.execute to run):\n")
	for _, m := range i.List() {
		fmt.Fprintf(&b, "- %s: %s", m.Name, m.Description)
		if len(m.Tags) > 0 {
			fmt.Fprintf(&b, " [%s]", strings.Join(m.Tags, ", "))
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func (i *Index) get(name string) (*skill, error) {
	if i != nil {
		if s, ok := i.byName[name]; ok {
			return s, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
