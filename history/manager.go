package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nachoal/mini-agent-go/llm"
)

// DirName is the transcript directory relative to the workspace
const DirName = ".mini-agent/sessions"

// Manager stores conversation transcripts as JSON files
type Manager struct {
	dir       string
	indexPath string
	mu        sync.RWMutex
}

// NewManager creates a manager writing under <workspace>/.mini-agent/sessions
func NewManager(workspace string) *Manager {
	dir := filepath.Join(workspace, filepath.FromSlash(DirName))
	return &Manager{
		dir:       dir,
		indexPath: filepath.Join(dir, "index.json"),
	}
}

// Dir returns the transcript directory
func (m *Manager) Dir() string {
	return m.dir
}

// New prepares a transcript for a session's messages
func New(sessionID, workspace string, msgs []llm.Message) *Transcript {
	return &Transcript{
		ID:        fmt.Sprintf("%s_%s", time.Now().Format("20060102_150405"), strings.ReplaceAll(uuid.NewString(), "-", "")[:6]),
		Version:   Version,
		SessionID: sessionID,
		CreatedAt: time.Now(),
		Workspace: workspace,
		Messages:  FromLLMMessages(msgs),
	}
}

// Save writes a transcript and returns its path
func (m *Manager) Save(t *Transcript) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create sessions directory: %w", err)
	}

	t.SavedAt = time.Now()
	if t.Title == "" {
		t.Title = title(t)
	}

	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal transcript: %w", err)
	}
	path := filepath.Join(m.dir, t.ID+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write transcript: %w", err)
	}

	index, err := m.loadIndex()
	if err != nil {
		return "", fmt.Errorf("failed to load index: %w", err)
	}
	index.Last = t.ID
	ids := index.Sessions[t.SessionID]
	if len(ids) == 0 || ids[len(ids)-1] != t.ID {
		index.Sessions[t.SessionID] = append(ids, t.ID)
	}
	if err := m.saveIndex(index); err != nil {
		return "", fmt.Errorf("failed to save index: %w", err)
	}
	return path, nil
}

// Load reads a transcript by id
func (m *Manager) Load(id string) (*Transcript, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, err := os.ReadFile(filepath.Join(m.dir, id+".json"))
	if err != nil {
		return nil, fmt.Errorf("failed to read transcript: %w", err)
	}
	var t Transcript
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to unmarshal transcript: %w", err)
	}
	return &t, nil
}

// Last returns the most recently saved transcript
func (m *Manager) Last() (*Transcript, error) {
	m.mu.RLock()
	index, err := m.loadIndex()
	m.mu.RUnlock()
	if err != nil {
		return nil, fmt.Errorf("failed to load index: %w", err)
	}
	if index.Last == "" {
		return nil, fmt.Errorf("no saved transcripts in %s", m.dir)
	}
	return m.Load(index.Last)
}

// List returns summaries of every saved transcript, newest first
func (m *Manager) List() ([]Info, error) {
	m.mu.RLock()
	index, err := m.loadIndex()
	m.mu.RUnlock()
	if err != nil {
		return nil, fmt.Errorf("failed to load index: %w", err)
	}

	var out []Info
	for _, ids := range index.Sessions {
		for _, id := range ids {
			t, err := m.Load(id)
			if err != nil {
				continue
			}
			out = append(out, Info{
				ID:       t.ID,
				Title:    t.Title,
				SavedAt:  t.SavedAt,
				Messages: len(t.Messages),
				Model:    t.Model,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].SavedAt.After(out[j].SavedAt)
	})
	return out, nil
}

// FromLLMMessages converts conversation messages to their stored form
func FromLLMMessages(msgs []llm.Message) []Message {
	out := make([]Message, len(msgs))
	for i, msg := range msgs {
		out[i] = Message{
			Role:       string(msg.Role),
			Content:    msg.Content,
			Thinking:   msg.Thinking,
			ToolCallID: msg.ToolCallID,
			Name:       msg.Name,
			Hidden:     msg.Hidden,
		}
		for _, tc := range msg.ToolCalls {
			out[i].ToolCalls = append(out[i].ToolCalls, ToolCall{
				ID:        tc.ID,
				Name:      tc.Name,
				Arguments: tc.Clone().Arguments,
			})
		}
	}
	return out
}

// ToLLMMessages converts stored messages back to conversation messages
func ToLLMMessages(msgs []Message) []llm.Message {
	out := make([]llm.Message, len(msgs))
	for i, msg := range msgs {
		out[i] = llm.Message{
			Role:       llm.Role(msg.Role),
			Content:    msg.Content,
			Thinking:   msg.Thinking,
			ToolCallID: msg.ToolCallID,
			Name:       msg.Name,
			Hidden:     msg.Hidden,
		}
		for _, tc := range msg.ToolCalls {
			out[i].ToolCalls = append(out[i].ToolCalls, llm.ToolCall{ID: tc.ID, Name: tc.Name, Arguments: tc.Arguments})
		}
	}
	return out
}

func (m *Manager) loadIndex() (*Index, error) {
	index := &Index{Version: Version, Sessions: make(map[string][]string)}
	data, err := os.ReadFile(m.indexPath)
	if errors.Is(err, fs.ErrNotExist) {
		return index, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, index); err != nil {
		return nil, err
	}
	if index.Sessions == nil {
		index.Sessions = make(map[string][]string)
	}
	return index, nil
}

func (m *Manager) saveIndex(index *Index) error {
	data, err := json.MarshalIndent(index, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(m.indexPath, data, 0o644)
}

func title(t *Transcript) string {
	for _, msg := range t.Messages {
		if msg.Role == string(llm.RoleUser) && !msg.Hidden && msg.Content != "" {
			content := msg.Content
			if idx := strings.IndexByte(content, '\n'); idx != -1 {
				content = content[:idx]
			}
			if r := []rune(content); len(r) > 50 {
				content = string(r[:47]) + "..."
			}
			return content
		}
	}
	return fmt.Sprintf("Session %s", t.CreatedAt.Format("Jan 02 15:04"))
}
