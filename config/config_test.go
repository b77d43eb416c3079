package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nachoal/mini-agent-go/agent"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoadDefaults(t *testing.T) {
	ws := t.TempDir()
	home := t.TempDir()

	cfg, err := Load(Options{Workspace: ws, Home: home})
	require.NoError(t, err)

	assert.Equal(t, "minimax", cfg.LLM.Provider)
	assert.Equal(t, 10, cfg.Agent.MaxSteps)
	assert.Equal(t, agent.DefaultSystemPrompt, cfg.Agent.SystemPrompt)
	assert.Equal(t, agent.DefaultConfig().SystemPrompt, cfg.Agent.SystemPrompt)
	assert.True(t, cfg.Tools.EnableShell)
	assert.Equal(t, 1<<20, cfg.Tools.WebReadMaxBytes)
	assert.Empty(t, cfg.Path)
	assert.Equal(t, []string{
		filepath.Join(ws, ".mini-agent", "skills"),
		filepath.Join(home, ".mini-agent", "skills"),
	}, cfg.Skills.Roots)
}

func TestLoadWorkspaceFileShadowsHome(t *testing.T) {
	ws := t.TempDir()
	home := t.TempDir()
	writeFile(t, filepath.Join(home, ".mini-agent", "config.yaml"), "agent:\n  max_steps: 3\n")
	writeFile(t, filepath.Join(ws, ".mini-agent", "config.yaml"), "agent:\n  max_steps: 7\nllm:\n  provider: zai\n")

	cfg, err := Load(Options{Workspace: ws, Home: home})
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Agent.MaxSteps)
	assert.Equal(t, "zai", cfg.LLM.Provider)
	assert.Equal(t, filepath.Join(ws, ".mini-agent", "config.yaml"), cfg.Path)
}

func TestLoadExpandsEnvAndFlagsOverride(t *testing.T) {
	ws := t.TempDir()
	t.Setenv("MY_TEST_KEY", "sk-123")
	path := filepath.Join(ws, "custom.yaml")
	writeFile(t, path, "llm:\n  provider: openai\n  api_key: ${MY_TEST_KEY}\n  model: gpt-4o-mini\nskills:\n  roots: [\"my-skills\"]\n")

	cfg, err := Load(Options{Path: path, Workspace: ws, Home: t.TempDir(), Model: "gpt-4.1"})
	require.NoError(t, err)
	assert.Equal(t, "sk-123", cfg.LLM.APIKey)
	assert.Equal(t, "gpt-4.1", cfg.LLM.Model)
	assert.Equal(t, []string{filepath.Join(ws, "my-skills")}, cfg.Skills.Roots)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("MINI_AGENT_AGENT_MAX_STEPS", "4")
	cfg, err := Load(Options{Workspace: t.TempDir(), Home: t.TempDir()})
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Agent.MaxSteps)
}

func TestLoadErrorsAreConfigurationErrors(t *testing.T) {
	ws := t.TempDir()

	_, err := Load(Options{Path: filepath.Join(ws, "missing.yaml"), Workspace: ws, Home: t.TempDir()})
	var cfgErr *Error
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "configuration", cfgErr.Kind())

	bad := filepath.Join(ws, "bad.yaml")
	writeFile(t, bad, "agent:\n  max_steps: 0\n")
	_, err = Load(Options{Path: bad, Workspace: ws, Home: t.TempDir()})
	require.True(t, errors.As(err, &cfgErr))

	unknown := filepath.Join(ws, "unknown.yaml")
	writeFile(t, unknown, "llm:\n  provider: carrier-pigeon\n")
	_, err = Load(Options{Path: unknown, Workspace: ws, Home: t.TempDir()})
	require.True(t, errors.As(err, &cfgErr))
	assert.Contains(t, err.Error(), "carrier-pigeon")
}

func TestEndpointResolution(t *testing.T) {
	t.Setenv("MINIMAX_API_KEY", "mm-key")
	t.Setenv("MINIMAX_API_BASE", "")

	cfg := &Config{LLM: LLMConfig{Provider: "minimax"}}
	ep, err := cfg.Endpoint()
	require.NoError(t, err)
	assert.Equal(t, DialectAnthropic, ep.Dialect)
	assert.Equal(t, "https://api.minimax.io/anthropic", ep.BaseURL)
	assert.Equal(t, "mm-key", ep.APIKey)
	assert.Equal(t, "MiniMax-M2", ep.Model)

	cfg.LLM.APIKey = "explicit"
	cfg.LLM.APIBase = "http://localhost:9000"
	ep, err = cfg.Endpoint()
	require.NoError(t, err)
	assert.Equal(t, "explicit", ep.APIKey)
	assert.Equal(t, "http://localhost:9000", ep.BaseURL)
}

func TestEndpointMissingKey(t *testing.T) {
	t.Setenv("ZAI_API_KEY", "")
	cfg := &Config{LLM: LLMConfig{Provider: "zai"}}
	_, err := cfg.Endpoint()
	var cfgErr *Error
	assert.True(t, errors.As(err, &cfgErr))
}

func TestEndpointCompatibleNeedsBase(t *testing.T) {
	t.Setenv("OPENAI_BASE_URL", "")
	cfg := &Config{LLM: LLMConfig{Provider: "openai-compatible", APIKey: "k", Model: "m"}}
	_, err := cfg.Endpoint()
	assert.Error(t, err)
}
