package config

import (
	"fmt"
	"os"
	"sort"
)

// Dialect is the wire protocol a provider speaks
type Dialect string

const (
	DialectOpenAI    Dialect = "openai"
	DialectAnthropic Dialect = "anthropic"
)

// Preset describes a known provider
type Preset struct {
	Name         string
	Dialect      Dialect
	BaseURL      string
	KeyEnv       []string
	BaseEnv      string
	DefaultModel string
}

var presets = map[string]Preset{
	"openai-compatible": {
		Name:    "openai-compatible",
		Dialect: DialectOpenAI,
		KeyEnv:  []string{"OPENAI_API_KEY"},
		BaseEnv: "OPENAI_BASE_URL",
	},
	"anthropic-compatible": {
		Name:    "anthropic-compatible",
		Dialect: DialectAnthropic,
		KeyEnv:  []string{"ANTHROPIC_AUTH_TOKEN", "ANTHROPIC_API_KEY"},
		BaseEnv: "ANTHROPIC_BASE_URL",
	},
	"openai": {
		Name:         "openai",
		Dialect:      DialectOpenAI,
		BaseURL:      "https://api.openai.com/v1",
		KeyEnv:       []string{"OPENAI_API_KEY"},
		BaseEnv:      "OPENAI_BASE_URL",
		DefaultModel: "gpt-4o",
	},
	"anthropic": {
		Name:         "anthropic",
		Dialect:      DialectAnthropic,
		BaseURL:      "https://api.anthropic.com",
		KeyEnv:       []string{"ANTHROPIC_AUTH_TOKEN", "ANTHROPIC_API_KEY"},
		BaseEnv:      "ANTHROPIC_BASE_URL",
		DefaultModel: "claude-sonnet-4-20250514",
	},
	"minimax": {
		Name:         "minimax",
		Dialect:      DialectAnthropic,
		BaseURL:      "https://api.minimax.io/anthropic",
		KeyEnv:       []string{"MINIMAX_API_KEY"},
		BaseEnv:      "MINIMAX_API_BASE",
		DefaultModel: "MiniMax-M2",
	},
	"zai": {
		Name:         "zai",
		Dialect:      DialectOpenAI,
		BaseURL:      "https://api.z.ai/api/paas/v4",
		KeyEnv:       []string{"ZAI_API_KEY"},
		BaseEnv:      "ZAI_API_BASE",
		DefaultModel: "glm-4.6",
	},
}

// LookupPreset returns the preset for a provider name
func LookupPreset(name string) (Preset, bool) {
	p, ok := presets[name]
	return p, ok
}

// PresetNames lists the known provider names
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for n := range presets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Endpoint is a fully resolved provider connection
type Endpoint struct {
	Provider string
	Dialect  Dialect
	BaseURL  string
	APIKey   string
	Model    string
}

// Endpoint resolves credentials and base URL. Explicit configuration wins
// over the provider's environment variables, which win over preset defaults.
func (c *Config) Endpoint() (*Endpoint, error) {
	preset, ok := LookupPreset(c.LLM.Provider)
	if !ok {
		return nil, configErr(c.Path, "unknown llm.provider %q", c.LLM.Provider)
	}

	ep := &Endpoint{
		Provider: preset.Name,
		Dialect:  preset.Dialect,
		BaseURL:  c.LLM.APIBase,
		APIKey:   c.LLM.APIKey,
		Model:    c.LLM.Model,
	}

	if ep.BaseURL == "" && preset.BaseEnv != "" {
		ep.BaseURL = os.Getenv(preset.BaseEnv)
	}
	if ep.BaseURL == "" {
		ep.BaseURL = preset.BaseURL
	}
	if ep.BaseURL == "" {
		return nil, configErr(c.Path, "llm.api_base is required for provider %q", preset.Name)
	}

	if ep.APIKey == "" {
		for _, env := range preset.KeyEnv {
			if v := os.Getenv(env); v != "" {
				ep.APIKey = v
				break
			}
		}
	}
	if ep.APIKey == "" {
		return nil, &Error{Path: c.Path, Err: fmt.Errorf("no API key for provider %q: set llm.api_key or %v", preset.Name, preset.KeyEnv)}
	}

	if ep.Model == "" {
		ep.Model = preset.DefaultModel
	}
	if ep.Model == "" {
		return nil, configErr(c.Path, "llm.model is required for provider %q", preset.Name)
	}

	return ep, nil
}
