package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/nachoal/mini-agent-go/agent"
)

// Error is a configuration failure. The CLI maps it to exit code 2.
type Error struct {
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("configuration error (%s): %v", e.Path, e.Err)
	}
	return fmt.Sprintf("configuration error: %v", e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Kind identifies the error category for callers that report it
func (e *Error) Kind() string {
	return "configuration"
}

func configErr(path, format string, args ...interface{}) *Error {
	return &Error{Path: path, Err: fmt.Errorf(format, args...)}
}

// Config represents the application configuration
type Config struct {
	LLM    LLMConfig    `mapstructure:"llm"`
	Agent  AgentConfig  `mapstructure:"agent"`
	Tools  ToolsConfig  `mapstructure:"tools"`
	Skills SkillsConfig `mapstructure:"skills"`

	// Path is the file the configuration was read from, if any
	Path string `mapstructure:"-"`
	// Workspace is the absolute workspace root
	Workspace string `mapstructure:"-"`
}

// LLMConfig selects and tunes the model provider
type LLMConfig struct {
	Provider       string  `mapstructure:"provider"`
	APIBase        string  `mapstructure:"api_base"`
	Model          string  `mapstructure:"model"`
	APIKey         string  `mapstructure:"api_key"`
	MaxTokens      int     `mapstructure:"max_tokens"`
	Temperature    float64 `mapstructure:"temperature"`
	Stream         bool    `mapstructure:"stream"`
	MaxRetries     int     `mapstructure:"max_retries"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
}

// Timeout returns the per-request timeout
func (c LLMConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// AgentConfig bounds the agent loop
type AgentConfig struct {
	MaxSteps     int    `mapstructure:"max_steps"`
	SystemPrompt string `mapstructure:"system_prompt"`
}

// ToolsConfig enables tool groups
type ToolsConfig struct {
	EnableFileTools     bool     `mapstructure:"enable_file_tools"`
	EnableShell         bool     `mapstructure:"enable_shell"`
	EnableWebSearch     bool     `mapstructure:"enable_web_search"`
	EnableWebRead       bool     `mapstructure:"enable_web_read"`
	EnableSkills        bool     `mapstructure:"enable_skills"`
	WebSearchProvider   string   `mapstructure:"web_search_provider"`
	WebReadMaxBytes     int      `mapstructure:"web_read_max_bytes"`
	ShellEnvPassthrough []string `mapstructure:"shell_env_passthrough"`
	ZAIAPIKey           string   `mapstructure:"zai_api_key"`
	GoogleAPIKey        string   `mapstructure:"google_api_key"`
	GoogleCX            string   `mapstructure:"google_cx"`
}

// SkillsConfig lists skill roots; earlier roots shadow later ones
type SkillsConfig struct {
	Roots []string `mapstructure:"roots"`
}

// Options controls where configuration is loaded from. Model and Provider
// come from command line flags and override the file.
type Options struct {
	Path      string
	Workspace string
	Model     string
	Provider  string
	// Home overrides the user's home directory
	Home string
}

const (
	envPrefix  = "MINI_AGENT"
	dirName    = ".mini-agent"
	configFile = "config.yaml"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("llm.provider", "minimax")
	v.SetDefault("llm.api_base", "")
	v.SetDefault("llm.model", "")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.max_tokens", 16384)
	v.SetDefault("llm.temperature", 0.0)
	v.SetDefault("llm.stream", true)
	v.SetDefault("llm.max_retries", 2)
	v.SetDefault("llm.timeout_seconds", 300)

	v.SetDefault("agent.max_steps", 10)
	v.SetDefault("agent.system_prompt", agent.DefaultSystemPrompt)

	v.SetDefault("tools.enable_file_tools", true)
	v.SetDefault("tools.enable_shell", true)
	v.SetDefault("tools.enable_web_search", true)
	v.SetDefault("tools.enable_web_read", true)
	v.SetDefault("tools.enable_skills", true)
	v.SetDefault("tools.web_search_provider", "zai")
	v.SetDefault("tools.web_read_max_bytes", 1<<20)
	v.SetDefault("tools.shell_env_passthrough", []string{})
	v.SetDefault("tools.zai_api_key", "${ZAI_API_KEY}")
	v.SetDefault("tools.google_api_key", "${GOOGLE_API_KEY}")
	v.SetDefault("tools.google_cx", "${GOOGLE_CX}")

	v.SetDefault("skills.roots", []string{filepath.Join(dirName, "skills"), filepath.Join("~", dirName, "skills")})
}

// Load reads configuration from the first file found in the search order
// (explicit path, <workspace>/.mini-agent/config.yaml, ~/.mini-agent/config.yaml),
// applies MINI_AGENT_* environment overrides and flag overrides, and validates.
func Load(opts Options) (*Config, error) {
	home := opts.Home
	if home == "" {
		home, _ = os.UserHomeDir()
	}

	workspace := opts.Workspace
	if workspace == "" {
		workspace = "."
	}
	absWorkspace, err := filepath.Abs(workspace)
	if err != nil {
		return nil, configErr("", "resolve workspace: %w", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	path, err := findConfigFile(opts.Path, absWorkspace, home)
	if err != nil {
		return nil, err
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, &Error{Path: path, Err: err}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, &Error{Path: path, Err: err}
	}
	cfg.Path = path
	cfg.Workspace = absWorkspace

	if opts.Model != "" {
		cfg.LLM.Model = opts.Model
	}
	if opts.Provider != "" {
		cfg.LLM.Provider = opts.Provider
	}

	cfg.expand()
	cfg.Skills.Roots = resolveRoots(cfg.Skills.Roots, absWorkspace, home)

	if err := cfg.Validate(); err != nil {
		return nil, &Error{Path: path, Err: err}
	}
	return &cfg, nil
}

func findConfigFile(explicit, workspace, home string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", configErr(explicit, "config file not readable: %w", err)
		}
		return explicit, nil
	}

	candidates := []string{filepath.Join(workspace, dirName, configFile)}
	if home != "" {
		candidates = append(candidates, filepath.Join(home, dirName, configFile))
	}
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && !info.IsDir() {
			return c, nil
		}
	}
	return "", nil
}

// Validate checks value ranges
func (c *Config) Validate() error {
	var errs []error
	if c.Agent.MaxSteps < 1 {
		errs = append(errs, fmt.Errorf("agent.max_steps must be at least 1, got %d", c.Agent.MaxSteps))
	}
	if c.LLM.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("llm.max_retries must not be negative"))
	}
	if c.LLM.TimeoutSeconds < 1 {
		errs = append(errs, fmt.Errorf("llm.timeout_seconds must be at least 1"))
	}
	if c.Tools.WebReadMaxBytes < 1 {
		errs = append(errs, fmt.Errorf("tools.web_read_max_bytes must be positive"))
	}
	switch c.Tools.WebSearchProvider {
	case "zai", "google":
	default:
		errs = append(errs, fmt.Errorf("tools.web_search_provider must be zai or google, got %q", c.Tools.WebSearchProvider))
	}
	if _, ok := LookupPreset(c.LLM.Provider); !ok {
		errs = append(errs, fmt.Errorf("unknown llm.provider %q (known: %s)", c.LLM.Provider, strings.Join(PresetNames(), ", ")))
	}
	return errors.Join(errs...)
}

var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// ExpandEnv replaces ${NAME} references with environment values
func ExpandEnv(s string) string {
	return envRef.ReplaceAllStringFunc(s, func(m string) string {
		return os.Getenv(m[2 : len(m)-1])
	})
}

func (c *Config) expand() {
	c.LLM.Provider = strings.ToLower(strings.TrimSpace(ExpandEnv(c.LLM.Provider)))
	c.LLM.APIBase = ExpandEnv(c.LLM.APIBase)
	c.LLM.Model = ExpandEnv(c.LLM.Model)
	c.LLM.APIKey = ExpandEnv(c.LLM.APIKey)
	c.Agent.SystemPrompt = ExpandEnv(c.Agent.SystemPrompt)
	c.Tools.WebSearchProvider = strings.ToLower(ExpandEnv(c.Tools.WebSearchProvider))
	c.Tools.ZAIAPIKey = ExpandEnv(c.Tools.ZAIAPIKey)
	c.Tools.GoogleAPIKey = ExpandEnv(c.Tools.GoogleAPIKey)
	c.Tools.GoogleCX = ExpandEnv(c.Tools.GoogleCX)
	for i, r := range c.Skills.Roots {
		c.Skills.Roots[i] = ExpandEnv(r)
	}
}

func resolveRoots(roots []string, workspace, home string) []string {
	out := make([]string, 0, len(roots))
	seen := make(map[string]bool)
	for _, r := range roots {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		if r == "~" || strings.HasPrefix(r, "~/") {
			if home == "" {
				continue
			}
			r = filepath.Join(home, strings.TrimPrefix(r, "~"))
		} else if !filepath.IsAbs(r) {
			r = filepath.Join(workspace, r)
		}
		r = filepath.Clean(r)
		if !seen[r] {
			seen[r] = true
			out = append(out, r)
		}
	}
	return out
}
