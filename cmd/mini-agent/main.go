package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/nachoal/mini-agent-go/acp"
	"github.com/nachoal/mini-agent-go/agent"
	"github.com/nachoal/mini-agent-go/config"
	"github.com/nachoal/mini-agent-go/history"
	"github.com/nachoal/mini-agent-go/internal/toolinit"
	"github.com/nachoal/mini-agent-go/llm"
	"github.com/nachoal/mini-agent-go/llm/anthropic"
	"github.com/nachoal/mini-agent-go/llm/openai"
	"github.com/nachoal/mini-agent-go/skills"
	"github.com/nachoal/mini-agent-go/tools"
	"github.com/nachoal/mini-agent-go/tools/registry"
	"github.com/nachoal/mini-agent-go/tui"
)

var version = "dev"

var (
	// Flags
	workspace  string
	configPath string
	provider   string
	model      string
	verbose    bool
	plain      bool

	// Root command runs the interactive REPL
	rootCmd = &cobra.Command{
		Use:           "mini-agent",
		Short:         "Tool-using coding agent for a workspace directory",
		Long:          "Mini Agent - an LLM agent that reads, edits and runs code inside one workspace, with skills and an ACP server mode",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE:          runREPL,
	}

	acpCmd = &cobra.Command{
		Use:   "acp",
		Short: "Serve the agent client protocol on stdin/stdout",
		Args:  cobra.NoArgs,
		RunE:  runACP,
	}

	toolsCmd = &cobra.Command{
		Use:   "tools",
		Short: "Tool management commands",
	}

	listToolsCmd = &cobra.Command{
		Use:   "list",
		Short: "List enabled tools",
		Args:  cobra.NoArgs,
		RunE:  listTools,
	}

	skillsCmd = &cobra.Command{
		Use:   "skills",
		Short: "Skill management commands",
	}

	listSkillsCmd = &cobra.Command{
		Use:   "list",
		Short: "List discovered skills",
		Args:  cobra.NoArgs,
		RunE:  listSkills,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "Workspace directory the agent works in")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default <workspace>/.mini-agent/config.yaml, then ~/.mini-agent/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&provider, "provider", "", "LLM provider preset (e.g. openai, anthropic, minimax)")
	rootCmd.PersistentFlags().StringVar(&model, "model", "", "Model to use")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.Flags().BoolVar(&plain, "plain", false, "Use the line-oriented REPL even on a terminal")

	if err := rootCmd.MarkPersistentFlagRequired("workspace"); err != nil {
		panic(err)
	}

	rootCmd.AddCommand(acpCmd)
	rootCmd.AddCommand(toolsCmd)
	rootCmd.AddCommand(skillsCmd)
	toolsCmd.AddCommand(listToolsCmd)
	skillsCmd.AddCommand(listSkillsCmd)
}

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Warning: Error loading .env file: %v\n", err)
	}

	if err := rootCmd.Execute(); err != nil {
		os.Exit(exitCode(err))
	}
}

// exitCode maps an error to the process exit status and reports it
func exitCode(err error) int {
	if errors.Is(err, tui.ErrInterrupted) {
		return 130
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	var cfgErr *config.Error
	if errors.As(err, &cfgErr) {
		return 2
	}
	return 1
}

func debugEnabled() bool {
	return verbose || strings.EqualFold(os.Getenv("MINI_AGENT_DEBUG"), "true")
}

func newLogger(w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if debugEnabled() {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// traceLogger logs to ~/.mini-agent/traces when debugging the full-screen
// REPL, where stderr would corrupt the display
func traceLogger() (*slog.Logger, func()) {
	discard := slog.New(slog.NewTextHandler(io.Discard, nil))
	if !debugEnabled() {
		return discard, func() {}
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return discard, func() {}
	}
	dir := filepath.Join(home, ".mini-agent", "traces")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return discard, func() {}
	}
	path := filepath.Join(dir, fmt.Sprintf("trace_%s_%d.log", time.Now().Format("20060102_150405"), os.Getpid()))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return discard, func() {}
	}
	fmt.Fprintf(os.Stderr, "[Trace] Logging to %s\n", path)
	return newLogger(f), func() { _ = f.Close() }
}

func loadConfig() (*config.Config, error) {
	return config.Load(config.Options{
		Path:      configPath,
		Workspace: workspace,
		Model:     model,
		Provider:  provider,
	})
}

// app is everything needed to open sessions
type app struct {
	cfg      *config.Config
	endpoint *config.Endpoint
	client   llm.Client
	registry *registry.Registry
	skills   *skills.Index
	logger   *slog.Logger
}

func newApp(logger *slog.Logger) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	ep, err := cfg.Endpoint()
	if err != nil {
		return nil, err
	}
	logger.Debug("configuration loaded", "path", cfg.Path, "provider", ep.Provider, "model", ep.Model, "workspace", cfg.Workspace)

	client, err := createLLMClient(cfg, ep, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s client: %w", ep.Provider, err)
	}

	reg, err := toolinit.Build(cfg.Tools, logger)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}

	var idx *skills.Index
	if cfg.Tools.EnableSkills {
		idx, err = skills.Build(cfg.Skills.Roots, logger)
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to index skills: %w", err)
		}
	}

	return &app{cfg: cfg, endpoint: ep, client: client, registry: reg, skills: idx, logger: logger}, nil
}

func (r *app) Close() {
	r.client.Close()
}

// newSession opens a session rooted at root, or at the configured
// workspace when root is empty
func (r *app) newSession(root string) (*agent.Session, error) {
	if root == "" {
		root = r.cfg.Workspace
	}
	ws, err := tools.NewWorkspace(root)
	if err != nil {
		return nil, err
	}
	return agent.NewSession(r.client, r.registry, ws,
		agent.WithSystemPrompt(r.cfg.Agent.SystemPrompt),
		agent.WithMaxSteps(r.cfg.Agent.MaxSteps),
		agent.WithModel(r.endpoint.Model),
		agent.WithMaxTokens(r.cfg.LLM.MaxTokens),
		agent.WithTemperature(r.cfg.LLM.Temperature),
		agent.WithStream(r.cfg.LLM.Stream),
		agent.WithSkills(r.skills),
		agent.WithLogger(r.logger),
	), nil
}

func createLLMClient(cfg *config.Config, ep *config.Endpoint, logger *slog.Logger) (llm.Client, error) {
	opts := []llm.ClientOption{
		llm.WithAPIKey(ep.APIKey),
		llm.WithBaseURL(ep.BaseURL),
		llm.WithModel(ep.Model),
		llm.WithTimeout(cfg.LLM.Timeout()),
		llm.WithMaxAttempts(cfg.LLM.MaxRetries + 1),
		llm.WithLogger(logger),
	}

	switch ep.Dialect {
	case config.DialectAnthropic:
		client, err := anthropic.NewClient(opts...)
		if err != nil {
			return nil, err
		}
		return client, nil
	case config.DialectOpenAI:
		client, err := openai.NewClient(opts...)
		if err != nil {
			return nil, err
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unknown dialect: %s", ep.Dialect)
	}
}

func runREPL(cmd *cobra.Command, args []string) error {
	interactive := !plain && term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))

	logger := newLogger(os.Stderr)
	closeLog := func() {}
	if interactive {
		logger, closeLog = traceLogger()
	}
	defer closeLog()

	rt, err := newApp(logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	session, err := rt.newSession("")
	if err != nil {
		return err
	}
	defer session.Close()

	opts := tui.Options{
		Provider: rt.endpoint.Provider,
		Model:    rt.endpoint.Model,
		History:  history.NewManager(session.Workspace().Root()),
	}

	ctx := context.Background()
	if interactive {
		return tui.Run(ctx, session, opts)
	}

	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, os.Interrupt)
	defer signal.Stop(interrupts)
	opts.Interrupts = interrupts

	return tui.NewPlain(session, os.Stdin, os.Stdout, opts).Run(ctx)
}

func runACP(cmd *cobra.Command, args []string) error {
	// stdout carries the protocol
	logger := newLogger(os.Stderr)

	rt, err := newApp(logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := acp.NewServer(func(_ context.Context, root string) (*agent.Session, error) {
		return rt.newSession(root)
	}, os.Stdout, acp.WithLogger(logger), acp.WithAgentInfo("mini-agent", version))

	logger.Info("acp server started", "workspace", rt.cfg.Workspace, "provider", rt.endpoint.Provider, "model", rt.endpoint.Model)

	done := make(chan error, 1)
	go func() {
		done <- server.Serve(ctx, os.Stdin)
	}()

	return waitForServe(ctx, stop, done, shutdownGrace, logger)
}

// shutdownGrace bounds how long a signalled acp server may spend
// cancelling turns and killing their process groups
const shutdownGrace = 10 * time.Second

// waitForServe returns the result of Serve. Once ctx is cancelled by a
// signal it waits up to grace for Serve to shut its sessions down. stop
// restores default signal handling, so a second signal ends the process
// at once.
func waitForServe(ctx context.Context, stop func(), done <-chan error, grace time.Duration, logger *slog.Logger) error {
	select {
	case err := <-done:
		if ctx.Err() != nil {
			return tui.ErrInterrupted
		}
		return err
	case <-ctx.Done():
	}

	stop()
	logger.Info("shutting down acp server")
	select {
	case <-done:
	case <-time.After(grace):
		logger.Warn("acp server did not stop in time", "grace", grace)
	}
	return tui.ErrInterrupted
}

func listTools(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	reg, err := toolinit.Build(cfg.Tools, newLogger(os.Stderr))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	list := reg.List()
	if len(list) == 0 {
		fmt.Fprintln(out, "No tools are enabled.")
		return nil
	}

	fmt.Fprintln(out, "Available tools:")
	for _, t := range list {
		flags := string(t.Category())
		if t.ReadOnly() {
			flags += ", read-only"
		}
		fmt.Fprintf(out, "  %-15s %s [%s]\n", t.Name(), t.Description(), flags)
	}
	return nil
}

func listSkills(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	idx, err := skills.Build(cfg.Skills.Roots, newLogger(os.Stderr))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	list := idx.List()
	if len(list) == 0 {
		fmt.Fprintf(out, "No skills found in %s\n", strings.Join(cfg.Skills.Roots, ", "))
		return nil
	}

	fmt.Fprintln(out, "Skills:")
	for _, m := range list {
		fmt.Fprintf(out, "  %-20s %s\n", m.Name, m.Description)
	}
	return nil
}
