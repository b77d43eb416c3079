// Package toolinit assembles the tool registry from configuration
package toolinit

import (
	"io"
	"log/slog"

	"github.com/nachoal/mini-agent-go/config"
	"github.com/nachoal/mini-agent-go/tools"
	"github.com/nachoal/mini-agent-go/tools/registry"
)

// Build registers the built-in tools enabled in cfg
func Build(cfg config.ToolsConfig, logger *slog.Logger) (*registry.Registry, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	reg := registry.New(registry.WithLogger(logger))

	var toolset []tools.Tool

	// File operations
	if cfg.EnableFileTools {
		toolset = append(toolset,
			tools.NewFileReadTool(),
			tools.NewFileWriteTool(),
			tools.NewFileEditTool(),
			tools.NewFileListTool(),
		)
	}

	if cfg.EnableShell {
		toolset = append(toolset, tools.NewShellTool(cfg.ShellEnvPassthrough))
	}

	// Web tools
	if cfg.EnableWebSearch {
		toolset = append(toolset, tools.NewWebSearchTool(searchProvider(cfg)))
	}
	if cfg.EnableWebRead {
		toolset = append(toolset, tools.NewWebReadTool(cfg.WebReadMaxBytes))
	}

	if cfg.EnableSkills {
		toolset = append(toolset,
			tools.NewSkillsListTool(),
			tools.NewSkillsGetTool(),
			tools.NewSkillsExecuteTool(cfg.ShellEnvPassthrough),
		)
	}

	for _, t := range toolset {
		if err := reg.Register(t); err != nil {
			return nil, err
		}
	}
	logger.Debug("tools registered", "count", reg.Len())
	return reg, nil
}

func searchProvider(cfg config.ToolsConfig) tools.SearchProvider {
	if cfg.WebSearchProvider == "google" {
		return tools.NewGoogleSearch(cfg.GoogleAPIKey, cfg.GoogleCX, "")
	}
	return tools.NewZAISearch(cfg.ZAIAPIKey, "")
}
