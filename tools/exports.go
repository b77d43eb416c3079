package tools

import (
	"github.com/nachoal/mini-agent-go/tools/base"
)

// Tool constructors live here so the registry and toolinit packages can
// build tools without reaching into their structs

// NewFileReadTool creates file.read
func NewFileReadTool() Tool {
	return &FileReadTool{
		BaseTool: base.BaseTool{
			ToolName:     "file.read",
			ToolDesc:     "Read a file in the workspace. Text is returned as UTF-8, binary content as base64.",
			ToolCategory: base.CategoryFile,
			IsReadOnly:   true,
		},
	}
}

// NewFileWriteTool creates file.write
func NewFileWriteTool() Tool {
	return &FileWriteTool{
		BaseTool: base.BaseTool{
			ToolName:     "file.write",
			ToolDesc:     "Write a file in the workspace atomically. Modes: create (fails if the file exists), overwrite, append.",
			ToolCategory: base.CategoryFile,
		},
	}
}

// NewFileEditTool creates file.edit
func NewFileEditTool() Tool {
	return &FileEditTool{
		BaseTool: base.BaseTool{
			ToolName:     "file.edit",
			ToolDesc:     "Replace exact text in a workspace file. Fails with not_found when the text is absent.",
			ToolCategory: base.CategoryFile,
		},
	}
}

// NewFileListTool creates file.list
func NewFileListTool() Tool {
	return &FileListTool{
		BaseTool: base.BaseTool{
			ToolName:     "file.list",
			ToolDesc:     "List files and directories in the workspace, skipping .git and .gitignore matches.",
			ToolCategory: base.CategoryFile,
			IsReadOnly:   true,
		},
	}
}

// NewShellTool creates shell.exec. passthrough names extra environment
// variables the child may inherit.
func NewShellTool(passthrough []string) Tool {
	return &ShellTool{
		BaseTool: base.BaseTool{
			ToolName:     "shell.exec",
			ToolDesc:     "Run a command through the platform shell in the workspace. Returns stdout, stderr, exit_code and duration_ms.",
			ToolCategory: base.CategoryShell,
		},
		executor:    NewExecutor(),
		passthrough: passthrough,
		maxOutput:   DefaultMaxOutputBytes,
	}
}

// NewWebSearchTool creates web.search backed by provider
func NewWebSearchTool(provider SearchProvider) Tool {
	return &WebSearchTool{
		BaseTool: base.BaseTool{
			ToolName:     "web.search",
			ToolDesc:     "Search the web. Returns an ordered list of {title, url, snippet, published_at}.",
			ToolCategory: base.CategoryWeb,
			IsReadOnly:   true,
		},
		provider: provider,
	}
}

// NewWebReadTool creates web.read; maxBytes caps the extracted text
func NewWebReadTool(maxBytes int) Tool {
	if maxBytes <= 0 {
		maxBytes = DefaultWebReadMaxBytes
	}
	return &WebReadTool{
		BaseTool: base.BaseTool{
			ToolName:     "web.read",
			ToolDesc:     "Fetch an http(s) URL and return its content as markdown or plain text.",
			ToolCategory: base.CategoryWeb,
			IsReadOnly:   true,
		},
		client:   newWebClient(),
		maxBytes: maxBytes,
	}
}

// NewSkillsListTool creates skills.list
func NewSkillsListTool() Tool {
	return &SkillsListTool{
		BaseTool: base.BaseTool{
			ToolName:     "skills.list",
			ToolDesc:     "List available skills with their name, description and tags.",
			ToolCategory: base.CategorySkills,
			IsReadOnly:   true,
		},
	}
}

// NewSkillsGetTool creates skills.get
func NewSkillsGetTool() Tool {
	return &SkillsGetTool{
		BaseTool: base.BaseTool{
			ToolName:     "skills.get",
			ToolDesc:     "Load the full instructions of a skill.",
			ToolCategory: base.CategorySkills,
			IsReadOnly:   true,
		},
	}
}

// NewSkillsExecuteTool creates skills.execute
func NewSkillsExecuteTool(passthrough []string) Tool {
	return &SkillsExecuteTool{
		BaseTool: base.BaseTool{
			ToolName:     "skills.execute",
			ToolDesc:     "Run a skill script (scripts/<mode>) with JSON inputs. Read the skill with skills.get first.",
			ToolCategory: base.CategorySkills,
		},
		executor:    NewExecutor(),
		passthrough: passthrough,
	}
}
