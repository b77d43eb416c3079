package base

// Category groups tools for timeouts and permission overrides
type Category string

const (
	CategoryFile   Category = "file"
	CategoryShell  Category = "shell"
	CategoryWeb    Category = "web"
	CategorySkills Category = "skills"
)

// BaseTool provides common functionality for tools
type BaseTool struct {
	ToolName     string
	ToolDesc     string
	ToolCategory Category
	// Mutating tools leave this false
	IsReadOnly bool
}

// Name returns the tool name
func (b *BaseTool) Name() string {
	return b.ToolName
}

// Description returns the tool description
func (b *BaseTool) Description() string {
	return b.ToolDesc
}

// Category returns the tool's category
func (b *BaseTool) Category() Category {
	return b.ToolCategory
}

// ReadOnly reports whether the tool leaves the workspace untouched
func (b *BaseTool) ReadOnly() bool {
	return b.IsReadOnly
}
