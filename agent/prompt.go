package agent

import "strings"

// BuildSystemPrompt joins the base prompt, the workspace line and the
// skills preamble, skipping empty parts
func BuildSystemPrompt(base, workspaceRoot, preamble string) string {
	var parts []string
	if s := strings.TrimSpace(base); s != "" {
		parts = append(parts, s)
	}
	if workspaceRoot != "" {
		parts = append(parts, "Workspace root: "+workspaceRoot+"\nAll file paths are relative to it and must stay inside it.")
	}
	if s := strings.TrimSpace(preamble); s != "" {
		parts = append(parts, s)
	}
	return strings.Join(parts, "\n\n")
}
