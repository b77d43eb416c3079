package toolinit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nachoal/mini-agent-go/config"
)

func names(t *testing.T, cfg config.ToolsConfig) []string {
	t.Helper()
	reg, err := Build(cfg, nil)
	require.NoError(t, err)
	var out []string
	for _, s := range reg.Schemas() {
		out = append(out, s.Name)
	}
	return out
}

func TestBuild_AllTools(t *testing.T) {
	got := names(t, config.ToolsConfig{
		EnableFileTools: true,
		EnableShell:     true,
		EnableWebSearch: true,
		EnableWebRead:   true,
		EnableSkills:    true,
	})
	assert.Equal(t, []string{
		"file.read", "file.write", "file.edit", "file.list",
		"shell.exec",
		"web.search", "web.read",
		"skills.list", "skills.get", "skills.execute",
	}, got)
}

func TestBuild_RespectsToggles(t *testing.T) {
	assert.Empty(t, names(t, config.ToolsConfig{}))
	assert.Equal(t, []string{"shell.exec"}, names(t, config.ToolsConfig{EnableShell: true}))
}
