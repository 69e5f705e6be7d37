package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToolSettingsFileDefaults(t *testing.T) {
	settings := NewToolSettings(map[string]ToolConfig{
		"subfinder": {Flags: []string{"-silent", "-all"}},
		"nuclei":    {Path: "/opt/tools/nuclei"},
	})

	assert.Equal(t, []string{"-silent", "-all"}, settings.ToolFlags("subfinder"))
	assert.Equal(t, "/opt/tools/nuclei", settings.ToolPath("nuclei"))

	assert.Nil(t, settings.ToolFlags("httpx"), "unconfigured tools fall back to adapter defaults")
	assert.Empty(t, settings.ToolPath("httpx"))
}

func TestToolSettingsEnvOverridesFile(t *testing.T) {
	t.Setenv("RECONFLOW_TOOL_SUBFINDER_FLAGS", "-silent -recursive")
	t.Setenv("RECONFLOW_TOOL_KATANA_PATH", "/usr/local/bin/katana2")

	settings := NewToolSettings(map[string]ToolConfig{
		"subfinder": {Flags: []string{"-silent"}},
	})

	assert.Equal(t, []string{"-silent", "-recursive"}, settings.ToolFlags("subfinder"))
	assert.Equal(t, "/usr/local/bin/katana2", settings.ToolPath("katana"))
}
