package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// ToolSettings resolves per-tool invocation overrides. Lookups use the
// `tool:<name>:flags` and `tool:<name>:path` namespaces; environment variables
// take precedence over file configuration, so an operator can override a
// single tool's flags with RECONFLOW_TOOL_<NAME>_FLAGS without touching the
// config file.
type ToolSettings struct {
	v *viper.Viper
}

// NewToolSettings builds the resolver from the file-level tool section.
func NewToolSettings(tools map[string]ToolConfig) *ToolSettings {
	v := viper.New()
	v.SetEnvPrefix("reconflow")
	v.SetEnvKeyReplacer(strings.NewReplacer(":", "_"))
	v.AutomaticEnv()

	for name, tc := range tools {
		if len(tc.Flags) > 0 {
			v.SetDefault(fmt.Sprintf("tool:%s:flags", name), strings.Join(tc.Flags, " "))
		}
		if tc.Path != "" {
			v.SetDefault(fmt.Sprintf("tool:%s:path", name), tc.Path)
		}
	}
	return &ToolSettings{v: v}
}

// ToolFlags returns the configured flag override for the tool, or nil when the
// tool should use its hard-coded defaults.
func (s *ToolSettings) ToolFlags(tool string) []string {
	raw := s.v.GetString(fmt.Sprintf("tool:%s:flags", tool))
	if raw == "" {
		return nil
	}
	return strings.Fields(raw)
}

// ToolPath returns the configured binary path for the tool, or empty to resolve
// the tool name through PATH.
func (s *ToolSettings) ToolPath(tool string) string {
	return s.v.GetString(fmt.Sprintf("tool:%s:path", tool))
}
