// Package config defines the typed configuration consumed by the orchestrator
// and worker services.
package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML values can use strings like "10m".
type Duration time.Duration

// UnmarshalYAML parses a Go duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// ToolConfig overrides how one external tool is invoked.
type ToolConfig struct {
	// Flags replaces the tool's default command-line flags entirely.
	Flags []string `yaml:"flags,omitempty"`
	// Path points at the tool binary when it is not on PATH.
	Path string `yaml:"path,omitempty"`
}

// ScanConfig holds the pipeline tunables.
type ScanConfig struct {
	// PhaseTimeout bounds each phase's fan-out.
	PhaseTimeout Duration `yaml:"phase_timeout,omitempty"`
	// SubdomainTools are the enumeration providers of phase one, in priority
	// order; a quick scan uses only the first.
	SubdomainTools []string `yaml:"subdomain_tools,omitempty"`
	// PaceRPS and PaceBurst smooth tool launches on this node.
	PaceRPS   float64 `yaml:"pace_rps,omitempty"`
	PaceBurst int     `yaml:"pace_burst,omitempty"`
}

// RateLimitConfig parameterizes the shared fixed-window limiter.
type RateLimitConfig struct {
	// Limit is the maximum number of tool invocations per target per window.
	Limit int64 `yaml:"limit,omitempty"`
	// Period is the window length.
	Period Duration `yaml:"period,omitempty"`
}

// KafkaConfig describes the event bus of a distributed deployment. Absent, the
// service runs with an in-process bus.
type KafkaConfig struct {
	Brokers        []string `yaml:"brokers"`
	ControlTopic   string   `yaml:"control_topic"`
	DiscoveryTopic string   `yaml:"discovery_topic"`
	GroupID        string   `yaml:"group_id"`
	ClientID       string   `yaml:"client_id"`
}

// PostgresConfig points at the shared store backing assets and rate-limit
// windows. Absent, the service keeps everything in memory.
type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

// Config represents the top-level configuration.
type Config struct {
	Tools     map[string]ToolConfig `yaml:"tools,omitempty"`
	Scan      ScanConfig            `yaml:"scan,omitempty"`
	RateLimit RateLimitConfig       `yaml:"rate_limit,omitempty"`
	Kafka     *KafkaConfig          `yaml:"kafka,omitempty"`
	Postgres  *PostgresConfig       `yaml:"postgres,omitempty"`
}
