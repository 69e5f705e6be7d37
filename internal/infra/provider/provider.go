// Package provider adapts external reconnaissance tools to a uniform streaming
// interface. Each adapter wraps one binary, turns its stdout into typed stream
// events and registers the subprocess for scan-wide cancellation.
package provider

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/reconflow/reconflow/internal/domain/scanning"
	"github.com/reconflow/reconflow/internal/infra/procregistry"
	"github.com/reconflow/reconflow/pkg/common/logger"
)

// ToolConfig resolves per-tool configuration overrides.
type ToolConfig interface {
	// ToolFlags returns the configured flag override for the tool, or nil to use
	// the adapter's hard-coded defaults.
	ToolFlags(tool string) []string

	// ToolPath returns the configured executable path for the tool, or empty to
	// resolve the tool name through PATH.
	ToolPath(tool string) string
}

// Job describes one provider invocation. Target is the domain or URL the tool
// runs against; Inputs optionally feed a newline-delimited list on stdin for
// tools that probe many hosts per invocation.
type Job struct {
	Target string
	Inputs []string
}

// Provider exposes one external scanning tool via a streaming-result interface.
type Provider interface {
	// Name identifies the tool, matching its configuration namespace.
	Name() string

	// StreamOutput launches the tool and streams its output as typed events.
	// The returned channel closes when the tool exits or the context is
	// cancelled. Launch failures surface as an error event on the stream, not
	// as a returned error, so a missing binary costs a phase nothing but its
	// results.
	StreamOutput(ctx context.Context, scanID uuid.UUID, job Job) (<-chan scanning.StreamEvent, error)
}

// Run invokes the provider and buffers its whole stream. It returns the
// context's error when the stream ended because of cancellation, so callers
// can tell a completed run from an interrupted one.
func Run(ctx context.Context, p Provider, scanID uuid.UUID, job Job) ([]scanning.StreamEvent, error) {
	stream, err := p.StreamOutput(ctx, scanID, job)
	if err != nil {
		return nil, err
	}

	var collected []scanning.StreamEvent
	for evt := range stream {
		collected = append(collected, evt)
	}
	return collected, ctx.Err()
}

// Deps carries the collaborators every provider adapter needs.
type Deps struct {
	Registry *procregistry.Registry
	Tools    ToolConfig
	Logger   *logger.Logger
}

// toolFlags returns the configured flag override for the tool, falling back to
// the adapter's defaults.
func (d Deps) toolFlags(tool string, defaults []string) []string {
	if d.Tools != nil {
		if flags := d.Tools.ToolFlags(tool); len(flags) > 0 {
			return flags
		}
	}
	return defaults
}

// toolPath resolves the executable for the tool, defaulting to the tool name.
func (d Deps) toolPath(tool string) string {
	if d.Tools != nil {
		if path := d.Tools.ToolPath(tool); path != "" {
			return path
		}
	}
	return tool
}

// constructors is the static table mapping provider names to constructors,
// built once at package load.
var constructors = map[string]func(Deps) Provider{
	"subfinder":   NewSubfinder,
	"assetfinder": NewAssetfinder,
	"findomain":   NewFindomain,
	"httpx":       NewHTTPX,
	"katana":      NewKatana,
	"gau":         NewGau,
	"nuclei":      NewNuclei,
	"ffuf":        NewFFUF,
}

// New constructs the named provider, or errors if the name is unknown.
func New(name string, deps Deps) (Provider, error) {
	ctor, ok := constructors[name]
	if !ok {
		return nil, fmt.Errorf("unknown provider %q", name)
	}
	return ctor(deps), nil
}

// Names returns the sorted set of registered provider names.
func Names() []string {
	names := make([]string, 0, len(constructors))
	for name := range constructors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
