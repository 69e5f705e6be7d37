package provider

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/reconflow/reconflow/internal/domain/asset"
	"github.com/reconflow/reconflow/internal/domain/scanning"
)

// subdomainTool covers the line-oriented enumeration tools: one hostname per
// stdout line, no structured output.
type subdomainTool struct {
	name         string
	deps         Deps
	defaultFlags []string
	buildArgs    func(target string, flags []string) []string
}

// NewSubfinder wraps projectdiscovery's subfinder.
func NewSubfinder(deps Deps) Provider {
	return &subdomainTool{
		name:         "subfinder",
		deps:         deps,
		defaultFlags: []string{"-silent"},
		buildArgs: func(target string, flags []string) []string {
			return append([]string{"-d", target}, flags...)
		},
	}
}

// NewAssetfinder wraps tomnomnom's assetfinder.
func NewAssetfinder(deps Deps) Provider {
	return &subdomainTool{
		name: "assetfinder",
		deps: deps,
		buildArgs: func(target string, flags []string) []string {
			args := append([]string{"--subs-only"}, flags...)
			return append(args, target)
		},
	}
}

// NewFindomain wraps findomain.
func NewFindomain(deps Deps) Provider {
	return &subdomainTool{
		name:         "findomain",
		deps:         deps,
		defaultFlags: []string{"-q"},
		buildArgs: func(target string, flags []string) []string {
			return append([]string{"-t", target}, flags...)
		},
	}
}

func (p *subdomainTool) Name() string { return p.name }

func (p *subdomainTool) StreamOutput(ctx context.Context, scanID uuid.UUID, job Job) (<-chan scanning.StreamEvent, error) {
	flags := p.deps.toolFlags(p.name, p.defaultFlags)
	spec := command{
		tool:   p.name,
		binary: p.deps.toolPath(p.name),
		args:   p.buildArgs(job.Target, flags),
	}

	// Enumeration tools interleave banners and notices with hostnames. Only a
	// line that normalizes to the target or one of its subdomains is a result;
	// a banner merely mentioning the target stays a log line.
	target := asset.NormalizeHostname(job.Target)
	return p.deps.stream(ctx, scanID, spec, func(line string) []scanning.StreamEvent {
		hostname := asset.NormalizeHostname(line)
		if hostname != target && !strings.HasSuffix(hostname, "."+target) {
			return []scanning.StreamEvent{scanning.LogEvent(p.name, line)}
		}
		return []scanning.StreamEvent{
			scanning.ResultEvent(p.name, scanning.SubdomainFound{Hostname: hostname}),
			scanning.LogEvent(p.name, hostname),
		}
	})
}
