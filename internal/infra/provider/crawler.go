package provider

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/reconflow/reconflow/internal/domain/asset"
	"github.com/reconflow/reconflow/internal/domain/scanning"
)

// crawlerTool covers the URL-emitting tools: active crawling (katana) and
// passive archive discovery (gau). Both print one URL per line.
type crawlerTool struct {
	name         string
	deps         Deps
	defaultFlags []string
	buildArgs    func(target string, flags []string) []string
}

// NewKatana wraps projectdiscovery's katana crawler.
func NewKatana(deps Deps) Provider {
	return &crawlerTool{
		name:         "katana",
		deps:         deps,
		defaultFlags: []string{"-silent"},
		buildArgs: func(target string, flags []string) []string {
			return append([]string{"-u", target}, flags...)
		},
	}
}

// NewGau wraps gau, which replays URLs recorded by public archives.
func NewGau(deps Deps) Provider {
	return &crawlerTool{
		name: "gau",
		deps: deps,
		buildArgs: func(target string, flags []string) []string {
			return append(append([]string{}, flags...), target)
		},
	}
}

func (p *crawlerTool) Name() string { return p.name }

func (p *crawlerTool) StreamOutput(ctx context.Context, scanID uuid.UUID, job Job) (<-chan scanning.StreamEvent, error) {
	flags := p.deps.toolFlags(p.name, p.defaultFlags)
	spec := command{
		tool:   p.name,
		binary: p.deps.toolPath(p.name),
	}
	// Both tools read newline-delimited targets from stdin when a list is
	// supplied; a single target goes on the command line.
	if len(job.Inputs) > 0 {
		spec.args = flags
		spec.stdin = job.Inputs
	} else {
		spec.args = p.buildArgs(job.Target, flags)
	}

	// Crawlers emit many value-variants of the same endpoint and piles of
	// static assets. Collapse variants by URL signature and drop media before
	// anything reaches persistence.
	seen := make(map[string]struct{})
	return p.deps.stream(ctx, scanID, spec, func(line string) []scanning.StreamEvent {
		if !strings.HasPrefix(line, "http") {
			return []scanning.StreamEvent{scanning.LogEvent(p.name, line)}
		}
		if asset.IsMediaURL(line) {
			return nil
		}
		sig := asset.URLSignature(line)
		if _, ok := seen[sig]; ok {
			return nil
		}
		seen[sig] = struct{}{}

		return []scanning.StreamEvent{
			scanning.ResultEvent(p.name, scanning.CrawledEndpoint{URL: line}),
			scanning.LogEvent(p.name, line),
		}
	})
}
