package provider

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/reconflow/reconflow/internal/domain/scanning"
)

// nucleiProvider runs template-based vulnerability scanning. Targets are fed on
// stdin when a list is supplied; findings come back as JSONL.
type nucleiProvider struct{ deps Deps }

// NewNuclei wraps projectdiscovery's nuclei.
func NewNuclei(deps Deps) Provider { return &nucleiProvider{deps: deps} }

func (p *nucleiProvider) Name() string { return "nuclei" }

var nucleiDefaultFlags = []string{"-jsonl", "-silent"}

func (p *nucleiProvider) StreamOutput(ctx context.Context, scanID uuid.UUID, job Job) (<-chan scanning.StreamEvent, error) {
	flags := p.deps.toolFlags("nuclei", nucleiDefaultFlags)

	spec := command{
		tool:   "nuclei",
		binary: p.deps.toolPath("nuclei"),
	}
	if len(job.Inputs) > 0 {
		spec.args = flags
		spec.stdin = job.Inputs
	} else {
		spec.args = append([]string{"-u", job.Target}, flags...)
	}

	return p.deps.stream(ctx, scanID, spec, func(line string) []scanning.StreamEvent {
		var row struct {
			Info struct {
				Name        string `json:"name"`
				Severity    string `json:"severity"`
				Description string `json:"description"`
			} `json:"info"`
			MatchedAt   string `json:"matched-at"`
			Host        string `json:"host"`
			MatcherName string `json:"matcher-name"`
		}
		// A finding without a name is not persistable; keep the line visible
		// as a raw log instead.
		if err := json.Unmarshal([]byte(line), &row); err != nil || row.Info.Name == "" {
			return []scanning.StreamEvent{scanning.LogEvent("nuclei", line)}
		}

		matchedAt := row.MatchedAt
		if matchedAt == "" {
			matchedAt = row.Host
		}
		finding := scanning.Finding{
			Name:        row.Info.Name,
			Severity:    row.Info.Severity,
			MatchedAt:   matchedAt,
			Host:        row.Host,
			MatcherName: row.MatcherName,
			Description: row.Info.Description,
		}
		return []scanning.StreamEvent{
			scanning.ResultEvent("nuclei", finding),
			scanning.LogEvent("nuclei", fmt.Sprintf("[%s] %s at %s", finding.Severity, finding.Name, finding.MatchedAt)),
		}
	})
}
