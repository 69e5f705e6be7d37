package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/reconflow/reconflow/internal/domain/scanning"
)

// httpxProvider probes a list of hosts for live HTTP services. Hosts are fed
// newline-delimited on stdin; results come back as one JSON object per line.
type httpxProvider struct{ deps Deps }

// NewHTTPX wraps projectdiscovery's httpx.
func NewHTTPX(deps Deps) Provider { return &httpxProvider{deps: deps} }

func (p *httpxProvider) Name() string { return "httpx" }

var httpxDefaultFlags = []string{"-json", "-silent", "-status-code", "-title", "-tech-detect"}

func (p *httpxProvider) StreamOutput(ctx context.Context, scanID uuid.UUID, job Job) (<-chan scanning.StreamEvent, error) {
	inputs := job.Inputs
	if len(inputs) == 0 {
		inputs = []string{job.Target}
	}

	spec := command{
		tool:   "httpx",
		binary: p.deps.toolPath("httpx"),
		args:   p.deps.toolFlags("httpx", httpxDefaultFlags),
		stdin:  inputs,
	}

	return p.deps.stream(ctx, scanID, spec, func(line string) []scanning.StreamEvent {
		var row struct {
			URL        string   `json:"url"`
			StatusCode int      `json:"status_code"`
			Title      string   `json:"title"`
			Tech       []string `json:"tech"`
		}
		if err := json.Unmarshal([]byte(line), &row); err != nil || row.URL == "" {
			// Without -json httpx prints bare URLs; anything else is noise.
			if strings.HasPrefix(line, "http") {
				return []scanning.StreamEvent{
					scanning.ResultEvent("httpx", scanning.HostProbe{URL: line}),
					scanning.LogEvent("httpx", line),
				}
			}
			return []scanning.StreamEvent{scanning.LogEvent("httpx", line)}
		}

		probe := scanning.HostProbe{
			URL:        row.URL,
			StatusCode: row.StatusCode,
			Title:      row.Title,
			Tech:       row.Tech,
		}
		return []scanning.StreamEvent{
			scanning.ResultEvent("httpx", probe),
			scanning.LogEvent("httpx", fmt.Sprintf("%s [%d] %s", row.URL, row.StatusCode, row.Title)),
		}
	})
}
