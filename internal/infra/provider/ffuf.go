package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/reconflow/reconflow/internal/domain/scanning"
)

// ffufProvider runs content fuzzing against a single URL, outside the regular
// phase graph. The wordlist comes from the tool's flag configuration.
type ffufProvider struct{ deps Deps }

// NewFFUF wraps ffuf.
func NewFFUF(deps Deps) Provider { return &ffufProvider{deps: deps} }

func (p *ffufProvider) Name() string { return "ffuf" }

var ffufDefaultFlags = []string{"-json", "-w", "/usr/share/wordlists/common.txt"}

func (p *ffufProvider) StreamOutput(ctx context.Context, scanID uuid.UUID, job Job) (<-chan scanning.StreamEvent, error) {
	target := job.Target
	if !strings.Contains(target, "FUZZ") {
		target = strings.TrimSuffix(target, "/") + "/FUZZ"
	}

	spec := command{
		tool:   "ffuf",
		binary: p.deps.toolPath("ffuf"),
		args:   append([]string{"-u", target}, p.deps.toolFlags("ffuf", ffufDefaultFlags)...),
	}

	return p.deps.stream(ctx, scanID, spec, func(line string) []scanning.StreamEvent {
		var row struct {
			URL    string `json:"url"`
			Status int    `json:"status"`
			Length int    `json:"length"`
			Input  struct {
				Fuzz string `json:"FUZZ"`
			} `json:"input"`
		}
		if err := json.Unmarshal([]byte(line), &row); err != nil || row.URL == "" {
			return []scanning.StreamEvent{scanning.LogEvent("ffuf", line)}
		}

		hit := scanning.FuzzHit{
			URL:           row.URL,
			Status:        row.Status,
			ContentLength: row.Length,
			Word:          row.Input.Fuzz,
		}
		return []scanning.StreamEvent{
			scanning.ResultEvent("ffuf", hit),
			scanning.LogEvent("ffuf", fmt.Sprintf("%s [%d] len=%d", hit.URL, hit.Status, hit.ContentLength)),
		}
	})
}
