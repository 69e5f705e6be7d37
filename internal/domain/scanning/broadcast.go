package scanning

import "context"

// BroadcastType labels an event pushed to external consumers (dashboard,
// websocket fan-out). The set is closed.
type BroadcastType string

const (
	BroadcastStatus    BroadcastType = "status"
	BroadcastLog       BroadcastType = "log"
	BroadcastSubdomain BroadcastType = "subdomain"
	BroadcastResult    BroadcastType = "result"
	BroadcastCrawl     BroadcastType = "crawl"
	BroadcastVuln      BroadcastType = "vuln"
	BroadcastError     BroadcastType = "error"
	BroadcastRaw       BroadcastType = "raw"
)

// BroadcastEvent is the outward-facing representation of pipeline activity.
// Only the fields relevant to the Type are populated.
type BroadcastEvent struct {
	Type    BroadcastType `json:"type"`
	ScanID  string        `json:"scan_id,omitempty"`
	Message string        `json:"message,omitempty"`

	// Subdomain events.
	Domain    string `json:"domain,omitempty"`
	Subdomain string `json:"subdomain,omitempty"`
	Tool      string `json:"tool,omitempty"`
	IsNew     bool   `json:"is_new,omitempty"`

	// Crawl events.
	URL  string   `json:"url,omitempty"`
	Tags []string `json:"tags,omitempty"`

	// Vulnerability events.
	VulnName     string `json:"vuln_name,omitempty"`
	VulnSeverity string `json:"vuln_severity,omitempty"`
}

// Broadcaster delivers a broadcast event to external consumers. Implementations
// must tolerate concurrent calls; delivery failures are the caller's to log, not
// to abort a scan over.
type Broadcaster func(ctx context.Context, evt BroadcastEvent) error

// NopBroadcaster discards every event. Used where no dashboard is attached.
func NopBroadcaster(context.Context, BroadcastEvent) error { return nil }
