package scanning

// StreamEventKind discriminates the closed set of events a provider can emit
// while streaming tool output. Consumers switch exhaustively on it.
type StreamEventKind string

const (
	// StreamLog carries human-readable progress text.
	StreamLog StreamEventKind = "log"

	// StreamResult carries a typed payload parsed from one recognized output line.
	StreamResult StreamEventKind = "result"

	// StreamError carries a failure description (launch failure, non-zero exit).
	StreamError StreamEventKind = "error"

	// StreamStatus carries lifecycle notices (started, finished).
	StreamStatus StreamEventKind = "status"
)

// StreamEvent is one transient unit of a provider's output stream. It is
// produced by a provider, consumed once by the orchestrator and never persisted
// as its own row.
//
// For every recognized output line a provider emits the result event before its
// companion log event, so persistence always has data before any display text
// references it.
type StreamEvent struct {
	Kind StreamEventKind

	// Tool names the provider that produced the event.
	Tool string

	// Line holds the display text for log, error and status events.
	Line string

	// Payload holds the typed result for StreamResult events: SubdomainFound,
	// HostProbe, CrawledEndpoint, Finding or FuzzHit.
	Payload any
}

// LogEvent builds a log stream event.
func LogEvent(tool, line string) StreamEvent {
	return StreamEvent{Kind: StreamLog, Tool: tool, Line: line}
}

// ResultEvent builds a result stream event carrying a typed payload.
func ResultEvent(tool string, payload any) StreamEvent {
	return StreamEvent{Kind: StreamResult, Tool: tool, Payload: payload}
}

// ErrorEvent builds an error stream event.
func ErrorEvent(tool, line string) StreamEvent {
	return StreamEvent{Kind: StreamError, Tool: tool, Line: line}
}

// StatusEvent builds a status stream event.
func StatusEvent(tool, line string) StreamEvent {
	return StreamEvent{Kind: StreamStatus, Tool: tool, Line: line}
}

// SubdomainFound is the payload of a subdomain enumeration result line.
type SubdomainFound struct {
	Hostname string `json:"hostname"`
}

// HostProbe is the payload of a host discovery result line (httpx JSON output).
type HostProbe struct {
	URL        string   `json:"url"`
	StatusCode int      `json:"status_code"`
	Title      string   `json:"title,omitempty"`
	Tech       []string `json:"tech,omitempty"`
}

// CrawledEndpoint is the payload of a crawler result line.
type CrawledEndpoint struct {
	URL string `json:"url"`
}

// Finding is the payload of a vulnerability scanner result line (nuclei JSONL).
type Finding struct {
	Name        string `json:"name"`
	Severity    string `json:"severity"`
	MatchedAt   string `json:"matched_at"`
	Host        string `json:"host,omitempty"`
	MatcherName string `json:"matcher_name,omitempty"`
	Description string `json:"description,omitempty"`
}

// FuzzHit is the payload of a fuzzer result line (ffuf JSON output).
type FuzzHit struct {
	URL           string `json:"url"`
	Status        int    `json:"status"`
	ContentLength int    `json:"length"`
	Word          string `json:"word,omitempty"`
}
