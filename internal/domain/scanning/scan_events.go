package scanning

import (
	"time"

	"github.com/google/uuid"

	"github.com/reconflow/reconflow/internal/domain/events"
)

// Event types emitted by the scanning domain. In a distributed deployment they
// drive reactive phase scheduling: each discovery enqueues the next phase's unit
// of work for that single asset rather than for the whole batch.
const (
	EventTypeScanRequested       events.EventType = "ScanRequested"
	EventTypeScanStatusChanged   events.EventType = "ScanStatusChanged"
	EventTypeScanCancelled       events.EventType = "ScanCancelled"
	EventTypeSubdomainDiscovered events.EventType = "SubdomainDiscovered"
	EventTypeHostAlive           events.EventType = "HostAlive"
	EventTypeURLDiscovered       events.EventType = "URLDiscovered"
	EventTypeVulnScanRequested   events.EventType = "VulnScanRequested"
)

// ScanRequestedEvent asks a worker to begin a scan pipeline for a target.
type ScanRequestedEvent struct {
	ScanID       uuid.UUID `json:"scan_id"`
	TargetDomain string    `json:"target_domain"`
	Quick        bool      `json:"quick"`
	Timestamp    time.Time `json:"timestamp"`
}

// NewScanRequestedEvent creates a scan requested event.
func NewScanRequestedEvent(scanID uuid.UUID, targetDomain string, quick bool) ScanRequestedEvent {
	return ScanRequestedEvent{ScanID: scanID, TargetDomain: targetDomain, Quick: quick, Timestamp: time.Now()}
}

func (e ScanRequestedEvent) EventType() events.EventType { return EventTypeScanRequested }
func (e ScanRequestedEvent) OccurredAt() time.Time       { return e.Timestamp }

// ScanStatusChangedEvent reports a lifecycle change of a scan session.
type ScanStatusChangedEvent struct {
	ScanID    uuid.UUID  `json:"scan_id"`
	Status    ScanStatus `json:"status"`
	Reason    string     `json:"reason,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

// NewScanStatusChangedEvent creates a status change event.
func NewScanStatusChangedEvent(scanID uuid.UUID, status ScanStatus, reason string) ScanStatusChangedEvent {
	return ScanStatusChangedEvent{ScanID: scanID, Status: status, Reason: reason, Timestamp: time.Now()}
}

func (e ScanStatusChangedEvent) EventType() events.EventType { return EventTypeScanStatusChanged }
func (e ScanStatusChangedEvent) OccurredAt() time.Time       { return e.Timestamp }

// ScanCancelledEvent signals that every process belonging to a scan must stop.
type ScanCancelledEvent struct {
	ScanID    uuid.UUID `json:"scan_id"`
	Timestamp time.Time `json:"timestamp"`
}

// NewScanCancelledEvent creates a scan cancelled event.
func NewScanCancelledEvent(scanID uuid.UUID) ScanCancelledEvent {
	return ScanCancelledEvent{ScanID: scanID, Timestamp: time.Now()}
}

func (e ScanCancelledEvent) EventType() events.EventType { return EventTypeScanCancelled }
func (e ScanCancelledEvent) OccurredAt() time.Time       { return e.Timestamp }

// SubdomainDiscoveredEvent signals a newly persisted subdomain. Downstream
// workers react by scheduling host discovery for that one hostname.
type SubdomainDiscoveredEvent struct {
	ScanID       uuid.UUID `json:"scan_id"`
	TargetDomain string    `json:"target_domain"`
	Hostname     string    `json:"hostname"`
	SourceTool   string    `json:"source_tool"`
	Timestamp    time.Time `json:"timestamp"`
}

// NewSubdomainDiscoveredEvent creates a subdomain discovered event.
func NewSubdomainDiscoveredEvent(scanID uuid.UUID, targetDomain, hostname, sourceTool string) SubdomainDiscoveredEvent {
	return SubdomainDiscoveredEvent{
		ScanID:       scanID,
		TargetDomain: targetDomain,
		Hostname:     hostname,
		SourceTool:   sourceTool,
		Timestamp:    time.Now(),
	}
}

func (e SubdomainDiscoveredEvent) EventType() events.EventType { return EventTypeSubdomainDiscovered }
func (e SubdomainDiscoveredEvent) OccurredAt() time.Time       { return e.Timestamp }

// HostAliveEvent signals a live HTTP service. Downstream workers react by
// scheduling a crawl of that URL.
type HostAliveEvent struct {
	ScanID       uuid.UUID `json:"scan_id"`
	TargetDomain string    `json:"target_domain"`
	URL          string    `json:"url"`
	Timestamp    time.Time `json:"timestamp"`
}

// NewHostAliveEvent creates a host alive event.
func NewHostAliveEvent(scanID uuid.UUID, targetDomain, url string) HostAliveEvent {
	return HostAliveEvent{ScanID: scanID, TargetDomain: targetDomain, URL: url, Timestamp: time.Now()}
}

func (e HostAliveEvent) EventType() events.EventType { return EventTypeHostAlive }
func (e HostAliveEvent) OccurredAt() time.Time       { return e.Timestamp }

// URLDiscoveredEvent signals a newly persisted crawled URL.
type URLDiscoveredEvent struct {
	ScanID       uuid.UUID `json:"scan_id"`
	TargetDomain string    `json:"target_domain"`
	URL          string    `json:"url"`
	Tags         []string  `json:"tags,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// NewURLDiscoveredEvent creates a URL discovered event.
func NewURLDiscoveredEvent(scanID uuid.UUID, targetDomain, url string, tags []string) URLDiscoveredEvent {
	return URLDiscoveredEvent{ScanID: scanID, TargetDomain: targetDomain, URL: url, Tags: tags, Timestamp: time.Now()}
}

func (e URLDiscoveredEvent) EventType() events.EventType { return EventTypeURLDiscovered }
func (e URLDiscoveredEvent) OccurredAt() time.Time       { return e.Timestamp }

// VulnScanRequestedEvent asks a worker to run the vulnerability scanner against
// a single URL.
type VulnScanRequestedEvent struct {
	ScanID       uuid.UUID `json:"scan_id"`
	TargetDomain string    `json:"target_domain"`
	URL          string    `json:"url"`
	Timestamp    time.Time `json:"timestamp"`
}

// NewVulnScanRequestedEvent creates a vuln scan requested event.
func NewVulnScanRequestedEvent(scanID uuid.UUID, targetDomain, url string) VulnScanRequestedEvent {
	return VulnScanRequestedEvent{ScanID: scanID, TargetDomain: targetDomain, URL: url, Timestamp: time.Now()}
}

func (e VulnScanRequestedEvent) EventType() events.EventType { return EventTypeVulnScanRequested }
func (e VulnScanRequestedEvent) OccurredAt() time.Time       { return e.Timestamp }
