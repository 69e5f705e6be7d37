// Package asset defines the discovered-asset entities produced by a reconnaissance
// pipeline and the persistence contracts they are stored through. Every entity is
// unique by a natural key; persisting a duplicate is a normal outcome, not an error.
package asset

import (
	"strings"
	"time"
)

// Severity classifies the impact of a vulnerability finding.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// ParseSeverity normalizes a tool-reported severity string, defaulting to info
// for anything unrecognized.
func ParseSeverity(s string) Severity {
	switch Severity(strings.ToLower(s)) {
	case SeverityLow:
		return SeverityLow
	case SeverityMedium:
		return SeverityMedium
	case SeverityHigh:
		return SeverityHigh
	case SeverityCritical:
		return SeverityCritical
	default:
		return SeverityInfo
	}
}

// Subdomain is a discovered hostname belonging to a target domain.
// Natural key: Hostname.
type Subdomain struct {
	TargetDomain string
	Hostname     string
	SourceTool   string
	IsAlive      bool
	DiscoveredAt time.Time
}

// CrawledURL is a URL discovered by active crawling or passive archives.
// Natural key: URL.
type CrawledURL struct {
	TargetDomain string
	URL          string
	SourceTool   string
	// Tags hold category labels (xss, sqli, admin, ...) assigned by URL classification.
	Tags         []string
	DiscoveredAt time.Time
}

// Vulnerability is a finding reported by a vulnerability scanner.
// Natural key: (TargetDomain, Name, URL, MatcherName).
type Vulnerability struct {
	TargetDomain string
	Name         string
	Severity     Severity
	URL          string
	MatcherName  string
	Description  string
	DiscoveredAt time.Time
}

// NormalizeHostname reduces a URL or bare hostname to just the hostname so alive
// updates match rows regardless of how the probing tool reported the host.
func NormalizeHostname(hostOrURL string) string {
	h := strings.TrimSpace(hostOrURL)
	h = strings.TrimPrefix(h, "https://")
	h = strings.TrimPrefix(h, "http://")
	if i := strings.IndexByte(h, '/'); i >= 0 {
		h = h[:i]
	}
	if i := strings.IndexByte(h, ':'); i >= 0 {
		h = h[:i]
	}
	return strings.ToLower(h)
}
