package asset

import "context"

// Repository persists discovered assets with idempotent, dedup-safe writes.
//
// Every Add method returns true iff a new row was inserted and false when the
// natural key already existed. Implementations must perform an existence check
// before inserting but also convert a uniqueness violation raised by a racing
// concurrent insert into a false return, so callers never need external locking.
type Repository interface {
	// AddSubdomain records a discovered hostname for a target domain.
	AddSubdomain(ctx context.Context, targetDomain, hostname, sourceTool string) (bool, error)

	// UpdateSubdomainAlive marks the subdomain matching hostOrURL as alive (or not).
	// The input is normalized to a hostname before matching. It returns true iff a
	// matching row was updated.
	UpdateSubdomainAlive(ctx context.Context, hostOrURL string, alive bool) (bool, error)

	// SubdomainsForTarget returns the hostnames recorded for a target domain.
	SubdomainsForTarget(ctx context.Context, targetDomain string) ([]string, error)

	// AliveSubdomainsForTarget returns the hostnames marked alive for a target domain.
	AliveSubdomainsForTarget(ctx context.Context, targetDomain string) ([]string, error)

	// AddCrawledURL records a discovered URL with its classification tags.
	AddCrawledURL(ctx context.Context, targetDomain, url, sourceTool string, tags []string) (bool, error)

	// CrawledURLsForTarget returns the URLs recorded for a target domain.
	CrawledURLsForTarget(ctx context.Context, targetDomain string) ([]string, error)

	// AddVulnerability records a scanner finding.
	AddVulnerability(ctx context.Context, vuln Vulnerability) (bool, error)

	// VulnerabilitiesForTarget returns the findings recorded for a target domain.
	VulnerabilitiesForTarget(ctx context.Context, targetDomain string) ([]Vulnerability, error)
}
