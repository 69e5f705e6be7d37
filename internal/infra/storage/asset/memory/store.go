// Package memory provides an in-memory asset repository for tests and
// single-node runs where durability is not required.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/reconflow/reconflow/internal/domain/asset"
)

var _ asset.Repository = (*Store)(nil)

// Store implements asset.Repository with mutex-guarded maps. The natural-key
// uniqueness the postgres schema enforces with constraints is enforced here by
// the check under lock.
type Store struct {
	mu sync.Mutex

	// subdomains is keyed by hostname, urls by full URL.
	subdomains map[string]*asset.Subdomain
	urls       map[string]*asset.CrawledURL
	vulns      map[vulnKey]*asset.Vulnerability

	// Insertion order per target, so getters are stable within one phase.
	subdomainOrder map[string][]string
	urlOrder       map[string][]string
	vulnOrder      map[string][]vulnKey
}

type vulnKey struct {
	targetDomain string
	name         string
	url          string
	matcherName  string
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		subdomains:     make(map[string]*asset.Subdomain),
		urls:           make(map[string]*asset.CrawledURL),
		vulns:          make(map[vulnKey]*asset.Vulnerability),
		subdomainOrder: make(map[string][]string),
		urlOrder:       make(map[string][]string),
		vulnOrder:      make(map[string][]vulnKey),
	}
}

// AddSubdomain records a hostname, returning false when it already exists.
func (s *Store) AddSubdomain(_ context.Context, targetDomain, hostname, sourceTool string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.subdomains[hostname]; ok {
		return false, nil
	}
	s.subdomains[hostname] = &asset.Subdomain{
		TargetDomain: targetDomain,
		Hostname:     hostname,
		SourceTool:   sourceTool,
		DiscoveredAt: time.Now(),
	}
	s.subdomainOrder[targetDomain] = append(s.subdomainOrder[targetDomain], hostname)
	return true, nil
}

// UpdateSubdomainAlive marks the subdomain matching hostOrURL alive, normalizing
// the input to a hostname first.
func (s *Store) UpdateSubdomainAlive(_ context.Context, hostOrURL string, alive bool) (bool, error) {
	hostname := asset.NormalizeHostname(hostOrURL)

	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subdomains[hostname]
	if !ok {
		return false, nil
	}
	sub.IsAlive = alive
	return true, nil
}

// SubdomainsForTarget returns all hostnames recorded for the target.
func (s *Store) SubdomainsForTarget(_ context.Context, targetDomain string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	hostnames := make([]string, len(s.subdomainOrder[targetDomain]))
	copy(hostnames, s.subdomainOrder[targetDomain])
	return hostnames, nil
}

// AliveSubdomainsForTarget returns the hostnames marked alive for the target.
func (s *Store) AliveSubdomainsForTarget(_ context.Context, targetDomain string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var hostnames []string
	for _, h := range s.subdomainOrder[targetDomain] {
		if s.subdomains[h].IsAlive {
			hostnames = append(hostnames, h)
		}
	}
	return hostnames, nil
}

// AddCrawledURL records a URL, returning false when it already exists.
func (s *Store) AddCrawledURL(_ context.Context, targetDomain, url, sourceTool string, tags []string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.urls[url]; ok {
		return false, nil
	}
	s.urls[url] = &asset.CrawledURL{
		TargetDomain: targetDomain,
		URL:          url,
		SourceTool:   sourceTool,
		Tags:         tags,
		DiscoveredAt: time.Now(),
	}
	s.urlOrder[targetDomain] = append(s.urlOrder[targetDomain], url)
	return true, nil
}

// CrawledURLsForTarget returns all URLs recorded for the target.
func (s *Store) CrawledURLsForTarget(_ context.Context, targetDomain string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	urls := make([]string, len(s.urlOrder[targetDomain]))
	copy(urls, s.urlOrder[targetDomain])
	return urls, nil
}

// AddVulnerability records a finding, returning false when its natural key
// already exists.
func (s *Store) AddVulnerability(_ context.Context, vuln asset.Vulnerability) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := vulnKey{
		targetDomain: vuln.TargetDomain,
		name:         vuln.Name,
		url:          vuln.URL,
		matcherName:  vuln.MatcherName,
	}
	if _, ok := s.vulns[key]; ok {
		return false, nil
	}
	vuln.DiscoveredAt = time.Now()
	s.vulns[key] = &vuln
	s.vulnOrder[vuln.TargetDomain] = append(s.vulnOrder[vuln.TargetDomain], key)
	return true, nil
}

// VulnerabilitiesForTarget returns all findings recorded for the target.
func (s *Store) VulnerabilitiesForTarget(_ context.Context, targetDomain string) ([]asset.Vulnerability, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var vulns []asset.Vulnerability
	for _, key := range s.vulnOrder[targetDomain] {
		vulns = append(vulns, *s.vulns[key])
	}
	return vulns, nil
}
