// Package scanning models a reconnaissance scan session: its phase progression,
// lifecycle status, and the events it emits while running.
package scanning

import "fmt"

// ScanPhase identifies one stage of the reconnaissance pipeline. Phases advance
// monotonically; only cancellation can interrupt the progression.
type ScanPhase string

const (
	// PhaseSubdomainEnum enumerates subdomains of the target via passive sources.
	PhaseSubdomainEnum ScanPhase = "SUBDOMAIN_ENUM"

	// PhaseHostDiscovery probes recorded subdomains for live HTTP services.
	PhaseHostDiscovery ScanPhase = "HOST_DISCOVERY"

	// PhaseCrawling discovers URLs on alive hosts, actively and passively.
	PhaseCrawling ScanPhase = "CRAWLING"

	// PhaseVulnScan runs the vulnerability scanner against everything collected.
	PhaseVulnScan ScanPhase = "VULN_SCAN"

	// PhaseComplete is the terminal phase of a finished pipeline.
	PhaseComplete ScanPhase = "COMPLETE"
)

func (p ScanPhase) String() string { return string(p) }

// ordinal positions phases for monotonicity checks.
func (p ScanPhase) ordinal() int {
	switch p {
	case PhaseSubdomainEnum:
		return 1
	case PhaseHostDiscovery:
		return 2
	case PhaseCrawling:
		return 3
	case PhaseVulnScan:
		return 4
	case PhaseComplete:
		return 5
	default:
		return 0
	}
}

// validateAdvance ensures a phase change never moves backwards. Skipping forward
// is allowed; the quick-scan path jumps from host discovery straight to the
// vulnerability scan.
func (p ScanPhase) validateAdvance(next ScanPhase) error {
	if next.ordinal() == 0 {
		return fmt.Errorf("unknown scan phase: %s", next)
	}
	if next.ordinal() <= p.ordinal() {
		return fmt.Errorf("invalid phase advance from %s to %s", p, next)
	}
	return nil
}
