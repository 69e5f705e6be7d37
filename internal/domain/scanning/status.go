package scanning

import "fmt"

// ScanStatus represents the lifecycle state of a scan session. It enables
// tracking from start through completion, failure or cancellation.
type ScanStatus string

const (
	// StatusRunning indicates the scan is actively executing phases.
	StatusRunning ScanStatus = "RUNNING"

	// StatusCompleted indicates all phases finished.
	StatusCompleted ScanStatus = "COMPLETED"

	// StatusCancelled indicates the scan was aborted by an external request.
	StatusCancelled ScanStatus = "CANCELLED"

	// StatusFailed indicates the scan encountered an unrecoverable error.
	StatusFailed ScanStatus = "FAILED"
)

func (s ScanStatus) String() string { return string(s) }

// IsTerminal reports whether no further state changes are possible.
func (s ScanStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusFailed:
		return true
	default:
		return false
	}
}

// validateTransition checks whether moving to newStatus is legal. Cancellation is
// reachable from any non-terminal state; everything else only from RUNNING.
func (s ScanStatus) validateTransition(newStatus ScanStatus) error {
	if s.IsTerminal() {
		return fmt.Errorf("scan already in terminal status %s", s)
	}
	switch newStatus {
	case StatusCompleted, StatusCancelled, StatusFailed:
		return nil
	default:
		return fmt.Errorf("invalid status transition from %s to %s", s, newStatus)
	}
}
