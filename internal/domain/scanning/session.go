package scanning

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Session tracks one end-to-end pipeline run against a target domain. It owns
// the phase progression and lifecycle status; the orchestrator mutates it as
// phases settle.
type Session struct {
	scanID       uuid.UUID
	targetDomain string
	phase        ScanPhase
	status       ScanStatus
	startedAt    time.Time
}

// NewSession creates a running session positioned at the first phase.
func NewSession(scanID uuid.UUID, targetDomain string) *Session {
	return &Session{
		scanID:       scanID,
		targetDomain: targetDomain,
		phase:        PhaseSubdomainEnum,
		status:       StatusRunning,
		startedAt:    time.Now(),
	}
}

// ScanID returns the unique identifier of this session.
func (s *Session) ScanID() uuid.UUID { return s.scanID }

// TargetDomain returns the domain this session scans.
func (s *Session) TargetDomain() string { return s.targetDomain }

// Phase returns the current pipeline phase.
func (s *Session) Phase() ScanPhase { return s.phase }

// Status returns the current lifecycle status.
func (s *Session) Status() ScanStatus { return s.status }

// StartedAt returns when the session began executing.
func (s *Session) StartedAt() time.Time { return s.startedAt }

// AdvancePhase moves the session forward to next. Phases never regress; an
// attempt to do so is rejected.
func (s *Session) AdvancePhase(next ScanPhase) error {
	if s.status != StatusRunning {
		return fmt.Errorf("cannot advance phase: session status is %s", s.status)
	}
	if err := s.phase.validateAdvance(next); err != nil {
		return err
	}
	s.phase = next
	if next == PhaseComplete {
		s.status = StatusCompleted
	}
	return nil
}

// Cancel moves the session directly to the terminal cancelled state from any
// non-terminal state.
func (s *Session) Cancel() error {
	if err := s.status.validateTransition(StatusCancelled); err != nil {
		return err
	}
	s.status = StatusCancelled
	return nil
}

// Fail marks the session as failed.
func (s *Session) Fail() error {
	if err := s.status.validateTransition(StatusFailed); err != nil {
		return err
	}
	s.status = StatusFailed
	return nil
}
