package scanning

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSession_AdvancePhase(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		path    []ScanPhase
		wantErr bool
	}{
		{
			name: "full pipeline order",
			path: []ScanPhase{PhaseHostDiscovery, PhaseCrawling, PhaseVulnScan, PhaseComplete},
		},
		{
			name: "quick scan skips crawling",
			path: []ScanPhase{PhaseHostDiscovery, PhaseVulnScan, PhaseComplete},
		},
		{
			name:    "phase never regresses",
			path:    []ScanPhase{PhaseVulnScan, PhaseHostDiscovery},
			wantErr: true,
		},
		{
			name:    "same phase rejected",
			path:    []ScanPhase{PhaseHostDiscovery, PhaseHostDiscovery},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s := NewSession(uuid.New(), "example.com")
			require.Equal(t, PhaseSubdomainEnum, s.Phase())
			require.Equal(t, StatusRunning, s.Status())

			var err error
			for _, p := range tt.path {
				if err = s.AdvancePhase(p); err != nil {
					break
				}
			}

			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, PhaseComplete, s.Phase())
			assert.Equal(t, StatusCompleted, s.Status())
		})
	}
}

func TestSession_CancelJumpsToTerminal(t *testing.T) {
	t.Parallel()

	s := NewSession(uuid.New(), "example.com")
	require.NoError(t, s.AdvancePhase(PhaseHostDiscovery))

	require.NoError(t, s.Cancel())
	assert.Equal(t, StatusCancelled, s.Status())
	assert.True(t, s.Status().IsTerminal())

	// No transitions out of a terminal state.
	assert.Error(t, s.Cancel())
	assert.Error(t, s.Fail())
	assert.Error(t, s.AdvancePhase(PhaseCrawling))
}

func TestSession_FailFromRunning(t *testing.T) {
	t.Parallel()

	s := NewSession(uuid.New(), "example.com")
	require.NoError(t, s.Fail())
	assert.Equal(t, StatusFailed, s.Status())
	assert.Error(t, s.Cancel())
}
