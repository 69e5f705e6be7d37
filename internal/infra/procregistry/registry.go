// Package procregistry tracks the live subprocesses spawned on behalf of each
// scan so an external cancel request can terminate the whole process tree of a
// scan at any time.
package procregistry

import (
	"context"
	"os"
	"sync"
	"syscall"

	"github.com/google/uuid"

	"github.com/reconflow/reconflow/pkg/common/logger"
)

// Process is the minimal handle the registry needs to request termination.
// Termination is best-effort: the registry only signals, it never waits for
// exit. The owning provider's read loop observes EOF and finishes cleanly.
type Process interface {
	// Terminate requests the process stop. Implementations should signal the
	// whole process group where possible.
	Terminate() error
}

// Registry tracks live process handles per scan id. All mutations of a scan's
// tracked set are atomic with respect to concurrent AddProcess/Cancel calls: an
// add racing a cancel either lands before the cancel (and gets terminated) or
// observes the id gone and is rejected, so no untracked process survives.
type Registry struct {
	mu     sync.Mutex
	active map[uuid.UUID][]Process

	logger *logger.Logger
}

// New creates an empty registry.
func New(log *logger.Logger) *Registry {
	return &Registry{
		active: make(map[uuid.UUID][]Process),
		logger: log.With("component", "proc_registry"),
	}
}

// RegisterScan creates an empty tracked set for the scan id. Registering an
// already-registered id is a no-op.
func (r *Registry) RegisterScan(scanID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.active[scanID]; !ok {
		r.active[scanID] = nil
	}
}

// AddProcess appends a handle to the scan's tracked set. If the id is unknown
// (never registered, already finished or cancelled) the add is rejected and
// false is returned; the caller must terminate the process itself. This is what
// prevents handle leaks when an add races a cancel.
func (r *Registry) AddProcess(scanID uuid.UUID, p Process) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.active[scanID]; !ok {
		return false
	}
	r.active[scanID] = append(r.active[scanID], p)
	return true
}

// Cancel terminates every tracked process for the scan id and atomically
// removes the id. It returns whether the id was registered. Termination errors
// are logged and do not stop the sweep.
func (r *Registry) Cancel(ctx context.Context, scanID uuid.UUID) bool {
	r.mu.Lock()
	procs, ok := r.active[scanID]
	delete(r.active, scanID)
	r.mu.Unlock()

	if !ok {
		return false
	}

	r.logger.Info(ctx, "cancelling scan processes", "scan_id", scanID.String(), "process_count", len(procs))
	for _, p := range procs {
		if err := p.Terminate(); err != nil {
			r.logger.Warn(ctx, "failed to terminate process", "scan_id", scanID.String(), "error", err)
		}
	}
	return true
}

// RemoveScan drops the scan's tracked set without signaling anything. Called on
// normal completion to bound registry growth.
func (r *Registry) RemoveScan(scanID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.active, scanID)
}

// ProcessCount returns how many handles are tracked for the scan id.
func (r *Registry) ProcessCount(scanID uuid.UUID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active[scanID])
}

// osHandle adapts *os.Process to the Process interface, signaling the whole
// process group so tool-spawned children die with their parent.
type osHandle struct{ proc *os.Process }

// OSHandle wraps an operating system process for registry tracking.
func OSHandle(proc *os.Process) Process { return &osHandle{proc: proc} }

func (h *osHandle) Terminate() error {
	// Negative pid targets the process group created with Setpgid.
	if err := syscall.Kill(-h.proc.Pid, syscall.SIGTERM); err == nil {
		return nil
	}
	return h.proc.Signal(syscall.SIGTERM)
}
