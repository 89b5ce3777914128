package procmanager

import "sync/atomic"

type ProcessState int

const (
	// ProcessStateUnknown is the zero value for functions that return a
	// (possibly absent) ProcessState.
	ProcessStateUnknown ProcessState = iota

	// ProcessStateCreated indicates the executable has been resolved and the
	// command configured. The process can be started.
	ProcessStateCreated

	// ProcessStateStarting indicates Start has been called but the underlying
	// process has not yet been spawned.
	ProcessStateStarting

	// ProcessStateStarted indicates the process is running. It can be killed.
	ProcessStateStarted

	// ProcessStateStopping indicates a kill signal has been sent but the exit
	// has not yet been observed.
	ProcessStateStopping

	// ProcessStateStopped indicates the process has exited and been reaped.
	ProcessStateStopped

	// ProcessStateFailed indicates the process could not be spawned.
	ProcessStateFailed
)

// NOTE: This slice needs to be kept in sync with the ProcessState values.
var processStates = []string{
	"Unknown",
	"Created",
	"Starting",
	"Started",
	"Stopping",
	"Stopped",
	"Failed",
}

// String implements the Stringer interface for ProcessState.
func (s ProcessState) String() string {
	if int(s) < 0 || int(s) >= len(processStates) {
		return processStates[0]
	}

	return processStates[s]
}

// AtomicProcessState wraps an atomic.Int32 so state transitions can be
// validated with CompareAndSwap instead of a mutex on the Process.
type AtomicProcessState struct {
	v atomic.Int32
}

// Load atomically loads the ProcessState value.
func (a *AtomicProcessState) Load() ProcessState {
	return ProcessState(a.v.Load())
}

// Store atomically stores the ProcessState value.
func (a *AtomicProcessState) Store(s ProcessState) {
	a.v.Store(int32(s))
}

// CompareAndSwap performs an atomic compare-and-swap of an old and new
// ProcessState.
func (a *AtomicProcessState) CompareAndSwap(o, n ProcessState) bool {
	return a.v.CompareAndSwap(int32(o), int32(n))
}
