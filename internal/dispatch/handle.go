package dispatch

import (
	"sync"
	"time"

	"model-engine-manager/internal/toolchain"
)

// killGrace is how long a signalled process gets before a hard kill.
const killGrace = 5 * time.Second

// Handle identifies one in-flight job. Cancel is safe from any
// goroutine; everything else is read-only.
type Handle struct {
	ID string

	spec Spec
	done chan struct{}

	mu     sync.Mutex
	state  State
	proc   *toolchain.Process
	cancel bool
}

func (h *Handle) Spec() Spec { return h.spec }

// Done is closed once the job reaches a terminal state, just before
// OnDone fires.
func (h *Handle) Done() <-chan struct{} { return h.done }

func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

func (h *Handle) setState(s State) {
	h.mu.Lock()
	h.state = s
	h.mu.Unlock()
}

// Cancel requests termination. Best effort: the process may ignore the
// signal, in which case it is killed after killGrace. OnDone still
// fires exactly once, with a cancellation outcome if the job did not
// finish naturally first.
func (h *Handle) Cancel() {
	h.mu.Lock()
	h.cancel = true
	proc := h.proc
	h.mu.Unlock()

	if proc != nil {
		h.signalStop(proc)
	}
	// If the process has not spawned yet, attach handles the signal.
}

func (h *Handle) cancelRequested() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cancel
}

// attach records the spawned process. A cancel that raced the spawn is
// applied immediately.
func (h *Handle) attach(proc *toolchain.Process) {
	h.mu.Lock()
	h.proc = proc
	cancelled := h.cancel
	h.mu.Unlock()

	if cancelled {
		h.signalStop(proc)
	}
}

func (h *Handle) signalStop(proc *toolchain.Process) {
	_ = proc.Terminate()
	go func() {
		select {
		case <-h.done:
		case <-time.After(killGrace):
			_ = proc.Kill()
		}
	}()
}
