// Package dispatch runs download and engine-build jobs against the
// external toolchain, one at a time. A job's output lines and its
// single terminal outcome are delivered through caller hooks; the
// caller's goroutine is never blocked by a running job.
package dispatch

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"model-engine-manager/internal/artifacts"
	"model-engine-manager/internal/catalog"
	"model-engine-manager/internal/fsio"
	"model-engine-manager/internal/toolchain"
)

type Kind string

const (
	KindDownload Kind = "download"
	KindBuild    Kind = "build"
)

type State string

const (
	StateStarting  State = "starting"
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

func (s State) Terminal() bool {
	switch s {
	case StateSucceeded, StateFailed, StateCancelled:
		return true
	default:
		return false
	}
}

// ErrJobActive is returned when a job is requested while one is
// already running. The request is rejected, never queued.
var ErrJobActive = errors.New("a job is already running")

// Spec describes one job to run.
type Spec struct {
	Kind      Kind
	Entry     catalog.Entry
	Precision artifacts.Precision // build jobs only
	DataPath  string              // rewritten calibration descriptor, int8 builds only
}

func (s Spec) Describe() string {
	if s.Kind == KindBuild {
		return fmt.Sprintf("build %s %s engine", s.Entry.ModelName(), s.Precision)
	}
	return fmt.Sprintf("download %s weights", s.Entry.ModelName())
}

func (s Spec) validate() error {
	if strings.TrimSpace(s.Entry.Family) == "" || strings.TrimSpace(s.Entry.Version) == "" {
		return fmt.Errorf("job spec has no catalog entry")
	}
	switch s.Kind {
	case KindDownload:
		return nil
	case KindBuild:
		if _, ok := artifacts.ParsePrecision(string(s.Precision)); !ok {
			return fmt.Errorf("unknown precision %q for %s", s.Precision, s.Entry.ModelName())
		}
		if s.Precision == artifacts.PrecisionINT8 && strings.TrimSpace(s.DataPath) == "" {
			return fmt.Errorf("int8 build of %s requires a calibration descriptor", s.Entry.ModelName())
		}
		return nil
	default:
		return fmt.Errorf("unknown job kind %q", s.Kind)
	}
}

// Outcome is the single terminal report for a job.
type Outcome struct {
	JobID   string
	Spec    Spec
	State   State
	Message string
	// Tail holds the last output lines when the job failed.
	Tail []string
}

func (o Outcome) Failed() bool { return o.State == StateFailed }

// Hooks receive job events. OnLine is called once per output line in
// emission order; OnDone exactly once, after the last line. Both are
// invoked from the job's worker goroutine.
type Hooks struct {
	OnLine  func(line string)
	OnState func(state State)
	OnDone  func(outcome Outcome)
}

func (h Hooks) emit(line string) {
	if h.OnLine != nil {
		h.OnLine(line)
	}
}

func (h Hooks) state(s State) {
	if h.OnState != nil {
		h.OnState(s)
	}
}

// Dispatcher enforces the single-active-job invariant and owns the
// worker goroutine for the active job.
type Dispatcher struct {
	client   toolchain.Client
	resolver artifacts.Resolver
	// stallTimeout terminates a job with no output for this long.
	// Zero disables the watchdog.
	stallTimeout time.Duration

	mu     sync.Mutex
	active *Handle
}

func New(client toolchain.Client, resolver artifacts.Resolver, stallTimeout time.Duration) *Dispatcher {
	return &Dispatcher{client: client, resolver: resolver, stallTimeout: stallTimeout}
}

// Active returns the running job handle, or nil.
func (d *Dispatcher) Active() *Handle {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active
}

// Start validates spec, reserves the job slot, and returns
// immediately. Validation errors and ErrJobActive are synchronous and
// leave no job behind; everything after spawn is reported via OnDone.
func (d *Dispatcher) Start(spec Spec, hooks Hooks) (*Handle, error) {
	if err := spec.validate(); err != nil {
		return nil, err
	}

	h := &Handle{
		ID:    uuid.NewString(),
		spec:  spec,
		state: StateStarting,
		done:  make(chan struct{}),
	}

	d.mu.Lock()
	if d.active != nil {
		d.mu.Unlock()
		return nil, ErrJobActive
	}
	d.active = h
	d.mu.Unlock()

	go d.run(h, hooks)
	return h, nil
}

func (d *Dispatcher) run(h *Handle, hooks Hooks) {
	outcome := d.execute(h, hooks)
	outcome.JobID = h.ID
	outcome.Spec = h.spec
	h.setState(outcome.State)

	d.mu.Lock()
	d.active = nil
	d.mu.Unlock()

	close(h.done)
	if hooks.OnDone != nil {
		hooks.OnDone(outcome)
	}
}

func (d *Dispatcher) execute(h *Handle, hooks Hooks) Outcome {
	spec := h.spec
	weightPath := d.resolver.WeightPath(spec.Entry)

	var args []string
	switch spec.Kind {
	case KindDownload:
		if fileExists(weightPath) {
			hooks.emit(fmt.Sprintf("weights already present: %s", weightPath))
			return Outcome{State: StateSucceeded, Message: fmt.Sprintf("%s: already present", spec.Describe())}
		}
		if err := fsio.Mkdir(d.resolver.WeightsDir); err != nil {
			return Outcome{State: StateFailed, Message: fmt.Sprintf("%s: %v", spec.Describe(), err)}
		}
		args = d.client.DownloadArgs(weightPath)
	case KindBuild:
		if !fileExists(weightPath) {
			return Outcome{
				State:   StateFailed,
				Message: fmt.Sprintf("%s: weights not found at %s; download the model first", spec.Describe(), weightPath),
			}
		}
		exportArgs, err := d.client.ExportArgs(weightPath, spec.Precision, spec.DataPath)
		if err != nil {
			return Outcome{State: StateFailed, Message: fmt.Sprintf("%s: %v", spec.Describe(), err)}
		}
		args = exportArgs
	}

	hooks.emit(fmt.Sprintf("starting %s...", spec.Describe()))

	proc, err := d.client.Start(args)
	if err != nil {
		return Outcome{State: StateFailed, Message: fmt.Sprintf("%s: %v", spec.Describe(), err)}
	}
	h.attach(proc)
	h.setState(StateRunning)
	hooks.state(StateRunning)

	var stalled atomic.Bool
	var watchdog *time.Timer
	if d.stallTimeout > 0 {
		watchdog = time.AfterFunc(d.stallTimeout, func() {
			stalled.Store(true)
			h.signalStop(proc)
		})
		defer watchdog.Stop()
	}

	res := proc.Stream(func(line string) {
		if watchdog != nil {
			watchdog.Reset(d.stallTimeout)
		}
		hooks.emit(line)
	})

	switch {
	case res.Err == nil:
		return d.finalize(spec, hooks)
	case h.cancelRequested():
		return Outcome{State: StateCancelled, Message: fmt.Sprintf("%s: cancelled", spec.Describe())}
	case stalled.Load():
		return Outcome{
			State:   StateFailed,
			Message: fmt.Sprintf("%s: no output for %s, job terminated", spec.Describe(), d.stallTimeout),
			Tail:    res.Tail,
		}
	default:
		return Outcome{
			State:   StateFailed,
			Message: fmt.Sprintf("%s: exit code %d", spec.Describe(), res.ExitCode),
			Tail:    res.Tail,
		}
	}
}

// finalize verifies the artifact the toolchain was asked for and, for
// builds, renames the generic engine output to its precision-suffixed
// name so the next status resolution sees it.
func (d *Dispatcher) finalize(spec Spec, hooks Hooks) Outcome {
	switch spec.Kind {
	case KindDownload:
		weightPath := d.resolver.WeightPath(spec.Entry)
		if !fileExists(weightPath) {
			return Outcome{
				State:   StateFailed,
				Message: fmt.Sprintf("%s: toolchain exited cleanly but %s is missing", spec.Describe(), weightPath),
			}
		}
		hooks.emit(fmt.Sprintf("weights stored at %s", weightPath))
		return Outcome{State: StateSucceeded, Message: fmt.Sprintf("%s: done", spec.Describe())}
	case KindBuild:
		target := d.resolver.EnginePath(spec.Entry, spec.Precision)
		generic := d.resolver.GenericEnginePath(spec.Entry)
		if fileExists(generic) {
			if err := os.Rename(generic, target); err != nil {
				return Outcome{
					State:   StateFailed,
					Message: fmt.Sprintf("%s: rename engine: %v", spec.Describe(), err),
				}
			}
		}
		if !fileExists(target) {
			return Outcome{
				State:   StateFailed,
				Message: fmt.Sprintf("%s: toolchain exited cleanly but no engine file was produced", spec.Describe()),
			}
		}
		hooks.emit(fmt.Sprintf("engine stored at %s", target))
		return Outcome{State: StateSucceeded, Message: fmt.Sprintf("%s: done", spec.Describe())}
	default:
		return Outcome{State: StateFailed, Message: fmt.Sprintf("unknown job kind %q", spec.Kind)}
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
