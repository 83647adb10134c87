// Package session holds the mutable control-surface state: the
// selected catalog entry, its artifact status, and the active job.
// A Session has exactly one owner goroutine (the control loop). Worker
// goroutines never touch session fields; they deliver LogEvent,
// StateEvent and DoneEvent values over the Events channel, and the
// owner applies them with Apply.
package session

import (
	"fmt"

	"model-engine-manager/internal/artifacts"
	"model-engine-manager/internal/calibration"
	"model-engine-manager/internal/catalog"
	"model-engine-manager/internal/dispatch"
)

// Event is a worker-to-owner notification. Delivery order matches
// emission order; DoneEvent for a job always follows its last
// LogEvent.
type Event interface{ isEvent() }

type LogEvent struct {
	Line string
}

type StateEvent struct {
	State dispatch.State
}

type DoneEvent struct {
	Outcome dispatch.Outcome
}

func (LogEvent) isEvent()   {}
func (StateEvent) isEvent() {}
func (DoneEvent) isEvent()  {}

type Session struct {
	entries    []catalog.Entry
	resolver   artifacts.Resolver
	dispatcher *dispatch.Dispatcher

	events chan Event

	selected int // index into entries, -1 for none
	status   artifacts.Status
	active   *dispatch.Handle
}

func New(entries []catalog.Entry, resolver artifacts.Resolver, dispatcher *dispatch.Dispatcher) *Session {
	return &Session{
		entries:    entries,
		resolver:   resolver,
		dispatcher: dispatcher,
		events:     make(chan Event, 256),
		selected:   -1,
	}
}

// Events is the worker-to-owner channel. Exactly one goroutine (the
// owner) should receive from it.
func (s *Session) Events() <-chan Event { return s.events }

func (s *Session) Entries() []catalog.Entry { return s.entries }

func (s *Session) Busy() bool { return s.active != nil }

func (s *Session) ActiveJob() *dispatch.Handle { return s.active }

// Selected returns the current entry, if any.
func (s *Session) Selected() (catalog.Entry, bool) {
	if s.selected < 0 || s.selected >= len(s.entries) {
		return catalog.Entry{}, false
	}
	return s.entries[s.selected], true
}

// Status is the artifact status of the selected entry as of the last
// refresh.
func (s *Session) Status() artifacts.Status { return s.status }

// TrySelect changes the selection and refreshes its status. Selection
// is allowed while a job runs; the job keeps its own target entry.
func (s *Session) TrySelect(index int) error {
	if index < 0 || index >= len(s.entries) {
		return fmt.Errorf("no catalog entry at position %d", index)
	}
	s.selected = index
	s.RefreshStatus()
	return nil
}

// RefreshStatus re-probes the filesystem for the selected entry.
func (s *Session) RefreshStatus() {
	if entry, ok := s.Selected(); ok {
		s.status = s.resolver.Resolve(entry)
	} else {
		s.status = artifacts.Status{}
	}
}

// StartDownload dispatches a weight download for the selected entry.
func (s *Session) StartDownload() error {
	entry, ok := s.Selected()
	if !ok {
		return fmt.Errorf("no model selected")
	}
	return s.startJob(dispatch.Spec{Kind: dispatch.KindDownload, Entry: entry})
}

// StartBuild dispatches an engine build for the selected entry. For
// int8 the calibration descriptor is rewritten first; a descriptor
// that cannot be parsed fails here, synchronously, with no job
// started.
func (s *Session) StartBuild(precision artifacts.Precision, descriptorPath string) error {
	entry, ok := s.Selected()
	if !ok {
		return fmt.Errorf("no model selected")
	}

	spec := dispatch.Spec{Kind: dispatch.KindBuild, Entry: entry, Precision: precision}
	if precision == artifacts.PrecisionINT8 {
		if descriptorPath == "" {
			return fmt.Errorf("int8 build of %s requires a calibration descriptor", entry.ModelName())
		}
		if s.Busy() {
			// Reject before touching the descriptor on disk.
			return dispatch.ErrJobActive
		}
		rewritten, err := calibration.Rewrite(descriptorPath)
		if err != nil {
			return err
		}
		spec.DataPath = rewritten
	}
	return s.startJob(spec)
}

func (s *Session) startJob(spec dispatch.Spec) error {
	if s.Busy() {
		return dispatch.ErrJobActive
	}

	handle, err := s.dispatcher.Start(spec, dispatch.Hooks{
		OnLine: func(line string) {
			s.events <- LogEvent{Line: line}
		},
		OnState: func(state dispatch.State) {
			s.events <- StateEvent{State: state}
		},
		OnDone: func(outcome dispatch.Outcome) {
			s.events <- DoneEvent{Outcome: outcome}
		},
	})
	if err != nil {
		return err
	}
	s.active = handle
	return nil
}

// CancelActive requests cancellation of the running job, if any.
func (s *Session) CancelActive() error {
	if s.active == nil {
		return fmt.Errorf("no job is running")
	}
	s.active.Cancel()
	return nil
}

// Apply folds a received event into the session. Must be called from
// the owner goroutine only.
func (s *Session) Apply(ev Event) {
	done, ok := ev.(DoneEvent)
	if !ok {
		return
	}
	if s.active != nil && s.active.ID == done.Outcome.JobID {
		s.active = nil
	}
	s.RefreshStatus()
}
