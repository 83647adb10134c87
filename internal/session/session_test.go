package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"model-engine-manager/internal/artifacts"
	"model-engine-manager/internal/calibration"
	"model-engine-manager/internal/catalog"
	"model-engine-manager/internal/dispatch"
	"model-engine-manager/internal/toolchain"
)

var testEntries = []catalog.Entry{
	{Family: "yolo", Version: "v8n", Task: catalog.TaskDetect},
	{Family: "yolo", Version: "v8s", Task: catalog.TaskSegment},
}

func installFakeToolchain(t *testing.T, script string) {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "yolo"), []byte("#!/usr/bin/env bash\n"+script), 0o755); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PATH", dir+":"+os.Getenv("PATH"))
}

func newTestSession(t *testing.T) (*Session, artifacts.Resolver) {
	t.Helper()
	resolver := artifacts.Resolver{WeightsDir: t.TempDir()}
	d := dispatch.New(toolchain.Client{}, resolver, 0)
	return New(testEntries, resolver, d), resolver
}

// drainUntilDone applies events until the job's DoneEvent arrives.
func drainUntilDone(t *testing.T, s *Session) dispatch.Outcome {
	t.Helper()
	deadline := time.After(15 * time.Second)
	for {
		select {
		case ev := <-s.Events():
			s.Apply(ev)
			if done, ok := ev.(DoneEvent); ok {
				return done.Outcome
			}
		case <-deadline:
			t.Fatal("timed out waiting for DoneEvent")
		}
	}
}

func TestTrySelectRefreshesStatus(t *testing.T) {
	s, resolver := newTestSession(t)
	if err := os.WriteFile(resolver.WeightPath(testEntries[1]), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := s.TrySelect(1); err != nil {
		t.Fatalf("select: %v", err)
	}
	if !s.Status().Weights {
		t.Fatal("status not refreshed on selection")
	}

	if err := s.TrySelect(0); err != nil {
		t.Fatal(err)
	}
	if s.Status().Weights {
		t.Fatal("status leaked across selections")
	}

	if err := s.TrySelect(7); err == nil {
		t.Fatal("out-of-range selection must fail")
	}
}

func TestStartDownloadWithoutSelection(t *testing.T) {
	s, _ := newTestSession(t)
	if err := s.StartDownload(); err == nil {
		t.Fatal("expected error with no selection")
	}
}

func TestBusyRejectionLeavesActiveJobUnchanged(t *testing.T) {
	s, resolver := newTestSession(t)
	if err := os.WriteFile(resolver.WeightPath(testEntries[0]), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	installFakeToolchain(t, `trap 'exit 130' INT TERM
echo running
for i in $(seq 1 200); do sleep 0.1; done
`)

	if err := s.TrySelect(0); err != nil {
		t.Fatal(err)
	}
	if err := s.StartBuild(artifacts.PrecisionFP16, ""); err != nil {
		t.Fatalf("first job: %v", err)
	}
	first := s.ActiveJob()

	err := s.StartDownload()
	if !errors.Is(err, dispatch.ErrJobActive) {
		t.Fatalf("expected ErrJobActive, got %v", err)
	}
	if s.ActiveJob() != first {
		t.Fatal("active job changed by rejected request")
	}

	if err := s.CancelActive(); err != nil {
		t.Fatal(err)
	}
	outcome := drainUntilDone(t, s)
	if outcome.State != dispatch.StateCancelled {
		t.Fatalf("expected cancelled, got %s", outcome.State)
	}
	if s.Busy() {
		t.Fatal("session still busy after DoneEvent applied")
	}
}

func TestDownloadCompletionRefreshesStatus(t *testing.T) {
	s, resolver := newTestSession(t)
	installFakeToolchain(t, fmt.Sprintf(`echo downloading
touch %q
exit 0
`, resolver.WeightPath(testEntries[0])))

	if err := s.TrySelect(0); err != nil {
		t.Fatal(err)
	}
	if s.Status().Weights {
		t.Fatal("weights must start absent")
	}
	if err := s.StartDownload(); err != nil {
		t.Fatal(err)
	}

	outcome := drainUntilDone(t, s)
	if outcome.State != dispatch.StateSucceeded {
		t.Fatalf("expected success, got %s (%s)", outcome.State, outcome.Message)
	}
	if !s.Status().Weights {
		t.Fatal("status not refreshed after download")
	}
}

func TestLogEventsArriveInOrderBeforeDone(t *testing.T) {
	s, resolver := newTestSession(t)
	if err := os.WriteFile(resolver.WeightPath(testEntries[0]), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	installFakeToolchain(t, fmt.Sprintf(`echo a
echo b
echo c
touch %q
exit 0
`, resolver.GenericEnginePath(testEntries[0])))

	if err := s.TrySelect(0); err != nil {
		t.Fatal(err)
	}
	if err := s.StartBuild(artifacts.PrecisionFP32, ""); err != nil {
		t.Fatal(err)
	}

	var lines []string
	deadline := time.After(15 * time.Second)
	for {
		var ev Event
		select {
		case ev = <-s.Events():
		case <-deadline:
			t.Fatal("timed out")
		}
		s.Apply(ev)
		if log, ok := ev.(LogEvent); ok {
			lines = append(lines, log.Line)
		}
		if _, ok := ev.(DoneEvent); ok {
			break
		}
	}

	var got []string
	for _, l := range lines {
		if l == "a" || l == "b" || l == "c" {
			got = append(got, l)
		}
	}
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Fatalf("log lines out of order or dropped: %v", lines)
	}
}

func TestINT8BuildRequiresDescriptor(t *testing.T) {
	s, resolver := newTestSession(t)
	if err := os.WriteFile(resolver.WeightPath(testEntries[0]), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := s.TrySelect(0); err != nil {
		t.Fatal(err)
	}
	if err := s.StartBuild(artifacts.PrecisionINT8, ""); err == nil {
		t.Fatal("int8 without descriptor must fail synchronously")
	}
	if s.Busy() {
		t.Fatal("no job must be started")
	}
}

func TestINT8BuildBadDescriptorFailsBeforeJobStart(t *testing.T) {
	s, resolver := newTestSession(t)
	if err := os.WriteFile(resolver.WeightPath(testEntries[0]), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	bad := filepath.Join(t.TempDir(), "cal.yaml")
	if err := os.WriteFile(bad, []byte("train: [unclosed\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := s.TrySelect(0); err != nil {
		t.Fatal(err)
	}
	err := s.StartBuild(artifacts.PrecisionINT8, bad)
	var parseErr *calibration.ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("expected ParseError, got %v", err)
	}
	if s.Busy() {
		t.Fatal("no job must be started on descriptor error")
	}
}

func TestCancelWithoutActiveJob(t *testing.T) {
	s, _ := newTestSession(t)
	if err := s.CancelActive(); err == nil {
		t.Fatal("expected error when no job is running")
	}
}
