package toolchain

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"model-engine-manager/internal/artifacts"
)

func installFakeBinary(t *testing.T, name, script string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/usr/bin/env bash\n"+script), 0o755); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PATH", dir+":"+os.Getenv("PATH"))
}

func TestExportArgsPerPrecision(t *testing.T) {
	c := Client{Device: "cuda"}

	args, err := c.ExportArgs("/w/yolov8n.pt", artifacts.PrecisionFP32, "")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"export", "model=/w/yolov8n.pt", "format=engine", "device=cuda"}
	if !reflect.DeepEqual(args, want) {
		t.Fatalf("fp32 args: %v", args)
	}

	args, err = c.ExportArgs("/w/yolov8n.pt", artifacts.PrecisionFP16, "")
	if err != nil {
		t.Fatal(err)
	}
	if args[len(args)-1] != "half" {
		t.Fatalf("fp16 args missing half: %v", args)
	}

	args, err = c.ExportArgs("/w/yolov8n.pt", artifacts.PrecisionINT8, "/d/cal.resolved.yaml")
	if err != nil {
		t.Fatal(err)
	}
	if args[len(args)-2] != "int8" || args[len(args)-1] != "data=/d/cal.resolved.yaml" {
		t.Fatalf("int8 args: %v", args)
	}
}

func TestExportArgsINT8RequiresDescriptor(t *testing.T) {
	c := Client{}
	if _, err := c.ExportArgs("/w/m.pt", artifacts.PrecisionINT8, "  "); err == nil {
		t.Fatal("expected error for int8 without descriptor")
	}
}

func TestDownloadArgs(t *testing.T) {
	c := Client{}
	want := []string{"download", "model=/w/yolov8n.pt"}
	if got := c.DownloadArgs("/w/yolov8n.pt"); !reflect.DeepEqual(got, want) {
		t.Fatalf("download args: %v", got)
	}
}

func TestStreamDeliversLinesInOrder(t *testing.T) {
	installFakeBinary(t, "yolo", `echo a
echo b >&2
echo c
exit 0
`)

	proc, err := Client{}.Start([]string{"export"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	var lines []string
	res := proc.Stream(func(line string) {
		lines = append(lines, line)
	})
	if res.Err != nil {
		t.Fatalf("unexpected failure: %v", res.Err)
	}
	if res.ExitCode != 0 {
		t.Fatalf("exit code: %d", res.ExitCode)
	}
	if !reflect.DeepEqual(lines, []string{"a", "b", "c"}) {
		t.Fatalf("lines out of order or dropped: %v", lines)
	}
}

func TestStreamCapturesTailOnFailure(t *testing.T) {
	installFakeBinary(t, "yolo", `echo starting
echo "CUDA out of memory" >&2
exit 3
`)

	proc, err := Client{TailLines: 10}.Start([]string{"export"})
	if err != nil {
		t.Fatal(err)
	}
	res := proc.Stream(nil)
	if res.Err == nil {
		t.Fatal("expected failure")
	}
	if res.ExitCode != 3 {
		t.Fatalf("exit code: %d", res.ExitCode)
	}
	joined := strings.Join(res.Tail, "\n")
	if !strings.Contains(joined, "CUDA out of memory") {
		t.Fatalf("tail missing diagnostics: %q", joined)
	}
}

func TestStreamTailIsBounded(t *testing.T) {
	installFakeBinary(t, "yolo", `for i in $(seq 1 100); do echo "line $i"; done
exit 1
`)

	proc, err := Client{TailLines: 5}.Start(nil)
	if err != nil {
		t.Fatal(err)
	}
	res := proc.Stream(nil)
	if len(res.Tail) != 5 {
		t.Fatalf("tail length: %d", len(res.Tail))
	}
	if res.Tail[4] != "line 100" {
		t.Fatalf("tail must keep the last lines: %v", res.Tail)
	}
}

func TestStreamSplitsCarriageReturnProgress(t *testing.T) {
	installFakeBinary(t, "yolo", `printf '10%%\r20%%\r30%%\n'
exit 0
`)

	proc, err := Client{}.Start(nil)
	if err != nil {
		t.Fatal(err)
	}
	var lines []string
	res := proc.Stream(func(line string) { lines = append(lines, line) })
	if res.Err != nil {
		t.Fatal(res.Err)
	}
	if !reflect.DeepEqual(lines, []string{"10%", "20%", "30%"}) {
		t.Fatalf("CR progress not split: %v", lines)
	}
}

func TestStartMissingBinary(t *testing.T) {
	c := Client{Binary: fmt.Sprintf("definitely-missing-%d", os.Getpid())}
	if _, err := c.Start([]string{"export"}); err == nil {
		t.Fatal("expected spawn error for missing binary")
	}
}

func TestDependencyStatus(t *testing.T) {
	c := Client{Binary: "definitely-missing-toolchain"}
	if c.DependencyStatus().ToolchainFound {
		t.Fatal("expected toolchain to be missing")
	}
	if err := c.CheckDependencies(); err == nil {
		t.Fatal("expected dependency error")
	}

	installFakeBinary(t, "yolo", "exit 0\n")
	found := Client{}
	report := found.DependencyStatus()
	if !report.ToolchainFound || report.ToolchainPath == "" {
		t.Fatalf("expected fake yolo on PATH: %+v", report)
	}
}
