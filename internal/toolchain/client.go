// Package toolchain wraps the external export toolchain binary. It
// builds the invocation argv for download and export operations and
// streams the process output one line at a time, in emission order,
// with stderr merged into stdout the way the toolchain interleaves
// progress and diagnostics.
package toolchain

import (
	"bufio"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"model-engine-manager/internal/artifacts"
)

const (
	DefaultBinary = "yolo"
	DefaultDevice = "cuda"
)

type Client struct {
	// Binary overrides the toolchain executable name; empty means
	// DefaultBinary resolved via PATH.
	Binary string
	// Device is passed to export invocations (e.g. cuda, cpu).
	Device string
	// TailLines bounds the diagnostic tail kept per run.
	TailLines int
}

func (c Client) binaryName() string {
	if strings.TrimSpace(c.Binary) != "" {
		return strings.TrimSpace(c.Binary)
	}
	return DefaultBinary
}

func (c Client) device() string {
	if strings.TrimSpace(c.Device) != "" {
		return strings.TrimSpace(c.Device)
	}
	return DefaultDevice
}

func (c Client) tailLines() int {
	if c.TailLines > 0 {
		return c.TailLines
	}
	return 40
}

type DependencyReport struct {
	ToolchainFound bool   `json:"toolchain_found"`
	ToolchainPath  string `json:"toolchain_path,omitempty"`
}

func (c Client) DependencyStatus() DependencyReport {
	report := DependencyReport{}
	if path, err := exec.LookPath(c.binaryName()); err == nil {
		report.ToolchainFound = true
		report.ToolchainPath = path
	}
	return report
}

func (c Client) CheckDependencies() error {
	if !c.DependencyStatus().ToolchainFound {
		return fmt.Errorf("missing dependency: %s is not installed or not on PATH", c.binaryName())
	}
	return nil
}

// DownloadArgs builds the argv tail for fetching raw weights to
// weightPath. The toolchain creates the file in place on success.
func (c Client) DownloadArgs(weightPath string) []string {
	return []string{"download", fmt.Sprintf("model=%s", weightPath)}
}

// ExportArgs builds the argv tail for an engine export. INT8 exports
// require a calibration descriptor path.
func (c Client) ExportArgs(weightPath string, precision artifacts.Precision, dataPath string) ([]string, error) {
	args := []string{
		"export",
		fmt.Sprintf("model=%s", weightPath),
		"format=engine",
		fmt.Sprintf("device=%s", c.device()),
	}
	switch precision {
	case artifacts.PrecisionFP32:
	case artifacts.PrecisionFP16:
		args = append(args, "half")
	case artifacts.PrecisionINT8:
		if strings.TrimSpace(dataPath) == "" {
			return nil, fmt.Errorf("int8 export requires a calibration descriptor")
		}
		args = append(args, "int8", fmt.Sprintf("data=%s", dataPath))
	default:
		return nil, fmt.Errorf("unknown precision %q", precision)
	}
	return args, nil
}

// Process is one spawned toolchain invocation. Its merged output pipe
// is owned by Stream and closed on every exit path.
type Process struct {
	cmd       *exec.Cmd
	out       *os.File
	tailLines int
}

// Result is the terminal outcome of a Process.
type Result struct {
	ExitCode int
	Err      error
	// Tail holds the last lines of merged output for diagnostics.
	Tail []string
}

// Start spawns the toolchain with the given argv tail. Stdout and
// stderr share one pipe so line order matches emission order across
// both streams.
func (c Client) Start(args []string) (*Process, error) {
	cmd := exec.Command(c.binaryName(), args...)

	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("setup output pipe: %w", err)
	}
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		_ = pr.Close()
		_ = pw.Close()
		return nil, fmt.Errorf("start %s: %w", c.binaryName(), err)
	}
	// The child holds its own copy of the write end; ours must go so
	// the read side sees EOF when the child exits.
	_ = pw.Close()

	return &Process{cmd: cmd, out: pr, tailLines: c.tailLines()}, nil
}

// Stream reads merged output until EOF, calling onLine for every line
// in emission order, then reaps the process. It must be called exactly
// once per Process; it releases the output pipe on all paths.
func (p *Process) Stream(onLine func(line string)) Result {
	defer func() {
		_ = p.out.Close()
	}()

	tail := make([]string, 0, p.tailLines)
	scanner := bufio.NewScanner(p.out)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)
	scanner.Split(splitByNewlineOrCR)
	for scanner.Scan() {
		line := scanner.Text()
		tail = appendTail(tail, p.tailLines, line)
		if onLine != nil {
			onLine(line)
		}
	}

	err := p.cmd.Wait()
	code := 0
	if p.cmd.ProcessState != nil {
		code = p.cmd.ProcessState.ExitCode()
	}
	if err != nil {
		err = fmt.Errorf("%s: %w", p.cmd.Path, err)
	}
	return Result{ExitCode: code, Err: err, Tail: tail}
}

// Terminate asks the process to stop. Best effort: the toolchain may
// ignore the signal mid-kernel-build.
func (p *Process) Terminate() error {
	if p.cmd.Process == nil {
		return nil
	}
	return p.cmd.Process.Signal(os.Interrupt)
}

// Kill forcibly ends the process.
func (p *Process) Kill() error {
	if p.cmd.Process == nil {
		return nil
	}
	return p.cmd.Process.Kill()
}

// splitByNewlineOrCR treats both \n and \r as line boundaries so
// carriage-return progress updates become individual lines.
func splitByNewlineOrCR(data []byte, atEOF bool) (advance int, token []byte, err error) {
	for i := 0; i < len(data); i++ {
		if data[i] == '\n' || data[i] == '\r' {
			if i == 0 {
				return 1, nil, nil
			}
			return i + 1, data[:i], nil
		}
	}
	if atEOF && len(data) > 0 {
		return len(data), data, nil
	}
	return 0, nil, nil
}

func appendTail(tail []string, limit int, line string) []string {
	if limit <= 0 {
		return tail
	}
	if len(tail) == limit {
		copy(tail, tail[1:])
		tail = tail[:limit-1]
	}
	return append(tail, line)
}
