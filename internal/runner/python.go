// Package runner executes code artifacts in disposable Python processes and
// maps the outcome onto verdicts.
//
// Each run gets its own temporary directory holding the sanitized artifact
// under a unique name, the embedded harness, and the result record the harness
// writes back. Nothing is shared between runs or with the orchestrator.
package runner

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"mender/internal/artifact"
	"mender/internal/logging"
	"mender/internal/tactile"
)

//go:embed harness.py
var harnessSource []byte

// Options configures a PythonRunner.
type Options struct {
	// Python is the interpreter binary.
	Python string
	// Flags are passed to the interpreter before the harness path.
	Flags []string
	// Timeout bounds one artifact run.
	Timeout time.Duration
	// Sandbox selects host or container execution.
	Sandbox tactile.SandboxMode
	// Image is the container image used with SandboxDocker.
	Image string
	// Container limits, applied with SandboxDocker only. Zero disables a limit.
	MaxMemoryBytes int64
	MaxProcesses   int
	ReadOnlyRoot   bool
	NetworkAllowed bool
	// TempDir is where run directories are created; empty means os.TempDir().
	TempDir string
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		Python:  "python3",
		Flags:   []string{"-I", "-B"},
		Timeout: 10 * time.Second,
		Sandbox: tactile.SandboxNone,
	}
}

// PythonRunner runs artifacts through the embedded unittest harness.
type PythonRunner struct {
	executor tactile.Executor
	opts     Options
}

// NewPythonRunner creates a runner that executes through executor.
func NewPythonRunner(executor tactile.Executor, opts Options) *PythonRunner {
	defaults := DefaultOptions()
	if opts.Python == "" {
		opts.Python = defaults.Python
	}
	if opts.Flags == nil {
		opts.Flags = defaults.Flags
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaults.Timeout
	}
	if opts.Sandbox == "" {
		opts.Sandbox = defaults.Sandbox
	}
	return &PythonRunner{executor: executor, opts: opts}
}

// resultRecord is what harness.py writes.
type resultRecord struct {
	Status   Status `json:"status"`
	TestsRun int    `json:"tests_run"`
	Failures int    `json:"failures"`
	Details  string `json:"details"`
}

// Run executes one artifact. It never panics and never returns an error.
func (r *PythonRunner) Run(ctx context.Context, code string) (v Verdict) {
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			logging.RunnerError("runner panic recovered: %v", p)
			v = Verdict{Status: StatusError, Details: fmt.Sprintf("RuntimeError: internal runner fault: %v", p)}
		}
		v.Duration = time.Since(start)
	}()

	code = artifact.Sanitize(code)
	if !IsPython(ctx, code) {
		logging.RunnerDebug("artifact rejected by language gate (%d bytes)", len(code))
		return Verdict{Status: StatusSkipped, Details: SkippedMessage}
	}

	dir, err := os.MkdirTemp(r.opts.TempDir, "mender-run-*")
	if err != nil {
		return Verdict{Status: StatusError, Details: fmt.Sprintf("OSError: failed to create isolation unit: %v", err)}
	}
	defer removeUnit(dir)

	return r.runIn(ctx, dir, code)
}

func (r *PythonRunner) runIn(ctx context.Context, dir, code string) Verdict {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	artifactPath := filepath.Join(dir, "artifact_"+id+".py")
	harnessPath := filepath.Join(dir, "harness.py")
	resultPath := filepath.Join(dir, "result.json")
	moduleName := "mender_artifact_" + id

	if err := os.WriteFile(artifactPath, []byte(code), 0644); err != nil {
		return Verdict{Status: StatusError, Details: fmt.Sprintf("OSError: failed to write artifact: %v", err)}
	}
	if err := os.WriteFile(harnessPath, harnessSource, 0644); err != nil {
		return Verdict{Status: StatusError, Details: fmt.Sprintf("OSError: failed to write harness: %v", err)}
	}

	args := append(append([]string{}, r.opts.Flags...), harnessPath, artifactPath, resultPath, moduleName)
	cmd := tactile.Command{
		Binary:           r.opts.Python,
		Arguments:        args,
		WorkingDirectory: dir,
		Limits:           &tactile.ResourceLimits{TimeoutMs: r.opts.Timeout.Milliseconds()},
		RequestID:        id,
	}
	if r.opts.Sandbox == tactile.SandboxDocker {
		network := r.opts.NetworkAllowed
		cmd.Limits.MaxMemoryBytes = r.opts.MaxMemoryBytes
		cmd.Limits.MaxProcesses = r.opts.MaxProcesses
		cmd.Limits.NetworkAllowed = &network
		cmd.Sandbox = &tactile.SandboxConfig{
			Mode:         tactile.SandboxDocker,
			Image:        r.opts.Image,
			ReadOnlyRoot: r.opts.ReadOnlyRoot,
			AllowedPaths: []string{dir},
		}
	}

	logging.RunnerDebug("running %s as %s", filepath.Base(artifactPath), moduleName)
	res, err := r.executor.Execute(ctx, cmd)
	if err != nil {
		logging.RunnerWarn("executor rejected artifact run: %v", err)
		return Verdict{Status: StatusError, Details: fmt.Sprintf("RuntimeError: executor rejected run: %v", err)}
	}

	output := res.Output()
	if res.TimedOut {
		logging.RunnerWarn("artifact %s timed out after %s", moduleName, r.opts.Timeout)
		return Verdict{
			Status:  StatusError,
			Details: fmt.Sprintf("TimeoutError: artifact execution exceeded %s", r.opts.Timeout),
			Output:  output,
		}
	}
	if res.Killed {
		return Verdict{
			Status:  StatusError,
			Details: fmt.Sprintf("RuntimeError: artifact execution killed: %s", res.KillReason),
			Output:  output,
		}
	}

	record, err := readRecord(resultPath)
	if err != nil {
		logging.RunnerWarn("no result record from %s: %v", moduleName, err)
		return Verdict{Status: StatusError, Details: missingRecordDetails(res, err), Output: output}
	}

	logging.Runner("artifact %s: %s (%d tests)", moduleName, record.Status, record.TestsRun)
	return Verdict{
		Status:   record.Status,
		TestsRun: record.TestsRun,
		Failures: record.Failures,
		Details:  record.Details,
		Output:   output,
	}
}

func readRecord(path string) (*resultRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rec resultRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("malformed result record: %w", err)
	}
	switch rec.Status {
	case StatusPassed, StatusFailed, StatusError:
	default:
		return nil, fmt.Errorf("unexpected result status %q", rec.Status)
	}
	return &rec, nil
}

// missingRecordDetails builds the diagnostic for a run that never reported back,
// e.g. a missing interpreter or an artifact that called os._exit.
func missingRecordDetails(res *tactile.ExecutionResult, cause error) string {
	var b strings.Builder
	if res.IsError() {
		fmt.Fprintf(&b, "RuntimeError: interpreter could not be started: %s", res.Error)
		return b.String()
	}
	if out := strings.TrimSpace(res.Output()); out != "" {
		b.WriteString(out)
		b.WriteString("\n")
	}
	if res.IsNonZeroExit() {
		fmt.Fprintf(&b, "RuntimeError: harness exited with code %d without a result record (%v)", res.ExitCode, cause)
	} else {
		fmt.Fprintf(&b, "RuntimeError: harness exited cleanly without a result record (%v)", cause)
	}
	return b.String()
}

// removeAll is swapped in tests.
var removeAll = os.RemoveAll

func removeUnit(dir string) {
	if err := removeAll(dir); err != nil {
		logging.RunnerWarn("failed to remove isolation unit %s: %v", dir, err)
	}
}
