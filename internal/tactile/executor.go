package tactile

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"
)

// Executor is the interface for command execution.
// All executor implementations must satisfy this interface.
type Executor interface {
	// Execute runs a command and returns a comprehensive result.
	// A non-nil error means the command was rejected before it started.
	Execute(ctx context.Context, cmd Command) (*ExecutionResult, error)

	// Capabilities returns what this executor supports.
	Capabilities() ExecutorCapabilities

	// Validate checks if a command can be executed by this executor.
	Validate(cmd Command) error
}

// auditor holds the optional audit callback shared by executor implementations.
type auditor struct {
	mu       sync.RWMutex
	callback func(AuditEvent)
}

// SetAuditCallback sets the callback for audit events.
func (a *auditor) SetAuditCallback(callback func(AuditEvent)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.callback = callback
}

func (a *auditor) emit(kind AuditEventType, name string, cmd Command, result *ExecutionResult) {
	a.mu.RLock()
	callback := a.callback
	a.mu.RUnlock()

	if callback != nil {
		callback(AuditEvent{
			Type:         kind,
			Timestamp:    time.Now(),
			Command:      cmd,
			Result:       result,
			ExecutorName: name,
		})
	}
}

// runCaptured runs execCmd under execCtx, capturing bounded output into result.
// parent is the caller's context; it tells a command timeout apart from an
// outer cancellation.
func runCaptured(parent, execCtx context.Context, execCmd *exec.Cmd, timeout time.Duration, maxOutput int64, result *ExecutionResult) error {
	var stdoutBuf, stderrBuf bytes.Buffer
	stdoutLimited := &limitedWriter{w: &stdoutBuf, max: maxOutput}
	stderrLimited := &limitedWriter{w: &stderrBuf, max: maxOutput}
	execCmd.Stdout = stdoutLimited
	execCmd.Stderr = stderrLimited

	result.StartedAt = time.Now()
	err := execCmd.Run()
	result.FinishedAt = time.Now()
	result.Duration = result.FinishedAt.Sub(result.StartedAt)

	result.Stdout = stdoutBuf.String()
	result.Stderr = stderrBuf.String()
	result.Combined = result.Stdout
	if result.Stderr != "" {
		if result.Combined != "" {
			result.Combined += "\n"
		}
		result.Combined += result.Stderr
	}

	if stdoutLimited.truncated || stderrLimited.truncated {
		result.Truncated = true
		result.TruncatedBytes = stdoutLimited.discarded + stderrLimited.discarded
	}

	switch {
	case err == nil:
		result.Success = true
		result.ExitCode = 0
	case execCtx.Err() != nil:
		// Infrastructure worked, command was killed
		result.Success = true
		result.Killed = true
		if parent.Err() == nil && errors.Is(execCtx.Err(), context.DeadlineExceeded) {
			result.TimedOut = true
			result.KillReason = fmt.Sprintf("timeout after %s", timeout)
		} else {
			result.KillReason = parent.Err().Error()
		}
	default:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			// Command ran, just returned non-zero
			result.Success = true
			result.ExitCode = exitErr.ExitCode()
			return nil
		}
		result.Success = false
		result.Error = err.Error()
		return err
	}
	return nil
}

// limitedWriter is an io.Writer that limits total bytes written.
type limitedWriter struct {
	w         io.Writer
	max       int64
	written   int64
	truncated bool
	discarded int64
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)

	if lw.written >= lw.max {
		lw.truncated = true
		lw.discarded += int64(n)
		return n, nil // Pretend we wrote it
	}

	remaining := lw.max - lw.written
	if int64(n) > remaining {
		lw.truncated = true
		lw.discarded += int64(n) - remaining
		written, err := lw.w.Write(p[:remaining])
		lw.written += int64(written)
		return n, err // Return original length to avoid "short write" errors
	}

	written, err := lw.w.Write(p)
	lw.written += int64(written)
	return written, err
}
