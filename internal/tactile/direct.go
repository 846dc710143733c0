package tactile

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"mender/internal/logging"
)

// DirectExecutor executes commands directly on the host using os/exec.
// Each command runs in its own process group, which is killed as a unit when
// the timeout fires.
type DirectExecutor struct {
	auditor
	config ExecutorConfig
}

// NewDirectExecutor creates a new direct executor with default config.
func NewDirectExecutor() *DirectExecutor {
	return NewDirectExecutorWithConfig(DefaultExecutorConfig())
}

// NewDirectExecutorWithConfig creates a new direct executor with custom config.
func NewDirectExecutorWithConfig(config ExecutorConfig) *DirectExecutor {
	logging.TactileDebug("Creating DirectExecutor: timeout=%s, maxOutput=%d bytes",
		config.DefaultTimeout, config.MaxOutputBytes)
	e := &DirectExecutor{config: config}
	e.SetAuditCallback(config.AuditCallback)
	return e
}

// Capabilities returns what this executor supports.
func (e *DirectExecutor) Capabilities() ExecutorCapabilities {
	return ExecutorCapabilities{
		Name:                  "direct",
		Platform:              runtime.GOOS,
		SupportsResourceUsage: runtime.GOOS != "windows",
		SupportedSandboxModes: []SandboxMode{SandboxNone},
		DefaultTimeout:        e.config.DefaultTimeout,
		MaxTimeout:            e.config.MaxTimeout,
	}
}

// Validate checks if a command can be executed.
func (e *DirectExecutor) Validate(cmd Command) error {
	if cmd.Binary == "" {
		return fmt.Errorf("binary is required")
	}
	if cmd.Sandbox != nil && cmd.Sandbox.Mode != SandboxNone && cmd.Sandbox.Mode != "" {
		return fmt.Errorf("DirectExecutor only supports SandboxNone, got %s", cmd.Sandbox.Mode)
	}
	return nil
}

// Execute runs a command directly on the host.
func (e *DirectExecutor) Execute(ctx context.Context, cmd Command) (*ExecutionResult, error) {
	timer := logging.StartTimer(logging.CategoryTactile, "Direct command execution")
	defer timer.Stop()

	if err := e.Validate(cmd); err != nil {
		logging.TactileWarn("Command validation failed: %s - %v", cmd.CommandString(), err)
		return nil, err
	}

	cmd = e.config.Merge(cmd)
	timeout := cmd.Limits.Timeout(e.config.DefaultTimeout)

	logging.TactileDebug("Executing: %s (dir=%s, timeout=%s)", cmd.CommandString(), cmd.WorkingDirectory, timeout)

	result := &ExecutionResult{
		ExitCode:    -1,
		SandboxUsed: SandboxNone,
	}
	e.emit(AuditEventStart, "direct", cmd, nil)

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	execCmd := exec.CommandContext(execCtx, cmd.Binary, cmd.Arguments...)
	execCmd.Dir = cmd.WorkingDirectory
	execCmd.Env = e.buildEnvironment(cmd.Environment)
	if cmd.Stdin != "" {
		execCmd.Stdin = strings.NewReader(cmd.Stdin)
	}

	// Kill the whole group so grandchildren can't hold the pipes open.
	setupProcessGroup(execCmd)
	execCmd.Cancel = func() error { return killProcessGroup(execCmd) }
	execCmd.WaitDelay = e.config.WaitDelay

	if err := runCaptured(ctx, execCtx, execCmd, timeout, cmd.Limits.MaxOutputBytes, result); err != nil {
		logging.TactileError("Command failed: %s - %v", cmd.Binary, err)
		e.emit(AuditEventError, "direct", cmd, result)
		return result, nil
	}

	if result.Truncated {
		logging.TactileWarn("Command output truncated: %d bytes discarded", result.TruncatedBytes)
	}

	if e.config.EnableResourceUsage {
		result.ResourceUsage = getProcessResourceUsage(execCmd)
	}

	if result.Killed {
		logging.TactileWarn("Command killed (%s): %s", result.KillReason, cmd.Binary)
		e.emit(AuditEventKilled, "direct", cmd, result)
		return result, nil
	}

	e.emit(AuditEventComplete, "direct", cmd, result)
	logging.Tactile("Command completed: %s -> exit=%d, duration=%s, output=%d bytes",
		cmd.Binary, result.ExitCode, result.Duration, len(result.Combined))

	return result, nil
}

// buildEnvironment creates the environment variable list.
func (e *DirectExecutor) buildEnvironment(cmdEnv []string) []string {
	env := make([]string, 0, len(e.config.AllowedEnvironment)+len(cmdEnv))
	for _, key := range e.config.AllowedEnvironment {
		if val := os.Getenv(key); val != "" {
			env = append(env, key+"="+val)
		}
	}
	return append(env, cmdEnv...)
}
