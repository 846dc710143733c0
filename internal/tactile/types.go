// Package tactile is the process execution layer of mender.
// It runs untrusted artifact code in a disposable process, either directly on
// the host or inside a Docker container, and reports what happened.
//
// Design Principles:
//   - Minimal logic: verdict interpretation happens in the runner, not here
//   - Disposable processes: one process (group) per command, killed on timeout
//   - Structured output: comprehensive execution results for the runner
//   - Audit trail: execution events for observers
package tactile

import (
	"strings"
	"time"
)

// SandboxMode defines the isolation level for command execution.
type SandboxMode string

const (
	// SandboxNone runs commands directly on the host (default).
	SandboxNone SandboxMode = "none"

	// SandboxDocker runs commands in a Docker container.
	SandboxDocker SandboxMode = "docker"
)

// ParseSandboxMode maps a config string onto a SandboxMode.
// Empty selects SandboxNone.
func ParseSandboxMode(s string) (SandboxMode, bool) {
	switch SandboxMode(strings.ToLower(strings.TrimSpace(s))) {
	case SandboxNone, "":
		return SandboxNone, true
	case SandboxDocker:
		return SandboxDocker, true
	default:
		return "", false
	}
}

// Command represents a command to be executed.
// This is the input specification for all executor types.
type Command struct {
	// Binary is the executable to run (e.g., "python3").
	Binary string `json:"binary"`

	// Arguments are the command-line arguments.
	Arguments []string `json:"arguments"`

	// WorkingDirectory is the directory to execute in.
	// If empty, uses the executor's default working directory.
	WorkingDirectory string `json:"working_directory,omitempty"`

	// Environment variables to set (in KEY=VALUE format).
	// These are merged with the executor's allowed environment.
	Environment []string `json:"environment,omitempty"`

	// Stdin provides input to the command's standard input.
	Stdin string `json:"stdin,omitempty"`

	// Limits specifies resource constraints for execution.
	Limits *ResourceLimits `json:"limits,omitempty"`

	// Sandbox specifies isolation settings.
	Sandbox *SandboxConfig `json:"sandbox,omitempty"`

	// RequestID uniquely identifies this execution request.
	RequestID string `json:"request_id,omitempty"`
}

// CommandString returns the full command as a string (for display/logging).
func (c Command) CommandString() string {
	if len(c.Arguments) == 0 {
		return c.Binary
	}
	return c.Binary + " " + strings.Join(c.Arguments, " ")
}

// ResourceLimits defines constraints on command execution.
type ResourceLimits struct {
	// TimeoutMs is the maximum execution time in milliseconds.
	// Zero means use the executor's default timeout.
	TimeoutMs int64 `json:"timeout_ms,omitempty"`

	// MaxMemoryBytes limits memory usage. Docker only.
	MaxMemoryBytes int64 `json:"max_memory_bytes,omitempty"`

	// MaxOutputBytes limits captured stdout+stderr size.
	// Zero means use the executor's default.
	MaxOutputBytes int64 `json:"max_output_bytes,omitempty"`

	// MaxProcesses limits the number of child processes. Docker only.
	MaxProcesses int `json:"max_processes,omitempty"`

	// NetworkAllowed controls whether network access is permitted.
	// Unset or false means no network. Docker only.
	NetworkAllowed *bool `json:"network_allowed,omitempty"`
}

// Timeout returns the limit as a duration, or fallback when unset.
func (l *ResourceLimits) Timeout(fallback time.Duration) time.Duration {
	if l == nil || l.TimeoutMs <= 0 {
		return fallback
	}
	return time.Duration(l.TimeoutMs) * time.Millisecond
}

// SandboxConfig specifies isolation settings for command execution.
type SandboxConfig struct {
	// Mode is the sandboxing strategy.
	Mode SandboxMode `json:"mode"`

	// Image is the Docker image to use (for Docker mode).
	Image string `json:"image,omitempty"`

	// ReadOnlyRoot makes the root filesystem read-only.
	ReadOnlyRoot bool `json:"read_only_root,omitempty"`

	// AllowedPaths are paths to mount read-write into the sandbox.
	AllowedPaths []string `json:"allowed_paths,omitempty"`
}

// ExecutionResult is the comprehensive output of command execution.
type ExecutionResult struct {
	// Success indicates whether the command completed without error.
	// Note: A command that runs but returns non-zero exit code has Success=true.
	// Success=false means the execution infrastructure failed.
	Success bool `json:"success"`

	// ExitCode is the command's exit code (-1 if not available).
	ExitCode int `json:"exit_code"`

	Stdout string `json:"stdout"`
	Stderr string `json:"stderr"`

	// Combined is stdout followed by stderr.
	Combined string `json:"combined"`

	Duration   time.Duration `json:"duration"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`

	// Killed indicates the command was forcibly terminated.
	Killed bool `json:"killed"`

	// KillReason explains why the command was killed.
	KillReason string `json:"kill_reason,omitempty"`

	// TimedOut is set when the kill was caused by the command's own timeout.
	TimedOut bool `json:"timed_out"`

	// Truncated indicates output was truncated due to size limits.
	Truncated      bool  `json:"truncated"`
	TruncatedBytes int64 `json:"truncated_bytes,omitempty"`

	// ResourceUsage contains resource consumption metrics (if available).
	ResourceUsage *ResourceUsage `json:"resource_usage,omitempty"`

	// Error contains any infrastructure-level error message.
	Error string `json:"error,omitempty"`

	// SandboxUsed indicates which sandbox mode was actually used.
	SandboxUsed SandboxMode `json:"sandbox_used"`
}

// IsError returns true if the execution failed (infrastructure error).
func (r *ExecutionResult) IsError() bool {
	return !r.Success || r.Error != ""
}

// IsNonZeroExit returns true if the command ran but returned non-zero.
func (r *ExecutionResult) IsNonZeroExit() bool {
	return r.Success && r.ExitCode != 0
}

// Output returns Combined if available, otherwise Stdout+Stderr.
func (r *ExecutionResult) Output() string {
	if r.Combined != "" {
		return r.Combined
	}
	if r.Stderr == "" {
		return r.Stdout
	}
	if r.Stdout == "" {
		return r.Stderr
	}
	return r.Stdout + "\n" + r.Stderr
}

// ResourceUsage contains metrics about resource consumption.
type ResourceUsage struct {
	UserTimeMs   int64 `json:"user_time_ms"`
	SystemTimeMs int64 `json:"system_time_ms"`
	MaxRSSBytes  int64 `json:"max_rss_bytes"`
}

// TotalCPUTimeMs returns total CPU time (user + system).
func (r *ResourceUsage) TotalCPUTimeMs() int64 {
	return r.UserTimeMs + r.SystemTimeMs
}

// ExecutorCapabilities describes what an executor can do.
type ExecutorCapabilities struct {
	Name                     string        `json:"name"`
	Platform                 string        `json:"platform"`
	SupportsResourceUsage    bool          `json:"supports_resource_usage"`
	SupportedSandboxModes    []SandboxMode `json:"supported_sandbox_modes"`
	SupportsNetworkIsolation bool          `json:"supports_network_isolation"`
	DefaultTimeout           time.Duration `json:"default_timeout"`
	MaxTimeout               time.Duration `json:"max_timeout"`
}

// AuditEventType categorizes audit events.
type AuditEventType string

const (
	AuditEventStart    AuditEventType = "start"
	AuditEventComplete AuditEventType = "complete"
	AuditEventKilled   AuditEventType = "killed"
	AuditEventError    AuditEventType = "error"
)

// AuditEvent represents one execution event.
type AuditEvent struct {
	Type         AuditEventType   `json:"type"`
	Timestamp    time.Time        `json:"timestamp"`
	Command      Command          `json:"command"`
	Result       *ExecutionResult `json:"result,omitempty"`
	ExecutorName string           `json:"executor_name"`
}

// ExecutorConfig is the configuration for creating executors.
type ExecutorConfig struct {
	// DefaultWorkingDir is used when Command.WorkingDirectory is empty.
	DefaultWorkingDir string `json:"default_working_dir"`

	// DefaultTimeout is used when no timeout is specified.
	DefaultTimeout time.Duration `json:"default_timeout"`

	// MaxTimeout caps all timeout values.
	MaxTimeout time.Duration `json:"max_timeout"`

	// WaitDelay bounds how long output pipes are drained after a kill.
	WaitDelay time.Duration `json:"wait_delay"`

	// AllowedEnvironment lists environment variables to pass through.
	AllowedEnvironment []string `json:"allowed_environment"`

	// DefaultSandbox is applied when Command.Sandbox is nil.
	DefaultSandbox *SandboxConfig `json:"default_sandbox,omitempty"`

	// MaxOutputBytes caps output capture per stream.
	MaxOutputBytes int64 `json:"max_output_bytes"`

	// AuditCallback is called for each execution event (optional).
	AuditCallback func(AuditEvent) `json:"-"`

	// DockerDefaultImage is used for Docker sandbox when no image specified.
	DockerDefaultImage string `json:"docker_default_image,omitempty"`

	// EnableResourceUsage enables collection of resource metrics.
	EnableResourceUsage bool `json:"enable_resource_usage"`
}

// DefaultExecutorConfig returns sensible defaults for artifact runs.
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		DefaultWorkingDir:   ".",
		DefaultTimeout:      10 * time.Second,
		MaxTimeout:          5 * time.Minute,
		WaitDelay:           2 * time.Second,
		MaxOutputBytes:      1 << 20,
		AllowedEnvironment:  []string{"PATH", "HOME", "LANG", "LC_ALL", "TMPDIR", "SYSTEMROOT"},
		DockerDefaultImage:  "python:3.12-slim",
		EnableResourceUsage: true,
	}
}

// Merge combines this config with command-specific settings.
// Command settings override config defaults.
func (c ExecutorConfig) Merge(cmd Command) Command {
	result := cmd

	if result.WorkingDirectory == "" {
		result.WorkingDirectory = c.DefaultWorkingDir
	}

	if result.Limits == nil {
		result.Limits = &ResourceLimits{}
	} else {
		limitsCopy := *result.Limits
		result.Limits = &limitsCopy
	}
	if result.Limits.TimeoutMs == 0 {
		result.Limits.TimeoutMs = int64(c.DefaultTimeout / time.Millisecond)
	}
	if result.Limits.MaxOutputBytes == 0 {
		result.Limits.MaxOutputBytes = c.MaxOutputBytes
	}

	// Cap timeout at max
	if c.MaxTimeout > 0 {
		maxMs := int64(c.MaxTimeout / time.Millisecond)
		if result.Limits.TimeoutMs > maxMs {
			result.Limits.TimeoutMs = maxMs
		}
	}

	if result.Sandbox == nil && c.DefaultSandbox != nil {
		sandboxCopy := *c.DefaultSandbox
		result.Sandbox = &sandboxCopy
	}

	return result
}
