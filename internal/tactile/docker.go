package tactile

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/google/uuid"

	"mender/internal/logging"
)

// DockerExecutor executes commands inside throwaway Docker containers.
// This provides strong isolation from the host system.
type DockerExecutor struct {
	auditor
	config ExecutorConfig

	// dockerPath is the path to the docker binary
	dockerPath string

	// available is true if Docker is available on this system
	available bool
}

// NewDockerExecutor creates a new Docker executor.
func NewDockerExecutor() *DockerExecutor {
	return NewDockerExecutorWithConfig(DefaultExecutorConfig())
}

// NewDockerExecutorWithConfig creates a new Docker executor with custom config.
func NewDockerExecutorWithConfig(config ExecutorConfig) *DockerExecutor {
	e := &DockerExecutor{config: config}
	e.SetAuditCallback(config.AuditCallback)
	e.detectDocker()
	return e
}

// detectDocker checks if Docker is available.
func (e *DockerExecutor) detectDocker() {
	dockerPath, err := exec.LookPath("docker")
	if err != nil {
		e.available = false
		return
	}
	e.dockerPath = dockerPath

	// Verify docker is responsive
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, dockerPath, "version", "--format", "{{.Server.Version}}")
	if err := cmd.Run(); err != nil {
		logging.TactileDebug("docker daemon not responsive: %v", err)
		e.available = false
		return
	}

	e.available = true
}

// IsAvailable returns whether Docker is available on this system.
func (e *DockerExecutor) IsAvailable() bool {
	return e.available
}

// Capabilities returns what this executor supports.
func (e *DockerExecutor) Capabilities() ExecutorCapabilities {
	modes := []SandboxMode{}
	if e.available {
		modes = append(modes, SandboxDocker)
	}

	return ExecutorCapabilities{
		Name:                     "docker",
		Platform:                 runtime.GOOS,
		SupportedSandboxModes:    modes,
		SupportsNetworkIsolation: true,
		DefaultTimeout:           e.config.DefaultTimeout,
		MaxTimeout:               e.config.MaxTimeout,
	}
}

// Validate checks if a command can be executed.
func (e *DockerExecutor) Validate(cmd Command) error {
	if !e.available {
		return fmt.Errorf("Docker is not available on this system")
	}
	if cmd.Binary == "" {
		return fmt.Errorf("binary is required")
	}
	if cmd.Sandbox != nil && cmd.Sandbox.Mode != SandboxDocker {
		return fmt.Errorf("DockerExecutor only supports SandboxDocker mode, got %s", cmd.Sandbox.Mode)
	}
	return nil
}

// Execute runs a command inside a Docker container.
func (e *DockerExecutor) Execute(ctx context.Context, cmd Command) (*ExecutionResult, error) {
	if err := e.Validate(cmd); err != nil {
		return nil, err
	}

	cmd = e.config.Merge(cmd)
	if cmd.Sandbox == nil {
		cmd.Sandbox = &SandboxConfig{Mode: SandboxDocker}
	}
	timeout := cmd.Limits.Timeout(e.config.DefaultTimeout)

	result := &ExecutionResult{
		ExitCode:    -1,
		SandboxUsed: SandboxDocker,
	}
	e.emit(AuditEventStart, "docker", cmd, nil)

	name := containerName(cmd)
	dockerArgs := e.buildDockerArgs(cmd, name)
	logging.TactileDebug("docker %s", strings.Join(dockerArgs, " "))

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	execCmd := exec.CommandContext(execCtx, e.dockerPath, dockerArgs...)
	if cmd.Stdin != "" {
		execCmd.Stdin = strings.NewReader(cmd.Stdin)
	}
	// Killing the client leaves the container running; stop it by name.
	execCmd.Cancel = func() error {
		e.killContainer(name)
		return execCmd.Process.Kill()
	}
	execCmd.WaitDelay = e.config.WaitDelay

	if err := runCaptured(ctx, execCtx, execCmd, timeout, cmd.Limits.MaxOutputBytes, result); err != nil {
		logging.TactileError("docker run failed: %v", err)
		e.emit(AuditEventError, "docker", cmd, result)
		return result, nil
	}

	if result.Killed {
		logging.TactileWarn("Container %s killed (%s)", name, result.KillReason)
		e.emit(AuditEventKilled, "docker", cmd, result)
		return result, nil
	}

	e.emit(AuditEventComplete, "docker", cmd, result)
	return result, nil
}

func containerName(cmd Command) string {
	if cmd.RequestID != "" {
		return "mender-" + cmd.RequestID
	}
	return "mender-" + uuid.NewString()
}

func (e *DockerExecutor) killContainer(name string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if out, err := exec.CommandContext(ctx, e.dockerPath, "kill", name).CombinedOutput(); err != nil {
		logging.TactileWarn("docker kill %s: %v (%s)", name, err, strings.TrimSpace(string(out)))
	}
}

// buildDockerArgs constructs the docker run command arguments.
func (e *DockerExecutor) buildDockerArgs(cmd Command, name string) []string {
	args := []string{"run", "--rm", "--name", name}

	sandbox := cmd.Sandbox
	if sandbox == nil {
		sandbox = &SandboxConfig{}
	}

	image := sandbox.Image
	if image == "" {
		image = e.config.DockerDefaultImage
	}
	if image == "" {
		image = "python:3.12-slim"
	}

	networkMode := "none"
	if cmd.Limits != nil && cmd.Limits.NetworkAllowed != nil && *cmd.Limits.NetworkAllowed {
		networkMode = "bridge"
	}
	args = append(args, "--network", networkMode)

	if sandbox.ReadOnlyRoot {
		args = append(args, "--read-only", "--tmpfs", "/tmp:size=100m")
	}

	// Mount allowed paths read-write at the same location
	for _, path := range sandbox.AllowedPaths {
		args = append(args, "-v", fmt.Sprintf("%s:%s:rw", path, path))
	}

	if cmd.WorkingDirectory != "" && cmd.WorkingDirectory != "." {
		args = append(args, "-w", cmd.WorkingDirectory)
	}

	for _, env := range cmd.Environment {
		args = append(args, "-e", env)
	}

	if cmd.Limits != nil {
		if cmd.Limits.MaxMemoryBytes > 0 {
			args = append(args, "--memory", fmt.Sprintf("%d", cmd.Limits.MaxMemoryBytes))
		}
		if cmd.Limits.MaxProcesses > 0 {
			args = append(args, "--pids-limit", fmt.Sprintf("%d", cmd.Limits.MaxProcesses))
		}
	}

	if cmd.Stdin != "" {
		args = append(args, "-i")
	}

	args = append(args, image, cmd.Binary)
	return append(args, cmd.Arguments...)
}
