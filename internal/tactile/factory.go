package tactile

import (
	"context"
	"fmt"
	"sync"
)

// CompositeExecutor routes commands to different executors based on sandbox mode.
type CompositeExecutor struct {
	mu sync.RWMutex

	// defaultExecutor is used when no sandbox is specified
	defaultExecutor Executor

	// executors maps sandbox modes to their executors
	executors map[SandboxMode]Executor

	config ExecutorConfig
}

// NewCompositeExecutorWithConfig creates a composite executor with the direct
// executor registered and Docker added when the daemon answers.
func NewCompositeExecutorWithConfig(config ExecutorConfig) *CompositeExecutor {
	ce := &CompositeExecutor{
		config:    config,
		executors: make(map[SandboxMode]Executor),
	}

	direct := NewDirectExecutorWithConfig(config)
	ce.defaultExecutor = direct
	ce.executors[SandboxNone] = direct

	if docker := NewDockerExecutorWithConfig(config); docker.IsAvailable() {
		ce.executors[SandboxDocker] = docker
	}

	return ce
}

// SetAuditCallback sets the callback for audit events on all executors.
func (ce *CompositeExecutor) SetAuditCallback(callback func(AuditEvent)) {
	ce.mu.Lock()
	defer ce.mu.Unlock()

	for _, exec := range ce.executors {
		if audited, ok := exec.(interface{ SetAuditCallback(func(AuditEvent)) }); ok {
			audited.SetAuditCallback(callback)
		}
	}
}

// Capabilities returns the combined capabilities of all registered executors.
func (ce *CompositeExecutor) Capabilities() ExecutorCapabilities {
	ce.mu.RLock()
	defer ce.mu.RUnlock()

	caps := ExecutorCapabilities{
		Name:           "composite",
		DefaultTimeout: ce.config.DefaultTimeout,
		MaxTimeout:     ce.config.MaxTimeout,
	}
	for mode, exec := range ce.executors {
		caps.SupportedSandboxModes = append(caps.SupportedSandboxModes, mode)
		execCaps := exec.Capabilities()
		caps.SupportsResourceUsage = caps.SupportsResourceUsage || execCaps.SupportsResourceUsage
		caps.SupportsNetworkIsolation = caps.SupportsNetworkIsolation || execCaps.SupportsNetworkIsolation
	}
	return caps
}

// Validate checks if a command can be executed.
func (ce *CompositeExecutor) Validate(cmd Command) error {
	executor, err := ce.selectExecutor(cmd)
	if err != nil {
		return err
	}
	return executor.Validate(cmd)
}

// Execute routes the command to the appropriate executor and executes it.
func (ce *CompositeExecutor) Execute(ctx context.Context, cmd Command) (*ExecutionResult, error) {
	executor, err := ce.selectExecutor(cmd)
	if err != nil {
		return nil, err
	}
	return executor.Execute(ctx, cmd)
}

// selectExecutor chooses the executor for the command's sandbox mode.
// An explicitly requested mode never silently falls back to the host.
func (ce *CompositeExecutor) selectExecutor(cmd Command) (Executor, error) {
	ce.mu.RLock()
	defer ce.mu.RUnlock()

	mode := SandboxNone
	if cmd.Sandbox != nil && cmd.Sandbox.Mode != "" {
		mode = cmd.Sandbox.Mode
	} else if ce.config.DefaultSandbox != nil && ce.config.DefaultSandbox.Mode != "" {
		mode = ce.config.DefaultSandbox.Mode
	}

	if executor, exists := ce.executors[mode]; exists {
		return executor, nil
	}
	if mode == SandboxNone {
		return ce.defaultExecutor, nil
	}
	return nil, fmt.Errorf("no executor available for sandbox mode: %s", mode)
}

// NewExecutor creates the executor for a sandbox mode.
func NewExecutor(mode SandboxMode, config ExecutorConfig) (Executor, error) {
	switch mode {
	case SandboxNone, "":
		return NewDirectExecutorWithConfig(config), nil
	case SandboxDocker:
		if config.DefaultSandbox == nil {
			config.DefaultSandbox = &SandboxConfig{Mode: SandboxDocker}
		}
		composite := NewCompositeExecutorWithConfig(config)
		if _, err := composite.selectExecutor(Command{}); err != nil {
			return nil, fmt.Errorf("docker sandbox requested: %w", err)
		}
		return composite, nil
	default:
		return nil, fmt.Errorf("unknown sandbox mode: %s", mode)
	}
}
