package config

import "runtime"

// ExecutionConfig configures the isolation runner and its executor.
type ExecutionConfig struct {
	// Python interpreter used to run artifacts
	Python string `yaml:"python" json:"python,omitempty"`

	// Extra interpreter flags placed before the harness path
	PythonFlags []string `yaml:"python_flags" json:"python_flags,omitempty"`

	// Per-artifact timeout (Go duration string)
	Timeout string `yaml:"timeout" json:"timeout,omitempty"`

	// Maximum captured stdout+stderr per run
	MaxOutputBytes int64 `yaml:"max_output_bytes" json:"max_output_bytes,omitempty"`

	// Concurrent runs per round; 0 means runtime.NumCPU()
	Parallelism int `yaml:"parallelism" json:"parallelism,omitempty"`

	// Isolation mode: "none" (host process) or "docker"
	Sandbox string `yaml:"sandbox" json:"sandbox,omitempty"`

	// Docker image used when Sandbox is "docker"
	DockerImage string `yaml:"docker_image" json:"docker_image,omitempty"`

	// Container limits, applied only when Sandbox is "docker". Zero disables a limit.
	MemoryLimit  int64 `yaml:"memory_limit" json:"memory_limit,omitempty"`
	PidsLimit    int   `yaml:"pids_limit" json:"pids_limit,omitempty"`
	ReadOnlyRoot bool  `yaml:"read_only_root" json:"read_only_root,omitempty"`
	AllowNetwork bool  `yaml:"allow_network" json:"allow_network,omitempty"`

	// Environment variables passed through to the interpreter
	AllowedEnvVars []string `yaml:"allowed_env_vars" json:"allowed_env_vars,omitempty"`
}

// DefaultExecutionConfig returns the runner defaults.
func DefaultExecutionConfig() ExecutionConfig {
	return ExecutionConfig{
		Python:         "python3",
		PythonFlags:    []string{"-I", "-B"},
		Timeout:        "10s",
		MaxOutputBytes: 1024 * 1024,
		Sandbox:        "none",
		DockerImage:    "python:3.12-slim",
		MemoryLimit:    512 * 1024 * 1024,
		PidsLimit:      64,
		ReadOnlyRoot:   true,
		AllowedEnvVars: []string{"PATH", "HOME", "LANG", "LC_ALL", "TMPDIR", "SYSTEMROOT"},
	}
}

// EffectiveParallelism resolves the zero value to the CPU count.
func (e ExecutionConfig) EffectiveParallelism() int {
	if e.Parallelism > 0 {
		return e.Parallelism
	}
	return runtime.NumCPU()
}
