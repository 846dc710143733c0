package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all mender configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// StateDir holds logs; relative paths resolve against the workspace.
	StateDir string `yaml:"state_dir"`

	// LLM collaborators (decomposition + generation)
	LLM LLMConfig `yaml:"llm"`

	// Isolation runner settings
	Execution ExecutionConfig `yaml:"execution"`

	// Convergence loop settings
	Loop LoopConfig `yaml:"loop"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:     "mender",
		Version:  "0.3.0",
		StateDir: ".mender",

		LLM: LLMConfig{
			Provider:    "gemini",
			Model:       "gemini-1.5-flash",
			Temperature: 0.4,
			Timeout:     "120s",
			MinInterval: "1s",
		},

		Execution: DefaultExecutionConfig(),

		Loop: LoopConfig{
			MaxRounds:      3,
			Pause:          "1s",
			DefaultRequest: "Create a sql database for a library application with a login page.",
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from a YAML file.
// A missing file yields the defaults (with environment overrides applied).
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	// LLM API key from environment, by provider (GEMINI_API_KEY wins over GOOGLE_API_KEY)
	switch c.LLM.Provider {
	case "openai":
		if key := os.Getenv("OPENAI_API_KEY"); key != "" {
			c.LLM.APIKey = key
		}
	case "gemini", "":
		if key := os.Getenv("GOOGLE_API_KEY"); key != "" {
			c.LLM.APIKey = key
		}
		if key := os.Getenv("GEMINI_API_KEY"); key != "" {
			c.LLM.APIKey = key
		}
	}
	if model := os.Getenv("MENDER_MODEL"); model != "" {
		c.LLM.Model = model
	}

	if python := os.Getenv("MENDER_PYTHON"); python != "" {
		c.Execution.Python = python
	}
	if sandbox := os.Getenv("MENDER_SANDBOX"); sandbox != "" {
		c.Execution.Sandbox = sandbox
	}
}

// SetProvider switches the LLM provider, resetting the key and the model when
// the model was the previous provider's default.
func (c *Config) SetProvider(provider string) {
	if provider == "" || provider == c.LLM.Provider {
		return
	}
	if c.LLM.Model == DefaultModel(c.LLM.Provider) {
		c.LLM.Model = DefaultModel(provider)
	}
	c.LLM.Provider = provider
	c.LLM.APIKey = ""
	c.applyEnvOverrides()
}

// GetLLMTimeout returns the LLM timeout as a duration.
func (c *Config) GetLLMTimeout() time.Duration {
	return parseDuration(c.LLM.Timeout, 120*time.Second)
}

// GetLLMMinInterval returns the minimum spacing between collaborator calls.
func (c *Config) GetLLMMinInterval() time.Duration {
	return parseDuration(c.LLM.MinInterval, time.Second)
}

// GetExecutionTimeout returns the per-artifact execution timeout.
func (c *Config) GetExecutionTimeout() time.Duration {
	return parseDuration(c.Execution.Timeout, 10*time.Second)
}

// GetLoopPause returns the pacing pause between non-converging rounds.
func (c *Config) GetLoopPause() time.Duration {
	return parseDuration(c.Loop.Pause, time.Second)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return fallback
	}
	return d
}

// ResolveStateDir returns the state directory as an absolute path under workspace.
func (c *Config) ResolveStateDir(workspace string) string {
	dir := c.StateDir
	if dir == "" {
		dir = ".mender"
	}
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(workspace, dir)
}

// ValidProviders lists all supported LLM providers.
var ValidProviders = []string{"gemini", "openai"}

// ValidSandboxes lists the supported isolation modes.
var ValidSandboxes = []string{"none", "docker"}

// Validate validates the configuration that every run depends on.
// The LLM key is checked separately by ValidateLLM since offline batches don't need it.
func (c *Config) Validate() error {
	if c.Loop.MaxRounds < 1 {
		return fmt.Errorf("loop.max_rounds must be at least 1, got %d", c.Loop.MaxRounds)
	}
	if c.Execution.Python == "" {
		return fmt.Errorf("execution.python must name a Python interpreter")
	}
	if c.Execution.Parallelism < 0 {
		return fmt.Errorf("execution.parallelism must not be negative, got %d", c.Execution.Parallelism)
	}
	if !contains(ValidSandboxes, c.Execution.Sandbox) {
		return fmt.Errorf("invalid sandbox: %s (valid: %v)", c.Execution.Sandbox, ValidSandboxes)
	}
	if c.Execution.MemoryLimit < 0 || c.Execution.PidsLimit < 0 {
		return fmt.Errorf("execution.memory_limit and execution.pids_limit must not be negative")
	}
	return nil
}

// ValidateLLM checks that an LLM collaborator can be constructed.
func (c *Config) ValidateLLM() error {
	if !contains(ValidProviders, c.LLM.Provider) {
		return fmt.Errorf("invalid LLM provider: %s (valid: %v)", c.LLM.Provider, ValidProviders)
	}
	if c.LLM.APIKey == "" {
		return fmt.Errorf("LLM API key not configured (set GEMINI_API_KEY, GOOGLE_API_KEY, or OPENAI_API_KEY)")
	}
	return nil
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
