package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Name != "mender" {
		t.Errorf("expected Name=mender, got %s", cfg.Name)
	}
	if cfg.LLM.Provider != "gemini" {
		t.Errorf("expected Provider=gemini, got %s", cfg.LLM.Provider)
	}
	if cfg.Loop.MaxRounds != 3 {
		t.Errorf("expected MaxRounds=3, got %d", cfg.Loop.MaxRounds)
	}
	if cfg.Execution.Python != "python3" {
		t.Errorf("expected Python=python3, got %s", cfg.Execution.Python)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestConfig_SaveLoad(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("MENDER_PYTHON", "")
	t.Setenv("MENDER_SANDBOX", "")
	t.Setenv("MENDER_MODEL", "")

	path := filepath.Join(t.TempDir(), "nested", "mender.yaml")

	cfg := DefaultConfig()
	cfg.LLM.Provider = "openai"
	cfg.LLM.APIKey = "sk-test"
	cfg.Loop.MaxRounds = 5
	cfg.Execution.Parallelism = 2

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if loaded.LLM.Provider != "openai" || loaded.LLM.APIKey != "sk-test" {
		t.Errorf("unexpected LLM config: %+v", loaded.LLM)
	}
	if loaded.Loop.MaxRounds != 5 {
		t.Errorf("expected MaxRounds=5, got %d", loaded.Loop.MaxRounds)
	}
	if loaded.Execution.Parallelism != 2 {
		t.Errorf("expected Parallelism=2, got %d", loaded.Execution.Parallelism)
	}
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Loop.MaxRounds != 3 {
		t.Errorf("expected defaults, got MaxRounds=%d", cfg.Loop.MaxRounds)
	}
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mender.yaml")
	if err := os.WriteFile(path, []byte("loop:\n  max_rounds: 7\n"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Loop.MaxRounds != 7 {
		t.Errorf("expected MaxRounds=7, got %d", cfg.Loop.MaxRounds)
	}
	if cfg.GetLoopPause() != time.Second {
		t.Errorf("expected default pause to survive, got %v", cfg.GetLoopPause())
	}
}

func TestLoad_ContainerLimits(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mender.yaml")
	body := "execution:\n  sandbox: docker\n  memory_limit: 268435456\n  pids_limit: 16\n  read_only_root: false\n  allow_network: true\n"
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	exec := cfg.Execution
	if exec.MemoryLimit != 256*1024*1024 || exec.PidsLimit != 16 {
		t.Errorf("unexpected limits: memory=%d pids=%d", exec.MemoryLimit, exec.PidsLimit)
	}
	if exec.ReadOnlyRoot || !exec.AllowNetwork {
		t.Errorf("unexpected flags: read_only_root=%v allow_network=%v", exec.ReadOnlyRoot, exec.AllowNetwork)
	}
	if !DefaultConfig().Execution.ReadOnlyRoot {
		t.Error("read-only root should be on by default")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mender.yaml")
	if err := os.WriteFile(path, []byte("loop: [unclosed"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Loop.MaxRounds = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for zero rounds")
	}

	cfg = DefaultConfig()
	cfg.Execution.Sandbox = "firejail"
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for unsupported sandbox")
	}

	cfg = DefaultConfig()
	cfg.Execution.PidsLimit = -1
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for negative pids limit")
	}

	cfg = DefaultConfig()
	cfg.LLM.APIKey = ""
	if err := cfg.ValidateLLM(); err == nil {
		t.Error("expected validation error for missing API key")
	}

	cfg.LLM.APIKey = "test-key"
	if err := cfg.ValidateLLM(); err != nil {
		t.Errorf("expected valid LLM config, got error: %v", err)
	}

	cfg.LLM.Provider = "invalid-provider"
	if err := cfg.ValidateLLM(); err == nil {
		t.Error("expected validation error for invalid provider")
	}
}

func TestConfig_Helpers(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.GetLLMTimeout() != 120*time.Second {
		t.Errorf("unexpected LLM timeout: %v", cfg.GetLLMTimeout())
	}
	if cfg.GetExecutionTimeout() != 10*time.Second {
		t.Errorf("unexpected execution timeout: %v", cfg.GetExecutionTimeout())
	}

	cfg.Execution.Timeout = "not-a-duration"
	if cfg.GetExecutionTimeout() != 10*time.Second {
		t.Errorf("invalid duration should fall back, got %v", cfg.GetExecutionTimeout())
	}

	cfg.Execution.Parallelism = 0
	if cfg.Execution.EffectiveParallelism() < 1 {
		t.Error("EffectiveParallelism should be positive")
	}

	ws := t.TempDir()
	if got := cfg.ResolveStateDir(ws); got != filepath.Join(ws, ".mender") {
		t.Errorf("unexpected state dir: %s", got)
	}
	cfg.StateDir = filepath.Join(ws, "abs")
	if got := cfg.ResolveStateDir("/elsewhere"); got != cfg.StateDir {
		t.Errorf("absolute state dir should be kept, got %s", got)
	}
}

func TestLoggingConfig_Options(t *testing.T) {
	lc := LoggingConfig{Level: "debug", Format: "json", DebugMode: true}
	opts := lc.Options()
	if !opts.DebugMode || !opts.JSONFormat || opts.Level != "debug" {
		t.Errorf("unexpected options: %+v", opts)
	}
	if !lc.IsCategoryEnabled("runner") {
		t.Error("categories default to enabled in debug mode")
	}
	lc.DebugMode = false
	if lc.IsCategoryEnabled("runner") {
		t.Error("categories are disabled outside debug mode")
	}
}
