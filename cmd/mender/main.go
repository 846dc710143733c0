package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"mender/internal/config"
	"mender/internal/logging"
	"mender/internal/runner"
	"mender/internal/tactile"
)

var (
	// Global flags
	verbose    bool
	configPath string
	workspace  string

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "mender",
	Short: "mender - test, execute and repair generated Python artifacts",
	Long: `mender turns a request into generated Python artifacts, runs each one's
unittest suite in an isolated interpreter, and applies heuristic repairs to
the ones that fail. Rounds repeat until every artifact passes or the round
budget is spent.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zapCfg := zap.NewProductionConfig()
		if verbose {
			zapCfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		} else {
			zapCfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
		}
		var err error
		logger, err = zapCfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.CloseAudit()
		logging.CloseAll()
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: <workspace>/.mender/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "Workspace directory (default: current)")

	registerRunFlags()
	registerCheckFlags()
	registerConfigFlags()

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func resolveWorkspace() string {
	if workspace != "" {
		return workspace
	}
	cwd, _ := os.Getwd()
	return cwd
}

func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return filepath.Join(resolveWorkspace(), ".mender", "config.yaml")
}

// loadConfig reads the config file, validates it and starts file logging.
func loadConfig() (*config.Config, error) {
	path := resolveConfigPath()
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	logger.Debug("Config loaded", zap.String("path", path))
	return cfg, nil
}

func startLogging(cfg *config.Config) {
	stateDir := cfg.ResolveStateDir(resolveWorkspace())
	if err := logging.Initialize(stateDir, cfg.Logging.Options()); err != nil {
		logger.Warn("File logging disabled", zap.Error(err))
		return
	}
	logging.Boot("%s %s starting, state dir %s", cfg.Name, cfg.Version, stateDir)
	if err := logging.InitAudit(); err != nil {
		logger.Warn("Audit log disabled", zap.Error(err))
	}
}

// newRunner builds the isolation runner from the execution config.
func newRunner(cfg *config.Config) (runner.Runner, error) {
	mode, ok := tactile.ParseSandboxMode(cfg.Execution.Sandbox)
	if !ok {
		return nil, fmt.Errorf("invalid sandbox: %s", cfg.Execution.Sandbox)
	}

	execCfg := tactile.DefaultExecutorConfig()
	execCfg.DefaultTimeout = cfg.GetExecutionTimeout()
	if cfg.Execution.MaxOutputBytes > 0 {
		execCfg.MaxOutputBytes = cfg.Execution.MaxOutputBytes
	}
	if len(cfg.Execution.AllowedEnvVars) > 0 {
		execCfg.AllowedEnvironment = cfg.Execution.AllowedEnvVars
	}
	if cfg.Execution.DockerImage != "" {
		execCfg.DockerDefaultImage = cfg.Execution.DockerImage
	}
	execCfg.AuditCallback = auditProcess

	executor, err := tactile.NewExecutor(mode, execCfg)
	if err != nil {
		return nil, err
	}
	caps := executor.Capabilities()
	logger.Debug("Executor ready",
		zap.String("executor", caps.Name),
		zap.Any("sandbox_modes", caps.SupportedSandboxModes),
		zap.Bool("resource_usage", caps.SupportsResourceUsage),
		zap.Bool("network_isolation", caps.SupportsNetworkIsolation))
	if mode == tactile.SandboxDocker && !cfg.Execution.AllowNetwork && !caps.SupportsNetworkIsolation {
		return nil, fmt.Errorf("executor %s cannot isolate the network", caps.Name)
	}

	return runner.NewPythonRunner(executor, runner.Options{
		Python:         cfg.Execution.Python,
		Flags:          cfg.Execution.PythonFlags,
		Timeout:        cfg.GetExecutionTimeout(),
		Sandbox:        mode,
		Image:          cfg.Execution.DockerImage,
		MaxMemoryBytes: cfg.Execution.MemoryLimit,
		MaxProcesses:   cfg.Execution.PidsLimit,
		ReadOnlyRoot:   cfg.Execution.ReadOnlyRoot,
		NetworkAllowed: cfg.Execution.AllowNetwork,
	}), nil
}

// auditProcess mirrors executor events into the debug log and the audit trail.
func auditProcess(ev tactile.AuditEvent) {
	fields := []zap.Field{
		zap.String("event", string(ev.Type)),
		zap.String("executor", ev.ExecutorName),
		zap.String("request_id", ev.Command.RequestID),
	}
	if ev.Result == nil {
		logger.Debug("Artifact process", fields...)
		return
	}

	var cpuMs, rss int64
	if u := ev.Result.ResourceUsage; u != nil {
		cpuMs, rss = u.TotalCPUTimeMs(), u.MaxRSSBytes
	}
	fields = append(fields,
		zap.Int("exit_code", ev.Result.ExitCode),
		zap.Duration("duration", ev.Result.Duration),
		zap.Int64("cpu_ms", cpuMs),
		zap.Int64("max_rss_bytes", rss))
	logger.Debug("Artifact process", fields...)

	if ev.Type != tactile.AuditEventStart {
		logging.Audit().ProcessExec(ev.Command.Binary, string(ev.Type), ev.Result.ExitCode, ev.Result.Duration.Milliseconds(), cpuMs, rss)
	}
}
