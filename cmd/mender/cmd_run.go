package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"mender/internal/collab"
	"mender/internal/config"
	"mender/internal/loop"
	"mender/internal/repair"
	"mender/internal/report"
)

var (
	request     string
	rounds      int
	batchPath   string
	parallel    int
	execTimeout time.Duration
	pause       time.Duration
	provider    string
	showOutput  bool
)

// runCmd generates artifacts for a request and drives them to convergence
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Generate artifacts for a request and repair them until they pass",
	Long: `Runs the full pipeline:
  1. Decompose the request into tasks (LLM planner, or --batch)
  2. Generate one Python artifact per task
  3. Run each artifact's unittest suite in an isolated interpreter
  4. Classify failures and apply heuristic repairs
  5. Repeat until every artifact passes or --rounds is reached

Example:
  mender run --request "Create a sql database for a library application"
  mender run --batch tasks.yaml --rounds 5`,
	Args: cobra.NoArgs,
	RunE: runPipeline,
}

func registerRunFlags() {
	runCmd.Flags().StringVarP(&request, "request", "r", "", "Request to decompose (default: loop.default_request)")
	runCmd.Flags().IntVarP(&rounds, "rounds", "n", 3, "Maximum number of rounds")
	runCmd.Flags().StringVarP(&batchPath, "batch", "b", "", "YAML batch of pre-written artifacts (no LLM needed)")
	runCmd.Flags().IntVarP(&parallel, "parallel", "p", 0, "Concurrent artifact runs per round (0 = CPU count)")
	runCmd.Flags().DurationVar(&execTimeout, "timeout", 10*time.Second, "Per-artifact execution timeout")
	runCmd.Flags().DurationVar(&pause, "pause", time.Second, "Pause between rounds")
	runCmd.Flags().StringVar(&provider, "provider", "", "LLM provider: gemini or openai")
	runCmd.Flags().BoolVar(&showOutput, "show-output", false, "Print captured artifact output under each verdict")
}

// applyRunFlags overlays explicitly set flags onto the loaded config.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("rounds") {
		cfg.Loop.MaxRounds = rounds
	}
	if flags.Changed("parallel") {
		cfg.Execution.Parallelism = parallel
	}
	if flags.Changed("timeout") {
		cfg.Execution.Timeout = execTimeout.String()
	}
	if flags.Changed("pause") {
		cfg.Loop.Pause = pause.String()
	}
	if flags.Changed("provider") {
		cfg.SetProvider(provider)
	}
}

// runPipeline executes decomposition, generation and the convergence loop
func runPipeline(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyRunFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	startLogging(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r, err := newRunner(cfg)
	if err != nil {
		return err
	}

	decomposer, generator, req, err := collaborators(ctx, cfg)
	if err != nil {
		return err
	}

	out := report.New(cmd.OutOrStdout())
	out.ShowOutput = showOutput

	logger.Info("Building artifacts", zap.String("request", req))
	store := collab.BuildStore(ctx, decomposer, generator, req)
	out.Tasks(store.IDs())

	runID := uuid.NewString()
	logger.Debug("Starting loop", zap.String("run_id", runID))
	l := loop.New(r, repair.NewEngine(), loop.Options{
		RunID:       runID,
		MaxRounds:   cfg.Loop.MaxRounds,
		Pause:       cfg.GetLoopPause(),
		Parallelism: cfg.Execution.EffectiveParallelism(),
		Observer:    out,
	})
	res := l.Run(ctx, store)

	logger.Info("Run finished",
		zap.String("state", string(res.State)),
		zap.Int("rounds", res.Rounds),
		zap.Int("tasks", len(res.Final)))

	if res.State == loop.StateCancelled {
		return fmt.Errorf("run cancelled after %d rounds", res.Rounds)
	}
	return nil
}

// collaborators picks the batch file or the configured LLM.
func collaborators(ctx context.Context, cfg *config.Config) (collab.Decomposer, collab.Generator, string, error) {
	if batchPath != "" {
		batch, err := collab.LoadBatch(batchPath)
		if err != nil {
			return nil, nil, "", err
		}
		req := request
		if req == "" {
			req = batch.Request
		}
		logger.Debug("Using batch file", zap.String("path", batchPath), zap.Int("tasks", len(batch.Tasks)))
		return batch, batch, req, nil
	}

	req := request
	if req == "" {
		req = cfg.Loop.DefaultRequest
	}
	completer, err := collab.NewCompleter(ctx, cfg)
	if err != nil {
		return nil, nil, "", fmt.Errorf("LLM unavailable: %w", err)
	}
	return collab.NewPlanner(completer), collab.NewCodeGenerator(completer), req, nil
}
