package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"mender/internal/diagnose"
	"mender/internal/repair"
	"mender/internal/report"
	"mender/internal/runner"
	"mender/internal/watch"
)

var (
	writeFix   bool
	watchCheck bool
)

// checkCmd runs a single file through one test-classify-repair step
var checkCmd = &cobra.Command{
	Use:   "check [file]",
	Short: "Run one Python file and show its verdict, diagnosis and repair",
	Long: `Runs the file's unittest suite in an isolated interpreter. When the run
fails, the diagnostic is classified and one repair is attempted.

With --watch the check repeats every time the file is saved.`,
	Args: cobra.ExactArgs(1),
	RunE: runCheck,
}

func registerCheckFlags() {
	checkCmd.Flags().BoolVar(&writeFix, "write", false, "Write a successful repair back to the file")
	checkCmd.Flags().BoolVar(&watchCheck, "watch", false, "Re-run the check whenever the file changes")
}

func runCheck(cmd *cobra.Command, args []string) error {
	path := args[0]
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("failed to read artifact: %w", err)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	startLogging(cfg)

	r, err := newRunner(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	if err := checkFile(ctx, out, r, path); err != nil {
		return err
	}
	if !watchCheck {
		return nil
	}

	fw, err := watch.New(path, 0, func(ctx context.Context, p string) {
		fmt.Fprintf(out, "\n--- %s changed ---\n", p)
		if err := checkFile(ctx, out, r, p); err != nil {
			logger.Warn("Check failed", zap.String("file", p), zap.Error(err))
		}
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "\nWatching %s (Ctrl+C to stop)\n", path)
	return fw.Run(ctx)
}

// checkFile runs, classifies and repairs one file, printing the outcome.
func checkFile(ctx context.Context, w io.Writer, r runner.Runner, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read artifact: %w", err)
	}

	code := string(data)
	verdict := r.Run(ctx, code)
	logger.Debug("Check verdict", zap.String("file", path), zap.String("status", string(verdict.Status)))

	out := report.New(w)
	if !verdict.Repairable() {
		out.Check(path, verdict, nil, nil)
		return nil
	}

	d := diagnose.Classify(verdict.Details)
	attempt := repair.NewEngine().Repair(code, d)
	out.Check(path, verdict, &d, &attempt)

	if writeFix && attempt.Fixed() {
		if err := os.WriteFile(path, []byte(*attempt.Patched), 0644); err != nil {
			return fmt.Errorf("failed to write repair: %w", err)
		}
		fmt.Fprintf(w, "Wrote repair to %s\n", path)
	}
	return nil
}
