package runner

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"mender/internal/artifact"
	"mender/internal/logging"
)

// RunBatch runs every artifact in snap with at most parallelism concurrent
// runs and returns one fresh verdict per task. A parallelism of zero or less
// means runtime.NumCPU().
//
// Cancelling ctx does not cut the batch short: every artifact in snap still
// runs to completion, bounded only by the runner's own timeout.
func RunBatch(ctx context.Context, r Runner, snap artifact.Snapshot, parallelism int) map[artifact.TaskID]Verdict {
	if parallelism <= 0 {
		parallelism = runtime.NumCPU()
	}

	timer := logging.StartTimer(logging.CategoryRunner, "batch run")
	defer timer.Stop()

	runCtx := context.WithoutCancel(ctx)
	verdicts := make([]Verdict, len(snap))
	var g errgroup.Group
	g.SetLimit(parallelism)
	for i, entry := range snap {
		g.Go(func() error {
			verdicts[i] = r.Run(runCtx, entry.Code)
			return nil
		})
	}
	// Runs report through their verdicts; no goroutine returns an error.
	g.Wait()

	out := make(map[artifact.TaskID]Verdict, len(snap))
	for i, entry := range snap {
		out[entry.ID] = verdicts[i]
	}
	return out
}
