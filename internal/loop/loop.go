// Package loop drives the test-execute-repair cycle over a batch of artifacts.
//
// A run is an explicit state machine:
//
//	RUNNING(1) -> RUNNING(2) -> ... -> RUNNING(N)
//	     |             |                    |
//	     +--> CONVERGED (a round with no failures)
//	                                        +--> EXHAUSTED (round N still failing)
//
// CANCELLED is reached when the context ends between rounds.
package loop

import (
	"context"
	"time"

	"mender/internal/artifact"
	"mender/internal/diagnose"
	"mender/internal/logging"
	"mender/internal/repair"
	"mender/internal/runner"
)

// State is the loop's current or terminal state.
type State string

const (
	StateRunning   State = "RUNNING"
	StateConverged State = "CONVERGED"
	StateExhausted State = "EXHAUSTED"
	StateCancelled State = "CANCELLED"
)

// Terminal reports whether s ends a run.
func (s State) Terminal() bool {
	return s != StateRunning
}

// Repairer attempts one patch for a failing artifact.
type Repairer interface {
	Repair(code string, d diagnose.Descriptor) repair.Attempt
}

// ClassifyFunc turns verdict details into a descriptor.
type ClassifyFunc func(diagnostic string) diagnose.Descriptor

// Options configures a Loop.
type Options struct {
	// MaxRounds is the round budget N. Values below 1 mean 1.
	MaxRounds int
	// Pause is inserted after a non-converging round that is not the last.
	Pause time.Duration
	// Parallelism bounds concurrent runs per round; 0 means NumCPU.
	Parallelism int
	// Classify defaults to diagnose.Classify.
	Classify ClassifyFunc
	// Observer receives progress events; nil means none.
	Observer Observer
	// RunID correlates audit events for this run.
	RunID string
}

// DefaultOptions returns the standard budget and pacing.
func DefaultOptions() Options {
	return Options{MaxRounds: 3, Pause: time.Second}
}

// RepairRecord is one classify+repair step for one task.
type RepairRecord struct {
	Descriptor diagnose.Descriptor `json:"descriptor"`
	Attempt    repair.Attempt      `json:"attempt"`
}

// RoundRecord is everything that happened in one round.
type RoundRecord struct {
	Round    int                                `json:"round"`
	Verdicts map[artifact.TaskID]runner.Verdict `json:"verdicts"`
	Repairs  map[artifact.TaskID]RepairRecord   `json:"repairs"`
}

// Failing returns the number of tasks that did not pass this round.
func (r RoundRecord) Failing() int {
	n := 0
	for _, v := range r.Verdicts {
		if !v.Passed() {
			n++
		}
	}
	return n
}

// Result is the outcome of a run. Final and Verdicts are set for every
// terminal state.
type Result struct {
	State  State `json:"state"`
	Rounds int   `json:"rounds"`

	// Final is the store contents after the last round's patches.
	Final artifact.Snapshot `json:"final"`

	// Verdicts are the last executed round's verdicts.
	Verdicts map[artifact.TaskID]runner.Verdict `json:"verdicts"`

	History []RoundRecord `json:"history"`
}

// Loop runs rounds of execute, classify, repair.
type Loop struct {
	runner   runner.Runner
	repairer Repairer
	opts     Options
	audit    *logging.AuditLogger
}

// New creates a loop.
func New(r runner.Runner, rep Repairer, opts Options) *Loop {
	if opts.MaxRounds < 1 {
		opts.MaxRounds = 1
	}
	if opts.Classify == nil {
		opts.Classify = diagnose.Classify
	}
	if opts.Observer == nil {
		opts.Observer = NopObserver{}
	}
	return &Loop{runner: r, repairer: rep, opts: opts, audit: logging.AuditWithRun(opts.RunID)}
}

// Run drives store to a terminal state. The store is written only between
// rounds. Cancellation is observed at round boundaries: a round that has
// started runs every artifact to completion and its verdicts are kept.
func (l *Loop) Run(ctx context.Context, store *artifact.Store) Result {
	obs := l.opts.Observer
	res := Result{
		State:    StateRunning,
		Verdicts: map[artifact.TaskID]runner.Verdict{},
	}

	start := time.Now()
	logging.Loop("starting run: %d tasks, budget %d rounds", store.Len(), l.opts.MaxRounds)
	l.audit.RunStart(store.Len())

	for round := 1; !res.State.Terminal(); round++ {
		if err := ctx.Err(); err != nil {
			logging.LoopWarn("run cancelled before round %d: %v", round, err)
			res.State = StateCancelled
			break
		}

		rec := l.runRound(ctx, round, store)
		res.Rounds = round
		res.Verdicts = rec.Verdicts
		res.History = append(res.History, rec)

		switch failing := rec.Failing(); {
		case failing == 0:
			res.State = StateConverged
		case round >= l.opts.MaxRounds:
			res.State = StateExhausted
		default:
			logging.Loop("round %d: %d/%d tasks failing, retrying", round, failing, len(rec.Verdicts))
			if !l.pause(ctx) {
				res.State = StateCancelled
			}
		}
	}

	res.Final = store.Snapshot()
	logging.Loop("run finished: %s after %d rounds", res.State, res.Rounds)
	l.audit.RunEnd(string(res.State), res.Rounds, time.Since(start).Milliseconds())
	obs.Finished(res)
	return res
}

func (l *Loop) runRound(ctx context.Context, round int, store *artifact.Store) RoundRecord {
	obs := l.opts.Observer
	snap := store.Snapshot()
	obs.RoundStarted(round, snap.IDs())
	l.audit.RoundStart(round, len(snap))

	timer := logging.StartTimer(logging.CategoryLoop, "round")
	verdicts := runner.RunBatch(ctx, l.runner, snap, l.opts.Parallelism)
	elapsed := timer.Stop()

	rec := RoundRecord{
		Round:    round,
		Verdicts: verdicts,
		Repairs:  map[artifact.TaskID]RepairRecord{},
	}

	staged := make(map[artifact.TaskID]string)
	for _, entry := range snap {
		v := verdicts[entry.ID]
		obs.TaskVerdict(round, entry.ID, v)
		l.audit.TaskVerdict(round, string(entry.ID), string(v.Status), v.Duration.Milliseconds())
		if !v.Repairable() {
			continue
		}

		d := l.opts.Classify(v.Details)
		attempt := l.repairer.Repair(entry.Code, d)
		rec.Repairs[entry.ID] = RepairRecord{Descriptor: d, Attempt: attempt}
		obs.TaskRepaired(round, entry.ID, d, attempt)
		l.audit.TaskRepair(round, string(entry.ID), string(attempt.Status), attempt.Rule, d.KindOr(""))

		if attempt.Fixed() {
			staged[entry.ID] = *attempt.Patched
		}
	}

	// Round boundary: apply staged patches in task order.
	for _, entry := range snap {
		if patched, ok := staged[entry.ID]; ok {
			if err := store.Set(entry.ID, patched); err != nil {
				logging.LoopWarn("dropping patch for %s: %v", entry.ID, err)
			}
		}
	}

	l.audit.RoundEnd(round, rec.Failing(), elapsed.Milliseconds())
	obs.RoundFinished(round, rec)
	return rec
}

// pause waits between rounds. It returns false when ctx ends first.
func (l *Loop) pause(ctx context.Context) bool {
	if l.opts.Pause <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(l.opts.Pause)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		logging.LoopWarn("pause interrupted: %v", ctx.Err())
		return false
	}
}
