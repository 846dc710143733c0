package loop

import (
	"mender/internal/artifact"
	"mender/internal/diagnose"
	"mender/internal/repair"
	"mender/internal/runner"
)

// Observer receives loop progress. Calls come from the loop goroutine, in
// task order within a round.
type Observer interface {
	RoundStarted(round int, tasks []artifact.TaskID)
	TaskVerdict(round int, id artifact.TaskID, v runner.Verdict)
	TaskRepaired(round int, id artifact.TaskID, d diagnose.Descriptor, a repair.Attempt)
	RoundFinished(round int, rec RoundRecord)
	Finished(res Result)
}

// NopObserver ignores every event. Embed it to implement a subset.
type NopObserver struct{}

func (NopObserver) RoundStarted(int, []artifact.TaskID)                                    {}
func (NopObserver) TaskVerdict(int, artifact.TaskID, runner.Verdict)                       {}
func (NopObserver) TaskRepaired(int, artifact.TaskID, diagnose.Descriptor, repair.Attempt) {}
func (NopObserver) RoundFinished(int, RoundRecord)                                         {}
func (NopObserver) Finished(Result)                                                        {}
