package runner

import (
	"context"
	"time"
)

// Status is the outcome class of one artifact run.
type Status string

const (
	// StatusPassed means every discovered test passed (including zero tests).
	StatusPassed Status = "PASSED"
	// StatusFailed means at least one test failed or raised.
	StatusFailed Status = "FAILED"
	// StatusSkipped means the artifact was not recognized as Python.
	StatusSkipped Status = "SKIPPED"
	// StatusError means loading failed, the harness failed, or the run timed out.
	StatusError Status = "ERROR"
)

// Verdict is the structured result of running one artifact.
type Verdict struct {
	Status   Status `json:"status"`
	TestsRun int    `json:"tests_run"`
	Failures int    `json:"failures"`

	// Details is the pass summary or the raw diagnostic text.
	Details string `json:"details"`

	// Output is whatever the artifact process wrote to stdout/stderr.
	Output string `json:"output,omitempty"`

	Duration time.Duration `json:"duration"`
}

// Passed reports whether the verdict counts as a pass.
func (v Verdict) Passed() bool {
	return v.Status == StatusPassed
}

// Repairable reports whether the verdict should be handed to the repair path.
// SKIPPED artifacts are never repaired.
func (v Verdict) Repairable() bool {
	return v.Status == StatusFailed || v.Status == StatusError
}

// Runner executes one artifact and reports a verdict. Implementations never
// return errors or panic; every failure becomes a verdict.
type Runner interface {
	Run(ctx context.Context, code string) Verdict
}

// RunnerFunc adapts a function to the Runner interface.
type RunnerFunc func(ctx context.Context, code string) Verdict

// Run calls f(ctx, code).
func (f RunnerFunc) Run(ctx context.Context, code string) Verdict {
	return f(ctx, code)
}
