package report

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"mender/internal/artifact"
	"mender/internal/diagnose"
	"mender/internal/loop"
	"mender/internal/repair"
	"mender/internal/runner"
)

// Reporter prints loop events as they happen. It implements loop.Observer.
type Reporter struct {
	mu     sync.Mutex
	w      io.Writer
	styles Styles

	// ShowOutput includes captured process output under each verdict.
	ShowOutput bool
}

var _ loop.Observer = (*Reporter)(nil)

// New creates a reporter writing to w.
func New(w io.Writer) *Reporter {
	return &Reporter{w: w, styles: NewStyles(w)}
}

func (r *Reporter) printf(format string, args ...interface{}) {
	fmt.Fprintf(r.w, format, args...)
}

// Tasks prints the task list produced by decomposition.
func (r *Reporter) Tasks(ids []artifact.TaskID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.printf("%s\n", r.styles.Title.Render("Tasks:"))
	for i, id := range ids {
		r.printf("  %d. %s\n", i+1, id)
	}
	r.printf("\n")
}

// RoundStarted implements loop.Observer.
func (r *Reporter) RoundStarted(round int, _ []artifact.TaskID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.printf("%s\n", r.styles.Round.Render(fmt.Sprintf("--- Round %d ---", round)))
}

// TaskVerdict implements loop.Observer.
func (r *Reporter) TaskVerdict(_ int, id artifact.TaskID, v runner.Verdict) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writeVerdict(id, v)
}

func (r *Reporter) writeVerdict(id artifact.TaskID, v runner.Verdict) {
	r.printf("\n%s %s\n", r.styles.TaskID.Render("Task:"), id)
	r.printf("Status: %s\n", r.status(v.Status))
	if v.TestsRun > 0 || v.Status == runner.StatusPassed {
		r.printf("Tests run: %d, failures: %d\n", v.TestsRun, v.Failures)
	}
	if v.Details != "" {
		r.printf("Details:\n%s\n", indent(v.Details))
	}
	if r.ShowOutput && strings.TrimSpace(v.Output) != "" {
		r.printf("%s\n%s\n", r.styles.Muted.Render("Output:"), indent(v.Output))
	}
}

func (r *Reporter) status(s runner.Status) string {
	switch s {
	case runner.StatusPassed:
		return r.styles.Passed.Render(string(s))
	case runner.StatusSkipped:
		return r.styles.Skipped.Render(string(s))
	default:
		return r.styles.Failed.Render(string(s))
	}
}

// TaskRepaired implements loop.Observer.
func (r *Reporter) TaskRepaired(_ int, _ artifact.TaskID, d diagnose.Descriptor, a repair.Attempt) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writeRepair(d, a)
}

func (r *Reporter) writeRepair(d diagnose.Descriptor, a repair.Attempt) {
	r.printf("%s\n", r.styles.Muted.Render("Diagnosis: "+describe(d)))
	if a.Fixed() {
		r.printf("Debugger applied a fix (%s).\n", a.Rule)
		return
	}
	r.printf("Debugger could not fix the issue automatically.\n")
}

func describe(d diagnose.Descriptor) string {
	s := fmt.Sprintf("%s: %s", d.KindOr("unknown"), d.MessageOr(""))
	if d.Location != nil {
		s += fmt.Sprintf(" (line %d)", *d.Location)
	}
	return s
}

// RoundFinished implements loop.Observer.
func (r *Reporter) RoundFinished(_ int, rec loop.RoundRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n := rec.Failing(); n > 0 {
		r.printf("\n%d of %d tasks not passing.\n\n", n, len(rec.Verdicts))
		return
	}
	r.printf("\n")
}

// Finished implements loop.Observer.
func (r *Reporter) Finished(res loop.Result) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch res.State {
	case loop.StateConverged:
		r.printf("%s\n", r.styles.Passed.Render("All tests passed successfully!"))
	case loop.StateExhausted:
		r.printf("%s\n", r.styles.Warning.Render("Max rounds reached. Some tasks are still failing."))
	case loop.StateCancelled:
		r.printf("%s\n", r.styles.Warning.Render(fmt.Sprintf("Run cancelled after %d rounds.", res.Rounds)))
	}

	r.printf("\n%s\n", r.styles.Title.Render("=== Final Code Output ==="))
	for _, e := range res.Final {
		r.printf("\n%s %s\n", r.styles.TaskID.Render("Task:"), e.ID)
		if v, ok := res.Verdicts[e.ID]; ok {
			r.printf("Last status: %s\n", r.status(v.Status))
		}
		r.writeCode(e.Code)
	}
}

// Check prints a single-file check: verdict, descriptor and repair attempt.
// d and a are nil when the verdict was not repairable.
func (r *Reporter) Check(name string, v runner.Verdict, d *diagnose.Descriptor, a *repair.Attempt) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.writeVerdict(artifact.TaskID(name), v)
	if d == nil || a == nil {
		return
	}
	r.writeRepair(*d, *a)
	if a.Fixed() {
		r.printf("\n%s\n", r.styles.Title.Render("Patched artifact:"))
		r.writeCode(*a.Patched)
	}
}

// writeCode prints artifact text verbatim so it can be copied back out.
func (r *Reporter) writeCode(code string) {
	r.printf("%s", code)
	if !strings.HasSuffix(code, "\n") {
		r.printf("\n")
	}
}

func indent(s string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, l := range lines {
		lines[i] = "  " + l
	}
	return strings.Join(lines, "\n")
}
