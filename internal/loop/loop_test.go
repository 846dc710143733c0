package loop

import (
	"context"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"mender/internal/artifact"
	"mender/internal/diagnose"
	"mender/internal/repair"
	"mender/internal/runner"
	"mender/internal/tactile"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// scriptedRunner decides verdicts from artifact text alone.
func scriptedRunner(calls *int32) runner.Runner {
	return runner.RunnerFunc(func(ctx context.Context, code string) runner.Verdict {
		if calls != nil {
			atomic.AddInt32(calls, 1)
		}
		switch {
		case strings.HasPrefix(code, "x = None\n"):
			return runner.Verdict{Status: runner.StatusPassed, Details: "All 1 tests passed."}
		case strings.Contains(code, "print(x)"):
			return runner.Verdict{Status: runner.StatusError, Details: "  File \"a.py\", line 1, in <module>\n    print(x)\nNameError: name 'x' is not defined"}
		case strings.HasPrefix(code, "<html>"):
			return runner.Verdict{Status: runner.StatusSkipped, Details: runner.SkippedMessage}
		case strings.Contains(code, "def add(a,b)"):
			return runner.Verdict{Status: runner.StatusError, Details: "  File \"a.py\", line 1\n    def add(a,b)\nSyntaxError: expected ':'"}
		default:
			return runner.Verdict{Status: runner.StatusPassed, Details: "All 0 tests passed."}
		}
	})
}

type countingRepairer struct {
	inner Repairer
	mu    sync.Mutex
	seen  []string
}

func (c *countingRepairer) Repair(code string, d diagnose.Descriptor) repair.Attempt {
	c.mu.Lock()
	c.seen = append(c.seen, code)
	c.mu.Unlock()
	return c.inner.Repair(code, d)
}

type recordingObserver struct {
	NopObserver
	events []string
}

func (o *recordingObserver) RoundStarted(round int, tasks []artifact.TaskID) {
	o.events = append(o.events, "start")
}

func (o *recordingObserver) TaskRepaired(round int, id artifact.TaskID, d diagnose.Descriptor, a repair.Attempt) {
	o.events = append(o.events, "repair:"+string(id)+":"+string(a.Status))
}

func (o *recordingObserver) RoundFinished(round int, rec RoundRecord) {
	o.events = append(o.events, "end")
}

func (o *recordingObserver) Finished(res Result) {
	o.events = append(o.events, "finished:"+string(res.State))
}

func newStore(entries ...artifact.Entry) *artifact.Store {
	return artifact.FromSnapshot(artifact.Snapshot(entries))
}

func TestRun_ConvergesAfterRepair(t *testing.T) {
	store := newStore(artifact.Entry{ID: "a", Code: "def f():\n    return 1\n\nprint(x)\n"})
	obs := &recordingObserver{}

	res := New(scriptedRunner(nil), repair.NewEngine(), Options{MaxRounds: 3, Observer: obs}).Run(context.Background(), store)

	assert.Equal(t, StateConverged, res.State)
	assert.Equal(t, 2, res.Rounds)
	assert.Equal(t, runner.StatusPassed, res.Verdicts["a"].Status)
	code, _ := res.Final.Lookup("a")
	assert.True(t, strings.HasPrefix(code, "x = None\n"))
	assert.Equal(t, []string{"start", "repair:a:FIXED", "end", "start", "end", "finished:CONVERGED"}, obs.events)

	require.Len(t, res.History, 2)
	assert.Equal(t, "NameError", res.History[0].Repairs["a"].Descriptor.KindOr(""))
}

func TestRun_ExhaustsAfterExactlyNRounds(t *testing.T) {
	for _, n := range []int{1, 2, 4} {
		var calls int32
		store := newStore(
			artifact.Entry{ID: "A", Code: "print(x)"},
			artifact.Entry{ID: "B", Code: "def add(a,b)\n    return a+b"},
		)

		res := New(scriptedRunner(&calls), repair.NewEngine(), Options{MaxRounds: n}).Run(context.Background(), store)

		assert.Equal(t, StateExhausted, res.State, "n=%d", n)
		assert.Equal(t, n, res.Rounds)
		assert.Equal(t, int32(2*n), atomic.LoadInt32(&calls), "verdicts are recomputed every round")
		assert.Equal(t, runner.StatusError, res.Verdicts["B"].Status)
		b, _ := res.Final.Lookup("B")
		assert.Equal(t, "def add(a,b)\n    return a+b", b)
		if n > 1 {
			assert.Equal(t, runner.StatusPassed, res.Verdicts["A"].Status)
		}
		assert.Equal(t, []artifact.TaskID{"A", "B"}, res.Final.IDs())
	}
}

func TestRun_SkippedIsNeverRepaired(t *testing.T) {
	rep := &countingRepairer{inner: repair.NewEngine()}
	store := newStore(artifact.Entry{ID: "page", Code: "<html><body>hi</body></html>"})

	res := New(scriptedRunner(nil), rep, Options{MaxRounds: 3}).Run(context.Background(), store)

	assert.Equal(t, StateExhausted, res.State)
	assert.Equal(t, 3, res.Rounds)
	assert.Empty(t, rep.seen)
	assert.Equal(t, runner.StatusSkipped, res.Verdicts["page"].Status)
	for _, rec := range res.History {
		assert.Empty(t, rec.Repairs)
	}
}

func TestRun_AllPassingConvergesInOneRound(t *testing.T) {
	store := newStore(artifact.Entry{ID: "ok", Code: "def f():\n    return 1\n"})
	start := time.Now()

	res := New(scriptedRunner(nil), repair.NewEngine(), Options{MaxRounds: 3, Pause: time.Hour}).Run(context.Background(), store)

	assert.Equal(t, StateConverged, res.State)
	assert.Equal(t, 1, res.Rounds)
	assert.Less(t, time.Since(start), time.Minute, "no pause after a converging round")
}

func TestRun_EmptyStoreConverges(t *testing.T) {
	res := New(scriptedRunner(nil), repair.NewEngine(), Options{}).Run(context.Background(), artifact.NewStore())
	assert.Equal(t, StateConverged, res.State)
	assert.Empty(t, res.Final)
}

func TestRun_PausesOnlyBetweenRounds(t *testing.T) {
	store := newStore(artifact.Entry{ID: "B", Code: "def add(a,b)\n    return a+b"})
	pause := 60 * time.Millisecond

	start := time.Now()
	res := New(scriptedRunner(nil), repair.NewEngine(), Options{MaxRounds: 3, Pause: pause}).Run(context.Background(), store)
	elapsed := time.Since(start)

	assert.Equal(t, StateExhausted, res.State)
	assert.GreaterOrEqual(t, elapsed, 2*pause)
	assert.Less(t, elapsed, 3*pause+time.Second)
}

type cancelAfterRound struct {
	NopObserver
	cancel context.CancelFunc
}

func (c cancelAfterRound) RoundFinished(round int, rec RoundRecord) { c.cancel() }

func TestRun_CancelledBetweenRounds(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := newStore(artifact.Entry{ID: "B", Code: "def add(a,b)\n    return a+b"})
	res := New(scriptedRunner(nil), repair.NewEngine(), Options{
		MaxRounds: 5,
		Pause:     time.Hour,
		Observer:  cancelAfterRound{cancel: cancel},
	}).Run(ctx, store)

	assert.Equal(t, StateCancelled, res.State)
	assert.Equal(t, 1, res.Rounds)
	assert.Contains(t, res.Verdicts, artifact.TaskID("B"))
	assert.Len(t, res.Final, 1)
}

func TestRun_CancelledMidRoundKeepsRealVerdicts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The first run cancels the caller's ctx; the second is still queued
	// behind it with parallelism 1.
	var once sync.Once
	r := runner.RunnerFunc(func(runCtx context.Context, code string) runner.Verdict {
		once.Do(cancel)
		select {
		case <-runCtx.Done():
			return runner.Verdict{Status: runner.StatusError, Details: "RuntimeError: artifact execution killed: " + runCtx.Err().Error()}
		case <-time.After(50 * time.Millisecond):
			return runner.Verdict{Status: runner.StatusPassed, Details: "All 1 tests passed."}
		}
	})

	store := newStore(
		artifact.Entry{ID: "a", Code: "x = 1"},
		artifact.Entry{ID: "b", Code: "y = 2"},
	)
	res := New(r, repair.NewEngine(), Options{MaxRounds: 3, Parallelism: 1}).Run(ctx, store)

	require.Error(t, ctx.Err())
	assert.Equal(t, StateConverged, res.State)
	assert.Equal(t, 1, res.Rounds)
	require.Len(t, res.Verdicts, 2)
	for id, v := range res.Verdicts {
		assert.Equal(t, runner.StatusPassed, v.Status, "task %s: %s", id, v.Details)
	}
}

func TestRun_CancelledBeforeFirstRound(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls int32
	res := New(scriptedRunner(&calls), repair.NewEngine(), Options{MaxRounds: 3}).Run(ctx, newStore(artifact.Entry{ID: "a", Code: "x"}))

	assert.Equal(t, StateCancelled, res.State)
	assert.Equal(t, 0, res.Rounds)
	assert.Zero(t, atomic.LoadInt32(&calls))
	assert.NotNil(t, res.Verdicts)
}

func TestRun_PatchesAppliedAtRoundBoundary(t *testing.T) {
	// Every run in round 1 must see round-1 text even though repairs happen
	// while other verdicts are still being reported.
	var mu sync.Mutex
	seen := map[int][]string{}
	round := 1
	r := runner.RunnerFunc(func(ctx context.Context, code string) runner.Verdict {
		mu.Lock()
		seen[round] = append(seen[round], code)
		mu.Unlock()
		return scriptedRunner(nil).Run(ctx, code)
	})
	obs := &roundTracker{round: &round, mu: &mu}

	store := newStore(
		artifact.Entry{ID: "a", Code: "print(x)"},
		artifact.Entry{ID: "b", Code: "print(x) # b"},
	)
	res := New(r, repair.NewEngine(), Options{MaxRounds: 2, Parallelism: 2, Observer: obs}).Run(context.Background(), store)

	assert.Equal(t, StateConverged, res.State)
	assert.ElementsMatch(t, []string{"print(x)", "print(x) # b"}, seen[1])
	assert.ElementsMatch(t, []string{"x = None\nprint(x)", "x = None\nprint(x) # b"}, seen[2])
}

type roundTracker struct {
	NopObserver
	mu    *sync.Mutex
	round *int
}

func (r *roundTracker) RoundStarted(round int, tasks []artifact.TaskID) {
	r.mu.Lock()
	*r.round = round
	r.mu.Unlock()
}

func TestRoundRecordFailing(t *testing.T) {
	rec := RoundRecord{Verdicts: map[artifact.TaskID]runner.Verdict{
		"a": {Status: runner.StatusPassed},
		"b": {Status: runner.StatusSkipped},
		"c": {Status: runner.StatusFailed},
	}}
	assert.Equal(t, 2, rec.Failing())
}

// End-to-end scenarios against a real interpreter.

func pythonLoop(t *testing.T, rounds int) *Loop {
	t.Helper()
	if _, err := exec.LookPath("python3"); err != nil {
		t.Skip("python3 not available")
	}
	executor := tactile.NewDirectExecutorWithConfig(tactile.DefaultExecutorConfig())
	r := runner.NewPythonRunner(executor, runner.Options{TempDir: t.TempDir(), Timeout: 10 * time.Second})
	return New(r, repair.NewEngine(), Options{MaxRounds: rounds})
}

func TestScenario_SyntaxErrorExhausts(t *testing.T) {
	l := pythonLoop(t, 3)
	res := l.Run(context.Background(), newStore(artifact.Entry{ID: "add", Code: "def add(a,b)\n    return a+b"}))

	assert.Equal(t, StateExhausted, res.State)
	assert.Equal(t, 3, res.Rounds)
	for _, rec := range res.History {
		assert.Equal(t, runner.StatusError, rec.Verdicts["add"].Status)
		r := rec.Repairs["add"]
		assert.Contains(t, r.Descriptor.KindOr(""), "SyntaxError")
		assert.Equal(t, repair.StatusUnfixed, r.Attempt.Status)
	}
}

func TestScenario_FencedAssertionFailureExhausts(t *testing.T) {
	l := pythonLoop(t, 2)
	code := "```python\nimport unittest\n\ndef add(a, b):\n    return a - b\n\n" +
		"class TestAdd(unittest.TestCase):\n    def test_add(self):\n        self.assertEqual(add(2, 3), 5)\n```"
	res := l.Run(context.Background(), newStore(artifact.Entry{ID: "add", Code: code}))

	assert.Equal(t, StateExhausted, res.State)
	for _, rec := range res.History {
		assert.Equal(t, runner.StatusFailed, rec.Verdicts["add"].Status)
		r := rec.Repairs["add"]
		assert.Contains(t, r.Descriptor.KindOr(""), "AssertionError")
		assert.Equal(t, repair.StatusUnfixed, r.Attempt.Status)
	}
}

func TestScenario_UndefinedNameConverges(t *testing.T) {
	l := pythonLoop(t, 3)
	code := "import unittest\n\ndef f():\n    return 1\n\nprint(x)\n\n" +
		"class T(unittest.TestCase):\n    def test_f(self):\n        self.assertEqual(f(), 1)\n"
	res := l.Run(context.Background(), newStore(artifact.Entry{ID: "f", Code: code}))

	require.Equal(t, StateConverged, res.State)
	assert.Equal(t, 2, res.Rounds)
	assert.Equal(t, runner.StatusError, res.History[0].Verdicts["f"].Status)
	assert.Contains(t, res.History[0].Repairs["f"].Descriptor.KindOr(""), "NameError")
	assert.Equal(t, runner.StatusPassed, res.Verdicts["f"].Status)
	final, _ := res.Final.Lookup("f")
	assert.Equal(t, "x = None\n"+code, final)
}
