// Package repair applies single-shot heuristic patches to failing artifacts.
//
// The engine is a pure function of (artifact, descriptor): it never executes
// code and never checks that a patch works. The next round's run does that.
package repair

import (
	"strings"
	"sync"

	"mender/internal/diagnose"
	"mender/internal/logging"
)

// Status is the outcome of one repair attempt.
type Status string

const (
	StatusFixed   Status = "FIXED"
	StatusUnfixed Status = "UNFIXED"
)

// Attempt is the result of Engine.Repair. A FIXED attempt always carries a
// non-nil Patched.
type Attempt struct {
	Status  Status  `json:"status"`
	Patched *string `json:"patched,omitempty"`
	// Rule names the rule that matched, empty when none did.
	Rule string `json:"rule,omitempty"`
}

// Fixed reports whether the attempt produced a patch.
func (a Attempt) Fixed() bool {
	return a.Status == StatusFixed && a.Patched != nil
}

// Transform rewrites an artifact for a matched descriptor. It returns false
// when it cannot produce a meaningful change.
type Transform func(code string, d diagnose.Descriptor) (string, bool)

// Rule pairs a kind literal with a transform.
type Rule struct {
	Name string
	// Kind is matched by containment against the descriptor's Kind,
	// or its Tail when Kind is nil.
	Kind      string
	Transform Transform
}

func (r Rule) matches(d diagnose.Descriptor) bool {
	subject := d.Tail
	if d.Kind != nil {
		subject = *d.Kind
	}
	return r.Kind != "" && strings.Contains(subject, r.Kind)
}

// Engine holds an ordered rule table. The first matching rule is applied and
// rules are never chained within one attempt.
type Engine struct {
	mu    sync.RWMutex
	rules []Rule
}

// NewEngine returns an engine with the built-in rules registered.
func NewEngine() *Engine {
	e := &Engine{}
	for _, r := range BuiltinRules() {
		e.Register(r)
	}
	return e
}

// NewEmptyEngine returns an engine with no rules.
func NewEmptyEngine() *Engine {
	return &Engine{}
}

// Register appends a rule to the table.
func (e *Engine) Register(r Rule) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules = append(e.rules, r)
}

// Rules returns a copy of the rule table in order.
func (e *Engine) Rules() []Rule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]Rule(nil), e.rules...)
}

// Repair attempts one patch. An UNFIXED attempt leaves code untouched.
func (e *Engine) Repair(code string, d diagnose.Descriptor) Attempt {
	for _, rule := range e.Rules() {
		if !rule.matches(d) {
			continue
		}
		patched, ok := rule.Transform(code, d)
		if !ok || patched == code {
			logging.RepairDebug("rule %s matched %q but produced no change", rule.Name, d.KindOr(d.Tail))
			return Attempt{Status: StatusUnfixed, Rule: rule.Name}
		}
		logging.Repair("rule %s patched artifact (%d -> %d bytes)", rule.Name, len(code), len(patched))
		return Attempt{Status: StatusFixed, Patched: &patched, Rule: rule.Name}
	}
	logging.RepairDebug("no rule for %q", d.KindOr(d.Tail))
	return Attempt{Status: StatusUnfixed}
}
