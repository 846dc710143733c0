package repair

import (
	"regexp"
	"strings"

	"mender/internal/artifact"
	"mender/internal/diagnose"
)

// Built-in rule names.
const (
	RuleStripFences       = "strip-fences"
	RuleBindUndefinedName = "bind-undefined-name"
)

// BuiltinRules returns the default rule table, in order.
func BuiltinRules() []Rule {
	return []Rule{
		{Name: RuleStripFences, Kind: "SyntaxError", Transform: stripFences},
		{Name: RuleBindUndefinedName, Kind: "NameError", Transform: bindUndefinedName},
	}
}

// stripFences removes fence delimiters that leaked into the body.
func stripFences(code string, _ diagnose.Descriptor) (string, bool) {
	if !artifact.ContainsFence(code) {
		return code, false
	}
	return artifact.StripFences(code), true
}

var undefinedName = regexp.MustCompile(`name '(\w+)' is not defined`)

// bindUndefinedName prepends "<id> = None" for the name the diagnostic
// reports as undefined. The binding is not repeated if it is already first.
func bindUndefinedName(code string, d diagnose.Descriptor) (string, bool) {
	name := ""
	for _, text := range []string{d.MessageOr(""), d.Tail} {
		if m := undefinedName.FindStringSubmatch(text); m != nil {
			name = m[1]
			break
		}
	}
	if name == "" {
		return code, false
	}

	binding := name + " = None"
	firstLine, _, _ := strings.Cut(code, "\n")
	if strings.TrimSpace(firstLine) == binding {
		return code, false
	}
	return binding + "\n" + code, true
}
