// Package diagnose turns raw Python diagnostics into structured descriptors.
package diagnose

import (
	"regexp"
	"strconv"
	"strings"

	"mender/internal/logging"
)

// Category is the normalized error class of a descriptor.
type Category string

const (
	CategorySyntax        Category = "syntax"
	CategoryIndentation   Category = "indentation"
	CategoryUndefinedName Category = "undefined_name"
	CategoryAssertion     Category = "assertion"
	CategoryImport        Category = "import"
	CategoryType          Category = "type"
	CategoryAttribute     Category = "attribute"
	CategoryTimeout       Category = "timeout"
	CategoryUnknown       Category = "unknown"
)

// categoryKinds maps kind substrings to categories, first match wins.
// IndentationError and TabError come before their SyntaxError parent.
var categoryKinds = []struct {
	substr   string
	category Category
}{
	{"IndentationError", CategoryIndentation},
	{"TabError", CategoryIndentation},
	{"SyntaxError", CategorySyntax},
	{"UnboundLocalError", CategoryUndefinedName},
	{"NameError", CategoryUndefinedName},
	{"AssertionError", CategoryAssertion},
	{"ModuleNotFoundError", CategoryImport},
	{"ImportError", CategoryImport},
	{"TypeError", CategoryType},
	{"AttributeError", CategoryAttribute},
	{"TimeoutError", CategoryTimeout},
}

// Descriptor is the structured form of one diagnostic. Nil fields could not
// be parsed.
type Descriptor struct {
	// Kind is the error category from the final line, e.g. "NameError".
	Kind *string `json:"kind"`
	// Message is the category-bearing line that follows the last frame.
	Message *string `json:"message"`
	// Location is the line number of the last frame.
	Location *int `json:"location"`
	// Tail is the final non-empty line, verbatim after trimming.
	Tail string `json:"tail"`

	Category Category `json:"category"`
}

// KindOr returns the kind or fallback when it is nil.
func (d Descriptor) KindOr(fallback string) string {
	if d.Kind == nil {
		return fallback
	}
	return *d.Kind
}

// MessageOr returns the message or fallback when it is nil.
func (d Descriptor) MessageOr(fallback string) string {
	if d.Message == nil {
		return fallback
	}
	return *d.Message
}

var (
	frameLine = regexp.MustCompile(`^\s*File "([^"]*)", line (\d+)(?:, in (.+))?$`)
	// categoryLine matches "NameError: ...", "pkg.CustomException", "SystemExit: 1", ...
	categoryLine = regexp.MustCompile(`^\s*([A-Za-z_][\w.]*(?:Error|Exception|Exit|Interrupt|Warning))(?::\s?(.*))?$`)
	dottedIdent  = regexp.MustCompile(`^[A-Za-z_][\w.]*$`)
)

// Classify parses a diagnostic. It is pure and deterministic.
//
// Only the final line decides Kind; chained tracebacks are not followed.
func Classify(diagnostic string) Descriptor {
	lines := strings.Split(strings.ReplaceAll(diagnostic, "\r\n", "\n"), "\n")

	var d Descriptor
	tail := lastNonEmpty(lines)
	if tail == "" {
		d.Category = CategoryUnknown
		return d
	}
	d.Tail = tail

	kind := tail
	if i := strings.Index(tail, ":"); i > 0 && dottedIdent.MatchString(strings.TrimSpace(tail[:i])) {
		kind = strings.TrimSpace(tail[:i])
	}
	d.Kind = &kind

	if loc, msg, ok := lastFrame(lines); ok {
		d.Location = &loc
		d.Message = &msg
	}

	d.Category = categorize(kind)
	logging.ClassifyDebug("classified diagnostic: kind=%q category=%s", kind, d.Category)
	return d
}

// lastFrame finds the last File "...", line N frame and the first
// category-bearing line after it.
func lastFrame(lines []string) (int, string, bool) {
	last := -1
	for i, line := range lines {
		if frameLine.MatchString(line) {
			last = i
		}
	}
	if last < 0 {
		return 0, "", false
	}

	m := frameLine.FindStringSubmatch(lines[last])
	loc, err := strconv.Atoi(m[2])
	if err != nil {
		return 0, "", false
	}
	for _, line := range lines[last+1:] {
		if categoryLine.MatchString(line) {
			return loc, strings.TrimSpace(line), true
		}
	}
	return 0, "", false
}

func lastNonEmpty(lines []string) string {
	for i := len(lines) - 1; i >= 0; i-- {
		if s := strings.TrimSpace(lines[i]); s != "" {
			return s
		}
	}
	return ""
}

func categorize(kind string) Category {
	for _, ck := range categoryKinds {
		if strings.Contains(kind, ck.substr) {
			return ck.category
		}
	}
	return CategoryUnknown
}
