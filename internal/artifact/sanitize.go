package artifact

import (
	"regexp"
	"strings"
)

var (
	// fenceLine matches a whole fence line, including an optional language tag.
	fenceLine = regexp.MustCompile("(?m)^[ \\t]*```[ \\t]*[\\w+#.-]*[ \\t]*$")
	// fenceToken matches any delimiter left inside a line.
	fenceToken = regexp.MustCompile("```(?:python|py)?")
)

// ContainsFence reports whether code still carries a triple-backtick delimiter.
func ContainsFence(code string) bool {
	return strings.Contains(code, "```")
}

// StripFences removes triple-backtick fences and their language tags.
// The rest of the text is left as is.
func StripFences(code string) string {
	if !ContainsFence(code) {
		return code
	}
	code = fenceLine.ReplaceAllString(code, "")
	return fenceToken.ReplaceAllString(code, "")
}

// Sanitize prepares artifact text for inspection and execution.
func Sanitize(code string) string {
	return strings.TrimSpace(StripFences(code))
}
