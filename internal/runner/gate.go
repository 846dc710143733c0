package runner

import (
	"context"
	"regexp"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"

	"mender/internal/logging"
)

// SkippedMessage is the details text of a SKIPPED verdict.
const SkippedMessage = "Non-Python code detected. Only Python artifacts can be tested."

// structuralNodes are tree-sitter node types that mark real Python code
// rather than a bare word or sentence that happens to parse.
var structuralNodes = map[string]bool{
	"function_definition":     true,
	"class_definition":        true,
	"decorated_definition":    true,
	"import_statement":        true,
	"import_from_statement":   true,
	"if_statement":            true,
	"for_statement":           true,
	"while_statement":         true,
	"try_statement":           true,
	"with_statement":          true,
	"return_statement":        true,
	"assignment":              true,
	"augmented_assignment":    true,
	"call":                    true,
	"assert_statement":        true,
	"raise_statement":         true,
	"global_statement":        true,
	"future_import_statement": true,
}

// pythonMarkers is the lexical fallback used when the parse has errors, so
// that broken Python still reaches the interpreter and gets a real diagnostic.
// Each marker needs Python punctuation after the keyword so English sentences
// that open with the same word do not match.
var pythonMarkers = regexp.MustCompile(`(?m)^[ \t]*(?:` +
	`def[ \t]+\w+[ \t]*\(|` +
	`class[ \t]+\w+[ \t]*[:(]|` +
	`import[ \t]+[\w.]+[ \t]*(?:,|#|$|as[ \t])|` +
	`from[ \t]+[\w.]+[ \t]+import[ \t]+[\w*(])`)

// IsPython reports whether code looks like Python worth executing.
func IsPython(ctx context.Context, code string) bool {
	if code == "" {
		return false
	}

	// New parser per call; runs happen concurrently.
	parser := sitter.NewParser()
	parser.SetLanguage(python.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, []byte(code))
	if err != nil {
		logging.RunnerWarn("language gate: parse failed, using lexical markers: %v", err)
		return pythonMarkers.MatchString(code)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root == nil {
		return pythonMarkers.MatchString(code)
	}
	if !root.HasError() {
		return hasStructuralNode(root)
	}

	matched := pythonMarkers.MatchString(code)
	logging.RunnerDebug("language gate: parse has errors, lexical markers matched=%v", matched)
	return matched
}

func hasStructuralNode(node *sitter.Node) bool {
	if structuralNodes[node.Type()] {
		return true
	}
	for i := 0; i < int(node.NamedChildCount()); i++ {
		if hasStructuralNode(node.NamedChild(i)) {
			return true
		}
	}
	return false
}
