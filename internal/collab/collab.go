// Package collab connects the orchestrator to its external collaborators:
// the decomposition service that splits a request into tasks and the
// generation service that writes code for each task.
package collab

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"mender/internal/artifact"
	"mender/internal/logging"
)

// Decomposer turns a free-form request into task descriptions.
type Decomposer interface {
	Decompose(ctx context.Context, request string) ([]string, error)
}

// Generator writes a candidate code artifact for one task.
type Generator interface {
	Generate(ctx context.Context, request, task string) (string, error)
}

var (
	boldMarkup   = regexp.MustCompile(`\*\*(.*?)\*\*`)
	bulletPrefix = regexp.MustCompile(`^[\s*\-•]+`)
)

// CleanTaskLine strips bold markup and leading bullet characters.
func CleanTaskLine(line string) string {
	line = boldMarkup.ReplaceAllString(line, "$1")
	line = bulletPrefix.ReplaceAllString(line, "")
	return strings.TrimSpace(line)
}

// ParseTaskList splits a bullet-list response into cleaned task lines.
// Lines that are empty before or after cleaning are dropped.
func ParseTaskList(response string) []string {
	var tasks []string
	for _, line := range strings.Split(strings.TrimSpace(response), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if task := CleanTaskLine(line); task != "" {
			tasks = append(tasks, task)
		}
	}
	return tasks
}

// BuildStore decomposes request and generates one artifact per task.
//
// Collaborator failures never abort the batch. A failed decomposition becomes
// a single placeholder task whose artifact is the error text; a failed
// generation stores "Error generating code: <err>" as that task's artifact.
// Both then surface as failures in the normal loop.
func BuildStore(ctx context.Context, d Decomposer, g Generator, request string) *artifact.Store {
	store := artifact.NewStore()

	tasks, err := d.Decompose(ctx, request)
	if err != nil {
		placeholder := fmt.Sprintf("Error decomposing request: %v", err)
		logging.CollabError("decomposition failed: %v", err)
		store.Add(artifact.TaskID(placeholder), placeholder)
		return store
	}
	logging.Collab("decomposed request into %d tasks", len(tasks))

	for _, task := range tasks {
		code, err := g.Generate(ctx, request, task)
		if err != nil {
			logging.CollabWarn("generation failed for %q: %v", task, err)
			code = fmt.Sprintf("Error generating code: %v", err)
		}
		id := store.Add(artifact.TaskID(task), code)
		if string(id) != task {
			logging.CollabWarn("duplicate task %q stored as %q", task, id)
		}
	}
	return store
}
