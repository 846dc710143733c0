package collab

import (
	"context"
	"fmt"
	"strings"
)

const plannerSystemPrompt = "You are the Planner Agent. Your task is to break down the user's high-level prompt into smaller subtasks for code generation."

const generatorSystemPrompt = "You are the Code Generator Agent. Generate clean, functional, and well-documented code for the given task."

// Planner decomposes a request by asking a completer for a bullet list.
type Planner struct {
	completer Completer
}

// NewPlanner creates an LLM-backed Decomposer.
func NewPlanner(c Completer) *Planner {
	return &Planner{completer: c}
}

// Decompose implements Decomposer.
func (p *Planner) Decompose(ctx context.Context, request string) ([]string, error) {
	prompt := fmt.Sprintf("User Request: %s\n\nReturn each task as a bullet point list.", request)

	resp, err := p.completer.CompleteWithSystem(ctx, plannerSystemPrompt, prompt)
	if err != nil {
		return nil, fmt.Errorf("planner completion failed: %w", err)
	}

	tasks := ParseTaskList(resp)
	if len(tasks) == 0 {
		return nil, fmt.Errorf("planner returned no tasks")
	}
	return tasks, nil
}

// CodeGenerator writes an artifact per task with a completer.
type CodeGenerator struct {
	completer Completer
}

// NewCodeGenerator creates an LLM-backed Generator.
func NewCodeGenerator(c Completer) *CodeGenerator {
	return &CodeGenerator{completer: c}
}

// Generate implements Generator.
func (g *CodeGenerator) Generate(ctx context.Context, request, task string) (string, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "High-Level Project Request:\n%s\n\n", request)
	fmt.Fprintf(&sb, "Specific Task to Implement:\n%s\n\n", task)
	sb.WriteString("Please ensure:\n")
	sb.WriteString("- The code is complete and self-contained.\n")
	sb.WriteString("- Include necessary imports.\n")
	sb.WriteString("- Add comments to explain the logic.\n")

	code, err := g.completer.CompleteWithSystem(ctx, generatorSystemPrompt, sb.String())
	if err != nil {
		return "", fmt.Errorf("generator completion failed: %w", err)
	}
	return code, nil
}
