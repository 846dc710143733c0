package collab

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// BatchTask is one pre-written artifact in a batch file.
type BatchTask struct {
	ID   string `yaml:"id"`
	Code string `yaml:"code"`
}

// Batch is an offline source of tasks and artifacts. It serves as both the
// Decomposer and the Generator so a run needs no LLM.
type Batch struct {
	Request string      `yaml:"request"`
	Tasks   []BatchTask `yaml:"tasks"`
}

// LoadBatch reads and validates a YAML batch file.
func LoadBatch(path string) (*Batch, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read batch: %w", err)
	}
	return ParseBatch(data)
}

// ParseBatch decodes a YAML batch.
func ParseBatch(data []byte) (*Batch, error) {
	var b Batch
	if err := yaml.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("failed to parse batch: %w", err)
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return &b, nil
}

// Validate rejects empty batches and missing or duplicate task ids.
func (b *Batch) Validate() error {
	if len(b.Tasks) == 0 {
		return fmt.Errorf("batch has no tasks")
	}
	seen := make(map[string]bool, len(b.Tasks))
	for i, t := range b.Tasks {
		if t.ID == "" {
			return fmt.Errorf("batch task %d has no id", i)
		}
		if seen[t.ID] {
			return fmt.Errorf("duplicate batch task id: %s", t.ID)
		}
		seen[t.ID] = true
	}
	return nil
}

// Decompose returns the batch's task ids in file order.
func (b *Batch) Decompose(ctx context.Context, _ string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ids := make([]string, len(b.Tasks))
	for i, t := range b.Tasks {
		ids[i] = t.ID
	}
	return ids, nil
}

// Generate returns the stored code for task.
func (b *Batch) Generate(ctx context.Context, _ string, task string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	for _, t := range b.Tasks {
		if t.ID == task {
			return t.Code, nil
		}
	}
	return "", fmt.Errorf("task not in batch: %s", task)
}
