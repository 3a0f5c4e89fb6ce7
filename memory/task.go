package memory

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/becomeliminal/nim-pipeline/core"
	"github.com/google/uuid"
)

// TypeTask identifies TaskMemory in stores.
const TypeTask = "task"

// TaskMemory remembers a finished pipeline run so later goals can build on it.
type TaskMemory struct {
	id        string
	createdAt time.Time
	embedding []float32
	metadata  map[string]interface{}

	TaskID string
	Goal   string
	Passed bool
	Review string
	Steps  []string
}

// NewTaskMemory creates a TaskMemory from a done task.
func NewTaskMemory(task core.Task) *TaskMemory {
	steps := make([]string, 0, len(task.Plan))
	for _, s := range task.Plan {
		steps = append(steps, s.Instruction)
	}

	var passed bool
	var review string
	if task.Review != nil {
		passed = task.Review.Passed
		review = task.Review.Review
	}

	failedSteps := 0
	for _, r := range task.Execution {
		if r.IsError() {
			failedSteps++
		}
	}

	return &TaskMemory{
		id:        uuid.New().String(),
		createdAt: time.Now(),
		metadata: map[string]interface{}{
			"task_id":      task.ID,
			"passed":       passed,
			"failed_steps": failedSteps,
		},
		TaskID: task.ID,
		Goal:   task.Goal,
		Passed: passed,
		Review: review,
		Steps:  steps,
	}
}

// NewTaskMemoryFromStorage creates a TaskMemory from stored data.
// This is used by Store implementations when deserializing.
func NewTaskMemoryFromStorage(
	id string,
	createdAt time.Time,
	embedding []float32,
	taskID string,
	goal string,
	passed bool,
	review string,
	steps []string,
	metadata map[string]interface{},
) *TaskMemory {
	return &TaskMemory{
		id:        id,
		createdAt: createdAt,
		embedding: embedding,
		metadata:  metadata,
		TaskID:    taskID,
		Goal:      goal,
		Passed:    passed,
		Review:    review,
		Steps:     steps,
	}
}

// Memory interface implementation

func (t *TaskMemory) ID() string {
	return t.id
}

func (t *TaskMemory) Type() string {
	return TypeTask
}

func (t *TaskMemory) Content() interface{} {
	return map[string]interface{}{
		"task_id": t.TaskID,
		"goal":    t.Goal,
		"passed":  t.Passed,
		"review":  t.Review,
		"steps":   t.Steps,
	}
}

func (t *TaskMemory) Metadata() map[string]interface{} {
	return t.metadata
}

func (t *TaskMemory) CreatedAt() time.Time {
	return t.createdAt
}

func (t *TaskMemory) Embedding() []float32 {
	return t.embedding
}

func (t *TaskMemory) SetEmbedding(emb []float32) {
	t.embedding = emb
}

// Format produces a readable summary of the prior task.
func (t *TaskMemory) Format(ctx FormatContext) string {
	status := "Passed"
	if !t.Passed {
		status = "Failed review"
	}

	var parts []string
	parts = append(parts, fmt.Sprintf("[%s] %s", status, truncate(t.Goal, ctx.MaxLength/4)))
	if len(t.Steps) > 0 {
		parts = append(parts, fmt.Sprintf("  Plan: %s", truncate(strings.Join(t.Steps, "; "), ctx.MaxLength/4)))
	}
	if t.Review != "" {
		parts = append(parts, fmt.Sprintf("  Review: %q", truncate(t.Review, ctx.MaxLength/2)))
	}
	return strings.Join(parts, "\n")
}

// FormatForEmbedding returns the text the Manager embeds. Only the goal is
// used so a new goal's query vector lines up with past goals.
func (t *TaskMemory) FormatForEmbedding() string {
	return t.Goal
}

// truncate truncates a string to maxLen, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	if maxLen < 3 {
		return "..."
	}
	return cut(s, maxLen-3) + "..."
}

// cut returns at most n bytes of s without splitting a rune.
func cut(s string, n int) string {
	if n >= len(s) {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
