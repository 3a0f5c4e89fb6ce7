package memory

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/becomeliminal/nim-pipeline/core"
)

// SimpleManager is the default Manager implementation.
//
// Features:
//   - Vector similarity search over finished tasks
//   - Automatic embedding
//   - Memory formatting
//   - Filtering of tasks that never produced a result
type SimpleManager struct {
	store    Store
	embedder Embedder // Internal: the orchestrator never sees this
	config   *Config
}

// NewSimpleManager creates a new SimpleManager.
func NewSimpleManager(store Store, embedder Embedder, config *Config) *SimpleManager {
	if config == nil {
		config = DefaultConfig
	}
	return &SimpleManager{
		store:    store,
		embedder: embedder,
		config:   config,
	}
}

// Retrieve finds related prior tasks and returns a formatted string.
func (m *SimpleManager) Retrieve(ctx context.Context, query string) (string, error) {
	if !m.config.Enabled {
		return "", nil // Memory disabled
	}

	embedding, err := m.embedder.Embed(ctx, query)
	if err != nil {
		return "", fmt.Errorf("embed query: %w", err)
	}

	memories, err := m.store.Query(ctx, embedding, m.maxResults())
	if err != nil {
		return "", fmt.Errorf("query store: %w", err)
	}

	log.Printf("[MEMORY] Retrieved %d memories for query: %q", len(memories), truncateLog(query, 50))
	if len(memories) == 0 {
		return "", nil
	}

	return m.formatMemories(memories, query), nil
}

// Record stores a finished task. Tasks that never reached done are skipped.
func (m *SimpleManager) Record(ctx context.Context, task core.Task) error {
	if !m.config.Enabled {
		return nil // Memory disabled
	}
	if task.Status != core.StatusDone || task.Result == nil {
		log.Printf("[MEMORY] Task %s not worth storing (status=%s)", task.ID, task.Status)
		return nil
	}

	mem := NewTaskMemory(task)
	embedding, err := m.embedder.Embed(ctx, mem.FormatForEmbedding())
	if err != nil {
		return fmt.Errorf("embed task %s: %w", task.ID, err)
	}
	mem.SetEmbedding(embedding)

	if err := m.store.Store(ctx, mem); err != nil {
		return fmt.Errorf("store task %s: %w", task.ID, err)
	}

	log.Printf("[MEMORY] Stored task %s: passed=%t steps=%d", task.ID, mem.Passed, len(mem.Steps))
	return nil
}

// formatMemories formats retrieved memories into a structured string.
func (m *SimpleManager) formatMemories(memories []Memory, query string) string {
	var parts []string
	parts = append(parts, "=== RELEVANT PAST TASKS ===\n")

	maxLengthPerMemory := 2000 / len(memories)
	if maxLengthPerMemory < 100 {
		maxLengthPerMemory = 100
	}

	for i, mem := range memories {
		formatted := mem.Format(FormatContext{
			Query:     query,
			MaxLength: maxLengthPerMemory,
		})
		parts = append(parts, fmt.Sprintf("%d. %s\n", i+1, formatted))
	}

	return strings.Join(parts, "\n")
}

func (m *SimpleManager) maxResults() int {
	if m.config.MaxResults <= 0 {
		return DefaultConfig.MaxResults
	}
	return m.config.MaxResults
}

// truncateLog truncates text for logging.
func truncateLog(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return cut(s, maxLen) + "..."
}

// Config holds SimpleManager configuration.
type Config struct {
	// Enabled toggles recall on/off.
	Enabled bool

	// MaxResults caps how many prior tasks are injected into a plan prompt.
	// Default: 3
	MaxResults int
}

// DefaultConfig returns sensible defaults.
var DefaultConfig = &Config{
	Enabled:    true,
	MaxResults: 3,
}
