package memory

import (
	"context"
	"time"

	"github.com/becomeliminal/nim-pipeline/core"
)

// Memory is the core interface for recalled content.
// Implementations control their own content structure, prompt formatting
// and metadata schema; TaskMemory is the one the pipeline records.
type Memory interface {
	// Identity
	ID() string
	Type() string // Memory type identifier (e.g., "task")

	// Content & Metadata
	Content() interface{}             // Memory-specific data structure
	Metadata() map[string]interface{} // Flexible metadata for custom fields

	// Temporal
	CreatedAt() time.Time

	// Operations
	Format(ctx FormatContext) string // Formats this memory for prompt injection
	Embedding() []float32            // Vector for similarity search
	SetEmbedding([]float32)          // Set embedding vector
}

// FormatContext provides context for memory formatting.
type FormatContext struct {
	Query     string // Current goal being planned
	MaxLength int    // Max characters for this memory's output
}

// Manager orchestrates recall. The orchestrator decides WHEN (before
// planning, after done); the Manager decides HOW.
type Manager interface {
	// Retrieve finds memories related to query and returns them formatted
	// for prompt injection. An empty string means nothing relevant.
	Retrieve(ctx context.Context, query string) (string, error)

	// Record stores a finished task.
	Record(ctx context.Context, task core.Task) error
}

// Store is the vector storage backend interface.
// Implementations: simstore (similarity.Store, L2), chromem (chromem-go, cosine).
type Store interface {
	// Store saves a memory. The embedding must be set before calling Store.
	Store(ctx context.Context, mem Memory) error

	// Query retrieves memories by vector similarity, most similar first.
	Query(ctx context.Context, embedding []float32, limit int) ([]Memory, error)

	// Close releases resources.
	Close() error
}

// Embedder converts text to vector embeddings.
// Implementations: mock (feature hashing), cache (ristretto wrapper), onnx.
type Embedder interface {
	// Embed converts a single text to embedding vector.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns embedding vector size.
	Dimensions() int
}
