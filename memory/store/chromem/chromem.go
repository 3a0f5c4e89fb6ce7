package chromem

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	chromem "github.com/philippgille/chromem-go"

	"github.com/becomeliminal/nim-pipeline/memory"
)

const collectionName = "tasks"

// ChromemStore wraps chromem-go for vector storage.
// chromem-go is a pure Go, embedded vector database ranking by cosine
// similarity.
type ChromemStore struct {
	db  *chromem.DB
	col *chromem.Collection
	mu  sync.Mutex
}

// New creates a new chromem-based store.
func New() (*ChromemStore, error) {
	db := chromem.NewDB()

	col, err := db.CreateCollection(
		collectionName,
		nil, // No collection metadata
		nil, // No embedding func (we provide embeddings)
	)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}

	return &ChromemStore{db: db, col: col}, nil
}

// Store saves a memory with its embedding.
func (s *ChromemStore) Store(ctx context.Context, mem memory.Memory) error {
	log.Printf("[CHROMEM] Storing memory: id=%s, type=%s", mem.ID(), mem.Type())

	doc, err := toDocument(mem)
	if err != nil {
		return err
	}

	// chromem rejects nResults above the document count; adds and queries
	// share one lock so the Count read in Query stays valid.
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("add document: %w", err)
	}
	return nil
}

// Query retrieves memories by vector similarity.
func (s *ChromemStore) Query(ctx context.Context, embedding []float32, limit int) ([]memory.Memory, error) {
	s.mu.Lock()
	n := s.col.Count()
	if limit > n {
		limit = n
	}
	if limit <= 0 {
		s.mu.Unlock()
		log.Printf("[CHROMEM] Collection is empty")
		return nil, nil
	}
	results, err := s.col.QueryEmbedding(ctx, embedding, limit, nil, nil)
	s.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("chromem query: %w", err)
	}

	log.Printf("[CHROMEM] Retrieved %d raw results", len(results))

	var memories []memory.Memory
	for i, result := range results {
		mem, err := fromResult(result)
		if err != nil {
			log.Printf("[CHROMEM] Skipping result #%d: %v", i+1, err)
			continue
		}
		memories = append(memories, mem)
	}
	return memories, nil
}

// Close releases resources.
func (s *ChromemStore) Close() error {
	// chromem-go keeps everything in memory, nothing to close
	return nil
}

// Metadata keys reserved by the store.
const (
	keyType      = "type"
	keyCreatedAt = "created_at"
)

// toDocument flattens a memory into a chromem document. Content is stored
// as JSON; metadata values that are not strings are JSON-encoded.
func toDocument(mem memory.Memory) (chromem.Document, error) {
	content, err := json.Marshal(mem.Content())
	if err != nil {
		return chromem.Document{}, fmt.Errorf("marshal content: %w", err)
	}

	meta := make(map[string]string, len(mem.Metadata())+2)
	for k, v := range mem.Metadata() {
		switch v := v.(type) {
		case string:
			meta[k] = v
		default:
			if b, err := json.Marshal(v); err == nil {
				meta[k] = string(b)
			}
		}
	}
	meta[keyType] = mem.Type()
	meta[keyCreatedAt] = mem.CreatedAt().Format(time.RFC3339)

	return chromem.Document{
		ID:        mem.ID(),
		Content:   string(content),
		Embedding: mem.Embedding(),
		Metadata:  meta,
	}, nil
}

// fromResult rebuilds a memory from a query result.
func fromResult(result chromem.Result) (memory.Memory, error) {
	if t := result.Metadata[keyType]; t != memory.TypeTask {
		return nil, fmt.Errorf("unknown memory type: %s", t)
	}

	var content struct {
		TaskID string   `json:"task_id"`
		Goal   string   `json:"goal"`
		Passed bool     `json:"passed"`
		Review string   `json:"review"`
		Steps  []string `json:"steps"`
	}
	if err := json.Unmarshal([]byte(result.Content), &content); err != nil {
		return nil, fmt.Errorf("unmarshal content: %w", err)
	}
	createdAt, _ := time.Parse(time.RFC3339, result.Metadata[keyCreatedAt])

	meta := make(map[string]interface{}, len(result.Metadata))
	for k, v := range result.Metadata {
		if k != keyType && k != keyCreatedAt {
			meta[k] = v
		}
	}

	return memory.NewTaskMemoryFromStorage(
		result.ID,
		createdAt,
		result.Embedding,
		content.TaskID,
		content.Goal,
		content.Passed,
		content.Review,
		content.Steps,
		meta,
	), nil
}
