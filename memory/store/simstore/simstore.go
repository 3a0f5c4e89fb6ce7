// Package simstore backs memory.Store with the pipeline's similarity store,
// ranking recalled memories by Euclidean distance.
package simstore

import (
	"context"
	"fmt"
	"log"

	"github.com/becomeliminal/nim-pipeline/memory"
	"github.com/becomeliminal/nim-pipeline/similarity"
)

const memoryKey = "memory"

// SimStore keeps memories as metadata of a similarity.Store.
type SimStore struct {
	index *similarity.Store
}

// New wraps an existing similarity store.
func New(index *similarity.Store) *SimStore {
	return &SimStore{index: index}
}

// Store saves a memory with its embedding.
func (s *SimStore) Store(ctx context.Context, mem memory.Memory) error {
	meta := similarity.Metadata{
		memoryKey: mem,
		"id":      mem.ID(),
		"type":    mem.Type(),
	}
	if err := s.index.Add(mem.Embedding(), meta); err != nil {
		return fmt.Errorf("add vector: %w", err)
	}
	return nil
}

// Query retrieves the memories nearest to embedding.
func (s *SimStore) Query(ctx context.Context, embedding []float32, limit int) ([]memory.Memory, error) {
	results, err := s.index.Search(embedding, limit)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	memories := make([]memory.Memory, 0, len(results))
	for i, r := range results {
		mem, ok := r.Metadata[memoryKey].(memory.Memory)
		if !ok {
			log.Printf("[SIMSTORE] Skipping result #%d: no memory attached", i+1)
			continue
		}
		memories = append(memories, mem)
	}
	return memories, nil
}

// Close releases resources. The similarity store is memory-resident.
func (s *SimStore) Close() error {
	return nil
}
