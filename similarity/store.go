// Package similarity provides a fixed-dimension vector store with
// Euclidean nearest-neighbor search.
//
// A Store keeps metadata alongside an Index. Two Index implementations ship
// with the package: Flat, an accelerated exact index over a contiguous slab
// scanned in parallel shards, and BruteForce, the linear-scan baseline. Both
// order results by ascending L2 distance and break ties by insertion order,
// so they are interchangeable.
package similarity

import (
	"errors"
	"fmt"
	"math"
	"sync"
)

// ErrDimensionMismatch is returned when a vector's length differs from the
// store's dimension.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// Metadata is the arbitrary key-value object attached to a stored vector.
type Metadata map[string]interface{}

// Result is one search hit.
type Result struct {
	Distance float32  `json:"distance"`
	Metadata Metadata `json:"metadata"`
}

// Neighbor identifies a stored vector by insertion position together with
// its squared L2 distance to the query.
type Neighbor struct {
	ID       int
	Distance float64
}

// Index is the nearest-neighbor capability behind a Store.
//
// Implementations are called with the Store's lock held and need not be safe
// for concurrent use on their own. Search must return at most k neighbors
// ordered by ascending distance, ties broken by ascending ID.
type Index interface {
	Add(vec []float32)
	Search(query []float32, k int) []Neighbor
	Len() int
}

// Option configures a Store.
type Option func(*Store)

// WithIndex installs a specific Index implementation.
func WithIndex(idx Index) Option {
	return func(s *Store) {
		s.index = idx
	}
}

// WithAccelerated selects the Flat index (true, the default) or the
// brute-force baseline (false). Ignored when WithIndex is also given.
func WithAccelerated(on bool) Option {
	return func(s *Store) {
		s.accelerated = on
	}
}

// Store holds embedding records. Records are append-only.
type Store struct {
	dim         int
	accelerated bool

	mu       sync.RWMutex
	index    Index
	metadata []Metadata
}

// NewStore creates a store for vectors of length dim.
func NewStore(dim int, opts ...Option) (*Store, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("dimension must be positive, got %d", dim)
	}
	s := &Store{dim: dim, accelerated: true}
	for _, opt := range opts {
		opt(s)
	}
	if s.index == nil {
		if s.accelerated {
			s.index = NewFlat(dim)
		} else {
			s.index = NewBruteForce()
		}
	}
	return s, nil
}

// Dim returns the fixed vector length.
func (s *Store) Dim() int {
	return s.dim
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.metadata)
}

// Add appends a record. The vector is copied.
func (s *Store) Add(vector []float32, metadata Metadata) error {
	if err := s.checkDim(vector); err != nil {
		return err
	}
	vec := make([]float32, len(vector))
	copy(vec, vector)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.index.Add(vec)
	s.metadata = append(s.metadata, metadata)
	return nil
}

// Search returns up to k records nearest to vector, closest first.
// An empty store or a non-positive k yields an empty result.
func (s *Store) Search(vector []float32, k int) ([]Result, error) {
	if err := s.checkDim(vector); err != nil {
		return nil, err
	}
	if k <= 0 {
		return []Result{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.metadata) == 0 {
		return []Result{}, nil
	}

	neighbors := s.index.Search(vector, k)
	results := make([]Result, 0, len(neighbors))
	for _, n := range neighbors {
		if n.ID < 0 || n.ID >= len(s.metadata) {
			continue
		}
		results = append(results, Result{
			Distance: float32(math.Sqrt(n.Distance)),
			Metadata: s.metadata[n.ID],
		})
	}
	return results, nil
}

func (s *Store) checkDim(vector []float32) error {
	if len(vector) != s.dim {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vector), s.dim)
	}
	return nil
}

// squaredL2 is shared by every index so all paths produce bit-identical
// distances.
func squaredL2(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return sum
}

// less orders neighbors by distance, then insertion order.
func less(a, b Neighbor) bool {
	if a.Distance != b.Distance {
		return a.Distance < b.Distance
	}
	return a.ID < b.ID
}
