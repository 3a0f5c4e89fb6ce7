package similarity

import (
	"container/heap"
	"math"
	"runtime"
	"sort"
	"sync"
)

// defaultShardSize is the minimum number of vectors a search goroutine scans.
const defaultShardSize = 1024

// Flat is an exact L2 index over a single contiguous slab of float32s.
//
// Searches split the slab into shards scanned in parallel. Each shard keeps
// a bounded max-heap of its k best candidates and abandons a vector as soon
// as its partial distance exceeds the current worst kept candidate.
type Flat struct {
	dim       int
	slab      []float32
	n         int
	workers   int
	shardSize int
}

// NewFlat creates an empty accelerated index for vectors of length dim.
func NewFlat(dim int) *Flat {
	return &Flat{
		dim:       dim,
		workers:   runtime.GOMAXPROCS(0),
		shardSize: defaultShardSize,
	}
}

func (f *Flat) Add(vec []float32) {
	f.slab = append(f.slab, vec...)
	f.n++
}

func (f *Flat) Len() int {
	return f.n
}

func (f *Flat) Search(query []float32, k int) []Neighbor {
	if k <= 0 || f.n == 0 {
		return nil
	}

	shards := (f.n + f.shardSize - 1) / f.shardSize
	if shards > f.workers {
		shards = f.workers
	}
	if shards < 1 {
		shards = 1
	}
	per := (f.n + shards - 1) / shards

	partial := make([][]Neighbor, shards)
	if shards == 1 {
		partial[0] = f.scan(query, 0, f.n, k)
	} else {
		var wg sync.WaitGroup
		for s := 0; s < shards; s++ {
			lo := s * per
			hi := lo + per
			if hi > f.n {
				hi = f.n
			}
			if lo >= hi {
				continue
			}
			wg.Add(1)
			go func(s, lo, hi int) {
				defer wg.Done()
				partial[s] = f.scan(query, lo, hi, k)
			}(s, lo, hi)
		}
		wg.Wait()
	}

	var merged []Neighbor
	for _, p := range partial {
		merged = append(merged, p...)
	}
	sort.Slice(merged, func(i, j int) bool {
		return less(merged[i], merged[j])
	})
	if k < len(merged) {
		merged = merged[:k]
	}
	return merged
}

// scan returns the k nearest vectors with IDs in [lo, hi), unordered.
func (f *Flat) scan(query []float32, lo, hi, k int) []Neighbor {
	h := make(worstFirst, 0, k)
	bound := math.Inf(1)
	for id := lo; id < hi; id++ {
		vec := f.slab[id*f.dim : (id+1)*f.dim]
		var sum float64
		abandoned := false
		for i := range vec {
			d := float64(vec[i]) - float64(query[i])
			sum += d * d
			if sum > bound {
				abandoned = true
				break
			}
		}
		if abandoned {
			continue
		}
		cand := Neighbor{ID: id, Distance: sum}
		if len(h) < k {
			heap.Push(&h, cand)
		} else if less(cand, h[0]) {
			h[0] = cand
			heap.Fix(&h, 0)
		} else {
			continue
		}
		if len(h) == k {
			bound = h[0].Distance
		}
	}
	return h
}

// worstFirst is a max-heap: the root is the candidate to evict next.
type worstFirst []Neighbor

func (h worstFirst) Len() int           { return len(h) }
func (h worstFirst) Less(i, j int) bool { return less(h[j], h[i]) }
func (h worstFirst) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *worstFirst) Push(x interface{}) {
	*h = append(*h, x.(Neighbor))
}

func (h *worstFirst) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
