package similarity

import "sort"

// BruteForce computes the distance to every stored vector on each search.
// It is the reference implementation the accelerated index is tested against.
type BruteForce struct {
	vectors [][]float32
}

// NewBruteForce creates an empty linear-scan index.
func NewBruteForce() *BruteForce {
	return &BruteForce{}
}

func (b *BruteForce) Add(vec []float32) {
	b.vectors = append(b.vectors, vec)
}

func (b *BruteForce) Len() int {
	return len(b.vectors)
}

func (b *BruteForce) Search(query []float32, k int) []Neighbor {
	if k <= 0 || len(b.vectors) == 0 {
		return nil
	}
	all := make([]Neighbor, len(b.vectors))
	for i, v := range b.vectors {
		all[i] = Neighbor{ID: i, Distance: squaredL2(v, query)}
	}
	sort.Slice(all, func(i, j int) bool {
		return less(all[i], all[j])
	})
	if k < len(all) {
		all = all[:k]
	}
	return all
}
