package similarity

import (
	"errors"
	"math/rand"
	"testing"
)

func randomVectors(r *rand.Rand, n, dim int) [][]float32 {
	out := make([][]float32, n)
	for i := range out {
		v := make([]float32, dim)
		for j := range v {
			v[j] = r.Float32()*2 - 1
		}
		out[i] = v
	}
	return out
}

func newStores(t *testing.T, dim int) map[string]*Store {
	t.Helper()
	flat, err := NewStore(dim)
	if err != nil {
		t.Fatalf("new flat store: %v", err)
	}
	brute, err := NewStore(dim, WithAccelerated(false))
	if err != nil {
		t.Fatalf("new brute-force store: %v", err)
	}
	return map[string]*Store{"flat": flat, "bruteforce": brute}
}

func TestNewStore_RejectsNonPositiveDim(t *testing.T) {
	if _, err := NewStore(0); err == nil {
		t.Fatalf("expected error for dim 0")
	}
}

func TestSearch_EmptyStore(t *testing.T) {
	for name, s := range newStores(t, 128) {
		res, err := s.Search(make([]float32, 128), 3)
		if err != nil {
			t.Fatalf("%s: search on empty store: %v", name, err)
		}
		if res == nil || len(res) != 0 {
			t.Fatalf("%s: expected empty non-nil result, got %v", name, res)
		}
	}
}

func TestAdd_RejectsWrongDimension(t *testing.T) {
	for name, s := range newStores(t, 4) {
		err := s.Add([]float32{1, 2, 3}, Metadata{"id": 1})
		if !errors.Is(err, ErrDimensionMismatch) {
			t.Fatalf("%s: expected ErrDimensionMismatch, got %v", name, err)
		}
		if s.Len() != 0 {
			t.Fatalf("%s: rejected vector was stored", name)
		}
		if _, err := s.Search([]float32{1, 2, 3, 4, 5}, 1); !errors.Is(err, ErrDimensionMismatch) {
			t.Fatalf("%s: expected ErrDimensionMismatch on search, got %v", name, err)
		}
	}
}

func TestSearch_OrdersByDistance(t *testing.T) {
	for name, s := range newStores(t, 2) {
		points := [][]float32{{5, 5}, {1, 0}, {0, 3}, {0, 0}, {-2, 0}}
		for i, p := range points {
			if err := s.Add(p, Metadata{"i": i}); err != nil {
				t.Fatalf("%s: add: %v", name, err)
			}
		}
		res, err := s.Search([]float32{0, 0}, 3)
		if err != nil {
			t.Fatalf("%s: search: %v", name, err)
		}
		want := []int{3, 1, 4}
		if len(res) != len(want) {
			t.Fatalf("%s: expected %d results, got %d", name, len(want), len(res))
		}
		for i, w := range want {
			if got := res[i].Metadata["i"]; got != w {
				t.Fatalf("%s: result %d: expected point %d, got %v", name, i, w, got)
			}
		}
		if res[1].Distance != 1 || res[2].Distance != 2 {
			t.Fatalf("%s: unexpected distances: %v", name, res)
		}
	}
}

func TestSearch_TiesKeepInsertionOrder(t *testing.T) {
	for name, s := range newStores(t, 2) {
		for i, p := range [][]float32{{1, 0}, {0, 1}, {-1, 0}, {0, -1}} {
			_ = s.Add(p, Metadata{"i": i})
		}
		res, err := s.Search([]float32{0, 0}, 4)
		if err != nil {
			t.Fatalf("%s: search: %v", name, err)
		}
		for i := range res {
			if res[i].Metadata["i"] != i {
				t.Fatalf("%s: tie order broken at %d: %v", name, i, res[i].Metadata)
			}
		}
	}
}

func TestSearch_KLargerThanStore(t *testing.T) {
	for name, s := range newStores(t, 3) {
		_ = s.Add([]float32{1, 1, 1}, Metadata{"a": true})
		res, err := s.Search([]float32{0, 0, 0}, 10)
		if err != nil {
			t.Fatalf("%s: search: %v", name, err)
		}
		if len(res) != 1 {
			t.Fatalf("%s: expected 1 result, got %d", name, len(res))
		}
		res, err = s.Search([]float32{0, 0, 0}, 0)
		if err != nil || len(res) != 0 {
			t.Fatalf("%s: expected empty result for k=0, got %v (%v)", name, res, err)
		}
	}
}

func TestAdd_CopiesVector(t *testing.T) {
	s, _ := NewStore(2)
	v := []float32{3, 4}
	_ = s.Add(v, nil)
	v[0], v[1] = 0, 0
	res, _ := s.Search([]float32{0, 0}, 1)
	if len(res) != 1 || res[0].Distance != 5 {
		t.Fatalf("stored vector was aliased: %v", res)
	}
}

func TestIndexes_Conform(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	const dim = 16
	data := randomVectors(r, 3000, dim)
	queries := randomVectors(r, 25, dim)

	flat := NewFlat(dim)
	flat.shardSize = 100 // force the parallel path
	flat.workers = 8
	brute := NewBruteForce()
	for _, v := range data {
		flat.Add(v)
		brute.Add(v)
	}
	// duplicate a vector so exact ties occur across shards
	flat.Add(data[7])
	brute.Add(data[7])

	for qi, q := range append(queries, data[7]) {
		for _, k := range []int{1, 5, 50} {
			got := flat.Search(q, k)
			want := brute.Search(q, k)
			if len(got) != len(want) {
				t.Fatalf("query %d k=%d: length %d != %d", qi, k, len(got), len(want))
			}
			for i := range want {
				if got[i] != want[i] {
					t.Fatalf("query %d k=%d: position %d: flat %+v, bruteforce %+v", qi, k, i, got[i], want[i])
				}
			}
			for i := 1; i < len(got); i++ {
				if got[i].Distance < got[i-1].Distance {
					t.Fatalf("query %d k=%d: results not sorted at %d", qi, k, i)
				}
			}
		}
	}
}

func TestSearch_SortedForRandomData(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for name, s := range newStores(t, 8) {
		for i, v := range randomVectors(r, 200, 8) {
			_ = s.Add(v, Metadata{"i": i})
		}
		res, err := s.Search(randomVectors(r, 1, 8)[0], 20)
		if err != nil {
			t.Fatalf("%s: search: %v", name, err)
		}
		if len(res) != 20 {
			t.Fatalf("%s: expected 20 results, got %d", name, len(res))
		}
		for i := 1; i < len(res); i++ {
			if res[i].Distance < res[i-1].Distance {
				t.Fatalf("%s: not sorted at %d", name, i)
			}
		}
	}
}
