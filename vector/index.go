// Package vector provides a per-session in-memory index over chunk
// embeddings using brute-force inner product search. Vectors are L2
// normalized on insert, so inner product equals cosine similarity.
package vector

import (
	"fmt"
	"math"
	"sort"
	"sync"
)

// Result is a single similarity search hit; ID is a chunk id.
type Result struct {
	ID    string
	Score float64
}

type Index struct {
	mu        sync.RWMutex
	dimension int
	ids       []string
	vectors   [][]float32
}

func NewIndex(dimension int) (*Index, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("dimension must be positive")
	}
	return &Index{dimension: dimension}, nil
}

func (ix *Index) Dimension() int {
	return ix.dimension
}

// Add appends vectors under the given ids, normalizing copies of the input.
func (ix *Index) Add(ids []string, vectors [][]float32) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch: %d vs %d", len(ids), len(vectors))
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	for i, id := range ids {
		if len(vectors[i]) != ix.dimension {
			return fmt.Errorf("vector dimension mismatch: got %d, expected %d", len(vectors[i]), ix.dimension)
		}
		ix.ids = append(ix.ids, id)
		ix.vectors = append(ix.vectors, normalize(vectors[i]))
	}

	return nil
}

// Search returns the top-k entries by cosine similarity, most similar first.
// Ties keep insertion order, so results are deterministic for a fixed index
// and query.
func (ix *Index) Search(query []float32, k int) ([]Result, error) {
	if len(query) != ix.dimension {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(query), ix.dimension)
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if k <= 0 || len(ix.ids) == 0 {
		return nil, nil
	}

	q := normalize(query)
	scored := make([]Result, len(ix.ids))
	for i, vec := range ix.vectors {
		var dot float64
		for j := 0; j < ix.dimension; j++ {
			dot += float64(q[j] * vec[j])
		}
		scored[i] = Result{ID: ix.ids[i], Score: dot}
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })

	if k > len(scored) {
		k = len(scored)
	}
	return scored[:k], nil
}

// Size returns the number of indexed vectors.
func (ix *Index) Size() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.ids)
}

func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}

	out := make([]float32, len(v))
	norm := math.Sqrt(sum)
	if norm == 0 {
		copy(out, v)
		return out
	}

	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}
