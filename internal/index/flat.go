package index

import (
	"errors"
	"fmt"
	"sort"
)

// ErrDimensionMismatch is returned when a vector does not match the index
// dimension.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// Flat is an exact nearest-neighbor structure over L2 distance. Corpora are
// user-scale, so a brute-force scan beats an approximate index: no recall
// bugs, no tuning. Flat is not safe for concurrent use; the Manager
// serializes access per user.
type Flat struct {
	dim     int
	vectors [][]float32
}

func NewFlat(dimension int) (*Flat, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("invalid index dimension %d", dimension)
	}
	return &Flat{dim: dimension}, nil
}

func (f *Flat) Dimension() int { return f.dim }

func (f *Flat) Len() int { return len(f.vectors) }

// Append adds vectors in order. All-or-nothing: dimensions are validated up
// front so a bad row never leaves a partial append behind.
func (f *Flat) Append(vectors [][]float32) error {
	for i, v := range vectors {
		if len(v) != f.dim {
			return fmt.Errorf("%w: row %d has %d values, want %d", ErrDimensionMismatch, i, len(v), f.dim)
		}
	}
	f.vectors = append(f.vectors, vectors...)
	return nil
}

// Truncate drops all vectors past position n. Used to roll back a failed
// append batch.
func (f *Flat) Truncate(n int) {
	if n < 0 || n >= len(f.vectors) {
		return
	}
	f.vectors = f.vectors[:n]
}

// VectorAt returns the stored vector at position i. The returned slice
// aliases internal memory and must not be mutated.
func (f *Flat) VectorAt(i int) []float32 {
	return f.vectors[i]
}

// Neighbor is a search hit: the insertion position of a stored vector and
// its squared L2 distance to the query.
type Neighbor struct {
	Position int
	Distance float64
}

// Search returns up to topK neighbors ranked by ascending distance. topK is
// clamped to the vector count; ties keep insertion order.
func (f *Flat) Search(query []float32, topK int) ([]Neighbor, error) {
	if len(query) != f.dim {
		return nil, fmt.Errorf("%w: query has %d values, want %d", ErrDimensionMismatch, len(query), f.dim)
	}
	if topK <= 0 || len(f.vectors) == 0 {
		return nil, nil
	}

	neighbors := make([]Neighbor, len(f.vectors))
	for i, v := range f.vectors {
		neighbors[i] = Neighbor{Position: i, Distance: squaredL2(query, v)}
	}

	sort.SliceStable(neighbors, func(a, b int) bool {
		return neighbors[a].Distance < neighbors[b].Distance
	})

	if topK < len(neighbors) {
		neighbors = neighbors[:topK]
	}
	return neighbors, nil
}

func squaredL2(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return sum
}
