package ai

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
)

// HashEmbedder is a deterministic bag-of-words embedder: each token is hashed
// into a bucket and the vector is L2-normalized. It needs no network access,
// which makes it usable in tests and offline development. Texts sharing many
// tokens land close together, which is enough for exercising retrieval.
type HashEmbedder struct {
	dim int
}

func NewHashEmbedder(dimension int) *HashEmbedder {
	return &HashEmbedder{dim: dimension}
}

func (e *HashEmbedder) Dimension() int {
	return e.dim
}

func (e *HashEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = e.encode(text)
	}
	return vectors, nil
}

func (e *HashEmbedder) EmbedOne(_ context.Context, text string) ([]float32, error) {
	return e.encode(text), nil
}

func (e *HashEmbedder) encode(text string) []float32 {
	vec := make([]float32, e.dim)

	for _, token := range strings.Fields(strings.ToLower(text)) {
		token = strings.Trim(token, ".,;:!?()[]{}\"'")
		if token == "" {
			continue
		}
		h := fnv.New32a()
		h.Write([]byte(token))
		vec[h.Sum32()%uint32(e.dim)]++
	}

	var norm float32
	for _, v := range vec {
		norm += v * v
	}
	if norm > 0 {
		inv := float32(1.0 / math.Sqrt(float64(norm)))
		for i := range vec {
			vec[i] *= inv
		}
	}

	return vec
}
