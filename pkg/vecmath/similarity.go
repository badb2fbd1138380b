// Package vecmath provides the vector primitives shared by every memory layer:
// cosine similarity, vector averaging for context blending, and ID generation.
package vecmath

import (
	"math"

	"github.com/google/uuid"
)

// Cosine calculates cosine similarity between two vectors.
// Returns a value in [-1, 1]; zero vectors and mismatched lengths return 0.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0.0
	}

	var dot, normA, normB float64
	for i := 0; i < len(a); i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0.0 || normB == 0.0 {
		return 0.0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Average returns the element-wise mean of one or more equal-length vectors.
// Used to blend a query embedding with recent-context embeddings before routing.
func Average(vecs ...[]float32) []float32 {
	if len(vecs) == 0 {
		return nil
	}
	if len(vecs) == 1 {
		return vecs[0]
	}

	dim := len(vecs[0])
	out := make([]float32, dim)
	for _, v := range vecs {
		if len(v) != dim {
			continue
		}
		for i, x := range v {
			out[i] += x
		}
	}
	n := float32(len(vecs))
	for i := range out {
		out[i] /= n
	}
	return out
}

// NewID generates a unique identifier for a newly created memory entry.
func NewID() string {
	return uuid.New().String()
}
