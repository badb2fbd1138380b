package embedding

import (
	"context"
	"hash/fnv"
	"math"
)

// Fake is a deterministic, dependency-free Provider used in tests and in
// DESIGN.md's reference wiring. It hashes words into a fixed-size vector and
// L2-normalizes the result, which is enough to exercise cosine similarity and
// the classifier without a real embedding model.
type Fake struct {
	*Broadcaster
	dim int
}

// NewFake creates a Fake provider of the given dimension and marks it ready.
func NewFake(dim int) *Fake {
	f := &Fake{Broadcaster: NewBroadcaster(), dim: dim}
	f.Set(StatusReady)
	return f
}

// Dimension returns the configured vector length.
func (f *Fake) Dimension() int { return f.dim }

// Embed hashes whitespace-separated tokens of text into buckets of a
// fixed-size vector, then L2-normalizes. Identical input always yields the
// identical output, satisfying the determinism contract of Provider.
func (f *Fake) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float64, f.dim)
	tok := tokenize(text)
	for _, w := range tok {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		idx := int(h.Sum32()) % f.dim
		if idx < 0 {
			idx += f.dim
		}
		vec[idx] += 1.0
	}

	var norm float64
	for _, x := range vec {
		norm += x * x
	}
	norm = math.Sqrt(norm)

	out := make([]float32, f.dim)
	if norm == 0 {
		return out, nil
	}
	for i, x := range vec {
		out[i] = float32(x / norm)
	}
	return out, nil
}

func tokenize(text string) []string {
	var words []string
	var cur []byte
	for i := 0; i < len(text); i++ {
		c := text[i]
		if c == ' ' || c == '\t' || c == '\n' {
			if len(cur) > 0 {
				words = append(words, string(cur))
				cur = cur[:0]
			}
			continue
		}
		cur = append(cur, c)
	}
	if len(cur) > 0 {
		words = append(words, string(cur))
	}
	return words
}
