// Package classifier implements the router's online-learned linear model: a
// three-way one-vs-rest softmax classifier over sentence embeddings, with no
// bias term and no regularization, trained by one cross-entropy gradient step
// per example.
package classifier

import (
	"math"
	"math/rand"
	"sync"

	"github.com/yrahul8811-gif/tieredmemory/pkg/memtypes"
)

// LearningRate is the online SGD step size eta used by Update.
const LearningRate = 0.05

// initRange bounds the small random initial weights, ±0.05.
const initRange = 0.05

var layers = []memtypes.Layer{memtypes.IMM, memtypes.EMM, memtypes.KMM}

// Classifier holds one weight vector per layer and predicts/updates against
// embeddings of dimension Dim.
type Classifier struct {
	mu      sync.RWMutex
	dim     int
	weights map[memtypes.Layer][]float64
}

// New creates a Classifier of dimension dim with small random weights in
// [-0.05, 0.05], seeded deterministically by seed for reproducible tests.
func New(dim int, seed int64) *Classifier {
	rng := rand.New(rand.NewSource(seed))
	weights := make(map[memtypes.Layer][]float64, len(layers))
	for _, l := range layers {
		v := make([]float64, dim)
		for i := range v {
			v[i] = (rng.Float64()*2 - 1) * initRange
		}
		weights[l] = v
	}
	return &Classifier{dim: dim, weights: weights}
}

// FromWeights restores a Classifier from persisted RouterWeights.
func FromWeights(w memtypes.RouterWeights) *Classifier {
	dim := len(w.IMM)
	return &Classifier{
		dim: dim,
		weights: map[memtypes.Layer][]float64{
			memtypes.IMM: append([]float64(nil), w.IMM...),
			memtypes.EMM: append([]float64(nil), w.EMM...),
			memtypes.KMM: append([]float64(nil), w.KMM...),
		},
	}
}

// Weights snapshots the current weights for persistence.
func (c *Classifier) Weights() memtypes.RouterWeights {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return memtypes.RouterWeights{
		IMM: append([]float64(nil), c.weights[memtypes.IMM]...),
		EMM: append([]float64(nil), c.weights[memtypes.EMM]...),
		KMM: append([]float64(nil), c.weights[memtypes.KMM]...),
	}
}

// Dim returns the embedding dimension this classifier was built for.
func (c *Classifier) Dim() int {
	return c.dim
}

// Predict scores x against every layer and returns a numerically stable
// softmax distribution: every component is computed after subtracting the
// max raw score, so the probabilities sum to 1.0 regardless of scale.
func (c *Classifier) Predict(x []float32) map[memtypes.Layer]float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	scores := make(map[memtypes.Layer]float64, len(layers))
	maxScore := math.Inf(-1)
	for _, l := range layers {
		s := dot(c.weights[l], x)
		scores[l] = s
		if s > maxScore {
			maxScore = s
		}
	}

	var sumExp float64
	exps := make(map[memtypes.Layer]float64, len(layers))
	for _, l := range layers {
		e := math.Exp(scores[l] - maxScore)
		exps[l] = e
		sumExp += e
	}

	probs := make(map[memtypes.Layer]float64, len(layers))
	for _, l := range layers {
		probs[l] = exps[l] / sumExp
	}
	return probs
}

// Update performs one online gradient step of the one-vs-rest cross-entropy
// loss: for every layer L, W[L] += eta * (1[L=correct] - p_L) * x.
func (c *Classifier) Update(x []float32, correct memtypes.Layer) {
	probs := c.Predict(x)

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, l := range layers {
		target := 0.0
		if l == correct {
			target = 1.0
		}
		grad := LearningRate * (target - probs[l])
		w := c.weights[l]
		for i, xi := range x {
			if i >= len(w) {
				break
			}
			w[i] += grad * float64(xi)
		}
	}
}

func dot(w []float64, x []float32) float64 {
	var sum float64
	n := len(w)
	if len(x) < n {
		n = len(x)
	}
	for i := 0; i < n; i++ {
		sum += w[i] * float64(x[i])
	}
	return sum
}
