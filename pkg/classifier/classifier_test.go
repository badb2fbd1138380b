package classifier

import (
	"math"
	"testing"

	"github.com/yrahul8811-gif/tieredmemory/pkg/memtypes"
)

func TestPredict_SumsToOne(t *testing.T) {
	c := New(8, 1)
	x := make([]float32, 8)
	for i := range x {
		x[i] = float32(i) / 8
	}
	probs := c.Predict(x)

	var sum float64
	for _, p := range probs {
		sum += p
		if p <= 0 || p >= 1 {
			t.Errorf("probability %v out of (0,1)", p)
		}
	}
	if math.Abs(sum-1.0) > 1e-6 {
		t.Errorf("sum of probabilities = %v, want ~1.0", sum)
	}
}

func TestUpdate_IncreasesCorrectLayerProbability(t *testing.T) {
	c := New(8, 2)
	x := []float32{0.1, 0.2, -0.1, 0.3, 0.0, 0.4, -0.2, 0.1}

	before := c.Predict(x)[memtypes.KMM]
	c.Update(x, memtypes.KMM)
	after := c.Predict(x)[memtypes.KMM]

	if after <= before {
		t.Errorf("p(KMM) after Update = %v, want > %v", after, before)
	}
}

func TestWeights_RoundTrip(t *testing.T) {
	c := New(4, 3)
	c.Update([]float32{1, 0, 0, 0}, memtypes.IMM)

	w := c.Weights()
	c2 := FromWeights(w)

	x := []float32{0.5, 0.5, 0.1, -0.2}
	p1 := c.Predict(x)
	p2 := c2.Predict(x)
	for _, l := range layers {
		if math.Abs(p1[l]-p2[l]) > 1e-9 {
			t.Errorf("layer %v: restored probability %v != original %v", l, p2[l], p1[l])
		}
	}
}

func TestSeedCorpus_Shape(t *testing.T) {
	if len(SeedCorpus) != 30 {
		t.Fatalf("len(SeedCorpus) = %d, want 30", len(SeedCorpus))
	}
	counts := map[memtypes.Layer]int{}
	for _, ex := range SeedCorpus {
		counts[ex.Layer]++
	}
	for _, l := range []memtypes.Layer{memtypes.IMM, memtypes.EMM, memtypes.KMM} {
		if counts[l] != 10 {
			t.Errorf("SeedCorpus has %d examples for %v, want 10", counts[l], l)
		}
	}
}
