// Package router composes the hard-rule engine, the routing cache, and the
// online linear classifier into a single write-path routing decision, and
// owns the classifier's online learning and persistence.
package router

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/yrahul8811-gif/tieredmemory/pkg/classifier"
	"github.com/yrahul8811-gif/tieredmemory/pkg/embedding"
	"github.com/yrahul8811-gif/tieredmemory/pkg/memstore"
	"github.com/yrahul8811-gif/tieredmemory/pkg/memtypes"
	"github.com/yrahul8811-gif/tieredmemory/pkg/routecache"
	"github.com/yrahul8811-gif/tieredmemory/pkg/rules"
)

// ConfidenceThreshold is the minimum top-1 softmax probability below which
// the router returns ASK instead of committing to a layer.
const ConfidenceThreshold = 0.6

// ConflictMargin is the minimum gap between the top-1 and top-2 softmax
// probabilities below which the router returns CONFLICT.
const ConflictMargin = 0.15

// fallbackSeed is used to deterministically seed a fresh classifier when no
// persisted weights exist yet.
const fallbackSeed = 42

// Config tunes the router's decision thresholds.
type Config struct {
	ConfidenceThreshold float64
	ConflictMargin      float64
}

// DefaultConfig returns the spec's mandated thresholds.
func DefaultConfig() Config {
	return Config{
		ConfidenceThreshold: ConfidenceThreshold,
		ConflictMargin:      ConflictMargin,
	}
}

// ConfigOption customizes a Router at construction time.
type ConfigOption func(*Config)

// WithConfidenceThreshold overrides the ASK threshold.
func WithConfidenceThreshold(t float64) ConfigOption {
	return func(c *Config) { c.ConfidenceThreshold = t }
}

// WithConflictMargin overrides the CONFLICT margin.
func WithConflictMargin(m float64) ConfigOption {
	return func(c *Config) { c.ConflictMargin = m }
}

// Router decides which memory layer a piece of text belongs to.
type Router struct {
	mu         sync.RWMutex
	embedder   embedding.Provider
	store      memstore.Store
	rules      *rules.Engine
	cache      *routecache.Cache
	classifier *classifier.Classifier
	config     Config
}

// New creates a Router. Call Init before the first Route call.
func New(embedder embedding.Provider, store memstore.Store, opts ...ConfigOption) *Router {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Router{
		embedder: embedder,
		store:    store,
		rules:    rules.New(),
		cache:    routecache.NewDefault(),
		config:   cfg,
	}
}

// Init lazily loads persisted classifier weights, or seeds a fresh one over
// SeedCorpus when none exist. Safe to call repeatedly; only the first call
// does any work.
func (r *Router) Init(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.classifier != nil {
		return nil
	}
	return r.initLocked(ctx)
}

// initLocked must be called with r.mu held.
func (r *Router) initLocked(ctx context.Context) error {
	blob, err := r.store.GetBlob(ctx, memstore.BlobWeights)
	if err == nil {
		var w memtypes.RouterWeights
		if jsonErr := json.Unmarshal(blob, &w); jsonErr == nil && len(w.IMM) == r.embedder.Dimension() {
			r.classifier = classifier.FromWeights(w)
			return nil
		}
	}

	// No usable persisted weights: seed from scratch over the fixed corpus.
	r.classifier = classifier.New(r.embedder.Dimension(), fallbackSeed)
	for _, ex := range classifier.SeedCorpus {
		vec, embedErr := r.embedder.Embed(ctx, ex.Text)
		if embedErr != nil {
			continue
		}
		r.classifier.Update(vec, ex.Layer)
	}
	return r.persistWeightsLocked(ctx)
}

func (r *Router) persistWeightsLocked(ctx context.Context) error {
	data, err := json.Marshal(r.classifier.Weights())
	if err != nil {
		return fmt.Errorf("marshal weights: %w", err)
	}
	return r.store.PutBlob(ctx, memstore.BlobWeights, data)
}

// Route decides the destination layer (or meta-decision) for text, given the
// recent conversation context lines.
//
// Order of operations per spec: hard rules first (uncached, forced, source
// RULE), then the cache, then lazy init, then the classifier over a
// context-blended embedding.
func (r *Router) Route(ctx context.Context, text string, recentContext []string) (memtypes.RoutingResult, error) {
	if result, ok := r.rules.Apply(text); ok {
		return *result, nil
	}

	cacheKey := routecache.Key(text, last(recentContext, 3))

	r.mu.RLock()
	cached, hit := r.cache.Get(cacheKey)
	r.mu.RUnlock()
	if hit {
		cached.Source = memtypes.SourceCache
		return cached, nil
	}

	r.mu.Lock()
	if r.classifier == nil {
		if err := r.initLocked(ctx); err != nil {
			r.mu.Unlock()
			return memtypes.RoutingResult{Decision: memtypes.DecisionEMM, Confidence: 0.5, Source: memtypes.SourceML}, nil
		}
	}
	cls := r.classifier
	r.mu.Unlock()

	x, err := r.blendedEmbedding(ctx, text, recentContext)
	if err != nil {
		return memtypes.RoutingResult{}, fmt.Errorf("route: embed: %w", err)
	}

	probs := cls.Predict(x)
	top, second := topTwo(probs)

	var result memtypes.RoutingResult
	switch {
	case top.prob < r.config.ConfidenceThreshold:
		result = memtypes.RoutingResult{Decision: memtypes.DecisionASK, Confidence: top.prob, Source: memtypes.SourceML}
	case top.prob-second.prob < r.config.ConflictMargin:
		result = memtypes.RoutingResult{Decision: memtypes.DecisionCONFLICT, Confidence: top.prob, Source: memtypes.SourceML}
	default:
		result = memtypes.RoutingResult{Decision: memtypes.Decision(top.layer), Confidence: top.prob, Source: memtypes.SourceML}
	}

	r.mu.Lock()
	r.cache.Set(cacheKey, result)
	r.mu.Unlock()

	return result, nil
}

// Learn applies one online gradient step for (text, context) -> correctLayer,
// appends a CorrectionEntry to the retraining log, persists the updated
// weights, and clears the cache before returning: cache invalidation is
// strictly ordered ahead of any subsequent Route call observing it.
func (r *Router) Learn(ctx context.Context, text string, context []string, correctLayer memtypes.Layer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.classifier == nil {
		if err := r.initLocked(ctx); err != nil {
			return fmt.Errorf("learn: init: %w", err)
		}
	}

	x, err := r.blendedEmbeddingLocked(ctx, text, context)
	if err != nil {
		return fmt.Errorf("learn: embed: %w", err)
	}

	r.classifier.Update(x, correctLayer)

	if err := r.appendCorrectionLocked(ctx, memtypes.CorrectionEntry{
		Text:         text,
		Context:      context,
		CorrectLayer: correctLayer,
		Timestamp:    time.Now().UTC(),
	}); err != nil {
		return fmt.Errorf("learn: append correction: %w", err)
	}

	if err := r.persistWeightsLocked(ctx); err != nil {
		return fmt.Errorf("learn: persist weights: %w", err)
	}

	r.cache.Clear()
	return nil
}

// RetrainFromHistory resets the classifier, replays SeedCorpus, then replays
// every persisted correction in order, persists the result, and clears the
// cache. Deterministic given the same seed corpus and correction log.
func (r *Router) RetrainFromHistory(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.classifier = classifier.New(r.embedder.Dimension(), fallbackSeed)
	for _, ex := range classifier.SeedCorpus {
		vec, err := r.embedder.Embed(ctx, ex.Text)
		if err != nil {
			continue
		}
		r.classifier.Update(vec, ex.Layer)
	}

	corrections, err := r.loadCorrectionsLocked(ctx)
	if err != nil {
		return fmt.Errorf("retrain: load corrections: %w", err)
	}
	for _, c := range corrections {
		x, embedErr := r.blendedEmbeddingLocked(ctx, c.Text, c.Context)
		if embedErr != nil {
			continue
		}
		r.classifier.Update(x, c.CorrectLayer)
	}

	if err := r.persistWeightsLocked(ctx); err != nil {
		return fmt.Errorf("retrain: persist: %w", err)
	}
	r.cache.Clear()
	return nil
}

func (r *Router) appendCorrectionLocked(ctx context.Context, entry memtypes.CorrectionEntry) error {
	corrections, err := r.loadCorrectionsLocked(ctx)
	if err != nil {
		return err
	}
	corrections = append(corrections, entry)
	data, err := json.Marshal(corrections)
	if err != nil {
		return err
	}
	return r.store.PutBlob(ctx, memstore.BlobCorrections, data)
}

func (r *Router) loadCorrectionsLocked(ctx context.Context) ([]memtypes.CorrectionEntry, error) {
	blob, err := r.store.GetBlob(ctx, memstore.BlobCorrections)
	if err != nil {
		return nil, nil // no corrections persisted yet
	}
	var corrections []memtypes.CorrectionEntry
	if jsonErr := json.Unmarshal(blob, &corrections); jsonErr != nil {
		return nil, jsonErr
	}
	return corrections, nil
}

func (r *Router) blendedEmbedding(ctx context.Context, text string, recentContext []string) ([]float32, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.blendedEmbeddingLocked(ctx, text, recentContext)
}

// blendedEmbeddingLocked builds x = embed(text) when context is empty, else
// the average of embed(text) and embed(join(last-5 context lines)).
func (r *Router) blendedEmbeddingLocked(ctx context.Context, text string, recentContext []string) ([]float32, error) {
	textVec, err := r.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(recentContext) == 0 {
		return textVec, nil
	}

	ctxVec, err := r.embedder.Embed(ctx, strings.Join(last(recentContext, 5), " "))
	if err != nil {
		return nil, err
	}

	blended := make([]float32, len(textVec))
	for i := range blended {
		var c float32
		if i < len(ctxVec) {
			c = ctxVec[i]
		}
		blended[i] = (textVec[i] + c) / 2
	}
	return blended, nil
}

func last(lines []string, n int) []string {
	if len(lines) <= n {
		return lines
	}
	return lines[len(lines)-n:]
}

type scored struct {
	layer memtypes.Layer
	prob  float64
}

// topTwo returns the two highest-probability layers, descending.
func topTwo(probs map[memtypes.Layer]float64) (top, second scored) {
	top = scored{prob: -1}
	second = scored{prob: -1}
	for l, p := range probs {
		s := scored{layer: l, prob: p}
		if s.prob > top.prob {
			second = top
			top = s
		} else if s.prob > second.prob {
			second = s
		}
	}
	return top, second
}
