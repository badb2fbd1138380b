package layers

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"github.com/yrahul8811-gif/tieredmemory/pkg/memstore"
	"github.com/yrahul8811-gif/tieredmemory/pkg/memtypes"
	"github.com/yrahul8811-gif/tieredmemory/pkg/vecmath"
)

// ReinforcementBoostCap bounds the reinforcement boost applied to a
// knowledge entry's search score: min(ReinforcementBoostCap, 1 + 0.1*count).
const ReinforcementBoostCap = 2.0

// ReinforcementBoostStep is the per-reinforcement increment to the boost.
const ReinforcementBoostStep = 0.1

// InitialKnowledgeConfidence is the confidence assigned to a newly written
// knowledge entry before it has ever been reinforced.
const InitialKnowledgeConfidence = 0.6

// KnowledgeStore is the KMM adapter: durable, mandatorily embedded skills and
// concepts, reinforced (rather than replaced) on repeated confirmation.
type KnowledgeStore struct {
	store memstore.Store
}

// NewKnowledgeStore wraps a persistent Store as a KMM adapter.
func NewKnowledgeStore(store memstore.Store) *KnowledgeStore {
	return &KnowledgeStore{store: store}
}

// Put stores a new knowledge entry. Embedding is mandatory: KMM is never
// written without one.
func (s *KnowledgeStore) Put(ctx context.Context, entry memtypes.KnowledgeEntry) error {
	if len(entry.Embedding) == 0 {
		return fmt.Errorf("knowledge put: embedding is required")
	}
	if entry.ID == "" {
		entry.ID = vecmath.NewID()
	}
	if entry.Confidence == 0 {
		entry.Confidence = InitialKnowledgeConfidence
	}
	return s.put(ctx, entry)
}

// All returns every stored knowledge entry.
func (s *KnowledgeStore) All(ctx context.Context) ([]memtypes.KnowledgeEntry, error) {
	recs, err := s.store.All(ctx, memstore.CollKnowledge)
	if err != nil {
		return nil, fmt.Errorf("knowledge all: %w", err)
	}
	return decodeKnowledge(recs)
}

// GetByCategory returns every entry of the given category.
func (s *KnowledgeStore) GetByCategory(ctx context.Context, category memtypes.KnowledgeCategory) ([]memtypes.KnowledgeEntry, error) {
	recs, err := s.store.ByIndexKey(ctx, memstore.CollKnowledge, string(category))
	if err != nil {
		return nil, fmt.Errorf("knowledge get by category: %w", err)
	}
	return decodeKnowledge(recs)
}

// Reinforce increments an entry's reinforcement count and nudges its
// confidence toward 1.0, reflecting a repeated confirmation of the same
// knowledge rather than a brand-new fact.
func (s *KnowledgeStore) Reinforce(ctx context.Context, id string) (memtypes.KnowledgeEntry, error) {
	rec, err := s.store.Get(ctx, memstore.CollKnowledge, id)
	if err != nil {
		return memtypes.KnowledgeEntry{}, fmt.Errorf("knowledge reinforce: %w", err)
	}
	var entry memtypes.KnowledgeEntry
	if err := json.Unmarshal(rec.Value, &entry); err != nil {
		return memtypes.KnowledgeEntry{}, fmt.Errorf("knowledge reinforce: decode %s: %w", id, err)
	}

	entry.ReinforcementCount++
	entry.Confidence = math.Min(MaxConfidence, entry.Confidence+ReinforcementStep)

	if err := s.put(ctx, entry); err != nil {
		return memtypes.KnowledgeEntry{}, err
	}
	return entry, nil
}

// ScoredKnowledge pairs an entry with its semantic search score and the raw
// cosine similarity that score was derived from.
type ScoredKnowledge struct {
	Entry memtypes.KnowledgeEntry
	Score float64
	Sim   float64
}

// Search ranks every stored entry against queryVec using
// score = cosine(query, entry) * confidence * boost, where
// boost = min(ReinforcementBoostCap, 1 + ReinforcementBoostStep*reinforcements).
// Only entries scoring at or above threshold are returned, sorted descending.
func (s *KnowledgeStore) Search(ctx context.Context, queryVec []float32, threshold float64, topK int) ([]ScoredKnowledge, error) {
	all, err := s.All(ctx)
	if err != nil {
		return nil, err
	}

	var scored []ScoredKnowledge
	for _, e := range all {
		sim := vecmath.Cosine(queryVec, e.Embedding)
		boost := math.Min(ReinforcementBoostCap, 1.0+ReinforcementBoostStep*float64(e.ReinforcementCount))
		score := sim * e.Confidence * boost
		if score >= threshold {
			scored = append(scored, ScoredKnowledge{Entry: e, Score: score, Sim: sim})
		}
	}

	sort.Slice(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if topK > 0 && len(scored) > topK {
		scored = scored[:topK]
	}
	return scored, nil
}

// Delete removes a single entry by ID.
func (s *KnowledgeStore) Delete(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, memstore.CollKnowledge, id); err != nil {
		return fmt.Errorf("knowledge delete: %w", err)
	}
	return nil
}

// Clear removes every knowledge entry.
func (s *KnowledgeStore) Clear(ctx context.Context) error {
	if err := s.store.Clear(ctx, memstore.CollKnowledge); err != nil {
		return fmt.Errorf("knowledge clear: %w", err)
	}
	return nil
}

// Count returns the number of stored entries.
func (s *KnowledgeStore) Count(ctx context.Context) (int, error) {
	n, err := s.store.Count(ctx, memstore.CollKnowledge)
	if err != nil {
		return 0, fmt.Errorf("knowledge count: %w", err)
	}
	return n, nil
}

func (s *KnowledgeStore) put(ctx context.Context, entry memtypes.KnowledgeEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode knowledge entry: %w", err)
	}
	if err := s.store.Put(ctx, memstore.CollKnowledge, memstore.Record{ID: entry.ID, IndexKey: string(entry.Category), Value: data}); err != nil {
		return fmt.Errorf("knowledge put: %w", err)
	}
	return nil
}

func decodeKnowledge(recs []memstore.Record) ([]memtypes.KnowledgeEntry, error) {
	out := make([]memtypes.KnowledgeEntry, 0, len(recs))
	for _, rec := range recs {
		var e memtypes.KnowledgeEntry
		if err := json.Unmarshal(rec.Value, &e); err != nil {
			return nil, fmt.Errorf("decode %s: %w", rec.ID, err)
		}
		out = append(out, e)
	}
	return out, nil
}
