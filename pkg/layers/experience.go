package layers

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/yrahul8811-gif/tieredmemory/pkg/memstore"
	"github.com/yrahul8811-gif/tieredmemory/pkg/memtypes"
	"github.com/yrahul8811-gif/tieredmemory/pkg/vecmath"
)

// RecencyFloor is the minimum recency multiplier an experience ever receives,
// reached once an entry is RecencyWindowDays old or older.
const RecencyFloor = 0.5

// RecencyWindowDays is the age, in days, at which recency bottoms out at
// RecencyFloor. Linear between 0 days (1.0) and this window (RecencyFloor).
const RecencyWindowDays = 30.0

// ExperienceStore is the EMM adapter: embedded conversational events subject
// to importance decay and a recency-aware semantic search score.
type ExperienceStore struct {
	store memstore.Store
}

// NewExperienceStore wraps a persistent Store as an EMM adapter.
func NewExperienceStore(store memstore.Store) *ExperienceStore {
	return &ExperienceStore{store: store}
}

// Put stores a new experience entry. OriginalImportance is captured at write
// time so later decay always has a stable baseline to decay from.
func (s *ExperienceStore) Put(ctx context.Context, entry memtypes.ExperienceEntry) error {
	if entry.ID == "" {
		entry.ID = vecmath.NewID()
	}
	if entry.OriginalImportance == 0 {
		entry.OriginalImportance = entry.Importance
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("experience put: encode: %w", err)
	}
	if err := s.store.Put(ctx, memstore.CollExperience, memstore.Record{ID: entry.ID, IndexKey: string(entry.Context), Value: data}); err != nil {
		return fmt.Errorf("experience put: %w", err)
	}
	return nil
}

// All returns every stored experience entry.
func (s *ExperienceStore) All(ctx context.Context) ([]memtypes.ExperienceEntry, error) {
	recs, err := s.store.All(ctx, memstore.CollExperience)
	if err != nil {
		return nil, fmt.Errorf("experience all: %w", err)
	}
	return decodeExperiences(recs)
}

// GetByContext returns every entry tagged with the given Context.
func (s *ExperienceStore) GetByContext(ctx context.Context, context memtypes.Context) ([]memtypes.ExperienceEntry, error) {
	recs, err := s.store.ByIndexKey(ctx, memstore.CollExperience, string(context))
	if err != nil {
		return nil, fmt.Errorf("experience get by context: %w", err)
	}
	return decodeExperiences(recs)
}

// GetRecent returns the n most recently timestamped entries, descending.
func (s *ExperienceStore) GetRecent(ctx context.Context, n int) ([]memtypes.ExperienceEntry, error) {
	all, err := s.All(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Timestamp.After(all[j].Timestamp) })
	if n > 0 && len(all) > n {
		all = all[:n]
	}
	return all, nil
}

// ScoredExperience pairs an entry with its semantic search score and the raw
// cosine similarity that score was derived from.
type ScoredExperience struct {
	Entry memtypes.ExperienceEntry
	Score float64
	Sim   float64
}

// Search ranks every stored experience against queryVec using
// score = cosine(query, entry) * importance * recency, where recency decays
// linearly from 1.0 at age 0 to RecencyFloor at RecencyWindowDays and beyond.
// Only entries scoring at or above threshold are returned, sorted descending.
// When contextFilter is non-empty, only entries tagged with that Context are
// considered.
func (s *ExperienceStore) Search(ctx context.Context, queryVec []float32, threshold float64, topK int, contextFilter memtypes.Context) ([]ScoredExperience, error) {
	all, err := s.All(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	var scored []ScoredExperience
	for _, e := range all {
		if contextFilter != "" && e.Context != contextFilter {
			continue
		}
		sim := vecmath.Cosine(queryVec, e.Embedding)
		rec := recency(now, e.Timestamp)
		score := sim * e.Importance * rec
		if score >= threshold {
			scored = append(scored, ScoredExperience{Entry: e, Score: score, Sim: sim})
		}
	}

	sort.Slice(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if topK > 0 && len(scored) > topK {
		scored = scored[:topK]
	}
	return scored, nil
}

// ApplyDecay recomputes every entry's Importance from its OriginalImportance
// and age, per importance = max(MinImportance, original * DecayRate^days), and
// persists any entries whose importance changed.
func (s *ExperienceStore) ApplyDecay(ctx context.Context) error {
	all, err := s.All(ctx)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	for _, e := range all {
		days := now.Sub(e.Timestamp).Hours() / 24
		decayed := math.Max(memtypes.MinImportance, e.OriginalImportance*math.Pow(memtypes.DecayRate, days))
		if decayed == e.Importance {
			continue
		}
		e.Importance = decayed
		if err := s.Put(ctx, e); err != nil {
			return fmt.Errorf("apply decay: %w", err)
		}
	}
	return nil
}

// Delete removes a single entry by ID.
func (s *ExperienceStore) Delete(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, memstore.CollExperience, id); err != nil {
		return fmt.Errorf("experience delete: %w", err)
	}
	return nil
}

// Clear removes every experience entry.
func (s *ExperienceStore) Clear(ctx context.Context) error {
	if err := s.store.Clear(ctx, memstore.CollExperience); err != nil {
		return fmt.Errorf("experience clear: %w", err)
	}
	return nil
}

// Count returns the number of stored entries.
func (s *ExperienceStore) Count(ctx context.Context) (int, error) {
	n, err := s.store.Count(ctx, memstore.CollExperience)
	if err != nil {
		return 0, fmt.Errorf("experience count: %w", err)
	}
	return n, nil
}

func recency(now, timestamp time.Time) float64 {
	days := now.Sub(timestamp).Hours() / 24
	if days <= 0 {
		return 1.0
	}
	return math.Max(RecencyFloor, 1.0-days/RecencyWindowDays)
}

func decodeExperiences(recs []memstore.Record) ([]memtypes.ExperienceEntry, error) {
	out := make([]memtypes.ExperienceEntry, 0, len(recs))
	for _, rec := range recs {
		var e memtypes.ExperienceEntry
		if err := json.Unmarshal(rec.Value, &e); err != nil {
			return nil, fmt.Errorf("decode %s: %w", rec.ID, err)
		}
		out = append(out, e)
	}
	return out, nil
}
