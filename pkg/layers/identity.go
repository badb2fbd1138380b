// Package layers adapts the persistent store into the three typed memory
// layers: Identity (exact key-value facts), Experience (decaying
// conversational events), and Knowledge (durable, embedded skills/concepts).
package layers

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/yrahul8811-gif/tieredmemory/pkg/memstore"
	"github.com/yrahul8811-gif/tieredmemory/pkg/memtypes"
	"github.com/yrahul8811-gif/tieredmemory/pkg/vecmath"
)

// Initial confidences assigned to a brand-new identity fact depending on how
// it was captured, and the bookkeeping constants governing reinforcement and
// conflict resolution.
const (
	InitialConfidenceExplicit = 0.9
	InitialConfidenceInferred = 0.6

	ReinforcementStep  = 0.05
	MaxConfidence      = 1.0
	ReplacementConfidence = 0.7

	// AskUserThreshold is the existing-fact confidence above which a
	// conflicting write is surfaced for explicit user confirmation rather
	// than silently queued as an update.
	AskUserThreshold = 0.8
)

// IdentityStore is the IMM adapter: one canonical fact per Key, the
// highest-confidence record winning whenever more than one is stored.
// Identity facts are never embedded or semantically searched.
type IdentityStore struct {
	store memstore.Store
}

// NewIdentityStore wraps a persistent Store as an IMM adapter.
func NewIdentityStore(store memstore.Store) *IdentityStore {
	return &IdentityStore{store: store}
}

// Write records a new observation of (key, value). If no fact exists for key,
// it is stored outright. If a fact exists with the same value, it is
// reinforced (confidence nudged up, capped at MaxConfidence; ConfirmationCount
// incremented; LastConfirmed refreshed) and returned. If a fact exists with a
// different value, Write persists nothing and returns a Conflict describing
// the competing values for the caller to resolve via ResolveConflict.
func (s *IdentityStore) Write(ctx context.Context, key, value string, category memtypes.IdentityCategory, source memtypes.IdentitySource) (*memtypes.IdentityFact, *memtypes.Conflict, error) {
	existing, err := s.canonical(ctx, key)
	if err != nil {
		return nil, nil, fmt.Errorf("identity write: %w", err)
	}

	now := time.Now().UTC()

	if existing == nil {
		fact := memtypes.IdentityFact{
			ID:                vecmath.NewID(),
			Key:               key,
			Value:             value,
			Category:          category,
			Confidence:        initialConfidence(source),
			ConfirmationCount: 1,
			LastConfirmed:     now,
			CreatedAt:         now,
			Source:            source,
		}
		if err := s.put(ctx, fact); err != nil {
			return nil, nil, err
		}
		return &fact, nil, nil
	}

	if existing.Value == value {
		existing.Confidence = minFloat(MaxConfidence, existing.Confidence+ReinforcementStep)
		existing.ConfirmationCount++
		existing.LastConfirmed = now
		if err := s.put(ctx, *existing); err != nil {
			return nil, nil, err
		}
		return existing, nil, nil
	}

	suggested := "update"
	if existing.Confidence > AskUserThreshold {
		suggested = "ask_user"
	}

	return nil, &memtypes.Conflict{
		Key:             key,
		ExistingValue:   existing.Value,
		NewValue:        value,
		SuggestedAction: suggested,
		ExistingID:      existing.ID,
		ExistingConf:    existing.Confidence,
	}, nil
}

// ResolveConflict applies a caller's decision for a previously surfaced
// Conflict. ActionKeepExisting reinforces the existing fact unchanged;
// ActionUpdateNew replaces it with the new value at ReplacementConfidence;
// ActionAskLater is a no-op, leaving the conflict for a future write.
func (s *IdentityStore) ResolveConflict(ctx context.Context, conflict memtypes.Conflict, action memtypes.ConflictAction, category memtypes.IdentityCategory, source memtypes.IdentitySource) (*memtypes.IdentityFact, error) {
	switch action {
	case memtypes.ActionKeepExisting:
		existing, err := s.get(ctx, conflict.ExistingID)
		if err != nil {
			return nil, fmt.Errorf("resolve conflict: %w", err)
		}
		existing.Confidence = minFloat(MaxConfidence, existing.Confidence+ReinforcementStep)
		existing.ConfirmationCount++
		existing.LastConfirmed = time.Now().UTC()
		if err := s.put(ctx, *existing); err != nil {
			return nil, err
		}
		return &existing, nil

	case memtypes.ActionUpdateNew:
		now := time.Now().UTC()
		fact := memtypes.IdentityFact{
			ID:                vecmath.NewID(),
			Key:               conflict.Key,
			Value:             conflict.NewValue,
			Category:          category,
			Confidence:        ReplacementConfidence,
			ConfirmationCount: 1,
			LastConfirmed:     now,
			CreatedAt:         now,
			Source:            source,
		}
		if err := s.store.Delete(ctx, memstore.CollIdentity, conflict.ExistingID); err != nil {
			return nil, fmt.Errorf("resolve conflict: delete superseded fact: %w", err)
		}
		if err := s.put(ctx, fact); err != nil {
			return nil, err
		}
		return &fact, nil

	case memtypes.ActionAskLater:
		return nil, nil

	default:
		return nil, fmt.Errorf("resolve conflict: unknown action %q", action)
	}
}

// GetByKey returns the canonical (highest-confidence) fact for key.
func (s *IdentityStore) GetByKey(ctx context.Context, key string) (memtypes.IdentityFact, bool, error) {
	fact, err := s.canonical(ctx, key)
	if err != nil {
		return memtypes.IdentityFact{}, false, err
	}
	if fact == nil {
		return memtypes.IdentityFact{}, false, nil
	}
	return *fact, true, nil
}

// UpdateConfidence overwrites the confidence of a specific fact by ID.
func (s *IdentityStore) UpdateConfidence(ctx context.Context, id string, confidence float64) error {
	fact, err := s.get(ctx, id)
	if err != nil {
		return fmt.Errorf("update confidence: %w", err)
	}
	fact.Confidence = confidence
	return s.put(ctx, fact)
}

// All returns every stored identity fact, including superseded duplicates
// sharing a key (callers wanting only canonical facts should group by Key).
func (s *IdentityStore) All(ctx context.Context) ([]memtypes.IdentityFact, error) {
	recs, err := s.store.All(ctx, memstore.CollIdentity)
	if err != nil {
		return nil, fmt.Errorf("identity all: %w", err)
	}
	facts := make([]memtypes.IdentityFact, 0, len(recs))
	for _, rec := range recs {
		var fact memtypes.IdentityFact
		if err := json.Unmarshal(rec.Value, &fact); err != nil {
			return nil, fmt.Errorf("identity all: decode %s: %w", rec.ID, err)
		}
		facts = append(facts, fact)
	}
	return facts, nil
}

// Search returns facts whose key or value contains query, case-insensitively.
// Identity facts are never embedded, so this is a substring scan rather than
// a semantic search.
func (s *IdentityStore) Search(ctx context.Context, query string) ([]memtypes.IdentityFact, error) {
	all, err := s.All(ctx)
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(query)
	var out []memtypes.IdentityFact
	for _, f := range all {
		if strings.Contains(strings.ToLower(f.Key), needle) || strings.Contains(strings.ToLower(f.Value), needle) {
			out = append(out, f)
		}
	}
	return out, nil
}

// Delete removes a single fact by ID.
func (s *IdentityStore) Delete(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, memstore.CollIdentity, id); err != nil {
		return fmt.Errorf("identity delete: %w", err)
	}
	return nil
}

// Clear removes every identity fact.
func (s *IdentityStore) Clear(ctx context.Context) error {
	if err := s.store.Clear(ctx, memstore.CollIdentity); err != nil {
		return fmt.Errorf("identity clear: %w", err)
	}
	return nil
}

// Count returns the number of stored facts (including superseded duplicates).
func (s *IdentityStore) Count(ctx context.Context) (int, error) {
	n, err := s.store.Count(ctx, memstore.CollIdentity)
	if err != nil {
		return 0, fmt.Errorf("identity count: %w", err)
	}
	return n, nil
}

// canonical returns the highest-confidence fact for key, or nil if none exists.
func (s *IdentityStore) canonical(ctx context.Context, key string) (*memtypes.IdentityFact, error) {
	recs, err := s.store.ByIndexKey(ctx, memstore.CollIdentity, key)
	if err != nil {
		return nil, fmt.Errorf("canonical: %w", err)
	}
	if len(recs) == 0 {
		return nil, nil
	}

	facts := make([]memtypes.IdentityFact, 0, len(recs))
	for _, rec := range recs {
		var fact memtypes.IdentityFact
		if err := json.Unmarshal(rec.Value, &fact); err != nil {
			return nil, fmt.Errorf("canonical: decode %s: %w", rec.ID, err)
		}
		facts = append(facts, fact)
	}

	sort.Slice(facts, func(i, j int) bool { return facts[i].Confidence > facts[j].Confidence })
	return &facts[0], nil
}

func (s *IdentityStore) get(ctx context.Context, id string) (memtypes.IdentityFact, error) {
	rec, err := s.store.Get(ctx, memstore.CollIdentity, id)
	if err != nil {
		return memtypes.IdentityFact{}, err
	}
	var fact memtypes.IdentityFact
	if err := json.Unmarshal(rec.Value, &fact); err != nil {
		return memtypes.IdentityFact{}, fmt.Errorf("decode %s: %w", id, err)
	}
	return fact, nil
}

func (s *IdentityStore) put(ctx context.Context, fact memtypes.IdentityFact) error {
	data, err := json.Marshal(fact)
	if err != nil {
		return fmt.Errorf("encode fact: %w", err)
	}
	return s.store.Put(ctx, memstore.CollIdentity, memstore.Record{ID: fact.ID, IndexKey: fact.Key, Value: data})
}

func initialConfidence(source memtypes.IdentitySource) float64 {
	if source == memtypes.SourceExplicit {
		return InitialConfidenceExplicit
	}
	return InitialConfidenceInferred
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
