package layers

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/yrahul8811-gif/tieredmemory/pkg/memstore"
	"github.com/yrahul8811-gif/tieredmemory/pkg/memtypes"
)

func newTestKnowledgeStore(t *testing.T) (*KnowledgeStore, func()) {
	t.Helper()
	path := fmt.Sprintf("%s/knowledge_test_%d.db", t.TempDir(), time.Now().UnixNano())
	raw := memstore.Open(path)
	if err := raw.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return NewKnowledgeStore(raw), func() {
		raw.Close()
		os.Remove(path)
	}
}

func TestKnowledgePut_RequiresEmbedding(t *testing.T) {
	s, cleanup := newTestKnowledgeStore(t)
	defer cleanup()
	ctx := context.Background()

	err := s.Put(ctx, memtypes.KnowledgeEntry{Content: "binary search is logarithmic", Category: memtypes.KnowledgeConcept})
	if err == nil {
		t.Fatal("Put without embedding: want error, got nil")
	}
}

func TestKnowledgePut_DefaultsConfidence(t *testing.T) {
	s, cleanup := newTestKnowledgeStore(t)
	defer cleanup()
	ctx := context.Background()

	if err := s.Put(ctx, memtypes.KnowledgeEntry{Content: "I know Python", Category: memtypes.KnowledgeSkill, Embedding: []float32{1, 0}}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	all, err := s.All(ctx)
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(all) != 1 || all[0].Confidence != InitialKnowledgeConfidence {
		t.Errorf("All() = %+v, want Confidence %v", all, InitialKnowledgeConfidence)
	}
}

func TestKnowledgeGetByCategory(t *testing.T) {
	s, cleanup := newTestKnowledgeStore(t)
	defer cleanup()
	ctx := context.Background()

	must(t, s.Put(ctx, memtypes.KnowledgeEntry{Content: "skill one", Category: memtypes.KnowledgeSkill, Embedding: []float32{1, 0}}))
	must(t, s.Put(ctx, memtypes.KnowledgeEntry{Content: "fact one", Category: memtypes.KnowledgeFact, Embedding: []float32{0, 1}}))

	skills, err := s.GetByCategory(ctx, memtypes.KnowledgeSkill)
	if err != nil {
		t.Fatalf("GetByCategory: %v", err)
	}
	if len(skills) != 1 || skills[0].Content != "skill one" {
		t.Errorf("GetByCategory(skill) = %+v, want 1 entry 'skill one'", skills)
	}
}

func TestKnowledgeReinforce_IncrementsCountAndConfidence(t *testing.T) {
	s, cleanup := newTestKnowledgeStore(t)
	defer cleanup()
	ctx := context.Background()

	if err := s.Put(ctx, memtypes.KnowledgeEntry{ID: "k1", Content: "I know Go", Category: memtypes.KnowledgeSkill, Embedding: []float32{1, 0}}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	reinforced, err := s.Reinforce(ctx, "k1")
	if err != nil {
		t.Fatalf("Reinforce: %v", err)
	}
	if reinforced.ReinforcementCount != 1 {
		t.Errorf("ReinforcementCount = %d, want 1", reinforced.ReinforcementCount)
	}
	if reinforced.Confidence <= InitialKnowledgeConfidence {
		t.Errorf("Confidence = %v, want > %v", reinforced.Confidence, InitialKnowledgeConfidence)
	}
}

func TestKnowledgeSearch_AppliesReinforcementBoost(t *testing.T) {
	s, cleanup := newTestKnowledgeStore(t)
	defer cleanup()
	ctx := context.Background()

	must(t, s.Put(ctx, memtypes.KnowledgeEntry{ID: "unreinforced", Content: "Go concurrency", Category: memtypes.KnowledgeConcept, Embedding: []float32{1, 0, 0}, Confidence: 0.6}))
	must(t, s.Put(ctx, memtypes.KnowledgeEntry{ID: "reinforced", Content: "Go concurrency patterns", Category: memtypes.KnowledgeConcept, Embedding: []float32{1, 0, 0}, Confidence: 0.6, ReinforcementCount: 5}))

	results, err := s.Search(ctx, []float32{1, 0, 0}, 0.0, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("Search returned %d results, want 2", len(results))
	}
	if results[0].Entry.ID != "reinforced" {
		t.Errorf("top result = %q, want 'reinforced' (higher boost)", results[0].Entry.ID)
	}
}

func TestKnowledgeDeleteClearCount(t *testing.T) {
	s, cleanup := newTestKnowledgeStore(t)
	defer cleanup()
	ctx := context.Background()

	if err := s.Put(ctx, memtypes.KnowledgeEntry{ID: "k1", Content: "fact", Category: memtypes.KnowledgeFact, Embedding: []float32{1}}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if n, _ := s.Count(ctx); n != 1 {
		t.Fatalf("Count = %d, want 1", n)
	}

	if err := s.Delete(ctx, "k1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if n, _ := s.Count(ctx); n != 0 {
		t.Errorf("Count after Delete = %d, want 0", n)
	}

	must(t, s.Put(ctx, memtypes.KnowledgeEntry{ID: "k2", Content: "fact2", Category: memtypes.KnowledgeFact, Embedding: []float32{1}}))
	if err := s.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if n, _ := s.Count(ctx); n != 0 {
		t.Errorf("Count after Clear = %d, want 0", n)
	}
}
