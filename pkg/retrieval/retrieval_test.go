package retrieval

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/yrahul8811-gif/tieredmemory/pkg/embedding"
	"github.com/yrahul8811-gif/tieredmemory/pkg/layers"
	"github.com/yrahul8811-gif/tieredmemory/pkg/memstore"
	"github.com/yrahul8811-gif/tieredmemory/pkg/memtypes"
)

func newTestPipeline(t *testing.T) (*Pipeline, *layers.IdentityStore, *layers.ExperienceStore, *layers.KnowledgeStore, *embedding.Fake, func()) {
	t.Helper()
	path := fmt.Sprintf("%s/retrieval_test_%d.db", t.TempDir(), time.Now().UnixNano())
	raw := memstore.Open(path)
	if err := raw.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}

	identity := layers.NewIdentityStore(raw)
	experience := layers.NewExperienceStore(raw)
	knowledge := layers.NewKnowledgeStore(raw)
	embedder := embedding.NewFake(16)

	p := New(identity, experience, knowledge, embedder)
	cleanup := func() {
		raw.Close()
		os.Remove(path)
	}
	return p, identity, experience, knowledge, embedder, cleanup
}

func TestRetrieve_IdentityAlwaysRuns(t *testing.T) {
	p, identity, _, _, _, cleanup := newTestPipeline(t)
	defer cleanup()
	ctx := context.Background()

	if _, _, err := identity.Write(ctx, "diet", "vegan", memtypes.CategoryPreference, memtypes.SourceExplicit); err != nil {
		t.Fatalf("Write: %v", err)
	}

	results, err := p.Retrieve(ctx, "diet", Options{})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	found := false
	for _, r := range results {
		if r.Layer == memtypes.IMM {
			found = true
		}
	}
	if !found {
		t.Errorf("Retrieve() = %+v, want an IMM result", results)
	}
}

func TestRetrieve_IdentityFiltersLowConfidence(t *testing.T) {
	p, identity, _, _, _, cleanup := newTestPipeline(t)
	defer cleanup()
	ctx := context.Background()

	if err := identity.UpdateConfidence(ctx, mustWriteID(t, ctx, identity, "hobby", "chess"), 0.2); err != nil {
		t.Fatalf("UpdateConfidence: %v", err)
	}

	results, err := p.Retrieve(ctx, "chess", Options{})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	for _, r := range results {
		if r.Layer == memtypes.IMM {
			t.Errorf("Retrieve() returned low-confidence identity result: %+v", r)
		}
	}
}

func TestRetrieve_SkipsEmbeddedLayersWhenNotReady(t *testing.T) {
	p, _, experience, _, embedder, cleanup := newTestPipeline(t)
	defer cleanup()
	ctx := context.Background()

	embedder.Set(embedding.StatusLoading)
	if err := experience.Put(ctx, memtypes.ExperienceEntry{Content: "went hiking", Timestamp: time.Now(), Importance: 0.9, Embedding: []float32{1, 0}}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	results, err := p.Retrieve(ctx, "hiking", Options{})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	for _, r := range results {
		if r.Layer == memtypes.EMM {
			t.Errorf("Retrieve() returned EMM result while embedder not ready: %+v", r)
		}
	}
}

func TestRetrieve_MergesByLayerPriority(t *testing.T) {
	p, identity, experience, knowledge, embedder, cleanup := newTestPipeline(t)
	defer cleanup()
	ctx := context.Background()

	if _, _, err := identity.Write(ctx, "work_focus", "project deadline", memtypes.CategoryTrait, memtypes.SourceExplicit); err != nil {
		t.Fatalf("Write: %v", err)
	}

	vec, err := embedder.Embed(ctx, "project deadline")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if err := experience.Put(ctx, memtypes.ExperienceEntry{Content: "missed a project deadline", Timestamp: time.Now(), Importance: 0.9, Embedding: vec}); err != nil {
		t.Fatalf("Put experience: %v", err)
	}
	if err := knowledge.Put(ctx, memtypes.KnowledgeEntry{Content: "project deadline tracking technique", Category: memtypes.KnowledgeConcept, Embedding: vec, Confidence: 0.9}); err != nil {
		t.Fatalf("Put knowledge: %v", err)
	}

	results, err := p.Retrieve(ctx, "project deadline", Options{Threshold: 0.01})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(results) < 3 {
		t.Fatalf("Retrieve() returned %d results, want at least 3", len(results))
	}
	if results[0].Layer != memtypes.IMM {
		t.Errorf("results[0].Layer = %v, want IMM (highest priority)", results[0].Layer)
	}
}

func TestRetrieve_IncludeFlagsScopeLayers(t *testing.T) {
	p, identity, _, _, _, cleanup := newTestPipeline(t)
	defer cleanup()
	ctx := context.Background()

	if _, _, err := identity.Write(ctx, "name", "Sam", memtypes.CategoryIdentity, memtypes.SourceExplicit); err != nil {
		t.Fatalf("Write: %v", err)
	}

	no := false
	results, err := p.Retrieve(ctx, "name", Options{IncludeIdentity: &no})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	for _, r := range results {
		if r.Layer == memtypes.IMM {
			t.Errorf("Retrieve(IncludeIdentity=false) returned an IMM result: %+v", r)
		}
	}
}

func TestRetrieve_ContextFilterScopesExperience(t *testing.T) {
	p, _, experience, _, embedder, cleanup := newTestPipeline(t)
	defer cleanup()
	ctx := context.Background()

	vec, err := embedder.Embed(ctx, "deadline")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if err := experience.Put(ctx, memtypes.ExperienceEntry{Content: "missed a work deadline", Context: memtypes.ContextWork, Timestamp: time.Now(), Importance: 0.9, Embedding: vec}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := experience.Put(ctx, memtypes.ExperienceEntry{Content: "family deadline for the reunion", Context: memtypes.ContextFamily, Timestamp: time.Now(), Importance: 0.9, Embedding: vec}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	results, err := p.Retrieve(ctx, "deadline", Options{Threshold: 0.01, ContextFilter: memtypes.ContextWork})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	for _, r := range results {
		if r.Layer == memtypes.EMM && r.Metadata["context"] != memtypes.ContextWork {
			t.Errorf("Retrieve(ContextFilter=work) returned out-of-context result: %+v", r)
		}
	}
}

func TestDetectContext(t *testing.T) {
	tests := []struct {
		text string
		want memtypes.Context
	}{
		{"my mom called me today", memtypes.ContextFamily},
		{"big meeting with my boss tomorrow", memtypes.ContextWork},
		{"studying for my college exam", memtypes.ContextCollege},
		{"went to the doctor for a checkup", memtypes.ContextHealth},
		{"practiced guitar for an hour", memtypes.ContextHobby},
		{"feeling really anxious about this", memtypes.ContextPersonal},
		{"the weather is nice today", memtypes.ContextGeneral},
	}
	for _, tt := range tests {
		if got := DetectContext(tt.text); got != tt.want {
			t.Errorf("DetectContext(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestScoreImportance_BaseCase(t *testing.T) {
	score := ScoreImportance("the sky is blue", memtypes.RoleAssistant)
	if score != ImportanceBase {
		t.Errorf("ScoreImportance(plain statement) = %v, want base %v", score, ImportanceBase)
	}
}

func TestScoreImportance_BonusesStack(t *testing.T) {
	plain := ScoreImportance("ok", memtypes.RoleAssistant)
	withQuestion := ScoreImportance("ok?", memtypes.RoleAssistant)
	if withQuestion <= plain {
		t.Errorf("question bonus not applied: %v <= %v", withQuestion, plain)
	}

	emotional := ScoreImportance("I worry about this a lot", memtypes.RoleUser)
	if emotional <= plain {
		t.Errorf("emotional+role bonus not applied: %v <= %v", emotional, plain)
	}
}

func TestScoreImportance_EmotionalBonusCapsAtMultipleHits(t *testing.T) {
	oneHit := ScoreImportance("I am so happy", memtypes.RoleAssistant)
	manyHits := ScoreImportance("love hate fear hope dream worry happy angry frustrated", memtypes.RoleAssistant)
	if manyHits > ImportanceBase+ImportanceEmotionalBonusCap+1e-9 {
		t.Errorf("ScoreImportance(many emotional hits) = %v, want capped at base+%v", manyHits, ImportanceEmotionalBonusCap)
	}
	if manyHits <= oneHit {
		t.Errorf("ScoreImportance(many hits) = %v, want > single-hit %v", manyHits, oneHit)
	}
}

func TestScoreImportance_LengthBonusByWordCount(t *testing.T) {
	short := ScoreImportance("a short statement", memtypes.RoleAssistant)
	long := ScoreImportance(strings.Repeat("word ", 25)+"done", memtypes.RoleAssistant)
	if long <= short {
		t.Errorf("ScoreImportance(long) = %v, want > short %v", long, short)
	}
}

func TestScoreImportance_ClampsToOne(t *testing.T) {
	everything := ScoreImportance(strings.Repeat("love hate fear worry angry frustrated ", 5)+"is this really okay??", memtypes.RoleUser)
	if everything > 1.0 {
		t.Errorf("ScoreImportance() = %v, want <= 1.0", everything)
	}
}

func mustWriteID(t *testing.T, ctx context.Context, s *layers.IdentityStore, key, value string) string {
	t.Helper()
	fact, _, err := s.Write(ctx, key, value, memtypes.CategoryTrait, memtypes.SourceInferred)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	return fact.ID
}
