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

func newTestIdentityStore(t *testing.T) (*IdentityStore, func()) {
	t.Helper()
	path := fmt.Sprintf("%s/identity_test_%d.db", t.TempDir(), time.Now().UnixNano())
	raw := memstore.Open(path)
	if err := raw.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return NewIdentityStore(raw), func() {
		raw.Close()
		os.Remove(path)
	}
}

func TestWrite_NewFact(t *testing.T) {
	s, cleanup := newTestIdentityStore(t)
	defer cleanup()
	ctx := context.Background()

	fact, conflict, err := s.Write(ctx, "diet", "vegetarian", memtypes.CategoryPreference, memtypes.SourceExplicit)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if conflict != nil {
		t.Fatalf("Write(new fact) conflict = %+v, want nil", conflict)
	}
	if fact.Confidence != InitialConfidenceExplicit {
		t.Errorf("Confidence = %v, want %v", fact.Confidence, InitialConfidenceExplicit)
	}
	if fact.ConfirmationCount != 1 {
		t.Errorf("ConfirmationCount = %d, want 1", fact.ConfirmationCount)
	}
}

func TestWrite_ReinforcesSameValue(t *testing.T) {
	s, cleanup := newTestIdentityStore(t)
	defer cleanup()
	ctx := context.Background()

	first, _, err := s.Write(ctx, "diet", "vegan", memtypes.CategoryPreference, memtypes.SourceInferred)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	second, conflict, err := s.Write(ctx, "diet", "vegan", memtypes.CategoryPreference, memtypes.SourceInferred)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if conflict != nil {
		t.Fatalf("reinforcement produced conflict: %+v", conflict)
	}
	if second.ID != first.ID {
		t.Errorf("reinforcement created a new fact instead of updating %s", first.ID)
	}
	if second.Confidence <= first.Confidence {
		t.Errorf("Confidence after reinforcement = %v, want > %v", second.Confidence, first.Confidence)
	}
	if second.ConfirmationCount != 2 {
		t.Errorf("ConfirmationCount = %d, want 2", second.ConfirmationCount)
	}
}

func TestWrite_DifferentValueSurfacesConflict(t *testing.T) {
	s, cleanup := newTestIdentityStore(t)
	defer cleanup()
	ctx := context.Background()

	if _, _, err := s.Write(ctx, "diet", "vegan", memtypes.CategoryPreference, memtypes.SourceExplicit); err != nil {
		t.Fatalf("Write: %v", err)
	}

	fact, conflict, err := s.Write(ctx, "diet", "keto", memtypes.CategoryPreference, memtypes.SourceExplicit)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if fact != nil {
		t.Errorf("conflicting Write returned a fact, want nil")
	}
	if conflict == nil {
		t.Fatalf("conflicting Write returned no conflict")
	}
	if conflict.ExistingValue != "vegan" || conflict.NewValue != "keto" {
		t.Errorf("conflict = %+v, want existing=vegan new=keto", conflict)
	}
	// InitialConfidenceExplicit (0.9) > AskUserThreshold (0.8).
	if conflict.SuggestedAction != "ask_user" {
		t.Errorf("SuggestedAction = %q, want ask_user", conflict.SuggestedAction)
	}
}

func TestWrite_LowConfidenceConflictSuggestsUpdate(t *testing.T) {
	s, cleanup := newTestIdentityStore(t)
	defer cleanup()
	ctx := context.Background()

	if _, _, err := s.Write(ctx, "language", "French", memtypes.CategoryTrait, memtypes.SourceInferred); err != nil {
		t.Fatalf("Write: %v", err)
	}

	_, conflict, err := s.Write(ctx, "language", "German", memtypes.CategoryTrait, memtypes.SourceInferred)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if conflict == nil {
		t.Fatalf("expected conflict")
	}
	// InitialConfidenceInferred (0.6) <= AskUserThreshold (0.8).
	if conflict.SuggestedAction != "update" {
		t.Errorf("SuggestedAction = %q, want update", conflict.SuggestedAction)
	}
}

func TestResolveConflict_UpdateNew(t *testing.T) {
	s, cleanup := newTestIdentityStore(t)
	defer cleanup()
	ctx := context.Background()

	if _, _, err := s.Write(ctx, "diet", "vegan", memtypes.CategoryPreference, memtypes.SourceInferred); err != nil {
		t.Fatalf("Write: %v", err)
	}
	_, conflict, err := s.Write(ctx, "diet", "keto", memtypes.CategoryPreference, memtypes.SourceInferred)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	resolved, err := s.ResolveConflict(ctx, *conflict, memtypes.ActionUpdateNew, memtypes.CategoryPreference, memtypes.SourceInferred)
	if err != nil {
		t.Fatalf("ResolveConflict: %v", err)
	}
	if resolved.Value != "keto" {
		t.Errorf("resolved.Value = %q, want keto", resolved.Value)
	}
	if resolved.Confidence != ReplacementConfidence {
		t.Errorf("resolved.Confidence = %v, want %v", resolved.Confidence, ReplacementConfidence)
	}

	got, ok, err := s.GetByKey(ctx, "diet")
	if err != nil {
		t.Fatalf("GetByKey: %v", err)
	}
	if !ok || got.Value != "keto" {
		t.Errorf("GetByKey(diet) = %+v, %v, want keto, true", got, ok)
	}
}

func TestResolveConflict_KeepExisting(t *testing.T) {
	s, cleanup := newTestIdentityStore(t)
	defer cleanup()
	ctx := context.Background()

	if _, _, err := s.Write(ctx, "diet", "vegan", memtypes.CategoryPreference, memtypes.SourceInferred); err != nil {
		t.Fatalf("Write: %v", err)
	}
	_, conflict, err := s.Write(ctx, "diet", "keto", memtypes.CategoryPreference, memtypes.SourceInferred)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	if _, err := s.ResolveConflict(ctx, *conflict, memtypes.ActionKeepExisting, memtypes.CategoryPreference, memtypes.SourceInferred); err != nil {
		t.Fatalf("ResolveConflict: %v", err)
	}

	got, ok, err := s.GetByKey(ctx, "diet")
	if err != nil {
		t.Fatalf("GetByKey: %v", err)
	}
	if !ok || got.Value != "vegan" {
		t.Errorf("GetByKey(diet) = %+v, %v, want vegan, true", got, ok)
	}
}

func TestSearch_MatchesKeyOrValue(t *testing.T) {
	s, cleanup := newTestIdentityStore(t)
	defer cleanup()
	ctx := context.Background()

	if _, _, err := s.Write(ctx, "diet", "vegan", memtypes.CategoryPreference, memtypes.SourceExplicit); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, _, err := s.Write(ctx, "name", "Alex", memtypes.CategoryIdentity, memtypes.SourceExplicit); err != nil {
		t.Fatalf("Write: %v", err)
	}

	results, err := s.Search(ctx, "veg")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].Key != "diet" {
		t.Errorf("Search(veg) = %+v, want 1 result for diet", results)
	}
}

func TestDeleteClearCount(t *testing.T) {
	s, cleanup := newTestIdentityStore(t)
	defer cleanup()
	ctx := context.Background()

	fact, _, err := s.Write(ctx, "diet", "vegan", memtypes.CategoryPreference, memtypes.SourceExplicit)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	n, err := s.Count(ctx)
	if err != nil || n != 1 {
		t.Fatalf("Count = %d, %v, want 1, nil", n, err)
	}

	if err := s.Delete(ctx, fact.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if n, _ := s.Count(ctx); n != 0 {
		t.Errorf("Count after Delete = %d, want 0", n)
	}

	if _, _, err := s.Write(ctx, "name", "Alex", memtypes.CategoryIdentity, memtypes.SourceExplicit); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := s.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if n, _ := s.Count(ctx); n != 0 {
		t.Errorf("Count after Clear = %d, want 0", n)
	}
}
