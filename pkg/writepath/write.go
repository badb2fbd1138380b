// Package writepath implements the write() operation: it routes incoming
// text through the router, then dispatches to the layer-specific persistence
// rules each destination requires.
package writepath

import (
	"context"
	"fmt"

	"github.com/yrahul8811-gif/tieredmemory/pkg/embedding"
	"github.com/yrahul8811-gif/tieredmemory/pkg/layers"
	"github.com/yrahul8811-gif/tieredmemory/pkg/memtypes"
	"github.com/yrahul8811-gif/tieredmemory/pkg/retrieval"
	"github.com/yrahul8811-gif/tieredmemory/pkg/router"
	"github.com/yrahul8811-gif/tieredmemory/pkg/rules"
)

// identityCategories maps each extraction key to the identity category it
// represents. A key absent from this table falls back to CategoryTrait.
var identityCategories = map[string]memtypes.IdentityCategory{
	"name":           memtypes.CategoryIdentity,
	"preferred_name": memtypes.CategoryIdentity,
	"gender":         memtypes.CategoryIdentity,
	"diet":           memtypes.CategoryPreference,
	"religion":       memtypes.CategoryPreference,
	"language":       memtypes.CategoryTrait,
	"allergy":        memtypes.CategoryBoundary,
	"avoid_eat":      memtypes.CategoryBoundary,
	"avoid_drink":    memtypes.CategoryBoundary,
}

// Request is a single write() call's input.
type Request struct {
	Text          string
	RecentContext []string
	// Role attributes an EMM write to a speaker; defaults to RoleUser.
	Role memtypes.ExperienceRole
}

// Pipeline is the write-path collaborator: router plus the three layer
// adapters it dispatches to.
type Pipeline struct {
	router     *router.Router
	identity   *layers.IdentityStore
	experience *layers.ExperienceStore
	knowledge  *layers.KnowledgeStore
	embedder   embedding.Provider
}

// New builds a write Pipeline.
func New(r *router.Router, identity *layers.IdentityStore, experience *layers.ExperienceStore, knowledge *layers.KnowledgeStore, embedder embedding.Provider) *Pipeline {
	return &Pipeline{router: r, identity: identity, experience: experience, knowledge: knowledge, embedder: embedder}
}

// Write routes req.Text and persists it to whichever layer (or none) the
// routing decision names.
//
//   - NONE (safety blocklist) persists nothing.
//   - A /forget command deletes matching experience entries instead of
//     writing a new one.
//   - ASK and CONFLICT are not destinations in their own right; per the
//     fallback rule, an utterance the router can't confidently place is
//     still worth keeping as a conversational record, so both default to
//     an EMM write rather than being silently dropped.
//   - IMM extracts a key/value pair and goes through identity conflict
//     resolution.
//   - EMM is written with the embedding optional: a provider that isn't
//     ready yet still gets a text-only experience record.
//   - KMM requires a ready embedding provider and fails loudly without one,
//     since a knowledge entry with no embedding could never be found again.
func (p *Pipeline) Write(ctx context.Context, req Request) (memtypes.WriteResult, error) {
	if req.Role == "" {
		req.Role = memtypes.RoleUser
	}

	routing, err := p.router.Route(ctx, req.Text, req.RecentContext)
	if err != nil {
		return memtypes.WriteResult{}, fmt.Errorf("write: route: %w", err)
	}

	if routing.ForgetQuery != "" {
		return p.forget(ctx, routing.ForgetQuery)
	}

	switch routing.Decision {
	case memtypes.DecisionNONE:
		return memtypes.WriteResult{Success: false, Message: "blocked: matched safety rule, not persisted"}, nil

	case memtypes.DecisionIMM:
		return p.writeIdentity(ctx, req.Text)

	case memtypes.DecisionEMM, memtypes.DecisionASK, memtypes.DecisionCONFLICT:
		return p.writeExperience(ctx, req)

	case memtypes.DecisionKMM:
		return p.writeKnowledge(ctx, req.Text)

	default:
		return memtypes.WriteResult{}, fmt.Errorf("write: unrecognized decision %q", routing.Decision)
	}
}

func (p *Pipeline) writeIdentity(ctx context.Context, text string) (memtypes.WriteResult, error) {
	extraction, ok := rules.Extract(text)
	if !ok {
		return memtypes.WriteResult{Success: false, Message: "identity extraction failed: no recognizable key/value pattern"}, nil
	}

	category, ok := identityCategories[extraction.Key]
	if !ok {
		category = memtypes.CategoryTrait
	}

	fact, conflict, err := p.identity.Write(ctx, extraction.Key, extraction.Value, category, memtypes.SourceExplicit)
	if err != nil {
		return memtypes.WriteResult{}, fmt.Errorf("write identity: %w", err)
	}
	if conflict != nil {
		return memtypes.WriteResult{Success: false, Layer: memtypes.IMM, Conflict: conflict, Message: "conflicting identity fact, resolution required"}, nil
	}

	return memtypes.WriteResult{Success: true, Layer: memtypes.IMM, Message: fmt.Sprintf("stored %s=%s", fact.Key, fact.Value)}, nil
}

func (p *Pipeline) writeExperience(ctx context.Context, req Request) (memtypes.WriteResult, error) {
	entryContext := retrieval.DetectContext(req.Text)
	importance := retrieval.ScoreImportance(req.Text, req.Role)

	var vec []float32
	if p.embedder.Status() == embedding.StatusReady {
		embedded, err := p.embedder.Embed(ctx, req.Text)
		if err != nil {
			return memtypes.WriteResult{}, fmt.Errorf("write experience: embed: %w", err)
		}
		vec = embedded
	}

	entry := memtypes.ExperienceEntry{
		Content:            req.Text,
		Context:            entryContext,
		Timestamp:          timeNow(),
		Importance:         importance,
		OriginalImportance: importance,
		Role:               req.Role,
		Embedding:          vec,
	}
	if err := p.experience.Put(ctx, entry); err != nil {
		return memtypes.WriteResult{}, fmt.Errorf("write experience: %w", err)
	}

	return memtypes.WriteResult{Success: true, Layer: memtypes.EMM, Message: "stored experience"}, nil
}

func (p *Pipeline) writeKnowledge(ctx context.Context, text string) (memtypes.WriteResult, error) {
	if p.embedder.Status() != embedding.StatusReady {
		return memtypes.WriteResult{}, fmt.Errorf("write knowledge: embedding provider not ready, refusing to store an unsearchable entry")
	}

	vec, err := p.embedder.Embed(ctx, text)
	if err != nil {
		return memtypes.WriteResult{}, fmt.Errorf("write knowledge: embed: %w", err)
	}

	entry := memtypes.KnowledgeEntry{
		Content:    text,
		Category:   memtypes.KnowledgeSkill,
		Embedding:  vec,
		Confidence: layers.InitialKnowledgeConfidence,
		Timestamp:  timeNow(),
	}
	if err := p.knowledge.Put(ctx, entry); err != nil {
		return memtypes.WriteResult{}, fmt.Errorf("write knowledge: %w", err)
	}

	return memtypes.WriteResult{Success: true, Layer: memtypes.KMM, Message: "stored knowledge"}, nil
}

// forget deletes every experience entry whose content contains query,
// case-insensitively matched against the literal forget target the rule
// engine carried through. It never touches IMM or KMM: forgetting is scoped to
// conversational memory by design.
func (p *Pipeline) forget(ctx context.Context, query string) (memtypes.WriteResult, error) {
	all, err := p.experience.All(ctx)
	if err != nil {
		return memtypes.WriteResult{}, fmt.Errorf("forget: %w", err)
	}

	var deleted int
	for _, e := range all {
		if containsFold(e.Content, query) {
			if err := p.experience.Delete(ctx, e.ID); err != nil {
				return memtypes.WriteResult{}, fmt.Errorf("forget: delete %s: %w", e.ID, err)
			}
			deleted++
		}
	}

	return memtypes.WriteResult{Success: true, Layer: memtypes.EMM, Message: fmt.Sprintf("forgot %d matching experience(s)", deleted)}, nil
}
