// Package retrieval implements the read-path pipeline: per-layer candidate
// gathering, context detection for experience scoping, importance scoring for
// freshly observed text, and the final layer-priority merge-and-rank that
// retrieve() returns to a caller.
package retrieval

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/yrahul8811-gif/tieredmemory/pkg/embedding"
	"github.com/yrahul8811-gif/tieredmemory/pkg/layers"
	"github.com/yrahul8811-gif/tieredmemory/pkg/memtypes"
	"github.com/yrahul8811-gif/tieredmemory/pkg/vecmath"
)

// Default tuning for Retrieve when the caller's Options leaves a field zero.
const (
	DefaultThreshold = 0.5
	DefaultTopK      = 10

	// IdentityConfidenceFloor is the minimum confidence an identity fact must
	// carry to be surfaced at all.
	IdentityConfidenceFloor = 0.5
	// IdentityMaxResults caps how many identity facts a single retrieve call
	// returns, since IMM always participates regardless of embedding readiness.
	IdentityMaxResults = 3

	// KnowledgeThresholdFactor scales the caller's similarity threshold down
	// for the knowledge channel, which scores confidence- and
	// reinforcement-boosted rather than raw similarity.
	KnowledgeThresholdFactor = 0.8
)

// Options tunes a single Retrieve call.
type Options struct {
	// Threshold is the minimum experience-search score to include a result.
	// Knowledge uses Threshold * KnowledgeThresholdFactor.
	Threshold float64
	// TopK bounds the final merged result count across all layers.
	TopK int
	// RecentContext blends into the query embedding the same way the router
	// blends context into its routing embedding.
	RecentContext []string
	// ContextFilter restricts the experience phase to entries tagged with
	// this Context. Empty means no restriction.
	ContextFilter memtypes.Context
	// IncludeIdentity, IncludeExperience and IncludeKnowledge gate whether
	// each layer's phase runs at all. All default to true (the zero value of
	// Options enables every layer); set explicitly to false to scope a call
	// to a subset of layers.
	IncludeIdentity   *bool
	IncludeExperience *bool
	IncludeKnowledge  *bool
}

func (o Options) withDefaults() Options {
	if o.Threshold <= 0 {
		o.Threshold = DefaultThreshold
	}
	if o.TopK <= 0 {
		o.TopK = DefaultTopK
	}
	return o
}

func boolOrDefault(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}

// Pipeline is the read-path collaborator: it fans a query out across all
// three layers, respecting each layer's own readiness and scoring rules, and
// merges the results into a single ranked list.
type Pipeline struct {
	identity   *layers.IdentityStore
	experience *layers.ExperienceStore
	knowledge  *layers.KnowledgeStore
	embedder   embedding.Provider
}

// New builds a retrieval Pipeline over the three layer adapters and the
// shared embedding provider.
func New(identity *layers.IdentityStore, experience *layers.ExperienceStore, knowledge *layers.KnowledgeStore, embedder embedding.Provider) *Pipeline {
	return &Pipeline{identity: identity, experience: experience, knowledge: knowledge, embedder: embedder}
}

// Retrieve runs the identity phase regardless of embedding readiness, then
// the experience and knowledge phases only if the embedding provider is
// ready, each phase only when its Include flag is not false; it merges every
// phase's results by layer priority (IMM > EMM > KMM) and then by
// similarity/confidence descending, and truncates to opts.TopK.
func (p *Pipeline) Retrieve(ctx context.Context, query string, opts Options) ([]memtypes.MemoryResult, error) {
	opts = opts.withDefaults()

	var results []memtypes.MemoryResult

	if boolOrDefault(opts.IncludeIdentity, true) {
		identityResults, err := p.retrieveIdentity(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("retrieve: identity phase: %w", err)
		}
		results = append(results, identityResults...)
	}

	includeExperience := boolOrDefault(opts.IncludeExperience, true)
	includeKnowledge := boolOrDefault(opts.IncludeKnowledge, true)
	if (includeExperience || includeKnowledge) && p.embedder.Status() == embedding.StatusReady {
		queryVec, err := p.blendedEmbedding(ctx, query, opts.RecentContext)
		if err != nil {
			return nil, fmt.Errorf("retrieve: embed query: %w", err)
		}

		if includeExperience {
			expResults, err := p.retrieveExperience(ctx, queryVec, opts.Threshold, opts.ContextFilter)
			if err != nil {
				return nil, fmt.Errorf("retrieve: experience phase: %w", err)
			}
			results = append(results, expResults...)
		}

		if includeKnowledge {
			knResults, err := p.retrieveKnowledge(ctx, queryVec, opts.Threshold*KnowledgeThresholdFactor)
			if err != nil {
				return nil, fmt.Errorf("retrieve: knowledge phase: %w", err)
			}
			results = append(results, knResults...)
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		pi, pj := memtypes.LayerPriority(results[i].Layer), memtypes.LayerPriority(results[j].Layer)
		if pi != pj {
			return pi > pj
		}
		return rankValue(results[i]) > rankValue(results[j])
	})

	if len(results) > opts.TopK {
		results = results[:opts.TopK]
	}
	return results, nil
}

// rankValue is the within-layer sort key: similarity when present, else
// confidence.
func rankValue(r memtypes.MemoryResult) float64 {
	if r.Similarity != nil {
		return *r.Similarity
	}
	return r.Confidence
}

func (p *Pipeline) retrieveIdentity(ctx context.Context, query string) ([]memtypes.MemoryResult, error) {
	facts, err := p.identity.Search(ctx, query)
	if err != nil {
		return nil, err
	}

	filtered := facts[:0:0]
	for _, f := range facts {
		if f.Confidence >= IdentityConfidenceFloor {
			filtered = append(filtered, f)
		}
	}
	sort.Slice(filtered, func(i, j int) bool { return filtered[i].Confidence > filtered[j].Confidence })
	if len(filtered) > IdentityMaxResults {
		filtered = filtered[:IdentityMaxResults]
	}

	out := make([]memtypes.MemoryResult, 0, len(filtered))
	for _, f := range filtered {
		out = append(out, memtypes.MemoryResult{
			Layer:      memtypes.IMM,
			Content:    fmt.Sprintf("%s: %s", f.Key, f.Value),
			Confidence: f.Confidence,
			Timestamp:  f.LastConfirmed,
			Metadata:   map[string]any{"key": f.Key, "category": f.Category},
		})
	}
	return out, nil
}

func (p *Pipeline) retrieveExperience(ctx context.Context, queryVec []float32, threshold float64, contextFilter memtypes.Context) ([]memtypes.MemoryResult, error) {
	scored, err := p.experience.Search(ctx, queryVec, threshold, 0, contextFilter)
	if err != nil {
		return nil, err
	}

	out := make([]memtypes.MemoryResult, 0, len(scored))
	for _, s := range scored {
		sim := s.Sim
		out = append(out, memtypes.MemoryResult{
			Layer:      memtypes.EMM,
			Content:    s.Entry.Content,
			Confidence: s.Entry.Importance,
			Similarity: &sim,
			Timestamp:  s.Entry.Timestamp,
			Metadata:   map[string]any{"context": s.Entry.Context, "role": s.Entry.Role},
		})
	}
	return out, nil
}

func (p *Pipeline) retrieveKnowledge(ctx context.Context, queryVec []float32, threshold float64) ([]memtypes.MemoryResult, error) {
	scored, err := p.knowledge.Search(ctx, queryVec, threshold, 0)
	if err != nil {
		return nil, err
	}

	out := make([]memtypes.MemoryResult, 0, len(scored))
	for _, s := range scored {
		sim := s.Sim
		out = append(out, memtypes.MemoryResult{
			Layer:      memtypes.KMM,
			Content:    s.Entry.Content,
			Confidence: s.Entry.Confidence,
			Similarity: &sim,
			Timestamp:  s.Entry.Timestamp,
			Metadata:   map[string]any{"category": s.Entry.Category, "reinforcement_count": s.Entry.ReinforcementCount},
		})
	}
	return out, nil
}

func (p *Pipeline) blendedEmbedding(ctx context.Context, text string, recentContext []string) ([]float32, error) {
	textVec, err := p.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(recentContext) == 0 {
		return textVec, nil
	}
	ctxVec, err := p.embedder.Embed(ctx, strings.Join(lastN(recentContext, 5), " "))
	if err != nil {
		return nil, err
	}
	return vecmath.Average(textVec, ctxVec), nil
}

func lastN(lines []string, n int) []string {
	if len(lines) <= n {
		return lines
	}
	return lines[len(lines)-n:]
}

// contextKeywords is the fixed lexicon driving DetectContext: the first
// context whose keyword list matches wins, in this table's order; no match
// falls back to ContextGeneral.
var contextKeywords = []struct {
	context  memtypes.Context
	keywords []string
}{
	{memtypes.ContextFamily, []string{"mom", "dad", "mother", "father", "sister", "brother", "parents", "family", "son", "daughter", "spouse", "wife", "husband"}},
	{memtypes.ContextWork, []string{"work", "job", "boss", "colleague", "meeting", "office", "project", "deadline", "client", "coworker"}},
	{memtypes.ContextCollege, []string{"college", "university", "professor", "class", "exam", "semester", "campus", "homework", "assignment", "lecture"}},
	{memtypes.ContextHealth, []string{"doctor", "sick", "hospital", "medication", "symptom", "therapy", "diagnosis", "health", "illness"}},
	{memtypes.ContextHobby, []string{"hobby", "guitar", "painting", "hiking", "gaming", "collection", "photography", "gardening"}},
	{memtypes.ContextPersonal, []string{"feeling", "relationship", "dating", "friend", "emotion", "stressed", "anxious", "happy", "sad"}},
}

// DetectContext scans text for the first matching keyword lexicon, in table
// order, and returns its Context. Text with no keyword hit is ContextGeneral.
func DetectContext(text string) memtypes.Context {
	lower := strings.ToLower(text)
	for _, bucket := range contextKeywords {
		for _, kw := range bucket.keywords {
			if strings.Contains(lower, kw) {
				return bucket.context
			}
		}
	}
	return memtypes.ContextGeneral
}

// emotionalWords nudge importance up: an utterance carrying strong affect is
// more likely to matter later than a flat statement of fact. Each hit adds
// ImportanceEmotionalBonusPerHit, up to ImportanceEmotionalBonusCap total.
var emotionalWords = []string{
	"love", "hate", "fear", "hope", "dream", "worry", "excited", "sad",
	"happy", "angry", "frustrated",
}

// ImportanceBase, ImportanceRoleBonus, ImportanceEmotionalBonusPerHit,
// ImportanceEmotionalBonusCap, ImportanceQuestionBonus, ImportanceLengthBonus
// and ImportanceWordCountCutoff are the additive terms ScoreImportance sums
// before clamping to [0, 1].
const (
	ImportanceBase                 = 0.5
	ImportanceRoleBonus            = 0.1
	ImportanceEmotionalBonusPerHit = 0.05
	ImportanceEmotionalBonusCap    = 0.2
	ImportanceQuestionBonus        = 0.1
	ImportanceLengthBonus          = 0.1
	ImportanceWordCountCutoff      = 20
)

// ScoreImportance computes an experience's initial importance: a base of
// ImportanceBase, plus a bonus for user (vs. assistant) authorship, a
// per-hit bonus (capped) for emotional language, a bonus for a question,
// and a bonus for utterances longer than ImportanceWordCountCutoff words,
// clamped to [0, 1].
func ScoreImportance(text string, role memtypes.ExperienceRole) float64 {
	score := ImportanceBase

	if role == memtypes.RoleUser {
		score += ImportanceRoleBonus
	}

	lower := strings.ToLower(text)
	emotionalBonus := 0.0
	for _, w := range emotionalWords {
		if strings.Contains(lower, w) {
			emotionalBonus += ImportanceEmotionalBonusPerHit
		}
	}
	if emotionalBonus > ImportanceEmotionalBonusCap {
		emotionalBonus = ImportanceEmotionalBonusCap
	}
	score += emotionalBonus

	if strings.Contains(text, "?") {
		score += ImportanceQuestionBonus
	}

	if len(strings.Fields(text)) > ImportanceWordCountCutoff {
		score += ImportanceLengthBonus
	}

	if score > 1.0 {
		score = 1.0
	}
	if score < 0.0 {
		score = 0.0
	}
	return score
}
