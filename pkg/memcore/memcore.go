// Package memcore is the public facade over the tiered memory system: it
// wires the persistent store, the embedding provider, the router, the three
// layer adapters, and the retrieval/write pipelines into the small set of
// operations a caller actually needs (Write, Retrieve, ResolveConflict,
// Teach, Retrain, and per-layer List/Clear/Count/Delete), the same way
// hindsight.System bundles its store, graph, and bank collaborators behind
// Retain/Recall/Reflect.
package memcore

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/yrahul8811-gif/tieredmemory/internal/memlog"
	"github.com/yrahul8811-gif/tieredmemory/pkg/embedding"
	"github.com/yrahul8811-gif/tieredmemory/pkg/layers"
	"github.com/yrahul8811-gif/tieredmemory/pkg/memstore"
	"github.com/yrahul8811-gif/tieredmemory/pkg/memtypes"
	"github.com/yrahul8811-gif/tieredmemory/pkg/retrieval"
	"github.com/yrahul8811-gif/tieredmemory/pkg/router"
	"github.com/yrahul8811-gif/tieredmemory/pkg/writepath"
)

// Config configures a System.
type Config struct {
	// DBPath is the path to the SQLite database file.
	DBPath string
	// RouterOptions tunes the router's decision thresholds.
	RouterOptions []router.ConfigOption
}

// DefaultConfig returns a Config pointed at dbPath with default router
// thresholds.
func DefaultConfig(dbPath string) Config {
	return Config{DBPath: dbPath}
}

// System is the tiered memory facade: one SQLite-backed store, one embedding
// provider, and the router/layers/retrieval/writepath collaborators built on
// top of them.
type System struct {
	store    memstore.Store
	embedder embedding.Provider
	router   *router.Router

	identity   *layers.IdentityStore
	experience *layers.ExperienceStore
	knowledge  *layers.KnowledgeStore

	retrieval *retrieval.Pipeline
	write     *writepath.Pipeline

	log *zap.Logger
}

// New opens the store at cfg.DBPath, wires every collaborator against it and
// embedder, and returns a ready-to-Init System. embedder is supplied by the
// caller, same as hindsight leaves embedding generation to its caller.
func New(cfg Config, embedder embedding.Provider) (*System, error) {
	store := memstore.Open(cfg.DBPath)

	r := router.New(embedder, store, cfg.RouterOptions...)

	identity := layers.NewIdentityStore(store)
	experience := layers.NewExperienceStore(store)
	knowledge := layers.NewKnowledgeStore(store)

	return &System{
		store:      store,
		embedder:   embedder,
		router:     r,
		identity:   identity,
		experience: experience,
		knowledge:  knowledge,
		retrieval:  retrieval.New(identity, experience, knowledge, embedder),
		write:      writepath.New(r, identity, experience, knowledge, embedder),
		log:        memlog.New("memcore"),
	}, nil
}

// Init opens the underlying database and loads or seeds the router's
// classifier. Must be called once before any other System method.
func (s *System) Init(ctx context.Context) error {
	if err := s.store.Init(ctx); err != nil {
		return fmt.Errorf("memcore: init store: %w", err)
	}
	if err := s.router.Init(ctx); err != nil {
		return fmt.Errorf("memcore: init router: %w", err)
	}
	s.log.Info("system initialized")
	return nil
}

// Close releases the underlying database connection.
func (s *System) Close() error {
	_ = s.log.Sync()
	return s.store.Close()
}

// Write routes text through the router and persists it to whichever layer
// the routing decision names. See writepath.Pipeline.Write for the full
// dispatch rules.
func (s *System) Write(ctx context.Context, text string, recentContext []string) (memtypes.WriteResult, error) {
	result, err := s.write.Write(ctx, writepath.Request{Text: text, RecentContext: recentContext, Role: memtypes.RoleUser})
	s.logWrite(result, err)
	return result, err
}

// WriteAs is Write with an explicit speaker role, for assistant-authored
// experience entries.
func (s *System) WriteAs(ctx context.Context, text string, recentContext []string, role memtypes.ExperienceRole) (memtypes.WriteResult, error) {
	result, err := s.write.Write(ctx, writepath.Request{Text: text, RecentContext: recentContext, Role: role})
	s.logWrite(result, err)
	return result, err
}

func (s *System) logWrite(result memtypes.WriteResult, err error) {
	if err != nil {
		s.log.Error("write failed", zap.Error(err))
		return
	}
	if result.Conflict != nil {
		s.log.Warn("identity conflict surfaced", zap.String("key", result.Conflict.Key), zap.String("suggested_action", result.Conflict.SuggestedAction))
		return
	}
	if !result.Success {
		s.log.Info("write not persisted", zap.String("message", result.Message))
		return
	}
	s.log.Info("write persisted", zap.String("layer", string(result.Layer)))
}

// Retrieve runs the full read-path pipeline for query and returns the merged,
// layer-priority-ranked results.
func (s *System) Retrieve(ctx context.Context, query string, opts retrieval.Options) ([]memtypes.MemoryResult, error) {
	return s.retrieval.Retrieve(ctx, query, opts)
}

// ResolveConflict applies a caller's decision for a previously surfaced
// identity Conflict.
func (s *System) ResolveConflict(ctx context.Context, conflict memtypes.Conflict, action memtypes.ConflictAction, category memtypes.IdentityCategory, source memtypes.IdentitySource) (*memtypes.IdentityFact, error) {
	return s.identity.ResolveConflict(ctx, conflict, action, category, source)
}

// Teach applies one online correction: (text, context) should have routed to
// correctLayer. It updates the classifier, appends the correction to the
// retraining log, persists the new weights, and invalidates the route cache.
func (s *System) Teach(ctx context.Context, text string, recentContext []string, correctLayer memtypes.Layer) error {
	if err := s.router.Learn(ctx, text, recentContext, correctLayer); err != nil {
		s.log.Error("teach failed", zap.Error(err))
		return err
	}
	s.log.Info("classifier updated", zap.String("correct_layer", string(correctLayer)))
	return nil
}

// Retrain rebuilds the classifier from scratch: the seed corpus followed by
// every persisted correction, in order.
func (s *System) Retrain(ctx context.Context) error {
	if err := s.router.RetrainFromHistory(ctx); err != nil {
		s.log.Error("retrain failed", zap.Error(err))
		return err
	}
	s.log.Info("classifier retrained from history")
	return nil
}

// ApplyExperienceDecay recomputes every experience entry's importance from
// its age. Intended to run periodically (e.g. once per day) rather than on
// every read, since decay only ever reduces importance and a single
// recomputation holds until the next entry is written or decayed again.
func (s *System) ApplyExperienceDecay(ctx context.Context) error {
	return s.experience.ApplyDecay(ctx)
}

// Identity exposes the IMM adapter directly for list/clear/count/delete
// operations that don't belong on the narrower facade surface.
func (s *System) Identity() *layers.IdentityStore { return s.identity }

// Experience exposes the EMM adapter directly.
func (s *System) Experience() *layers.ExperienceStore { return s.experience }

// Knowledge exposes the KMM adapter directly.
func (s *System) Knowledge() *layers.KnowledgeStore { return s.knowledge }

// Embedder returns the embedding provider this System was built with, so a
// caller can watch its readiness (e.g. to gate a "retrieval degraded" banner).
func (s *System) Embedder() embedding.Provider { return s.embedder }
