// Package builder produces artifact versions: it snapshots the catalog and
// ratings sources, embeds every item, trains the CF model, and publishes
// the bundled result through the artifact store in one atomic swap.
package builder

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Anubhav12123/AI-Recommender-System/internal/artifact"
	"github.com/Anubhav12123/AI-Recommender-System/internal/catalog"
	"github.com/Anubhav12123/AI-Recommender-System/internal/cf"
	"github.com/Anubhav12123/AI-Recommender-System/internal/embedding"
	"github.com/Anubhav12123/AI-Recommender-System/internal/feedback"
	"github.com/Anubhav12123/AI-Recommender-System/internal/lexical"
	"github.com/Anubhav12123/AI-Recommender-System/internal/vector"
	"github.com/Anubhav12123/AI-Recommender-System/pkg/config"
	apperrors "github.com/Anubhav12123/AI-Recommender-System/pkg/errors"
	"github.com/Anubhav12123/AI-Recommender-System/pkg/metrics"
	"github.com/Anubhav12123/AI-Recommender-System/pkg/tracing"
)

// Degraded-item policies when embedding fails after retries.
const (
	PolicyAbort = "abort" // fail the whole build
	PolicySkip  = "skip"  // publish without the item in the vector index
)

// Options are the build-time knobs, copied from configuration.
type Options struct {
	LexicalParams lexical.Params
	CFNeighborK   int
	VectorBackend string
	HNSW          vector.HNSWConfig
	OnEmbedFail   string // PolicyAbort or PolicySkip
	Concurrency   int
}

func (o Options) withDefaults() Options {
	if o.CFNeighborK <= 0 {
		o.CFNeighborK = cf.DefaultNeighborK
	}
	if o.VectorBackend == "" {
		o.VectorBackend = "flat"
	}
	if o.OnEmbedFail == "" {
		o.OnEmbedFail = PolicyAbort
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 4
	}
	return o
}

// BuildNotice announces a published version on the build-complete topic so
// serving nodes can swap to it without polling the artifact directory.
type BuildNotice struct {
	VersionID string    `json:"version_id"`
	ItemCount int       `json:"item_count"`
	BuiltAt   time.Time `json:"built_at"`
}

// Builder turns source snapshots into published artifact versions.
type Builder struct {
	store    *artifact.Store
	embedder embedding.Provider
	cache    *embedding.Cache
	feedback *feedback.Store
	opts     Options
	logger   *slog.Logger
}

func New(store *artifact.Store, embedder embedding.Provider, cache *embedding.Cache, fb *feedback.Store, opts Options) *Builder {
	return &Builder{
		store:    store,
		embedder: embedder,
		cache:    cache,
		feedback: fb,
		opts:     opts.withDefaults(),
		logger:   slog.Default().With("component", "builder"),
	}
}

// FromConfig assembles Options from the configuration sections.
func FromConfig(cfg *config.Config) Options {
	return Options{
		LexicalParams: lexical.Params{K1: cfg.Lexical.K1, B: cfg.Lexical.B},
		CFNeighborK:   cfg.CF.NeighborK,
		VectorBackend: cfg.Vector.Backend,
		HNSW: vector.HNSWConfig{
			M:              cfg.Vector.M,
			EfConstruction: cfg.Vector.EfConstruction,
			EfSearch:       cfg.Vector.EfSearch,
		},
		OnEmbedFail: cfg.Builder.OnEmbedFailure,
		Concurrency: cfg.Embedding.Concurrency,
	}
}

// BuildAll snapshots both sources, builds the three indexes, and publishes
// the result. Identical snapshot refs yield the same version id, so a
// rebuild over unchanged inputs is skipped. Recent feedback events are
// folded into the interaction set before CF training.
func (b *Builder) BuildAll(ctx context.Context, items catalog.ItemSource, ratings catalog.RatingSource) (*artifact.Version, error) {
	ctx, span := tracing.StartSpan(ctx, "build_all", "")
	defer span.End()
	start := time.Now()

	v, err := b.buildVersion(ctx, items, ratings)
	if err != nil {
		metrics.BuildsTotal.WithLabelValues("failed").Inc()
		return nil, err
	}
	if v == nil {
		// Unchanged inputs; current version already covers them.
		metrics.BuildsTotal.WithLabelValues("skipped").Inc()
		return b.store.Current()
	}

	if err := b.store.Publish(v); err != nil {
		metrics.BuildsTotal.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("publishing version %s: %w", v.Manifest.VersionID, err)
	}

	duration := time.Since(start)
	metrics.BuildsTotal.WithLabelValues("success").Inc()
	metrics.BuildDuration.Observe(duration.Seconds())
	b.logger.Info("build complete",
		"version_id", v.Manifest.VersionID,
		"item_count", v.Manifest.ItemCount,
		"degraded_items", len(v.Manifest.DegradedItems),
		"duration", duration)
	return v, nil
}

func (b *Builder) buildVersion(ctx context.Context, items catalog.ItemSource, ratings catalog.RatingSource) (*artifact.Version, error) {
	catalogRef := items.Ref()
	ratingsRef := ratings.Ref()
	versionID := artifact.ComputeVersionID(catalogRef, ratingsRef, b.opts.LexicalParams, b.opts.CFNeighborK, b.opts.VectorBackend)

	if b.store.Exists(versionID) {
		if current, err := b.store.CurrentID(); err == nil && current == versionID {
			b.logger.Info("inputs unchanged, skipping rebuild", "version_id", versionID)
			return nil, nil
		}
		// Bundle exists but is not current (a rollback happened); republish it.
		v, err := b.store.Load(versionID)
		if err == nil {
			return v, nil
		}
	}

	itemList, err := items.Items(ctx)
	if err != nil {
		return nil, fmt.Errorf("snapshotting catalog: %w", err)
	}
	if len(itemList) == 0 {
		return nil, apperrors.New(apperrors.ErrBuildFailed, "catalog snapshot is empty")
	}
	interactions, err := ratings.Interactions(ctx)
	if err != nil {
		return nil, fmt.Errorf("snapshotting ratings: %w", err)
	}
	if b.feedback != nil {
		interactions = append(interactions, b.feedback.Interactions()...)
	}

	if t, ok := b.embedder.(embedding.Trainable); ok {
		docs := make([]string, len(itemList))
		for i, it := range itemList {
			docs[i] = it.Text()
		}
		t.Train(docs)
	}

	_, lexSpan := tracing.StartChildSpan(ctx, "build_lexical")
	lex := lexical.Build(itemList, b.opts.LexicalParams)
	lexSpan.End()

	entries, degraded, err := b.embedItems(ctx, itemList)
	if err != nil {
		return nil, err
	}

	_, vecSpan := tracing.StartChildSpan(ctx, "build_vector")
	var index vector.Index
	switch b.opts.VectorBackend {
	case "hnsw":
		index = vector.NewHNSW(entries, b.opts.HNSW)
	default:
		index = vector.NewFlat(entries)
	}
	vecSpan.End()

	_, cfSpan := tracing.StartChildSpan(ctx, "train_cf")
	model := cf.Train(cf.BuildMatrix(interactions), b.opts.CFNeighborK)
	cfSpan.End()

	dims := 0
	if len(entries) > 0 {
		dims = len(entries[0].Vector)
	}

	// Freeze the corpus-trained state so the version keeps embedding
	// queries with the vocabulary its item vectors came from, even after
	// the shared provider is retrained by a later build.
	var queryEmbedder *embedding.TFIDF
	if t, ok := b.embedder.(*embedding.TFIDF); ok {
		queryEmbedder = embedding.RestoreTFIDF(t.Data())
	}

	v := &artifact.Version{
		Manifest: artifact.Manifest{
			VersionID:     versionID,
			BuiltAt:       time.Now().UTC(),
			CatalogRef:    catalogRef,
			RatingsRef:    ratingsRef,
			ItemCount:     len(itemList),
			Dimensions:    dims,
			LexicalParams: b.opts.LexicalParams,
			CFNeighborK:   b.opts.CFNeighborK,
			VectorBackend: b.opts.VectorBackend,
			EmbedPolicy:   b.opts.OnEmbedFail,
			DegradedItems: degraded,
		},
		Items:         itemMap(itemList),
		Lexical:       lex,
		Embeddings:    entries,
		VectorIndex:   index,
		CF:            model,
		QueryEmbedder: queryEmbedder,
	}
	v.IndexEmbeddings()
	return v, nil
}

// embedItems embeds every item with bounded concurrency, serving repeats
// from the content-hash cache. Items that still fail after the provider's
// retries are handled per the configured policy.
func (b *Builder) embedItems(ctx context.Context, items []catalog.Item) ([]vector.Entry, []string, error) {
	ctx, span := tracing.StartChildSpan(ctx, "embed_items")
	defer span.End()

	// A corpus-trained provider's vectors depend on the whole corpus, not
	// just the item text, so the content-hash cache cannot be trusted.
	cache := b.cache
	if _, trainable := b.embedder.(embedding.Trainable); trainable {
		cache = nil
	}

	type slot struct {
		entry vector.Entry
		ok    bool
	}
	slots := make([]slot, len(items))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.opts.Concurrency)
	for i, item := range items {
		g.Go(func() error {
			text := item.Text()
			key := embedding.Key(text)
			if cache != nil {
				if vec, ok := cache.Get(key); ok {
					metrics.EmbeddingCacheHits.Inc()
					slots[i] = slot{entry: vector.Entry{ID: item.ID, Vector: vec}, ok: true}
					return nil
				}
			}
			vec, err := b.embedder.Embed(gctx, text)
			if err != nil {
				metrics.EmbeddingCallsTotal.WithLabelValues("error").Inc()
				if b.opts.OnEmbedFail == PolicySkip {
					b.logger.Warn("embedding failed, item degraded", "item_id", item.ID, "error", err)
					return nil
				}
				return fmt.Errorf("embedding item %s: %w", item.ID, err)
			}
			metrics.EmbeddingCallsTotal.WithLabelValues("success").Inc()
			if cache != nil {
				cache.Put(key, vec)
			}
			slots[i] = slot{entry: vector.Entry{ID: item.ID, Vector: vec}, ok: true}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", apperrors.ErrBuildFailed, err)
	}

	entries := make([]vector.Entry, 0, len(items))
	var degraded []string
	for i, s := range slots {
		if !s.ok {
			degraded = append(degraded, items[i].ID)
			continue
		}
		entries = append(entries, s.entry)
	}
	sort.Strings(degraded)

	if cache != nil {
		if err := cache.Save(); err != nil {
			b.logger.Warn("saving embedding cache failed", "error", err)
		}
	}
	span.SetAttr("embedded", len(entries))
	span.SetAttr("degraded", len(degraded))
	return entries, degraded, nil
}

func itemMap(items []catalog.Item) map[string]catalog.Item {
	m := make(map[string]catalog.Item, len(items))
	for _, it := range items {
		m[it.ID] = it
	}
	return m
}
