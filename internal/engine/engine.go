// Package engine is the online hybrid ranker. It serves queries against the
// currently published artifact version, combining lexical, vector, and
// collaborative-filtering candidates through weighted score fusion with a
// bounded feedback boost.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/Anubhav12123/AI-Recommender-System/internal/artifact"
	"github.com/Anubhav12123/AI-Recommender-System/internal/embedding"
	"github.com/Anubhav12123/AI-Recommender-System/internal/feedback"
	"github.com/Anubhav12123/AI-Recommender-System/internal/lexical"
	"github.com/Anubhav12123/AI-Recommender-System/pkg/config"
	apperrors "github.com/Anubhav12123/AI-Recommender-System/pkg/errors"
	"github.com/Anubhav12123/AI-Recommender-System/pkg/metrics"
)

// candidatePool is the per-source fan-out multiplier: each source retrieves
// up to limit*candidatePool candidates before fusion so a strong result in
// one source is not cut off by another source's top-k boundary.
const (
	candidatePool    = 3
	minCandidates    = 30
	defaultSelfFetch = 1 // extra slot when the query item can match itself
)

// Hit is one ranked result with its per-source normalized score breakdown.
type Hit struct {
	ItemID  string             `json:"item_id"`
	Title   string             `json:"title"`
	Score   float64            `json:"score"`
	Sources map[string]float64 `json:"sources"`
}

// Result is a ranked response stamped with the artifact version that
// produced it.
type Result struct {
	Hits      []Hit  `json:"hits"`
	VersionID string `json:"version_id"`
}

// Options carries the fusion and boost parameters, frozen at construction.
type Options struct {
	Fusion       config.FusionConfig
	Boost        feedback.BoostParams
	DefaultLimit int
	MaxResults   int
}

// Engine answers Search, SimilarTo, and RecommendFor against an
// atomically swappable artifact version. All reads go through the version
// pointer; SetVersion is the only writer.
type Engine struct {
	current  atomic.Pointer[artifact.Version]
	embedder embedding.Provider
	feedback *feedback.Store
	opts     Options
	weights  map[string]float64
	logger   *slog.Logger
}

func New(embedder embedding.Provider, fb *feedback.Store, opts Options) *Engine {
	if opts.DefaultLimit <= 0 {
		opts.DefaultLimit = 10
	}
	if opts.MaxResults <= 0 {
		opts.MaxResults = 100
	}
	return &Engine{
		embedder: embedder,
		feedback: fb,
		opts:     opts,
		weights: map[string]float64{
			SourceLexical: opts.Fusion.LexicalWeight,
			SourceVector:  opts.Fusion.VectorWeight,
			SourceCF:      opts.Fusion.CFWeight,
		},
		logger: slog.Default().With("component", "engine"),
	}
}

// SetVersion swaps the served artifact version. Readers in flight keep the
// version they started with.
func (e *Engine) SetVersion(v *artifact.Version) {
	e.current.Store(v)
	if v != nil {
		e.logger.Info("serving artifact version", "version_id", v.Manifest.VersionID, "item_count", v.Manifest.ItemCount)
	}
}

// CurrentVersion returns the served version, nil before the first publish.
func (e *Engine) CurrentVersion() *artifact.Version {
	return e.current.Load()
}

func (e *Engine) version() (*artifact.Version, error) {
	v := e.current.Load()
	if v == nil {
		return nil, apperrors.ErrNoVersion
	}
	return v, nil
}

func (e *Engine) clampLimit(limit int) int {
	if limit <= 0 {
		return e.opts.DefaultLimit
	}
	if limit > e.opts.MaxResults {
		return e.opts.MaxResults
	}
	return limit
}

func poolSize(limit int) int {
	n := limit * candidatePool
	if n < minCandidates {
		n = minCandidates
	}
	return n
}

// Search runs a hybrid text query: BM25 candidates unioned with nearest
// neighbors of the query embedding. userID is optional; when present the
// user's recent feedback boosts retrieved candidates.
func (e *Engine) Search(ctx context.Context, query, userID string, limit int) (*Result, error) {
	if query == "" {
		return nil, apperrors.New(apperrors.ErrValidation, "query must not be empty")
	}
	v, err := e.version()
	if err != nil {
		return nil, err
	}
	limit = e.clampLimit(limit)
	pool := poolSize(limit)
	start := time.Now()

	sources := map[string]sourceScores{}

	lexScores := make(sourceScores)
	for _, s := range v.Lexical.TopK(lexical.Tokenize(query), pool) {
		lexScores[s.ItemID] = s.Score
	}
	sources[SourceLexical] = normalize(lexScores)
	metrics.CandidatesPerSource.WithLabelValues(SourceLexical).Observe(float64(len(lexScores)))

	vecScores := make(sourceScores)
	if v.VectorIndex.Len() > 0 {
		// Embed with the version's own frozen embedder when it has one, so
		// query vectors always share the served index's vocabulary.
		embedder := e.embedder
		if v.QueryEmbedder != nil {
			embedder = v.QueryEmbedder
		}
		queryVec, err := embedder.Embed(ctx, query)
		if err != nil {
			// Degrade to the remaining sources rather than failing the query.
			e.logger.Warn("query embedding unavailable", "error", err)
			metrics.EmbeddingCallsTotal.WithLabelValues("error").Inc()
		} else {
			metrics.EmbeddingCallsTotal.WithLabelValues("success").Inc()
			neighbors, err := v.VectorIndex.Nearest(queryVec, pool)
			if err != nil {
				e.logger.Warn("vector search failed", "error", err)
			}
			for _, n := range neighbors {
				vecScores[n.ItemID] = n.Score
			}
		}
	}
	sources[SourceVector] = normalize(vecScores)
	metrics.CandidatesPerSource.WithLabelValues(SourceVector).Observe(float64(len(vecScores)))

	hits := fuse(sources, e.weights, e.boosts(userID, sources), limit)
	e.attachTitles(v, hits)

	metrics.QueriesTotal.WithLabelValues("search", "success").Inc()
	metrics.QueryLatency.WithLabelValues("search").Observe(time.Since(start).Seconds())
	metrics.ResultsCount.WithLabelValues("search").Observe(float64(len(hits)))
	return &Result{Hits: hits, VersionID: v.Manifest.VersionID}, nil
}

// SimilarTo returns items related to itemID: vector neighbors unioned with
// the item's CF neighbor list. The query item itself is excluded.
func (e *Engine) SimilarTo(ctx context.Context, itemID string, limit int) (*Result, error) {
	v, err := e.version()
	if err != nil {
		return nil, err
	}
	if _, ok := v.Item(itemID); !ok {
		return nil, apperrors.Newf(apperrors.ErrItemNotFound, "item %s not found", itemID)
	}
	limit = e.clampLimit(limit)
	pool := poolSize(limit)
	start := time.Now()

	sources := map[string]sourceScores{}

	vecScores := make(sourceScores)
	if vec := v.Embedding(itemID); vec != nil {
		neighbors, err := v.VectorIndex.Nearest(vec, pool+defaultSelfFetch)
		if err != nil {
			return nil, fmt.Errorf("vector neighbors for %s: %w", itemID, err)
		}
		for _, n := range neighbors {
			if n.ItemID == itemID {
				continue
			}
			vecScores[n.ItemID] = n.Score
		}
	}
	sources[SourceVector] = normalize(vecScores)
	metrics.CandidatesPerSource.WithLabelValues(SourceVector).Observe(float64(len(vecScores)))

	cfScores := make(sourceScores)
	for _, n := range v.CF.SimilarItems(itemID, pool) {
		cfScores[n.ItemID] = n.Similarity
	}
	sources[SourceCF] = normalize(cfScores)
	metrics.CandidatesPerSource.WithLabelValues(SourceCF).Observe(float64(len(cfScores)))

	hits := fuse(sources, e.weights, nil, limit)
	e.attachTitles(v, hits)

	metrics.QueriesTotal.WithLabelValues("similar", "success").Inc()
	metrics.QueryLatency.WithLabelValues("similar").Observe(time.Since(start).Seconds())
	metrics.ResultsCount.WithLabelValues("similar").Observe(float64(len(hits)))
	return &Result{Hits: hits, VersionID: v.Manifest.VersionID}, nil
}

// RecommendFor produces personalized recommendations. Users with CF history
// get similarity-weighted predictions over their items' neighbors. Users
// known only through recent feedback get vector neighbors of the items they
// engaged with. Users with no signal at all get the popularity list.
func (e *Engine) RecommendFor(ctx context.Context, userID string, limit int) (*Result, error) {
	if userID == "" {
		return nil, apperrors.New(apperrors.ErrValidation, "user id must not be empty")
	}
	v, err := e.version()
	if err != nil {
		return nil, err
	}
	limit = e.clampLimit(limit)
	pool := poolSize(limit)
	start := time.Now()

	sources := map[string]sourceScores{}
	rated := v.CF.UserRatings(userID)

	cfScores := make(sourceScores)
	for itemID := range rated {
		for _, n := range v.CF.SimilarItems(itemID, pool) {
			if _, seen := rated[n.ItemID]; seen {
				continue
			}
			if _, done := cfScores[n.ItemID]; done {
				continue
			}
			if score := v.CF.PredictScore(userID, n.ItemID); score > 0 {
				cfScores[n.ItemID] = score
			}
		}
	}
	sources[SourceCF] = normalize(cfScores)
	metrics.CandidatesPerSource.WithLabelValues(SourceCF).Observe(float64(len(cfScores)))

	vecScores := make(sourceScores)
	if len(cfScores) == 0 {
		liked := e.recentPositiveItems(userID)
		likedSet := make(map[string]bool, len(liked))
		for _, itemID := range liked {
			likedSet[itemID] = true
		}
		for _, itemID := range liked {
			vec := v.Embedding(itemID)
			if vec == nil {
				continue
			}
			neighbors, err := v.VectorIndex.Nearest(vec, pool)
			if err != nil {
				continue
			}
			for _, n := range neighbors {
				// An item the user already engaged with is never a
				// recommendation, even as a neighbor of another seed.
				if likedSet[n.ItemID] {
					continue
				}
				if n.Score > vecScores[n.ItemID] {
					vecScores[n.ItemID] = n.Score
				}
			}
		}
	}
	sources[SourceVector] = normalize(vecScores)

	if len(cfScores) == 0 && len(vecScores) == 0 {
		// Cold start with no signal: popularity list, constant source.
		popScores := make(sourceScores)
		for _, n := range v.CF.Popular(limit) {
			popScores[n.ItemID] = n.Similarity
		}
		sources[SourceCF] = normalize(popScores)
	}

	hits := fuse(sources, e.weights, e.boosts(userID, sources), limit)
	e.attachTitles(v, hits)

	metrics.QueriesTotal.WithLabelValues("recommend", "success").Inc()
	metrics.QueryLatency.WithLabelValues("recommend").Observe(time.Since(start).Seconds())
	metrics.ResultsCount.WithLabelValues("recommend").Observe(float64(len(hits)))
	return &Result{Hits: hits, VersionID: v.Manifest.VersionID}, nil
}

// RecordFeedback validates and appends one feedback event.
func (e *Engine) RecordFeedback(ev feedback.Event) error {
	if !ev.Action.Valid() {
		return apperrors.Newf(apperrors.ErrValidation, "unknown feedback action %q", ev.Action)
	}
	if ev.UserID == "" || ev.ItemID == "" {
		return apperrors.New(apperrors.ErrValidation, "feedback requires user_id and item_id")
	}
	e.feedback.Append(ev)
	metrics.FeedbackEventsTotal.WithLabelValues(string(ev.Action)).Inc()
	return nil
}

// boosts computes the bounded feedback boost for every candidate some
// source retrieved. Anonymous queries get no boost.
func (e *Engine) boosts(userID string, sources map[string]sourceScores) map[string]float64 {
	if userID == "" || e.feedback == nil {
		return nil
	}
	boosts := make(map[string]float64)
	for _, scores := range sources {
		for itemID := range scores {
			if _, done := boosts[itemID]; done {
				continue
			}
			if b := e.feedback.Boost(userID, itemID, e.opts.Boost); b != 0 {
				boosts[itemID] = b
			}
		}
	}
	return boosts
}

// recentPositiveItems lists items the user engaged with positively inside
// the boost window, most recent first, deduplicated.
func (e *Engine) recentPositiveItems(userID string) []string {
	if e.feedback == nil {
		return nil
	}
	cutoff := time.Now().Add(-e.opts.Boost.Window)
	seen := make(map[string]bool)
	var items []string
	events := e.feedback.Scan()
	for i := len(events) - 1; i >= 0; i-- {
		ev := events[i]
		if ev.UserID != userID || ev.Timestamp.Before(cutoff) {
			continue
		}
		if ev.Action == feedback.ActionDismiss || seen[ev.ItemID] {
			continue
		}
		seen[ev.ItemID] = true
		items = append(items, ev.ItemID)
	}
	return items
}

func (e *Engine) attachTitles(v *artifact.Version, hits []Hit) {
	for i := range hits {
		if item, ok := v.Item(hits[i].ItemID); ok {
			hits[i].Title = item.Title
		}
	}
}
