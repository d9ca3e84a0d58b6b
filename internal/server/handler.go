// Package server is the HTTP surface of the recommender: query endpoints
// over the engine, feedback intake, and build/version administration.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/Anubhav12123/AI-Recommender-System/internal/artifact"
	"github.com/Anubhav12123/AI-Recommender-System/internal/builder"
	"github.com/Anubhav12123/AI-Recommender-System/internal/catalog"
	"github.com/Anubhav12123/AI-Recommender-System/internal/engine"
	"github.com/Anubhav12123/AI-Recommender-System/internal/evaluate"
	"github.com/Anubhav12123/AI-Recommender-System/internal/feedback"
	apperrors "github.com/Anubhav12123/AI-Recommender-System/pkg/errors"
	"github.com/Anubhav12123/AI-Recommender-System/pkg/logger"
	"github.com/Anubhav12123/AI-Recommender-System/pkg/metrics"
)

type Handler struct {
	engine    *engine.Engine
	cache     *engine.ResultCache
	collector *feedback.Collector
	builder   *builder.Builder
	store     *artifact.Store
	items     catalog.ItemSource
	ratings   catalog.RatingSource

	// AdminAuth, when set, wraps the administrative routes (rebuild, cache
	// invalidation). Query and feedback endpoints are never wrapped.
	AdminAuth func(http.Handler) http.Handler

	buildMu sync.Mutex
}

func New(
	eng *engine.Engine,
	cache *engine.ResultCache,
	collector *feedback.Collector,
	b *builder.Builder,
	store *artifact.Store,
	items catalog.ItemSource,
	ratings catalog.RatingSource,
) *Handler {
	return &Handler{
		engine:    eng,
		cache:     cache,
		collector: collector,
		builder:   b,
		store:     store,
		items:     items,
		ratings:   ratings,
	}
}

// Routes registers all endpoints on mux.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("GET /api/v1/items/{id}/similar", h.Similar)
	mux.HandleFunc("GET /api/v1/users/{id}/recommendations", h.Recommend)
	mux.HandleFunc("POST /api/v1/feedback", h.Feedback)
	mux.Handle("POST /api/v1/rebuild", h.admin(http.HandlerFunc(h.Rebuild)))
	mux.HandleFunc("GET /api/v1/versions", h.Versions)
	mux.HandleFunc("GET /api/v1/versions/current", h.CurrentVersion)
	mux.HandleFunc("GET /api/v1/evaluate", h.Evaluate)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.Handle("POST /api/v1/cache/invalidate", h.admin(http.HandlerFunc(h.CacheInvalidate)))
}

func (h *Handler) admin(next http.Handler) http.Handler {
	if h.AdminAuth == nil {
		return next
	}
	return h.AdminAuth(next)
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)

	query := r.URL.Query().Get("q")
	if query == "" {
		h.writeError(w, http.StatusBadRequest, "query parameter 'q' is required")
		return
	}
	userID := r.URL.Query().Get("user_id")
	limit, ok := h.parseLimit(w, r)
	if !ok {
		return
	}

	result, cacheHit, err := h.cached(ctx, fmt.Sprintf("search|%s|%s|%d|%s", query, userID, limit, h.versionID()), func() (*engine.Result, error) {
		return h.engine.Search(ctx, query, userID, limit)
	})
	if err != nil {
		h.writeEngineError(w, r, "search", err)
		return
	}

	log.Info("search completed",
		"query", query,
		"returned", len(result.Hits),
		"cache_hit", cacheHit,
		"latency_ms", time.Since(start).Milliseconds(),
	)
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) Similar(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	itemID := r.PathValue("id")
	limit, ok := h.parseLimit(w, r)
	if !ok {
		return
	}

	result, _, err := h.cached(ctx, fmt.Sprintf("similar|%s|%d|%s", itemID, limit, h.versionID()), func() (*engine.Result, error) {
		return h.engine.SimilarTo(ctx, itemID, limit)
	})
	if err != nil {
		h.writeEngineError(w, r, "similar", err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) Recommend(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := r.PathValue("id")
	limit, ok := h.parseLimit(w, r)
	if !ok {
		return
	}

	// Recommendations shift with every feedback event, so they bypass the
	// result cache.
	result, err := h.engine.RecommendFor(ctx, userID, limit)
	if err != nil {
		h.writeEngineError(w, r, "recommend", err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

type feedbackRequest struct {
	UserID    string `json:"user_id"`
	ItemID    string `json:"item_id"`
	Action    string `json:"action"`
	Query     string `json:"query,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

func (h *Handler) Feedback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	var req feedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	ev := feedback.Event{
		UserID: req.UserID,
		ItemID: req.ItemID,
		Action: feedback.Action(req.Action),
		Query:  req.Query,
	}
	if req.Timestamp != "" {
		ts, err := time.Parse(time.RFC3339, req.Timestamp)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "timestamp must be RFC3339")
			return
		}
		ev.Timestamp = ts
	}

	if err := h.engine.RecordFeedback(ev); err != nil {
		h.writeEngineError(w, r, "feedback", err)
		return
	}
	if h.collector != nil {
		h.collector.Track(ev)
	}

	log.Debug("feedback recorded", "user_id", ev.UserID, "item_id", ev.ItemID, "action", ev.Action)
	h.writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (h *Handler) Rebuild(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	if h.builder == nil {
		h.writeError(w, http.StatusServiceUnavailable, "rebuilds are disabled on this node")
		return
	}
	if !h.buildMu.TryLock() {
		h.writeError(w, http.StatusConflict, "a build is already in progress")
		return
	}
	defer h.buildMu.Unlock()

	v, err := h.builder.BuildAll(ctx, h.items, h.ratings)
	if err != nil {
		log.Error("rebuild failed", "error", err)
		h.writeEngineError(w, r, "rebuild", err)
		return
	}
	h.engine.SetVersion(v)
	if h.cache != nil {
		if err := h.cache.Invalidate(ctx); err != nil {
			log.Warn("result cache invalidation failed", "error", err)
		}
	}
	h.writeJSON(w, http.StatusOK, v.Manifest)
}

func (h *Handler) Versions(w http.ResponseWriter, r *http.Request) {
	manifests, err := h.store.List()
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "listing versions failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"versions": manifests})
}

func (h *Handler) CurrentVersion(w http.ResponseWriter, r *http.Request) {
	v := h.engine.CurrentVersion()
	if v == nil {
		h.writeError(w, http.StatusServiceUnavailable, "no artifact version published")
		return
	}
	h.writeJSON(w, http.StatusOK, v.Manifest)
}

func (h *Handler) Evaluate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	v := h.engine.CurrentVersion()
	if v == nil {
		h.writeError(w, http.StatusServiceUnavailable, "no artifact version published")
		return
	}
	opts := evaluate.Options{}
	if s := r.URL.Query().Get("k"); s != "" {
		k, err := strconv.Atoi(s)
		if err != nil || k < 1 {
			h.writeError(w, http.StatusBadRequest, "k must be a positive integer")
			return
		}
		opts.K = k
	}
	if s := r.URL.Query().Get("users_limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			h.writeError(w, http.StatusBadRequest, "users_limit must be a positive integer")
			return
		}
		opts.UsersLimit = n
	}

	interactions, err := h.ratings.Interactions(ctx)
	if err != nil {
		log.Error("loading interactions for evaluation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "loading interactions failed")
		return
	}
	metrics, err := evaluate.RunCF(interactions, v.Manifest.CFNeighborK, opts)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, metrics)
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	hits, misses := h.cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}
	if err := h.cache.Invalidate(r.Context()); err != nil {
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

func (h *Handler) cached(ctx context.Context, key string, compute func() (*engine.Result, error)) (*engine.Result, bool, error) {
	if h.cache == nil {
		result, err := compute()
		return result, false, err
	}
	return h.cache.GetOrCompute(ctx, key, compute)
}

func (h *Handler) versionID() string {
	if v := h.engine.CurrentVersion(); v != nil {
		return v.Manifest.VersionID
	}
	return "none"
}

func (h *Handler) parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	limitStr := r.URL.Query().Get("limit")
	if limitStr == "" {
		return 0, true
	}
	parsed, err := strconv.Atoi(limitStr)
	if err != nil || parsed < 1 {
		h.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
		return 0, false
	}
	return parsed, true
}

func (h *Handler) writeEngineError(w http.ResponseWriter, r *http.Request, operation string, err error) {
	metrics.QueriesTotal.WithLabelValues(operation, "error").Inc()
	status := apperrors.HTTPStatusCode(err)
	if status >= 500 {
		logger.FromContext(r.Context()).Error(operation+" failed", "error", err)
		h.writeError(w, status, operation+" failed")
		return
	}
	h.writeError(w, status, err.Error())
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.WithComponent("http-handler").Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
