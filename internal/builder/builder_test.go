package builder

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/Anubhav12123/AI-Recommender-System/internal/artifact"
	"github.com/Anubhav12123/AI-Recommender-System/internal/catalog"
	"github.com/Anubhav12123/AI-Recommender-System/internal/embedding"
	"github.com/Anubhav12123/AI-Recommender-System/internal/feedback"
	"github.com/Anubhav12123/AI-Recommender-System/internal/lexical"
	apperrors "github.com/Anubhav12123/AI-Recommender-System/pkg/errors"
)

// fixedProvider returns canned vectors keyed by text and fails for texts it
// does not know, standing in for a remote embedder with partial outages.
type fixedProvider struct {
	vectors map[string][]float32
}

func (p *fixedProvider) Embed(_ context.Context, text string) ([]float32, error) {
	vec, ok := p.vectors[text]
	if !ok {
		return nil, errors.New("embedding backend unavailable")
	}
	return vec, nil
}

func (p *fixedProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec, err := p.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (p *fixedProvider) Dimensions() int { return 3 }

func sourceFixtures() (catalog.StaticItems, catalog.StaticRatings) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	items := catalog.StaticItems{
		SnapshotRef: "items:test:1",
		Records: []catalog.Item{
			{ID: "a", Title: "Red running shoes"},
			{ID: "b", Title: "Blue walking shoes"},
			{ID: "c", Title: "Red wool hat"},
		},
	}
	ratings := catalog.StaticRatings{
		SnapshotRef: "ratings:test:1",
		Records: []catalog.Interaction{
			{UserID: "u1", ItemID: "a", Rating: 5, Timestamp: base},
			{UserID: "u1", ItemID: "b", Rating: 4, Timestamp: base.Add(time.Minute)},
			{UserID: "u2", ItemID: "a", Rating: 5, Timestamp: base.Add(2 * time.Minute)},
		},
	}
	return items, ratings
}

func newTestStore(t *testing.T) *artifact.Store {
	t.Helper()
	s, err := artifact.NewStore(t.TempDir(), 3, artifact.LoadOptions{VectorBackend: "flat"}, slog.Default())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s
}

func TestBuildAllPublishes(t *testing.T) {
	store := newTestStore(t)
	b := New(store, embedding.NewTFIDF(64), nil, nil, Options{
		LexicalParams: lexical.Params{K1: 1.2, B: 0.75},
	})
	items, ratings := sourceFixtures()

	v, err := b.BuildAll(context.Background(), items, ratings)
	if err != nil {
		t.Fatalf("BuildAll: %v", err)
	}
	if v.Manifest.ItemCount != 3 {
		t.Fatalf("ItemCount = %d, want 3", v.Manifest.ItemCount)
	}
	if v.Manifest.CatalogRef != "items:test:1" || v.Manifest.RatingsRef != "ratings:test:1" {
		t.Fatalf("snapshot refs = %s / %s", v.Manifest.CatalogRef, v.Manifest.RatingsRef)
	}
	if len(v.Manifest.DegradedItems) != 0 {
		t.Fatalf("unexpected degraded items: %v", v.Manifest.DegradedItems)
	}
	if v.VectorIndex.Len() != 3 {
		t.Fatalf("vector index holds %d entries, want 3", v.VectorIndex.Len())
	}

	id, err := store.CurrentID()
	if err != nil {
		t.Fatalf("CurrentID: %v", err)
	}
	if id != v.Manifest.VersionID {
		t.Fatalf("published id = %s, want %s", id, v.Manifest.VersionID)
	}
}

func TestBuildCarriesFrozenQueryEmbedder(t *testing.T) {
	store := newTestStore(t)
	shared := embedding.NewTFIDF(64)
	b := New(store, shared, nil, nil, Options{
		LexicalParams: lexical.Params{K1: 1.2, B: 0.75},
	})
	items, ratings := sourceFixtures()

	v, err := b.BuildAll(context.Background(), items, ratings)
	if err != nil {
		t.Fatalf("BuildAll: %v", err)
	}
	if v.QueryEmbedder == nil {
		t.Fatal("built version carries no query embedder")
	}

	want, err := v.QueryEmbedder.Embed(context.Background(), "red shoes")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}

	// The version's embedder is frozen against later retrains of the
	// shared build-time provider.
	shared.Train([]string{"completely", "different", "corpus"})
	got, err := v.QueryEmbedder.Embed(context.Background(), "red shoes")
	if err != nil {
		t.Fatalf("Embed after retrain: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("dimensions drifted after retrain: %d vs %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("component %d drifted after retrain", i)
		}
	}

	// A reload from the published bundle restores the same embedder.
	loaded, err := store.Load(v.Manifest.VersionID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.QueryEmbedder == nil {
		t.Fatal("loaded version carries no query embedder")
	}
	vec, err := loaded.QueryEmbedder.Embed(context.Background(), "red shoes")
	if err != nil {
		t.Fatalf("Embed loaded: %v", err)
	}
	for i := range want {
		if vec[i] != want[i] {
			t.Fatalf("component %d differs after bundle reload", i)
		}
	}
}

func TestBuildWithRemoteProviderOmitsQueryEmbedder(t *testing.T) {
	store := newTestStore(t)
	provider := &fixedProvider{vectors: map[string][]float32{
		"Red running shoes":  {1, 0, 0},
		"Blue walking shoes": {0.9, 0.1, 0},
		"Red wool hat":       {0, 1, 0},
	}}
	b := New(store, provider, nil, nil, Options{})
	items, ratings := sourceFixtures()

	v, err := b.BuildAll(context.Background(), items, ratings)
	if err != nil {
		t.Fatalf("BuildAll: %v", err)
	}
	if v.QueryEmbedder != nil {
		t.Fatal("remote-provider build should not carry a frozen embedder")
	}
}

func TestBuildAllSkipsUnchangedInputs(t *testing.T) {
	store := newTestStore(t)
	b := New(store, embedding.NewTFIDF(64), nil, nil, Options{})
	items, ratings := sourceFixtures()

	first, err := b.BuildAll(context.Background(), items, ratings)
	if err != nil {
		t.Fatalf("first BuildAll: %v", err)
	}
	second, err := b.BuildAll(context.Background(), items, ratings)
	if err != nil {
		t.Fatalf("second BuildAll: %v", err)
	}
	if second.Manifest.VersionID != first.Manifest.VersionID {
		t.Fatalf("rebuild over unchanged inputs produced %s, want %s",
			second.Manifest.VersionID, first.Manifest.VersionID)
	}

	list, err := store.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("store holds %d versions, want 1", len(list))
	}
}

func TestBuildAllRebuildsWhenRefChanges(t *testing.T) {
	store := newTestStore(t)
	b := New(store, embedding.NewTFIDF(64), nil, nil, Options{})
	items, ratings := sourceFixtures()

	first, err := b.BuildAll(context.Background(), items, ratings)
	if err != nil {
		t.Fatalf("first BuildAll: %v", err)
	}

	ratings.SnapshotRef = "ratings:test:2"
	second, err := b.BuildAll(context.Background(), items, ratings)
	if err != nil {
		t.Fatalf("second BuildAll: %v", err)
	}
	if second.Manifest.VersionID == first.Manifest.VersionID {
		t.Fatal("changed snapshot ref did not change the version id")
	}
}

func TestBuildAllEmptyCatalog(t *testing.T) {
	store := newTestStore(t)
	b := New(store, embedding.NewTFIDF(64), nil, nil, Options{})
	items := catalog.StaticItems{SnapshotRef: "items:empty:1"}
	_, ratings := sourceFixtures()

	_, err := b.BuildAll(context.Background(), items, ratings)
	if !errors.Is(err, apperrors.ErrBuildFailed) {
		t.Fatalf("err = %v, want ErrBuildFailed", err)
	}
}

func TestEmbedFailureAbortPolicy(t *testing.T) {
	store := newTestStore(t)
	provider := &fixedProvider{vectors: map[string][]float32{
		"Red running shoes": {1, 0, 0},
		"Red wool hat":      {0, 1, 0},
		// "Blue walking shoes" always fails.
	}}
	b := New(store, provider, nil, nil, Options{OnEmbedFail: PolicyAbort})
	items, ratings := sourceFixtures()

	_, err := b.BuildAll(context.Background(), items, ratings)
	if !errors.Is(err, apperrors.ErrBuildFailed) {
		t.Fatalf("err = %v, want ErrBuildFailed", err)
	}
	if _, err := store.CurrentID(); !errors.Is(err, apperrors.ErrNoVersion) {
		t.Fatal("failed build still published a version")
	}
}

func TestEmbedFailureSkipPolicy(t *testing.T) {
	store := newTestStore(t)
	provider := &fixedProvider{vectors: map[string][]float32{
		"Red running shoes": {1, 0, 0},
		"Red wool hat":      {0, 1, 0},
	}}
	b := New(store, provider, nil, nil, Options{OnEmbedFail: PolicySkip})
	items, ratings := sourceFixtures()

	v, err := b.BuildAll(context.Background(), items, ratings)
	if err != nil {
		t.Fatalf("BuildAll: %v", err)
	}
	if len(v.Manifest.DegradedItems) != 1 || v.Manifest.DegradedItems[0] != "b" {
		t.Fatalf("DegradedItems = %v, want [b]", v.Manifest.DegradedItems)
	}
	if v.VectorIndex.Len() != 2 {
		t.Fatalf("vector index holds %d entries, want 2", v.VectorIndex.Len())
	}
	if v.Embedding("b") != nil {
		t.Fatal("degraded item has an embedding")
	}
	// The item is still in the catalog and the lexical index.
	if _, ok := v.Item("b"); !ok {
		t.Fatal("degraded item missing from catalog")
	}
	if hits := v.Lexical.TopK(lexical.Tokenize("blue shoes"), 3); len(hits) == 0 || hits[0].ItemID != "b" {
		t.Fatalf("degraded item not lexically searchable: %v", hits)
	}
}

func TestFeedbackFoldedIntoCF(t *testing.T) {
	store := newTestStore(t)
	fb := feedback.NewStore()
	fb.Append(feedback.Event{UserID: "u9", ItemID: "a", Action: feedback.ActionLike, Timestamp: time.Now()})
	fb.Append(feedback.Event{UserID: "u9", ItemID: "c", Action: feedback.ActionLike, Timestamp: time.Now()})

	b := New(store, embedding.NewTFIDF(64), nil, fb, Options{})
	items, ratings := sourceFixtures()

	v, err := b.BuildAll(context.Background(), items, ratings)
	if err != nil {
		t.Fatalf("BuildAll: %v", err)
	}
	if v.CF.UserRatings("u9") == nil {
		t.Fatal("feedback-only user absent from the trained CF model")
	}
	if len(v.CF.SimilarItems("c", 5)) == 0 {
		t.Fatal("feedback-only item has no CF neighbors")
	}
}

func TestHNSWBackendOption(t *testing.T) {
	store := newTestStore(t)
	b := New(store, embedding.NewTFIDF(64), nil, nil, Options{VectorBackend: "hnsw"})
	items, ratings := sourceFixtures()

	v, err := b.BuildAll(context.Background(), items, ratings)
	if err != nil {
		t.Fatalf("BuildAll: %v", err)
	}
	if v.Manifest.VectorBackend != "hnsw" {
		t.Fatalf("backend = %s, want hnsw", v.Manifest.VectorBackend)
	}
	if v.VectorIndex.Len() != 3 {
		t.Fatalf("vector index holds %d entries, want 3", v.VectorIndex.Len())
	}
}
