// Package integration contains tests that verify the interaction between
// the HTTP handler, engine, builder, and artifact store. These tests use
// httptest servers with real handler wiring and in-memory snapshot sources;
// PostgreSQL-backed tests skip when the database is unavailable.
//
// Run with:
//
//	go test -v ./test/integration/...
package integration

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/Anubhav12123/AI-Recommender-System/internal/artifact"
	"github.com/Anubhav12123/AI-Recommender-System/internal/auth/apikey"
	"github.com/Anubhav12123/AI-Recommender-System/internal/builder"
	"github.com/Anubhav12123/AI-Recommender-System/internal/catalog"
	"github.com/Anubhav12123/AI-Recommender-System/internal/embedding"
	"github.com/Anubhav12123/AI-Recommender-System/internal/engine"
	"github.com/Anubhav12123/AI-Recommender-System/internal/feedback"
	"github.com/Anubhav12123/AI-Recommender-System/internal/lexical"
	"github.com/Anubhav12123/AI-Recommender-System/internal/server"
	"github.com/Anubhav12123/AI-Recommender-System/pkg/config"
	"github.com/Anubhav12123/AI-Recommender-System/pkg/postgres"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func testCatalog() (catalog.StaticItems, catalog.StaticRatings) {
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	items := catalog.StaticItems{
		SnapshotRef: "items-integration",
		Records: []catalog.Item{
			{ID: "sku-1", Title: "Red running shoes", Description: "lightweight trainers for road running"},
			{ID: "sku-2", Title: "Blue walking shoes", Description: "cushioned everyday walkers"},
			{ID: "sku-3", Title: "Red wool hat", Description: "warm knit hat for winter"},
			{ID: "sku-4", Title: "Leather hiking boots", Description: "waterproof boots for rough trails"},
			{ID: "sku-5", Title: "Trail running socks", Description: "breathable socks for long runs"},
		},
	}
	ratings := catalog.StaticRatings{
		SnapshotRef: "ratings-integration",
		Records: []catalog.Interaction{
			{UserID: "runner", ItemID: "sku-1", Rating: 5, Timestamp: base},
			{UserID: "runner", ItemID: "sku-5", Rating: 5, Timestamp: base.Add(time.Hour)},
			{UserID: "hiker", ItemID: "sku-4", Rating: 5, Timestamp: base},
			{UserID: "hiker", ItemID: "sku-5", Rating: 4, Timestamp: base.Add(time.Hour)},
			{UserID: "walker", ItemID: "sku-2", Rating: 4, Timestamp: base},
			{UserID: "walker", ItemID: "sku-3", Rating: 3, Timestamp: base.Add(time.Hour)},
		},
	}
	return items, ratings
}

// newRecommenderServer wires a full node the way cmd/server does, backed by
// a temp artifact directory and in-memory sources.
func newRecommenderServer(t *testing.T) *httptest.Server {
	t.Helper()

	store, err := artifact.NewStore(t.TempDir(), 3, artifact.LoadOptions{VectorBackend: "flat"}, slog.Default())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	embedder := embedding.NewTFIDF(128)
	fb := feedback.NewStore()
	items, ratings := testCatalog()

	b := builder.New(store, embedder, nil, fb, builder.Options{
		LexicalParams: lexical.Params{K1: 1.2, B: 0.75},
		CFNeighborK:   25,
		VectorBackend: "flat",
		OnEmbedFail:   builder.PolicyAbort,
		Concurrency:   2,
	})
	eng := engine.New(embedder, fb, engine.Options{
		Fusion: config.FusionConfig{
			LexicalWeight: 0.4,
			VectorWeight:  0.4,
			CFWeight:      0.2,
		},
		Boost: feedback.BoostParams{
			Window:   7 * 24 * time.Hour,
			HalfLife: 24 * time.Hour,
			MaxBoost: 0.25,
		},
		DefaultLimit: 10,
		MaxResults:   100,
	})

	h := server.New(eng, nil, nil, b, store, items, ratings)
	mux := http.NewServeMux()
	h.Routes(mux)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func getJSON(t *testing.T, client *http.Client, url string, out any) int {
	t.Helper()
	resp, err := client.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decoding %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

// TestFullServingLoop drives the complete lifecycle over HTTP: rebuild,
// search, feedback, recommendations, and version listing.
func TestFullServingLoop(t *testing.T) {
	srv := newRecommenderServer(t)
	client := srv.Client()

	// Before the first build every query answers 503.
	if code := getJSON(t, client, srv.URL+"/api/v1/search?q=shoes", nil); code != http.StatusServiceUnavailable {
		t.Fatalf("search before build: status = %d, want 503", code)
	}

	// 1. Build and publish the first version.
	resp, err := client.Post(srv.URL+"/api/v1/rebuild", "application/json", nil)
	if err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	var manifest artifact.Manifest
	if err := json.NewDecoder(resp.Body).Decode(&manifest); err != nil {
		t.Fatalf("decoding manifest: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("rebuild status = %d", resp.StatusCode)
	}
	if manifest.ItemCount != 5 {
		t.Fatalf("ItemCount = %d, want 5", manifest.ItemCount)
	}

	// 2. Search finds the red shoes first for a matching query.
	var result engine.Result
	if code := getJSON(t, client, srv.URL+"/api/v1/search?q=red+running+shoes", &result); code != http.StatusOK {
		t.Fatalf("search status = %d", code)
	}
	if len(result.Hits) == 0 || result.Hits[0].ItemID != "sku-1" {
		t.Fatalf("top hit = %+v, want sku-1 first", result.Hits)
	}
	if result.VersionID != manifest.VersionID {
		t.Fatalf("result version = %s, want %s", result.VersionID, manifest.VersionID)
	}

	// 3. Similar items for the running shoes exclude the anchor.
	var similar engine.Result
	if code := getJSON(t, client, srv.URL+"/api/v1/items/sku-1/similar?limit=3", &similar); code != http.StatusOK {
		t.Fatalf("similar status = %d", code)
	}
	for _, hit := range similar.Hits {
		if hit.ItemID == "sku-1" {
			t.Fatal("similar results include the anchor item")
		}
	}

	// 4. Feedback is accepted and folded into later recommendations.
	payload := `{"user_id":"runner","item_id":"sku-4","action":"like","query":"boots"}`
	fbResp, err := client.Post(srv.URL+"/api/v1/feedback", "application/json", strings.NewReader(payload))
	if err != nil {
		t.Fatalf("feedback: %v", err)
	}
	io.Copy(io.Discard, fbResp.Body)
	fbResp.Body.Close()
	if fbResp.StatusCode != http.StatusAccepted {
		t.Fatalf("feedback status = %d, want 202", fbResp.StatusCode)
	}

	// 5. Recommendations for a known user never repeat rated items.
	var recs engine.Result
	if code := getJSON(t, client, srv.URL+"/api/v1/users/runner/recommendations", &recs); code != http.StatusOK {
		t.Fatalf("recommendations status = %d", code)
	}
	for _, hit := range recs.Hits {
		if hit.ItemID == "sku-1" || hit.ItemID == "sku-5" {
			t.Fatalf("recommendation repeats rated item %s", hit.ItemID)
		}
	}

	// 6. A user with no rating history still gets popularity results.
	var cold engine.Result
	if code := getJSON(t, client, srv.URL+"/api/v1/users/stranger/recommendations", &cold); code != http.StatusOK {
		t.Fatalf("cold-start status = %d", code)
	}
	if len(cold.Hits) == 0 {
		t.Fatal("cold-start user received no recommendations")
	}

	// 7. The version listing shows the published build.
	var versions struct {
		Versions []artifact.Manifest `json:"versions"`
	}
	if code := getJSON(t, client, srv.URL+"/api/v1/versions", &versions); code != http.StatusOK {
		t.Fatalf("versions status = %d", code)
	}
	if len(versions.Versions) != 1 || versions.Versions[0].VersionID != manifest.VersionID {
		t.Fatalf("versions = %+v, want just %s", versions.Versions, manifest.VersionID)
	}
}

// TestRebuildIsIdempotent verifies that rebuilding from unchanged snapshots
// republishes the same version id instead of minting a new bundle.
func TestRebuildIsIdempotent(t *testing.T) {
	srv := newRecommenderServer(t)
	client := srv.Client()

	var first, second artifact.Manifest
	for i, target := range []*artifact.Manifest{&first, &second} {
		resp, err := client.Post(srv.URL+"/api/v1/rebuild", "application/json", nil)
		if err != nil {
			t.Fatalf("rebuild %d: %v", i, err)
		}
		if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
			t.Fatalf("decoding manifest %d: %v", i, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("rebuild %d status = %d", i, resp.StatusCode)
		}
	}
	if first.VersionID != second.VersionID {
		t.Fatalf("version ids differ across identical rebuilds: %s vs %s", first.VersionID, second.VersionID)
	}

	var versions struct {
		Versions []artifact.Manifest `json:"versions"`
	}
	getJSON(t, client, srv.URL+"/api/v1/versions", &versions)
	if len(versions.Versions) != 1 {
		t.Fatalf("len(versions) = %d, want 1 after idempotent rebuild", len(versions.Versions))
	}
}

// TestFeedbackShiftsRecommendations verifies the online boost path: fresh
// positive feedback lifts an item's ranking for that user without a rebuild.
func TestFeedbackShiftsRecommendations(t *testing.T) {
	srv := newRecommenderServer(t)
	client := srv.Client()

	resp, err := client.Post(srv.URL+"/api/v1/rebuild", "application/json", nil)
	if err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	// A brand-new user likes the hiking boots.
	payload := `{"user_id":"fresh-user","item_id":"sku-4","action":"like"}`
	fbResp, err := client.Post(srv.URL+"/api/v1/feedback", "application/json", strings.NewReader(payload))
	if err != nil {
		t.Fatalf("feedback: %v", err)
	}
	io.Copy(io.Discard, fbResp.Body)
	fbResp.Body.Close()

	// Their recommendations now come from similarity to the liked item,
	// which itself is excluded as already seen.
	var recs engine.Result
	if code := getJSON(t, client, srv.URL+"/api/v1/users/fresh-user/recommendations", &recs); code != http.StatusOK {
		t.Fatalf("recommendations status = %d", code)
	}
	if len(recs.Hits) == 0 {
		t.Fatal("expected recommendations after feedback")
	}
	for _, hit := range recs.Hits {
		if hit.ItemID == "sku-4" {
			t.Fatal("recommendations repeat the liked item")
		}
	}
}

// ---------------------------------------------------------------------------
// PostgreSQL-backed admin auth
// ---------------------------------------------------------------------------

func skipIfNoPostgres(t *testing.T) *postgres.Client {
	t.Helper()
	cfg := config.PostgresConfig{
		Host:            envOrDefault("TEST_POSTGRES_HOST", "localhost"),
		Port:            envOrDefaultInt("TEST_POSTGRES_PORT", 5432),
		Database:        envOrDefault("TEST_POSTGRES_DB", "recommender_test"),
		User:            envOrDefault("TEST_POSTGRES_USER", "recommender"),
		Password:        envOrDefault("TEST_POSTGRES_PASSWORD", "localdev"),
		SSLMode:         "disable",
		MaxOpenConns:    5,
		MaxIdleConns:    2,
		ConnMaxLifetime: 5 * time.Minute,
	}
	db, err := postgres.New(cfg)
	if err != nil {
		t.Skipf("skipping integration test: postgres unavailable: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestAdminAuthAgainstPostgres exercises the api_keys-backed guard on the
// rebuild route: a created key passes, a revoked key is rejected.
func TestAdminAuthAgainstPostgres(t *testing.T) {
	db := skipIfNoPostgres(t)
	validator := apikey.NewValidator(db)

	keyName := fmt.Sprintf("integration-%d", time.Now().UnixNano())
	rawKey, err := validator.CreateKey(t.Context(), keyName, nil)
	if err != nil {
		t.Skipf("skipping: api_keys schema not applied: %v", err)
	}
	t.Cleanup(func() { validator.RevokeKey(t.Context(), rawKey) })

	store, err := artifact.NewStore(t.TempDir(), 3, artifact.LoadOptions{VectorBackend: "flat"}, slog.Default())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	embedder := embedding.NewTFIDF(64)
	fb := feedback.NewStore()
	items, ratings := testCatalog()
	b := builder.New(store, embedder, nil, fb, builder.Options{
		LexicalParams: lexical.Params{K1: 1.2, B: 0.75},
		VectorBackend: "flat",
	})
	eng := engine.New(embedder, fb, engine.Options{})

	h := server.New(eng, nil, nil, b, store, items, ratings)
	h.AdminAuth = validator.Middleware()
	mux := http.NewServeMux()
	h.Routes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	client := srv.Client()

	// Without a key the rebuild is rejected.
	resp, err := client.Post(srv.URL+"/api/v1/rebuild", "application/json", nil)
	if err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unauthenticated rebuild: status = %d, want 401", resp.StatusCode)
	}

	// With the created key it succeeds.
	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/api/v1/rebuild", nil)
	req.Header.Set("X-API-Key", rawKey)
	resp, err = client.Do(req)
	if err != nil {
		t.Fatalf("authenticated rebuild: %v", err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("authenticated rebuild: status = %d, want 200", resp.StatusCode)
	}
}
