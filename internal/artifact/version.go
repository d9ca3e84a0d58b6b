// Package artifact defines the immutable index bundle produced by a build:
// one lexical index, one vector index, and one CF model bound together
// under a single version id, persisted as a self-describing binary bundle
// and published by atomic pointer swap.
package artifact

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/Anubhav12123/AI-Recommender-System/internal/catalog"
	"github.com/Anubhav12123/AI-Recommender-System/internal/cf"
	"github.com/Anubhav12123/AI-Recommender-System/internal/embedding"
	"github.com/Anubhav12123/AI-Recommender-System/internal/lexical"
	"github.com/Anubhav12123/AI-Recommender-System/internal/vector"
)

// Manifest records the provenance of one artifact version. It is the
// audit trail for rollback: which snapshots were used, which parameters,
// and which items were degraded out of the vector index.
type Manifest struct {
	VersionID     string         `json:"version_id"`
	BuiltAt       time.Time      `json:"built_at"`
	CatalogRef    string         `json:"catalog_ref"`
	RatingsRef    string         `json:"ratings_ref"`
	ItemCount     int            `json:"item_count"`
	Dimensions    int            `json:"dimensions"`
	LexicalParams lexical.Params `json:"lexical_params"`
	CFNeighborK   int            `json:"cf_neighbor_k"`
	VectorBackend string         `json:"vector_backend"`
	EmbedPolicy   string         `json:"embed_policy"`
	DegradedItems []string       `json:"degraded_items,omitempty"`
}

// Version is one fully loaded artifact version. All fields are immutable
// after construction; concurrent readers share it without locking.
type Version struct {
	Manifest    Manifest
	Items       map[string]catalog.Item
	Lexical     *lexical.Index
	Embeddings  []vector.Entry // normalized, stable item order
	VectorIndex vector.Index
	CF          *cf.Model

	// QueryEmbedder, when present, is the frozen corpus-trained embedder
	// whose vectors fill this version's index. Queries against this version
	// embed through it so query and item vectors share one vocabulary.
	// Builds from a remote provider leave it nil.
	QueryEmbedder *embedding.TFIDF

	embeddingByID map[string][]float32
}

// Item returns the catalog item for id, reporting presence.
func (v *Version) Item(id string) (catalog.Item, bool) {
	it, ok := v.Items[id]
	return it, ok
}

// Embedding returns the normalized vector for an item id, nil if the item
// is absent from the vector index (degraded or never embedded).
func (v *Version) Embedding(id string) []float32 {
	return v.embeddingByID[id]
}

// IndexEmbeddings builds the by-id embedding lookup. Called once by the
// builder and the bundle reader before the version is shared.
func (v *Version) IndexEmbeddings() {
	v.embeddingByID = make(map[string][]float32, len(v.Embeddings))
	for _, e := range v.Embeddings {
		v.embeddingByID[e.ID] = e.Vector
	}
}

// ComputeVersionID derives the version id from the snapshot refs and build
// parameters. Identical inputs produce identical ids, which is what makes
// triggerRebuild idempotent.
func ComputeVersionID(catalogRef, ratingsRef string, params lexical.Params, cfK int, backend string) string {
	h := sha256.New()
	fmt.Fprintf(h, "catalog=%s|ratings=%s|k1=%g|b=%g|cfk=%d|backend=%s",
		catalogRef, ratingsRef, params.K1, params.B, cfK, backend)
	return hex.EncodeToString(h.Sum(nil))[:12]
}
