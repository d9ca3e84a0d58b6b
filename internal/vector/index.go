package vector

import (
	"fmt"

	apperrors "github.com/Anubhav12123/AI-Recommender-System/pkg/errors"
)

// Entry is one item embedding handed to an index at build time. Vectors are
// normalized during Build; all entries in one index share the same
// dimension.
type Entry struct {
	ID     string
	Vector []float32
}

// Result is one nearest-neighbor match. Score is the inner product of the
// normalized query and item vectors, i.e. cosine similarity: 1 for identical
// direction, 0 for orthogonal.
type Result struct {
	ItemID string  `json:"item_id"`
	Score  float64 `json:"score"`
}

// Index is the nearest-neighbor capability. Implementations are immutable
// after construction and safe for concurrent reads.
type Index interface {
	// Nearest returns up to k items ordered by score descending, ties broken
	// by item id ascending. A query whose length differs from the indexed
	// dimension fails with ErrDimensionMismatch.
	Nearest(query []float32, k int) ([]Result, error)

	// Dimensions returns the indexed vector dimension, 0 if empty.
	Dimensions() int

	// Len returns the number of indexed vectors.
	Len() int
}

func checkDimensions(query []float32, dims int) error {
	if dims != 0 && len(query) != dims {
		return fmt.Errorf("%w: query has %d dimensions, index has %d",
			apperrors.ErrDimensionMismatch, len(query), dims)
	}
	return nil
}
