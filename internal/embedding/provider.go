// Package embedding defines the text-to-vector provider consumed by the
// index builder, with a remote OpenAI-compatible implementation and a
// deterministic corpus-trained TF-IDF implementation for offline use.
package embedding

import "context"

// Provider maps text to a fixed-dimension vector. Implementations must be
// deterministic for identical input within one build. Transient outages are
// reported as errors wrapping ErrEmbeddingUnavailable; the builder retries
// those with bounded backoff.
type Provider interface {
	// Embed generates a vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates vectors for multiple texts, one per input.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the vector dimension the provider produces.
	Dimensions() int
}

// Trainable is implemented by providers that must see the corpus before
// embedding. The builder trains such a provider on every item text at the
// start of a build.
type Trainable interface {
	Train(documents []string)
}
