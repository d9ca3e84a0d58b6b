package benchmark

import (
	"strings"
	"testing"

	"github.com/Anubhav12123/AI-Recommender-System/internal/lexical"
)

var sampleTexts = map[string]string{
	"short": "Red running shoes with cushioned soles",
	"medium": `Hybrid recommenders combine lexical retrieval with embedding similarity
        and collaborative filtering. BM25 handles exact vocabulary matches while the
        vector index recalls semantically related items the query never names. The
        collaborative signal reorders candidates by what similar users actually chose,
        and a bounded feedback boost keeps the ranking responsive between rebuilds.`,
	"long": strings.Repeat(`Catalog items carry a title and a free-text description that
        are tokenized identically at build and query time. Terms are lowercased and
        stemmed so that plural and inflected forms collapse to a shared root. The
        inverted index maps each root to its posting list with per-document term
        frequencies, and document length normalization keeps verbose descriptions from
        dominating the ranking. Rebuilds publish a new immutable artifact version that
        queries swap to atomically. `, 20),
}

func BenchmarkTokenize(b *testing.B) {
	for name, text := range sampleTexts {
		b.Run(name, func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(text)))
			for i := 0; i < b.N; i++ {
				tokens := lexical.Tokenize(text)
				_ = tokens
			}
		})
	}
}
