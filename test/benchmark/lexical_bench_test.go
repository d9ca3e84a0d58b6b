// Package benchmark contains Go benchmarks for the lexical index, the
// tokenizer, and the nearest-neighbor backends, measuring throughput and
// allocation behaviour.
package benchmark

import (
	"fmt"
	"testing"

	"github.com/Anubhav12123/AI-Recommender-System/internal/catalog"
	"github.com/Anubhav12123/AI-Recommender-System/internal/lexical"
)

func generateItems(n int) []catalog.Item {
	adjectives := []string{"red", "blue", "green", "leather", "wool", "cotton", "vintage", "modern"}
	nouns := []string{"shoes", "hat", "jacket", "boots", "scarf", "gloves", "backpack", "watch"}
	items := make([]catalog.Item, n)
	for i := range items {
		adj := adjectives[i%len(adjectives)]
		noun := nouns[(i/len(adjectives))%len(nouns)]
		items[i] = catalog.Item{
			ID:          fmt.Sprintf("item-%05d", i),
			Title:       fmt.Sprintf("%s %s", adj, noun),
			Description: fmt.Sprintf("a pair of %s %s for everyday wear, model %d", adj, noun, i),
		}
	}
	return items
}

// BenchmarkLexicalBuild measures full index construction over a 10 000 item
// catalog, the dominant cost of a rebuild after embedding.
func BenchmarkLexicalBuild(b *testing.B) {
	items := generateItems(10000)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ix := lexical.Build(items, lexical.Params{K1: 1.2, B: 0.75})
		_ = ix
	}
}

// BenchmarkLexicalTopK measures single-query ranking latency over 10 000
// documents.
func BenchmarkLexicalTopK(b *testing.B) {
	ix := lexical.Build(generateItems(10000), lexical.Params{K1: 1.2, B: 0.75})
	query := lexical.Tokenize("red leather shoes")

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		results := ix.TopK(query, 10)
		_ = results
	}
}

// BenchmarkLexicalTopKParallel measures concurrent read throughput; the
// index is immutable after Build so queries share it without locking.
func BenchmarkLexicalTopKParallel(b *testing.B) {
	ix := lexical.Build(generateItems(10000), lexical.Params{K1: 1.2, B: 0.75})
	query := lexical.Tokenize("red leather shoes")

	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			results := ix.TopK(query, 10)
			_ = results
		}
	})
}
