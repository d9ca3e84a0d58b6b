package vector

import (
	"errors"
	"math"
	"testing"

	apperrors "github.com/Anubhav12123/AI-Recommender-System/pkg/errors"
)

func testEntries() []Entry {
	return []Entry{
		{ID: "a", Vector: []float32{1, 0, 0}},
		{ID: "b", Vector: []float32{0.9, 0.1, 0}},
		{ID: "c", Vector: []float32{0, 1, 0}},
		{ID: "d", Vector: []float32{0, 0, 1}},
	}
}

func TestNormalizeUnitLength(t *testing.T) {
	v := Normalize([]float32{3, 4, 0})
	if got := Norm(v); math.Abs(float64(got)-1) > 1e-6 {
		t.Fatalf("norm after Normalize = %v, want 1", got)
	}
	if math.Abs(float64(v[0])-0.6) > 1e-6 || math.Abs(float64(v[1])-0.8) > 1e-6 {
		t.Fatalf("Normalize([3 4 0]) = %v, want [0.6 0.8 0]", v)
	}
}

func TestNormalizeZeroVector(t *testing.T) {
	v := []float32{0, 0, 0}
	got := Normalize(v)
	for i := range got {
		if got[i] != 0 {
			t.Fatalf("Normalize(zero) = %v, want zero vector", got)
		}
	}
}

func TestDot(t *testing.T) {
	if got := Dot([]float32{1, 2, 3}, []float32{4, 5, 6}); got != 32 {
		t.Fatalf("Dot = %v, want 32", got)
	}
}

func TestFlatSelfQueryRanksItemFirst(t *testing.T) {
	idx := NewFlat(testEntries())
	results, err := idx.Nearest([]float32{0, 1, 0}, 2)
	if err != nil {
		t.Fatalf("Nearest: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].ItemID != "c" {
		t.Fatalf("top result = %s, want c", results[0].ItemID)
	}
	if math.Abs(results[0].Score-1) > 1e-6 {
		t.Fatalf("self score = %v, want 1", results[0].Score)
	}
	if results[0].Score < results[1].Score {
		t.Fatalf("results not sorted by score descending: %v", results)
	}
}

func TestFlatDimensionMismatch(t *testing.T) {
	idx := NewFlat(testEntries())
	_, err := idx.Nearest([]float32{1, 0}, 3)
	if !errors.Is(err, apperrors.ErrDimensionMismatch) {
		t.Fatalf("err = %v, want ErrDimensionMismatch", err)
	}
}

func TestFlatTieBreakByID(t *testing.T) {
	entries := []Entry{
		{ID: "z", Vector: []float32{1, 0}},
		{ID: "a", Vector: []float32{1, 0}},
		{ID: "m", Vector: []float32{1, 0}},
	}
	idx := NewFlat(entries)
	results, err := idx.Nearest([]float32{1, 0}, 3)
	if err != nil {
		t.Fatalf("Nearest: %v", err)
	}
	want := []string{"a", "m", "z"}
	for i, w := range want {
		if results[i].ItemID != w {
			t.Fatalf("position %d = %s, want %s", i, results[i].ItemID, w)
		}
	}
}

func TestFlatTruncatesToK(t *testing.T) {
	idx := NewFlat(testEntries())
	results, err := idx.Nearest([]float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatalf("Nearest: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
}

func TestFlatEmptyAndZeroK(t *testing.T) {
	idx := NewFlat(nil)
	if idx.Dimensions() != 0 || idx.Len() != 0 {
		t.Fatalf("empty index: dims=%d len=%d", idx.Dimensions(), idx.Len())
	}
	results, err := idx.Nearest([]float32{1, 0}, 5)
	if err != nil || results != nil {
		t.Fatalf("empty index query: results=%v err=%v", results, err)
	}

	full := NewFlat(testEntries())
	results, err = full.Nearest([]float32{1, 0, 0}, 0)
	if err != nil || results != nil {
		t.Fatalf("k=0 query: results=%v err=%v", results, err)
	}
}

func TestFlatDropsMixedDimensions(t *testing.T) {
	idx := NewFlat([]Entry{
		{ID: "a", Vector: []float32{1, 0, 0}},
		{ID: "bad", Vector: []float32{1, 0}},
	})
	if idx.Len() != 1 {
		t.Fatalf("Len = %d, want 1 after dropping mismatched entry", idx.Len())
	}
}

func TestHNSWSelfQueryRanksItemFirst(t *testing.T) {
	idx := NewHNSW(testEntries(), HNSWConfig{Seed: 42})
	results, err := idx.Nearest([]float32{0, 0, 1}, 1)
	if err != nil {
		t.Fatalf("Nearest: %v", err)
	}
	if len(results) != 1 || results[0].ItemID != "d" {
		t.Fatalf("results = %v, want [d]", results)
	}
}

func TestHNSWDimensionMismatch(t *testing.T) {
	idx := NewHNSW(testEntries(), HNSWConfig{Seed: 42})
	_, err := idx.Nearest([]float32{1, 0, 0, 0}, 2)
	if !errors.Is(err, apperrors.ErrDimensionMismatch) {
		t.Fatalf("err = %v, want ErrDimensionMismatch", err)
	}
}

// On a small set with a generous EfSearch the graph search is exhaustive, so
// HNSW must reproduce the flat reference ranking exactly.
func TestHNSWAgreesWithFlat(t *testing.T) {
	entries := testEntries()
	flat := NewFlat(entries)
	hnsw := NewHNSW(entries, HNSWConfig{Seed: 42, EfSearch: 20})

	queries := [][]float32{
		{1, 0, 0},
		{0.5, 0.5, 0},
		{0.2, 0.3, 0.9},
	}
	for _, q := range queries {
		want, err := flat.Nearest(q, 3)
		if err != nil {
			t.Fatalf("flat Nearest: %v", err)
		}
		got, err := hnsw.Nearest(q, 3)
		if err != nil {
			t.Fatalf("hnsw Nearest: %v", err)
		}
		if len(got) != len(want) {
			t.Fatalf("query %v: got %d results, want %d", q, len(got), len(want))
		}
		for i := range want {
			if got[i].ItemID != want[i].ItemID {
				t.Fatalf("query %v position %d: hnsw=%s flat=%s", q, i, got[i].ItemID, want[i].ItemID)
			}
			if math.Abs(got[i].Score-want[i].Score) > 1e-6 {
				t.Fatalf("query %v position %d: score hnsw=%v flat=%v", q, i, got[i].Score, want[i].Score)
			}
		}
	}
}

func TestHNSWDeterministicBuild(t *testing.T) {
	entries := testEntries()
	a := NewHNSW(entries, HNSWConfig{Seed: 7})
	b := NewHNSW(entries, HNSWConfig{Seed: 7})
	for _, q := range [][]float32{{1, 0, 0}, {0, 1, 0}} {
		ra, _ := a.Nearest(q, 4)
		rb, _ := b.Nearest(q, 4)
		if len(ra) != len(rb) {
			t.Fatalf("builds disagree on result count for %v", q)
		}
		for i := range ra {
			if ra[i] != rb[i] {
				t.Fatalf("builds disagree at position %d for %v: %v vs %v", i, q, ra[i], rb[i])
			}
		}
	}
}
