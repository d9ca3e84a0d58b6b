package lexical

import (
	"math"
	"sort"

	"github.com/Anubhav12123/AI-Recommender-System/internal/catalog"
)

// Default BM25 parameters. K1 controls term-frequency saturation, B the
// strength of length normalization.
const (
	DefaultK1 = 1.2
	DefaultB  = 0.75
)

// Params are the BM25 build-time constants, frozen per index version.
type Params struct {
	K1 float64 `json:"k1"`
	B  float64 `json:"b"`
}

func (p Params) withDefaults() Params {
	if p.K1 <= 0 {
		p.K1 = DefaultK1
	}
	if p.B <= 0 {
		p.B = DefaultB
	}
	return p
}

// Posting records one item's term frequency for a term.
type Posting struct {
	ItemID    string `json:"item_id"`
	Frequency int    `json:"tf"`
}

// TermEntry is a term with its full posting list, ordered by item id. Used
// for serialization into artifact bundles.
type TermEntry struct {
	Term     string    `json:"term"`
	Postings []Posting `json:"postings"`
}

// ScoredItem is one ranked result.
type ScoredItem struct {
	ItemID string  `json:"item_id"`
	Score  float64 `json:"score"`
}

// Index is an immutable BM25 inverted index. All statistics (document
// frequency, document lengths, average length) are computed once at build
// time; concurrent reads need no locking.
type Index struct {
	params       Params
	postings     map[string][]Posting
	docLengths   map[string]int
	avgDocLength float64
	docCount     int
}

// Build tokenizes every item's text and constructs the index.
func Build(items []catalog.Item, params Params) *Index {
	ix := &Index{
		params:     params.withDefaults(),
		postings:   make(map[string][]Posting),
		docLengths: make(map[string]int, len(items)),
	}

	totalTokens := 0
	for _, item := range items {
		terms := Tokenize(item.Text())
		ix.docLengths[item.ID] = len(terms)
		ix.docCount++
		totalTokens += len(terms)

		freq := make(map[string]int, len(terms))
		for _, t := range terms {
			freq[t]++
		}
		for term, tf := range freq {
			ix.postings[term] = append(ix.postings[term], Posting{ItemID: item.ID, Frequency: tf})
		}
	}
	if ix.docCount > 0 {
		ix.avgDocLength = float64(totalTokens) / float64(ix.docCount)
	}
	for term := range ix.postings {
		list := ix.postings[term]
		sort.Slice(list, func(i, j int) bool { return list[i].ItemID < list[j].ItemID })
	}
	return ix
}

// Restore reconstructs an Index from serialized term entries and document
// lengths, as read back from an artifact bundle.
func Restore(entries []TermEntry, docLengths map[string]int, avgDocLength float64, params Params) *Index {
	ix := &Index{
		params:       params.withDefaults(),
		postings:     make(map[string][]Posting, len(entries)),
		docLengths:   docLengths,
		avgDocLength: avgDocLength,
		docCount:     len(docLengths),
	}
	for _, e := range entries {
		ix.postings[e.Term] = e.Postings
	}
	return ix
}

// Snapshot returns the index contents as sorted term entries for
// serialization.
func (ix *Index) Snapshot() []TermEntry {
	entries := make([]TermEntry, 0, len(ix.postings))
	for term, postings := range ix.postings {
		entries = append(entries, TermEntry{Term: term, Postings: postings})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Term < entries[j].Term })
	return entries
}

// Params returns the frozen BM25 build parameters.
func (ix *Index) Params() Params { return ix.params }

// DocCount returns the number of indexed items.
func (ix *Index) DocCount() int { return ix.docCount }

// AvgDocLength returns the average token count per item, frozen at build.
func (ix *Index) AvgDocLength() float64 { return ix.avgDocLength }

// DocLengths returns the per-item token counts for serialization.
func (ix *Index) DocLengths() map[string]int { return ix.docLengths }

// Score computes the BM25 score of a single item for the given query terms.
// Items that match no term score 0.
func (ix *Index) Score(queryTerms []string, itemID string) float64 {
	var score float64
	for _, term := range queryTerms {
		postings, ok := ix.postings[term]
		if !ok {
			continue
		}
		i := sort.Search(len(postings), func(i int) bool { return postings[i].ItemID >= itemID })
		if i >= len(postings) || postings[i].ItemID != itemID {
			continue
		}
		idf := ix.idf(len(postings))
		score += idf * ix.tfNorm(float64(postings[i].Frequency), float64(ix.docLengths[itemID]))
	}
	return round(score)
}

// TopK scores every item matching at least one query term and returns at
// most k results ordered by score descending, ties broken by item id
// ascending. An empty or unmatched query yields an empty slice.
func (ix *Index) TopK(queryTerms []string, k int) []ScoredItem {
	if len(queryTerms) == 0 || k <= 0 {
		return nil
	}
	scores := make(map[string]float64)
	for _, term := range queryTerms {
		postings, ok := ix.postings[term]
		if !ok {
			continue
		}
		idf := ix.idf(len(postings))
		for _, p := range postings {
			scores[p.ItemID] += idf * ix.tfNorm(float64(p.Frequency), float64(ix.docLengths[p.ItemID]))
		}
	}
	if len(scores) == 0 {
		return nil
	}
	ranked := make([]ScoredItem, 0, len(scores))
	for itemID, score := range scores {
		ranked = append(ranked, ScoredItem{ItemID: itemID, Score: round(score)})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].ItemID < ranked[j].ItemID
	})
	if len(ranked) > k {
		ranked = ranked[:k]
	}
	return ranked
}

func (ix *Index) idf(docFreq int) float64 {
	numerator := float64(ix.docCount) - float64(docFreq)
	denominator := float64(docFreq) + 0.5
	return math.Log(numerator/denominator + 1)
}

func (ix *Index) tfNorm(termFreq, docLength float64) float64 {
	if ix.avgDocLength == 0 {
		return 0
	}
	lengthRatio := docLength / ix.avgDocLength
	denominator := termFreq + ix.params.K1*(1-ix.params.B+ix.params.B*lengthRatio)
	return (termFreq * (ix.params.K1 + 1)) / denominator
}

func round(score float64) float64 {
	return math.Round(score*10000) / 10000
}
