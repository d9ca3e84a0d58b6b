package embedding

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync/atomic"

	"github.com/Anubhav12123/AI-Recommender-System/internal/lexical"
	apperrors "github.com/Anubhav12123/AI-Recommender-System/pkg/errors"
)

// tfidfModel is one immutable trained state. Train publishes a whole model
// at once so embeds running during a retrain read a consistent vocabulary.
type tfidfModel struct {
	vocabulary map[string]int
	idf        []float32
}

// TFIDF is a deterministic corpus-trained embedder used when no remote
// provider is configured. Vectors are L2-normalized TF-IDF weights over a
// frequency-capped vocabulary; identical input text always yields the same
// vector for a given training corpus. Tokenization is shared with the
// lexical index.
type TFIDF struct {
	model   atomic.Pointer[tfidfModel]
	maxDims int
}

// NewTFIDF creates an untrained embedder with the given vocabulary cap.
func NewTFIDF(maxDims int) *TFIDF {
	if maxDims <= 0 {
		maxDims = 4096
	}
	return &TFIDF{maxDims: maxDims}
}

// Train builds the vocabulary from a corpus and swaps it in atomically, so
// Train and Embed may run concurrently. Terms are ranked by document
// frequency with ties broken alphabetically so the vocabulary ordering is
// stable across builds.
func (t *TFIDF) Train(documents []string) {
	df := make(map[string]int)
	for _, doc := range documents {
		seen := make(map[string]bool)
		for _, word := range lexical.Tokenize(doc) {
			if !seen[word] {
				df[word]++
				seen[word] = true
			}
		}
	}

	type wordFreq struct {
		word string
		freq int
	}
	wf := make([]wordFreq, 0, len(df))
	for w, f := range df {
		wf = append(wf, wordFreq{w, f})
	}
	sort.Slice(wf, func(i, j int) bool {
		if wf[i].freq != wf[j].freq {
			return wf[i].freq > wf[j].freq
		}
		return wf[i].word < wf[j].word
	})
	if len(wf) > t.maxDims {
		wf = wf[:t.maxDims]
	}

	m := &tfidfModel{
		vocabulary: make(map[string]int, len(wf)),
		idf:        make([]float32, len(wf)),
	}
	n := float64(len(documents))
	for i, w := range wf {
		m.vocabulary[w.word] = i
		m.idf[i] = float32(math.Log(n / float64(w.freq)))
	}
	t.model.Store(m)
}

func (t *TFIDF) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := t.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (t *TFIDF) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	m := t.model.Load()
	if m == nil {
		return nil, fmt.Errorf("%w: tfidf embedder not trained", apperrors.ErrEmbeddingUnavailable)
	}
	dims := len(m.vocabulary)
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, dims)
		words := lexical.Tokenize(text)
		tf := make(map[string]int, len(words))
		for _, w := range words {
			tf[w]++
		}
		for word, count := range tf {
			if idx, ok := m.vocabulary[word]; ok {
				tfVal := float32(count) / float32(len(words))
				vec[idx] = tfVal * m.idf[idx]
			}
		}
		normalizeInPlace(vec)
		vectors[i] = vec
	}
	return vectors, nil
}

func (t *TFIDF) Dimensions() int {
	m := t.model.Load()
	if m == nil {
		return 0
	}
	return len(m.vocabulary)
}

// TFIDFData is the serializable trained state, vocabulary ordered by
// dimension index. It is what artifact bundles persist so a loaded version
// embeds queries with the vocabulary its item vectors were built from.
type TFIDFData struct {
	Vocabulary []string  `json:"vocabulary"`
	IDF        []float32 `json:"idf"`
}

// Data exports the trained state. Empty before training.
func (t *TFIDF) Data() TFIDFData {
	m := t.model.Load()
	if m == nil {
		return TFIDFData{}
	}
	vocab := make([]string, len(m.vocabulary))
	for word, i := range m.vocabulary {
		vocab[i] = word
	}
	return TFIDFData{
		Vocabulary: vocab,
		IDF:        append([]float32(nil), m.idf...),
	}
}

// RestoreTFIDF reconstructs a trained embedder from exported state. The
// result is frozen: retraining the embedder it was exported from does not
// affect it. Empty data yields an untrained embedder.
func RestoreTFIDF(data TFIDFData) *TFIDF {
	t := NewTFIDF(len(data.Vocabulary))
	if len(data.Vocabulary) == 0 {
		return t
	}
	m := &tfidfModel{
		vocabulary: make(map[string]int, len(data.Vocabulary)),
		idf:        append([]float32(nil), data.IDF...),
	}
	for i, word := range data.Vocabulary {
		m.vocabulary[word] = i
	}
	t.model.Store(m)
	return t
}

func normalizeInPlace(vec []float32) {
	var norm float32
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return
	}
	inv := float32(1 / math.Sqrt(float64(norm)))
	for i := range vec {
		vec[i] *= inv
	}
}
