package engine

import (
	"math"
	"sort"
)

// Source names used in per-hit score breakdowns.
const (
	SourceLexical  = "lexical"
	SourceVector   = "vector"
	SourceCF       = "cf"
	SourceFeedback = "feedback"
)

// sourceScores maps item id to raw score for one retrieval source.
type sourceScores map[string]float64

// normalize rescales raw scores to [0,1] with per-query min-max. When all
// candidates score the same, every one maps to 1 so the source still
// contributes (a constant source carries no ordering information but does
// carry presence).
func normalize(scores sourceScores) sourceScores {
	if len(scores) == 0 {
		return scores
	}
	min := math.Inf(1)
	max := math.Inf(-1)
	for _, s := range scores {
		if s < min {
			min = s
		}
		if s > max {
			max = s
		}
	}
	out := make(sourceScores, len(scores))
	if max == min {
		for id := range scores {
			out[id] = 1
		}
		return out
	}
	span := max - min
	for id, s := range scores {
		out[id] = (s - min) / span
	}
	return out
}

// fuse combines normalized per-source scores into a single ranking. The
// configured weights are renormalized over the sources that actually
// produced candidates, so a degraded query (say, embeddings down) still
// uses the full weight budget. boosts are additive per-item adjustments
// applied after fusion, only for items some source retrieved.
func fuse(sources map[string]sourceScores, weights map[string]float64, boosts map[string]float64, limit int) []Hit {
	var weightSum float64
	for name, scores := range sources {
		if len(scores) == 0 {
			continue
		}
		weightSum += weights[name]
	}
	if weightSum == 0 {
		weightSum = 1
	}

	fused := make(map[string]*Hit)
	for name, scores := range sources {
		if len(scores) == 0 {
			continue
		}
		w := weights[name] / weightSum
		for id, s := range scores {
			h, ok := fused[id]
			if !ok {
				h = &Hit{ItemID: id, Sources: make(map[string]float64)}
				fused[id] = h
			}
			h.Sources[name] = round(s)
			h.Score += w * s
		}
	}

	for id, boost := range boosts {
		h, ok := fused[id]
		if !ok {
			continue
		}
		h.Sources[SourceFeedback] = round(boost)
		h.Score += boost
	}

	hits := make([]Hit, 0, len(fused))
	for _, h := range fused {
		h.Score = round(h.Score)
		hits = append(hits, *h)
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ItemID < hits[j].ItemID
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}

func round(score float64) float64 {
	return math.Round(score*10000) / 10000
}
