// Package evaluate implements offline leave-one-out evaluation of the
// recommender: each eligible user's latest interaction is held out, the CF
// model is retrained on the remainder, and ranking metrics are computed
// over the held-out items.
package evaluate

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/Anubhav12123/AI-Recommender-System/internal/catalog"
	"github.com/Anubhav12123/AI-Recommender-System/internal/cf"
)

// Recommender produces a top-k item ranking for a user.
type Recommender func(userID string, k int) []string

// Metrics is the summary of one evaluation run. With a single relevant item
// per user, precision@k is hit/k and recall@k equals the hit rate.
type Metrics struct {
	K              int     `json:"k"`
	UsersEvaluated int     `json:"users_evaluated"`
	PrecisionAtK   float64 `json:"precision_at_k"`
	RecallAtK      float64 `json:"recall_at_k"`
	MAPAtK         float64 `json:"map_at_k"`
	NDCGAtK        float64 `json:"ndcg_at_k"`
	HitRate        float64 `json:"hit_rate"`
	ItemCoverage   int     `json:"item_coverage"`
	ElapsedSec     float64 `json:"elapsed_sec"`
}

// Options bounds an evaluation run. UsersLimit of 0 evaluates every
// eligible user; a positive limit samples deterministically by Seed.
type Options struct {
	K          int
	UsersLimit int
	Seed       int64
}

func (o Options) withDefaults() Options {
	if o.K <= 0 {
		o.K = 10
	}
	if o.Seed == 0 {
		o.Seed = 42
	}
	return o
}

type holdout struct {
	userID string
	itemID string
}

// chooseHoldout picks each user's latest interaction as the test item.
// Users with fewer than two interactions are skipped.
func chooseHoldout(interactions []catalog.Interaction) []holdout {
	byUser := make(map[string][]catalog.Interaction)
	for _, in := range interactions {
		byUser[in.UserID] = append(byUser[in.UserID], in)
	}
	users := make([]string, 0, len(byUser))
	for u := range byUser {
		users = append(users, u)
	}
	sort.Strings(users)

	var out []holdout
	for _, u := range users {
		rows := byUser[u]
		if len(rows) < 2 {
			continue
		}
		latest := rows[0]
		for _, in := range rows[1:] {
			if in.Timestamp.After(latest.Timestamp) {
				latest = in
			}
		}
		out = append(out, holdout{userID: u, itemID: latest.ItemID})
	}
	return out
}

// trainingSplit removes each held-out (user, item) pair from the
// interaction set.
func trainingSplit(interactions []catalog.Interaction, held []holdout) []catalog.Interaction {
	heldSet := make(map[[2]string]bool, len(held))
	for _, h := range held {
		heldSet[[2]string{h.userID, h.itemID}] = true
	}
	train := make([]catalog.Interaction, 0, len(interactions))
	for _, in := range interactions {
		if heldSet[[2]string{in.UserID, in.ItemID}] {
			continue
		}
		train = append(train, in)
	}
	return train
}

// Run evaluates a recommender against the held-out items.
func Run(recommend Recommender, interactions []catalog.Interaction, opts Options) (Metrics, error) {
	opts = opts.withDefaults()
	start := time.Now()

	held := chooseHoldout(interactions)
	if len(held) == 0 {
		return Metrics{}, fmt.Errorf("no eligible users for leave-one-out (need >= 2 interactions per user)")
	}
	if opts.UsersLimit > 0 && len(held) > opts.UsersLimit {
		rng := rand.New(rand.NewSource(opts.Seed))
		rng.Shuffle(len(held), func(i, j int) { held[i], held[j] = held[j], held[i] })
		held = held[:opts.UsersLimit]
	}

	var precisionSum, recallSum, mapSum, ndcgSum, hitSum float64
	coverage := make(map[string]bool)

	for _, h := range held {
		recs := recommend(h.userID, opts.K)
		if len(recs) > opts.K {
			recs = recs[:opts.K]
		}
		for _, id := range recs {
			coverage[id] = true
		}
		hit := 0.0
		for _, id := range recs {
			if id == h.itemID {
				hit = 1
				break
			}
		}
		hitSum += hit
		precisionSum += hit / float64(opts.K)
		recallSum += hit
		mapSum += averagePrecision(h.itemID, recs)
		ndcgSum += ndcg(h.itemID, recs)
	}

	n := float64(len(held))
	return Metrics{
		K:              opts.K,
		UsersEvaluated: len(held),
		PrecisionAtK:   round4(precisionSum / n),
		RecallAtK:      round4(recallSum / n),
		MAPAtK:         round4(mapSum / n),
		NDCGAtK:        round4(ndcgSum / n),
		HitRate:        round4(hitSum / n),
		ItemCoverage:   len(coverage),
		ElapsedSec:     math.Round(time.Since(start).Seconds()*100) / 100,
	}, nil
}

// RunCF trains an item-based CF model on the training split and evaluates
// its neighbor-based recommendations.
func RunCF(interactions []catalog.Interaction, neighborK int, opts Options) (Metrics, error) {
	opts = opts.withDefaults()
	held := chooseHoldout(interactions)
	model := cf.Train(cf.BuildMatrix(trainingSplit(interactions, held)), neighborK)
	return Run(cfRecommender(model), interactions, opts)
}

// cfRecommender ranks the neighbors of a user's rated items by predicted
// score, falling back to the popularity list for unknown users.
func cfRecommender(model *cf.Model) Recommender {
	return func(userID string, k int) []string {
		rated := model.UserRatings(userID)
		if len(rated) == 0 {
			popular := model.Popular(k)
			out := make([]string, 0, len(popular))
			for _, n := range popular {
				out = append(out, n.ItemID)
			}
			return out
		}
		scores := make(map[string]float64)
		for itemID := range rated {
			for _, n := range model.SimilarItems(itemID, k*3) {
				if _, seen := rated[n.ItemID]; seen {
					continue
				}
				if _, done := scores[n.ItemID]; done {
					continue
				}
				if s := model.PredictScore(userID, n.ItemID); s > 0 {
					scores[n.ItemID] = s
				}
			}
		}
		ranked := make([]string, 0, len(scores))
		for id := range scores {
			ranked = append(ranked, id)
		}
		sort.Slice(ranked, func(i, j int) bool {
			if scores[ranked[i]] != scores[ranked[j]] {
				return scores[ranked[i]] > scores[ranked[j]]
			}
			return ranked[i] < ranked[j]
		})
		if len(ranked) > k {
			ranked = ranked[:k]
		}
		return ranked
	}
}

func averagePrecision(trueItem string, recs []string) float64 {
	score, hits := 0.0, 0
	for i, id := range recs {
		if id == trueItem {
			hits++
			score += float64(hits) / float64(i+1)
		}
	}
	if hits == 0 {
		return 0
	}
	return score / float64(hits)
}

func ndcg(trueItem string, recs []string) float64 {
	var dcg float64
	found := false
	for i, id := range recs {
		if id == trueItem {
			dcg += 1 / math.Log2(float64(i)+2)
			found = true
		}
	}
	if !found {
		return 0
	}
	// One relevant item, so the ideal DCG is a hit at rank one.
	return dcg
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
