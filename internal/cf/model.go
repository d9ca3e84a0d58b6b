package cf

import (
	"math"
	"sort"
)

// DefaultNeighborK bounds the stored neighbor list per item.
const DefaultNeighborK = 25

// Neighbor is one entry in an item's top-k similarity list.
type Neighbor struct {
	ItemID     string  `json:"item_id"`
	Similarity float64 `json:"similarity"`
}

// Model is the trained item-based kNN model. It is immutable after Train
// and safe for concurrent reads. Similarity values are symmetric but the
// stored top-k lists are not: A's list may omit B even when B's includes A.
type Model struct {
	k           int
	neighbors   map[string][]Neighbor
	userRatings map[string]map[string]float64
	popularity  []Neighbor // items by interaction count, for cold-start fallback
}

// ModelData is the serializable form of a Model for artifact bundles.
type ModelData struct {
	K           int                           `json:"k"`
	Neighbors   map[string][]Neighbor         `json:"neighbors"`
	UserRatings map[string]map[string]float64 `json:"user_ratings"`
	Popularity  []Neighbor                    `json:"popularity"`
}

// Train computes, for every item column, cosine similarity against all other
// item columns and retains the k most similar. Items with no interactions
// get no neighbor list.
func Train(m *Matrix, k int) *Model {
	if k <= 0 {
		k = DefaultNeighborK
	}
	model := &Model{
		k:           k,
		neighbors:   make(map[string][]Neighbor, len(m.items)),
		userRatings: make(map[string]map[string]float64, len(m.users)),
	}

	// Column norms.
	norms := make([]float64, len(m.items))
	for i, col := range m.cols {
		var sum float64
		for _, v := range col {
			sum += v * v
		}
		norms[i] = math.Sqrt(sum)
	}

	// Accumulate pairwise dot products through shared users: only item pairs
	// co-rated by at least one user have nonzero similarity.
	dots := make([]map[int]float64, len(m.items))
	for i := range dots {
		dots[i] = make(map[int]float64)
	}
	for _, row := range m.rows {
		rated := make([]int, 0, len(row))
		for i := range row {
			rated = append(rated, i)
		}
		sort.Ints(rated)
		for x := 0; x < len(rated); x++ {
			for y := x + 1; y < len(rated); y++ {
				a, b := rated[x], rated[y]
				prod := row[a] * row[b]
				dots[a][b] += prod
				dots[b][a] += prod
			}
		}
	}

	for i, itemID := range m.items {
		if norms[i] == 0 {
			continue
		}
		list := make([]Neighbor, 0, len(dots[i]))
		for j, dot := range dots[i] {
			if norms[j] == 0 {
				continue
			}
			sim := dot / (norms[i] * norms[j])
			if sim <= 0 {
				continue
			}
			list = append(list, Neighbor{ItemID: m.items[j], Similarity: round(sim)})
		}
		sort.Slice(list, func(x, y int) bool {
			if list[x].Similarity != list[y].Similarity {
				return list[x].Similarity > list[y].Similarity
			}
			return list[x].ItemID < list[y].ItemID
		})
		if len(list) > k {
			list = list[:k]
		}
		if len(list) > 0 {
			model.neighbors[itemID] = list
		}
	}

	for u, row := range m.rows {
		if len(row) == 0 {
			continue
		}
		ratings := make(map[string]float64, len(row))
		for i, v := range row {
			ratings[m.items[i]] = v
		}
		model.userRatings[m.users[u]] = ratings
	}

	model.popularity = popularity(m)
	return model
}

// Restore reconstructs a Model from its serialized form.
func Restore(data ModelData) *Model {
	k := data.K
	if k <= 0 {
		k = DefaultNeighborK
	}
	return &Model{
		k:           k,
		neighbors:   data.Neighbors,
		userRatings: data.UserRatings,
		popularity:  data.Popularity,
	}
}

// Data returns the serializable form of the model.
func (model *Model) Data() ModelData {
	return ModelData{
		K:           model.k,
		Neighbors:   model.neighbors,
		UserRatings: model.userRatings,
		Popularity:  model.popularity,
	}
}

// K returns the neighbor-list bound the model was trained with.
func (model *Model) K() int { return model.k }

// SimilarItems returns up to k neighbors of itemID ordered by similarity
// descending, ties broken by item id ascending. The item itself is never
// included; an item with no interaction history yields an empty list.
func (model *Model) SimilarItems(itemID string, k int) []Neighbor {
	list := model.neighbors[itemID]
	if k <= 0 || len(list) == 0 {
		return nil
	}
	if k > len(list) {
		k = len(list)
	}
	out := make([]Neighbor, k)
	copy(out, list[:k])
	return out
}

// PredictScore estimates userID's preference for itemID as the
// similarity-weighted average of the user's ratings on the item's
// neighbors. Returns 0 when the user has no overlapping ratings; callers
// treat 0 as "no signal", not negative preference.
func (model *Model) PredictScore(userID, itemID string) float64 {
	ratings := model.userRatings[userID]
	if len(ratings) == 0 {
		return 0
	}
	var num, den float64
	for _, n := range model.neighbors[itemID] {
		if r, ok := ratings[n.ItemID]; ok {
			num += n.Similarity * r
			den += n.Similarity
		}
	}
	if den == 0 {
		return 0
	}
	return round(num / den)
}

// UserRatings returns the user's known item ratings, nil for an unknown
// user. The returned map is shared and must not be mutated.
func (model *Model) UserRatings(userID string) map[string]float64 {
	return model.userRatings[userID]
}

// Popular returns up to k items ordered by interaction count, the
// weakest cold-start fallback when nothing is known about a user.
func (model *Model) Popular(k int) []Neighbor {
	if k <= 0 || k > len(model.popularity) {
		k = len(model.popularity)
	}
	out := make([]Neighbor, k)
	copy(out, model.popularity[:k])
	return out
}

func popularity(m *Matrix) []Neighbor {
	list := make([]Neighbor, 0, len(m.items))
	for i, itemID := range m.items {
		if len(m.cols[i]) == 0 {
			continue
		}
		list = append(list, Neighbor{ItemID: itemID, Similarity: float64(len(m.cols[i]))})
	}
	sort.Slice(list, func(x, y int) bool {
		if list[x].Similarity != list[y].Similarity {
			return list[x].Similarity > list[y].Similarity
		}
		return list[x].ItemID < list[y].ItemID
	})
	return list
}

func round(v float64) float64 {
	return math.Round(v*10000) / 10000
}
