// Package cf implements item-based collaborative filtering: a sparse
// user-item interaction matrix and a top-k item-neighbor model computed
// with cosine similarity over item columns.
package cf

import (
	"sort"
	"time"

	"github.com/Anubhav12123/AI-Recommender-System/internal/catalog"
)

// Matrix is the sparse user-item interaction matrix. Rows are users,
// columns are items, values are rating weights. Repeated (user, item)
// pairs collapse last-write-wins by timestamp.
type Matrix struct {
	users     []string
	items     []string
	userIndex map[string]int
	itemIndex map[string]int
	rows      []map[int]float64 // rows[u][i] = rating of user u on item i
	cols      []map[int]float64 // cols[i][u] = same value, column-major
}

type cell struct {
	rating float64
	ts     time.Time
}

// BuildMatrix aggregates interactions into a Matrix. When two records share
// a (user, item) pair, the one with the later timestamp wins; on equal
// timestamps the later record in the sequence wins.
func BuildMatrix(interactions []catalog.Interaction) *Matrix {
	latest := make(map[[2]string]cell)
	for _, in := range interactions {
		key := [2]string{in.UserID, in.ItemID}
		prev, seen := latest[key]
		if seen && in.Timestamp.Before(prev.ts) {
			continue
		}
		latest[key] = cell{rating: in.Rating, ts: in.Timestamp}
	}

	userSet := make(map[string]struct{})
	itemSet := make(map[string]struct{})
	for key := range latest {
		userSet[key[0]] = struct{}{}
		itemSet[key[1]] = struct{}{}
	}

	m := &Matrix{
		users:     sortedKeys(userSet),
		items:     sortedKeys(itemSet),
		userIndex: make(map[string]int, len(userSet)),
		itemIndex: make(map[string]int, len(itemSet)),
	}
	for i, u := range m.users {
		m.userIndex[u] = i
	}
	for i, it := range m.items {
		m.itemIndex[it] = i
	}
	m.rows = make([]map[int]float64, len(m.users))
	for i := range m.rows {
		m.rows[i] = make(map[int]float64)
	}
	m.cols = make([]map[int]float64, len(m.items))
	for i := range m.cols {
		m.cols[i] = make(map[int]float64)
	}
	for key, c := range latest {
		u := m.userIndex[key[0]]
		i := m.itemIndex[key[1]]
		m.rows[u][i] = c.rating
		m.cols[i][u] = c.rating
	}
	return m
}

// Users returns the number of distinct users.
func (m *Matrix) Users() int { return len(m.users) }

// Items returns the number of distinct items.
func (m *Matrix) Items() int { return len(m.items) }

// Rating returns the stored weight for (user, item), 0 if absent.
func (m *Matrix) Rating(userID, itemID string) float64 {
	u, ok := m.userIndex[userID]
	if !ok {
		return 0
	}
	i, ok := m.itemIndex[itemID]
	if !ok {
		return 0
	}
	return m.rows[u][i]
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
