package vector

import (
	"math"
	"math/rand"
	"sort"
)

// HNSWConfig configures the HNSW graph.
type HNSWConfig struct {
	M              int     // Max connections per node (default 16)
	EfConstruction int     // Construction search depth (default 200)
	EfSearch       int     // Query search depth (default 50)
	LevelMult      float64 // Level multiplier (default 1/ln(M))
	Seed           int64   // Level-assignment RNG seed, fixed for reproducible builds
}

func (c HNSWConfig) withDefaults() HNSWConfig {
	if c.M == 0 {
		c.M = 16
	}
	if c.EfConstruction == 0 {
		c.EfConstruction = 200
	}
	if c.EfSearch == 0 {
		c.EfSearch = 50
	}
	if c.LevelMult == 0 {
		c.LevelMult = 1.0 / math.Log(float64(c.M))
	}
	return c
}

type hnswNode struct {
	ID        string
	Vector    []float32
	Level     int
	Neighbors [][]uint32 // Neighbors[level] = neighbor indices
}

// HNSW is a Hierarchical Navigable Small World graph over normalized
// vectors. The graph is built once from the full entry set and never
// mutated afterwards, so searches run without locking. Results are
// approximate; the Flat backend defines the exact reference ranking.
type HNSW struct {
	nodes      []hnswNode
	entryPoint int32 // -1 if empty
	maxLevel   int
	dims       int
	cfg        HNSWConfig
	rng        *rand.Rand
}

// NewHNSW builds an HNSW index from the given entries.
func NewHNSW(entries []Entry, cfg HNSWConfig) *HNSW {
	cfg = cfg.withDefaults()
	h := &HNSW{
		entryPoint: -1,
		cfg:        cfg,
		rng:        rand.New(rand.NewSource(cfg.Seed)),
	}
	for _, e := range entries {
		if len(e.Vector) == 0 {
			continue
		}
		if h.dims == 0 {
			h.dims = len(e.Vector)
		}
		if len(e.Vector) != h.dims {
			continue
		}
		h.insert(e.ID, Normalize(e.Vector))
	}
	h.rng = nil // construction only
	return h
}

func (h *HNSW) insert(id string, vec []float32) {
	level := h.randomLevel()
	idx := uint32(len(h.nodes))

	n := hnswNode{
		ID:        id,
		Vector:    vec,
		Level:     level,
		Neighbors: make([][]uint32, level+1),
	}
	for i := range n.Neighbors {
		n.Neighbors[i] = make([]uint32, 0, h.cfg.M)
	}
	h.nodes = append(h.nodes, n)

	if h.entryPoint < 0 {
		h.entryPoint = int32(idx)
		h.maxLevel = level
		return
	}

	curr := uint32(h.entryPoint)
	for l := h.maxLevel; l > level; l-- {
		curr = h.greedyStep(vec, curr, l)
	}
	for l := min(level, h.maxLevel); l >= 0; l-- {
		neighbors := h.searchLayer(vec, curr, h.cfg.EfConstruction, l)
		h.connect(idx, neighbors, l)
		if len(neighbors) > 0 {
			curr = neighbors[0]
		}
	}
	if level > h.maxLevel {
		h.maxLevel = level
		h.entryPoint = int32(idx)
	}
}

func (h *HNSW) randomLevel() int {
	r := h.rng.Float64()
	return int(-math.Log(r) * h.cfg.LevelMult)
}

// distance is cosine distance; vectors are unit length so 1 - dot suffices.
func distance(a, b []float32) float32 {
	return 1 - Dot(a, b)
}

func (h *HNSW) greedyStep(query []float32, entry uint32, level int) uint32 {
	curr := entry
	currDist := distance(query, h.nodes[curr].Vector)
	for {
		changed := false
		if level < len(h.nodes[curr].Neighbors) {
			for _, neighbor := range h.nodes[curr].Neighbors[level] {
				dist := distance(query, h.nodes[neighbor].Vector)
				if dist < currDist {
					curr = neighbor
					currDist = dist
					changed = true
				}
			}
		}
		if !changed {
			break
		}
	}
	return curr
}

func (h *HNSW) searchLayer(query []float32, entry uint32, ef, level int) []uint32 {
	visited := make(map[uint32]bool)
	candidates := &distHeap{}
	results := &distHeap{}

	dist := distance(query, h.nodes[entry].Vector)
	candidates.push(distItem{idx: entry, dist: dist})
	results.push(distItem{idx: entry, dist: dist})
	visited[entry] = true

	for candidates.len() > 0 {
		curr := candidates.pop()
		if results.len() >= ef && curr.dist > results.peek().dist {
			break
		}
		if level < len(h.nodes[curr.idx].Neighbors) {
			for _, neighbor := range h.nodes[curr.idx].Neighbors[level] {
				if visited[neighbor] {
					continue
				}
				visited[neighbor] = true
				nDist := distance(query, h.nodes[neighbor].Vector)
				if results.len() < ef || nDist < results.peek().dist {
					candidates.push(distItem{idx: neighbor, dist: nDist})
					results.push(distItem{idx: neighbor, dist: nDist})
					if results.len() > ef {
						results.popLast()
					}
				}
			}
		}
	}

	out := make([]uint32, results.len())
	for i := range out {
		out[i] = results.items[i].idx
	}
	return out
}

func (h *HNSW) connect(idx uint32, neighbors []uint32, level int) {
	m := h.cfg.M
	if level == 0 {
		m = h.cfg.M * 2
	}
	selected := neighbors
	if len(selected) > m {
		selected = selected[:m]
	}
	h.nodes[idx].Neighbors[level] = append(h.nodes[idx].Neighbors[level], selected...)
	for _, n := range selected {
		if level < len(h.nodes[n].Neighbors) {
			h.nodes[n].Neighbors[level] = append(h.nodes[n].Neighbors[level], idx)
			if len(h.nodes[n].Neighbors[level]) > m {
				h.prune(n, level, m)
			}
		}
	}
}

func (h *HNSW) prune(idx uint32, level, m int) {
	neighbors := h.nodes[idx].Neighbors[level]
	if len(neighbors) <= m {
		return
	}
	type nd struct {
		n    uint32
		dist float32
	}
	nds := make([]nd, len(neighbors))
	for i, n := range neighbors {
		nds[i] = nd{n: n, dist: distance(h.nodes[idx].Vector, h.nodes[n].Vector)}
	}
	sort.Slice(nds, func(i, j int) bool { return nds[i].dist < nds[j].dist })
	h.nodes[idx].Neighbors[level] = make([]uint32, m)
	for i := 0; i < m; i++ {
		h.nodes[idx].Neighbors[level][i] = nds[i].n
	}
}

func (h *HNSW) Nearest(query []float32, k int) ([]Result, error) {
	if err := checkDimensions(query, h.dims); err != nil {
		return nil, err
	}
	if k <= 0 || h.entryPoint < 0 {
		return nil, nil
	}
	q := Normalize(query)

	curr := uint32(h.entryPoint)
	for l := h.maxLevel; l > 0; l-- {
		curr = h.greedyStep(q, curr, l)
	}
	ef := h.cfg.EfSearch
	if k > ef {
		ef = k
	}
	neighbors := h.searchLayer(q, curr, ef, 0)

	results := make([]Result, 0, len(neighbors))
	for _, idx := range neighbors {
		n := h.nodes[idx]
		results = append(results, Result{ItemID: n.ID, Score: float64(Dot(q, n.Vector))})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ItemID < results[j].ItemID
	})
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

func (h *HNSW) Dimensions() int { return h.dims }

func (h *HNSW) Len() int { return len(h.nodes) }

type distItem struct {
	idx  uint32
	dist float32
}

// distHeap is a min-heap on distance used during graph traversal.
type distHeap struct {
	items []distItem
}

func (h *distHeap) len() int { return len(h.items) }

func (h *distHeap) push(item distItem) {
	h.items = append(h.items, item)
	i := len(h.items) - 1
	for i > 0 {
		parent := (i - 1) / 2
		if h.items[i].dist >= h.items[parent].dist {
			break
		}
		h.items[i], h.items[parent] = h.items[parent], h.items[i]
		i = parent
	}
}

func (h *distHeap) pop() distItem {
	item := h.items[0]
	h.items[0] = h.items[len(h.items)-1]
	h.items = h.items[:len(h.items)-1]
	h.bubbleDown(0)
	return item
}

func (h *distHeap) peek() distItem {
	return h.items[0]
}

// popLast removes the farthest item, used to cap the result set at ef.
func (h *distHeap) popLast() {
	if len(h.items) == 0 {
		return
	}
	maxIdx := 0
	for i := 1; i < len(h.items); i++ {
		if h.items[i].dist > h.items[maxIdx].dist {
			maxIdx = i
		}
	}
	h.items = append(h.items[:maxIdx], h.items[maxIdx+1:]...)
}

func (h *distHeap) bubbleDown(i int) {
	for {
		left := 2*i + 1
		right := 2*i + 2
		smallest := i
		if left < len(h.items) && h.items[left].dist < h.items[smallest].dist {
			smallest = left
		}
		if right < len(h.items) && h.items[right].dist < h.items[smallest].dist {
			smallest = right
		}
		if smallest == i {
			break
		}
		h.items[i], h.items[smallest] = h.items[smallest], h.items[i]
		i = smallest
	}
}
