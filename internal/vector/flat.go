package vector

import "sort"

// Flat is the exact brute-force backend: every query scans all indexed
// vectors. It defines the reference ranking semantics that any accelerated
// backend must reproduce.
type Flat struct {
	ids     []string
	vectors [][]float32
	dims    int
}

// NewFlat builds a Flat index from the given entries. Vectors are normalized
// to unit length; entries with a dimension different from the first entry
// are dropped (mixing dimensions in one index is forbidden upstream).
func NewFlat(entries []Entry) *Flat {
	f := &Flat{}
	for _, e := range entries {
		if len(e.Vector) == 0 {
			continue
		}
		if f.dims == 0 {
			f.dims = len(e.Vector)
		}
		if len(e.Vector) != f.dims {
			continue
		}
		f.ids = append(f.ids, e.ID)
		f.vectors = append(f.vectors, Normalize(e.Vector))
	}
	return f
}

func (f *Flat) Nearest(query []float32, k int) ([]Result, error) {
	if err := checkDimensions(query, f.dims); err != nil {
		return nil, err
	}
	if k <= 0 || len(f.ids) == 0 {
		return nil, nil
	}
	q := Normalize(query)
	results := make([]Result, len(f.ids))
	for i, v := range f.vectors {
		results[i] = Result{ItemID: f.ids[i], Score: float64(Dot(q, v))}
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

func (f *Flat) Dimensions() int { return f.dims }

func (f *Flat) Len() int { return len(f.ids) }
