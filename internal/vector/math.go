// Package vector implements nearest-neighbor search over dense item
// embeddings. Vectors are unit-normalized at build time so inner-product
// retrieval is equivalent to cosine similarity; the flat brute-force backend
// is the reference behavior, with HNSW as an approximate alternative behind
// the same interface.
package vector

import "math"

// Dot computes the inner product of two vectors.
func Dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// Norm computes the L2 norm of a vector.
func Norm(v []float32) float32 {
	return float32(math.Sqrt(float64(Dot(v, v))))
}

// Normalize returns a unit vector in the same direction. The zero vector is
// returned unchanged.
func Normalize(v []float32) []float32 {
	norm := Norm(v)
	if norm == 0 {
		return v
	}
	result := make([]float32, len(v))
	for i := range v {
		result[i] = v[i] / norm
	}
	return result
}
