// Package similarity implements the cosine-similarity matching engine:
// batched pairwise similarity matrices, threshold-based match extraction
// with deterministic pair dedup, and greedy clustering.
package similarity

import "math"

// Matrix is the dense pairwise cosine-similarity matrix for one batch of
// texts. Symmetric, diagonal forced to zero so an item never matches itself.
type Matrix [][]float64

// NormalizeRows L2-normalizes each vector in place-free fashion and returns
// the normalized copies. A zero vector stays zero, so its similarity to
// anything is 0 rather than NaN.
func NormalizeRows(vecs [][]float32) [][]float32 {
	out := make([][]float32, len(vecs))
	for i, v := range vecs {
		out[i] = normalize(v)
	}
	return out
}

func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	out := make([]float32, len(v))
	if sum == 0 {
		return out
	}
	norm := math.Sqrt(sum)
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

// Dot returns the dot product of two equal-length vectors in float64.
// For L2-normalized inputs this is the cosine similarity.
func Dot(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

// BuildMatrix computes the full pairwise similarity matrix for a batch of
// L2-normalized vectors and zeroes the diagonal. The result is symmetric;
// M[i][j] is computed once and mirrored.
func BuildMatrix(normalized [][]float32) Matrix {
	n := len(normalized)
	m := make(Matrix, n)
	for i := range m {
		m[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			s := Dot(normalized[i], normalized[j])
			m[i][j] = s
			m[j][i] = s
		}
	}
	return m
}
