package similarity

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNormalizeRows_UnitLength verifies normalized vectors have unit length.
func TestNormalizeRows_UnitLength(t *testing.T) {
	vecs := [][]float32{
		{3, 4},
		{1, 1, 1, 1},
		{-2, 0, 0},
	}

	out := NormalizeRows(vecs)
	require.Len(t, out, len(vecs))

	for i, v := range out {
		var sum float64
		for _, x := range v {
			sum += float64(x) * float64(x)
		}
		assert.InDelta(t, 1.0, math.Sqrt(sum), 1e-6, "vector %d should be unit length", i)
	}
}

// TestNormalizeRows_ZeroVector verifies the degenerate case: a zero vector
// stays zero so its similarity to anything is 0, never NaN.
func TestNormalizeRows_ZeroVector(t *testing.T) {
	out := NormalizeRows([][]float32{{0, 0, 0}, {1, 0, 0}})

	assert.Equal(t, []float32{0, 0, 0}, out[0])

	m := BuildMatrix(out)
	assert.Equal(t, 0.0, m[0][1])
	assert.False(t, math.IsNaN(m[0][1]))
}

// TestBuildMatrix_Properties verifies symmetry, zeroed diagonal, and the
// [-1, 1] value range for arbitrary inputs.
func TestBuildMatrix_Properties(t *testing.T) {
	vecs := NormalizeRows([][]float32{
		{1, 0, 0},
		{0.7, 0.7, 0},
		{0, 1, 0},
		{-1, 0, 0},
		{0.2, -0.5, 0.9},
	})

	m := BuildMatrix(vecs)
	require.Len(t, m, len(vecs))

	for i := range m {
		require.Len(t, m[i], len(vecs))
		assert.Equal(t, 0.0, m[i][i], "diagonal must be zero")
		for j := range m[i] {
			assert.Equal(t, m[i][j], m[j][i], "matrix must be symmetric")
			assert.GreaterOrEqual(t, m[i][j], -1.0-1e-9)
			assert.LessOrEqual(t, m[i][j], 1.0+1e-9)
		}
	}
}

// TestBuildMatrix_IdenticalVectors verifies identical vectors score 1.0
// off-diagonal.
func TestBuildMatrix_IdenticalVectors(t *testing.T) {
	vecs := NormalizeRows([][]float32{{2, 1}, {2, 1}})
	m := BuildMatrix(vecs)

	assert.InDelta(t, 1.0, m[0][1], 1e-6)
	assert.Equal(t, 0.0, m[0][0])
	assert.Equal(t, 0.0, m[1][1])
}

// TestDot_LengthMismatch verifies mismatched vectors score 0.
func TestDot_LengthMismatch(t *testing.T) {
	assert.Equal(t, 0.0, Dot([]float32{1, 0}, []float32{1}))
}
