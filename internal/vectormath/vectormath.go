// Package vectormath provides cosine similarity and descriptive statistics
// over embedding vectors. All functions are pure.
package vectormath

import (
	"fmt"
	"math"
	"sort"
)

// DimensionError reports an embedding dimension mismatch.
type DimensionError struct {
	Want int
	Got  int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("embedding dimension mismatch: want %d, got %d", e.Want, e.Got)
}

// CosineSimilarityMatrix returns the M×N cosine similarity matrix between
// M document embeddings and N theme embeddings. All vectors must share one
// dimension; a mismatch returns a DimensionError.
func CosineSimilarityMatrix(docs, themes [][]float32) ([][]float64, error) {
	dim := 0
	if len(docs) > 0 {
		dim = len(docs[0])
	} else if len(themes) > 0 {
		dim = len(themes[0])
	}
	for _, v := range docs {
		if len(v) != dim {
			return nil, &DimensionError{Want: dim, Got: len(v)}
		}
	}
	for _, v := range themes {
		if len(v) != dim {
			return nil, &DimensionError{Want: dim, Got: len(v)}
		}
	}

	docNorms := make([]float64, len(docs))
	for i, v := range docs {
		docNorms[i] = norm(v)
	}
	themeNorms := make([]float64, len(themes))
	for j, v := range themes {
		themeNorms[j] = norm(v)
	}

	matrix := make([][]float64, len(docs))
	for i, d := range docs {
		row := make([]float64, len(themes))
		for j, t := range themes {
			if docNorms[i] == 0 || themeNorms[j] == 0 {
				continue
			}
			row[j] = dot(d, t) / (docNorms[i] * themeNorms[j])
		}
		matrix[i] = row
	}
	return matrix, nil
}

// Column returns column j of the matrix.
func Column(matrix [][]float64, j int) []float64 {
	col := make([]float64, len(matrix))
	for i := range matrix {
		col[i] = matrix[i][j]
	}
	return col
}

// Percentile returns the p-th percentile (0..100) of values using linear
// interpolation between closest ranks. Returns 0 for an empty slice.
func Percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[len(sorted)-1]
	}
	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// Mean returns the arithmetic mean of values, or 0 for an empty slice.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// Max returns the largest value, or 0 for an empty slice.
func Max(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	max := values[0]
	for _, v := range values[1:] {
		if v > max {
			max = v
		}
	}
	return max
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}
