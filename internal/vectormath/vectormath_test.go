package vectormath

import (
	"errors"
	"math"
	"testing"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestCosineSimilarityMatrix(t *testing.T) {
	docs := [][]float32{
		{1, 0},
		{0, 1},
		{1, 1},
	}
	themes := [][]float32{
		{1, 0},
		{0, 2},
	}
	m, err := CosineSimilarityMatrix(docs, themes)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(m) != 3 || len(m[0]) != 2 {
		t.Fatalf("expected 3x2 matrix, got %dx%d", len(m), len(m[0]))
	}
	if !almostEqual(m[0][0], 1) {
		t.Errorf("m[0][0] = %v, want 1", m[0][0])
	}
	if !almostEqual(m[0][1], 0) {
		t.Errorf("m[0][1] = %v, want 0", m[0][1])
	}
	want := 1 / math.Sqrt(2)
	if !almostEqual(m[2][0], want) {
		t.Errorf("m[2][0] = %v, want %v", m[2][0], want)
	}
}

func TestCosineSimilarityMatrix_DimensionMismatch(t *testing.T) {
	docs := [][]float32{{1, 0, 0}}
	themes := [][]float32{{1, 0}}
	_, err := CosineSimilarityMatrix(docs, themes)
	var dimErr *DimensionError
	if !errors.As(err, &dimErr) {
		t.Fatalf("expected DimensionError, got %v", err)
	}
	if dimErr.Want != 3 || dimErr.Got != 2 {
		t.Errorf("DimensionError = %+v, want {3 2}", dimErr)
	}
}

func TestCosineSimilarityMatrix_ZeroVector(t *testing.T) {
	m, err := CosineSimilarityMatrix([][]float32{{0, 0}}, [][]float32{{1, 1}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m[0][0] != 0 {
		t.Errorf("zero vector similarity = %v, want 0", m[0][0])
	}
}

func TestPercentile(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		p      float64
		want   float64
	}{
		{"empty", nil, 50, 0},
		{"single", []float64{3}, 75, 3},
		{"median of pair", []float64{1, 3}, 50, 2},
		{"p75 interpolated", []float64{1, 2, 3, 4}, 75, 3.25},
		{"p90 of five", []float64{10, 20, 30, 40, 50}, 90, 46},
		{"p0 is min", []float64{5, 1, 9}, 0, 1},
		{"p100 is max", []float64{5, 1, 9}, 100, 9},
		{"unsorted input", []float64{4, 1, 3, 2}, 50, 2.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Percentile(tt.values, tt.p)
			if !almostEqual(got, tt.want) {
				t.Errorf("Percentile(%v, %v) = %v, want %v", tt.values, tt.p, got, tt.want)
			}
		})
	}
}

func TestMeanMax(t *testing.T) {
	values := []float64{0.2, 0.8, 0.5}
	if got := Mean(values); !almostEqual(got, 0.5) {
		t.Errorf("Mean = %v, want 0.5", got)
	}
	if got := Max(values); !almostEqual(got, 0.8) {
		t.Errorf("Max = %v, want 0.8", got)
	}
	if Mean(nil) != 0 || Max(nil) != 0 {
		t.Error("Mean/Max of empty slice should be 0")
	}
}

func TestColumn(t *testing.T) {
	m := [][]float64{{1, 2}, {3, 4}, {5, 6}}
	col := Column(m, 1)
	want := []float64{2, 4, 6}
	for i := range want {
		if col[i] != want[i] {
			t.Fatalf("Column(m, 1) = %v, want %v", col, want)
		}
	}
}
