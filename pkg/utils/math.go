package utils

import "math"

// NormalizeL2 normalizes the slice in place to unit L2 norm.
// A zero vector is left unchanged.
func NormalizeL2(x []float32) {
	var sum float32
	for _, v := range x {
		sum += v * v
	}
	if sum == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(float64(sum)))
	for i := range x {
		x[i] *= inv
	}
}

// Clamp01 clamps v to the [0, 1] interval.
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// RoundInt rounds v half away from zero and returns it as an int.
func RoundInt(v float64) int {
	return int(math.Round(v))
}
