package embeddings

import (
	"errors"
	"fmt"
	"math"
)

// MeanPool averages rows element-wise. All rows must have the same length.
func MeanPool(rows [][]float32) ([]float32, error) {
	if len(rows) == 0 {
		return nil, errors.New("no token vectors to pool")
	}
	width := len(rows[0])
	if width == 0 {
		return nil, errors.New("empty token vector")
	}
	sum := make([]float64, width)
	for i, row := range rows {
		if len(row) != width {
			return nil, fmt.Errorf("token %d has %d values, want %d", i, len(row), width)
		}
		for j, v := range row {
			sum[j] += float64(v)
		}
	}
	out := make([]float32, width)
	n := float64(len(rows))
	for j := range sum {
		out[j] = float32(sum[j] / n)
	}
	return out, nil
}

// Normalize scales v in place to unit L2 norm.
func Normalize(v []float32) error {
	var sq float64
	for _, x := range v {
		if math.IsNaN(float64(x)) || math.IsInf(float64(x), 0) {
			return errors.New("vector contains NaN or Inf")
		}
		sq += float64(x) * float64(x)
	}
	if sq == 0 {
		return errors.New("cannot normalize a zero vector")
	}
	norm := math.Sqrt(sq)
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
	return nil
}

// Norm returns the L2 norm of v.
func Norm(v []float32) float64 {
	var sq float64
	for _, x := range v {
		sq += float64(x) * float64(x)
	}
	return math.Sqrt(sq)
}
