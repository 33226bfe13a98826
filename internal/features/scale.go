package features

import (
	"fmt"
	"math"
)

// Scaler standardizes columns to zero mean and unit variance (population
// variance). Constant columns get a scale of 1.
type Scaler struct {
	Mean  []float64
	Scale []float64
}

func FitScaler(rows [][]float64) (*Scaler, error) {
	if len(rows) == 0 {
		return &Scaler{}, nil
	}
	width := len(rows[0])
	mean := make([]float64, width)
	for i, r := range rows {
		if len(r) != width {
			return nil, fmt.Errorf("row %d has %d columns, want %d", i, len(r), width)
		}
		for j, x := range r {
			mean[j] += x
		}
	}
	n := float64(len(rows))
	for j := range mean {
		mean[j] /= n
	}
	scale := make([]float64, width)
	for _, r := range rows {
		for j, x := range r {
			d := x - mean[j]
			scale[j] += d * d
		}
	}
	for j := range scale {
		s := math.Sqrt(scale[j] / n)
		if s < 1e-12 {
			s = 1
		}
		scale[j] = s
	}
	return &Scaler{Mean: mean, Scale: scale}, nil
}

// Transform scales rows in place.
func (s *Scaler) Transform(rows [][]float64) error {
	for i, r := range rows {
		if len(r) != len(s.Mean) {
			return fmt.Errorf("row %d has %d columns, want %d", i, len(r), len(s.Mean))
		}
		for j := range r {
			r[j] = (r[j] - s.Mean[j]) / s.Scale[j]
		}
	}
	return nil
}
