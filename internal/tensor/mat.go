package tensor

import (
	"math/rand"
)

// Mat represents a dense row-major matrix of float32 values.
//
// R and C are the number of rows and columns. Stride is the number of
// elements between the starts of two consecutive rows; for matrices created
// by this package it equals C. Linear weights are stored [out, in] so that
// MatVec applies them directly.
type Mat struct {
	R, C   int
	Stride int
	Data   []float32
}

// NewMat allocates a zero-initialised r x c matrix.
func NewMat(r, c int) Mat {
	if r < 0 || c < 0 {
		panic("negative dimension for matrix")
	}
	return Mat{
		R:      r,
		C:      c,
		Stride: c,
		Data:   make([]float32, r*c),
	}
}

// NewMatFromData wraps data as an r x c matrix without copying.
func NewMatFromData(r, c int, data []float32) Mat {
	if r*c != len(data) {
		panic("data length mismatch")
	}
	return Mat{
		R:      r,
		C:      c,
		Stride: c,
		Data:   data,
	}
}

// Row returns a view of the i-th row. Writes go to the underlying matrix.
func (m *Mat) Row(i int) []float32 {
	if i < 0 || i >= m.R {
		panic("row index out of range")
	}
	start := i * m.Stride
	return m.Data[start : start+m.C]
}

// FillRand fills the matrix with reproducible values in roughly (-scale/2, scale/2).
// The same seed always produces the same matrix.
func FillRand(m *Mat, seed int64, scale float32) {
	FillRandVec(m.Data, seed, scale)
}

// FillRandVec is FillRand for a plain vector.
func FillRandVec(v []float32, seed int64, scale float32) {
	rng := rand.New(rand.NewSource(seed))
	for i := range v {
		v[i] = (rng.Float32() - 0.5) * scale
	}
}
