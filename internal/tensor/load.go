package tensor

import (
	"fmt"
	"slices"

	"github.com/samcharles93/textcat/internal/safetensors"
)

// LoadSafetensorsMat loads a 2D matrix. When rows or cols is positive the
// stored shape must match it.
func LoadSafetensorsMat(st *safetensors.File, name string, rows, cols int) (*Mat, error) {
	data, info, err := st.ReadTensorF32(name)
	if err != nil {
		return nil, err
	}
	if len(info.Shape) != 2 {
		return nil, fmt.Errorf("%s: expected 2D tensor, got shape %v", name, info.Shape)
	}
	r, c := info.Shape[0], info.Shape[1]
	if (rows > 0 && r != rows) || (cols > 0 && c != cols) {
		return nil, fmt.Errorf("%s: shape %v, want [%d %d]", name, info.Shape, rows, cols)
	}
	if r*c != len(data) {
		return nil, fmt.Errorf("%s: size mismatch", name)
	}
	return &Mat{R: r, C: c, Stride: c, Data: data}, nil
}

// LoadSafetensorsVec loads a 1D vector. When n is positive the length must match.
func LoadSafetensorsVec(st *safetensors.File, name string, n int) ([]float32, error) {
	data, info, err := st.ReadTensorF32(name)
	if err != nil {
		return nil, err
	}
	if len(info.Shape) != 1 {
		return nil, fmt.Errorf("%s: expected 1D tensor, got shape %v", name, info.Shape)
	}
	if n > 0 && !slices.Equal(info.Shape, []int{n}) {
		return nil, fmt.Errorf("%s: length %d, want %d", name, info.Shape[0], n)
	}
	return data, nil
}
