package safetensors

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"slices"

	"github.com/goccy/go-json"
)

// Writer collects float32 tensors and serializes them as an F32 checkpoint.
// It is used to produce test and toy checkpoints; real checkpoints come
// from training tooling.
type Writer struct {
	tensors  map[string]pending
	metadata map[string]string
}

type pending struct {
	shape []int
	data  []float32
}

func NewWriter() *Writer {
	return &Writer{tensors: make(map[string]pending)}
}

// Add registers a tensor. The data length must match the shape.
func (w *Writer) Add(name string, shape []int, data []float32) error {
	n, err := numElements(shape)
	if err != nil {
		return fmt.Errorf("tensor %s: %w", name, err)
	}
	if n != len(data) {
		return fmt.Errorf("tensor %s: shape %v needs %d values, got %d", name, shape, n, len(data))
	}
	if _, dup := w.tensors[name]; dup {
		return fmt.Errorf("tensor %s: already added", name)
	}
	w.tensors[name] = pending{shape: slices.Clone(shape), data: data}
	return nil
}

// SetMetadata records a string entry in the __metadata__ header block.
func (w *Writer) SetMetadata(key, value string) {
	if w.metadata == nil {
		w.metadata = make(map[string]string)
	}
	w.metadata[key] = value
}

// WriteFile writes all tensors to path, ordered by name.
func (w *Writer) WriteFile(path string) error {
	names := make([]string, 0, len(w.tensors))
	for name := range w.tensors {
		names = append(names, name)
	}
	slices.Sort(names)

	header := make(map[string]any, len(names)+1)
	if len(w.metadata) > 0 {
		header["__metadata__"] = w.metadata
	}
	var offset int64
	for _, name := range names {
		t := w.tensors[name]
		size := int64(len(t.data)) * 4
		header[name] = tensorHeader{
			DType:       "F32",
			Shape:       t.shape,
			DataOffsets: []int64{offset, offset + size},
		}
		offset += size
	}
	headerBytes, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("marshal header: %w", err)
	}
	// Pad the header with spaces so tensor data starts 8-byte aligned.
	for (8+len(headerBytes))%8 != 0 {
		headerBytes = append(headerBytes, ' ')
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(f)

	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(headerBytes)))
	if _, err := bw.Write(lenBuf[:]); err != nil {
		_ = f.Close()
		return err
	}
	if _, err := bw.Write(headerBytes); err != nil {
		_ = f.Close()
		return err
	}
	var word [4]byte
	for _, name := range names {
		for _, v := range w.tensors[name].data {
			binary.LittleEndian.PutUint32(word[:], math.Float32bits(v))
			if _, err := bw.Write(word[:]); err != nil {
				_ = f.Close()
				return err
			}
		}
	}
	if err := bw.Flush(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
