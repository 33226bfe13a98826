package dataset

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-json"
)

// WriteJSONL writes one JSON document per line.
func WriteJSONL[T any](w io.Writer, items []T) error {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	for i, it := range items {
		if err := enc.Encode(it); err != nil {
			return fmt.Errorf("encode item %d: %w", i, err)
		}
	}
	return bw.Flush()
}

func WriteJSONLFile[T any](path string, items []T) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteJSONL(f, items); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// ReadJSONL decodes every non-empty line of r.
func ReadJSONL[T any](r io.Reader) ([]T, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16<<20)
	var out []T
	line := 0
	for sc.Scan() {
		line++
		b := sc.Bytes()
		if len(b) == 0 {
			continue
		}
		var v T
		if err := json.Unmarshal(b, &v); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, v)
	}
	return out, sc.Err()
}
