// Package dataset reads labeled tables, validates them against schemas and
// prepares train/validation splits.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ErrSchema wraps every schema validation failure.
var ErrSchema = errors.New("schema validation failed")

// Table is a header plus string cells. Rows are padded to the header width;
// rows with non-empty cells past the header are rejected.
type Table struct {
	Columns []string
	Rows    [][]string
}

// ReadTable reads a .csv, .tsv or .xlsx file. For spreadsheets the first
// sheet is used.
func ReadTable(path string) (*Table, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return ReadXLSX(path, "")
	case ".tsv":
		return readDelimited(path, '\t')
	default:
		return readDelimited(path, ',')
	}
}

func readDelimited(path string, comma rune) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	t, err := ReadCSV(f, comma)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

func ReadCSV(r io.Reader, comma rune) (*Table, error) {
	cr := csv.NewReader(r)
	cr.Comma = comma
	cr.FieldsPerRecord = -1
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	return newTable(records)
}

// ReadXLSX reads sheet (the first sheet when empty) from a workbook.
func ReadXLSX(path, sheet string) (*Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("%s: workbook has no sheets", path)
		}
		sheet = sheets[0]
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("%s: read sheet %q: %w", path, sheet, err)
	}
	t, err := newTable(rows)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

func newTable(records [][]string) (*Table, error) {
	if len(records) == 0 {
		return nil, errors.New("table has no header row")
	}
	header := make([]string, len(records[0]))
	for i, h := range records[0] {
		header[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}
	t := &Table{Columns: header, Rows: make([][]string, 0, len(records)-1)}
	for i, rec := range records[1:] {
		if isBlankRow(rec) {
			continue
		}
		if len(rec) > len(header) && !isBlankRow(rec[len(header):]) {
			return nil, fmt.Errorf("%w: row %d has %d cells, header has %d",
				ErrSchema, i+2, len(rec), len(header))
		}
		row := make([]string, len(header))
		copy(row, rec)
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

func isBlankRow(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// Column returns the index of name.
func (t *Table) Column(name string) (int, bool) {
	for i, c := range t.Columns {
		if c == name {
			return i, true
		}
	}
	return -1, false
}

// Values returns the cells of one column.
func (t *Table) Values(name string) ([]string, error) {
	idx, ok := t.Column(name)
	if !ok {
		return nil, fmt.Errorf("column %q not found (have %s)", name, strings.Join(t.Columns, ", "))
	}
	out := make([]string, len(t.Rows))
	for i, row := range t.Rows {
		out[i] = row[idx]
	}
	return out, nil
}

var nullValues = map[string]bool{
	"": true, "NA": true, "N/A": true, "n/a": true, "NaN": true, "nan": true,
	"null": true, "NULL": true, "None": true, "#N/A": true, "<NA>": true,
}

// IsNull reports whether a cell counts as missing.
func IsNull(v string) bool {
	return nullValues[strings.TrimSpace(v)]
}
