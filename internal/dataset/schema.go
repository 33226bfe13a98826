package dataset

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/kaptinlin/jsonschema"
	"gopkg.in/yaml.v3"
)

// Column type names accepted in TableSchema.ColumnTypes.
const (
	TypeInt64   = "int64"
	TypeFloat64 = "float64"
	TypeString  = "string"
	TypeBool    = "bool"
)

// maxIssuesPerColumn bounds how many bad cells are reported per column.
const maxIssuesPerColumn = 5

// TableSchema describes the shape a tabular dataset must have.
type TableSchema struct {
	RequiredColumns []string          `yaml:"required_columns"`
	ColumnTypes     map[string]string `yaml:"column_types"`
	NonNullColumns  []string          `yaml:"non_null_columns"`
}

func LoadTableSchema(path string) (TableSchema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return TableSchema{}, err
	}
	var s TableSchema
	if err := yaml.Unmarshal(data, &s); err != nil {
		return TableSchema{}, fmt.Errorf("parse table schema %s: %w", path, err)
	}
	return s, nil
}

// Validate checks t against s and reports every issue found, joined and
// wrapped in ErrSchema.
func (s TableSchema) Validate(t *Table) error {
	var errs []error
	for _, col := range s.RequiredColumns {
		if _, ok := t.Column(col); !ok {
			errs = append(errs, fmt.Errorf("missing required column %q", col))
		}
	}

	cols := make([]string, 0, len(s.ColumnTypes))
	for col := range s.ColumnTypes {
		cols = append(cols, col)
	}
	slices.Sort(cols)
	for _, col := range cols {
		typ := s.ColumnTypes[col]
		check, ok := typeCheckers[typ]
		if !ok {
			errs = append(errs, fmt.Errorf("column %q: unknown type %q", col, typ))
			continue
		}
		idx, ok := t.Column(col)
		if !ok {
			continue
		}
		bad := 0
		for r, row := range t.Rows {
			v := strings.TrimSpace(row[idx])
			if IsNull(v) || check(v) {
				continue
			}
			bad++
			if bad <= maxIssuesPerColumn {
				errs = append(errs, fmt.Errorf("column %q row %d: %q is not %s", col, r+1, v, typ))
			}
		}
		if bad > maxIssuesPerColumn {
			errs = append(errs, fmt.Errorf("column %q: %d more values are not %s", col, bad-maxIssuesPerColumn, typ))
		}
	}

	for _, col := range s.NonNullColumns {
		idx, ok := t.Column(col)
		if !ok {
			if !slices.Contains(s.RequiredColumns, col) {
				errs = append(errs, fmt.Errorf("missing non-null column %q", col))
			}
			continue
		}
		nulls := 0
		for _, row := range t.Rows {
			if IsNull(row[idx]) {
				nulls++
			}
		}
		if nulls > 0 {
			errs = append(errs, fmt.Errorf("column %q has %d null values", col, nulls))
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrSchema, errors.Join(errs...))
}

var typeCheckers = map[string]func(string) bool{
	TypeInt64: func(v string) bool {
		_, err := strconv.ParseInt(v, 10, 64)
		return err == nil
	},
	TypeFloat64: func(v string) bool {
		_, err := strconv.ParseFloat(v, 64)
		return err == nil
	},
	TypeBool: func(v string) bool {
		_, err := strconv.ParseBool(v)
		return err == nil
	},
	TypeString: func(string) bool { return true },
}

// JSONSchema is a compiled JSON Schema document.
type JSONSchema struct {
	schema *jsonschema.Schema
}

func CompileJSONSchema(data []byte) (*JSONSchema, error) {
	schema, err := jsonschema.NewCompiler().Compile(data)
	if err != nil {
		return nil, fmt.Errorf("compile json schema: %w", err)
	}
	return &JSONSchema{schema: schema}, nil
}

func LoadJSONSchema(path string) (*JSONSchema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	s, err := CompileJSONSchema(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// ValidateDocument decodes doc and validates it. Decode failures and schema
// violations both wrap ErrSchema.
func (s *JSONSchema) ValidateDocument(doc []byte) error {
	var v any
	if err := json.Unmarshal(doc, &v); err != nil {
		return fmt.Errorf("%w: invalid JSON: %w", ErrSchema, err)
	}
	return s.Validate(v)
}

func (s *JSONSchema) Validate(v any) error {
	result := s.schema.Validate(v)
	if result.IsValid() {
		return nil
	}
	keys := make([]string, 0, len(result.Errors))
	for k := range result.Errors {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	errs := make([]error, 0, len(keys))
	for _, k := range keys {
		errs = append(errs, fmt.Errorf("%s: %s", k, result.Errors[k].Message))
	}
	if len(errs) == 0 {
		errs = append(errs, errors.New("document does not match schema"))
	}
	return fmt.Errorf("%w: %w", ErrSchema, errors.Join(errs...))
}
