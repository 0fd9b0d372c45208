package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	// Lets numeric tags such as gte=0 apply to money fields
	validate.RegisterCustomTypeFunc(func(v reflect.Value) interface{} {
		d, ok := v.Interface().(decimal.Decimal)
		if !ok {
			return nil
		}
		f, _ := d.Float64()
		return f
	}, decimal.Decimal{})
}

// ShapeError reports a backend row that does not match the expected DTO
type ShapeError struct {
	Target string
	Index  int
	Err    error
}

func (e *ShapeError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("unexpected %s payload: %v", e.Target, e.Err)
	}
	return fmt.Sprintf("unexpected %s row %d: %v", e.Target, e.Index, e.Err)
}

func (e *ShapeError) Unwrap() error {
	return e.Err
}

// ValidateStruct validates a struct using validation tags
func ValidateStruct(s interface{}) error {
	return validate.Struct(s)
}

// DecodeRows decodes a backend payload into validated DTOs. A single JSON
// object is treated as a one-row result and null as no rows.
func DecodeRows[T any](raw json.RawMessage) ([]T, error) {
	target := reflect.TypeOf((*T)(nil)).Elem().Name()

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return []T{}, nil
	}

	var rows []T
	switch trimmed[0] {
	case '[':
		if err := json.Unmarshal(trimmed, &rows); err != nil {
			return nil, &ShapeError{Target: target, Index: -1, Err: err}
		}
	case '{':
		var row T
		if err := json.Unmarshal(trimmed, &row); err != nil {
			return nil, &ShapeError{Target: target, Index: -1, Err: err}
		}
		rows = []T{row}
	default:
		return nil, &ShapeError{Target: target, Index: -1, Err: fmt.Errorf("expected object or array, got %.20s", trimmed)}
	}

	for i := range rows {
		if err := validate.Struct(&rows[i]); err != nil {
			return nil, &ShapeError{Target: target, Index: i, Err: err}
		}
	}
	return rows, nil
}

// DecodeOne decodes a payload expected to hold at most one row.
// It returns nil without error when the payload is empty.
func DecodeOne[T any](raw json.RawMessage) (*T, error) {
	rows, err := DecodeRows[T](raw)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// DecodeID extracts an identifier from an RPC result. Procedures return
// either a bare value, a one-element array, or a row with an id column.
func DecodeID(raw json.RawMessage, columns ...string) (string, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return "", &ShapeError{Target: "id", Index: -1, Err: fmt.Errorf("empty result")}
	}

	var value interface{}
	if err := json.Unmarshal(trimmed, &value); err != nil {
		return "", &ShapeError{Target: "id", Index: -1, Err: err}
	}

	if len(columns) == 0 {
		columns = []string{"id"}
	}
	id := extractID(value, columns)
	if id == "" {
		return "", &ShapeError{Target: "id", Index: -1, Err: fmt.Errorf("no id in %.40s", trimmed)}
	}
	return id, nil
}

func extractID(value interface{}, columns []string) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%.0f", v)
	case []interface{}:
		if len(v) == 0 {
			return ""
		}
		return extractID(v[0], columns)
	case map[string]interface{}:
		for _, col := range columns {
			if inner, ok := v[col]; ok {
				return extractID(inner, columns)
			}
		}
		// A scalar procedure called through a row-returning path
		// yields a single column named after the procedure
		if len(v) == 1 {
			for _, inner := range v {
				return extractID(inner, columns)
			}
		}
	}
	return ""
}
