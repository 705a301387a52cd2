package query

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/jrife/skv/schema"
)

// Options are the parameters of a query as a client sends them.
// Start and End hold plain field values typed by the schema.
// Limit and Reverse are checked for their kind when the query is
// created.
type Options struct {
	Start   map[string]interface{} `json:"start"`
	End     map[string]interface{} `json:"end"`
	Limit   interface{}            `json:"limit"`
	Reverse interface{}            `json:"reverse"`
}

func parseLimit(value interface{}) (int, error) {
	var limit int64

	switch v := value.(type) {
	case nil:
		return 0, nil
	case int:
		limit = int64(v)
	case int32:
		limit = int64(v)
	case int64:
		limit = v
	case float64:
		if v != math.Trunc(v) || math.IsInf(v, 0) {
			return 0, fmt.Errorf("%w: limit must be an integer, got %v", ErrTypeError, v)
		}

		limit = int64(v)
	case json.Number:
		n, err := v.Int64()

		if err != nil {
			return 0, fmt.Errorf("%w: limit must be an integer, got %s", ErrTypeError, v)
		}

		limit = n
	default:
		return 0, fmt.Errorf("%w: limit must be an integer, got %T", ErrTypeError, value)
	}

	if limit < 0 {
		return 0, fmt.Errorf("%w: limit must not be negative", schema.ErrInvalidArgument)
	}

	return int(limit), nil
}

func parseReverse(value interface{}) (bool, error) {
	switch v := value.(type) {
	case nil:
		return false, nil
	case bool:
		return v, nil
	}

	return false, fmt.Errorf("%w: reverse must be a boolean, got %T", ErrTypeError, value)
}

// bound encodes the key fields of values as a key prefix. The key
// fields present must form a prefix of the schema's key.
func bound(s *schema.Schema, values map[string]interface{}) ([]schema.FieldValue, error) {
	if len(values) == 0 {
		return nil, nil
	}

	fields, err := schema.FromValues(s, values)

	if err != nil {
		return nil, err
	}

	prefix, err := schema.KeyPrefix(schema.Record{Fields: fields}, s)

	if err != nil {
		return nil, err
	}

	present := 0

	for _, position := range s.KeyPositions() {
		if _, ok := fields[s.Fields[position].Name]; ok {
			present++
		}
	}

	if present != len(prefix) {
		return nil, fmt.Errorf("%w: bound key fields must form a prefix of the key", schema.ErrInvalidArgument)
	}

	return prefix, nil
}
