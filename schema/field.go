package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// FieldType is the type tag of a field. The numeric values
// are stable and are part of the key encoding.
type FieldType int

const (
	NullT FieldType = iota
	StringT
	Int16T
	Int32T
	Int64T
	FloatT
	DoubleT
	BoolT
)

var fieldTypeNames = map[FieldType]string{
	NullT:   "NULL_T",
	StringT: "STRING",
	Int16T:  "INT16T",
	Int32T:  "INT32T",
	Int64T:  "INT64T",
	FloatT:  "FLOAT",
	DoubleT: "DOUBLE",
	BoolT:   "BOOL",
}

// String returns the name of the type
func (t FieldType) String() string {
	if name, ok := fieldTypeNames[t]; ok {
		return name
	}

	return fmt.Sprintf("FieldType(%d)", int(t))
}

// Valid returns true if t is a known type
func (t FieldType) Valid() bool {
	_, ok := fieldTypeNames[t]

	return ok
}

// Numeric returns true for the integer and floating point types
func (t FieldType) Numeric() bool {
	return t >= Int16T && t <= DoubleT
}

// KeyEncodable returns true if values of this type
// may be used as partition key or range key fields
func (t FieldType) KeyEncodable() bool {
	return t.Valid() && t != NullT
}

// MarshalText implements encoding.TextMarshaler
func (t FieldType) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: unknown field type %d", ErrInvalidArgument, int(t))
	}

	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (t *FieldType) UnmarshalText(text []byte) error {
	for fieldType, name := range fieldTypeNames {
		if name == string(text) {
			*t = fieldType

			return nil
		}
	}

	return fmt.Errorf("%w: unknown field type %q", ErrInvalidArgument, text)
}

// FieldValue is a typed value. Value holds the canonical
// Go representation of the type:
//
//	NULL_T: nil
//	STRING: string
//	INT16T: int16
//	INT32T: int32
//	INT64T: int64
//	FLOAT:  float32
//	DOUBLE: float64
//	BOOL:   bool
type FieldValue struct {
	Type  FieldType   `json:"type"`
	Value interface{} `json:"value"`
}

// Null returns a NULL_T value
func Null() FieldValue { return FieldValue{Type: NullT} }

// String returns a STRING value
func String(v string) FieldValue { return FieldValue{Type: StringT, Value: v} }

// Int16 returns an INT16T value
func Int16(v int16) FieldValue { return FieldValue{Type: Int16T, Value: v} }

// Int32 returns an INT32T value
func Int32(v int32) FieldValue { return FieldValue{Type: Int32T, Value: v} }

// Int64 returns an INT64T value
func Int64(v int64) FieldValue { return FieldValue{Type: Int64T, Value: v} }

// Float returns a FLOAT value
func Float(v float32) FieldValue { return FieldValue{Type: FloatT, Value: v} }

// Double returns a DOUBLE value
func Double(v float64) FieldValue { return FieldValue{Type: DoubleT, Value: v} }

// Bool returns a BOOL value
func Bool(v bool) FieldValue { return FieldValue{Type: BoolT, Value: v} }

// Normalize returns a copy of v whose Value has the canonical
// Go representation for v.Type. It returns ErrTypeMismatch if
// the value cannot represent the declared type exactly.
func (v FieldValue) Normalize() (FieldValue, error) {
	value, err := Coerce(v.Type, v.Value)

	if err != nil {
		return FieldValue{}, err
	}

	return FieldValue{Type: v.Type, Value: value}, nil
}

// UnmarshalJSON implements json.Unmarshaler. The decoded
// value is normalized to the declared type.
func (v *FieldValue) UnmarshalJSON(data []byte) error {
	var raw struct {
		Type  FieldType       `json:"type"`
		Value json.RawMessage `json:"value"`
	}

	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var value interface{}

	if len(raw.Value) > 0 {
		decoder := json.NewDecoder(bytes.NewReader(raw.Value))
		decoder.UseNumber()

		if err := decoder.Decode(&value); err != nil {
			return err
		}
	}

	normalized, err := Coerce(raw.Type, value)

	if err != nil {
		return err
	}

	*v = FieldValue{Type: raw.Type, Value: normalized}

	return nil
}

// Coerce converts value to the canonical Go representation
// of t. Numbers of any Go numeric kind and json.Number are
// accepted for numeric types as long as they are exactly
// representable. Anything else returns ErrTypeMismatch.
func Coerce(t FieldType, value interface{}) (interface{}, error) {
	switch t {
	case NullT:
		if value != nil {
			return nil, mismatch(t, value)
		}

		return nil, nil
	case StringT:
		switch v := value.(type) {
		case string:
			return v, nil
		case []byte:
			return string(v), nil
		}
	case BoolT:
		if v, ok := value.(bool); ok {
			return v, nil
		}
	case Int16T:
		if n, ok := toInt(value); ok && n >= math.MinInt16 && n <= math.MaxInt16 {
			return int16(n), nil
		}
	case Int32T:
		if n, ok := toInt(value); ok && n >= math.MinInt32 && n <= math.MaxInt32 {
			return int32(n), nil
		}
	case Int64T:
		if n, ok := toInt(value); ok {
			return n, nil
		}
	case FloatT:
		if f, ok := toFloat(value); ok && (math.IsInf(f, 0) || math.IsNaN(f) || math.Abs(f) <= math.MaxFloat32) {
			return float32(f), nil
		}
	case DoubleT:
		if f, ok := toFloat(value); ok {
			return f, nil
		}
	default:
		return nil, fmt.Errorf("%w: unknown field type %d", ErrInvalidArgument, int(t))
	}

	return nil, mismatch(t, value)
}

func mismatch(t FieldType, value interface{}) error {
	return fmt.Errorf("%w: %T is not a valid %s value", ErrTypeMismatch, value, t)
}

func toInt(value interface{}) (int64, bool) {
	switch v := value.(type) {
	case int:
		return int64(v), true
	case int8:
		return int64(v), true
	case int16:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case uint8:
		return int64(v), true
	case uint16:
		return int64(v), true
	case uint32:
		return int64(v), true
	case uint:
		if uint64(v) > math.MaxInt64 {
			return 0, false
		}

		return int64(v), true
	case uint64:
		if v > math.MaxInt64 {
			return 0, false
		}

		return int64(v), true
	case float64:
		if v != math.Trunc(v) || v < math.MinInt64 || v >= math.MaxInt64 {
			return 0, false
		}

		return int64(v), true
	case json.Number:
		n, err := strconv.ParseInt(string(v), 10, 64)

		if err != nil {
			f, err := v.Float64()

			if err != nil {
				return 0, false
			}

			return toInt(f)
		}

		return n, true
	}

	return 0, false
}

func toFloat(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case float32:
		return float64(v), true
	case float64:
		return v, true
	case json.Number:
		f, err := v.Float64()

		if err != nil {
			return 0, false
		}

		return f, true
	}

	if n, ok := toInt(value); ok {
		return float64(n), true
	}

	return 0, false
}
