// Package composite encodes ordered lists of typed field values
// into byte strings whose lexicographical order matches the
// natural order of the value tuples.
//
// Each field is written as
//
//	tag [sub-tag] escaped(payload) 0x00 0x01
//
// 0x00 bytes inside a payload are written as 0x00 0xff so that
// the terminator can never appear inside a payload. Numeric types
// share one tag and are told apart by a sub-tag equal to their
// FieldType. Integers are written big-endian with the sign bit
// flipped. Floating point values are written so that their bytes
// sort like the numbers they represent.
package composite

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/jrife/skv/schema"
	"github.com/jrife/skv/storage/kv/keys"
)

const (
	tagString  byte = 0x01
	tagNumeric byte = 0x02
	tagBool    byte = 0x03

	terminator byte = 0x00
	separator  byte = 0x01
	escape     byte = 0xff
)

// ErrMalformedKey is returned when decoding bytes that
// were not produced by Encode
var ErrMalformedKey = errors.New("malformed key")

// Encode encodes the fields in order. Encoding fewer fields than
// a schema's full key yields a prefix of every full key that
// starts with the same values.
func Encode(fields []schema.FieldValue) (keys.Key, error) {
	key := keys.Key{}

	for i, field := range fields {
		var err error

		if key, err = appendField(key, field); err != nil {
			return nil, fmt.Errorf("field %d: %w", i, err)
		}
	}

	return key, nil
}

// EncodeFor encodes values as the leading key fields of s. It
// returns schema.ErrTypeMismatch if a value's type differs from
// the type s declares for that key position.
func EncodeFor(s *schema.Schema, values []schema.FieldValue) (keys.Key, error) {
	positions := s.KeyPositions()

	if len(values) > len(positions) {
		return nil, fmt.Errorf("%w: schema %s has %d key fields, got %d values", schema.ErrInvalidArgument, s.Name, len(positions), len(values))
	}

	for i, value := range values {
		field := s.Fields[positions[i]]

		if value.Type != field.Type {
			return nil, fmt.Errorf("%w: key field %s is %s, not %s", schema.ErrTypeMismatch, field.Name, field.Type, value.Type)
		}
	}

	return Encode(values)
}

func appendField(key keys.Key, field schema.FieldValue) (keys.Key, error) {
	field, err := field.Normalize()

	if err != nil {
		return nil, err
	}

	var payload []byte

	switch field.Type {
	case schema.StringT:
		key = append(key, tagString)
		payload = []byte(field.Value.(string))
	case schema.BoolT:
		key = append(key, tagBool)

		if field.Value.(bool) {
			payload = []byte{1}
		} else {
			payload = []byte{0}
		}
	case schema.Int16T:
		key = append(key, tagNumeric, byte(schema.Int16T))
		payload = make([]byte, 2)
		binary.BigEndian.PutUint16(payload, uint16(field.Value.(int16))^(1<<15))
	case schema.Int32T:
		key = append(key, tagNumeric, byte(schema.Int32T))
		payload = make([]byte, 4)
		binary.BigEndian.PutUint32(payload, uint32(field.Value.(int32))^(1<<31))
	case schema.Int64T:
		key = append(key, tagNumeric, byte(schema.Int64T))
		payload = make([]byte, 8)
		binary.BigEndian.PutUint64(payload, uint64(field.Value.(int64))^(1<<63))
	case schema.FloatT:
		f := field.Value.(float32)

		if math.IsNaN(float64(f)) {
			return nil, fmt.Errorf("%w: NaN cannot be part of a key", schema.ErrInvalidArgument)
		}

		// -0 and +0 name the same key
		if f == 0 {
			f = 0
		}

		key = append(key, tagNumeric, byte(schema.FloatT))
		payload = make([]byte, 4)
		binary.BigEndian.PutUint32(payload, orderedFloat32(math.Float32bits(f)))
	case schema.DoubleT:
		f := field.Value.(float64)

		if math.IsNaN(f) {
			return nil, fmt.Errorf("%w: NaN cannot be part of a key", schema.ErrInvalidArgument)
		}

		if f == 0 {
			f = 0
		}

		key = append(key, tagNumeric, byte(schema.DoubleT))
		payload = make([]byte, 8)
		binary.BigEndian.PutUint64(payload, orderedFloat64(math.Float64bits(f)))
	default:
		return nil, fmt.Errorf("%w: %s values cannot be part of a key", schema.ErrInvalidArgument, field.Type)
	}

	for _, b := range payload {
		key = append(key, b)

		if b == terminator {
			key = append(key, escape)
		}
	}

	return append(key, terminator, separator), nil
}

func orderedFloat32(bits uint32) uint32 {
	if bits&(1<<31) != 0 {
		return ^bits
	}

	return bits | (1 << 31)
}

func orderedFloat64(bits uint64) uint64 {
	if bits&(1<<63) != 0 {
		return ^bits
	}

	return bits | (1 << 63)
}

func originalFloat32(bits uint32) uint32 {
	if bits&(1<<31) != 0 {
		return bits &^ (1 << 31)
	}

	return ^bits
}

func originalFloat64(bits uint64) uint64 {
	if bits&(1<<63) != 0 {
		return bits &^ (1 << 63)
	}

	return ^bits
}

// Decode decodes every field of key.
// Encode(Decode(key)) == key for any key produced by Encode.
func Decode(key keys.Key) ([]schema.FieldValue, error) {
	fields := []schema.FieldValue{}

	for len(key) > 0 {
		field, rest, err := decodeField(key)

		if err != nil {
			return nil, fmt.Errorf("field %d: %w", len(fields), err)
		}

		fields = append(fields, field)
		key = rest
	}

	return fields, nil
}

func decodeField(key keys.Key) (schema.FieldValue, keys.Key, error) {
	tag := key[0]
	key = key[1:]
	fieldType := schema.StringT

	switch tag {
	case tagString:
	case tagBool:
		fieldType = schema.BoolT
	case tagNumeric:
		if len(key) == 0 {
			return schema.FieldValue{}, nil, fmt.Errorf("%w: missing numeric sub-tag", ErrMalformedKey)
		}

		fieldType = schema.FieldType(key[0])
		key = key[1:]

		if !fieldType.Numeric() {
			return schema.FieldValue{}, nil, fmt.Errorf("%w: unknown numeric sub-tag 0x%02x", ErrMalformedKey, byte(fieldType))
		}
	default:
		return schema.FieldValue{}, nil, fmt.Errorf("%w: unknown tag 0x%02x", ErrMalformedKey, tag)
	}

	payload, rest, err := unescape(key)

	if err != nil {
		return schema.FieldValue{}, nil, err
	}

	value, err := decodePayload(fieldType, payload)

	if err != nil {
		return schema.FieldValue{}, nil, err
	}

	return schema.FieldValue{Type: fieldType, Value: value}, rest, nil
}

// unescape reads a payload up to and including its terminator
// and separator
func unescape(key keys.Key) ([]byte, keys.Key, error) {
	payload := []byte{}

	for i := 0; i < len(key); i++ {
		if key[i] != terminator {
			payload = append(payload, key[i])

			continue
		}

		if i+1 >= len(key) {
			break
		}

		switch key[i+1] {
		case escape:
			payload = append(payload, terminator)
			i++
		case separator:
			return payload, key[i+2:], nil
		default:
			return nil, nil, fmt.Errorf("%w: unexpected byte 0x%02x after 0x00", ErrMalformedKey, key[i+1])
		}
	}

	return nil, nil, fmt.Errorf("%w: unterminated field", ErrMalformedKey)
}

func decodePayload(fieldType schema.FieldType, payload []byte) (interface{}, error) {
	width := map[schema.FieldType]int{
		schema.BoolT:   1,
		schema.Int16T:  2,
		schema.Int32T:  4,
		schema.Int64T:  8,
		schema.FloatT:  4,
		schema.DoubleT: 8,
	}

	if w, ok := width[fieldType]; ok && len(payload) != w {
		return nil, fmt.Errorf("%w: %s payload must be %d bytes, got %d", ErrMalformedKey, fieldType, w, len(payload))
	}

	switch fieldType {
	case schema.StringT:
		return string(payload), nil
	case schema.BoolT:
		if payload[0] > 1 {
			return nil, fmt.Errorf("%w: invalid bool 0x%02x", ErrMalformedKey, payload[0])
		}

		return payload[0] == 1, nil
	case schema.Int16T:
		return int16(binary.BigEndian.Uint16(payload) ^ (1 << 15)), nil
	case schema.Int32T:
		return int32(binary.BigEndian.Uint32(payload) ^ (1 << 31)), nil
	case schema.Int64T:
		return int64(binary.BigEndian.Uint64(payload) ^ (1 << 63)), nil
	case schema.FloatT:
		return math.Float32frombits(originalFloat32(binary.BigEndian.Uint32(payload))), nil
	default:
		return math.Float64frombits(originalFloat64(binary.BigEndian.Uint64(payload))), nil
	}
}
