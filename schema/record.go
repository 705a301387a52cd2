package schema

import (
	"fmt"
)

// Record is a set of field values stored under a schema.
// A record used for a read or delete may carry only
// its key fields.
type Record struct {
	Collection    string                `json:"collection"`
	SchemaName    string                `json:"schemaName"`
	SchemaVersion int64                 `json:"schemaVersion"`
	Fields        map[string]FieldValue `json:"fields"`
}

// Values returns the plain values of the record's fields
func (record Record) Values() map[string]interface{} {
	values := make(map[string]interface{}, len(record.Fields))

	for name, field := range record.Fields {
		values[name] = field.Value
	}

	return values
}

// Validate checks every field of record against schema. Field
// values are normalized in place.
func Validate(record *Record, schema *Schema) error {
	for name, value := range record.Fields {
		i := schema.Field(name)

		if i < 0 {
			return fmt.Errorf("%w: schema %s has no field %s", ErrUnknownField, schema.Name, name)
		}

		if value.Type != schema.Fields[i].Type {
			return fmt.Errorf("%w: field %s is %s, not %s", ErrTypeMismatch, name, schema.Fields[i].Type, value.Type)
		}

		normalized, err := value.Normalize()

		if err != nil {
			return fmt.Errorf("field %s: %w", name, err)
		}

		record.Fields[name] = normalized
	}

	return nil
}

// KeyFields returns the key field values of record in key
// order. Every key field must be present.
func KeyFields(record Record, schema *Schema) ([]FieldValue, error) {
	return keyFields(record, schema, false)
}

// KeyPrefix is like KeyFields but returns the longest prefix
// of key fields present in the record
func KeyPrefix(record Record, schema *Schema) ([]FieldValue, error) {
	return keyFields(record, schema, true)
}

func keyFields(record Record, schema *Schema, partial bool) ([]FieldValue, error) {
	positions := schema.KeyPositions()
	fields := make([]FieldValue, 0, len(positions))

	for _, position := range positions {
		name := schema.Fields[position].Name
		value, ok := record.Fields[name]

		if !ok || value.Type == NullT {
			if partial {
				break
			}

			return nil, fmt.Errorf("%w: %s", ErrMissingKeyField, name)
		}

		fields = append(fields, value)
	}

	return fields, nil
}

// FromValues builds typed field values from plain values using
// the types declared by schema. nil values are skipped.
func FromValues(schema *Schema, values map[string]interface{}) (map[string]FieldValue, error) {
	fields := make(map[string]FieldValue, len(values))

	for name, value := range values {
		i := schema.Field(name)

		if i < 0 {
			return nil, fmt.Errorf("%w: schema %s has no field %s", ErrUnknownField, schema.Name, name)
		}

		if value == nil {
			continue
		}

		coerced, err := Coerce(schema.Fields[i].Type, value)

		if err != nil {
			return nil, fmt.Errorf("field %s: %w", name, err)
		}

		fields[name] = FieldValue{Type: schema.Fields[i].Type, Value: coerced}
	}

	return fields, nil
}
