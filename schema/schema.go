package schema

import (
	"fmt"
)

// SchemaField declares one field of a schema
type SchemaField struct {
	Type FieldType `json:"type"`
	Name string    `json:"name"`
}

// Schema describes the fields of the records stored under
// one (collection, name, version). Keys are built from the
// partition key fields then the range key fields, each list
// holding indices into Fields.
type Schema struct {
	Name               string        `json:"name"`
	Version            int64         `json:"version"`
	Fields             []SchemaField `json:"fields"`
	PartitionKeyFields []int         `json:"partitionKeyFields"`
	RangeKeyFields     []int         `json:"rangeKeyFields"`
}

// Validate checks the structural invariants of the schema
func (schema *Schema) Validate() error {
	if schema.Name == "" {
		return fmt.Errorf("%w: schema name must not be empty", ErrInvalidArgument)
	}

	if len(schema.Fields) == 0 {
		return fmt.Errorf("%w: schema %s has no fields", ErrInvalidArgument, schema.Name)
	}

	names := make(map[string]bool, len(schema.Fields))

	for _, field := range schema.Fields {
		if field.Name == "" {
			return fmt.Errorf("%w: schema %s has a field with no name", ErrInvalidArgument, schema.Name)
		}

		if names[field.Name] {
			return fmt.Errorf("%w: schema %s declares field %s more than once", ErrInvalidArgument, schema.Name, field.Name)
		}

		if !field.Type.Valid() {
			return fmt.Errorf("%w: field %s has unknown type %d", ErrInvalidArgument, field.Name, int(field.Type))
		}

		names[field.Name] = true
	}

	if len(schema.PartitionKeyFields) == 0 {
		return fmt.Errorf("%w: schema %s has no partition key fields", ErrInvalidArgument, schema.Name)
	}

	seen := make(map[int]bool, len(schema.PartitionKeyFields)+len(schema.RangeKeyFields))

	for _, position := range schema.KeyPositions() {
		if position < 0 || position >= len(schema.Fields) {
			return fmt.Errorf("%w: key field position %d is out of range", ErrInvalidArgument, position)
		}

		if seen[position] {
			return fmt.Errorf("%w: field %s is used as a key field more than once", ErrInvalidArgument, schema.Fields[position].Name)
		}

		if !schema.Fields[position].Type.KeyEncodable() {
			return fmt.Errorf("%w: field %s of type %s cannot be a key field", ErrInvalidArgument, schema.Fields[position].Name, schema.Fields[position].Type)
		}

		seen[position] = true
	}

	return nil
}

// KeyPositions returns the partition key positions
// followed by the range key positions
func (schema *Schema) KeyPositions() []int {
	positions := make([]int, 0, len(schema.PartitionKeyFields)+len(schema.RangeKeyFields))
	positions = append(positions, schema.PartitionKeyFields...)
	positions = append(positions, schema.RangeKeyFields...)

	return positions
}

// Field returns the index of the field with this name
// or -1 if the schema has no such field
func (schema *Schema) Field(name string) int {
	for i, field := range schema.Fields {
		if field.Name == name {
			return i
		}
	}

	return -1
}
