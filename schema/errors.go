package schema

import (
	"errors"
)

var (
	// ErrInvalidArgument is returned when a schema, collection, or
	// field value is malformed
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrTypeMismatch is returned when a field value does not have
	// the type declared for it
	ErrTypeMismatch = errors.New("type mismatch")
	// ErrUnknownField is returned when a record contains a field
	// that its schema does not declare
	ErrUnknownField = errors.New("unknown field")
	// ErrMissingKeyField is returned when a record lacks a partition
	// key or range key field needed to build its key
	ErrMissingKeyField = errors.New("missing key field")
)
