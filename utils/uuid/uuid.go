package uuid

import (
	google_uuid "github.com/google/uuid"
)

// MustUUID returns a new random UUID string. It panics only
// if the system's entropy source fails.
func MustUUID() string {
	return google_uuid.New().String()
}

// Valid returns true if s parses as a UUID
func Valid(s string) bool {
	_, err := google_uuid.Parse(s)

	return err == nil
}
