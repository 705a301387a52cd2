package schema

import (
	"encoding/json"
	"fmt"
	"time"
)

// HashScheme decides how keys are assigned to partitions
type HashScheme string

const (
	HashCRC32C HashScheme = "HashCRC32C"
	HashRange  HashScheme = "Range"
)

// StorageDriver names the engine a collection is stored with
type StorageDriver string

const (
	K23SI StorageDriver = "K23SI"
)

// CollectionCapacity describes the expected size of a collection
type CollectionCapacity struct {
	DataCapacityMegaBytes uint64 `json:"dataCapacityMegaBytes"`
	ReadIOPs              uint64 `json:"readIOPs"`
	WriteIOPs             uint64 `json:"writeIOPs"`
	MinNodes              uint32 `json:"minNodes"`
}

// CollectionMetadata describes a collection. RetentionPeriod is
// encoded in JSON as an integer number of microseconds.
type CollectionMetadata struct {
	Name            string             `json:"name"`
	HashScheme      HashScheme         `json:"hashScheme"`
	StorageDriver   StorageDriver      `json:"storageDriver"`
	Capacity        CollectionCapacity `json:"capacity"`
	RetentionPeriod time.Duration      `json:"retentionPeriod"`
}

type collectionMetadataJSON struct {
	Name            string             `json:"name"`
	HashScheme      HashScheme         `json:"hashScheme"`
	StorageDriver   StorageDriver      `json:"storageDriver"`
	Capacity        CollectionCapacity `json:"capacity"`
	RetentionPeriod int64              `json:"retentionPeriod"`
}

// MarshalJSON implements json.Marshaler
func (metadata CollectionMetadata) MarshalJSON() ([]byte, error) {
	return json.Marshal(collectionMetadataJSON{
		Name:            metadata.Name,
		HashScheme:      metadata.HashScheme,
		StorageDriver:   metadata.StorageDriver,
		Capacity:        metadata.Capacity,
		RetentionPeriod: metadata.RetentionPeriod.Microseconds(),
	})
}

// UnmarshalJSON implements json.Unmarshaler
func (metadata *CollectionMetadata) UnmarshalJSON(data []byte) error {
	var raw collectionMetadataJSON

	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*metadata = CollectionMetadata{
		Name:            raw.Name,
		HashScheme:      raw.HashScheme,
		StorageDriver:   raw.StorageDriver,
		Capacity:        raw.Capacity,
		RetentionPeriod: time.Duration(raw.RetentionPeriod) * time.Microsecond,
	}

	return nil
}

// Validate fills in defaults and checks the metadata
func (metadata *CollectionMetadata) Validate() error {
	if metadata.Name == "" {
		return fmt.Errorf("%w: collection name must not be empty", ErrInvalidArgument)
	}

	switch metadata.HashScheme {
	case "":
		metadata.HashScheme = HashCRC32C
	case HashCRC32C, HashRange:
	default:
		return fmt.Errorf("%w: unknown hash scheme %q", ErrInvalidArgument, metadata.HashScheme)
	}

	switch metadata.StorageDriver {
	case "":
		metadata.StorageDriver = K23SI
	case K23SI:
	default:
		return fmt.Errorf("%w: unknown storage driver %q", ErrInvalidArgument, metadata.StorageDriver)
	}

	if metadata.RetentionPeriod < 0 {
		return fmt.Errorf("%w: retention period must not be negative", ErrInvalidArgument)
	}

	return nil
}
