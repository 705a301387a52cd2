// Package registry stores collection metadata and the schemas
// registered under each collection. Entries are immutable once
// created and persist in their own kv store.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"
	"sort"

	"github.com/jrife/skv/schema"
	"github.com/jrife/skv/storage/kv"
	"github.com/jrife/skv/storage/kv/keys"
	"github.com/jrife/skv/storage/kv/keys/composite"
	"github.com/jrife/skv/utils/log"
	"github.com/zhangyunhao116/skipmap"
	"go.uber.org/zap"
)

var (
	// ErrNotFound is returned when a collection or schema does not exist
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when creating a collection or schema
	// that already exists
	ErrAlreadyExists = errors.New("already exists")
)

var (
	collectionsPrefix = []byte{'c'}
	schemasPrefix     = []byte{'s'}
	crc32c            = crc32.MakeTable(crc32.Castagnoli)
)

// Collection is a registered collection
type Collection struct {
	Metadata schema.CollectionMetadata `json:"metadata"`
	// RangeEnds are the exclusive end keys of the partitions of a
	// Range collection in ascending order. The last one is empty
	// and stands for the end of the key space.
	RangeEnds []keys.Key `json:"rangeEnds"`
}

// Partition describes one partition of a collection
type Partition struct {
	Index int
	Start keys.Key
	End   keys.Key
}

// Config configures a Registry
type Config struct {
	Store  kv.Store
	Logger *zap.Logger
}

// Registry resolves collections and schemas
type Registry struct {
	store   kv.Store
	logger  *zap.Logger
	schemas *skipmap.OrderedMap[string, *schema.Schema]
}

// New creates a registry whose entries live in config.Store
func New(config Config) (*Registry, error) {
	if config.Logger == nil {
		config.Logger = zap.L()
	}

	if err := config.Store.Create(); err != nil {
		return nil, fmt.Errorf("could not ensure registry store exists: %w", err)
	}

	return &Registry{
		store:   config.Store,
		logger:  config.Logger,
		schemas: skipmap.New[string, *schema.Schema](),
	}, nil
}

func schemaKey(collection string, name string, version int64) (keys.Key, error) {
	return composite.Encode([]schema.FieldValue{schema.String(collection), schema.String(name), schema.Int64(version)})
}

func schemaVersionsPrefix(collection string, name string) (keys.Key, error) {
	return composite.Encode([]schema.FieldValue{schema.String(collection), schema.String(name)})
}

func (registry *Registry) update(fn func(txn kv.Transaction) error) error {
	txn, err := registry.store.Begin(true)

	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}

	defer txn.Rollback()

	if err := fn(txn); err != nil {
		return err
	}

	if err := txn.Commit(); err != nil {
		return fmt.Errorf("could not commit transaction: %w", err)
	}

	return nil
}

func (registry *Registry) view(fn func(txn kv.Transaction) error) error {
	txn, err := registry.store.Begin(false)

	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}

	defer txn.Rollback()

	return fn(txn)
}

// CreateCollection registers a collection. rangeEnds are printable
// keys and only apply to collections using the Range hash scheme.
func (registry *Registry) CreateCollection(ctx context.Context, metadata schema.CollectionMetadata, rangeEnds []string) error {
	logger := log.Operation(ctx, registry.logger, "CreateCollection").With(zap.String("collection", metadata.Name))

	logger.Debug("start")
	defer logger.Debug("return")

	if err := metadata.Validate(); err != nil {
		return err
	}

	collection := Collection{Metadata: metadata, RangeEnds: []keys.Key{}}

	if metadata.HashScheme == schema.HashRange {
		ends, err := parseRangeEnds(rangeEnds)

		if err != nil {
			return err
		}

		collection.RangeEnds = ends
	} else if len(rangeEnds) > 0 {
		return fmt.Errorf("%w: range ends are only allowed for %s collections", schema.ErrInvalidArgument, schema.HashRange)
	}

	encoded, err := json.Marshal(collection)

	if err != nil {
		return fmt.Errorf("could not marshal collection: %w", err)
	}

	return registry.update(func(txn kv.Transaction) error {
		collections := kv.NamespaceMap(txn, collectionsPrefix)
		existing, err := collections.Get([]byte(metadata.Name))

		if err != nil {
			return fmt.Errorf("could not read collection: %w", err)
		}

		if existing != nil {
			return fmt.Errorf("%w: collection %s", ErrAlreadyExists, metadata.Name)
		}

		if err := collections.Put([]byte(metadata.Name), encoded); err != nil {
			return fmt.Errorf("could not write collection: %w", err)
		}

		logger.Info("created collection", zap.String("hashScheme", string(metadata.HashScheme)), zap.Int("rangeEnds", len(collection.RangeEnds)))

		return nil
	})
}

func parseRangeEnds(rangeEnds []string) ([]keys.Key, error) {
	if len(rangeEnds) == 0 {
		return []keys.Key{{}}, nil
	}

	ends := make([]keys.Key, len(rangeEnds))

	for i, end := range rangeEnds {
		key, err := composite.ParsePrintable(end)

		if err != nil {
			return nil, fmt.Errorf("%w: range end %d: %s", schema.ErrInvalidArgument, i, err.Error())
		}

		ends[i] = key
	}

	for i := 0; i < len(ends)-1; i++ {
		if len(ends[i]) == 0 || (i > 0 && keys.Compare(ends[i-1], ends[i]) >= 0) {
			return nil, fmt.Errorf("%w: range ends must be non-empty and strictly increasing", schema.ErrInvalidArgument)
		}
	}

	if len(ends[len(ends)-1]) != 0 {
		return nil, fmt.Errorf("%w: the last range end must be empty", schema.ErrInvalidArgument)
	}

	return ends, nil
}

// Collection returns the collection with this name
func (registry *Registry) Collection(ctx context.Context, name string) (Collection, error) {
	var collection Collection

	err := registry.view(func(txn kv.Transaction) error {
		if name == "" {
			return fmt.Errorf("%w: collection with empty name", ErrNotFound)
		}

		raw, err := kv.NamespaceMap(txn, collectionsPrefix).Get([]byte(name))

		if err != nil {
			return fmt.Errorf("could not read collection: %w", err)
		}

		if raw == nil {
			return fmt.Errorf("%w: collection %s", ErrNotFound, name)
		}

		if err := json.Unmarshal(raw, &collection); err != nil {
			return fmt.Errorf("could not unmarshal collection %s: %w", name, err)
		}

		return nil
	})

	return collection, err
}

// Collections lists the names of all collections in ascending order
func (registry *Registry) Collections(ctx context.Context) ([]string, error) {
	names := []string{}

	err := registry.view(func(txn kv.Transaction) error {
		iter, err := kv.NamespaceMap(txn, collectionsPrefix).Keys(keys.All(), kv.SortOrderAsc)

		if err != nil {
			return fmt.Errorf("could not create iterator: %w", err)
		}

		for iter.Next() {
			names = append(names, string(iter.Key()))
		}

		return iter.Error()
	})

	if err != nil {
		return nil, err
	}

	return names, nil
}

// CreateSchema registers s under collection
func (registry *Registry) CreateSchema(ctx context.Context, collection string, s schema.Schema) error {
	logger := log.Operation(ctx, registry.logger, "CreateSchema").With(zap.String("collection", collection), zap.String("schema", s.Name), zap.Int64("version", s.Version))

	logger.Debug("start")
	defer logger.Debug("return")

	if err := s.Validate(); err != nil {
		return err
	}

	if _, err := registry.Collection(ctx, collection); err != nil {
		return err
	}

	key, err := schemaKey(collection, s.Name, s.Version)

	if err != nil {
		return fmt.Errorf("%w: %s", schema.ErrInvalidArgument, err.Error())
	}

	encoded, err := json.Marshal(s)

	if err != nil {
		return fmt.Errorf("could not marshal schema: %w", err)
	}

	return registry.update(func(txn kv.Transaction) error {
		schemas := kv.NamespaceMap(txn, schemasPrefix)
		existing, err := schemas.Get(key)

		if err != nil {
			return fmt.Errorf("could not read schema: %w", err)
		}

		if existing != nil {
			return fmt.Errorf("%w: schema %s version %d in collection %s", ErrAlreadyExists, s.Name, s.Version, collection)
		}

		if err := schemas.Put(key, encoded); err != nil {
			return fmt.Errorf("could not write schema: %w", err)
		}

		logger.Info("created schema")

		return nil
	})
}

// Schema returns one version of a schema
func (registry *Registry) Schema(ctx context.Context, collection string, name string, version int64) (*schema.Schema, error) {
	key, err := schemaKey(collection, name, version)

	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, err.Error())
	}

	if s, ok := registry.schemas.Load(string(key)); ok {
		return s, nil
	}

	if _, err := registry.Collection(ctx, collection); err != nil {
		return nil, err
	}

	var s schema.Schema

	err = registry.view(func(txn kv.Transaction) error {
		raw, err := kv.NamespaceMap(txn, schemasPrefix).Get(key)

		if err != nil {
			return fmt.Errorf("could not read schema: %w", err)
		}

		if raw == nil {
			return fmt.Errorf("%w: schema %s version %d in collection %s", ErrNotFound, name, version, collection)
		}

		return json.Unmarshal(raw, &s)
	})

	if err != nil {
		return nil, err
	}

	registry.schemas.Store(string(key), &s)

	return &s, nil
}

// LatestSchema returns the highest version of a schema
func (registry *Registry) LatestSchema(ctx context.Context, collection string, name string) (*schema.Schema, error) {
	prefix, err := schemaVersionsPrefix(collection, name)

	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, err.Error())
	}

	if _, err := registry.Collection(ctx, collection); err != nil {
		return nil, err
	}

	var s *schema.Schema

	err = registry.view(func(txn kv.Transaction) error {
		iter, err := kv.NamespaceMap(txn, schemasPrefix).Keys(keys.All().Prefix(prefix), kv.SortOrderDesc)

		if err != nil {
			return fmt.Errorf("could not create iterator: %w", err)
		}

		if !iter.Next() {
			if iter.Error() != nil {
				return iter.Error()
			}

			return fmt.Errorf("%w: schema %s in collection %s", ErrNotFound, name, collection)
		}

		s = &schema.Schema{}

		return json.Unmarshal(iter.Value(), s)
	})

	if err != nil {
		return nil, err
	}

	return s, nil
}

// PartitionForKey returns the partition of collection that owns key.
//
// For Range collections a forward lookup returns the partition whose
// [start, end) contains key. A reverse lookup treats an empty key as
// the end of the key space and returns the last partition. A reverse
// exclusive lookup excludes key itself so when key is the start of a
// partition the preceding partition is returned.
//
// For hashed collections the partition is chosen by the CRC32C of the
// key among max(1, minNodes) partitions and the flags have no effect.
func (registry *Registry) PartitionForKey(ctx context.Context, collection string, key keys.Key, reverse bool, exclusive bool) (Partition, error) {
	c, err := registry.Collection(ctx, collection)

	if err != nil {
		return Partition{}, err
	}

	if c.Metadata.HashScheme != schema.HashRange {
		n := int(c.Metadata.Capacity.MinNodes)

		if n < 1 {
			n = 1
		}

		return Partition{Index: int(crc32.Checksum(key, crc32c) % uint32(n))}, nil
	}

	ends := c.RangeEnds

	if len(ends) == 0 {
		ends = []keys.Key{{}}
	}

	partition := func(i int) Partition {
		p := Partition{Index: i, End: ends[i], Start: keys.Key{}}

		if i > 0 {
			p.Start = ends[i-1]
		}

		return p
	}

	if reverse && len(key) == 0 {
		return partition(len(ends) - 1), nil
	}

	// first partition whose end is past key. The last end is empty
	// and stands for the end of the key space.
	i := sort.Search(len(ends)-1, func(i int) bool {
		return keys.Compare(ends[i], key) > 0
	})

	if reverse && exclusive && i > 0 && keys.Compare(ends[i-1], key) == 0 {
		i--
	}

	return partition(i), nil
}
