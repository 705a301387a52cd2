// Package mvcc implements a multi-version store on top of a kv
// store. Every committed write creates a new version of its key
// tagged with the commit timestamp. Readers choose a timestamp
// and observe, for every key, the newest version at or before it.
package mvcc

import (
	"fmt"
	"sync"

	"github.com/jrife/skv/storage/kv"
	"github.com/jrife/skv/storage/kv/keys"
)

// Mutation is a single write in a batch
type Mutation struct {
	Key    []byte
	Value  []byte
	Delete bool
}

// KV is a visible key-value pair
type KV struct {
	Key       []byte
	Value     []byte
	Timestamp uint64
}

// Store is a multi-version store
type Store struct {
	kvStore kv.Store
	// serializes Apply so that timestamps are
	// written in increasing order
	mu sync.Mutex
}

// New creates a new mvcc store
func New(kvStore kv.Store) *Store {
	return &Store{kvStore: kvStore}
}

// Open ensures the underlying kv store exists
func (store *Store) Open() error {
	// Always ensure that the store exists
	if err := store.kvStore.Create(); err != nil {
		return wrapError("could not ensure store exists", err)
	}

	return nil
}

func (store *Store) view(fn func(txn kv.Transaction) error) error {
	txn, err := store.kvStore.Begin(false)

	if err != nil {
		return wrapError("could not begin transaction", err)
	}

	defer txn.Rollback()

	return fn(txn)
}

// NewestTimestamp returns the timestamp of the newest
// applied batch or 0 if nothing was applied yet
func (store *Store) NewestTimestamp() (uint64, error) {
	var timestamp uint64

	err := store.view(func(txn kv.Transaction) error {
		var err error

		timestamp, err = newestTimestamp(txn)

		return err
	})

	return timestamp, err
}

func newestTimestamp(txn kv.Transaction) (uint64, error) {
	raw, err := kv.NamespaceMap(txn, metadataPrefix).Get(newestTimestampKey)

	if err != nil {
		return 0, wrapError("could not read newest timestamp", err)
	}

	if raw == nil {
		return 0, nil
	}

	return bytesToUint64(raw)
}

// Apply writes every mutation as a new version at timestamp in
// one kv transaction. Either all versions become visible or none
// do. timestamp must be higher than that of any applied batch.
func (store *Store) Apply(timestamp uint64, mutations []Mutation) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	txn, err := store.kvStore.Begin(true)

	if err != nil {
		return wrapError("could not begin transaction", err)
	}

	defer txn.Rollback()

	newest, err := newestTimestamp(txn)

	if err != nil {
		return err
	}

	if timestamp <= newest {
		return fmt.Errorf("%w: %d <= %d", ErrTimestampTooLow, timestamp, newest)
	}

	versions := kv.NamespaceMap(txn, versionsPrefix)

	for _, mutation := range mutations {
		if err := versions.Put(newVersionKey(mutation.Key, timestamp), newVersionValue(mutation)); err != nil {
			return wrapError("could not write version", err)
		}
	}

	if err := kv.NamespaceMap(txn, metadataPrefix).Put(newestTimestampKey, uint64ToBytes(timestamp)); err != nil {
		return wrapError("could not write newest timestamp", err)
	}

	if err := txn.Commit(); err != nil {
		return wrapError("could not commit transaction", err)
	}

	return nil
}

// Get returns the newest version of key at or before timestamp. It
// returns nil if there is no such version or if that version is a
// deletion.
func (store *Store) Get(key []byte, timestamp uint64) (*KV, error) {
	var result *KV

	err := store.view(func(txn kv.Transaction) error {
		versions := kv.NamespaceMap(txn, versionsPrefix)
		r := keys.All().Gte(keys.Key(newVersionKey(key, timestamp))).Lt(keys.Key(newVersionKey(key, 0)))
		iter, err := versions.Keys(r, kv.SortOrderAsc)

		if err != nil {
			return wrapError("could not create iterator", err)
		}

		if !iter.Next() {
			return wrapError("iteration error", iter.Error())
		}

		value := versionValue(iter.Value())

		if value.deleted() {
			return nil
		}

		result = &KV{Key: key, Value: append([]byte{}, value.value()...), Timestamp: versionKey(iter.Key()).timestamp()}

		return nil
	})

	return result, err
}

// LatestCommit returns the timestamp of the newest version of
// key, including deletions, or 0 if the key was never written
func (store *Store) LatestCommit(key []byte) (uint64, error) {
	var timestamp uint64

	err := store.view(func(txn kv.Transaction) error {
		versions := kv.NamespaceMap(txn, versionsPrefix)
		r := keys.All().Gte(keys.Key(newVersionKey(key, ^uint64(0)))).Lt(keys.Key(newVersionKey(key, 0)))
		iter, err := versions.Keys(r, kv.SortOrderAsc)

		if err != nil {
			return wrapError("could not create iterator", err)
		}

		if !iter.Next() {
			return wrapError("iteration error", iter.Error())
		}

		timestamp = versionKey(iter.Key()).timestamp()

		return nil
	})

	return timestamp, err
}

// Scan returns up to limit keys in r that are visible at timestamp
// in the given order. limit <= 0 means no limit.
func (store *Store) Scan(r keys.Range, timestamp uint64, order kv.SortOrder, limit int) ([]KV, error) {
	result := []KV{}

	err := store.view(func(txn kv.Transaction) error {
		iter, err := kv.NamespaceMap(txn, versionsPrefix).Keys(versionsRange(r), order)

		if err != nil {
			return wrapError("could not create iterator", err)
		}

		visible := newVisibleIterator(iter, timestamp, order)

		for (limit <= 0 || len(result) < limit) && visible.next() {
			result = append(result, visible.kv())
		}

		return wrapError("iteration error", visible.error())
	})

	if err != nil {
		return nil, err
	}

	return result, nil
}

// Compact removes versions that no reader at or after timestamp
// can observe. For every key the newest version at or before
// timestamp is kept unless it is a deletion.
func (store *Store) Compact(timestamp uint64) (int, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	txn, err := store.kvStore.Begin(true)

	if err != nil {
		return 0, wrapError("could not begin transaction", err)
	}

	defer txn.Rollback()

	versions := kv.NamespaceMap(txn, versionsPrefix)
	iter, err := versions.Keys(keys.All(), kv.SortOrderAsc)

	if err != nil {
		return 0, wrapError("could not create iterator", err)
	}

	var garbage [][]byte
	var currentPrefix []byte
	var keptVisible bool

	for iter.Next() {
		k := versionKey(iter.Key())

		if currentPrefix == nil || string(k.prefix()) != string(currentPrefix) {
			currentPrefix = append([]byte{}, k.prefix()...)
			keptVisible = false
		}

		if k.timestamp() > timestamp {
			continue
		}

		if keptVisible || versionValue(iter.Value()).deleted() {
			garbage = append(garbage, append([]byte{}, k...))
		}

		keptVisible = true
	}

	if err := iter.Error(); err != nil {
		return 0, wrapError("iteration error", err)
	}

	for _, k := range garbage {
		if err := versions.Delete(k); err != nil {
			return 0, wrapError("could not delete version", err)
		}
	}

	if err := txn.Commit(); err != nil {
		return 0, wrapError("could not commit transaction", err)
	}

	return len(garbage), nil
}
