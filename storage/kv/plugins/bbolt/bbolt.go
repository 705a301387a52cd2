// Package bbolt implements a kv driver on top of bbolt. Each
// store is a top-level bucket of a single bbolt database.
package bbolt

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jrife/skv/storage/kv"
	"github.com/jrife/skv/storage/kv/keys"
	"github.com/jrife/skv/utils/uuid"
	bolt "go.etcd.io/bbolt"
)

const (
	// DriverName is the name of this plugin
	DriverName = "bbolt"
)

// Plugins returns the plugins this package provides
func Plugins() []kv.Plugin {
	return []kv.Plugin{
		&BBoltPlugin{},
	}
}

var _ kv.Plugin = (*BBoltPlugin)(nil)

// BBoltPlugin creates bbolt root stores
type BBoltPlugin struct {
}

// Name implements kv.Plugin.Name
func (plugin *BBoltPlugin) Name() string {
	return DriverName
}

// NewRootStore implements kv.Plugin.NewRootStore.
// It requires the "path" option.
func (plugin *BBoltPlugin) NewRootStore(options kv.PluginOptions) (kv.RootStore, error) {
	var config BBoltRootStoreConfig

	if path, ok := options["path"]; !ok {
		return nil, fmt.Errorf("\"path\" is required")
	} else if pathString, ok := path.(string); !ok {
		return nil, fmt.Errorf("\"path\" must be a string")
	} else {
		config.Path = pathString
	}

	rootStore, err := New(config)

	if err != nil {
		return nil, err
	}

	return rootStore, nil
}

// NewTempRootStore implements kv.Plugin.NewTempRootStore
func (plugin *BBoltPlugin) NewTempRootStore() (kv.RootStore, error) {
	return plugin.NewRootStore(kv.PluginOptions{
		"path": filepath.Join(os.TempDir(), fmt.Sprintf("bbolt-%s", uuid.MustUUID())),
	})
}

// BBoltRootStoreConfig configures a bbolt root store
type BBoltRootStoreConfig struct {
	Path string
}

var _ kv.RootStore = (*BBoltRootStore)(nil)

// BBoltRootStore is a kv.RootStore backed by one bbolt database
type BBoltRootStore struct {
	db *bolt.DB
}

// New opens or creates the bbolt database at config.Path
func New(config BBoltRootStoreConfig) (*BBoltRootStore, error) {
	db, err := bolt.Open(config.Path, 0666, nil)

	if err != nil {
		return nil, fmt.Errorf("could not open bbolt store at %s: %w", config.Path, err)
	}

	return &BBoltRootStore{db: db}, nil
}

func wrapError(err error) error {
	if errors.Is(err, bolt.ErrDatabaseNotOpen) {
		return kv.ErrClosed
	}

	return err
}

// Close implements kv.RootStore.Close
func (rootStore *BBoltRootStore) Close() error {
	return rootStore.db.Close()
}

// Delete implements kv.RootStore.Delete
func (rootStore *BBoltRootStore) Delete() error {
	path := rootStore.db.Path()

	if err := rootStore.Close(); err != nil {
		return fmt.Errorf("could not close store: %w", err)
	}

	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("could not remove path %s: %w", path, err)
	}

	return nil
}

// Stores implements kv.RootStore.Stores
func (rootStore *BBoltRootStore) Stores() ([][]byte, error) {
	names := [][]byte{}

	err := rootStore.db.View(func(txn *bolt.Tx) error {
		return txn.ForEach(func(name []byte, _ *bolt.Bucket) error {
			names = append(names, append([]byte{}, name...))

			return nil
		})
	})

	if err != nil {
		return nil, wrapError(err)
	}

	return names, nil
}

// Store implements kv.RootStore.Store
func (rootStore *BBoltRootStore) Store(name []byte) kv.Store {
	return &BBoltStore{db: rootStore.db, name: append([]byte{}, name...)}
}

var _ kv.Store = (*BBoltStore)(nil)

// BBoltStore is a handle to one bucket
type BBoltStore struct {
	db   *bolt.DB
	name []byte
}

// Name implements kv.Store.Name
func (store *BBoltStore) Name() []byte {
	return store.name
}

// Create implements kv.Store.Create
func (store *BBoltStore) Create() error {
	return wrapError(store.db.Update(func(txn *bolt.Tx) error {
		_, err := txn.CreateBucketIfNotExists(store.name)

		return err
	}))
}

// Delete implements kv.Store.Delete
func (store *BBoltStore) Delete() error {
	return wrapError(store.db.Update(func(txn *bolt.Tx) error {
		err := txn.DeleteBucket(store.name)

		if errors.Is(err, bolt.ErrBucketNotFound) {
			return nil
		}

		return err
	}))
}

// Begin implements kv.Store.Begin
func (store *BBoltStore) Begin(writable bool) (kv.Transaction, error) {
	transaction, err := store.db.Begin(writable)

	if err != nil {
		return nil, fmt.Errorf("could not begin transaction: %w", wrapError(err))
	}

	bucket := transaction.Bucket(store.name)

	if bucket == nil {
		transaction.Rollback()

		return nil, kv.ErrNoSuchStore
	}

	return &BBoltTransaction{transaction: transaction, bucket: bucket}, nil
}

var _ kv.Transaction = (*BBoltTransaction)(nil)

// BBoltTransaction is a transaction scoped to one bucket
type BBoltTransaction struct {
	transaction *bolt.Tx
	bucket      *bolt.Bucket
}

// Put implements kv.Transaction.Put
func (transaction *BBoltTransaction) Put(key, value []byte) error {
	if len(key) == 0 {
		return kv.ErrEmptyKey
	}

	if !transaction.transaction.Writable() {
		return kv.ErrReadOnly
	}

	if value == nil {
		value = []byte{}
	}

	return transaction.bucket.Put(key, value)
}

// Delete implements kv.Transaction.Delete
func (transaction *BBoltTransaction) Delete(key []byte) error {
	if len(key) == 0 {
		return kv.ErrEmptyKey
	}

	if !transaction.transaction.Writable() {
		return kv.ErrReadOnly
	}

	return transaction.bucket.Delete(key)
}

// Get implements kv.Transaction.Get
func (transaction *BBoltTransaction) Get(key []byte) ([]byte, error) {
	if len(key) == 0 {
		return nil, kv.ErrEmptyKey
	}

	value := transaction.bucket.Get(key)

	if value == nil {
		return nil, nil
	}

	return append([]byte{}, value...), nil
}

// Keys implements kv.Transaction.Keys
func (transaction *BBoltTransaction) Keys(keys keys.Range, order kv.SortOrder) (kv.Iterator, error) {
	return &BBoltIterator{cursor: transaction.bucket.Cursor(), keys: keys, order: order}, nil
}

// Commit implements kv.Transaction.Commit
func (transaction *BBoltTransaction) Commit() error {
	if !transaction.transaction.Writable() {
		return wrapError(transaction.transaction.Rollback())
	}

	return wrapError(transaction.transaction.Commit())
}

// Rollback implements kv.Transaction.Rollback
func (transaction *BBoltTransaction) Rollback() error {
	err := transaction.transaction.Rollback()

	if errors.Is(err, bolt.ErrTxClosed) {
		return nil
	}

	return err
}

var _ kv.Iterator = (*BBoltIterator)(nil)

// BBoltIterator iterates over a range of a bucket
type BBoltIterator struct {
	cursor  *bolt.Cursor
	keys    keys.Range
	order   kv.SortOrder
	started bool
	key     []byte
	value   []byte
}

func (iter *BBoltIterator) first() ([]byte, []byte) {
	if iter.order == kv.SortOrderDesc {
		if iter.keys.Max == nil {
			return iter.cursor.Last()
		}

		if k, _ := iter.cursor.Seek(iter.keys.Max); k == nil {
			return iter.cursor.Last()
		}

		return iter.cursor.Prev()
	}

	if iter.keys.Min == nil {
		return iter.cursor.First()
	}

	return iter.cursor.Seek(iter.keys.Min)
}

// Next implements kv.Iterator.Next
func (iter *BBoltIterator) Next() bool {
	var k, v []byte

	if !iter.started {
		iter.started = true
		k, v = iter.first()
	} else if iter.key == nil {
		return false
	} else if iter.order == kv.SortOrderDesc {
		k, v = iter.cursor.Prev()
	} else {
		k, v = iter.cursor.Next()
	}

	if k == nil ||
		(iter.order == kv.SortOrderDesc && iter.keys.Min != nil && keys.Compare(k, iter.keys.Min) < 0) ||
		(iter.order != kv.SortOrderDesc && iter.keys.Max != nil && keys.Compare(k, iter.keys.Max) >= 0) {
		iter.key = nil
		iter.value = nil

		return false
	}

	iter.key = append([]byte{}, k...)
	iter.value = append([]byte{}, v...)

	return true
}

// Key implements kv.Iterator.Key
func (iter *BBoltIterator) Key() []byte {
	return iter.key
}

// Value implements kv.Iterator.Value
func (iter *BBoltIterator) Value() []byte {
	return iter.value
}

// Error implements kv.Iterator.Error
func (iter *BBoltIterator) Error() error {
	return nil
}
