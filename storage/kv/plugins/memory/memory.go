// Package memory implements an in-memory kv driver backed by
// red-black trees. Read-only transactions share a store while
// a read-write transaction holds it exclusively and records an
// undo log so that it can be rolled back.
package memory

import (
	"bytes"
	"sync"

	"github.com/emirpasic/gods/maps/treemap"
	"github.com/jrife/skv/storage/kv"
	"github.com/jrife/skv/storage/kv/keys"
)

const (
	// DriverName is the name of this plugin
	DriverName = "memory"
)

// Plugins returns the plugins this package provides
func Plugins() []kv.Plugin {
	return []kv.Plugin{
		&MemoryPlugin{},
	}
}

var _ kv.Plugin = (*MemoryPlugin)(nil)

// MemoryPlugin creates memory root stores
type MemoryPlugin struct {
}

// Name implements kv.Plugin.Name
func (plugin *MemoryPlugin) Name() string {
	return DriverName
}

// NewRootStore implements kv.Plugin.NewRootStore. It
// takes no options.
func (plugin *MemoryPlugin) NewRootStore(options kv.PluginOptions) (kv.RootStore, error) {
	return New(), nil
}

// NewTempRootStore implements kv.Plugin.NewTempRootStore
func (plugin *MemoryPlugin) NewTempRootStore() (kv.RootStore, error) {
	return New(), nil
}

func compareBytes(a, b interface{}) int {
	return bytes.Compare(a.([]byte), b.([]byte))
}

func copyBytes(b []byte) []byte {
	if b == nil {
		return nil
	}

	c := make([]byte, len(b))
	copy(c, b)

	return c
}

var _ kv.RootStore = (*RootStore)(nil)

// RootStore is an in-memory kv.RootStore
type RootStore struct {
	mu     sync.RWMutex
	stores *treemap.Map
	closed bool
	txns   sync.WaitGroup
}

// New creates an empty memory root store
func New() *RootStore {
	return &RootStore{stores: treemap.NewWith(compareBytes)}
}

// Delete implements kv.RootStore.Delete
func (rootStore *RootStore) Delete() error {
	if err := rootStore.Close(); err != nil {
		return err
	}

	rootStore.mu.Lock()
	defer rootStore.mu.Unlock()

	rootStore.stores.Clear()

	return nil
}

// Close implements kv.RootStore.Close
func (rootStore *RootStore) Close() error {
	rootStore.mu.Lock()
	rootStore.closed = true
	rootStore.mu.Unlock()

	rootStore.txns.Wait()

	return nil
}

// Stores implements kv.RootStore.Stores
func (rootStore *RootStore) Stores() ([][]byte, error) {
	rootStore.mu.RLock()
	defer rootStore.mu.RUnlock()

	if rootStore.closed {
		return nil, kv.ErrClosed
	}

	names := [][]byte{}

	for _, name := range rootStore.stores.Keys() {
		names = append(names, copyBytes(name.([]byte)))
	}

	return names, nil
}

// Store implements kv.RootStore.Store
func (rootStore *RootStore) Store(name []byte) kv.Store {
	return &Store{rootStore: rootStore, name: copyBytes(name)}
}

type storeData struct {
	mu   sync.RWMutex
	data *treemap.Map
}

var _ kv.Store = (*Store)(nil)

// Store is a handle to a store inside a memory root store
type Store struct {
	rootStore *RootStore
	name      []byte
}

// Name implements kv.Store.Name
func (store *Store) Name() []byte {
	return store.name
}

// Create implements kv.Store.Create
func (store *Store) Create() error {
	store.rootStore.mu.Lock()
	defer store.rootStore.mu.Unlock()

	if store.rootStore.closed {
		return kv.ErrClosed
	}

	if _, ok := store.rootStore.stores.Get(store.name); ok {
		return nil
	}

	store.rootStore.stores.Put(store.name, &storeData{data: treemap.NewWith(compareBytes)})

	return nil
}

// Delete implements kv.Store.Delete
func (store *Store) Delete() error {
	store.rootStore.mu.Lock()
	defer store.rootStore.mu.Unlock()

	if store.rootStore.closed {
		return kv.ErrClosed
	}

	store.rootStore.stores.Remove(store.name)

	return nil
}

// Begin implements kv.Store.Begin
func (store *Store) Begin(writable bool) (kv.Transaction, error) {
	store.rootStore.mu.RLock()

	if store.rootStore.closed {
		store.rootStore.mu.RUnlock()

		return nil, kv.ErrClosed
	}

	d, ok := store.rootStore.stores.Get(store.name)

	if !ok {
		store.rootStore.mu.RUnlock()

		return nil, kv.ErrNoSuchStore
	}

	store.rootStore.txns.Add(1)
	store.rootStore.mu.RUnlock()

	data := d.(*storeData)

	if writable {
		data.mu.Lock()
	} else {
		data.mu.RLock()
	}

	return &Transaction{rootStore: store.rootStore, data: data, writable: writable}, nil
}

type undo struct {
	key     []byte
	value   []byte
	existed bool
}

var _ kv.Transaction = (*Transaction)(nil)

// Transaction is a memory store transaction
type Transaction struct {
	rootStore *RootStore
	data      *storeData
	writable  bool
	undoLog   []undo
	done      bool
}

func (transaction *Transaction) remember(key []byte) {
	if v, ok := transaction.data.data.Get(key); ok {
		transaction.undoLog = append(transaction.undoLog, undo{key: key, value: v.([]byte), existed: true})
	} else {
		transaction.undoLog = append(transaction.undoLog, undo{key: key})
	}
}

// Put implements kv.Transaction.Put
func (transaction *Transaction) Put(key, value []byte) error {
	if transaction.done {
		return kv.ErrTxnDone
	}

	if !transaction.writable {
		return kv.ErrReadOnly
	}

	if len(key) == 0 {
		return kv.ErrEmptyKey
	}

	key = copyBytes(key)
	transaction.remember(key)
	transaction.data.data.Put(key, copyBytes(value))

	return nil
}

// Delete implements kv.Transaction.Delete
func (transaction *Transaction) Delete(key []byte) error {
	if transaction.done {
		return kv.ErrTxnDone
	}

	if !transaction.writable {
		return kv.ErrReadOnly
	}

	if len(key) == 0 {
		return kv.ErrEmptyKey
	}

	key = copyBytes(key)
	transaction.remember(key)
	transaction.data.data.Remove(key)

	return nil
}

// Get implements kv.Transaction.Get
func (transaction *Transaction) Get(key []byte) ([]byte, error) {
	if transaction.done {
		return nil, kv.ErrTxnDone
	}

	if len(key) == 0 {
		return nil, kv.ErrEmptyKey
	}

	v, ok := transaction.data.data.Get(key)

	if !ok {
		return nil, nil
	}

	return copyBytes(v.([]byte)), nil
}

// Keys implements kv.Transaction.Keys
func (transaction *Transaction) Keys(keys keys.Range, order kv.SortOrder) (kv.Iterator, error) {
	if transaction.done {
		return nil, kv.ErrTxnDone
	}

	iter := transaction.data.data.Iterator()

	if order == kv.SortOrderDesc {
		iter.End()
	}

	return &Iterator{iter: iter, keys: keys, order: order}, nil
}

// Commit implements kv.Transaction.Commit
func (transaction *Transaction) Commit() error {
	if transaction.done {
		return kv.ErrTxnDone
	}

	transaction.undoLog = nil
	transaction.finish()

	return nil
}

// Rollback implements kv.Transaction.Rollback
func (transaction *Transaction) Rollback() error {
	if transaction.done {
		return nil
	}

	for i := len(transaction.undoLog) - 1; i >= 0; i-- {
		u := transaction.undoLog[i]

		if u.existed {
			transaction.data.data.Put(u.key, u.value)
		} else {
			transaction.data.data.Remove(u.key)
		}
	}

	transaction.undoLog = nil
	transaction.finish()

	return nil
}

func (transaction *Transaction) finish() {
	transaction.done = true

	if transaction.writable {
		transaction.data.mu.Unlock()
	} else {
		transaction.data.mu.RUnlock()
	}

	transaction.rootStore.txns.Done()
}

var _ kv.Iterator = (*Iterator)(nil)

// Iterator iterates over a range of a memory store
type Iterator struct {
	iter  treemap.Iterator
	keys  keys.Range
	order kv.SortOrder
	done  bool
}

// Next implements kv.Iterator.Next
func (iter *Iterator) Next() bool {
	if iter.done {
		return false
	}

	for {
		var ok bool

		if iter.order == kv.SortOrderDesc {
			ok = iter.iter.Prev()
		} else {
			ok = iter.iter.Next()
		}

		if !ok {
			iter.done = true

			return false
		}

		key := iter.iter.Key().([]byte)

		if iter.order == kv.SortOrderDesc {
			if iter.keys.Max != nil && keys.Compare(key, iter.keys.Max) >= 0 {
				continue
			}

			if iter.keys.Min != nil && keys.Compare(key, iter.keys.Min) < 0 {
				iter.done = true

				return false
			}
		} else {
			if iter.keys.Min != nil && keys.Compare(key, iter.keys.Min) < 0 {
				continue
			}

			if iter.keys.Max != nil && keys.Compare(key, iter.keys.Max) >= 0 {
				iter.done = true

				return false
			}
		}

		return true
	}
}

// Key implements kv.Iterator.Key
func (iter *Iterator) Key() []byte {
	if iter.done {
		return nil
	}

	return iter.iter.Key().([]byte)
}

// Value implements kv.Iterator.Value
func (iter *Iterator) Value() []byte {
	if iter.done {
		return nil
	}

	return iter.iter.Value().([]byte)
}

// Error implements kv.Iterator.Error
func (iter *Iterator) Error() error {
	return nil
}
