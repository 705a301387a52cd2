package kv

import (
	"errors"

	"github.com/jrife/skv/storage/kv/keys"
)

var (
	// ErrClosed is returned by any operation that starts after
	// its root store was closed
	ErrClosed = errors.New("root store was closed")
	// ErrNoSuchStore is returned when beginning a transaction on
	// a store that was never created or has been deleted
	ErrNoSuchStore = errors.New("store does not exist")
	// ErrReadOnly is returned when a read-only transaction attempts an update
	ErrReadOnly = errors.New("transaction is read-only")
	// ErrEmptyKey is returned when a key is nil or empty
	ErrEmptyKey = errors.New("key must not be empty")
	// ErrTxnDone is returned when a transaction is used after
	// it was committed or rolled back
	ErrTxnDone = errors.New("transaction has already been committed or rolled back")
)

// SortOrder is the direction of a key traversal
type SortOrder int

const (
	// SortOrderAsc visits keys from lowest to highest
	SortOrderAsc SortOrder = iota
	// SortOrderDesc visits keys from highest to lowest
	SortOrderDesc
)

// PluginOptions holds driver-specific options
type PluginOptions map[string]interface{}

// Plugin is a storage driver
type Plugin interface {
	// Name is the name the driver is selected by
	Name() string
	// NewRootStore opens a root store configured by options
	NewRootStore(options PluginOptions) (RootStore, error)
	// NewTempRootStore opens a throwaway root store with
	// driver defaults. Tests use it to exercise every driver
	// without knowing their options.
	NewTempRootStore() (RootStore, error)
}

// RootStore owns a set of named stores
type RootStore interface {
	// Delete closes the root store then removes it along with
	// everything it contains. Deleting a root store that does
	// not exist is a no-op.
	Delete() error
	// Close waits for open transactions to finish then closes
	// the root store. Anything descended from it returns
	// ErrClosed afterwards.
	Close() error
	// Stores returns the names of all stores in ascending order
	Stores() ([][]byte, error)
	// Store returns a handle to the named store without creating
	// it. It never returns nil.
	Store(name []byte) Store
}

// Store is a named keyspace inside a root store. Its transactions
// are strictly serializable: a transaction that begins after
// another one ends sees its effects.
//
// A driver may lock pessimistically so Begin can block. Callers
// must order their own locks consistently with Begin and must not
// hold one transaction open while beginning another on the same
// store from the same goroutine.
type Store interface {
	// Name returns the name of this store
	Name() []byte
	// Create creates the store. It is a no-op if the store exists.
	Create() error
	// Delete removes the store. It is a no-op if the store does
	// not exist.
	Delete() error
	// Begin starts a transaction. It returns ErrNoSuchStore if
	// the store has not been created.
	Begin(writable bool) (Transaction, error)
}

// MapUpdater updates a sorted map
type MapUpdater interface {
	// Put sets key to value. key must not be empty.
	Put(key, value []byte) error
	// Delete removes key. key must not be empty. Deleting an
	// absent key is a no-op.
	Delete(key []byte) error
}

// MapReader reads a sorted map
type MapReader interface {
	// Get returns the value of key or nil if it is absent.
	// Writes made earlier in the same transaction are visible.
	Get(key []byte) ([]byte, error)
	// Keys iterates over the keys inside a range
	Keys(keys keys.Range, order SortOrder) (Iterator, error)
}

// Map combines MapReader and MapUpdater
type Map interface {
	MapUpdater
	MapReader
}

// Transaction is a unit of work on one store. It is not safe
// for concurrent use.
type Transaction interface {
	Map
	// Commit makes the transaction's writes durable
	Commit() error
	// Rollback discards the transaction's writes. It is a no-op
	// after Commit.
	Rollback() error
}

// Iterator walks the keys of a range. It is not safe for
// concurrent use and must not outlive its transaction. Writing
// through the transaction while iterating is undefined.
type Iterator interface {
	// Next advances to the next key. It must be called once
	// before the first key is read. It returns false when the
	// range is exhausted or an error occurred.
	Next() bool
	// Key returns the current key
	Key() []byte
	// Value returns the current value
	Value() []byte
	// Error returns the error that stopped the iteration, if any
	Error() error
}
