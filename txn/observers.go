package txn

import (
	"sync"

	"github.com/jrife/skv/storage/kv/keys"
	"github.com/zhangyunhao116/skipmap"
)

// observer tracks the transactions that read one key.
// An entry that lost its last reader is removed from the
// table and marked removed so that late lockers retry
// against a fresh entry.
type observer struct {
	mu      sync.Mutex
	readers map[string]*transaction
	removed bool
}

// conflicts returns true if a transaction other than txn
// is still active and has read this key
func (o *observer) conflicts(txn *transaction) bool {
	for id, reader := range o.readers {
		if id != txn.id && reader.active() {
			return true
		}
	}

	return false
}

// observerTable maps storage keys to their observers. Each
// key has its own lock so unrelated keys never contend.
type observerTable struct {
	entries *skipmap.OrderedMap[string, *observer]
}

func newObserverTable() observerTable {
	return observerTable{entries: skipmap.New[string, *observer]()}
}

// lock returns the locked observer for key, creating it if needed
func (table observerTable) lock(key keys.Key) *observer {
	for {
		o, _ := table.entries.LoadOrStore(string(key), &observer{readers: map[string]*transaction{}})
		o.mu.Lock()

		if !o.removed {
			return o
		}

		o.mu.Unlock()
	}
}

// unlock releases an observer returned by lock
func (table observerTable) unlock(key keys.Key, o *observer) {
	if len(o.readers) == 0 {
		o.removed = true
		table.entries.Delete(string(key))
	}

	o.mu.Unlock()
}

func (table observerTable) observe(key keys.Key, txn *transaction) {
	o := table.lock(key)
	o.readers[txn.id] = txn
	table.unlock(key, o)
}

func (table observerTable) release(key keys.Key, txn *transaction) {
	o := table.lock(key)
	delete(o.readers, txn.id)
	table.unlock(key, o)
}

// conflicts reports whether another active transaction read key
func (table observerTable) conflicts(key keys.Key, txn *transaction) bool {
	o := table.lock(key)
	defer table.unlock(key, o)

	return o.conflicts(txn)
}

// size returns the number of keys with at least one reader
func (table observerTable) size() int {
	return table.entries.Len()
}

// rangeTable tracks the key ranges scanned by each transaction
type rangeTable struct {
	mu     sync.RWMutex
	ranges map[string]*rangeObservations
}

type rangeObservations struct {
	txn    *transaction
	ranges []keys.Range
}

func newRangeTable() *rangeTable {
	return &rangeTable{ranges: map[string]*rangeObservations{}}
}

// observe records that txn scanned r and returns a handle
// that narrow can use to shrink the observation later
func (table *rangeTable) observe(txn *transaction, r keys.Range) int {
	table.mu.Lock()
	defer table.mu.Unlock()

	observations, ok := table.ranges[txn.id]

	if !ok {
		observations = &rangeObservations{txn: txn}
		table.ranges[txn.id] = observations
	}

	observations.ranges = append(observations.ranges, r)

	return len(observations.ranges) - 1
}

// narrow replaces an observation made by observe with r
func (table *rangeTable) narrow(txn *transaction, i int, r keys.Range) {
	table.mu.Lock()
	defer table.mu.Unlock()

	if observations, ok := table.ranges[txn.id]; ok && i < len(observations.ranges) {
		observations.ranges[i] = r
	}
}

func (table *rangeTable) release(txn *transaction) {
	table.mu.Lock()
	defer table.mu.Unlock()

	delete(table.ranges, txn.id)
}

// conflicts reports whether another active transaction scanned
// a range containing key. The caller must hold mu for reading.
func (table *rangeTable) conflicts(key keys.Key, txn *transaction) bool {
	for id, observations := range table.ranges {
		if id == txn.id || !observations.txn.active() {
			continue
		}

		for _, r := range observations.ranges {
			if r.Contains(key) {
				return true
			}
		}
	}

	return false
}
