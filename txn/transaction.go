package txn

import (
	"sync"
	"time"

	"github.com/emirpasic/gods/maps/treemap"
	"github.com/emirpasic/gods/utils"
	"github.com/jrife/skv/storage/kv/keys"
	"go.uber.org/atomic"
)

// Status is the state of a transaction
type Status int32

const (
	// Active transactions accept reads and writes
	Active Status = iota
	// Committed transactions applied their writes
	Committed
	// Aborted transactions discarded their writes
	Aborted
)

func (status Status) String() string {
	switch status {
	case Active:
		return "Active"
	case Committed:
		return "Committed"
	case Aborted:
		return "Aborted"
	}

	return "Unknown"
}

// write is a staged change to one key. value holds
// the encoded record or nil for a deletion.
type write struct {
	key   keys.Key
	value []byte
}

func (w write) deleted() bool {
	return w.value == nil
}

// transaction is the coordinator's state for one transaction.
// mu serializes operations on the transaction. status may be
// read without mu by other transactions checking for conflicts.
type transaction struct {
	id       string
	snapshot uint64
	began    time.Time

	status     atomic.Int32
	lastActive atomic.Time
	finalized  atomic.Time

	mu sync.Mutex
	// set by a rejected write. A doomed transaction can
	// only abort.
	doomed bool
	// point observations in storage key space
	observed map[string]struct{}
	// staged writes ordered by storage key
	writes *treemap.Map
}

func newTransaction(id string, snapshot uint64, now time.Time) *transaction {
	txn := &transaction{
		id:       id,
		snapshot: snapshot,
		began:    now,
		observed: map[string]struct{}{},
		writes:   treemap.NewWith(utils.StringComparator),
	}

	txn.lastActive.Store(now)

	return txn
}

func (txn *transaction) getStatus() Status {
	return Status(txn.status.Load())
}

func (txn *transaction) active() bool {
	return txn.getStatus() == Active
}

// stage records a write in the write set. A nil value
// stages a deletion.
func (txn *transaction) stage(key keys.Key, value []byte) {
	txn.writes.Put(string(key), write{key: key, value: value})
}

func (txn *transaction) staged(key keys.Key) (write, bool) {
	w, ok := txn.writes.Get(string(key))

	if !ok {
		return write{}, false
	}

	return w.(write), true
}

// stagedIn returns the staged writes in r ordered by key,
// descending if reverse is set
func (txn *transaction) stagedIn(r keys.Range, reverse bool) []write {
	result := []write{}
	iter := txn.writes.Iterator()

	if reverse {
		iter.End()

		for iter.Prev() {
			if w := iter.Value().(write); r.Contains(w.key) {
				result = append(result, w)
			}
		}

		return result
	}

	for iter.Next() {
		if w := iter.Value().(write); r.Contains(w.key) {
			result = append(result, w)
		}
	}

	return result
}

// writeKeys returns the keys of the write set in ascending order
func (txn *transaction) writeKeys() []keys.Key {
	result := make([]keys.Key, 0, txn.writes.Size())

	for _, k := range txn.writes.Keys() {
		result = append(result, keys.Key(k.(string)))
	}

	return result
}
