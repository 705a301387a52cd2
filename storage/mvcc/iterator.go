package mvcc

import (
	"bytes"

	"github.com/jrife/skv/storage/kv"
)

// visibleIterator walks version keys and yields, for every key,
// the newest version at or before timestamp unless it is a
// deletion. In ascending order the versions of a key arrive newest
// first. In descending order they arrive oldest first so the
// candidate is only known once the next key starts.
type visibleIterator struct {
	iter      kv.Iterator
	timestamp uint64
	order     kv.SortOrder
	current   KV
	err       error

	// descending order state
	pendingPrefix []byte
	pending       *KV
	pendingValue  versionValue
	exhausted     bool
}

func newVisibleIterator(iter kv.Iterator, timestamp uint64, order kv.SortOrder) *visibleIterator {
	return &visibleIterator{iter: iter, timestamp: timestamp, order: order}
}

func (visible *visibleIterator) next() bool {
	if visible.order == kv.SortOrderDesc {
		return visible.nextDesc()
	}

	return visible.nextAsc()
}

func (visible *visibleIterator) nextAsc() bool {
	var lastPrefix []byte

	if visible.current.Key != nil {
		lastPrefix = escapeKey(visible.current.Key)
	}

	for visible.iter.Next() {
		k := versionKey(visible.iter.Key())

		if k.timestamp() > visible.timestamp {
			continue
		}

		if lastPrefix != nil && bytes.Equal(k.prefix(), lastPrefix) {
			continue
		}

		lastPrefix = append([]byte{}, k.prefix()...)
		value := versionValue(visible.iter.Value())

		if value.deleted() {
			continue
		}

		if !visible.setCurrent(k, value) {
			return false
		}

		return true
	}

	visible.err = visible.iter.Error()

	return false
}

func (visible *visibleIterator) nextDesc() bool {
	for !visible.exhausted {
		if !visible.iter.Next() {
			visible.exhausted = true
			visible.err = visible.iter.Error()

			if visible.err != nil {
				return false
			}

			break
		}

		k := versionKey(visible.iter.Key())

		if visible.pendingPrefix != nil && !bytes.Equal(k.prefix(), visible.pendingPrefix) {
			emit := visible.pending
			emitValue := visible.pendingValue
			visible.resetPending(k)
			visible.consider(k)

			if emit != nil && !emitValue.deleted() {
				visible.current = *emit
				visible.current.Value = emitValue.value()

				return true
			}

			continue
		}

		if visible.pendingPrefix == nil {
			visible.resetPending(k)
		}

		visible.consider(k)
	}

	if visible.pending != nil {
		emit := visible.pending
		emitValue := visible.pendingValue
		visible.pending = nil

		if !emitValue.deleted() {
			visible.current = *emit
			visible.current.Value = emitValue.value()

			return true
		}
	}

	return false
}

func (visible *visibleIterator) resetPending(k versionKey) {
	visible.pendingPrefix = append([]byte{}, k.prefix()...)
	visible.pending = nil
	visible.pendingValue = nil
}

// consider records k as the candidate for its key if it is visible.
// Later versions of the same key overwrite earlier candidates.
func (visible *visibleIterator) consider(k versionKey) {
	if k.timestamp() > visible.timestamp {
		return
	}

	key, err := k.key()

	if err != nil {
		visible.err = err
		visible.exhausted = true

		return
	}

	visible.pending = &KV{Key: key, Timestamp: k.timestamp()}
	visible.pendingValue = append(versionValue{}, visible.iter.Value()...)
}

func (visible *visibleIterator) setCurrent(k versionKey, value versionValue) bool {
	key, err := k.key()

	if err != nil {
		visible.err = err

		return false
	}

	visible.current = KV{Key: key, Value: append([]byte{}, value.value()...), Timestamp: k.timestamp()}

	return true
}

func (visible *visibleIterator) kv() KV {
	return visible.current
}

func (visible *visibleIterator) error() error {
	return visible.err
}
