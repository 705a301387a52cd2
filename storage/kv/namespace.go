package kv

import (
	"github.com/jrife/skv/storage/kv/keys"
)

// NamespaceMap ensures that all keys referenced through the
// returned map are prefixed with ns. Keys returned by its
// iterators have the prefix stripped.
func NamespaceMap(m Map, ns []byte) Map {
	return &namespacedMap{m: m, ns: ns}
}

type namespacedMap struct {
	m  Map
	ns []byte
}

func (nsMap *namespacedMap) key(key []byte) ([]byte, error) {
	if len(key) == 0 {
		return nil, ErrEmptyKey
	}

	return keys.Concat(nsMap.ns, key), nil
}

func (nsMap *namespacedMap) Put(key, value []byte) error {
	k, err := nsMap.key(key)

	if err != nil {
		return err
	}

	return nsMap.m.Put(k, value)
}

func (nsMap *namespacedMap) Get(key []byte) ([]byte, error) {
	k, err := nsMap.key(key)

	if err != nil {
		return nil, err
	}

	return nsMap.m.Get(k)
}

func (nsMap *namespacedMap) Delete(key []byte) error {
	k, err := nsMap.key(key)

	if err != nil {
		return err
	}

	return nsMap.m.Delete(k)
}

func (nsMap *namespacedMap) Keys(keys keys.Range, order SortOrder) (Iterator, error) {
	if order != SortOrderAsc && order != SortOrderDesc {
		order = SortOrderAsc
	}

	iterator, err := nsMap.m.Keys(keys.Namespace(nsMap.ns), order)

	if err != nil {
		return nil, err
	}

	return &namespacedIterator{iterator: iterator, ns: nsMap.ns}, nil
}

type namespacedIterator struct {
	iterator Iterator
	key      []byte
	ns       []byte
}

func (nsIter *namespacedIterator) Next() bool {
	if !nsIter.iterator.Next() {
		nsIter.key = nil

		return false
	}

	// strip the namespace prefix
	nsIter.key = nsIter.iterator.Key()[len(nsIter.ns):]

	return true
}

func (nsIter *namespacedIterator) Key() []byte {
	return nsIter.key
}

func (nsIter *namespacedIterator) Value() []byte {
	return nsIter.iterator.Value()
}

func (nsIter *namespacedIterator) Error() error {
	return nsIter.iterator.Error()
}
