package kv_test

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/jrife/skv/storage/kv"
	"github.com/jrife/skv/storage/kv/keys"
	"github.com/jrife/skv/storage/kv/plugins"
)

type storeModel map[string]string

func writeStore(store kv.Store, model storeModel) error {
	transaction, err := store.Begin(true)

	if err != nil {
		return err
	}

	defer transaction.Rollback()

	for key, value := range model {
		if err := transaction.Put([]byte(key), []byte(value)); err != nil {
			return err
		}
	}

	return transaction.Commit()
}

func readRange(t *testing.T, m kv.MapReader, r keys.Range, order kv.SortOrder) []string {
	iter, err := m.Keys(r, order)

	if err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	result := []string{}

	for iter.Next() {
		result = append(result, string(iter.Key())+"="+string(iter.Value()))
	}

	if iter.Error() != nil {
		t.Fatalf("expected err to be nil, got %#v", iter.Error())
	}

	return result
}

type tempStoreBuilder func(t *testing.T) kv.RootStore

func builder(plugin kv.Plugin) tempStoreBuilder {
	return func(t *testing.T) kv.RootStore {
		rootStore, err := plugin.NewTempRootStore()

		if err != nil {
			t.Fatalf("could not build a %s store: %s", plugin.Name(), err.Error())
		}

		t.Cleanup(func() { rootStore.Delete() })

		return rootStore
	}
}

func TestDrivers(t *testing.T) {
	for _, plugin := range plugins.Plugins() {
		t.Run(plugin.Name(), driverTest(builder(plugin)))
	}
}

func driverTest(builder tempStoreBuilder) func(t *testing.T) {
	return func(t *testing.T) {
		testDriver(builder, t)
	}
}

func testDriver(builder tempStoreBuilder, t *testing.T) {
	t.Run("stores", func(t *testing.T) { testStores(builder, t) })
	t.Run("keys", func(t *testing.T) { testKeys(builder, t) })
	t.Run("rollback", func(t *testing.T) { testRollback(builder, t) })
	t.Run("read-only", func(t *testing.T) { testReadOnly(builder, t) })
	t.Run("namespace", func(t *testing.T) { testNamespace(builder, t) })
	t.Run("closed", func(t *testing.T) { testClosed(builder, t) })
}

func testStores(builder tempStoreBuilder, t *testing.T) {
	rootStore := builder(t)

	if _, err := rootStore.Store([]byte("b")).Begin(false); !errors.Is(err, kv.ErrNoSuchStore) {
		t.Fatalf("expected err to be %#v, got %#v", kv.ErrNoSuchStore, err)
	}

	for _, name := range []string{"b", "a", "c", "a"} {
		if err := rootStore.Store([]byte(name)).Create(); err != nil {
			t.Fatalf("expected err to be nil, got %#v", err)
		}
	}

	if err := rootStore.Store([]byte("c")).Delete(); err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	if err := rootStore.Store([]byte("nope")).Delete(); err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	stores, err := rootStore.Stores()

	if err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	if diff := cmp.Diff([][]byte{[]byte("a"), []byte("b")}, stores); diff != "" {
		t.Fatal(diff)
	}
}

func testKeys(builder tempStoreBuilder, t *testing.T) {
	rootStore := builder(t)
	store := rootStore.Store([]byte("s"))

	if err := store.Create(); err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	if err := writeStore(store, storeModel{"a": "1", "b": "2", "bb": "3", "c": "4", "d": "5"}); err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	transaction, err := store.Begin(false)

	if err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	defer transaction.Rollback()

	testCases := map[string]struct {
		keys   keys.Range
		order  kv.SortOrder
		result []string
	}{
		"all-asc": {
			keys:   keys.All(),
			order:  kv.SortOrderAsc,
			result: []string{"a=1", "b=2", "bb=3", "c=4", "d=5"},
		},
		"all-desc": {
			keys:   keys.All(),
			order:  kv.SortOrderDesc,
			result: []string{"d=5", "c=4", "bb=3", "b=2", "a=1"},
		},
		"bounded-asc": {
			keys:   keys.All().Gte([]byte("b")).Lt([]byte("d")),
			order:  kv.SortOrderAsc,
			result: []string{"b=2", "bb=3", "c=4"},
		},
		"bounded-desc": {
			keys:   keys.All().Gte([]byte("b")).Lt([]byte("d")),
			order:  kv.SortOrderDesc,
			result: []string{"c=4", "bb=3", "b=2"},
		},
		"max-between-keys-desc": {
			keys:   keys.All().Lt([]byte("bc")),
			order:  kv.SortOrderDesc,
			result: []string{"bb=3", "b=2", "a=1"},
		},
		"max-past-end-desc": {
			keys:   keys.All().Lt([]byte("z")),
			order:  kv.SortOrderDesc,
			result: []string{"d=5", "c=4", "bb=3", "b=2", "a=1"},
		},
		"prefix": {
			keys:   keys.All().Prefix([]byte("b")),
			order:  kv.SortOrderAsc,
			result: []string{"b=2", "bb=3"},
		},
		"empty": {
			keys:   keys.All().Gte([]byte("x")),
			order:  kv.SortOrderAsc,
			result: []string{},
		},
	}

	for name, testCase := range testCases {
		t.Run(name, func(t *testing.T) {
			if diff := cmp.Diff(testCase.result, readRange(t, transaction, testCase.keys, testCase.order)); diff != "" {
				t.Fatal(diff)
			}
		})
	}

	value, err := transaction.Get([]byte("bb"))

	if err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	if diff := cmp.Diff([]byte("3"), value); diff != "" {
		t.Fatal(diff)
	}

	value, err = transaction.Get([]byte("x"))

	if err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	if value != nil {
		t.Fatalf("expected value to be nil, got %#v", value)
	}

	if _, err := transaction.Get(nil); !errors.Is(err, kv.ErrEmptyKey) {
		t.Fatalf("expected err to be %#v, got %#v", kv.ErrEmptyKey, err)
	}
}

func testRollback(builder tempStoreBuilder, t *testing.T) {
	rootStore := builder(t)
	store := rootStore.Store([]byte("s"))

	if err := store.Create(); err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	if err := writeStore(store, storeModel{"a": "1", "b": "2"}); err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	transaction, err := store.Begin(true)

	if err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	if err := transaction.Put([]byte("a"), []byte("x")); err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	if err := transaction.Put([]byte("c"), []byte("3")); err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	if err := transaction.Delete([]byte("b")); err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	if diff := cmp.Diff([]string{"a=x", "c=3"}, readRange(t, transaction, keys.All(), kv.SortOrderAsc)); diff != "" {
		t.Fatal(diff)
	}

	if err := transaction.Rollback(); err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	transaction, err = store.Begin(false)

	if err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	defer transaction.Rollback()

	if diff := cmp.Diff([]string{"a=1", "b=2"}, readRange(t, transaction, keys.All(), kv.SortOrderAsc)); diff != "" {
		t.Fatal(diff)
	}
}

func testReadOnly(builder tempStoreBuilder, t *testing.T) {
	rootStore := builder(t)
	store := rootStore.Store([]byte("s"))

	if err := store.Create(); err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	transaction, err := store.Begin(false)

	if err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	defer transaction.Rollback()

	if err := transaction.Put([]byte("a"), []byte("1")); !errors.Is(err, kv.ErrReadOnly) {
		t.Fatalf("expected err to be %#v, got %#v", kv.ErrReadOnly, err)
	}

	if err := transaction.Delete([]byte("a")); !errors.Is(err, kv.ErrReadOnly) {
		t.Fatalf("expected err to be %#v, got %#v", kv.ErrReadOnly, err)
	}
}

func testNamespace(builder tempStoreBuilder, t *testing.T) {
	rootStore := builder(t)
	store := rootStore.Store([]byte("s"))

	if err := store.Create(); err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	if err := writeStore(store, storeModel{"m": "0", "ns": "x", "nta": "y"}); err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	transaction, err := store.Begin(true)

	if err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	defer transaction.Rollback()

	ns := kv.NamespaceMap(transaction, []byte("ns"))

	for _, key := range []string{"a", "b", "c"} {
		if err := ns.Put([]byte(key), []byte(key+key)); err != nil {
			t.Fatalf("expected err to be nil, got %#v", err)
		}
	}

	if diff := cmp.Diff([]string{"a=aa", "b=bb", "c=cc"}, readRange(t, ns, keys.All(), kv.SortOrderAsc)); diff != "" {
		t.Fatal(diff)
	}

	if diff := cmp.Diff([]string{"c=cc", "b=bb"}, readRange(t, ns, keys.All().Gte([]byte("b")), kv.SortOrderDesc)); diff != "" {
		t.Fatal(diff)
	}

	if diff := cmp.Diff([]string{"m=0", "ns=x", "nsa=aa", "nsb=bb", "nsc=cc", "nta=y"}, readRange(t, transaction, keys.All(), kv.SortOrderAsc)); diff != "" {
		t.Fatal(diff)
	}

	if err := ns.Put(nil, []byte("v")); !errors.Is(err, kv.ErrEmptyKey) {
		t.Fatalf("expected err to be %#v, got %#v", kv.ErrEmptyKey, err)
	}
}

func testClosed(builder tempStoreBuilder, t *testing.T) {
	rootStore := builder(t)
	store := rootStore.Store([]byte("s"))

	if err := store.Create(); err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	if err := rootStore.Close(); err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	if _, err := store.Begin(false); !errors.Is(err, kv.ErrClosed) {
		t.Fatalf("expected err to be %#v, got %#v", kv.ErrClosed, err)
	}

	if _, err := rootStore.Stores(); !errors.Is(err, kv.ErrClosed) {
		t.Fatalf("expected err to be %#v, got %#v", kv.ErrClosed, err)
	}
}
