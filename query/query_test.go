package query_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/jrife/skv/query"
	"github.com/jrife/skv/registry"
	"github.com/jrife/skv/schema"
	"github.com/jrife/skv/storage/kv"
	"github.com/jrife/skv/storage/kv/keys/composite"
	"github.com/jrife/skv/storage/kv/plugins"
	"github.com/jrife/skv/storage/mvcc"
	"github.com/jrife/skv/txn"
	"go.uber.org/zap/zaptest"
)

const (
	testCollection = "query_collection"
	testSchemaName = "query_test"
)

type fixture struct {
	engine      *query.Engine
	coordinator *txn.Coordinator
}

func newFixture(t *testing.T, plugin kv.Plugin, pageSize int) *fixture {
	rootStore, err := plugin.NewTempRootStore()

	if err != nil {
		t.Fatalf("could not build a %s store: %s", plugin.Name(), err.Error())
	}

	t.Cleanup(func() { rootStore.Delete() })

	ctx := context.Background()
	logger := zaptest.NewLogger(t)
	r, err := registry.New(registry.Config{Store: rootStore.Store([]byte("meta")), Logger: logger})

	if err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	end, _ := composite.Encode([]schema.FieldValue{schema.String("default"), schema.String("d")})
	metadata := schema.CollectionMetadata{Name: testCollection, HashScheme: schema.HashRange, Capacity: schema.CollectionCapacity{MinNodes: 2}}

	if err := r.CreateCollection(ctx, metadata, []string{composite.Printable(end), ""}); err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	err = r.CreateSchema(ctx, testCollection, schema.Schema{
		Name:    testSchemaName,
		Version: 1,
		Fields: []schema.SchemaField{
			{Type: schema.StringT, Name: "partition"},
			{Type: schema.StringT, Name: "partition1"},
			{Type: schema.StringT, Name: "range"},
			{Type: schema.StringT, Name: "data1"},
		},
		PartitionKeyFields: []int{0, 1},
		RangeKeyFields:     []int{2},
	})

	if err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	coordinator, err := txn.New(txn.Config{Registry: r, Store: mvcc.New(rootStore.Store([]byte("data"))), Logger: logger})

	if err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	t.Cleanup(func() { coordinator.Close() })

	return &fixture{
		engine:      query.New(query.Config{Registry: r, Coordinator: coordinator, Logger: logger, PageSize: pageSize}),
		coordinator: coordinator,
	}
}

func (f *fixture) begin(t *testing.T) string {
	id, err := f.coordinator.Begin(context.Background())

	if err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	return id
}

func (f *fixture) write(t *testing.T, id string, values ...map[string]interface{}) {
	for _, v := range values {
		fields := map[string]schema.FieldValue{}

		for name, value := range v {
			fields[name] = schema.String(value.(string))
		}

		record := schema.Record{Collection: testCollection, SchemaName: testSchemaName, SchemaVersion: 1, Fields: fields}

		if err := f.coordinator.Write(context.Background(), id, record); err != nil {
			t.Fatalf("expected err to be nil, got %#v", err)
		}
	}
}

func (f *fixture) queryAll(t *testing.T, txnID string, options query.Options) []map[string]interface{} {
	ctx := context.Background()
	id, err := f.engine.CreateQuery(ctx, testCollection, testSchemaName, options)

	if err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	records, err := f.engine.QueryAll(ctx, id, txnID)

	if err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	values := []map[string]interface{}{}

	for _, record := range records {
		values = append(values, record.Values())
	}

	return values
}

var (
	record1 = map[string]interface{}{"partition": "default", "partition1": "a", "range": "rtestq", "data1": "dataq"}
	record2 = map[string]interface{}{"partition": "default", "partition1": "h", "range": "arq1", "data1": "adq1"}
)

func TestQuery(t *testing.T) {
	for _, plugin := range plugins.Plugins() {
		plugin := plugin

		t.Run(plugin.Name(), func(t *testing.T) {
			f := newFixture(t, plugin, 0)
			setup := f.begin(t)
			f.write(t, setup, record1, record2)

			if err := f.coordinator.End(context.Background(), setup, true); err != nil {
				t.Fatalf("expected err to be nil, got %#v", err)
			}

			testCases := map[string]struct {
				options  query.Options
				expected []map[string]interface{}
			}{
				"all": {
					expected: []map[string]interface{}{record1, record2},
				},
				"start": {
					options:  query.Options{Start: map[string]interface{}{"partition": "default", "partition1": "h"}},
					expected: []map[string]interface{}{record2},
				},
				"end": {
					options:  query.Options{End: map[string]interface{}{"partition": "default", "partition1": "h"}},
					expected: []map[string]interface{}{record1},
				},
				"limit": {
					options:  query.Options{Limit: 1},
					expected: []map[string]interface{}{record1},
				},
				"reverse": {
					options:  query.Options{Reverse: true},
					expected: []map[string]interface{}{record2, record1},
				},
				"limit-reverse": {
					options:  query.Options{Limit: 1, Reverse: true},
					expected: []map[string]interface{}{record2},
				},
				"json-limit": {
					options:  query.Options{Limit: json.Number("1"), Reverse: false},
					expected: []map[string]interface{}{record1},
				},
				"float-limit": {
					options:  query.Options{Limit: float64(2)},
					expected: []map[string]interface{}{record1, record2},
				},
				"empty-range": {
					options: query.Options{
						Start: map[string]interface{}{"partition": "default", "partition1": "h"},
						End:   map[string]interface{}{"partition": "default", "partition1": "a"},
					},
					expected: []map[string]interface{}{},
				},
			}

			id := f.begin(t)

			for name, testCase := range testCases {
				t.Run(name, func(t *testing.T) {
					if diff := cmp.Diff(testCase.expected, f.queryAll(t, id, testCase.options)); diff != "" {
						t.Fatal(diff)
					}
				})
			}
		})
	}
}

func TestCreateQueryErrors(t *testing.T) {
	f := newFixture(t, plugins.Plugin("memory"), 0)
	ctx := context.Background()

	testCases := map[string]struct {
		collection string
		schemaName string
		options    query.Options
		err        error
	}{
		"reverse-type": {
			options: query.Options{Limit: 1, Reverse: 5},
			err:     query.ErrTypeError,
		},
		"limit-type": {
			options: query.Options{Limit: "test", Reverse: false},
			err:     query.ErrTypeError,
		},
		"limit-fraction": {
			options: query.Options{Limit: 1.5},
			err:     query.ErrTypeError,
		},
		"limit-negative": {
			options: query.Options{Limit: -1},
			err:     schema.ErrInvalidArgument,
		},
		"bound-type": {
			options: query.Options{Start: map[string]interface{}{"partition": 1}},
			err:     schema.ErrTypeMismatch,
		},
		"bound-unknown-field": {
			options: query.Options{Start: map[string]interface{}{"nope": "a"}},
			err:     schema.ErrUnknownField,
		},
		"bound-not-prefix": {
			options: query.Options{End: map[string]interface{}{"partition1": "a"}},
			err:     schema.ErrInvalidArgument,
		},
		"unknown-collection": {
			collection: "HTTPClient1",
			err:        registry.ErrNotFound,
		},
		"unknown-schema": {
			schemaName: "query_test1",
			err:        registry.ErrNotFound,
		},
	}

	for name, testCase := range testCases {
		t.Run(name, func(t *testing.T) {
			collection := testCollection
			schemaName := testSchemaName

			if testCase.collection != "" {
				collection = testCase.collection
			}

			if testCase.schemaName != "" {
				schemaName = testCase.schemaName
			}

			_, err := f.engine.CreateQuery(ctx, collection, schemaName, testCase.options)

			if !errors.Is(err, testCase.err) {
				t.Fatalf("expected err to be %#v, got %#v", testCase.err, err)
			}

			if testCase.err == query.ErrTypeError && !strings.Contains(err.Error(), "type_error") {
				t.Fatalf("expected message to mention type_error, got %s", err.Error())
			}
		})
	}
}

func TestPaging(t *testing.T) {
	for _, plugin := range plugins.Plugins() {
		plugin := plugin

		t.Run(plugin.Name(), func(t *testing.T) {
			f := newFixture(t, plugin, 2)
			ctx := context.Background()
			setup := f.begin(t)
			all := []map[string]interface{}{}

			for i := 0; i < 7; i++ {
				record := map[string]interface{}{"partition": "default", "partition1": "p", "range": fmt.Sprintf("r%d", i), "data1": "committed"}
				all = append(all, record)
			}

			f.write(t, setup, all...)

			if err := f.coordinator.End(ctx, setup, true); err != nil {
				t.Fatalf("expected err to be nil, got %#v", err)
			}

			id := f.begin(t)
			// staged in the reading transaction and merged into the results
			staged := map[string]interface{}{"partition": "default", "partition1": "p", "range": "r3a", "data1": "staged"}
			f.write(t, id, staged)

			if err := f.coordinator.Delete(ctx, id, schema.Record{Collection: testCollection, SchemaName: testSchemaName, SchemaVersion: 1, Fields: map[string]schema.FieldValue{
				"partition":  schema.String("default"),
				"partition1": schema.String("p"),
				"range":      schema.String("r5"),
			}}); err != nil {
				t.Fatalf("expected err to be nil, got %#v", err)
			}

			visible := []map[string]interface{}{all[0], all[1], all[2], all[3], staged, all[4], all[6]}
			reversed := []map[string]interface{}{}

			for i := len(visible) - 1; i >= 0; i-- {
				reversed = append(reversed, visible[i])
			}

			testCases := map[string]struct {
				options  query.Options
				expected []map[string]interface{}
			}{
				"all": {
					expected: visible,
				},
				"reverse": {
					options:  query.Options{Reverse: true},
					expected: reversed,
				},
				"limit": {
					options:  query.Options{Limit: 5},
					expected: visible[:5],
				},
				"limit-reverse": {
					options:  query.Options{Limit: 3, Reverse: true},
					expected: reversed[:3],
				},
				"start": {
					options:  query.Options{Start: map[string]interface{}{"partition": "default", "partition1": "p", "range": "r3"}},
					expected: visible[3:],
				},
			}

			for name, testCase := range testCases {
				t.Run(name, func(t *testing.T) {
					if diff := cmp.Diff(testCase.expected, f.queryAll(t, id, testCase.options)); diff != "" {
						t.Fatal(diff)
					}
				})
			}
		})
	}
}

func TestCursor(t *testing.T) {
	f := newFixture(t, plugins.Plugin("memory"), 1)
	ctx := context.Background()
	setup := f.begin(t)
	f.write(t, setup, record1, record2)

	if err := f.coordinator.End(ctx, setup, true); err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	id, err := f.engine.CreateQuery(ctx, testCollection, testSchemaName, query.Options{})

	if err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	txnID := f.begin(t)
	cursor, err := f.engine.Cursor(ctx, id, txnID)

	if err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	if !cursor.Next() {
		t.Fatalf("expected a first record, got error %#v", cursor.Error())
	}

	if diff := cmp.Diff(record1, cursor.Value().Values()); diff != "" {
		t.Fatal(diff)
	}

	// a concurrent writer may not touch what the cursor already read
	writer := f.begin(t)

	if err := f.coordinator.Write(ctx, writer, schema.Record{Collection: testCollection, SchemaName: testSchemaName, SchemaVersion: 1, Fields: map[string]schema.FieldValue{
		"partition":  schema.String("default"),
		"partition1": schema.String("a"),
		"range":      schema.String("rtestq"),
	}}); !errors.Is(err, txn.ErrConflict) {
		t.Fatalf("expected err to be %#v, got %#v", txn.ErrConflict, err)
	}

	if !cursor.Next() {
		t.Fatalf("expected a second record, got error %#v", cursor.Error())
	}

	if diff := cmp.Diff(record2, cursor.Value().Values()); diff != "" {
		t.Fatal(diff)
	}

	if cursor.Next() {
		t.Fatalf("expected no more records, got %#v", cursor.Value())
	}

	if cursor.Error() != nil {
		t.Fatalf("expected err to be nil, got %#v", cursor.Error())
	}

	// queries run again from the start and stop at a finalized transaction
	if err := f.coordinator.End(ctx, txnID, true); err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	if _, err := f.engine.QueryAll(ctx, id, txnID); !errors.Is(err, txn.ErrInvalidState) {
		t.Fatalf("expected err to be %#v, got %#v", txn.ErrInvalidState, err)
	}

	if err := f.engine.DestroyQuery(ctx, id); err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	if _, err := f.engine.QueryAll(ctx, id, f.begin(t)); !errors.Is(err, query.ErrNotFound) {
		t.Fatalf("expected err to be %#v, got %#v", query.ErrNotFound, err)
	}

	if err := f.engine.DestroyQuery(ctx, id); !errors.Is(err, query.ErrNotFound) {
		t.Fatalf("expected err to be %#v, got %#v", query.ErrNotFound, err)
	}
}
