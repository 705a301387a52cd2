// Package txn coordinates optimistic transactions over the
// mvcc store. Every transaction reads from the snapshot taken
// when it began and stages its writes until it commits.
//
// Conflicts are detected by observation. A key read or a range
// scanned by an active transaction may not be written by any
// other transaction until the reader finalizes. A key committed
// after a transaction's snapshot may not be written by that
// transaction at all. A rejected write dooms the transaction
// so that its later commit also fails.
package txn

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jrife/skv/metrics"
	"github.com/jrife/skv/registry"
	"github.com/jrife/skv/schema"
	"github.com/jrife/skv/storage/kv"
	"github.com/jrife/skv/storage/kv/keys"
	"github.com/jrife/skv/storage/kv/keys/composite"
	"github.com/jrife/skv/storage/mvcc"
	"github.com/jrife/skv/utils/log"
	"github.com/jrife/skv/utils/stream"
	"github.com/jrife/skv/utils/uuid"
	"github.com/zhangyunhao116/skipmap"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// Config configures a Coordinator
type Config struct {
	Registry *registry.Registry
	Store    *mvcc.Store
	Logger   *zap.Logger
	Metrics  *metrics.Metrics
	// MaxOpenTransactions bounds the number of active
	// transactions. 0 means no bound.
	MaxOpenTransactions int
	// TransactionTimeout is how long a transaction may stay idle
	// before the reaper aborts it. 0 disables the timeout.
	TransactionTimeout time.Duration
	// FinalizedRetention is how long a finalized transaction is
	// remembered so that repeated End calls report InvalidState
	FinalizedRetention time.Duration
	// ReaperInterval is the period of the background reaper.
	// 0 disables it. Reap can still be called directly.
	ReaperInterval time.Duration
	// Compact makes the reaper drop versions that no active
	// snapshot can observe
	Compact bool
	// Now defaults to time.Now
	Now func() time.Time
}

// Page is one batch of scan results
type Page struct {
	Keys    []keys.Key
	Records []schema.Record
	// Resume is the last key the scan examined. The next page
	// starts after it in traversal order. It is nil once the
	// range is exhausted.
	Resume keys.Key
}

// Coordinator owns every open transaction
type Coordinator struct {
	config   Config
	registry *registry.Registry
	store    *mvcc.Store
	logger   *zap.Logger
	metrics  *metrics.Metrics
	now      func() time.Time

	// newest published commit timestamp. Snapshots are taken
	// from it and commits publish to it after they are applied.
	oracle atomic.Uint64
	// pairs timestamp allocation with publication
	commitMu sync.Mutex
	// keeps compaction from passing a snapshot that is being taken
	snapshotMu sync.RWMutex
	compacted  atomic.Uint64

	txns      *skipmap.OrderedMap[string, *transaction]
	open      atomic.Int64
	observers observerTable
	ranges    *rangeTable

	closed atomic.Bool
	stop   chan struct{}
	done   chan struct{}
}

// New creates a coordinator and starts its reaper
func New(config Config) (*Coordinator, error) {
	if config.Logger == nil {
		config.Logger = zap.L()
	}

	if config.Metrics == nil {
		config.Metrics = metrics.New(nil)
	}

	if config.Now == nil {
		config.Now = time.Now
	}

	if err := config.Store.Open(); err != nil {
		return nil, fmt.Errorf("could not open mvcc store: %w", err)
	}

	newest, err := config.Store.NewestTimestamp()

	if err != nil {
		return nil, fmt.Errorf("could not read newest timestamp: %w", err)
	}

	coordinator := &Coordinator{
		config:    config,
		registry:  config.Registry,
		store:     config.Store,
		logger:    config.Logger,
		metrics:   config.Metrics,
		now:       config.Now,
		txns:      skipmap.New[string, *transaction](),
		observers: newObserverTable(),
		ranges:    newRangeTable(),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}

	coordinator.oracle.Store(newest)

	if config.ReaperInterval > 0 {
		go coordinator.reaper(config.ReaperInterval)
	} else {
		close(coordinator.done)
	}

	return coordinator, nil
}

// Close stops the reaper. Open transactions are abandoned.
func (coordinator *Coordinator) Close() error {
	if coordinator.closed.Swap(true) {
		return nil
	}

	close(coordinator.stop)
	<-coordinator.done

	return nil
}

// Begin starts a transaction and returns its handle
func (coordinator *Coordinator) Begin(ctx context.Context) (string, error) {
	logger := log.Operation(ctx, coordinator.logger, "Begin")

	logger.Debug("start")
	defer logger.Debug("return")

	if coordinator.closed.Load() {
		return "", ErrClosed
	}

	if open := coordinator.open.Inc(); coordinator.config.MaxOpenTransactions > 0 && open > int64(coordinator.config.MaxOpenTransactions) {
		coordinator.open.Dec()

		return "", fmt.Errorf("%w: %d transactions are open", ErrUnavailable, coordinator.config.MaxOpenTransactions)
	}

	coordinator.snapshotMu.RLock()
	txn := newTransaction(uuid.MustUUID(), coordinator.oracle.Load(), coordinator.now())
	coordinator.txns.Store(txn.id, txn)
	coordinator.snapshotMu.RUnlock()

	coordinator.metrics.OpenTransactions.Inc()
	logger.Debug("began transaction", zap.String("txn", txn.id), zap.Uint64("snapshot", txn.snapshot))

	return txn.id, nil
}

// Status returns the status of a transaction
func (coordinator *Coordinator) Status(id string) (Status, error) {
	txn, ok := coordinator.txns.Load(id)

	if !ok {
		return Aborted, fmt.Errorf("%w: transaction %s", ErrNotFound, id)
	}

	return txn.getStatus(), nil
}

// acquire locks an active transaction. The caller must
// unlock txn.mu when it returns without an error.
func (coordinator *Coordinator) acquire(id string) (*transaction, error) {
	txn, ok := coordinator.txns.Load(id)

	if !ok {
		return nil, fmt.Errorf("%w: transaction %s", ErrNotFound, id)
	}

	txn.mu.Lock()

	if !txn.active() {
		txn.mu.Unlock()

		return nil, fmt.Errorf("%w: transaction %s is %s", ErrInvalidState, id, txn.getStatus())
	}

	txn.lastActive.Store(coordinator.now())

	return txn, nil
}

func namespace(collection string, schemaName string) (keys.Key, error) {
	return composite.Encode([]schema.FieldValue{schema.String(collection), schema.String(schemaName)})
}

// resolve validates record against its schema and returns the
// validated copy along with its storage key
func (coordinator *Coordinator) resolve(ctx context.Context, record schema.Record) (schema.Record, keys.Key, error) {
	s, err := coordinator.registry.Schema(ctx, record.Collection, record.SchemaName, record.SchemaVersion)

	if err != nil {
		return schema.Record{}, nil, err
	}

	fields := make(map[string]schema.FieldValue, len(record.Fields))

	for name, value := range record.Fields {
		fields[name] = value
	}

	record.Fields = fields

	if err := schema.Validate(&record, s); err != nil {
		return schema.Record{}, nil, err
	}

	keyFields, err := schema.KeyFields(record, s)

	if err != nil {
		return schema.Record{}, nil, err
	}

	key, err := composite.Encode(keyFields)

	if err != nil {
		return schema.Record{}, nil, err
	}

	ns, err := namespace(record.Collection, record.SchemaName)

	if err != nil {
		return schema.Record{}, nil, err
	}

	return record, keys.Concat(ns, key), nil
}

func decodeRecord(value []byte) (schema.Record, error) {
	var record schema.Record

	if err := json.Unmarshal(value, &record); err != nil {
		return schema.Record{}, fmt.Errorf("could not unmarshal record: %w", err)
	}

	return record, nil
}

// Read returns the record with the key of record as of the
// transaction's snapshot, including its own staged writes. The
// key is observed even when no record exists.
func (coordinator *Coordinator) Read(ctx context.Context, id string, record schema.Record) (schema.Record, error) {
	logger := log.Operation(ctx, coordinator.logger, "Read").With(zap.String("txn", id), zap.String("collection", record.Collection), zap.String("schema", record.SchemaName))

	logger.Debug("start")
	defer logger.Debug("return")

	txn, err := coordinator.acquire(id)

	if err != nil {
		return schema.Record{}, err
	}

	defer txn.mu.Unlock()

	_, key, err := coordinator.resolve(ctx, record)

	if err != nil {
		return schema.Record{}, err
	}

	if _, ok := txn.observed[string(key)]; !ok {
		coordinator.observers.observe(key, txn)
		txn.observed[string(key)] = struct{}{}
	}

	if w, ok := txn.staged(key); ok {
		if w.deleted() {
			return schema.Record{}, fmt.Errorf("%w: key %s", ErrNotFound, composite.Printable(key))
		}

		return decodeRecord(w.value)
	}

	version, err := coordinator.store.Get(key, txn.snapshot)

	if err != nil {
		return schema.Record{}, fmt.Errorf("could not read key %s: %w", composite.Printable(key), err)
	}

	if version == nil {
		return schema.Record{}, fmt.Errorf("%w: key %s", ErrNotFound, composite.Printable(key))
	}

	return decodeRecord(version.Value)
}

// Write stages record in the transaction's write set
func (coordinator *Coordinator) Write(ctx context.Context, id string, record schema.Record) error {
	logger := log.Operation(ctx, coordinator.logger, "Write").With(zap.String("txn", id), zap.String("collection", record.Collection), zap.String("schema", record.SchemaName))

	logger.Debug("start")
	defer logger.Debug("return")

	return coordinator.write(ctx, logger, id, record, false)
}

// Delete stages a deletion of the record with the key of record
func (coordinator *Coordinator) Delete(ctx context.Context, id string, record schema.Record) error {
	logger := log.Operation(ctx, coordinator.logger, "Delete").With(zap.String("txn", id), zap.String("collection", record.Collection), zap.String("schema", record.SchemaName))

	logger.Debug("start")
	defer logger.Debug("return")

	return coordinator.write(ctx, logger, id, record, true)
}

func (coordinator *Coordinator) write(ctx context.Context, logger *zap.Logger, id string, record schema.Record, tombstone bool) error {
	txn, err := coordinator.acquire(id)

	if err != nil {
		return err
	}

	defer txn.mu.Unlock()

	record, key, err := coordinator.resolve(ctx, record)

	if err != nil {
		return err
	}

	var value []byte

	if !tombstone {
		value, err = json.Marshal(record)

		if err != nil {
			return fmt.Errorf("could not marshal record: %w", err)
		}
	}

	if err := coordinator.checkWrite(txn, key); err != nil {
		txn.doomed = true
		coordinator.metrics.Conflicts.Inc()
		logger.Info("write rejected", zap.String("key", composite.Printable(key)), zap.Error(err))

		return err
	}

	txn.stage(key, value)

	return nil
}

// checkWrite returns ErrConflict if another active transaction
// observed key or if key was committed after txn's snapshot
func (coordinator *Coordinator) checkWrite(txn *transaction, key keys.Key) error {
	coordinator.ranges.mu.RLock()
	observed := coordinator.observers.conflicts(key, txn) || coordinator.ranges.conflicts(key, txn)
	coordinator.ranges.mu.RUnlock()

	if observed {
		return fmt.Errorf("%w: key %s is observed by another transaction", ErrConflict, composite.Printable(key))
	}

	return coordinator.checkCommitted(txn, key)
}

func (coordinator *Coordinator) checkCommitted(txn *transaction, key keys.Key) error {
	latest, err := coordinator.store.LatestCommit(key)

	if err != nil {
		return fmt.Errorf("could not read latest commit of key %s: %w", composite.Printable(key), err)
	}

	if latest > txn.snapshot {
		return fmt.Errorf("%w: key %s was committed at %d after snapshot %d", ErrConflict, composite.Printable(key), latest, txn.snapshot)
	}

	return nil
}

type scanned struct {
	key   keys.Key
	value []byte
}

// Scan returns up to limit records of one schema whose keys lie in
// r as of the transaction's snapshot, merged with the transaction's
// staged writes. r is relative to the schema's key space. The part
// of r that was examined is observed by the transaction.
func (coordinator *Coordinator) Scan(ctx context.Context, id string, collection string, schemaName string, r keys.Range, reverse bool, limit int) (Page, error) {
	logger := log.Operation(ctx, coordinator.logger, "Scan").With(zap.String("txn", id), zap.String("collection", collection), zap.String("schema", schemaName))

	logger.Debug("start", zap.Bool("reverse", reverse), zap.Int("limit", limit))
	defer logger.Debug("return")

	txn, err := coordinator.acquire(id)

	if err != nil {
		return Page{}, err
	}

	defer txn.mu.Unlock()

	ns, err := namespace(collection, schemaName)

	if err != nil {
		return Page{}, err
	}

	nr := r.Namespace(ns)
	observation := coordinator.ranges.observe(txn, nr)
	order := kv.SortOrderAsc
	compare := func(a, b scanned) int { return keys.Compare(a.key, b.key) }

	if reverse {
		order = kv.SortOrderDesc
		compare = func(a, b scanned) int { return keys.Compare(b.key, a.key) }
	}

	versions, err := coordinator.store.Scan(nr, txn.snapshot, order, limit)

	if err != nil {
		return Page{}, fmt.Errorf("could not scan versions: %w", err)
	}

	base := make([]scanned, len(versions))

	for i, version := range versions {
		base[i] = scanned{key: version.Key, value: version.Value}
	}

	overlay := []scanned{}

	for _, w := range txn.stagedIn(nr, reverse) {
		overlay = append(overlay, scanned{key: w.key, value: w.value})
	}

	// A full page may have stopped short of keys that are staged
	// in this transaction. Results end at the last version seen.
	var boundary keys.Key

	if limit > 0 && len(versions) == limit {
		boundary = versions[len(versions)-1].Key
	}

	results, err := stream.Collect(stream.Pipeline(
		stream.FromSlice(base),
		stream.Merge(stream.FromSlice(overlay), compare),
		stream.Filter(func(s scanned) bool {
			return boundary == nil || compare(s, scanned{key: boundary}) <= 0
		}),
		stream.Filter(func(s scanned) bool { return s.value != nil }),
		stream.Limit[scanned](limit),
	))

	if err != nil {
		return Page{}, err
	}

	page := Page{Keys: make([]keys.Key, 0, len(results)), Records: make([]schema.Record, 0, len(results))}

	for _, result := range results {
		record, err := decodeRecord(result.value)

		if err != nil {
			return Page{}, err
		}

		page.Keys = append(page.Keys, keys.Key(result.key[len(ns):]))
		page.Records = append(page.Records, record)
	}

	var resume keys.Key

	switch {
	case limit > 0 && len(results) == limit:
		resume = results[len(results)-1].key
	case boundary != nil:
		resume = boundary
	}

	if resume != nil {
		examined := keys.Range{Min: nr.Min, Max: keys.After(resume)}

		if reverse {
			examined = keys.Range{Min: resume, Max: nr.Max}
		}

		coordinator.ranges.narrow(txn, observation, examined)
		page.Resume = keys.Key(resume[len(ns):])
	}

	logger.Debug("scanned", zap.Int("versions", len(versions)), zap.Int("staged", len(overlay)), zap.Int("records", len(page.Records)))

	return page, nil
}

// End commits or aborts a transaction. A transaction may only
// be ended once. A failed commit aborts the transaction.
func (coordinator *Coordinator) End(ctx context.Context, id string, commit bool) error {
	logger := log.Operation(ctx, coordinator.logger, "End").With(zap.String("txn", id), zap.Bool("commit", commit))

	logger.Debug("start")
	defer logger.Debug("return")

	txn, err := coordinator.acquire(id)

	if err != nil {
		return err
	}

	defer txn.mu.Unlock()

	if !commit {
		coordinator.finalize(txn, Aborted)

		return nil
	}

	if txn.doomed {
		coordinator.finalize(txn, Aborted)
		coordinator.metrics.Conflicts.Inc()

		return fmt.Errorf("%w: transaction %s had a rejected write", ErrConflict, id)
	}

	timestamp, err := coordinator.commit(txn)

	if err != nil {
		coordinator.finalize(txn, Aborted)

		if errors.Is(err, ErrConflict) {
			coordinator.metrics.Conflicts.Inc()
		}

		logger.Info("commit failed", zap.Error(err))

		return err
	}

	coordinator.finalize(txn, Committed)
	logger.Debug("committed", zap.Uint64("timestamp", timestamp))

	return nil
}

// commit validates the write set under the observer locks of
// every written key and applies it at a new timestamp. Locks are
// taken in key order.
func (coordinator *Coordinator) commit(txn *transaction) (uint64, error) {
	writeKeys := txn.writeKeys()

	if len(writeKeys) == 0 {
		return coordinator.oracle.Load(), nil
	}

	coordinator.ranges.mu.RLock()
	defer coordinator.ranges.mu.RUnlock()

	sort.Slice(writeKeys, func(i, j int) bool { return keys.Compare(writeKeys[i], writeKeys[j]) < 0 })

	locked := make([]*observer, 0, len(writeKeys))

	defer func() {
		for i, o := range locked {
			coordinator.observers.unlock(writeKeys[i], o)
		}
	}()

	for _, key := range writeKeys {
		o := coordinator.observers.lock(key)
		locked = append(locked, o)

		if o.conflicts(txn) || coordinator.ranges.conflicts(key, txn) {
			return 0, fmt.Errorf("%w: key %s is observed by another transaction", ErrConflict, composite.Printable(key))
		}

		if err := coordinator.checkCommitted(txn, key); err != nil {
			return 0, err
		}
	}

	mutations := make([]mvcc.Mutation, 0, len(writeKeys))

	for _, key := range writeKeys {
		w, _ := txn.staged(key)
		mutations = append(mutations, mvcc.Mutation{Key: w.key, Value: w.value, Delete: w.deleted()})
	}

	coordinator.commitMu.Lock()
	defer coordinator.commitMu.Unlock()

	timestamp := coordinator.oracle.Load() + 1

	if err := coordinator.store.Apply(timestamp, mutations); err != nil {
		return 0, fmt.Errorf("could not apply write set: %w", err)
	}

	coordinator.oracle.Store(timestamp)

	return timestamp, nil
}

// finalize moves an active transaction to status and releases
// everything it observed. The caller must hold txn.mu and no
// observer locks.
func (coordinator *Coordinator) finalize(txn *transaction, status Status) {
	now := coordinator.now()

	txn.status.Store(int32(status))
	txn.finalized.Store(now)

	for key := range txn.observed {
		coordinator.observers.release(keys.Key(key), txn)
	}

	coordinator.ranges.release(txn)
	txn.observed = map[string]struct{}{}
	txn.writes.Clear()

	coordinator.open.Dec()
	coordinator.metrics.OpenTransactions.Dec()
	coordinator.metrics.TxnDuration.Observe(now.Sub(txn.began).Seconds())
}
