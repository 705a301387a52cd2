// Package server exposes the store's operations to clients. It
// resolves the plain values clients send against schemas, times
// transaction boundaries, and maps errors to status codes.
package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jrife/skv/metrics"
	"github.com/jrife/skv/query"
	"github.com/jrife/skv/registry"
	"github.com/jrife/skv/schema"
	"github.com/jrife/skv/storage/kv/keys/composite"
	"github.com/jrife/skv/txn"
	"github.com/jrife/skv/utils/log"
	"go.uber.org/zap"
)

// ErrBadRequest is returned for requests that could not be decoded
var ErrBadRequest = errors.New("bad request")

// Location names the schema version a record belongs to
type Location struct {
	Collection    string
	SchemaName    string
	SchemaVersion int64
}

// Config configures a Service
type Config struct {
	Registry    *registry.Registry
	Coordinator *txn.Coordinator
	Engine      *query.Engine
	Logger      *zap.Logger
	Metrics     *metrics.Metrics
}

// Service implements the client facing operations
type Service struct {
	registry    *registry.Registry
	coordinator *txn.Coordinator
	engine      *query.Engine
	logger      *zap.Logger
	metrics     *metrics.Metrics
}

// New creates a service
func New(config Config) *Service {
	if config.Logger == nil {
		config.Logger = zap.L()
	}

	if config.Metrics == nil {
		config.Metrics = metrics.New(nil)
	}

	return &Service{
		registry:    config.Registry,
		coordinator: config.Coordinator,
		engine:      config.Engine,
		logger:      config.Logger,
		metrics:     config.Metrics,
	}
}

// Metrics returns the collectors the service reports to
func (service *Service) Metrics() *metrics.Metrics {
	return service.metrics
}

// DeserializationError counts a request that could not be decoded
// and returns err wrapped as a bad request
func (service *Service) DeserializationError(err error) error {
	service.metrics.DeserializationErrors.Inc()

	return fmt.Errorf("%w: %s", ErrBadRequest, err.Error())
}

// record builds a record from plain values typed by the schema at loc
func (service *Service) record(ctx context.Context, loc Location, values map[string]interface{}) (schema.Record, error) {
	s, err := service.registry.Schema(ctx, loc.Collection, loc.SchemaName, loc.SchemaVersion)

	if err != nil {
		return schema.Record{}, err
	}

	fields, err := schema.FromValues(s, values)

	if err != nil {
		service.metrics.DeserializationErrors.Inc()

		return schema.Record{}, err
	}

	return schema.Record{Collection: loc.Collection, SchemaName: loc.SchemaName, SchemaVersion: loc.SchemaVersion, Fields: fields}, nil
}

// BeginTransaction starts a transaction
func (service *Service) BeginTransaction(ctx context.Context) (string, error) {
	start := time.Now()
	defer func() { service.metrics.TxnBeginLatency.Observe(time.Since(start).Seconds()) }()

	return service.coordinator.Begin(ctx)
}

// Read returns the values of the record whose key fields are given
func (service *Service) Read(ctx context.Context, txnID string, loc Location, values map[string]interface{}) (map[string]interface{}, error) {
	record, err := service.record(ctx, loc, values)

	if err != nil {
		return nil, err
	}

	result, err := service.coordinator.Read(ctx, txnID, record)

	if err != nil {
		return nil, err
	}

	return result.Values(), nil
}

// Write stages a record
func (service *Service) Write(ctx context.Context, txnID string, loc Location, values map[string]interface{}) error {
	record, err := service.record(ctx, loc, values)

	if err != nil {
		return err
	}

	return service.coordinator.Write(ctx, txnID, record)
}

// Delete stages the deletion of the record whose key fields are given
func (service *Service) Delete(ctx context.Context, txnID string, loc Location, values map[string]interface{}) error {
	record, err := service.record(ctx, loc, values)

	if err != nil {
		return err
	}

	return service.coordinator.Delete(ctx, txnID, record)
}

// EndTransaction commits or aborts a transaction
func (service *Service) EndTransaction(ctx context.Context, txnID string, commit bool) error {
	start := time.Now()
	defer func() { service.metrics.TxnEndLatency.Observe(time.Since(start).Seconds()) }()

	return service.coordinator.End(ctx, txnID, commit)
}

// CreateCollection registers a collection
func (service *Service) CreateCollection(ctx context.Context, metadata schema.CollectionMetadata, rangeEnds []string) error {
	return service.registry.CreateCollection(ctx, metadata, rangeEnds)
}

// CreateSchema registers a schema in a collection
func (service *Service) CreateSchema(ctx context.Context, collection string, s schema.Schema) error {
	return service.registry.CreateSchema(ctx, collection, s)
}

// GetSchema returns a schema. A version below 1 selects the latest.
func (service *Service) GetSchema(ctx context.Context, collection string, name string, version int64) (*schema.Schema, error) {
	if version < 1 {
		return service.registry.LatestSchema(ctx, collection, name)
	}

	return service.registry.Schema(ctx, collection, name, version)
}

// CreateQuery prepares a query and returns its handle
func (service *Service) CreateQuery(ctx context.Context, collection string, schemaName string, options query.Options) (string, error) {
	return service.engine.CreateQuery(ctx, collection, schemaName, options)
}

// QueryAll runs a query within a transaction and returns the
// values of every matching record
func (service *Service) QueryAll(ctx context.Context, txnID string, queryID string) ([]map[string]interface{}, error) {
	records, err := service.engine.QueryAll(ctx, queryID, txnID)

	if err != nil {
		return nil, err
	}

	values := make([]map[string]interface{}, len(records))

	for i, record := range records {
		values[i] = record.Values()
	}

	return values, nil
}

// DestroyQuery forgets a query
func (service *Service) DestroyQuery(ctx context.Context, queryID string) error {
	return service.engine.DestroyQuery(ctx, queryID)
}

// GetKeyString returns the printable form of the key encoding fields
func (service *Service) GetKeyString(ctx context.Context, fields []schema.FieldValue) (string, error) {
	logger := log.Operation(ctx, service.logger, "GetKeyString")

	logger.Debug("start")
	defer logger.Debug("return")

	key, err := composite.Encode(fields)

	if err != nil {
		return "", err
	}

	return composite.Printable(key), nil
}

// ListCollections returns the names of every collection
func (service *Service) ListCollections(ctx context.Context) ([]string, error) {
	return service.registry.Collections(ctx)
}

// GetPartition returns the partition owning the key formed by the
// key fields present in values. Trailing key fields may be omitted.
func (service *Service) GetPartition(ctx context.Context, loc Location, values map[string]interface{}, reverse bool, exclusive bool) (registry.Partition, error) {
	logger := log.Operation(ctx, service.logger, "GetPartition")

	logger.Debug("start")
	defer logger.Debug("return")

	s, err := service.registry.Schema(ctx, loc.Collection, loc.SchemaName, loc.SchemaVersion)

	if err != nil {
		return registry.Partition{}, err
	}

	fields, err := schema.FromValues(s, values)

	if err != nil {
		service.metrics.DeserializationErrors.Inc()

		return registry.Partition{}, err
	}

	prefix, err := schema.KeyPrefix(schema.Record{Fields: fields}, s)

	if err != nil {
		return registry.Partition{}, err
	}

	key, err := composite.Encode(prefix)

	if err != nil {
		return registry.Partition{}, err
	}

	return service.registry.PartitionForKey(ctx, loc.Collection, key, reverse, exclusive)
}

// TransactionStatus reports whether a transaction is active,
// committed or aborted
func (service *Service) TransactionStatus(ctx context.Context, txnID string) (txn.Status, error) {
	return service.coordinator.Status(txnID)
}
