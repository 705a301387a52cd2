// Package query runs range queries over the records of one schema.
// A query is created once and can then be run any number of times
// within transactions. Each run walks the key range lazily in pages
// and observes what it reads in the transaction.
package query

import (
	"context"
	"errors"
	"fmt"

	"github.com/jrife/skv/registry"
	"github.com/jrife/skv/schema"
	"github.com/jrife/skv/storage/kv/keys"
	"github.com/jrife/skv/storage/kv/keys/composite"
	"github.com/jrife/skv/txn"
	"github.com/jrife/skv/utils/log"
	"github.com/jrife/skv/utils/stream"
	"github.com/jrife/skv/utils/uuid"
	"github.com/zhangyunhao116/skipmap"
	"go.uber.org/zap"
)

// DefaultPageSize is used when Config.PageSize is not set
const DefaultPageSize = 100

var (
	// ErrTypeError is returned when a query option has the wrong kind
	ErrTypeError = errors.New("type_error")
	// ErrNotFound is returned for unknown query handles
	ErrNotFound = errors.New("query not found")
)

// Query is a prepared query
type Query struct {
	ID         string
	Collection string
	Schema     *schema.Schema
	// Range is relative to the key space of the schema
	Range   keys.Range
	Limit   int
	Reverse bool
}

// Config configures an Engine
type Config struct {
	Registry    *registry.Registry
	Coordinator *txn.Coordinator
	Logger      *zap.Logger
	// PageSize is the number of records fetched per scan
	PageSize int
}

// Engine creates and runs queries
type Engine struct {
	registry    *registry.Registry
	coordinator *txn.Coordinator
	logger      *zap.Logger
	pageSize    int
	queries     *skipmap.OrderedMap[string, *Query]
}

// New creates an engine
func New(config Config) *Engine {
	if config.Logger == nil {
		config.Logger = zap.L()
	}

	if config.PageSize <= 0 {
		config.PageSize = DefaultPageSize
	}

	return &Engine{
		registry:    config.Registry,
		coordinator: config.Coordinator,
		logger:      config.Logger,
		pageSize:    config.PageSize,
		queries:     skipmap.New[string, *Query](),
	}
}

// CreateQuery prepares a query over the latest version of a schema
// and returns its handle
func (engine *Engine) CreateQuery(ctx context.Context, collection string, schemaName string, options Options) (string, error) {
	logger := log.Operation(ctx, engine.logger, "CreateQuery").With(zap.String("collection", collection), zap.String("schema", schemaName))

	logger.Debug("start")
	defer logger.Debug("return")

	limit, err := parseLimit(options.Limit)

	if err != nil {
		return "", err
	}

	reverse, err := parseReverse(options.Reverse)

	if err != nil {
		return "", err
	}

	s, err := engine.registry.LatestSchema(ctx, collection, schemaName)

	if err != nil {
		return "", err
	}

	start, err := bound(s, options.Start)

	if err != nil {
		return "", fmt.Errorf("start: %w", err)
	}

	end, err := bound(s, options.End)

	if err != nil {
		return "", fmt.Errorf("end: %w", err)
	}

	r, err := composite.Range(s, start, end)

	if err != nil {
		return "", err
	}

	query := &Query{
		ID:         uuid.MustUUID(),
		Collection: collection,
		Schema:     s,
		Range:      r,
		Limit:      limit,
		Reverse:    reverse,
	}

	engine.queries.Store(query.ID, query)
	logger.Debug("created query", zap.String("query", query.ID), zap.String("min", composite.Printable(r.Min)), zap.String("max", composite.Printable(r.Max)), zap.Int("limit", limit), zap.Bool("reverse", reverse))

	return query.ID, nil
}

// Query returns a prepared query
func (engine *Engine) Query(id string) (*Query, error) {
	query, ok := engine.queries.Load(id)

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	return query, nil
}

// Cursor starts a run of a query within a transaction
func (engine *Engine) Cursor(ctx context.Context, id string, txnID string) (*Cursor, error) {
	query, err := engine.Query(id)

	if err != nil {
		return nil, err
	}

	return &Cursor{
		ctx:         ctx,
		coordinator: engine.coordinator,
		query:       query,
		txnID:       txnID,
		pageSize:    engine.pageSize,
		r:           query.Range,
	}, nil
}

// QueryAll runs a query to completion within a transaction
func (engine *Engine) QueryAll(ctx context.Context, id string, txnID string) ([]schema.Record, error) {
	logger := log.Operation(ctx, engine.logger, "QueryAll").With(zap.String("query", id), zap.String("txn", txnID))

	logger.Debug("start")
	defer logger.Debug("return")

	cursor, err := engine.Cursor(ctx, id, txnID)

	if err != nil {
		return nil, err
	}

	return stream.Collect(stream.Pipeline[schema.Record](cursor, stream.Log[schema.Record](logger, "next record")))
}

// DestroyQuery forgets a prepared query
func (engine *Engine) DestroyQuery(ctx context.Context, id string) error {
	if !engine.queries.Delete(id) {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	return nil
}
