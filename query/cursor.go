package query

import (
	"context"

	"github.com/jrife/skv/schema"
	"github.com/jrife/skv/storage/kv/keys"
	"github.com/jrife/skv/txn"
	"github.com/jrife/skv/utils/stream"
)

var _ stream.Stream[schema.Record] = (*Cursor)(nil)

// Cursor walks the results of one run of a query. Records are
// fetched from the transaction a page at a time. A page never
// asks for more records than the limit still allows.
type Cursor struct {
	ctx         context.Context
	coordinator *txn.Coordinator
	query       *Query
	txnID       string
	pageSize    int

	// the part of the range that was not fetched yet
	r       keys.Range
	page    []schema.Record
	i       int
	emitted int
	done    bool
	current schema.Record
	err     error
}

// Next implements stream.Stream.Next
func (cursor *Cursor) Next() bool {
	for cursor.err == nil {
		if cursor.query.Limit > 0 && cursor.emitted >= cursor.query.Limit {
			break
		}

		if cursor.i < len(cursor.page) {
			cursor.current = cursor.page[cursor.i]
			cursor.i++
			cursor.emitted++

			return true
		}

		if cursor.done {
			break
		}

		cursor.fetch()
	}

	cursor.current = schema.Record{}

	return false
}

func (cursor *Cursor) fetch() {
	size := cursor.pageSize

	if cursor.query.Limit > 0 && cursor.query.Limit-cursor.emitted < size {
		size = cursor.query.Limit - cursor.emitted
	}

	page, err := cursor.coordinator.Scan(cursor.ctx, cursor.txnID, cursor.query.Collection, cursor.query.Schema.Name, cursor.r, cursor.query.Reverse, size)

	if err != nil {
		cursor.err = err

		return
	}

	cursor.page = page.Records
	cursor.i = 0

	switch {
	case page.Resume == nil:
		cursor.done = true
	case cursor.query.Reverse:
		cursor.r = cursor.r.Lt(page.Resume)
	default:
		cursor.r = cursor.r.Gt(page.Resume)
	}
}

// Value implements stream.Stream.Value
func (cursor *Cursor) Value() schema.Record {
	return cursor.current
}

// Error implements stream.Stream.Error
func (cursor *Cursor) Error() error {
	return cursor.err
}
