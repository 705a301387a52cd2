package http

import (
	"github.com/jrife/skv/schema"
	"github.com/jrife/skv/server"
)

type response struct {
	Status server.Status `json:"status"`
}

type beginTxnResponse struct {
	Status server.Status `json:"status"`
	TxnID  string        `json:"txnID"`
}

type recordRequest struct {
	TxnID          string                 `json:"txnID"`
	CollectionName string                 `json:"collectionName"`
	SchemaName     string                 `json:"schemaName"`
	SchemaVersion  int64                  `json:"schemaVersion"`
	Record         map[string]interface{} `json:"record"`
}

func (request recordRequest) location() server.Location {
	return server.Location{
		Collection:    request.CollectionName,
		SchemaName:    request.SchemaName,
		SchemaVersion: request.SchemaVersion,
	}
}

type readResponse struct {
	Status server.Status          `json:"status"`
	Record map[string]interface{} `json:"record,omitempty"`
}

type endTxnRequest struct {
	TxnID string `json:"txnID"`
	// nil means commit
	Commit *bool `json:"commit"`
}

type createCollectionRequest struct {
	Metadata  schema.CollectionMetadata `json:"metadata"`
	RangeEnds []string                  `json:"rangeEnds"`
}

type createSchemaRequest struct {
	CollectionName string        `json:"collectionName"`
	Schema         schema.Schema `json:"schema"`
}

type getSchemaRequest struct {
	CollectionName string `json:"collectionName"`
	SchemaName     string `json:"schemaName"`
	SchemaVersion  int64  `json:"schemaVersion"`
}

type getSchemaResponse struct {
	Status server.Status  `json:"status"`
	Schema *schema.Schema `json:"schema,omitempty"`
}

type createQueryRequest struct {
	CollectionName string                 `json:"collectionName"`
	SchemaName     string                 `json:"schemaName"`
	Start          map[string]interface{} `json:"start"`
	End            map[string]interface{} `json:"end"`
	Limit          interface{}            `json:"limit"`
	Reverse        interface{}            `json:"reverse"`
}

type createQueryResponse struct {
	Status  server.Status `json:"status"`
	QueryID string        `json:"queryID,omitempty"`
}

type queryAllRequest struct {
	TxnID   string `json:"txnID"`
	QueryID string `json:"queryID"`
}

type queryAllResponse struct {
	Status  server.Status            `json:"status"`
	Records []map[string]interface{} `json:"records"`
}

type destroyQueryRequest struct {
	QueryID string `json:"queryID"`
}

type getKeyStringRequest struct {
	Fields []schema.FieldValue `json:"fields"`
}

type getKeyStringResponse struct {
	Status server.Status `json:"status"`
	Result string        `json:"result"`
}

type listCollectionsResponse struct {
	Status      server.Status `json:"status"`
	Collections []string      `json:"collections"`
}

type getPartitionRequest struct {
	recordRequest
	Reverse   bool `json:"reverse"`
	Exclusive bool `json:"exclusive"`
}

// partition carries the bounds of a partition as key strings.
// An empty end stands for the end of the key space.
type partition struct {
	Index int    `json:"index"`
	Start string `json:"start"`
	End   string `json:"end"`
}

type getPartitionResponse struct {
	Status    server.Status `json:"status"`
	Partition *partition    `json:"partition,omitempty"`
}

type getTxnStatusRequest struct {
	TxnID string `json:"txnID"`
}

type getTxnStatusResponse struct {
	Status    server.Status `json:"status"`
	TxnStatus string        `json:"txnStatus,omitempty"`
}
