package types

import (
	"context"
)

// DocumentStore is the opaque remote content store. Filters support
// equality, $lt/$gt style comparisons and array-contains-any; the fetch
// layer deliberately filters on a single field server-side and sorts
// client-side to avoid composite indexes.
type DocumentStore interface {
	LifecycleManager
	QueryCollection(ctx context.Context, request QueryRequest) ([]map[string]interface{}, error)
	GetDocument(ctx context.Context, collection, id string) (map[string]interface{}, error)
	Ping(ctx context.Context) error
}

// QueryRequest describes one collection read. Cursor, when non-zero,
// resumes after the last record of a previous page ordered by OrderBy
// descending.
type QueryRequest struct {
	Collection string
	Filter     map[string]interface{}
	OrderBy    string
	Descending bool
	Limit      int
	Cursor     int64
}

type DocumentStoreCreator func(config interface{}) (DocumentStore, error)
