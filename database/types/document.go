// Package types defines the document-store contracts shared by the handle
// cache, the MongoDB backend and the in-memory test store.
package types

import (
	"context"
	"errors"
)

// ErrNoDocuments is returned by DocumentResult when a lookup matched nothing.
var ErrNoDocuments = errors.New("no documents in result")

// Handle is a live session bound to one tenant's store. A handle is shared by
// every concurrent operation against that tenant and is never mutated after
// construction. Only the handle cache may close it.
type Handle interface {
	// Name returns the tenant store the handle is bound to.
	Name() string
	Collection(name string) DocumentCollection
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// DocumentCollection is the subset of collection operations the record services use.
type DocumentCollection interface {
	// InsertOne stores document and returns the store-assigned identifier.
	InsertOne(ctx context.Context, document any) (any, error)
	FindOne(ctx context.Context, filter any) DocumentResult
	Find(ctx context.Context, filter any) (DocumentCursor, error)
	UpdateOne(ctx context.Context, filter any, update any) (DocumentUpdateResult, error)
	DeleteOne(ctx context.Context, filter any) (DocumentDeleteResult, error)
}

// DocumentCursor iterates over query results.
type DocumentCursor interface {
	Next(ctx context.Context) bool
	Decode(val any) error
	Err() error
	Close(ctx context.Context) error
}

// DocumentResult represents a single document result.
type DocumentResult interface {
	Decode(v any) error
	Err() error
}

// DocumentUpdateResult represents the result of an update operation.
type DocumentUpdateResult interface {
	MatchedCount() int64
	ModifiedCount() int64
}

// DocumentDeleteResult represents the result of a delete operation.
type DocumentDeleteResult interface {
	DeletedCount() int64
}
