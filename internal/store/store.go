// Package store narrows the document-store contract the indexing core
// depends on down to the handful of operations it actually uses: insert,
// update-by-id, find, list-collections, drop-collection and
// create-secondary-index. Nothing upstream of this package ever imports
// the mongo driver directly, which keeps the core testable against an
// in-memory fake and insulates it from churn in the driver API.
package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned by UpdateByID when no record has the given id.
var ErrNotFound = errors.New("store: not found")

// ErrTransient wraps errors that originate from a network/availability
// failure talking to the backing store, per the core's TransientStoreError
// error kind.
var ErrTransient = errors.New("store: transient failure")

// Filter is a store-agnostic query filter. Concrete adapters translate it
// into their native query document (e.g. a bson.M for Mongo).
type Filter map[string]any

// Update describes a partial update: Set fields are replaced, Push fields
// are appended to an array field (list-append), Inc fields are
// incremented. Only the subset the core actually needs.
type Update struct {
	Set  map[string]any
	Push map[string]any
	Inc  map[string]any
}

// FindOptions controls a Find call.
type FindOptions struct {
	Sort       []SortKey
	Limit      int64
	Projection []string
}

// SortKey is one field of a compound sort; Ascending false means
// descending.
type SortKey struct {
	Field     string
	Ascending bool
}

// Cursor iterates over Find results, decoding one document at a time.
type Cursor interface {
	Next(ctx context.Context) bool
	Decode(v any) error
	Err() error
	Close(ctx context.Context) error
}

// IndexSpec describes a secondary index to create in the background.
type IndexSpec struct {
	Keys   []SortKey
	Unique bool
}

// Collection is the narrow per-collection surface the core consumes.
type Collection interface {
	InsertOne(ctx context.Context, doc any) error
	InsertMany(ctx context.Context, docs []any) error
	UpdateByID(ctx context.Context, id any, upd Update) error
	Find(ctx context.Context, filter Filter, opts FindOptions) (Cursor, error)
	CreateIndex(ctx context.Context, spec IndexSpec) error
}

// Store is the database-level handle: it names collections and can drop
// or enumerate them, matching the block-collection lifecycle of the
// SPIMI builder and merger.
type Store interface {
	Collection(name string) Collection
	ListCollections(ctx context.Context, namePattern string) ([]string, error)
	DropCollection(ctx context.Context, name string) error
}
