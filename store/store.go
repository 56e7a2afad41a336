// Package store is the document store surface used by the rewrite stages.
//
// Two implementations exist: Mongo, backed by a MongoDB database, and Memory,
// an in-process store used by tests and dry-run previews of fixture data.
package store

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/arthur-debert/refshift/patch"
	"github.com/arthur-debert/refshift/types"
)

// Order is the _id order of a scan
type Order int

const (
	// Natural returns documents in store order
	Natural Order = 0
	// Ascending sorts by _id
	Ascending Order = 1
	// Descending sorts by _id, highest first
	Descending Order = -1
)

// Query selects documents of one collection
type Query struct {
	Filter bson.M
	Order  Order
	// Projection limits returned fields; nil returns whole documents
	Projection bson.M
}

// Update is a partial field assignment on one document
type Update struct {
	ID    interface{}
	Patch patch.Patch
}

// Rekey moves a document to a new _id. A nil Doc only deletes Old.
type Rekey struct {
	Old interface{}
	Doc types.Document
}

// DocumentFailure is one document a bulk submission could not write
type DocumentFailure struct {
	Index int
	ID    interface{}
	Err   error
}

func (f DocumentFailure) Error() string {
	return fmt.Sprintf("document %v: %v", f.ID, f.Err)
}

// BulkResult reports the per-document outcome of a bulk submission
type BulkResult struct {
	Matched  int64
	Modified int64
	Inserted int64
	Deleted  int64
	Failures []DocumentFailure
}

// Failed reports whether any document of the submission was not written
func (r BulkResult) Failed() bool {
	return len(r.Failures) > 0
}

// Add accumulates the counters and failures of another result
func (r *BulkResult) Add(other BulkResult) {
	r.Matched += other.Matched
	r.Modified += other.Modified
	r.Inserted += other.Inserted
	r.Deleted += other.Deleted
	r.Failures = append(r.Failures, other.Failures...)
}

// IDRange is the min/max aggregation of a collection's numeric _id.
// Count covers numeric ids only, Total every document.
type IDRange struct {
	Min   int64
	Max   int64
	Count int64
	Total int64
}

// Empty reports whether the collection had no numeric ids
func (r IDRange) Empty() bool {
	return r.Count == 0
}

// Mixed reports whether some documents carry a non-numeric _id
func (r IDRange) Mixed() bool {
	return r.Total > r.Count
}

// Store is the set of primitives the rewrite stages need from a database
type Store interface {
	// Each streams the documents selected by q to fn, stopping at the first error
	Each(ctx context.Context, collection string, q Query, fn func(types.Document) error) error

	// BulkSet submits unordered partial updates. Failures are per document;
	// err is only set when the submission itself could not run.
	BulkSet(ctx context.Context, collection string, updates []Update) (BulkResult, error)

	// Rekey submits ordered insert-new / delete-old pairs, stopping at the first failure
	Rekey(ctx context.Context, collection string, moves []Rekey) (BulkResult, error)

	// Distinct returns the distinct values at a dotted path, traversing arrays
	Distinct(ctx context.Context, collection, path string, filter bson.M) ([]interface{}, error)

	// IDRange returns the min and max numeric _id of a collection
	IDRange(ctx context.Context, collection string) (IDRange, error)

	// ShiftAll adds delta to every _id, replacing the collection in one step
	ShiftAll(ctx context.Context, collection string, delta int64) error

	// DeleteRange removes documents with min <= _id <= max
	DeleteRange(ctx context.Context, collection string, min, max int64) (int64, error)

	// DeleteIDs removes documents by _id
	DeleteIDs(ctx context.Context, collection string, ids []int64) (int64, error)

	// Close releases the connection
	Close(ctx context.Context) error
}

// Collect streams q into a slice. Only suitable for small result sets.
func Collect(ctx context.Context, s Store, collection string, q Query) ([]types.Document, error) {
	var docs []types.Document
	err := s.Each(ctx, collection, q, func(doc types.Document) error {
		docs = append(docs, doc)
		return nil
	})
	return docs, err
}
