package store

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/arthur-debert/refshift/ids"
	"github.com/arthur-debert/refshift/types"
)

// docKey normalizes _id values so 5, int32(5) and int64(5) address the same document
type docKey struct {
	num     int64
	str     string
	numeric bool
}

func keyOf(id interface{}) docKey {
	if n, ok := ids.Coerce(id); ok {
		return docKey{num: n, numeric: true}
	}
	return docKey{str: fmt.Sprintf("%T:%v", id, id)}
}

func (k docKey) less(o docKey) bool {
	if k.numeric != o.numeric {
		return k.numeric
	}
	if k.numeric {
		return k.num < o.num
	}
	return k.str < o.str
}

var _ Store = (*Memory)(nil)

// Memory is an in-process Store. Documents are deep-copied on the way in and
// out so callers never share state with the store.
type Memory struct {
	mu          sync.RWMutex
	collections map[string]map[docKey]types.Document

	// FailWrite, when set, is consulted before every write; a non-nil error
	// fails that document as the server would
	FailWrite func(collection string, id interface{}) error
}

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	return &Memory{collections: make(map[string]map[docKey]types.Document)}
}

// Insert adds documents, replacing any with the same _id
func (m *Memory) Insert(collection string, docs ...types.Document) {
	m.mu.Lock()
	defer m.mu.Unlock()
	coll := m.collection(collection)
	for _, d := range docs {
		coll[keyOf(types.DocumentID(d))] = types.CloneDocument(d)
	}
}

// Get returns a copy of one document
func (m *Memory) Get(collection string, id interface{}) (types.Document, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.collections[collection][keyOf(id)]
	if !ok {
		return nil, false
	}
	return types.CloneDocument(doc), true
}

// Count returns the number of documents in a collection
func (m *Memory) Count(collection string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.collections[collection])
}

func (m *Memory) collection(name string) map[docKey]types.Document {
	coll, ok := m.collections[name]
	if !ok {
		coll = make(map[docKey]types.Document)
		m.collections[name] = coll
	}
	return coll
}

func (m *Memory) sortedKeys(coll map[docKey]types.Document, order Order) []docKey {
	keys := make([]docKey, 0, len(coll))
	for k := range coll {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if order == Descending {
			return keys[j].less(keys[i])
		}
		return keys[i].less(keys[j])
	})
	return keys
}

func (m *Memory) failWrite(collection string, id interface{}) error {
	if m.FailWrite == nil {
		return nil
	}
	return m.FailWrite(collection, id)
}

// Each implements Store. Matching documents are snapshotted before fn runs,
// so fn may write to the store.
func (m *Memory) Each(ctx context.Context, collection string, q Query, fn func(types.Document) error) error {
	eval := NewFilterEvaluator(q.Filter)

	m.mu.RLock()
	coll := m.collections[collection]
	var matched []types.Document
	for _, k := range m.sortedKeys(coll, q.Order) {
		ok, err := eval.EvaluateDocument(coll[k])
		if err != nil {
			m.mu.RUnlock()
			return fmt.Errorf("find in %s: %w", collection, err)
		}
		if ok {
			matched = append(matched, project(coll[k], q.Projection))
		}
	}
	m.mu.RUnlock()

	for _, doc := range matched {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(doc); err != nil {
			return err
		}
	}
	return nil
}

// project copies doc keeping only top-level projected fields and _id
func project(doc types.Document, projection bson.M) types.Document {
	if projection == nil {
		return types.CloneDocument(doc)
	}
	out := bson.M{types.IDField: doc[types.IDField]}
	for field := range projection {
		if v, ok := doc[field]; ok {
			out[field] = v
		}
	}
	return types.CloneDocument(out)
}

// BulkSet implements Store
func (m *Memory) BulkSet(ctx context.Context, collection string, updates []Update) (BulkResult, error) {
	if err := ctx.Err(); err != nil {
		return BulkResult{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var res BulkResult
	coll := m.collection(collection)
	for i, u := range updates {
		k := keyOf(u.ID)
		current, ok := coll[k]
		if !ok {
			continue
		}
		if err := m.failWrite(collection, u.ID); err != nil {
			res.Failures = append(res.Failures, DocumentFailure{Index: i, ID: u.ID, Err: err})
			continue
		}
		res.Matched++

		next := types.CloneDocument(current)
		if err := u.Patch.Apply(next); err != nil {
			res.Failures = append(res.Failures, DocumentFailure{Index: i, ID: u.ID, Err: err})
			continue
		}
		if !reflect.DeepEqual(current, next) {
			coll[k] = next
			res.Modified++
		}
	}
	return res, nil
}

// Rekey implements Store
func (m *Memory) Rekey(ctx context.Context, collection string, moves []Rekey) (BulkResult, error) {
	if err := ctx.Err(); err != nil {
		return BulkResult{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var res BulkResult
	coll := m.collection(collection)
	index := 0
	for _, mv := range moves {
		if mv.Doc != nil {
			newID := types.DocumentID(mv.Doc)
			k := keyOf(newID)
			if _, exists := coll[k]; exists {
				res.Failures = append(res.Failures, DocumentFailure{
					Index: index, ID: newID, Err: fmt.Errorf("E11000 duplicate key _id %v", newID),
				})
				return res, nil
			}
			if err := m.failWrite(collection, newID); err != nil {
				res.Failures = append(res.Failures, DocumentFailure{Index: index, ID: newID, Err: err})
				return res, nil
			}
			coll[k] = types.CloneDocument(mv.Doc)
			res.Inserted++
			index++
		}

		k := keyOf(mv.Old)
		if _, exists := coll[k]; exists {
			if err := m.failWrite(collection, mv.Old); err != nil {
				res.Failures = append(res.Failures, DocumentFailure{Index: index, ID: mv.Old, Err: err})
				return res, nil
			}
			delete(coll, k)
			res.Deleted++
		}
		index++
	}
	return res, nil
}

// Distinct implements Store
func (m *Memory) Distinct(ctx context.Context, collection, path string, filter bson.M) ([]interface{}, error) {
	var values []interface{}
	seen := make(map[docKey]bool)
	err := m.Each(ctx, collection, Query{Filter: filter}, func(doc types.Document) error {
		for _, v := range candidates(lookupAll(doc, splitPath(path))) {
			k := keyOf(v)
			if seen[k] {
				continue
			}
			seen[k] = true
			values = append(values, v)
		}
		return nil
	})
	return values, err
}

// IDRange implements Store
func (m *Memory) IDRange(ctx context.Context, collection string) (IDRange, error) {
	if err := ctx.Err(); err != nil {
		return IDRange{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var r IDRange
	for k := range m.collections[collection] {
		r.Total++
		if !k.numeric {
			continue
		}
		if r.Count == 0 || k.num < r.Min {
			r.Min = k.num
		}
		if r.Count == 0 || k.num > r.Max {
			r.Max = k.num
		}
		r.Count++
	}
	return r, nil
}

// ShiftAll implements Store
func (m *Memory) ShiftAll(ctx context.Context, collection string, delta int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	coll := m.collection(collection)
	shifted := make(map[docKey]types.Document, len(coll))
	for k, doc := range coll {
		if !k.numeric {
			return fmt.Errorf("shift ids of %s: non-numeric _id %v", collection, doc[types.IDField])
		}
		next := types.CloneDocument(doc)
		next[types.IDField] = ids.Encode(k.num+delta, doc[types.IDField])
		shifted[keyOf(next[types.IDField])] = next
	}
	m.collections[collection] = shifted
	return nil
}

// DeleteRange implements Store
func (m *Memory) DeleteRange(ctx context.Context, collection string, min, max int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	coll := m.collection(collection)
	for k := range coll {
		if k.numeric && k.num >= min && k.num <= max {
			delete(coll, k)
			n++
		}
	}
	return n, nil
}

// DeleteIDs implements Store
func (m *Memory) DeleteIDs(ctx context.Context, collection string, idList []int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	coll := m.collection(collection)
	for _, id := range idList {
		k := keyOf(id)
		if _, ok := coll[k]; ok {
			delete(coll, k)
			n++
		}
	}
	return n, nil
}

// Close implements Store
func (m *Memory) Close(context.Context) error {
	return nil
}
