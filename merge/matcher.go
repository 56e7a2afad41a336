package merge

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/arthur-debert/refshift/ids"
	"github.com/arthur-debert/refshift/internal/matching"
	"github.com/arthur-debert/refshift/store"
	"github.com/arthur-debert/refshift/types"
)

// Matcher finds secondary entities carrying a natural key
type Matcher interface {
	// Candidates returns the ids of secondary entities whose key equals raw
	Candidates(ctx context.Context, raw string) ([]int64, error)
}

// IndexMatcher holds the whole secondary dataset keyed by normalized key
type IndexMatcher struct {
	key   *matching.NaturalKey
	index map[string][]int64
}

// NewIndexMatcher streams the secondary collection once into an index
func NewIndexMatcher(ctx context.Context, st store.Store, collection string, key *matching.NaturalKey) (*IndexMatcher, error) {
	m := &IndexMatcher{key: key, index: make(map[string][]int64)}
	q := store.Query{
		Filter:     bson.M{types.IDField: bson.M{"$type": "number"}},
		Order:      store.Ascending,
		Projection: bson.M{types.IDField: 1, key.Field(): 1},
	}
	err := st.Each(ctx, collection, q, func(doc types.Document) error {
		k, ok := key.Extract(doc)
		if !ok {
			return nil
		}
		if id, ok := ids.Coerce(types.DocumentID(doc)); ok {
			m.index[k] = append(m.index[k], id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Candidates implements Matcher
func (m *IndexMatcher) Candidates(_ context.Context, raw string) ([]int64, error) {
	return m.index[m.key.Normalize(raw)], nil
}

// QueryMatcher asks the store for every key, one anchored query per lookup
type QueryMatcher struct {
	store      store.Store
	collection string
	key        *matching.NaturalKey
}

// NewQueryMatcher creates a matcher querying the secondary collection on demand
func NewQueryMatcher(st store.Store, collection string, key *matching.NaturalKey) *QueryMatcher {
	return &QueryMatcher{store: st, collection: collection, key: key}
}

// Candidates implements Matcher
func (m *QueryMatcher) Candidates(ctx context.Context, raw string) ([]int64, error) {
	want := m.key.Normalize(raw)
	if want == "" {
		return nil, nil
	}

	q := store.Query{
		Filter:     bson.M{m.key.Field(): m.key.Pattern(raw)},
		Order:      store.Ascending,
		Projection: bson.M{types.IDField: 1, m.key.Field(): 1},
	}
	var found []int64
	err := m.store.Each(ctx, m.collection, q, func(doc types.Document) error {
		if !m.key.Matches(doc, want) {
			return nil
		}
		if id, ok := ids.Coerce(types.DocumentID(doc)); ok {
			found = append(found, id)
		}
		return nil
	})
	return found, err
}
