// Package merge plans the id mapping that folds one entity directory into another
package merge

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"

	"github.com/arthur-debert/refshift/ids"
	"github.com/arthur-debert/refshift/internal/matching"
	"github.com/arthur-debert/refshift/store"
	"github.com/arthur-debert/refshift/types"
)

// Default natural key of users
const (
	DefaultCollection = "users"
	DefaultKeyField   = "email"
)

var errFound = errors.New("found")

// Options configures a Planner
type Options struct {
	// Collection is the entity collection in both datasets, users by default
	Collection string
	// KeyField is the natural key field, email by default
	KeyField string
	Logger   *zap.SugaredLogger
}

// Planner matches primary entities against a secondary dataset
type Planner struct {
	collection string
	key        *matching.NaturalKey
	log        *zap.SugaredLogger
}

// NewPlanner creates a planner
func NewPlanner(opts Options) *Planner {
	if opts.Collection == "" {
		opts.Collection = DefaultCollection
	}
	if opts.KeyField == "" {
		opts.KeyField = DefaultKeyField
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	return &Planner{
		collection: opts.Collection,
		key:        matching.NewNaturalKey(opts.KeyField),
		log:        opts.Logger,
	}
}

// Collection returns the entity collection the planner works on
func (p *Planner) Collection() string {
	return p.collection
}

// Key returns the natural key used for matching
func (p *Planner) Key() *matching.NaturalKey {
	return p.key
}

// Plan is a merge mapping with matching statistics
type Plan struct {
	// Mapping sends matched primary ids to their secondary ids
	Mapping ids.Mapping
	// PrimaryRange is the id range of the primary collection
	PrimaryRange store.IDRange
	Scanned      int64
	Matched      int64
	// SameID counts matches that already share the primary id
	SameID    int64
	Unmatched int64
	// NoKey counts primary entities without a usable key
	NoKey int64
}

// Empty reports whether the plan changes no id
func (pl Plan) Empty() bool {
	return len(pl.Mapping) == 0
}

// CheckDisjoint fails with a range violation when the secondary dataset
// holds ids inside the primary id range.
func (p *Planner) CheckDisjoint(ctx context.Context, primary, secondary store.Store) (store.IDRange, error) {
	r, err := primary.IDRange(ctx, p.collection)
	if err != nil {
		return store.IDRange{}, err
	}
	if r.Empty() {
		return r, nil
	}

	q := store.Query{
		Filter:     bson.M{types.IDField: bson.M{"$gte": r.Min, "$lte": r.Max}},
		Projection: bson.M{types.IDField: 1},
	}
	err = secondary.Each(ctx, p.collection, q, func(types.Document) error {
		return errFound
	})
	if errors.Is(err, errFound) {
		return r, types.ErrRangeViolation(p.collection,
			"secondary dataset includes ids in the primary id range [%d, %d]", r.Min, r.Max)
	}
	return r, err
}

// Plan builds the mapping. Any key matching more than one secondary entity
// rejects the whole plan and no mapping is returned.
func (p *Planner) Plan(ctx context.Context, primary, secondary store.Store, m Matcher) (Plan, error) {
	r, err := p.CheckDisjoint(ctx, primary, secondary)
	if err != nil {
		return Plan{}, err
	}

	plan := Plan{Mapping: ids.Mapping{}, PrimaryRange: r}
	q := store.Query{
		Filter:     bson.M{types.IDField: bson.M{"$type": "number"}},
		Order:      store.Ascending,
		Projection: bson.M{types.IDField: 1, p.key.Field(): 1},
	}
	err = primary.Each(ctx, p.collection, q, func(doc types.Document) error {
		plan.Scanned++
		id, _ := ids.Coerce(types.DocumentID(doc))

		raw, _ := doc[p.key.Field()].(string)
		if _, ok := p.key.Extract(doc); !ok {
			plan.NoKey++
			p.log.Debugw("skipping entity without key", "collection", p.collection, "document_id", id)
			return nil
		}

		candidates, err := m.Candidates(ctx, raw)
		if err != nil {
			return fmt.Errorf("match %d: %w", id, err)
		}

		switch {
		case len(candidates) == 0:
			plan.Unmatched++
		case len(candidates) > 1:
			p.log.Warnw("ambiguous match", "collection", p.collection, "document_id", id, "candidates", candidates)
			return types.ErrAmbiguousMatch(p.collection, id, p.key.Field(), raw, candidates)
		case candidates[0] == id:
			plan.SameID++
		default:
			plan.Matched++
			plan.Mapping[id] = candidates[0]
		}
		return nil
	})
	if err != nil {
		return Plan{}, err
	}

	p.log.Infow("merge plan ready", "collection", p.collection, "scanned", plan.Scanned,
		"matched", plan.Matched, "unmatched", plan.Unmatched, "no_key", plan.NoKey)
	return plan, nil
}
