// Package validation is the range gate run before any write of a rewrite.
//
// A transform passes the gate when every moved root id lands on a positive id
// that no other document keeps or receives.
package validation

import (
	"context"
	"sort"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/arthur-debert/refshift/ids"
	"github.com/arthur-debert/refshift/store"
	"github.com/arthur-debert/refshift/types"
)

// CollisionPolicy decides what happens when several root ids map to one target
type CollisionPolicy int

const (
	// RejectCollisions fails the gate on any shared target
	RejectCollisions CollisionPolicy = iota
	// KeepFirst accepts shared targets; the root rewriter keeps the first document
	KeepFirst
)

// String returns the string representation of the CollisionPolicy
func (p CollisionPolicy) String() string {
	switch p {
	case RejectCollisions:
		return "reject"
	case KeepFirst:
		return "keep-first"
	default:
		return "unknown"
	}
}

// Summary describes what a transform does to a root collection
type Summary struct {
	// Total is the number of numeric root ids
	Total int64
	// Moved is the number of root ids the transform changes
	Moved int64
	// Collisions counts moved ids sharing a target with an earlier one
	Collisions int64
	// TargetMin and TargetMax bound the ids of moved documents after the transform
	TargetMin int64
	TargetMax int64
	// Whole is set when a shift moves every root document, allowing a
	// whole-collection rewrite. Non-numeric ids rule it out.
	Whole bool
}

// CheckRange validates t against the current ids of a root collection
func CheckRange(ctx context.Context, st store.Store, collection string, t ids.Transform, policy CollisionPolicy) (Summary, error) {
	r, err := st.IDRange(ctx, collection)
	if err != nil {
		return Summary{}, err
	}
	if r.Empty() {
		return Summary{}, nil
	}

	if s, ok := t.(ids.Shift); ok && s.Covers(r.Min, r.Max) {
		return CheckShift(collection, r, s)
	}

	var rootIDs []int64
	err = st.Each(ctx, collection, Query(), func(doc types.Document) error {
		if id, ok := ids.Coerce(types.DocumentID(doc)); ok {
			rootIDs = append(rootIDs, id)
		}
		return nil
	})
	if err != nil {
		return Summary{}, err
	}
	return CheckIDs(collection, rootIDs, t, policy)
}

// Query is the scan used to stream root ids
func Query() store.Query {
	return store.Query{
		Filter:     bson.M{types.IDField: bson.M{"$type": "number"}},
		Order:      store.Ascending,
		Projection: bson.M{types.IDField: 1},
	}
}

// CheckShift validates a shift moving every id of r. Such a shift is
// injective and cannot land on an id that stays, so positivity is all
// that remains to check.
func CheckShift(collection string, r store.IDRange, s ids.Shift) (Summary, error) {
	if !s.Covers(r.Min, r.Max) {
		return Summary{}, types.ErrRangeViolation(collection,
			"%s does not cover the id range [%d,%d]", s, r.Min, r.Max)
	}
	sum := Summary{Total: r.Count, TargetMin: s.Apply(r.Min), TargetMax: s.Apply(r.Max)}
	if s.Delta == 0 {
		return Summary{Total: r.Count}, nil
	}
	if sum.TargetMin <= 0 {
		return Summary{}, types.ErrRangeViolation(collection,
			"%s would move id %d to %d, ids must stay positive", s, r.Min, sum.TargetMin)
	}
	sum.Moved = r.Count
	// a whole-collection shift would also touch the non-numeric ids
	sum.Whole = !r.Mixed()
	return sum, nil
}

// CheckIDs validates t against an explicit set of root ids
func CheckIDs(collection string, rootIDs []int64, t ids.Transform, policy CollisionPolicy) (Summary, error) {
	existing := make(map[int64]bool, len(rootIDs))
	for _, id := range rootIDs {
		existing[id] = true
	}

	sum := Summary{Total: int64(len(existing))}
	monotonic := ids.IsMonotonic(t)
	targets := make(map[int64]int64)
	for _, id := range sortedUnique(existing) {
		to := t.Apply(id)
		if to == id {
			continue
		}

		if to <= 0 {
			return Summary{}, types.ErrRangeViolation(collection,
				"%s would move id %d to %d, ids must stay positive", t, id, to)
		}
		if first, taken := targets[to]; taken {
			if policy == RejectCollisions {
				return Summary{}, types.ErrRangeViolation(collection,
					"ids %d and %d would both move to %d", first, id, to)
			}
			sum.Collisions++
		} else {
			targets[to] = id
		}
		if existing[to] && (t.Apply(to) == to || !monotonic) {
			return Summary{}, types.ErrRangeViolation(collection,
				"id %d would move onto existing id %d", id, to)
		}

		if sum.Moved == 0 || to < sum.TargetMin {
			sum.TargetMin = to
		}
		if sum.Moved == 0 || to > sum.TargetMax {
			sum.TargetMax = to
		}
		sum.Moved++
	}
	return sum, nil
}

func sortedUnique(set map[int64]bool) []int64 {
	out := make([]int64, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
