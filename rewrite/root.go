package rewrite

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"

	"github.com/arthur-debert/refshift/formats"
	"github.com/arthur-debert/refshift/ids"
	"github.com/arthur-debert/refshift/internal/validation"
	"github.com/arthur-debert/refshift/patch"
	"github.com/arthur-debert/refshift/store"
	"github.com/arthur-debert/refshift/types"
)

// CollisionPolicy decides what happens when several documents move to one id
type CollisionPolicy = validation.CollisionPolicy

const (
	// RejectCollisions is enforced by the range gate before any write
	RejectCollisions = validation.RejectCollisions
	// KeepFirst keeps the first document moved to a target and drops the others
	KeepFirst = validation.KeepFirst
)

// defaultRootBatch bounds ordered re-key submissions when no batch size is set
const defaultRootBatch = 500

// RootRewriter re-keys the documents of a root collection. Primary keys are
// immutable, so each move is an insert under the new id followed by a delete
// of the old one.
type RootRewriter struct {
	store  store.Store
	policy CollisionPolicy
	opts   Options
	log    *zap.SugaredLogger
}

// NewRootRewriter creates a root rewriter
func NewRootRewriter(st store.Store, policy CollisionPolicy, opts Options) *RootRewriter {
	opts = opts.withDefaults()
	return &RootRewriter{store: st, policy: policy, opts: opts, log: opts.Logger}
}

// Rewrite moves every root document whose id t changes. sum must come from
// the range gate run against the same transform.
func (r *RootRewriter) Rewrite(ctx context.Context, collection string, t ids.Transform, sum validation.Summary) (RootReport, error) {
	if s, ok := t.(ids.Shift); ok && sum.Whole {
		return r.shiftAll(ctx, collection, s, sum)
	}
	return r.rekey(ctx, collection, t)
}

// shiftAll moves the whole collection in one server-side step, then purges
// the part of the old window the new window does not cover
func (r *RootRewriter) shiftAll(ctx context.Context, collection string, s ids.Shift, sum validation.Summary) (RootReport, error) {
	report := RootReport{Collection: collection, Moved: sum.Moved, Whole: true}
	oldMin, oldMax := sum.TargetMin-s.Delta, sum.TargetMax-s.Delta

	if r.opts.DryRun {
		r.log.Infow("would shift all ids", "collection", collection, "shift", s.String(),
			"from_min", oldMin, "from_max", oldMax)
		return report, r.opts.Format.Summary(r.opts.Out, formats.Summary{
			Title: fmt.Sprintf("%s _id shift by %d", collection, s.Delta),
			Rows: []formats.Row{
				{Label: "documents", Value: sum.Moved},
				{Label: "from min", Value: oldMin},
				{Label: "from max", Value: oldMax},
				{Label: "to min", Value: sum.TargetMin},
				{Label: "to max", Value: sum.TargetMax},
			},
		})
	}

	r.log.Infow("Updating ids", "collection", collection, "shift", s.String())
	if err := r.store.ShiftAll(context.WithoutCancel(ctx), collection, s.Delta); err != nil {
		return report, err
	}

	purgeMin, purgeMax, ok := preImage(oldMin, oldMax, s.Delta)
	if !ok {
		return report, nil
	}
	r.log.Infow("Purging old ids", "collection", collection, "min", purgeMin, "max", purgeMax)
	n, err := r.store.DeleteRange(context.WithoutCancel(ctx), collection, purgeMin, purgeMax)
	report.Purged = n
	return report, err
}

// preImage returns the part of [min, max] left uncovered once shifted by delta
func preImage(min, max, delta int64) (int64, int64, bool) {
	switch {
	case delta > 0:
		hi := max
		if min+delta-1 < hi {
			hi = min + delta - 1
		}
		return min, hi, true
	case delta < 0:
		lo := min
		if max+delta+1 > lo {
			lo = max + delta + 1
		}
		return lo, max, true
	default:
		return 0, 0, false
	}
}

// scanOrder visits documents so a target slot is free before it is written
func scanOrder(t ids.Transform) store.Order {
	if s, ok := t.(ids.Shift); ok && s.Delta > 0 {
		return store.Descending
	}
	return store.Ascending
}

func candidateFilter(t ids.Transform) bson.M {
	if s, ok := t.(ids.Shift); ok && !s.Unbounded() {
		return bson.M{types.IDField: bson.M{"$gte": s.Min, "$lte": s.Max}}
	}
	return bson.M{types.IDField: bson.M{"$type": "number"}}
}

// rekey streams the moved documents and submits ordered insert/delete pairs
func (r *RootRewriter) rekey(ctx context.Context, collection string, t ids.Transform) (RootReport, error) {
	report := RootReport{Collection: collection}
	batchSize := r.opts.BatchSize
	if batchSize <= 0 {
		batchSize = defaultRootBatch
	}

	targets := make(map[int64]bool)
	var batch []store.Rekey
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		res, err := r.store.Rekey(context.WithoutCancel(ctx), collection, batch)
		batch = nil
		if err != nil {
			return fmt.Errorf("re-key %s: %w", collection, err)
		}
		if res.Failed() {
			report.Failures = append(report.Failures, res.Failures...)
			return bulkFailure(collection, res.Failures)
		}
		return nil
	}

	q := store.Query{Filter: candidateFilter(t), Order: scanOrder(t)}
	err := r.store.Each(ctx, collection, q, func(doc types.Document) error {
		raw := types.DocumentID(doc)
		id, ok := ids.Coerce(raw)
		if !ok || targets[id] {
			// documents written by this run are never moved twice
			return nil
		}
		to := t.Apply(id)
		if to == id {
			return nil
		}

		move := store.Rekey{Old: raw}
		if targets[to] {
			if r.policy != KeepFirst {
				return types.ErrRangeViolation(collection, "ids would collide on %d", to)
			}
			r.log.Debugw("dropping duplicate", "collection", collection, "document_id", id, "target", to)
			report.Dropped++
		} else {
			targets[to] = true
			report.Moved++
			move.Doc = types.CloneDocument(doc)
			move.Doc[types.IDField] = ids.Encode(to, raw)
		}

		if r.opts.DryRun {
			var newID interface{}
			if move.Doc != nil {
				newID = move.Doc[types.IDField]
			}
			action := patch.Patch{{Path: patch.Path{patch.Field(types.IDField)}, Old: raw, Value: newID}}
			return r.opts.Format.Preview(r.opts.Out, formats.Preview{Collection: collection, ID: raw, Patch: action})
		}

		batch = append(batch, move)
		if len(batch) >= batchSize {
			return flush()
		}
		return nil
	})
	if err != nil {
		return report, err
	}
	return report, flush()
}
