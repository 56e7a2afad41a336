package migration

import (
	"context"
	"time"

	"github.com/arthur-debert/refshift/internal/validation"
	"github.com/arthur-debert/refshift/merge"
	"github.com/arthur-debert/refshift/store"
)

// MatchOptions configures MatchUsers
type MatchOptions struct {
	// Index loads the other dataset once instead of querying it per user
	Index bool
	// Collection and KeyField override the users/email natural key
	Collection string
	KeyField   string
}

// MatchUsers rewrites the ids of users that also exist in other to the ids
// they have there, matching by email. Several users may fold into one.
func (a *API) MatchUsers(ctx context.Context, other store.Store, opts MatchOptions) *Result {
	start := time.Now()
	result := newResult(a.runID, a.opts.DryRun)

	planner := merge.NewPlanner(merge.Options{Collection: opts.Collection, KeyField: opts.KeyField, Logger: a.log})
	if _, err := a.registry.Get(planner.Collection()); err != nil {
		return a.finish("match-users", result.fail(CodeValidationError, err), start)
	}

	var matcher merge.Matcher
	if opts.Index {
		m, err := merge.NewIndexMatcher(ctx, other, planner.Collection(), planner.Key())
		if err != nil {
			return a.finish("match-users", result.fail(CodeExecutionError, err), start)
		}
		matcher = m
	} else {
		matcher = merge.NewQueryMatcher(other, planner.Collection(), planner.Key())
	}

	plan, err := planner.Plan(ctx, a.store, other, matcher)
	if err != nil {
		return a.finish("match-users", result.fail(codeFor(err, false), err), start)
	}
	result.Stats.SkippedDocs = int(plan.NoKey)
	if plan.NoKey > 0 {
		result.warn(nil, "%d %s have no %s and were skipped", plan.NoKey, planner.Collection(), planner.Key().Field())
	}
	if plan.Empty() {
		result.Stats.TotalDocs = int(plan.Scanned)
		result.info("No %s matched, nothing to do!", planner.Collection())
		return a.finish("match-users", result, start)
	}

	result.info("Found %d matches, proceeding to updating database", plan.Matched)
	return a.finish("match-users", a.apply(ctx, result, planner.Collection(), plan.Mapping, validation.KeepFirst), start)
}
