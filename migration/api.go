// Package migration runs the id rewriting operations end to end and reports
// their outcome as a Result the CLI can print.
package migration

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arthur-debert/refshift/formats"
	"github.com/arthur-debert/refshift/ids"
	"github.com/arthur-debert/refshift/internal/validation"
	"github.com/arthur-debert/refshift/processors"
	"github.com/arthur-debert/refshift/rewrite"
	"github.com/arthur-debert/refshift/store"
	"github.com/arthur-debert/refshift/types"
)

// API provides the public interface for runs against one database
type API struct {
	store    store.Store
	registry *processors.Registry
	opts     Options
	format   *formats.OutputFormat
	runID    string
	log      *zap.SugaredLogger
}

// NewAPI creates a new API instance. Every log line of the instance carries its run id.
func NewAPI(st store.Store, registry *processors.Registry, opts Options) (*API, error) {
	if opts.Output == "" {
		opts.Output = formats.Text.Name
	}
	format, err := formats.Get(opts.Output)
	if err != nil {
		return nil, err
	}
	if opts.Out == nil {
		opts.Out = io.Discard
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}

	runID := uuid.NewString()
	return &API{
		store:    st,
		registry: registry,
		opts:     opts,
		format:   format,
		runID:    runID,
		log:      opts.Logger.With("run_id", runID),
	}, nil
}

// RunID returns the id attached to this instance's logs and results
func (a *API) RunID() string {
	return a.runID
}

func (a *API) rewriteOptions() rewrite.Options {
	return rewrite.Options{
		DryRun:    a.opts.DryRun,
		BatchSize: a.opts.BatchSize,
		Format:    a.format,
		Out:       a.opts.Out,
		Logger:    a.log,
	}
}

// apply runs the gate, then the dependents, then the root collection.
// Nothing is written when the gate rejects t.
func (a *API) apply(ctx context.Context, result *Result, collection string, t ids.Transform, policy validation.CollisionPolicy) *Result {
	sum, err := validation.CheckRange(ctx, a.store, collection, t, policy)
	if err != nil {
		return result.fail(codeFor(err, false), err)
	}
	result.Stats.TotalDocs = int(sum.Total)
	result.info("Validated %s: %d of %d ids move (%s)", collection, sum.Moved, sum.Total, t)
	if sum.Collisions > 0 {
		result.warn(nil, "%d ids share a target with another id and will be dropped (%s)", sum.Collisions, policy)
	}

	report, err := rewrite.NewEngine(a.store, a.registry, a.rewriteOptions()).RewriteReferences(ctx, collection, t)
	for _, dr := range report.Dependents {
		a.reportDependent(result, collection, dr)
		result.Summaries = append(result.Summaries, dr.Summary())
		result.Stats.ModifiedDocs += int(dr.Modified)
	}
	if err != nil {
		progressed := report.Modified() > 0 || len(report.Dependents) > 1
		return result.fail(codeFor(err, progressed), err)
	}

	root, err := rewrite.NewRootRewriter(a.store, policy, a.rewriteOptions()).Rewrite(ctx, collection, t, sum)
	if err != nil {
		code := codeFor(err, true)
		if code == CodeExecutionError && report.Modified() > 0 {
			// references were already moved to ids the root never reached
			code = CodePartialFailure
		}
		return result.fail(code, fmt.Errorf("updating ids in %s: %w", collection, err))
	}
	result.Summaries = append(result.Summaries, root.Summary())
	if !a.opts.DryRun {
		result.Stats.ModifiedDocs += int(root.Moved + root.Dropped)
		result.Stats.SkippedDocs += int(root.Dropped)
	}

	switch {
	case a.opts.DryRun:
		result.info("Would update %d ids in %s", sum.Moved, collection)
	case root.Moved == 0 && root.Dropped == 0:
		result.info("No ids to update in %s", collection)
	default:
		result.info("Updated ids in %s: %d moved, %d dropped, %d purged", collection, root.Moved, root.Dropped, root.Purged)
	}
	return result
}

func (a *API) reportDependent(result *Result, collection string, dr rewrite.DependentReport) {
	switch {
	case dr.Aborted:
		result.warn(nil, "Processing %s ids referenced in %s: aborted after %d documents", collection, dr.Collection, dr.Inspected)
	case dr.NothingMatched():
		result.debug("Processing %s ids referenced in %s: no candidate documents", collection, dr.Collection)
	case dr.NoUpdatesNeeded():
		result.info("Processing %s ids referenced in %s: no updates needed or found", collection, dr.Collection)
	default:
		result.info("Processing %s ids referenced in %s: %d inspected, %d patched, %d modified",
			collection, dr.Collection, dr.Inspected, dr.Patched, dr.Modified)
	}
	if dr.Failed > 0 {
		details := map[string]interface{}{"failures": len(dr.Failures)}
		result.warn(details, "%d documents of %s were not written", dr.Failed, dr.Collection)
	}
}

// codeFor maps an error to a result code. progressed tells whether some
// writes may already have been applied.
func codeFor(err error, progressed bool) int {
	switch {
	case types.IsCode(err, types.ErrCodeUnsupportedCollection),
		types.IsCode(err, types.ErrCodeRangeViolation),
		types.IsCode(err, types.ErrCodeAmbiguousMatch):
		return CodeValidationError
	case progressed && (types.IsCode(err, types.ErrCodeMalformedDocument) || types.IsCode(err, types.ErrCodeBulkFailure)):
		return CodePartialFailure
	default:
		return CodeExecutionError
	}
}

// finish stamps the duration and logs the outcome
func (a *API) finish(op string, result *Result, start time.Time) *Result {
	result.Stats.Duration = time.Since(start)
	if result.Success {
		a.log.Infow("run finished", "operation", op, "modified", result.Stats.ModifiedDocs, "duration", result.Stats.Duration)
	} else {
		a.log.Errorw("run failed", "operation", op, "code", result.Code, "error", result.Err)
	}
	return result
}
