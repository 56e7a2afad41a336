// Package rewrite applies an id transform to every reference of a root
// collection and then re-keys the root collection itself.
//
// Dependents are rewritten before the root: their candidate filters and
// patches read the old root ids.
package rewrite

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/arthur-debert/refshift/formats"
	"github.com/arthur-debert/refshift/ids"
	"github.com/arthur-debert/refshift/processors"
	"github.com/arthur-debert/refshift/store"
	"github.com/arthur-debert/refshift/types"
)

// Options configures an Engine or a RootRewriter
type Options struct {
	// DryRun renders would-be writes instead of submitting them
	DryRun bool
	// BatchSize bounds a bulk submission; 0 submits each dependent once.
	// With a bound, chunks submitted before a malformed document is met
	// stay written; only the unsubmitted remainder of that dependent is
	// discarded.
	BatchSize int
	// Format renders dry-run previews; defaults to formats.Text
	Format *formats.OutputFormat
	// Out receives dry-run previews; defaults to io.Discard
	Out    io.Writer
	Logger *zap.SugaredLogger
}

func (o Options) withDefaults() Options {
	if o.Format == nil {
		o.Format = formats.Text
	}
	if o.Out == nil {
		o.Out = io.Discard
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop().Sugar()
	}
	return o
}

// Engine rewrites references held by dependent collections
type Engine struct {
	store    store.Store
	registry *processors.Registry
	opts     Options
	log      *zap.SugaredLogger
}

// NewEngine creates an engine over a store and a processor registry
func NewEngine(st store.Store, registry *processors.Registry, opts Options) *Engine {
	opts = opts.withDefaults()
	return &Engine{store: st, registry: registry, opts: opts, log: opts.Logger}
}

// RewriteReferences patches every dependent of root so its references follow t.
//
// Dependents are processed in registry order. A malformed document aborts its
// dependent before that dependent's pending batch is submitted; dependents
// already completed keep their writes. Re-running with the same transform is
// safe once the cause is fixed.
func (e *Engine) RewriteReferences(ctx context.Context, root string, t ids.Transform) (Report, error) {
	proc, err := e.registry.Get(root)
	if err != nil {
		return Report{}, err
	}

	report := Report{Root: root, Transform: t.String(), DryRun: e.opts.DryRun}
	for _, dep := range proc.Dependents() {
		e.log.Infow("Processing dependent", "collection", root, "dependent", dep)

		dr, err := e.rewriteDependent(ctx, proc, dep, t)
		report.Dependents = append(report.Dependents, dr)
		if err != nil {
			return report, err
		}

		switch {
		case dr.NothingMatched():
			e.log.Infow("nothing matched the filter", "dependent", dep)
		case dr.NoUpdatesNeeded():
			e.log.Infow("no updates needed", "dependent", dep, "inspected", dr.Inspected)
		default:
			e.log.Infow("dependent done", "dependent", dep,
				"inspected", dr.Inspected, "patched", dr.Patched, "modified", dr.Modified)
		}
	}
	return report, nil
}

// submitter sends chunks of a dependent with at most one submission in flight
type submitter struct {
	store      store.Store
	collection string
	ctx        context.Context
	group      *errgroup.Group

	mu     sync.Mutex
	result store.BulkResult
}

func newSubmitter(ctx context.Context, st store.Store, collection string) *submitter {
	g := &errgroup.Group{}
	g.SetLimit(1)
	// a submission runs to completion once started
	return &submitter{store: st, collection: collection, ctx: context.WithoutCancel(ctx), group: g}
}

func (s *submitter) submit(batch []store.Update) {
	s.group.Go(func() error {
		res, err := s.store.BulkSet(s.ctx, s.collection, batch)
		s.mu.Lock()
		s.result.Add(res)
		s.mu.Unlock()
		return err
	})
}

func (s *submitter) wait() (store.BulkResult, error) {
	err := s.group.Wait()
	return s.result, err
}

func (e *Engine) rewriteDependent(ctx context.Context, proc processors.Processor, dep string, t ids.Transform) (DependentReport, error) {
	dr := DependentReport{Collection: dep}
	sub := newSubmitter(ctx, e.store, dep)

	var batch []store.Update
	scanErr := e.store.Each(ctx, dep, store.Query{Filter: proc.FilterFor(dep)}, func(doc types.Document) error {
		dr.Inspected++

		p, err := proc.UpdateReferencesIn(dep, doc, t)
		if err != nil {
			return err
		}
		if p.Empty() {
			return nil
		}
		dr.Patched++

		id := types.DocumentID(doc)
		if e.opts.DryRun {
			return e.opts.Format.Preview(e.opts.Out, formats.Preview{Collection: dep, ID: id, Patch: p})
		}

		e.log.Debugw("queued patch", "dependent", dep, "document_id", id, "fields", len(p))
		batch = append(batch, store.Update{ID: id, Patch: p})
		if e.opts.BatchSize > 0 && len(batch) >= e.opts.BatchSize {
			sub.submit(batch)
			batch = nil
		}
		return nil
	})

	if scanErr != nil {
		if types.IsCode(scanErr, types.ErrCodeMalformedDocument) {
			dr.Aborted = true
		}
		// chunks already handed over still run to completion
		res, _ := sub.wait()
		e.record(&dr, res)
		return dr, scanErr
	}

	if len(batch) > 0 {
		e.log.Infow("applying update", "dependent", dep, "documents", len(batch))
		sub.submit(batch)
	}
	res, err := sub.wait()
	e.record(&dr, res)
	if err != nil {
		return dr, fmt.Errorf("bulk update of %s: %w", dep, err)
	}
	if res.Failed() {
		return dr, bulkFailure(dep, res.Failures)
	}
	return dr, nil
}

func (e *Engine) record(dr *DependentReport, res store.BulkResult) {
	dr.Modified += res.Modified
	dr.Failed += int64(len(res.Failures))
	dr.Failures = append(dr.Failures, res.Failures...)
}

// bulkFailure aggregates per-document failures into one BULK_FAILURE error
func bulkFailure(collection string, failures []store.DocumentFailure) error {
	var merr *multierror.Error
	for _, f := range failures {
		merr = multierror.Append(merr, f)
	}
	return &types.Error{
		Code:       types.ErrCodeBulkFailure,
		Message:    fmt.Sprintf("%d documents were not written", len(failures)),
		Collection: collection,
		Err:        merr.ErrorOrNil(),
	}
}
