// Package orphans finds root documents nothing references and references
// pointing at root documents that do not exist.
package orphans

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/arthur-debert/refshift/ids"
	"github.com/arthur-debert/refshift/internal/validation"
	"github.com/arthur-debert/refshift/processors"
	"github.com/arthur-debert/refshift/store"
	"github.com/arthur-debert/refshift/types"
)

// purgeBatch bounds the $in list of a single delete
const purgeBatch = 1000

// Options configures a Detector
type Options struct {
	// Verbose logs every invalid reference value found
	Verbose bool
	Logger  *zap.SugaredLogger
}

// Detector computes reachability of root ids through declared reference paths
type Detector struct {
	store    store.Store
	registry *processors.Registry
	verbose  bool
	log      *zap.SugaredLogger
}

// NewDetector creates a detector
func NewDetector(st store.Store, registry *processors.Registry, opts Options) *Detector {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Detector{store: st, registry: registry, verbose: opts.Verbose, log: log}
}

// Result is the outcome of a scan
type Result struct {
	Root string
	// Total is the number of root documents with numeric ids
	Total int64
	// Referenced is the number of distinct valid ids found in dependents
	Referenced int64
	// Orphans are root ids never referenced, ascending
	Orphans []int64
	// Dangling are referenced ids without a root document, ascending
	Dangling []int64
	// Invalid counts reference values that are not positive ids
	Invalid int64
}

// Find scans every dependent of root. It only reads and may be cancelled at any time.
func (d *Detector) Find(ctx context.Context, root string) (Result, error) {
	proc, err := d.registry.Get(root)
	if err != nil {
		return Result{}, err
	}

	res := Result{Root: root}
	referenced := make(map[int64]bool)
	for _, dep := range proc.Dependents() {
		if proc.Exact(dep) && dep != root {
			err = d.collectDistinct(ctx, proc, dep, referenced, &res)
		} else {
			err = d.collectScan(ctx, proc, root, dep, referenced, &res)
		}
		if err != nil {
			return Result{}, fmt.Errorf("collect references in %s: %w", dep, err)
		}
	}

	existing := make(map[int64]bool)
	err = d.store.Each(ctx, root, validation.Query(), func(doc types.Document) error {
		if id, ok := ids.Coerce(types.DocumentID(doc)); ok {
			existing[id] = true
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	res.Total = int64(len(existing))
	res.Referenced = int64(len(referenced))
	res.Orphans = difference(existing, referenced)
	res.Dangling = difference(referenced, existing)

	d.log.Infow("orphan scan done", "collection", root, "total", res.Total,
		"referenced", res.Referenced, "orphans", len(res.Orphans), "dangling", len(res.Dangling))
	return res, nil
}

// collectDistinct gathers the values of unguarded references with the store's distinct
func (d *Detector) collectDistinct(ctx context.Context, proc processors.Processor, dep string, referenced map[int64]bool, res *Result) error {
	for _, dp := range proc.ReferencePaths(dep) {
		values, err := d.store.Distinct(ctx, dep, dp.Path, dp.Filter)
		if err != nil {
			return err
		}
		for _, v := range values {
			if v == nil {
				continue
			}
			id, ok := coerce(v, dp.Composite)
			if !ok || id < 1 {
				d.invalid(res, dep, dp.Path, v)
				continue
			}
			referenced[id] = true
		}
	}
	return nil
}

// collectScan walks candidate documents for dependents with guarded
// references. References a root document holds to itself do not count.
func (d *Detector) collectScan(ctx context.Context, proc processors.Processor, root, dep string, referenced map[int64]bool, res *Result) error {
	q := store.Query{Filter: proc.FilterFor(dep)}
	return d.store.Each(ctx, dep, q, func(doc types.Document) error {
		found, invalid, err := proc.ReferencesIn(dep, doc)
		if err != nil {
			// malformed documents are reported, not fatal, while detecting
			d.log.Warnw("skipping malformed document", "dependent", dep, "document_id", types.DocumentID(doc), "error", err)
			res.Invalid++
			return nil
		}

		self, isNumeric := ids.Coerce(types.DocumentID(doc))
		for _, id := range found {
			if dep == root && isNumeric && id == self {
				continue
			}
			referenced[id] = true
		}
		for _, v := range invalid {
			d.invalid(res, dep, "", v)
		}
		return nil
	})
}

func (d *Detector) invalid(res *Result, dep, path string, value interface{}) {
	res.Invalid++
	if d.verbose {
		d.log.Warnw("found invalid reference", "value", value, "dependent", dep, "path", path)
	}
}

func coerce(v interface{}, composite bool) (int64, bool) {
	if s, ok := v.(string); ok && composite {
		parsed, ok := ids.Parse(s)
		return parsed.ID, ok
	}
	return ids.Coerce(v)
}

// difference returns the ids of a missing from b, ascending
func difference(a, b map[int64]bool) []int64 {
	var out []int64
	for id := range a {
		if !b[id] {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Purge deletes the given root ids in bounded batches. In dry-run mode
// nothing is deleted and the number of ids that would be is returned.
func (d *Detector) Purge(ctx context.Context, root string, orphans []int64, dryRun bool) (int64, error) {
	if _, err := d.registry.Get(root); err != nil {
		return 0, err
	}
	if dryRun || len(orphans) == 0 {
		return int64(len(orphans)), nil
	}

	d.log.Infow("Removing orphans", "collection", root, "count", len(orphans))
	var deleted int64
	for start := 0; start < len(orphans); start += purgeBatch {
		end := start + purgeBatch
		if end > len(orphans) {
			end = len(orphans)
		}
		n, err := d.store.DeleteIDs(context.WithoutCancel(ctx), root, orphans[start:end])
		deleted += n
		if err != nil {
			return deleted, err
		}
	}
	return deleted, nil
}
