package migration

import (
	"context"
	"time"

	"github.com/arthur-debert/refshift/ids"
	"github.com/arthur-debert/refshift/internal/validation"
)

// ShiftIDs adds offset to every numeric id of a root collection and to every
// reference to it. The window is read from the collection on each call, so a
// second run shifts the already shifted ids again. Non-numeric ids are kept.
func (a *API) ShiftIDs(ctx context.Context, collection string, offset int64) *Result {
	start := time.Now()
	result := newResult(a.runID, a.opts.DryRun)
	a.log.Infow("shifting ids", "collection", collection, "offset", offset, "dry_run", a.opts.DryRun)

	if _, err := a.registry.Get(collection); err != nil {
		return a.finish("shift-ids", result.fail(CodeValidationError, err), start)
	}
	if offset == 0 {
		result.warn(nil, "Offset 0 leaves every id of %s unchanged", collection)
		return a.finish("shift-ids", result, start)
	}

	r, err := a.store.IDRange(ctx, collection)
	if err != nil {
		return a.finish("shift-ids", result.fail(CodeExecutionError, err), start)
	}
	if r.Empty() {
		result.info("No numeric ids in %s, nothing to shift", collection)
		return a.finish("shift-ids", result, start)
	}

	t := ids.NewShift(offset, r.Min, r.Max)
	result.info("Shifting %d ids of %s in [%d, %d] by %d", r.Count, collection, r.Min, r.Max, offset)
	return a.finish("shift-ids", a.apply(ctx, result, collection, t, validation.RejectCollisions), start)
}
