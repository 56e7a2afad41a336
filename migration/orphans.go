package migration

import (
	"context"
	"time"

	"github.com/arthur-debert/refshift/orphans"
)

// maxListed bounds the ids listed in message details
const maxListed = 20

func (a *API) detector() *orphans.Detector {
	return orphans.NewDetector(a.store, a.registry, orphans.Options{Verbose: a.opts.Verbose, Logger: a.log})
}

// Orphans reports root documents nothing references and, with purge set,
// deletes them unless the run is a dry run.
func (a *API) Orphans(ctx context.Context, collection string, purge bool) *Result {
	start := time.Now()
	result := newResult(a.runID, a.opts.DryRun)
	d := a.detector()

	found, err := d.Find(ctx, collection)
	if err != nil {
		return a.finish("orphans", result.fail(codeFor(err, false), err), start)
	}
	result.Stats.TotalDocs = int(found.Total)
	reportScan(result, found)

	if !purge || len(found.Orphans) == 0 {
		return a.finish("orphans", result, start)
	}

	n, err := d.Purge(ctx, collection, found.Orphans, a.opts.DryRun)
	if err != nil {
		result.Stats.ModifiedDocs = int(n)
		return a.finish("orphans", result.fail(codeFor(err, n > 0), err), start)
	}
	if a.opts.DryRun {
		result.info("Would remove %d %s", n, collection)
	} else {
		result.Stats.ModifiedDocs = int(n)
		result.info("Removed %d %s", n, collection)
	}
	return a.finish("orphans", result, start)
}

// Check reports dangling references and orphans without writing. Dangling
// references fail the check.
func (a *API) Check(ctx context.Context, collection string) *Result {
	start := time.Now()
	result := newResult(a.runID, true)

	found, err := a.detector().Find(ctx, collection)
	if err != nil {
		return a.finish("check", result.fail(codeFor(err, false), err), start)
	}
	result.Stats.TotalDocs = int(found.Total)
	reportScan(result, found)

	if len(found.Dangling) > 0 {
		result.Success = false
		result.Code = CodeValidationError
		result.Messages = append(result.Messages, Message{
			Level:   LevelError,
			Text:    "references to missing " + collection + " found",
			Details: map[string]interface{}{"ids": head(found.Dangling), "total": len(found.Dangling)},
		})
	} else {
		result.info("All references to %s resolve", collection)
	}
	return a.finish("check", result, start)
}

func reportScan(result *Result, found orphans.Result) {
	result.info("Found %d %s (of %d) without reference", len(found.Orphans), found.Root, found.Total)
	if len(found.Orphans) > 0 {
		result.Messages = append(result.Messages, Message{
			Level:   LevelDebug,
			Text:    "unreferenced ids",
			Details: map[string]interface{}{"ids": head(found.Orphans), "total": len(found.Orphans)},
		})
	}
	if len(found.Dangling) > 0 {
		result.warn(map[string]interface{}{"ids": head(found.Dangling)},
			"%d referenced %s ids have no document", len(found.Dangling), found.Root)
	}
	if found.Invalid > 0 {
		result.warn(nil, "%d invalid reference values ignored", found.Invalid)
	}
}

func head(list []int64) []int64 {
	return list[:min(maxListed, len(list))]
}
