package rewrite

import (
	"github.com/arthur-debert/refshift/formats"
	"github.com/arthur-debert/refshift/store"
)

// DependentReport counts what happened in one dependent collection
type DependentReport struct {
	Collection string
	// Inspected documents passed the candidate filter
	Inspected int64
	// Patched documents needed at least one field changed
	Patched int64
	// Modified documents were written by the store
	Modified int64
	Failed   int64
	Failures []store.DocumentFailure
	// Aborted is set when a malformed document stopped the dependent
	Aborted bool
}

// NothingMatched reports whether no document passed the candidate filter
func (r DependentReport) NothingMatched() bool {
	return r.Inspected == 0
}

// NoUpdatesNeeded reports whether candidates were found but none referenced a moved id
func (r DependentReport) NoUpdatesNeeded() bool {
	return r.Inspected > 0 && r.Patched == 0
}

// Summary renders the report for the output formats
func (r DependentReport) Summary() formats.Summary {
	return formats.Summary{
		Title: r.Collection,
		Rows: []formats.Row{
			{Label: "inspected", Value: r.Inspected},
			{Label: "patched", Value: r.Patched},
			{Label: "modified", Value: r.Modified},
			{Label: "failed", Value: r.Failed},
		},
	}
}

// Report is the outcome of rewriting the references to one root collection
type Report struct {
	Root       string
	Transform  string
	DryRun     bool
	Dependents []DependentReport
}

// Patched returns the number of patched documents across dependents
func (r Report) Patched() int64 {
	var n int64
	for _, d := range r.Dependents {
		n += d.Patched
	}
	return n
}

// Modified returns the number of written documents across dependents
func (r Report) Modified() int64 {
	var n int64
	for _, d := range r.Dependents {
		n += d.Modified
	}
	return n
}

// RootReport is the outcome of re-keying a root collection
type RootReport struct {
	Collection string
	// Moved documents now live under their new id
	Moved int64
	// Dropped documents collided with an earlier one and were only removed
	Dropped int64
	// Purged documents were left in the pre-image window by a whole-collection shift
	Purged   int64
	Whole    bool
	Failures []store.DocumentFailure
}

// Summary renders the report for the output formats
func (r RootReport) Summary() formats.Summary {
	return formats.Summary{
		Title: r.Collection,
		Rows: []formats.Row{
			{Label: "moved", Value: r.Moved},
			{Label: "dropped", Value: r.Dropped},
			{Label: "purged", Value: r.Purged},
		},
	}
}
