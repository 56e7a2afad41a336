// Package processors declares, per root collection, which collections hold
// references to it and where inside their documents those references live.
//
// Each root collection has one Processor. The per-document patch function is
// pure: it never mutates its input and reports only values that actually
// change, so an empty patch means the document can be skipped without I/O.
package processors

import (
	"errors"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/arthur-debert/refshift/ids"
	"github.com/arthur-debert/refshift/patch"
	"github.com/arthur-debert/refshift/types"
)

// Processor is the reference metadata of one root collection
type Processor interface {
	// Collection is the root collection whose ids the processor knows how to rewrite
	Collection() string

	// Dependents lists collections holding references to the root, in processing order
	Dependents() []string

	// FilterFor returns the candidate filter of a dependent. It may over-select.
	FilterFor(dependent string) bson.M

	// UpdateReferencesIn returns the field assignments needed to make doc consistent with t
	UpdateReferencesIn(dependent string, doc types.Document, t ids.Transform) (patch.Patch, error)

	// ReferencePaths returns the store paths of a dependent's unguarded references
	ReferencePaths(dependent string) []DistinctPath

	// Exact reports whether ReferencePaths alone captures every reference of a dependent.
	// When false, references must be collected by scanning with ReferencesIn.
	Exact(dependent string) bool

	// ReferencesIn returns the root ids referenced by doc and any invalid values found
	ReferencesIn(dependent string, doc types.Document) (found []int64, invalid []interface{}, err error)
}

// table implements Processor from declarative dependent tables
type table struct {
	root       string
	dependents []Dependent
}

func newTable(root string, dependents ...Dependent) table {
	return table{root: root, dependents: dependents}
}

func (t table) Collection() string {
	return t.root
}

func (t table) Dependents() []string {
	names := make([]string, len(t.dependents))
	for i, d := range t.dependents {
		names[i] = d.Collection
	}
	return names
}

func (t table) lookup(dependent string) (Dependent, bool) {
	for _, d := range t.dependents {
		if d.Collection == dependent {
			return d, true
		}
	}
	return Dependent{}, false
}

func (t table) FilterFor(dependent string) bson.M {
	d, ok := t.lookup(dependent)
	if !ok || d.Filter == nil {
		return bson.M{}
	}
	return d.Filter
}

func (t table) UpdateReferencesIn(dependent string, doc types.Document, tr ids.Transform) (patch.Patch, error) {
	d, ok := t.lookup(dependent)
	if !ok {
		return nil, types.ErrUnsupportedCollection(dependent)
	}

	lifted := ids.Lift(tr)
	var p patch.Patch
	for _, ref := range d.Refs {
		matches, err := expand(doc, ref)
		if err != nil {
			return nil, malformed(dependent, doc, err)
		}
		for _, m := range matches {
			set, changed, err := rewrite(ref, m, tr, lifted)
			if err != nil {
				return nil, malformed(dependent, doc, err)
			}
			if changed {
				p = append(p, set)
			}
		}
	}
	return p, nil
}

func (t table) ReferencePaths(dependent string) []DistinctPath {
	d, ok := t.lookup(dependent)
	if !ok {
		return nil
	}
	var paths []DistinctPath
	for _, ref := range d.Refs {
		if !ref.Guarded() {
			paths = append(paths, ref.DistinctPaths()...)
		}
	}
	return paths
}

func (t table) Exact(dependent string) bool {
	d, ok := t.lookup(dependent)
	if !ok {
		return true
	}
	for _, ref := range d.Refs {
		if ref.Guarded() {
			return false
		}
	}
	return true
}

func (t table) ReferencesIn(dependent string, doc types.Document) ([]int64, []interface{}, error) {
	d, ok := t.lookup(dependent)
	if !ok {
		return nil, nil, types.ErrUnsupportedCollection(dependent)
	}

	var found []int64
	var invalid []interface{}
	for _, ref := range d.Refs {
		matches, err := expand(doc, ref)
		if err != nil {
			return nil, nil, malformed(dependent, doc, err)
		}
		for _, m := range matches {
			f, inv := referencedIDs(ref, m)
			found = append(found, f...)
			invalid = append(invalid, inv...)
		}
	}
	return found, invalid, nil
}

func malformed(dependent string, doc types.Document, err error) error {
	var se *shapeError
	if errors.As(err, &se) {
		return types.ErrMalformedDocument(dependent, types.DocumentID(doc), se.path, se.value, se.reason)
	}
	return err
}
