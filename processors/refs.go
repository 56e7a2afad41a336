package processors

import (
	"strconv"
	"strings"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/arthur-debert/refshift/ids"
	"github.com/arthur-debert/refshift/patch"
	"github.com/arthur-debert/refshift/types"
)

// Shape is the stored form of a reference
type Shape int

const (
	// Numeric references hold the target _id as a bare number
	Numeric Shape = iota
	// Composite references hold an "id" or "id-revision" string
	Composite
	// Legacy references should hold {Key: id} but older documents store the bare id
	// in place of the object; rewriting them also repairs the shape
	Legacy
)

// String returns the string representation of the Shape
func (s Shape) String() string {
	switch s {
	case Numeric:
		return "numeric"
	case Composite:
		return "composite"
	case Legacy:
		return "legacy"
	default:
		return "unknown"
	}
}

// Wildcard marks a path segment that visits every element of an array
const Wildcard = "*"

// Cond is a discriminator check. Path uses the same wildcards as the guarded
// Ref and is evaluated at the same array positions.
type Cond struct {
	Path   string
	Equals string
}

// Ref declares one location holding a reference to the root collection
type Ref struct {
	// Path is dotted, with "*" for every element of an array
	Path  string
	Shape Shape
	// Key is the field inside the object for Legacy references
	Key string
	// When restricts the reference to elements whose discriminator matches
	When *Cond
}

// Guarded reports whether the reference depends on a discriminator
func (r Ref) Guarded() bool {
	return r.When != nil
}

// DistinctPaths returns the store paths holding this reference's values.
// Arrays are traversed implicitly by the store so wildcards are dropped.
func (r Ref) DistinctPaths() []DistinctPath {
	base := stripWildcards(r.Path)
	switch r.Shape {
	case Legacy:
		return []DistinctPath{
			{Path: base, Filter: bson.M{base: bson.M{"$type": "number"}}},
			{Path: base + "." + r.Key},
		}
	case Composite:
		return []DistinctPath{{Path: base, Composite: true}}
	default:
		return []DistinctPath{{Path: base}}
	}
}

// DistinctPath is a store path whose distinct values are reference ids
type DistinctPath struct {
	Path   string
	Filter bson.M
	// Composite values are identifier strings rather than numbers
	Composite bool
}

func stripWildcards(path string) string {
	parts := strings.Split(path, ".")
	kept := parts[:0]
	for _, p := range parts {
		if p != Wildcard {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, ".")
}

// Dependent is the reference table of one dependent collection
type Dependent struct {
	Collection string
	// Filter selects candidate documents; it may over-select but must never miss a reference
	Filter bson.M
	Refs   []Ref
}

// match is a concrete location found by expanding a Ref against a document
type match struct {
	path    patch.Path
	value   interface{}
	indexes []int
}

// shapeError is a reference field present with an unexpected shape
type shapeError struct {
	path   string
	value  interface{}
	reason string
}

func (e *shapeError) Error() string {
	return e.path + ": " + e.reason
}

// expand returns every non-null value at the ref's path, honoring its discriminator
func expand(doc types.Document, ref Ref) ([]match, error) {
	var out []match
	segs := strings.Split(ref.Path, ".")
	if err := walk(doc, segs, nil, nil, &out); err != nil {
		return nil, err
	}

	if ref.When == nil {
		return out, nil
	}

	guarded := out[:0]
	for _, m := range out {
		if condHolds(doc, ref.When, m.indexes) {
			guarded = append(guarded, m)
		}
	}
	return guarded, nil
}

func walk(cur interface{}, segs []string, at patch.Path, indexes []int, out *[]match) error {
	seg := segs[0]
	rest := segs[1:]

	if seg == Wildcard {
		arr, ok := types.AsArray(cur)
		if !ok {
			return &shapeError{path: at.String(), value: cur, reason: "expected an array"}
		}
		for i, el := range arr {
			if el == nil {
				continue
			}
			elPath := at.Append(patch.Index(i))
			elIndexes := append(append([]int(nil), indexes...), i)
			if len(rest) == 0 {
				*out = append(*out, match{path: elPath, value: el, indexes: elIndexes})
				continue
			}
			if err := walk(el, rest, elPath, elIndexes, out); err != nil {
				return err
			}
		}
		return nil
	}

	obj, ok := types.AsMap(cur)
	if !ok {
		return &shapeError{path: at.String(), value: cur, reason: "expected an object"}
	}
	v, exists := obj[seg]
	if !exists || v == nil {
		return nil
	}

	fieldPath := at.Append(patch.Field(seg))
	if len(rest) == 0 {
		*out = append(*out, match{path: fieldPath, value: v, indexes: indexes})
		return nil
	}
	return walk(v, rest, fieldPath, indexes, out)
}

// condHolds resolves the discriminator path at the positions the reference was found
func condHolds(doc types.Document, cond *Cond, indexes []int) bool {
	segs := strings.Split(cond.Path, ".")
	resolved := make([]string, 0, len(segs))
	next := 0
	for _, s := range segs {
		if s == Wildcard {
			if next >= len(indexes) {
				return false
			}
			resolved = append(resolved, strconv.Itoa(indexes[next]))
			next++
			continue
		}
		resolved = append(resolved, s)
	}

	v, ok := types.Lookup(doc, resolved)
	if !ok {
		return false
	}
	s, ok := v.(string)
	return ok && s == cond.Equals
}

// rewrite computes the replacement for one reference value.
// changed is false when the transform leaves the reference as it is.
func rewrite(ref Ref, m match, t ids.Transform, lifted ids.CompositeTransform) (patch.Set, bool, error) {
	switch ref.Shape {
	case Legacy:
		if ids.IsNumber(m.value) {
			id, ok := ids.Coerce(m.value)
			if !ok {
				return patch.Set{}, false, &shapeError{path: m.path.String(), value: m.value, reason: "expected an integer id"}
			}
			repaired := bson.M{ref.Key: ids.Encode(t.Apply(id), m.value)}
			return patch.Set{Path: m.path, Old: m.value, Value: repaired}, true, nil
		}
		obj, ok := types.AsMap(m.value)
		if !ok {
			return patch.Set{}, false, &shapeError{path: m.path.String(), value: m.value, reason: "expected an object or an integer id"}
		}
		inner, exists := obj[ref.Key]
		if !exists || inner == nil {
			return patch.Set{}, false, nil
		}
		return rewriteNumeric(match{path: m.path.Append(patch.Field(ref.Key)), value: inner}, t)

	case Composite:
		if s, ok := m.value.(string); ok {
			out, ok := lifted(s)
			if !ok || out == s {
				return patch.Set{}, false, nil
			}
			return patch.Set{Path: m.path, Old: s, Value: out}, true, nil
		}
		if ids.IsNumber(m.value) {
			return rewriteNumeric(m, t)
		}
		return patch.Set{}, false, &shapeError{path: m.path.String(), value: m.value, reason: "expected an identifier string"}

	default:
		return rewriteNumeric(m, t)
	}
}

func rewriteNumeric(m match, t ids.Transform) (patch.Set, bool, error) {
	id, ok := ids.Coerce(m.value)
	if !ok {
		return patch.Set{}, false, &shapeError{path: m.path.String(), value: m.value, reason: "expected an integer id"}
	}
	to := t.Apply(id)
	if to == id {
		return patch.Set{}, false, nil
	}
	return patch.Set{Path: m.path, Old: m.value, Value: ids.Encode(to, m.value)}, true, nil
}

// referencedIDs extracts the ids referenced by one value, for orphan detection.
// Values that are not valid ids are returned in invalid.
func referencedIDs(ref Ref, m match) (found []int64, invalid []interface{}) {
	v := m.value
	if ref.Shape == Legacy {
		if obj, ok := types.AsMap(v); ok {
			v = obj[ref.Key]
			if v == nil {
				return nil, nil
			}
		}
	}

	var id int64
	var ok bool
	if s, isString := v.(string); isString && ref.Shape == Composite {
		var parsed ids.Identifier
		parsed, ok = ids.Parse(s)
		id = parsed.ID
	} else {
		id, ok = ids.Coerce(v)
	}

	if !ok || id < 1 {
		return nil, []interface{}{m.value}
	}
	return []int64{id}, nil
}
