// Package patch is the typed representation of per-document field updates.
//
// A Path is a sequence of field-name and array-index segments, e.g.
// revisions[2].contentItems[0].ref.id, rendered for the store as the dotted
// path "revisions.2.contentItems.0.ref.id".
package patch

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/arthur-debert/refshift/types"
)

// Segment is one step of a Path: either a field name or an array index
type Segment struct {
	Field string
	Index int
	// IsIndex distinguishes index 0 from an empty field name
	IsIndex bool
}

// Field returns a field-name segment
func Field(name string) Segment { return Segment{Field: name} }

// Index returns an array-index segment
func Index(i int) Segment { return Segment{Index: i, IsIndex: true} }

func (s Segment) String() string {
	if s.IsIndex {
		return strconv.Itoa(s.Index)
	}
	return s.Field
}

// Path addresses a value inside a document
type Path []Segment

// ParsePath splits a dotted path. Purely numeric segments become indexes.
func ParsePath(dotted string) Path {
	if dotted == "" {
		return nil
	}
	parts := strings.Split(dotted, ".")
	p := make(Path, len(parts))
	for i, part := range parts {
		if n, err := strconv.Atoi(part); err == nil && n >= 0 {
			p[i] = Index(n)
		} else {
			p[i] = Field(part)
		}
	}
	return p
}

// Append returns a new path with segs added; p is never modified
func (p Path) Append(segs ...Segment) Path {
	out := make(Path, 0, len(p)+len(segs))
	out = append(out, p...)
	return append(out, segs...)
}

func (p Path) String() string {
	parts := make([]string, len(p))
	for i, s := range p {
		parts[i] = s.String()
	}
	return strings.Join(parts, ".")
}

// Set assigns Value at Path. Old is the value being replaced, kept for previews.
type Set struct {
	Path  Path
	Old   interface{}
	Value interface{}
}

// Patch is the list of field assignments for one document
type Patch []Set

// Empty reports whether the patch changes nothing
func (p Patch) Empty() bool {
	return len(p) == 0
}

// Fields returns the dotted field → value map of the patch, sorted for stable output
func (p Patch) Fields() bson.D {
	fields := make(bson.D, 0, len(p))
	for _, s := range p {
		fields = append(fields, bson.E{Key: s.Path.String(), Value: s.Value})
	}
	sort.SliceStable(fields, func(i, j int) bool { return fields[i].Key < fields[j].Key })
	return fields
}

// Update renders the patch as a store update document
func (p Patch) Update() bson.D {
	return bson.D{{Key: "$set", Value: p.Fields()}}
}

// Apply writes every assignment of the patch into doc.
// Intermediate objects are created as needed; arrays are never grown.
func (p Patch) Apply(doc types.Document) error {
	for _, s := range p {
		if err := apply(doc, s.Path, s.Value); err != nil {
			return fmt.Errorf("apply %s: %w", s.Path, err)
		}
	}
	return nil
}

func apply(doc types.Document, path Path, value interface{}) error {
	if len(path) == 0 {
		return fmt.Errorf("empty path")
	}

	var cur interface{} = doc
	for i, seg := range path {
		last := i == len(path)-1

		if m, ok := types.AsMap(cur); ok {
			if seg.IsIndex {
				// numeric keys on objects behave like field names, as in the store
				seg = Field(seg.String())
			}
			if last {
				m[seg.Field] = value
				return nil
			}
			next, exists := m[seg.Field]
			if !exists || next == nil {
				next = bson.M{}
				m[seg.Field] = next
			}
			cur = next
			continue
		}

		if a, ok := types.AsArray(cur); ok {
			if !seg.IsIndex {
				return fmt.Errorf("field %q on array", seg.Field)
			}
			if seg.Index >= len(a) {
				return fmt.Errorf("index %d out of range (%d elements)", seg.Index, len(a))
			}
			if last {
				a[seg.Index] = value
				return nil
			}
			cur = a[seg.Index]
			continue
		}

		return fmt.Errorf("cannot descend into %T at %s", cur, path[:i])
	}
	return nil
}
