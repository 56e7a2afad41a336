// Package ids provides identifier parsing, formatting and id transforms.
//
//	Composite Identifiers
//
// Some collections reference documents through a string instead of a bare
// integer. These strings have the shape `<id>` or `<id>-<revision>`:
//
//   - "42"    → document 42, no revision
//
//   - "42-3"  → document 42, revision 3
//
// The revision is opaque: it is carried through a rewrite exactly as written,
// only the id component ever changes. Strings that do not match the grammar
// are not references this package understands; Parse reports them with
// ok == false instead of an error.
//
//	Transforms
//
// A Transform maps an old id to its replacement. Every transform is total:
// ids it does not know about map to themselves, which is what lets callers
// detect "nothing to do" by comparing the input and output.
//
//   - Identity: never changes anything
//
//   - Shift: adds a delta to ids inside an inclusive source window; ids outside
//     the window pass through. A shift captured from a collection's id range
//     is therefore a no-op when run again on already shifted data.
//
//   - Mapping: explicit old → new pairs, identity for everything else
//
// Lift turns a Transform into a transform over composite identifier strings.
package ids
