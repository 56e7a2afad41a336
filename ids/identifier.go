package ids

import (
	"regexp"
	"strconv"
)

var identifierPattern = regexp.MustCompile(`^(\d+)(?:-(\d+))?$`)

// Identifier is a parsed composite identifier
type Identifier struct {
	ID int64
	// Revision is kept verbatim, empty when the identifier has no revision part
	Revision string
}

// HasRevision reports whether the identifier carries a revision
func (i Identifier) HasRevision() bool {
	return i.Revision != ""
}

// Parse splits an `id[-revision]` string. ok is false for anything not
// matching the grammar, including ids that overflow int64. The id loses
// its leading zeros, so Format(Parse("007-2")) is "7-2"; the revision is
// kept verbatim.
func Parse(identifier string) (Identifier, bool) {
	m := identifierPattern.FindStringSubmatch(identifier)
	if m == nil {
		return Identifier{}, false
	}

	id, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return Identifier{}, false
	}

	return Identifier{ID: id, Revision: m[2]}, true
}

// Format renders an identifier back to its string form.
// ok is false for non-positive ids so a zero value never round-trips into data.
func Format(i Identifier) (string, bool) {
	if i.ID <= 0 {
		return "", false
	}
	s := strconv.FormatInt(i.ID, 10)
	if i.HasRevision() {
		s += "-" + i.Revision
	}
	return s, true
}

// CompositeTransform rewrites a composite identifier string.
// ok is false when the input is not an identifier, in which case the caller
// must leave the field unchanged.
type CompositeTransform func(identifier string) (string, bool)

// Lift wraps t so it rewrites only the id component of composite identifiers
func Lift(t Transform) CompositeTransform {
	return func(identifier string) (string, bool) {
		parsed, ok := Parse(identifier)
		if !ok {
			return "", false
		}
		parsed.ID = t.Apply(parsed.ID)
		return Format(parsed)
	}
}
