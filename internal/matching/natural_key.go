// Package matching compares entities of two datasets by a natural key
package matching

import (
	"regexp"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/text/cases"

	"github.com/arthur-debert/refshift/types"
)

// NaturalKey extracts and compares a string field case-insensitively.
// It is not safe for concurrent use.
type NaturalKey struct {
	field string
	fold  cases.Caser
}

// NewNaturalKey creates a key over a top-level document field
func NewNaturalKey(field string) *NaturalKey {
	return &NaturalKey{field: field, fold: cases.Fold()}
}

// Field returns the document field holding the key
func (k *NaturalKey) Field() string {
	return k.field
}

// Normalize trims and case-folds a raw key
func (k *NaturalKey) Normalize(raw string) string {
	return k.fold.String(strings.TrimSpace(raw))
}

// Extract returns the normalized key of doc. ok is false when the field is
// missing, not a string, or blank.
func (k *NaturalKey) Extract(doc types.Document) (string, bool) {
	raw, ok := doc[k.field].(string)
	if !ok {
		return "", false
	}
	key := k.Normalize(raw)
	return key, key != ""
}

// Matches reports whether doc carries the given normalized key
func (k *NaturalKey) Matches(doc types.Document, key string) bool {
	got, ok := k.Extract(doc)
	return ok && got == key
}

// Pattern returns an anchored case-insensitive store regex for raw.
// Candidates it selects must still be confirmed with Matches.
func (k *NaturalKey) Pattern(raw string) primitive.Regex {
	return primitive.Regex{
		Pattern: "^" + regexp.QuoteMeta(strings.TrimSpace(raw)) + "$",
		Options: "i",
	}
}
