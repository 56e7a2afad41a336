package types

import (
	"strconv"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Document is a schemaless record as decoded from the document store.
// Nested objects may be bson.M, bson.D or plain maps; arrays may be bson.A or []interface{}.
type Document = bson.M

// IDField is the primary key field of every collection
const IDField = "_id"

// DocumentID returns the raw primary key of a document
func DocumentID(doc Document) interface{} {
	return doc[IDField]
}

// AsMap returns v as a plain field map when it is any of the object shapes
// produced by the bson decoder.
func AsMap(v interface{}) (map[string]interface{}, bool) {
	switch m := v.(type) {
	case primitive.M:
		return m, true
	case map[string]interface{}:
		return m, true
	case primitive.D:
		return m.Map(), true
	default:
		return nil, false
	}
}

// AsArray returns v as a slice when it is any of the array shapes produced by the bson decoder.
func AsArray(v interface{}) ([]interface{}, bool) {
	switch a := v.(type) {
	case primitive.A:
		return a, true
	case []interface{}:
		return a, true
	default:
		return nil, false
	}
}

// Lookup resolves a dotted path against a document. Numeric segments index into arrays.
// Lookup does not traverse arrays implicitly.
func Lookup(doc Document, path []string) (interface{}, bool) {
	var cur interface{} = doc
	for _, seg := range path {
		if m, ok := AsMap(cur); ok {
			v, exists := m[seg]
			if !exists {
				return nil, false
			}
			cur = v
			continue
		}
		if a, ok := AsArray(cur); ok {
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(a) {
				return nil, false
			}
			cur = a[idx]
			continue
		}
		return nil, false
	}
	return cur, true
}

// CloneDocument returns a deep copy of doc. Nested objects become bson.M and
// arrays become bson.A so the copy never shares state with the input.
func CloneDocument(doc Document) Document {
	if doc == nil {
		return nil
	}
	return cloneValue(doc).(Document)
}

func cloneValue(v interface{}) interface{} {
	if m, ok := AsMap(v); ok {
		out := make(bson.M, len(m))
		for k, val := range m {
			out[k] = cloneValue(val)
		}
		return out
	}
	if a, ok := AsArray(v); ok {
		out := make(bson.A, len(a))
		for i, val := range a {
			out[i] = cloneValue(val)
		}
		return out
	}
	return v
}
