package types

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes failures of a reference rewrite run.
type ErrorCode string

const (
	// ErrCodeUnsupportedCollection indicates no processor is registered for a collection.
	ErrCodeUnsupportedCollection ErrorCode = "UNSUPPORTED_COLLECTION"

	// ErrCodeMalformedDocument indicates a reference field is present with the wrong shape.
	ErrCodeMalformedDocument ErrorCode = "MALFORMED_DOCUMENT"

	// ErrCodeRangeViolation indicates a transform would produce non-positive or colliding ids.
	ErrCodeRangeViolation ErrorCode = "RANGE_VIOLATION"

	// ErrCodeAmbiguousMatch indicates a natural key matched more than one candidate.
	ErrCodeAmbiguousMatch ErrorCode = "AMBIGUOUS_MATCH"

	// ErrCodeBulkFailure indicates some documents of a bulk submission were not written.
	ErrCodeBulkFailure ErrorCode = "BULK_FAILURE"
)

// Error is the structured error returned by every stage of a run.
//
// Collection, DocumentID, Field and Value are filled when known so the
// offending data can be located without re-running in verbose mode.
type Error struct {
	Code       ErrorCode
	Message    string
	Collection string
	DocumentID interface{}
	Field      string
	Value      interface{}
	Err        error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Collection != "" {
		msg += fmt.Sprintf(" (collection=%s", e.Collection)
		if e.DocumentID != nil {
			msg += fmt.Sprintf(", _id=%v", e.DocumentID)
		}
		if e.Field != "" {
			msg += fmt.Sprintf(", field=%s, value=%#v", e.Field, e.Value)
		}
		msg += ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsCode reports whether err, or any error it wraps, is an *Error with the given code.
func IsCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// ErrUnsupportedCollection builds an UNSUPPORTED_COLLECTION error.
func ErrUnsupportedCollection(collection string) *Error {
	return &Error{
		Code:       ErrCodeUnsupportedCollection,
		Message:    "unknown or unsupported collection",
		Collection: collection,
	}
}

// ErrMalformedDocument builds a MALFORMED_DOCUMENT error for a field of a document.
func ErrMalformedDocument(collection string, id interface{}, field string, value interface{}, reason string) *Error {
	return &Error{
		Code:       ErrCodeMalformedDocument,
		Message:    reason,
		Collection: collection,
		DocumentID: id,
		Field:      field,
		Value:      value,
	}
}

// ErrRangeViolation builds a RANGE_VIOLATION error.
func ErrRangeViolation(collection, format string, args ...interface{}) *Error {
	return &Error{
		Code:       ErrCodeRangeViolation,
		Message:    fmt.Sprintf(format, args...),
		Collection: collection,
	}
}

// ErrAmbiguousMatch builds an AMBIGUOUS_MATCH error for a natural key matching several candidates.
func ErrAmbiguousMatch(collection string, id interface{}, field string, key string, candidates []int64) *Error {
	return &Error{
		Code:       ErrCodeAmbiguousMatch,
		Message:    fmt.Sprintf("%d candidates share the same key %q: %v", len(candidates), key, candidates),
		Collection: collection,
		DocumentID: id,
		Field:      field,
		Value:      key,
	}
}
