// Package errs defines the error taxonomy shared by the editing engine.
//
// Every failure the engine can surface is one of a small set of kinds. Callers
// branch on the kind with Is, never on message text.
package errs

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failure
type Kind string

const (
	// KindFetch means the authoritative refetch failed
	KindFetch Kind = "fetch"
	// KindWriteRejected means the backend refused a create, update or delete
	KindWriteRejected Kind = "write_rejected"
	// KindValidationGap means a row referenced something that does not exist
	KindValidationGap Kind = "validation_gap"
	// KindDuplicateEdge means an edge between the pair already exists
	KindDuplicateEdge Kind = "duplicate_edge"
	// KindNotFound means the addressed entity does not exist
	KindNotFound Kind = "not_found"
	// KindInvalid means the input failed validation
	KindInvalid Kind = "invalid"
)

// Error carries a kind, the operation that failed and an optional cause
type Error struct {
	Kind   Kind
	Op     string
	Reason string
	Err    error
}

// Error implements the error interface
func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Err
}

// HTTPStatus maps the kind to a response status
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindInvalid, KindValidationGap:
		return http.StatusBadRequest
	case KindWriteRejected, KindDuplicateEdge:
		return http.StatusConflict
	case KindFetch:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// New creates an error of the given kind
func New(kind Kind, op, reason string) *Error {
	return &Error{Kind: kind, Op: op, Reason: reason}
}

// Wrap creates an error of the given kind around a cause
func Wrap(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Fetch wraps a refetch failure
func Fetch(op string, err error) *Error {
	return Wrap(KindFetch, op, err)
}

// WriteRejected wraps a refused backend write
func WriteRejected(op string, err error) *Error {
	return Wrap(KindWriteRejected, op, err)
}

// NotFound reports a missing entity
func NotFound(op, what string) *Error {
	return New(KindNotFound, op, fmt.Sprintf("%s not found", what))
}

// Invalid reports failed validation
func Invalid(op string, err error) *Error {
	return Wrap(KindInvalid, op, err)
}

// Is reports whether err or anything it wraps is an *Error of kind
func Is(err error, kind Kind) bool {
	var e *Error
	for err != nil {
		if !errors.As(err, &e) {
			return false
		}
		if e.Kind == kind {
			return true
		}
		err = e.Err
	}
	return false
}

// KindOf returns the outermost kind of err, or "" when err is not an *Error
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Reason returns the user facing reason of err
func Reason(err error) string {
	var e *Error
	if errors.As(err, &e) {
		if e.Reason != "" {
			return e.Reason
		}
		if e.Err != nil {
			return e.Err.Error()
		}
		return string(e.Kind)
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
