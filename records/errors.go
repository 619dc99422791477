package records

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a record operation failure.
type Kind int

const (
	// KindInvalidID means the caller supplied a malformed identifier.
	KindInvalidID Kind = iota + 1
	// KindNotFound means no record matched the identifier.
	KindNotFound
	// KindInsertionFailed means the store accepted a write but returned no usable identifier.
	KindInsertionFailed
	// KindDatabase covers every I/O, protocol or backend fault.
	KindDatabase
)

func (k Kind) String() string {
	switch k {
	case KindInvalidID:
		return "invalid_id"
	case KindNotFound:
		return "not_found"
	case KindInsertionFailed:
		return "insertion_failed"
	case KindDatabase:
		return "database_error"
	default:
		return "unknown"
	}
}

// Error is the typed failure returned by Service operations.
type Error struct {
	Kind     Kind
	Resource string // "Account", "Task"
	Detail   string // set for KindDatabase only
	Err      error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindInvalidID:
		return fmt.Sprintf("Invalid %s ID", strings.ToLower(e.Resource))
	case KindNotFound:
		return e.Resource + " not found"
	case KindInsertionFailed:
		return "Insertion failed"
	case KindDatabase:
		return "Database error: " + e.Detail
	default:
		return "unknown error"
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind carried by err, or zero when err is not an *Error.
func KindOf(err error) Kind {
	var rerr *Error
	if errors.As(err, &rerr) {
		return rerr.Kind
	}
	return 0
}

func invalidID(resource string, err error) *Error {
	return &Error{Kind: KindInvalidID, Resource: resource, Err: err}
}

func notFound(resource string) *Error {
	return &Error{Kind: KindNotFound, Resource: resource}
}

func insertionFailed(resource string) *Error {
	return &Error{Kind: KindInsertionFailed, Resource: resource}
}

func databaseError(resource string, err error) *Error {
	return &Error{Kind: KindDatabase, Resource: resource, Detail: err.Error(), Err: err}
}
