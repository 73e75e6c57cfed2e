package memory

import (
	"errors"
	"fmt"
)

var (
	errNotFound       = errors.New("not found")
	errAlreadyExists  = errors.New("already exists")
	errReadAfterWrite = errors.New("read issued after a write in the same transaction")
	errNotRead        = errors.New("document must be read in the transaction before it is written")
	errTxAborted      = errors.New("transaction aborted: read set changed by a concurrent commit")
)

// Error implements repositories.RepositoryError for the in-memory store.
type Error struct {
	op          string
	err         error
	notFound    bool
	conflict    bool
	unavailable bool
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.op != "" {
		return fmt.Sprintf("%s: %v", e.op, e.err)
	}
	return e.err.Error()
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.err
}

// IsNotFound reports whether the error represents a missing document.
func (e *Error) IsNotFound() bool { return e != nil && e.notFound }

// IsConflict reports whether the error represents a conflicting write.
func (e *Error) IsConflict() bool { return e != nil && e.conflict }

// IsUnavailable reports whether the transaction ran out of retries.
func (e *Error) IsUnavailable() bool { return e != nil && e.unavailable }

func notFoundError(op, format string, args ...any) *Error {
	return &Error{op: op, err: fmt.Errorf("%s %w", fmt.Sprintf(format, args...), errNotFound), notFound: true}
}

func conflictError(op string, err error) *Error {
	return &Error{op: op, err: err, conflict: true}
}

func unavailableError(op string, err error) *Error {
	return &Error{op: op, err: err, unavailable: true}
}

func usageError(op string, err error) *Error {
	return &Error{op: op, err: err}
}
