package firestore

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type errorKind uint8

const (
	kindUnknown errorKind = iota
	kindNotFound
	kindConflict
	kindUnavailable
)

func (k errorKind) String() string {
	switch k {
	case kindNotFound:
		return "not_found"
	case kindConflict:
		return "conflict"
	case kindUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// Error is the classified failure returned by the Firestore layer. It satisfies
// repositories.RepositoryError so services can map it without importing grpc.
type Error struct {
	op   string
	kind errorKind
	err  error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.op == "" {
		return e.err.Error()
	}
	return fmt.Sprintf("%s: %v", e.op, e.err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.err
}

// IsNotFound reports a missing document or tenant setting.
func (e *Error) IsNotFound() bool { return e != nil && e.kind == kindNotFound }

// IsConflict reports a write rejected by an existing document or precondition.
func (e *Error) IsConflict() bool { return e != nil && e.kind == kindConflict }

// IsUnavailable reports an outage or a transaction that ran out of attempts.
func (e *Error) IsUnavailable() bool { return e != nil && e.kind == kindUnavailable }

// Kind returns the classification as a short machine string.
func (e *Error) Kind() string {
	if e == nil {
		return ""
	}
	return e.kind.String()
}

func classify(code codes.Code) errorKind {
	switch code {
	case codes.NotFound:
		return kindNotFound
	case codes.AlreadyExists, codes.FailedPrecondition, codes.OutOfRange:
		return kindConflict
	case codes.Aborted, codes.Unavailable, codes.ResourceExhausted, codes.Internal, codes.DeadlineExceeded:
		return kindUnavailable
	default:
		return kindUnknown
	}
}

// WrapError classifies err by its gRPC status and tags it with op. Context cancellation is
// returned as the bare context error so callers can test it with errors.Is.
func WrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	switch status.Code(err) {
	case codes.Canceled:
		return context.Canceled
	case codes.DeadlineExceeded:
		return context.DeadlineExceeded
	}

	var existing *Error
	if errors.As(err, &existing) {
		if existing.op == "" {
			existing.op = op
		}
		return existing
	}
	return &Error{op: op, kind: classify(status.Code(err)), err: err}
}

// NotFoundError classifies err as a missing document.
func NotFoundError(op string, err error) *Error {
	return &Error{op: op, kind: kindNotFound, err: err}
}

// ConflictError classifies err as a conflicting write.
func ConflictError(op string, err error) *Error {
	return &Error{op: op, kind: kindConflict, err: err}
}
