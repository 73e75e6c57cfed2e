package firestore

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestWrapErrorClassification(t *testing.T) {
	tests := []struct {
		name        string
		code        codes.Code
		notFound    bool
		conflict    bool
		unavailable bool
	}{
		{name: "not found", code: codes.NotFound, notFound: true},
		{name: "already exists", code: codes.AlreadyExists, conflict: true},
		{name: "failed precondition", code: codes.FailedPrecondition, conflict: true},
		{name: "aborted", code: codes.Aborted, unavailable: true},
		{name: "unavailable", code: codes.Unavailable, unavailable: true},
		{name: "unknown", code: codes.Unknown},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := WrapError("orders.get", status.Error(tc.code, "boom"))
			var repoErr *Error
			if !errors.As(err, &repoErr) {
				t.Fatalf("expected *Error, got %T", err)
			}
			if repoErr.IsNotFound() != tc.notFound || repoErr.IsConflict() != tc.conflict || repoErr.IsUnavailable() != tc.unavailable {
				t.Fatalf("unexpected classification for %s: %+v", tc.code, repoErr)
			}
		})
	}
}

func TestWrapErrorPassesThroughCancellation(t *testing.T) {
	if err := WrapError("tx", context.Canceled); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if err := WrapError("tx", status.Error(codes.DeadlineExceeded, "slow")); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if err := WrapError("tx", nil); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}

func TestWrapErrorKeepsExistingOp(t *testing.T) {
	inner := NotFoundError("", errors.New("order o1 missing"))
	err := WrapError("orders.find", inner)
	if err.Error() != "orders.find: order o1 missing" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestErrorKind(t *testing.T) {
	wrapped := WrapError("transaction", fmt.Errorf("gave up after 5 attempts: %w", status.Error(codes.Aborted, "contention")))
	var repoErr *Error
	if !errors.As(wrapped, &repoErr) {
		t.Fatalf("expected *Error, got %T", wrapped)
	}
	if repoErr.Kind() != "unavailable" {
		t.Fatalf("expected unavailable, got %s", repoErr.Kind())
	}
	if got := ConflictError("orders.create", errors.New("dup")).Kind(); got != "conflict" {
		t.Fatalf("expected conflict, got %s", got)
	}
	if got := WrapError("x", errors.New("plain")).(*Error).Kind(); got != "unknown" {
		t.Fatalf("expected unknown, got %s", got)
	}
}
