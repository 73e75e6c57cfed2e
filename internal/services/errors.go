package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/m5zonk/api/internal/repositories"
)

var (
	// ErrInvalidRequest marks malformed input: empty orders, bad dates, zero quantity changes.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrNotFound marks a missing product, order or tenant configuration.
	ErrNotFound = errors.New("not found")
	// ErrConflict marks insufficient stock, duplicates and no-op transitions.
	ErrConflict = errors.New("conflict")
	// ErrInternal marks storage failures and unexpected errors.
	ErrInternal = errors.New("internal error")
)

const internalMessage = "the request could not be completed"

// Error is the typed, operational error returned by every service operation.
// Kind is one of the Err* sentinels; match it with errors.Is.
type Error struct {
	Kind    error
	Message string
	Err     error
}

// Error implements the error interface. Internal errors never expose their cause.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Message == "" {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *Error) Unwrap() []error {
	if e == nil {
		return nil
	}
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Status returns the HTTP-style status code for the error kind.
func (e *Error) Status() int {
	if e == nil {
		return http.StatusOK
	}
	switch e.Kind {
	case ErrInvalidRequest:
		return http.StatusBadRequest
	case ErrNotFound:
		return http.StatusNotFound
	case ErrConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func invalidRequest(format string, args ...any) *Error {
	return &Error{Kind: ErrInvalidRequest, Message: fmt.Sprintf(format, args...)}
}

func notFound(format string, args ...any) *Error {
	return &Error{Kind: ErrNotFound, Message: fmt.Sprintf(format, args...)}
}

// classifyError maps any error escaping a service operation onto the taxonomy.
// Unclassified errors become ErrInternal; their cause is logged, not returned in the message.
func classifyError(logger *zap.Logger, op string, err error) error {
	if err == nil {
		return nil
	}

	var svcErr *Error
	if errors.As(err, &svcErr) {
		return svcErr
	}

	var stockErr *repositories.StockError
	if errors.As(err, &stockErr) {
		switch stockErr.Code {
		case repositories.StockErrorInsufficient:
			return &Error{Kind: ErrConflict, Message: stockErr.Message, Err: err}
		case repositories.StockErrorNotInitialised:
			return &Error{Kind: ErrInvalidRequest, Message: stockErr.Message, Err: err}
		}
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return &Error{Kind: ErrNotFound, Message: repoErr.Error(), Err: err}
		case repoErr.IsConflict():
			return &Error{Kind: ErrConflict, Message: repoErr.Error(), Err: err}
		}
	}

	if errors.Is(err, context.Canceled) {
		logger.Info("operation canceled", zap.String("op", op))
	} else {
		logger.Error("operation failed", zap.String("op", op), zap.Error(err))
	}
	return &Error{Kind: ErrInternal, Message: internalMessage, Err: err}
}
