package firestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	defaultTxAttempts = 5
	defaultTxTimeout  = 15 * time.Second
)

// TxFunc is the body of a Firestore transaction. Firestore re-runs it after an aborted
// commit, so it must not leak state between attempts.
type TxFunc func(ctx context.Context, tx *firestore.Transaction) error

// TxOption customises a single RunTransaction call.
type TxOption func(*txConfig)

// TxObserver receives the outcome of a transaction once Firestore stops retrying.
type TxObserver func(attempts int, err error)

type txConfig struct {
	attempts int
	timeout  time.Duration
	observer TxObserver
}

// WithTxAttempts caps the number of commit attempts.
func WithTxAttempts(attempts int) TxOption {
	return func(cfg *txConfig) {
		if attempts > 0 {
			cfg.attempts = attempts
		}
	}
}

// WithTxTimeout bounds the whole transaction, retries included. A shorter deadline on the
// caller context wins.
func WithTxTimeout(timeout time.Duration) TxOption {
	return func(cfg *txConfig) {
		if timeout > 0 {
			cfg.timeout = timeout
		}
	}
}

// WithTxObserver registers fn to be told how many attempts a transaction took.
func WithTxObserver(fn TxObserver) TxOption {
	return func(cfg *txConfig) {
		cfg.observer = fn
	}
}

func newTxConfig(opts []TxOption) txConfig {
	cfg := txConfig{attempts: defaultTxAttempts, timeout: defaultTxTimeout}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

func runTransaction(ctx context.Context, client *firestore.Client, fn TxFunc, cfg txConfig) error {
	if fn == nil {
		return WrapError("transaction", errors.New("firestore: transaction function is nil"))
	}

	if cfg.timeout > 0 {
		if deadline, ok := ctx.Deadline(); !ok || time.Until(deadline) > cfg.timeout {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, cfg.timeout)
			defer cancel()
		}
	}

	attempts := 0
	err := client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		attempts++
		return fn(ctx, tx)
	}, firestore.MaxAttempts(cfg.attempts))

	if cfg.observer != nil {
		cfg.observer(attempts, err)
	}
	if err != nil && status.Code(err) == codes.Aborted {
		err = fmt.Errorf("gave up after %d attempts: %w", attempts, err)
	}
	return WrapError("transaction", err)
}
