package requestctx

import (
	"context"

	"go.uber.org/zap"
)

type contextKey string

const (
	loggerContextKey contextKey = "github.com/m5zonk/api/internal/platform/requestctx/logger"
	tenantContextKey contextKey = "github.com/m5zonk/api/internal/platform/requestctx/tenant"
	actorContextKey  contextKey = "github.com/m5zonk/api/internal/platform/requestctx/actor"
)

var noopLogger = zap.NewNop()

// WithLogger stores the logger in context for downstream consumers.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if logger == nil {
		logger = noopLogger
	}
	return context.WithValue(ctx, loggerContextKey, logger)
}

// Logger retrieves the zap logger from context or returns a no-op logger.
func Logger(ctx context.Context) *zap.Logger {
	if ctx == nil {
		return noopLogger
	}
	if logger, ok := ctx.Value(loggerContextKey).(*zap.Logger); ok && logger != nil {
		return logger
	}
	return noopLogger
}

// WithTenant records the authenticated tenant (admin) id.
func WithTenant(ctx context.Context, tenantID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, tenantContextKey, tenantID)
}

// Tenant returns the tenant id stored by WithTenant.
func Tenant(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	id, ok := ctx.Value(tenantContextKey).(string)
	return id, ok && id != ""
}

// WithActor records the id of the user acting on behalf of the tenant.
func WithActor(ctx context.Context, userID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, actorContextKey, userID)
}

// Actor returns the acting user id, or nil when the call is not attributed to a user.
func Actor(ctx context.Context) *string {
	if ctx == nil {
		return nil
	}
	id, ok := ctx.Value(actorContextKey).(string)
	if !ok || id == "" {
		return nil
	}
	return &id
}
