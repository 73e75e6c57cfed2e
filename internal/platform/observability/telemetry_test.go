package observability

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"

	"github.com/m5zonk/api/internal/platform/requestctx"
)

func TestEngineMetricsNilSafe(t *testing.T) {
	var m *EngineMetrics
	m.OrderCreated(context.Background(), "wh_1")
	m.StatusChanged(context.Background(), "OK", "Returned")
	m.StockConflict(context.Background(), "orders.create")
}

func TestEngineMetricsRecordsOnMeter(t *testing.T) {
	m := NewEngineMetrics(noop.NewMeterProvider().Meter("test"), zap.NewNop())
	if m.ordersCreated == nil || m.statusChanged == nil || m.stockConflicts == nil {
		t.Fatal("expected all counters registered")
	}
	m.OrderCreated(context.Background(), "wh_1")
	m.StockConflict(context.Background(), "orders.create")
}

func TestSpanHelpers(t *testing.T) {
	ctx, span := StartSpan(context.Background(), "orders.create")
	if ctx == nil || span == nil {
		t.Fatal("expected span")
	}
	EndSpan(span, errors.New("boom"))
}

func TestNewLoggerFallsBackToInfo(t *testing.T) {
	logger, err := newLogger(LoggerSettings{Level: "not-a-level"})
	if err != nil {
		t.Fatalf("newLogger returned error: %v", err)
	}
	if !logger.Core().Enabled(zap.InfoLevel) || logger.Core().Enabled(zap.DebugLevel) {
		t.Fatal("expected info level")
	}

	debug, err := newLogger(LoggerSettings{Level: "DEBUG", Format: "console"})
	if err != nil {
		t.Fatalf("newLogger returned error: %v", err)
	}
	if !debug.Core().Enabled(zap.DebugLevel) {
		t.Fatal("expected debug level")
	}
}

func TestFromContextAddsTenant(t *testing.T) {
	ctx := requestctx.WithTenant(WithLogger(context.Background(), zap.NewNop()), "adm_1")
	if FromContext(ctx) == nil {
		t.Fatal("expected logger")
	}
}
