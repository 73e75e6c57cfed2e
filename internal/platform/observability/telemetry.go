package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/m5zonk/api/internal/services"

// StartSpan starts an internal span on the global tracer provider.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(instrumentationName).Start(ctx, name, trace.WithAttributes(attrs...))
}

// EndSpan records err on the span, if any, and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// EngineMetrics holds the counters emitted by the order engine. A nil *EngineMetrics is valid
// and records nothing.
type EngineMetrics struct {
	ordersCreated  metric.Int64Counter
	statusChanged  metric.Int64Counter
	stockConflicts metric.Int64Counter
}

// NewEngineMetrics registers the engine counters on meter, or on the global meter provider
// when meter is nil. Registration failures are logged and leave that counter disabled.
func NewEngineMetrics(meter metric.Meter, logger *zap.Logger) *EngineMetrics {
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(instrumentationName)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	m := &EngineMetrics{}
	var err error
	if m.ordersCreated, err = meter.Int64Counter("orders.created",
		metric.WithDescription("Orders committed by the order engine"),
		metric.WithUnit("{order}")); err != nil {
		logger.Warn("observability: unable to register orders.created", zap.Error(err))
		m.ordersCreated = nil
	}
	if m.statusChanged, err = meter.Int64Counter("orders.status_changed",
		metric.WithDescription("Order status transitions committed"),
		metric.WithUnit("{transition}")); err != nil {
		logger.Warn("observability: unable to register orders.status_changed", zap.Error(err))
		m.statusChanged = nil
	}
	if m.stockConflicts, err = meter.Int64Counter("stock.conflicts",
		metric.WithDescription("Stock decrements rejected for insufficient stock"),
		metric.WithUnit("{rejection}")); err != nil {
		logger.Warn("observability: unable to register stock.conflicts", zap.Error(err))
		m.stockConflicts = nil
	}
	return m
}

// OrderCreated counts one committed order.
func (m *EngineMetrics) OrderCreated(ctx context.Context, warehouseID string) {
	if m == nil || m.ordersCreated == nil {
		return
	}
	m.ordersCreated.Add(ctx, 1, metric.WithAttributes(attribute.String("warehouse", warehouseID)))
}

// StatusChanged counts one committed transition.
func (m *EngineMetrics) StatusChanged(ctx context.Context, from, to string) {
	if m == nil || m.statusChanged == nil {
		return
	}
	m.statusChanged.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", from),
		attribute.String("to", to),
	))
}

// StockConflict counts one rejected decrement.
func (m *EngineMetrics) StockConflict(ctx context.Context, op string) {
	if m == nil || m.stockConflicts == nil {
		return
	}
	m.stockConflicts.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
}
