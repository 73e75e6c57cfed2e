package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	domain "github.com/m5zonk/api/internal/domain"
	"github.com/m5zonk/api/internal/platform/observability"
	"github.com/m5zonk/api/internal/repositories"
)

// MetricsServiceDeps bundles collaborators required to construct the metrics service.
type MetricsServiceDeps struct {
	Metrics repositories.MetricsRepository
	Orders  repositories.OrderRepository
	Logger  *zap.Logger
}

type metricsService struct {
	metrics repositories.MetricsRepository
	orders  repositories.OrderRepository
	logger  *zap.Logger
}

// NewMetricsService constructs the yearly and weekly aggregation reads.
func NewMetricsService(deps MetricsServiceDeps) (MetricsService, error) {
	if deps.Metrics == nil {
		return nil, errors.New("metrics service: metrics repository is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("metrics service: order repository is required")
	}
	return &metricsService{metrics: deps.Metrics, orders: deps.Orders, logger: deps.Logger}, nil
}

func (s *metricsService) GetYearlyMetrics(ctx context.Context, tenantID string, year int) (_ YearlyMetrics, err error) {
	ctx, span := observability.StartSpan(ctx, "metrics.yearly",
		attribute.String("tenant.id", tenantID),
		attribute.Int("year", year),
	)
	defer func() { observability.EndSpan(span, err) }()

	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return YearlyMetrics{}, invalidRequest("tenant id is required")
	}
	if year < 1 || year > 9998 {
		return YearlyMetrics{}, invalidRequest("year %d is out of range", year)
	}

	from, to := domain.YearMonthKeys(year)
	months, err := s.metrics.ListMonthly(ctx, tenantID, from, to)
	if err != nil {
		return YearlyMetrics{}, classifyError(serviceLogger(ctx, s.logger, tenantID), "metrics.yearly", err)
	}

	var sum totalsAccumulator
	for _, m := range months {
		sum.add(m.Revenue, m.COGS, m.Expenses, m.Profit, m.OrderCount)
	}
	if months == nil {
		months = []domain.MonthlyMetrics{}
	}
	return YearlyMetrics{Year: year, Totals: sum.totals(), Months: months}, nil
}

func (s *metricsService) GetWeeklyMetrics(ctx context.Context, tenantID string, year int, month int) (_ WeeklyMetrics, err error) {
	ctx, span := observability.StartSpan(ctx, "metrics.weekly",
		attribute.String("tenant.id", tenantID),
		attribute.Int("year", year),
		attribute.Int("month", month),
	)
	defer func() { observability.EndSpan(span, err) }()

	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return WeeklyMetrics{}, invalidRequest("tenant id is required")
	}
	if month < 1 || month > 12 || year < 1 || year > 9999 {
		return WeeklyMetrics{}, invalidRequest("month %04d-%02d is out of range", year, month)
	}

	key := fmt.Sprintf("%04d-%02d", year, month)
	start, end, err := domain.MonthRange(key)
	if err != nil {
		return WeeklyMetrics{}, invalidRequest("%v", err)
	}

	orders, err := s.orders.List(ctx, tenantID, repositories.OrderListFilter{
		CreatedAt: domain.RangeQuery[time.Time]{From: &start, To: &end},
		Order:     domain.SortAsc,
	})
	if err != nil {
		return WeeklyMetrics{}, classifyError(serviceLogger(ctx, s.logger, tenantID), "metrics.weekly", err)
	}

	buckets := make(map[string]*totalsAccumulator)
	for _, order := range orders {
		week := domain.ISOWeekKey(order.CreatedAt)
		acc, ok := buckets[week]
		if !ok {
			acc = &totalsAccumulator{}
			buckets[week] = acc
		}
		t := order.Totals
		acc.add(t.Revenue, t.COGS, t.Expenses, t.Profit, 1)
	}

	weeks := make([]WeeklyBucket, 0, len(buckets))
	for week, acc := range buckets {
		weeks = append(weeks, WeeklyBucket{Week: week, MetricsTotals: acc.totals()})
	}
	sort.Slice(weeks, func(i, j int) bool { return weeks[i].Week < weeks[j].Week })

	return WeeklyMetrics{Month: key, Weeks: weeks}, nil
}

// totalsAccumulator sums money in decimal so long sums do not drift.
type totalsAccumulator struct {
	revenue, cogs, expenses, profit decimal.Decimal
	count                           int64
}

func (a *totalsAccumulator) add(revenue, cogs, expenses, profit float64, count int64) {
	a.revenue = a.revenue.Add(decimal.NewFromFloat(revenue))
	a.cogs = a.cogs.Add(decimal.NewFromFloat(cogs))
	a.expenses = a.expenses.Add(decimal.NewFromFloat(expenses))
	a.profit = a.profit.Add(decimal.NewFromFloat(profit))
	a.count += count
}

func (a *totalsAccumulator) totals() MetricsTotals {
	return MetricsTotals{
		Revenue:    a.revenue.InexactFloat64(),
		COGS:       a.cogs.InexactFloat64(),
		Expenses:   a.expenses.InexactFloat64(),
		Profit:     a.profit.InexactFloat64(),
		OrderCount: a.count,
	}
}
