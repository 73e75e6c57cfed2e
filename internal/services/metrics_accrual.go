package services

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/m5zonk/api/internal/domain"
	"github.com/m5zonk/api/internal/repositories"
)

// accrualDelta is applied when an order starts counting towards its month.
func accrualDelta(totals domain.OrderTotals) domain.MetricsDelta {
	return domain.MetricsDelta{
		Revenue:    totals.Revenue,
		COGS:       totals.COGS,
		Expenses:   totals.Expenses,
		Profit:     totals.Profit,
		OrderCount: 1,
	}
}

// reversalDelta undoes an accrual. A loss booked at reversal time widens the expense
// reversal and narrows the profit reversal by the same amount.
func reversalDelta(totals domain.OrderTotals, addedLoss float64) domain.MetricsDelta {
	loss := decimal.NewFromFloat(addedLoss)
	return domain.MetricsDelta{
		Revenue:    -totals.Revenue,
		COGS:       -totals.COGS,
		Expenses:   decimal.NewFromFloat(totals.Expenses).Add(loss).Neg().InexactFloat64(),
		Profit:     decimal.NewFromFloat(totals.Profit).Sub(loss).Neg().InexactFloat64(),
		OrderCount: -1,
	}
}

// lossDelta books a loss against an order that keeps counting towards its month.
func lossDelta(addedLoss float64) domain.MetricsDelta {
	return domain.MetricsDelta{
		Expenses: addedLoss,
		Profit:   -addedLoss,
	}
}

// applyMetrics merges delta into the month of createdAt.
func applyMetrics(ctx context.Context, tx repositories.Tx, createdAt time.Time, delta domain.MetricsDelta) error {
	if delta.IsZero() {
		return nil
	}
	return tx.IncrementMetrics(ctx, domain.MonthKey(createdAt), delta)
}
