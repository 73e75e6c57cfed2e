package services

import (
	"math"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/m5zonk/api/internal/domain"
)

// priceLines snapshots each requested line against the product read in the transaction.
// Overrides win over the product's current prices, including an explicit zero.
func priceLines(inputs []OrderLineInput, products map[string]domain.Product) ([]domain.OrderLine, error) {
	lines := make([]domain.OrderLine, 0, len(inputs))
	for i, in := range inputs {
		product, ok := products[in.ProductID]
		if !ok {
			return nil, notFound("product %s not found", in.ProductID)
		}

		sell, ok := resolvePrice(in.UnitSellPrice, product.SellPrice)
		if !ok {
			return nil, invalidRequest("lines[%d]: sell price of product %s is not a number", i, in.ProductID)
		}
		stock, ok := resolvePrice(in.UnitStockPrice, product.StockPrice)
		if !ok {
			return nil, invalidRequest("lines[%d]: stock price of product %s is not a number", i, in.ProductID)
		}

		lines = append(lines, domain.OrderLine{
			ProductID:      product.ID,
			IDCode:         product.IDCode,
			Name:           product.Name,
			ImageURL:       product.ImageURL,
			Qty:            in.Qty,
			UnitSellPrice:  sell,
			UnitStockPrice: stock,
		})
	}
	return lines, nil
}

func resolvePrice(override, current *float64) (float64, bool) {
	value := current
	if override != nil {
		value = override
	}
	if value == nil || math.IsNaN(*value) || math.IsInf(*value, 0) {
		return 0, false
	}
	return *value, true
}

// computeTotals derives the order totals with exact decimal arithmetic:
// expenses = shipping + extraLosses + packaging, profit = revenue - (cogs + expenses).
func computeTotals(lines []domain.OrderLine, shipping, extraLosses float64, packaging []domain.PackagingItem) domain.OrderTotals {
	revenue := decimal.Zero
	cogs := decimal.Zero
	for _, line := range lines {
		qty := decimal.NewFromInt(int64(line.Qty))
		revenue = revenue.Add(decimal.NewFromFloat(line.UnitSellPrice).Mul(qty))
		cogs = cogs.Add(decimal.NewFromFloat(line.UnitStockPrice).Mul(qty))
	}

	packagingCost := decimal.Zero
	for _, item := range packaging {
		packagingCost = packagingCost.Add(decimal.NewFromFloat(item.Price))
	}
	expenses := decimal.NewFromFloat(shipping).Add(decimal.NewFromFloat(extraLosses)).Add(packagingCost)
	profit := revenue.Sub(cogs.Add(expenses))

	profitPct := decimal.Zero
	if revenue.IsPositive() {
		profitPct = profit.Div(revenue)
	}

	return domain.OrderTotals{
		Revenue:   revenue.InexactFloat64(),
		COGS:      cogs.InexactFloat64(),
		Expenses:  expenses.InexactFloat64(),
		Profit:    profit.InexactFloat64(),
		ProfitPct: profitPct.InexactFloat64(),
	}
}

func packagingItems(inputs []PackagingItemInput) []domain.PackagingItem {
	if len(inputs) == 0 {
		return nil
	}
	items := make([]domain.PackagingItem, 0, len(inputs))
	for _, in := range inputs {
		items = append(items, domain.PackagingItem{Name: in.Name, Price: in.Price})
	}
	return items
}

var createdAtLayouts = []string{time.RFC3339Nano, "2006-01-02"}

// resolveCreatedAt parses a caller supplied order date or falls back to now.
func resolveCreatedAt(value string, now time.Time) (time.Time, error) {
	if value == "" {
		return now, nil
	}
	for _, layout := range createdAtLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, invalidRequest("createdAt %q is not a valid date", value)
}
