package services

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/m5zonk/api/internal/domain"
	"github.com/m5zonk/api/internal/repositories"
)

// stockLedger accumulates stock changes for the products read in one transaction and
// writes each touched counter once. Several lines for the same product and location are
// checked against their combined quantity.
type stockLedger struct {
	products map[string]domain.Product
	entries  map[stockKey]*stockEntry
	order    []stockKey
	logger   *zap.Logger
}

type stockKey struct {
	productID string
	loc       domain.StockLocation
}

type stockEntry struct {
	name    string
	current int
	known   bool
	dirty   bool
}

func newStockLedger(products map[string]domain.Product, logger *zap.Logger) *stockLedger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &stockLedger{
		products: products,
		entries:  make(map[stockKey]*stockEntry),
		logger:   logger,
	}
}

// entry returns the counter for productID at loc, or nil when the counter is not tracked
// (infinite product, infinite per-warehouse entry or unknown product).
func (l *stockLedger) entry(productID string, loc domain.StockLocation) *stockEntry {
	product, ok := l.products[productID]
	if !ok || !product.IsFinite() {
		return nil
	}
	if loc.Kind == domain.StockPerWarehouse {
		if wh, ok := product.PerWarehouse[loc.WarehouseID]; ok && wh.QuantityType == domain.QuantityInfinite {
			return nil
		}
	}

	key := stockKey{productID: productID, loc: loc}
	if e, ok := l.entries[key]; ok {
		return e
	}
	e := &stockEntry{name: product.Name}
	if qty := product.QuantityAt(loc); qty != nil {
		e.current = *qty
		e.known = true
	}
	l.entries[key] = e
	l.order = append(l.order, key)
	return e
}

// Decrement consumes qty at the counter the warehouse resolves to. A missing value is an
// error and the counter never goes below zero.
func (l *stockLedger) Decrement(productID, warehouseID string, qty int) error {
	loc := domain.ResolveStockLocation(l.products[productID], warehouseID)
	e := l.entry(productID, loc)
	if e == nil {
		return nil
	}
	if !e.known {
		return repositories.NewStockError(repositories.StockErrorNotInitialised, productID, 0,
			fmt.Sprintf("stock not initialized for product %s", e.name))
	}
	if e.current-qty < 0 {
		return repositories.NewStockError(repositories.StockErrorInsufficient, productID, e.current,
			fmt.Sprintf("not enough stock for %s: available %d, requested %d", e.name, e.current, qty))
	}
	e.current -= qty
	e.dirty = true
	return nil
}

// Increment returns qty to the counter. A missing value counts as zero.
func (l *stockLedger) Increment(productID, warehouseID string, qty int) {
	loc := domain.ResolveStockLocation(l.products[productID], warehouseID)
	e := l.entry(productID, loc)
	if e == nil {
		return
	}
	e.current += qty
	if e.current < 0 {
		e.current = 0
	}
	e.known = true
	e.dirty = true
}

// Compensate removes qty that an earlier manual restock put back. It clamps at zero with
// a warning instead of failing.
func (l *stockLedger) Compensate(productID, warehouseID string, qty int) {
	loc := domain.ResolveStockLocation(l.products[productID], warehouseID)
	e := l.entry(productID, loc)
	if e == nil {
		return
	}
	next := e.current - qty
	if next < 0 {
		l.logger.Warn("stock de-stock clamped at zero",
			zap.String("productId", productID),
			zap.String("location", loc.String()),
			zap.Int("available", e.current),
			zap.Int("requested", qty),
		)
		next = 0
	}
	e.current = next
	e.known = true
	e.dirty = true
}

// Adjust applies a signed manual change at an explicit location. A missing value counts as
// zero; the result must stay non-negative.
func (l *stockLedger) Adjust(productID string, loc domain.StockLocation, change int) (int, bool, error) {
	e := l.entry(productID, loc)
	if e == nil {
		return 0, false, nil
	}
	if change > 0 && e.current > math.MaxInt-change {
		return 0, true, invalidRequest("stock change %d overflows %s at %s (current %d)", change, productID, loc, e.current)
	}
	next := e.current + change
	if next < 0 {
		return 0, true, repositories.NewStockError(repositories.StockErrorInsufficient, productID, e.current,
			fmt.Sprintf("not enough stock for %s at %s: available %d", e.name, loc, e.current))
	}
	e.current = next
	e.known = true
	e.dirty = true
	return next, true, nil
}

// Apply writes every touched counter through tx.
func (l *stockLedger) Apply(ctx context.Context, tx repositories.Tx) error {
	for _, key := range l.order {
		e := l.entries[key]
		if !e.dirty {
			continue
		}
		if err := tx.SetStock(ctx, key.productID, key.loc, e.current); err != nil {
			return err
		}
	}
	return nil
}
