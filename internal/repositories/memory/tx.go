package memory

import (
	"context"
	"fmt"

	domain "github.com/m5zonk/api/internal/domain"
	"github.com/m5zonk/api/internal/repositories"
)

type mutation struct {
	// key is bumped on commit; empty for commutative writes.
	key          string
	mustNotExist bool
	apply        func(ts *tenantState)
}

type tx struct {
	store    *Store
	tenantID string

	reads    map[string]uint64
	products map[string]domain.Product
	orders   map[string]domain.Order

	writes []mutation
}

var _ repositories.Tx = (*tx)(nil)

func newTx(store *Store, tenantID string) *tx {
	return &tx{
		store:    store,
		tenantID: tenantID,
		reads:    make(map[string]uint64),
		products: make(map[string]domain.Product),
		orders:   make(map[string]domain.Order),
	}
}

func (t *tx) beginRead(op string) error {
	if len(t.writes) > 0 {
		return usageError(op, errReadAfterWrite)
	}
	return nil
}

func (t *tx) TenantConfig(_ context.Context) (domain.TenantConfig, error) {
	const op = "memory.tx.config"
	if err := t.beginRead(op); err != nil {
		return domain.TenantConfig{}, err
	}

	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	ts := t.store.tenant(t.tenantID)
	t.reads[configKey] = ts.versions[configKey]
	if ts.config == nil {
		return domain.TenantConfig{}, notFoundError(op, "config for tenant %s", t.tenantID)
	}
	return *ts.config, nil
}

func (t *tx) Products(_ context.Context, ids []string) (map[string]domain.Product, error) {
	const op = "memory.tx.products"
	if err := t.beginRead(op); err != nil {
		return nil, err
	}

	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	ts := t.store.tenant(t.tenantID)

	out := make(map[string]domain.Product, len(ids))
	for _, id := range ids {
		key := productKey(id)
		t.reads[key] = ts.versions[key]
		product, ok := ts.products[id]
		if !ok {
			continue
		}
		t.products[id] = cloneProduct(product)
		out[id] = cloneProduct(product)
	}
	return out, nil
}

func (t *tx) Order(_ context.Context, orderID string) (domain.Order, error) {
	const op = "memory.tx.order"
	if err := t.beginRead(op); err != nil {
		return domain.Order{}, err
	}

	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	ts := t.store.tenant(t.tenantID)
	key := orderKey(orderID)
	t.reads[key] = ts.versions[key]
	order, ok := ts.orders[orderID]
	if !ok {
		return domain.Order{}, notFoundError(op, "order %s", orderID)
	}
	t.orders[orderID] = order
	return cloneOrder(order), nil
}

func (t *tx) InsertOrder(_ context.Context, order domain.Order) error {
	order = cloneOrder(order)
	t.writes = append(t.writes, mutation{
		key:          orderKey(order.ID),
		mustNotExist: true,
		apply: func(ts *tenantState) {
			ts.orders[order.ID] = order
		},
	})
	return nil
}

func (t *tx) SetStock(_ context.Context, productID string, loc domain.StockLocation, qty int) error {
	if _, ok := t.products[productID]; !ok {
		return usageError("memory.tx.setStock", fmt.Errorf("product %s: %w", productID, errNotRead))
	}
	t.writes = append(t.writes, mutation{
		key: productKey(productID),
		apply: func(ts *tenantState) {
			product := ts.products[productID]
			value := qty
			if loc.Kind == domain.StockPerWarehouse {
				if product.PerWarehouse == nil {
					product.PerWarehouse = make(map[string]domain.WarehouseStock)
				}
				entry, ok := product.PerWarehouse[loc.WarehouseID]
				if !ok {
					entry.QuantityType = domain.QuantityFinite
				}
				entry.Quantity = &value
				product.PerWarehouse[loc.WarehouseID] = entry
				product.WarehouseIDs = warehouseIDs(product.PerWarehouse)
			} else {
				product.Quantity = &value
			}
			ts.products[productID] = product
		},
	})
	return nil
}

func (t *tx) IncrementMetrics(_ context.Context, month string, delta domain.MetricsDelta) error {
	t.writes = append(t.writes, mutation{
		apply: func(ts *tenantState) {
			m := ts.metrics[month]
			m.Month = month
			ts.metrics[month] = m.Add(domain.MonthlyMetrics{
				Revenue:    delta.Revenue,
				COGS:       delta.COGS,
				Expenses:   delta.Expenses,
				Profit:     delta.Profit,
				OrderCount: delta.OrderCount,
			})
		},
	})
	return nil
}

func (t *tx) AppendOrderStatus(_ context.Context, orderID string, change repositories.StatusChange) error {
	if _, ok := t.orders[orderID]; !ok {
		return usageError("memory.tx.appendOrderStatus", fmt.Errorf("order %s: %w", orderID, errNotRead))
	}
	t.writes = append(t.writes, mutation{
		key: orderKey(orderID),
		apply: func(ts *tenantState) {
			order := cloneOrder(ts.orders[orderID])
			order.Status = change.Status
			order.StatusHistory = append(order.StatusHistory, change.History)
			if change.Loss != nil {
				order.ExtraLossesHistory = append(order.ExtraLossesHistory, *change.Loss)
			}
			ts.orders[orderID] = order
		},
	})
	return nil
}

// commit validates the read set and applies the buffered writes atomically. retry is true
// when a concurrent commit invalidated a read.
func (t *tx) commit() (retry bool, err error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	ts := t.store.tenant(t.tenantID)

	for key, version := range t.reads {
		if ts.versions[key] != version {
			return true, nil
		}
	}
	for _, w := range t.writes {
		if w.mustNotExist && ts.versions[w.key] != 0 {
			return false, conflictError("memory.tx.commit", fmt.Errorf("%s %w", w.key, errAlreadyExists))
		}
	}
	for _, w := range t.writes {
		w.apply(ts)
		if w.key != "" {
			ts.versions[w.key]++
		}
	}
	return false, nil
}
