// Package memory is an in-process implementation of the repository contracts. Transactions
// are optimistic: reads record document versions, writes are buffered, and commit validates
// the read set before applying, retrying the body when a concurrent commit got there first.
package memory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	domain "github.com/m5zonk/api/internal/domain"
	"github.com/m5zonk/api/internal/repositories"
)

const defaultMaxAttempts = 5

// Store holds every tenant's documents.
type Store struct {
	mu          sync.Mutex
	tenants     map[string]*tenantState
	maxAttempts int
	// beforeCommit runs after a transaction body and before validation. Tests use it to
	// interleave commits deterministically.
	beforeCommit func(tenantID string, attempt int)
}

type tenantState struct {
	config   *domain.TenantConfig
	products map[string]domain.Product
	orders   map[string]domain.Order
	metrics  map[string]domain.MonthlyMetrics
	versions map[string]uint64
}

// Option customises a Store.
type Option func(*Store)

// WithMaxAttempts bounds how many times a transaction body runs before giving up.
func WithMaxAttempts(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// WithBeforeCommit installs a hook invoked between a transaction body and its commit.
func WithBeforeCommit(hook func(tenantID string, attempt int)) Option {
	return func(s *Store) {
		s.beforeCommit = hook
	}
}

// NewStore constructs an empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		tenants:     make(map[string]*tenantState),
		maxAttempts: defaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ repositories.Registry = (*Store)(nil)

// Close is a no-op.
func (s *Store) Close(context.Context) error { return nil }

// Orders returns the order reader.
func (s *Store) Orders() repositories.OrderRepository { return orderRepository{store: s} }

// Metrics returns the monthly metrics reader.
func (s *Store) Metrics() repositories.MetricsRepository { return metricsRepository{store: s} }

// Configs returns the tenant config reader.
func (s *Store) Configs() repositories.ConfigRepository { return configRepository{store: s} }

// tenant returns the state for id, creating it. Callers hold s.mu.
func (s *Store) tenant(id string) *tenantState {
	ts, ok := s.tenants[id]
	if !ok {
		ts = &tenantState{
			products: make(map[string]domain.Product),
			orders:   make(map[string]domain.Order),
			metrics:  make(map[string]domain.MonthlyMetrics),
			versions: make(map[string]uint64),
		}
		s.tenants[id] = ts
	}
	return ts
}

func productKey(id string) string { return "products/" + id }
func orderKey(id string) string   { return "orders/" + id }

const configKey = "adminSettings/config"

// PutConfig stores the tenant settings document.
func (s *Store) PutConfig(tenantID string, cfg domain.TenantConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts := s.tenant(tenantID)
	cfg.TenantID = tenantID
	ts.config = &cfg
	ts.versions[configKey]++
}

// PutProduct stores a product, keeping warehouseIds equal to the perWarehouse keys.
func (s *Store) PutProduct(tenantID string, product domain.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts := s.tenant(tenantID)
	product = cloneProduct(product)
	product.WarehouseIDs = warehouseIDs(product.PerWarehouse)
	ts.products[product.ID] = product
	ts.versions[productKey(product.ID)]++
}

// PutOrder stores an order as-is.
func (s *Store) PutOrder(tenantID string, order domain.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts := s.tenant(tenantID)
	ts.orders[order.ID] = cloneOrder(order)
	ts.versions[orderKey(order.ID)]++
}

// DeleteProduct removes a product. Orders keep referencing it by id.
func (s *Store) DeleteProduct(tenantID, productID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts := s.tenant(tenantID)
	delete(ts.products, productID)
	ts.versions[productKey(productID)]++
}

// Product returns a copy of the stored product.
func (s *Store) Product(tenantID, productID string) (domain.Product, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.tenant(tenantID).products[productID]
	if !ok {
		return domain.Product{}, false
	}
	return cloneProduct(p), true
}

// MonthlyMetrics returns the stored rollup for month, zero when absent.
func (s *Store) MonthlyMetrics(tenantID, month string) domain.MonthlyMetrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.tenant(tenantID).metrics[month]
	if !ok {
		return domain.MonthlyMetrics{Month: month}
	}
	return m
}

// RunInTx runs fn with optimistic retries. The body is re-run from scratch when another
// commit changed a document it read.
func (s *Store) RunInTx(ctx context.Context, tenantID string, fn repositories.TxFunc) error {
	const op = "memory.RunInTx"
	if fn == nil {
		return usageError(op, fmt.Errorf("transaction function is required"))
	}

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		t := newTx(s, tenantID)
		if err := fn(ctx, t); err != nil {
			return err
		}
		if s.beforeCommit != nil {
			s.beforeCommit(tenantID, attempt)
		}

		retry, err := t.commit()
		if err != nil {
			return err
		}
		if !retry {
			return nil
		}
	}
	return unavailableError(op, fmt.Errorf("%w after %d attempts", errTxAborted, s.maxAttempts))
}

type orderRepository struct{ store *Store }

func (r orderRepository) FindByID(_ context.Context, tenantID, orderID string) (domain.Order, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	order, ok := r.store.tenant(tenantID).orders[orderID]
	if !ok {
		return domain.Order{}, notFoundError("memory.orders.find", "order %s", orderID)
	}
	return cloneOrder(order), nil
}

func (r orderRepository) List(_ context.Context, tenantID string, filter repositories.OrderListFilter) ([]domain.Order, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var out []domain.Order
	for _, order := range r.store.tenant(tenantID).orders {
		if filter.WarehouseID != "" && order.WarehouseID != filter.WarehouseID {
			continue
		}
		if !inRange(order.CreatedAt, filter.CreatedAt) {
			continue
		}
		out = append(out, cloneOrder(order))
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].CreatedAt, out[j].CreatedAt
		if a.Equal(b) {
			if filter.Order == domain.SortDesc {
				return out[i].ID > out[j].ID
			}
			return out[i].ID < out[j].ID
		}
		if filter.Order == domain.SortDesc {
			return a.After(b)
		}
		return a.Before(b)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func inRange(t time.Time, r domain.RangeQuery[time.Time]) bool {
	if r.From != nil && t.Before(*r.From) {
		return false
	}
	if r.To != nil && !t.Before(*r.To) {
		return false
	}
	return true
}

type metricsRepository struct{ store *Store }

func (r metricsRepository) ListMonthly(_ context.Context, tenantID, fromMonth, toMonth string) ([]domain.MonthlyMetrics, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	metrics := r.store.tenant(tenantID).metrics
	keys := slices.Sorted(maps.Keys(metrics))
	out := make([]domain.MonthlyMetrics, 0, len(keys))
	for _, key := range keys {
		if key >= fromMonth && key < toMonth {
			out = append(out, metrics[key])
		}
	}
	return out, nil
}

type configRepository struct{ store *Store }

func (r configRepository) Get(_ context.Context, tenantID string) (domain.TenantConfig, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	cfg := r.store.tenant(tenantID).config
	if cfg == nil {
		return domain.TenantConfig{}, notFoundError("memory.configs.get", "config for tenant %s", tenantID)
	}
	return *cfg, nil
}

func warehouseIDs(perWarehouse map[string]domain.WarehouseStock) []string {
	if len(perWarehouse) == 0 {
		return nil
	}
	return slices.Sorted(maps.Keys(perWarehouse))
}

func cloneInt(v *int) *int {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneProduct(p domain.Product) domain.Product {
	p.StockPrice = cloneFloat(p.StockPrice)
	p.SellPrice = cloneFloat(p.SellPrice)
	p.Quantity = cloneInt(p.Quantity)
	if p.PerWarehouse != nil {
		per := make(map[string]domain.WarehouseStock, len(p.PerWarehouse))
		for id, entry := range p.PerWarehouse {
			entry.Quantity = cloneInt(entry.Quantity)
			per[id] = entry
		}
		p.PerWarehouse = per
	}
	p.WarehouseIDs = slices.Clone(p.WarehouseIDs)
	return p
}

func cloneOrder(o domain.Order) domain.Order {
	o.Lines = slices.Clone(o.Lines)
	o.PackagingItems = slices.Clone(o.PackagingItems)
	o.StatusHistory = slices.Clone(o.StatusHistory)
	o.ExtraLossesHistory = slices.Clone(o.ExtraLossesHistory)
	return o
}
