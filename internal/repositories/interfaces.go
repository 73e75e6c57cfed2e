package repositories

import (
	"context"
	"time"

	domain "github.com/m5zonk/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Orders() OrderRepository
	Metrics() MetricsRepository
	Configs() ConfigRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork runs fn inside one tenant-scoped transaction. The function may be invoked
// more than once when the store retries after a conflicting commit, so it must not
// carry side effects outside of tx.
type UnitOfWork interface {
	RunInTx(ctx context.Context, tenantID string, fn TxFunc) error
}

// TxFunc is the body of a transaction.
type TxFunc func(ctx context.Context, tx Tx) error

// Tx is a transaction bound to a single tenant. Every read must happen before the
// first write; implementations reject reads issued after a write.
type Tx interface {
	TenantConfig(ctx context.Context) (domain.TenantConfig, error)
	// Products fetches all ids in one batched read. Duplicate ids are read once. Missing
	// products are absent from the result; callers decide whether that is an error.
	Products(ctx context.Context, ids []string) (map[string]domain.Product, error)
	Order(ctx context.Context, orderID string) (domain.Order, error)

	InsertOrder(ctx context.Context, order domain.Order) error
	// SetStock writes an absolute quantity at loc. The product must have been read in the
	// same transaction. A per-warehouse entry missing from that read is created as finite
	// and its id added to warehouseIds.
	SetStock(ctx context.Context, productID string, loc domain.StockLocation, qty int) error
	// IncrementMetrics merges delta into the monthly document using commutative increments.
	IncrementMetrics(ctx context.Context, month string, delta domain.MetricsDelta) error
	// AppendOrderStatus sets the current status and appends to the history logs without
	// rewriting existing entries.
	AppendOrderStatus(ctx context.Context, orderID string, change StatusChange) error
}

// StatusChange is the append-only mutation applied to an order on a status transition.
type StatusChange struct {
	Status  domain.OrderStatus
	History domain.StatusHistoryEntry
	Loss    *domain.ExtraLossEntry
}

// OrderListFilter narrows order listings. CreatedAt is half-open: From inclusive, To exclusive.
// A zero Limit returns every match.
type OrderListFilter struct {
	WarehouseID string
	CreatedAt   domain.RangeQuery[time.Time]
	Limit       int
	Order       domain.SortOrder
}

// OrderRepository reads orders outside of a transaction.
type OrderRepository interface {
	FindByID(ctx context.Context, tenantID, orderID string) (domain.Order, error)
	List(ctx context.Context, tenantID string, filter OrderListFilter) ([]domain.Order, error)
}

// MetricsRepository reads monthly rollups.
type MetricsRepository interface {
	// ListMonthly returns documents whose month key lies in [fromMonth, toMonth), ascending.
	ListMonthly(ctx context.Context, tenantID, fromMonth, toMonth string) ([]domain.MonthlyMetrics, error)
}

// ConfigRepository resolves the tenant settings document.
type ConfigRepository interface {
	Get(ctx context.Context, tenantID string) (domain.TenantConfig, error)
}
