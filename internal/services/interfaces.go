package services

import (
	"context"
	"time"

	domain "github.com/m5zonk/api/internal/domain"
)

// ConfigService resolves tenant settings for callers outside a transaction.
type ConfigService interface {
	GetConfig(ctx context.Context, tenantID string) (domain.TenantConfig, error)
}

// OrderService is the order lifecycle engine plus the order read paths.
type OrderService interface {
	CreateOrder(ctx context.Context, cmd CreateOrderCommand) (domain.Order, error)
	UpdateOrderStatus(ctx context.Context, cmd UpdateOrderStatusCommand) (domain.Order, error)
	ListOrders(ctx context.Context, filter OrderListFilter) ([]domain.Order, error)
	GetOrder(ctx context.Context, tenantID, orderID string) (domain.Order, error)
}

// MetricsService aggregates the monthly rollups and order totals.
type MetricsService interface {
	GetYearlyMetrics(ctx context.Context, tenantID string, year int) (YearlyMetrics, error)
	GetWeeklyMetrics(ctx context.Context, tenantID string, year int, month int) (WeeklyMetrics, error)
}

// InventoryService applies manual stock corrections.
type InventoryService interface {
	AdjustStock(ctx context.Context, cmd AdjustStockCommand) (StockAdjustment, error)
}

// OrderLineInput is one requested line. Nil prices fall back to the product's current price.
type OrderLineInput struct {
	ProductID      string   `validate:"required"`
	Qty            int      `validate:"gt=0"`
	UnitSellPrice  *float64 `validate:"omitempty,finite,gte=0"`
	UnitStockPrice *float64 `validate:"omitempty,finite,gte=0"`
}

// PackagingItemInput is a packaging cost attached at creation.
type PackagingItemInput struct {
	Name  string  `validate:"max=200"`
	Price float64 `validate:"finite,gte=0"`
}

// CreateOrderCommand creates an order for TenantID. CreatedAt, when set, is an absolute
// instant (RFC 3339) or a UTC date (YYYY-MM-DD).
type CreateOrderCommand struct {
	TenantID       string               `validate:"required"`
	Lines          []OrderLineInput     `validate:"min=1,dive"`
	ShippingPrice  float64              `validate:"finite,gte=0"`
	ExtraLosses    float64              `validate:"finite,gte=0"`
	PackagingItems []PackagingItemInput `validate:"dive"`
	WarehouseID    string
	CreatedAt      string
}

// UpdateOrderStatusCommand moves an order to NewStatus. ActorID defaults to the actor
// carried by the context.
type UpdateOrderStatusCommand struct {
	TenantID       string             `validate:"required"`
	OrderID        string             `validate:"required"`
	NewStatus      domain.OrderStatus `validate:"required,oneof=OK Returned Canceled"`
	Notes          string
	ReverseMetrics bool
	RestockItems   bool
	AddedLosses    float64 `validate:"finite,gte=0"`
	ActorID        *string
}

// OrderListFilter narrows ListOrders. Month is YYYY-MM.
type OrderListFilter struct {
	TenantID    string `validate:"required"`
	Month       string
	WarehouseID string
}

// AdjustStockCommand applies a signed change to one stock counter. An empty WarehouseID
// targets the global counter.
type AdjustStockCommand struct {
	TenantID    string `validate:"required"`
	ProductID   string `validate:"required"`
	Change      int    `validate:"ne=0"`
	WarehouseID string
}

// StockAdjustment reports the counter after an adjustment. Tracked is false for infinite
// stock, in which case Quantity is meaningless.
type StockAdjustment struct {
	ProductID string
	Location  domain.StockLocation
	Quantity  int
	Tracked   bool
}

// MetricsTotals is the sum of a set of monthly rollups or order totals.
type MetricsTotals struct {
	Revenue    float64
	COGS       float64
	Expenses   float64
	Profit     float64
	OrderCount int64
}

// YearlyMetrics holds the month rows of a year, ascending, and their sum.
type YearlyMetrics struct {
	Year   int
	Totals MetricsTotals
	Months []domain.MonthlyMetrics
}

// WeeklyBucket sums the orders of one ISO week.
type WeeklyBucket struct {
	Week string
	MetricsTotals
}

// WeeklyMetrics holds the ISO-week buckets of one month, ascending by week.
type WeeklyMetrics struct {
	Month string
	Weeks []WeeklyBucket
}

const (
	// OrderEventCreated is published after an order commits.
	OrderEventCreated = "order.created"
	// OrderEventStatusChanged is published after a status transition commits.
	OrderEventStatusChanged = "order.status.changed"
)

// OrderEvent is the payload of an order domain event.
type OrderEvent struct {
	Type            string             `json:"type"`
	TenantID        string             `json:"tenantId"`
	OrderID         string             `json:"orderId"`
	WarehouseID     string             `json:"warehouseId,omitempty"`
	OldStatus       domain.OrderStatus `json:"oldStatus,omitempty"`
	NewStatus       domain.OrderStatus `json:"newStatus"`
	Totals          domain.OrderTotals `json:"totals"`
	ReversedMetrics bool               `json:"reversedMetrics,omitempty"`
	Restocked       bool               `json:"restocked,omitempty"`
	AddedLoss       float64            `json:"addedLoss,omitempty"`
	ActorID         *string            `json:"actorId,omitempty"`
	OccurredAt      time.Time          `json:"occurredAt"`
}

// OrderEventPublisher publishes order domain events for downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) (string, error)
}
