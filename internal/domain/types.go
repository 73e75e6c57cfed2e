package domain

import (
	"time"
)

// SortOrder indicates ascending or descending ordering for list queries.
type SortOrder string

const (
	// SortAsc sorts results in ascending order.
	SortAsc SortOrder = "asc"
	// SortDesc sorts results in descending order.
	SortDesc SortOrder = "desc"
)

// RangeQuery represents half-open range filters for numeric or timestamp fields.
type RangeQuery[T comparable] struct {
	From *T
	To   *T
}

// IDPolicy controls generated and user supplied identifier lengths.
type IDPolicy struct {
	DefaultProductIDLen int
	ProductIDMinLen     int
	OrderIDMinLen       int
}

// TenantConfig is the per-tenant settings document resolved by the config provider.
type TenantConfig struct {
	TenantID           string
	MaxProducts        int
	MaxOrders          int
	MaxWarehouses      int
	Currency           string
	DefaultWarehouseID string
	IDPolicy           IDPolicy
}

// Warehouse is a stock location owned by a tenant.
type Warehouse struct {
	ID        string
	Name      string
	Active    bool
	CreatedAt time.Time
}

// QuantityType distinguishes tracked stock from unlimited availability.
type QuantityType string

const (
	// QuantityFinite tracks a counter that never drops below zero.
	QuantityFinite QuantityType = "finite"
	// QuantityInfinite means the product is always available.
	QuantityInfinite QuantityType = "infinite"
)

// WarehouseStock is the per-warehouse stock entry of a product.
type WarehouseStock struct {
	QuantityType QuantityType
	Quantity     *int
}

// GroupingMode controls how products are grouped in listings.
type GroupingMode string

const (
	GroupingAuto   GroupingMode = "auto"
	GroupingManual GroupingMode = "manual"
)

// Grouping captures how a product is grouped with similar products.
type Grouping struct {
	Mode     GroupingMode
	GroupKey string
}

// Product is a sellable item with global and per-warehouse stock counters.
// Prices are nil when the stored value is missing or not numeric.
type Product struct {
	ID           string
	IDCode       string
	Name         string
	ImageURL     string
	StockPrice   *float64
	SellPrice    *float64
	QuantityType QuantityType
	Quantity     *int
	PerWarehouse map[string]WarehouseStock
	WarehouseIDs []string
	Grouping     Grouping
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IsFinite reports whether stock is tracked for the product.
func (p Product) IsFinite() bool {
	return p.QuantityType != QuantityInfinite
}

// OrderStatus enumerates valid lifecycle states for orders.
type OrderStatus string

const (
	// OrderStatusOK is the anchor state: the order counts towards stock and metrics.
	OrderStatusOK OrderStatus = "OK"
	// OrderStatusReturned indicates the goods came back.
	OrderStatusReturned OrderStatus = "Returned"
	// OrderStatusCanceled indicates the order was called off.
	OrderStatusCanceled OrderStatus = "Canceled"
)

// OrDefault returns s, or OrderStatusOK when s is empty. Orders stored without a status
// field are in their initial state.
func (s OrderStatus) OrDefault() OrderStatus {
	if s == "" {
		return OrderStatusOK
	}
	return s
}

// Valid reports whether the status is one of the known lifecycle states.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusOK, OrderStatusReturned, OrderStatusCanceled:
		return true
	}
	return false
}

// OrderLine is the immutable snapshot of a product taken when the order was created.
type OrderLine struct {
	ProductID      string
	IDCode         string
	Name           string
	ImageURL       string
	Qty            int
	UnitSellPrice  float64
	UnitStockPrice float64
}

// PackagingItem is a packaging cost attached to an order.
type PackagingItem struct {
	Name  string
	Price float64
}

// OrderTotals are the financial results of an order.
// Profit = Revenue - (COGS + Expenses).
type OrderTotals struct {
	Revenue   float64
	COGS      float64
	Expenses  float64
	Profit    float64
	ProfitPct float64
}

// StatusHistoryEntry is one immutable record in an order's status log.
// The creation entry has an empty OldStatus.
type StatusHistoryEntry struct {
	ID              string
	Timestamp       time.Time
	OldStatus       OrderStatus
	NewStatus       OrderStatus
	Notes           string
	UserID          *string
	ReversedMetrics bool
	Restocked       bool
	AddedLoss       float64
}

// ExtraLossEntry records a loss booked against an order after creation.
type ExtraLossEntry struct {
	ID        string
	Timestamp time.Time
	Amount    float64
	Reason    string
	UserID    *string
}

// Order is a tenant order with its line snapshot, totals and audit logs.
type Order struct {
	ID                 string
	CreatedAt          time.Time
	WarehouseID        string
	Lines              []OrderLine
	ShippingPrice      float64
	ExtraLosses        float64
	PackagingItems     []PackagingItem
	Totals             OrderTotals
	Status             OrderStatus
	StatusHistory      []StatusHistoryEntry
	ExtraLossesHistory []ExtraLossEntry
}

// CurrentStatus returns the order status, treating a missing status as OK.
func (o Order) CurrentStatus() OrderStatus {
	return o.Status.OrDefault()
}

// LastDepartureFromOK returns the most recent history entry that moved the order out of OK.
func (o Order) LastDepartureFromOK() (StatusHistoryEntry, bool) {
	for i := len(o.StatusHistory) - 1; i >= 0; i-- {
		entry := o.StatusHistory[i]
		if entry.OldStatus.OrDefault() == OrderStatusOK && entry.NewStatus.OrDefault() != OrderStatusOK {
			return entry, true
		}
	}
	return StatusHistoryEntry{}, false
}

// MetricsCounted reports whether the order's totals are currently included in its month's
// metrics, replaying the reversals and re-accruals recorded in the status log.
func (o Order) MetricsCounted() bool {
	counted := true
	for _, entry := range o.StatusHistory {
		if !entry.ReversedMetrics {
			continue
		}
		from, to := entry.OldStatus.OrDefault(), entry.NewStatus.OrDefault()
		switch {
		case from == OrderStatusOK && to != OrderStatusOK:
			counted = false
		case from != OrderStatusOK && to == OrderStatusOK:
			counted = true
		}
	}
	return counted
}

// MonthlyMetrics is the additive financial rollup for one calendar month.
type MonthlyMetrics struct {
	Month      string
	Revenue    float64
	COGS       float64
	Expenses   float64
	Profit     float64
	OrderCount int64
}

// Add returns the field-wise sum of m and other; Month is kept from m.
func (m MonthlyMetrics) Add(other MonthlyMetrics) MonthlyMetrics {
	m.Revenue += other.Revenue
	m.COGS += other.COGS
	m.Expenses += other.Expenses
	m.Profit += other.Profit
	m.OrderCount += other.OrderCount
	return m
}

// MetricsDelta is a signed increment applied to a monthly metrics document.
type MetricsDelta struct {
	Revenue    float64
	COGS       float64
	Expenses   float64
	Profit     float64
	OrderCount int64
}

// IsZero reports whether applying the delta would change nothing.
func (d MetricsDelta) IsZero() bool {
	return d == MetricsDelta{}
}
