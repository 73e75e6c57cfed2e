package firestore

import (
	"math"
	"sort"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/m5zonk/api/internal/domain"
)

const (
	productsCollection = "products"
	ordersCollection   = "orders"
	metricsCollection  = "metricsMonthly"
	settingsCollection = "adminSettings"
	settingsConfigID   = "config"
)

// Products are written by the catalogue tooling with loosely typed numbers, so they are
// decoded from the raw map rather than through struct tags.
func decodeProduct(snap *firestore.DocumentSnapshot) (domain.Product, error) {
	data := snap.Data()
	product := domain.Product{
		ID:           snap.Ref.ID,
		IDCode:       stringField(data, "idCode"),
		Name:         stringField(data, "name"),
		ImageURL:     stringField(data, "imageUrl"),
		StockPrice:   floatField(data["stockPrice"]),
		SellPrice:    floatField(data["sellPrice"]),
		QuantityType: quantityType(data["quantityType"]),
		Quantity:     intField(data["quantity"]),
		Active:       boolField(data, "active", true),
		CreatedAt:    timeField(data, "createdAt"),
		UpdatedAt:    timeField(data, "updatedAt"),
	}

	if raw, ok := data["perWarehouse"].(map[string]any); ok && len(raw) > 0 {
		product.PerWarehouse = make(map[string]domain.WarehouseStock, len(raw))
		for id, value := range raw {
			entry, _ := value.(map[string]any)
			product.PerWarehouse[id] = domain.WarehouseStock{
				QuantityType: quantityType(entry["quantityType"]),
				Quantity:     intField(entry["quantity"]),
			}
		}
	}
	product.WarehouseIDs = stringSlice(data["warehouseIds"])

	if grouping, ok := data["grouping"].(map[string]any); ok {
		product.Grouping = domain.Grouping{
			Mode:     domain.GroupingMode(stringField(grouping, "mode")),
			GroupKey: stringField(grouping, "groupKey"),
		}
	}
	return product, nil
}

func decodeConfig(snap *firestore.DocumentSnapshot) (domain.TenantConfig, error) {
	data := snap.Data()
	cfg := domain.TenantConfig{
		MaxProducts:        intValue(data["maxProducts"]),
		MaxOrders:          intValue(data["maxOrders"]),
		MaxWarehouses:      intValue(data["maxWarehouses"]),
		Currency:           stringField(data, "currency"),
		DefaultWarehouseID: stringField(data, "defaultWarehouseId"),
	}
	if policy, ok := data["idPolicy"].(map[string]any); ok {
		cfg.IDPolicy = domain.IDPolicy{
			DefaultProductIDLen: intValue(policy["defaultProductIdLen"]),
			ProductIDMinLen:     intValue(policy["productIdMinLen"]),
			OrderIDMinLen:       intValue(policy["orderIdMinLen"]),
		}
	}
	return cfg, nil
}

type orderLineDocument struct {
	ProductID      string  `firestore:"productId"`
	IDCode         string  `firestore:"idCode"`
	Name           string  `firestore:"name"`
	ImageURL       string  `firestore:"imageUrl,omitempty"`
	Qty            int     `firestore:"qty"`
	UnitSellPrice  float64 `firestore:"unitSellPrice"`
	UnitStockPrice float64 `firestore:"unitStockPrice"`
}

type packagingItemDocument struct {
	Name  string  `firestore:"name"`
	Price float64 `firestore:"price"`
}

type totalsDocument struct {
	Revenue   float64 `firestore:"revenue"`
	COGS      float64 `firestore:"cogs"`
	Expenses  float64 `firestore:"expenses"`
	Profit    float64 `firestore:"profit"`
	ProfitPct float64 `firestore:"profitPct"`
}

type statusHistoryDocument struct {
	ID              string    `firestore:"id"`
	Timestamp       time.Time `firestore:"timestamp"`
	OldStatus       string    `firestore:"oldStatus,omitempty"`
	NewStatus       string    `firestore:"status"`
	Notes           string    `firestore:"notes"`
	UserID          *string   `firestore:"userId"`
	ReversedMetrics bool      `firestore:"reversedMetrics"`
	Restocked       bool      `firestore:"restocked"`
	AddedLoss       float64   `firestore:"addedLoss"`
}

type extraLossDocument struct {
	ID        string    `firestore:"id"`
	Timestamp time.Time `firestore:"timestamp"`
	Amount    float64   `firestore:"amount"`
	Reason    string    `firestore:"reason"`
	UserID    *string   `firestore:"userId"`
}

type orderDocument struct {
	CreatedAt          time.Time               `firestore:"createdAt"`
	WarehouseID        string                  `firestore:"warehouseId"`
	Lines              []orderLineDocument     `firestore:"lines"`
	ShippingPrice      float64                 `firestore:"shippingPrice"`
	ExtraLosses        float64                 `firestore:"extraLosses"`
	PackagingItems     []packagingItemDocument `firestore:"packagingItems"`
	Totals             totalsDocument          `firestore:"totals"`
	Status             string                  `firestore:"status"`
	StatusHistory      []statusHistoryDocument `firestore:"statusHistory"`
	ExtraLossesHistory []extraLossDocument     `firestore:"extraLossesHistory"`
}

func newOrderDocument(order domain.Order) orderDocument {
	doc := orderDocument{
		CreatedAt:     order.CreatedAt.UTC(),
		WarehouseID:   order.WarehouseID,
		ShippingPrice: order.ShippingPrice,
		ExtraLosses:   order.ExtraLosses,
		Totals: totalsDocument{
			Revenue:   order.Totals.Revenue,
			COGS:      order.Totals.COGS,
			Expenses:  order.Totals.Expenses,
			Profit:    order.Totals.Profit,
			ProfitPct: order.Totals.ProfitPct,
		},
		Status:             string(order.Status),
		Lines:              make([]orderLineDocument, 0, len(order.Lines)),
		PackagingItems:     make([]packagingItemDocument, 0, len(order.PackagingItems)),
		StatusHistory:      make([]statusHistoryDocument, 0, len(order.StatusHistory)),
		ExtraLossesHistory: make([]extraLossDocument, 0, len(order.ExtraLossesHistory)),
	}
	for _, line := range order.Lines {
		doc.Lines = append(doc.Lines, orderLineDocument(line))
	}
	for _, item := range order.PackagingItems {
		doc.PackagingItems = append(doc.PackagingItems, packagingItemDocument(item))
	}
	for _, entry := range order.StatusHistory {
		doc.StatusHistory = append(doc.StatusHistory, newStatusHistoryDocument(entry))
	}
	for _, loss := range order.ExtraLossesHistory {
		doc.ExtraLossesHistory = append(doc.ExtraLossesHistory, newExtraLossDocument(loss))
	}
	return doc
}

func newStatusHistoryDocument(entry domain.StatusHistoryEntry) statusHistoryDocument {
	return statusHistoryDocument{
		ID:              entry.ID,
		Timestamp:       entry.Timestamp.UTC(),
		OldStatus:       string(entry.OldStatus),
		NewStatus:       string(entry.NewStatus),
		Notes:           entry.Notes,
		UserID:          entry.UserID,
		ReversedMetrics: entry.ReversedMetrics,
		Restocked:       entry.Restocked,
		AddedLoss:       entry.AddedLoss,
	}
}

func newExtraLossDocument(loss domain.ExtraLossEntry) extraLossDocument {
	return extraLossDocument{
		ID:        loss.ID,
		Timestamp: loss.Timestamp.UTC(),
		Amount:    loss.Amount,
		Reason:    loss.Reason,
		UserID:    loss.UserID,
	}
}

func (d orderDocument) toDomain(id string) domain.Order {
	order := domain.Order{
		ID:            id,
		CreatedAt:     d.CreatedAt.UTC(),
		WarehouseID:   d.WarehouseID,
		ShippingPrice: d.ShippingPrice,
		ExtraLosses:   d.ExtraLosses,
		Totals: domain.OrderTotals{
			Revenue:   d.Totals.Revenue,
			COGS:      d.Totals.COGS,
			Expenses:  d.Totals.Expenses,
			Profit:    d.Totals.Profit,
			ProfitPct: d.Totals.ProfitPct,
		},
		Status: domain.OrderStatus(d.Status).OrDefault(),
	}
	for _, line := range d.Lines {
		order.Lines = append(order.Lines, domain.OrderLine(line))
	}
	for _, item := range d.PackagingItems {
		order.PackagingItems = append(order.PackagingItems, domain.PackagingItem(item))
	}
	for _, entry := range d.StatusHistory {
		order.StatusHistory = append(order.StatusHistory, domain.StatusHistoryEntry{
			ID:              entry.ID,
			Timestamp:       entry.Timestamp.UTC(),
			OldStatus:       domain.OrderStatus(entry.OldStatus),
			NewStatus:       domain.OrderStatus(entry.NewStatus),
			Notes:           entry.Notes,
			UserID:          entry.UserID,
			ReversedMetrics: entry.ReversedMetrics,
			Restocked:       entry.Restocked,
			AddedLoss:       entry.AddedLoss,
		})
	}
	// ArrayUnion does not guarantee order across concurrent writers.
	sort.SliceStable(order.StatusHistory, func(i, j int) bool {
		return order.StatusHistory[i].Timestamp.Before(order.StatusHistory[j].Timestamp)
	})
	for _, loss := range d.ExtraLossesHistory {
		order.ExtraLossesHistory = append(order.ExtraLossesHistory, domain.ExtraLossEntry{
			ID:        loss.ID,
			Timestamp: loss.Timestamp.UTC(),
			Amount:    loss.Amount,
			Reason:    loss.Reason,
			UserID:    loss.UserID,
		})
	}
	return order
}

func decodeOrder(snap *firestore.DocumentSnapshot) (domain.Order, error) {
	var doc orderDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.Order{}, err
	}
	return doc.toDomain(snap.Ref.ID), nil
}

type metricsDocument struct {
	Revenue    float64 `firestore:"revenue"`
	COGS       float64 `firestore:"cogs"`
	Expenses   float64 `firestore:"expenses"`
	Profit     float64 `firestore:"profit"`
	OrderCount int64   `firestore:"orderCount"`
}

func decodeMetrics(snap *firestore.DocumentSnapshot) (domain.MonthlyMetrics, error) {
	var doc metricsDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.MonthlyMetrics{}, err
	}
	return domain.MonthlyMetrics{
		Month:      snap.Ref.ID,
		Revenue:    doc.Revenue,
		COGS:       doc.COGS,
		Expenses:   doc.Expenses,
		Profit:     doc.Profit,
		OrderCount: doc.OrderCount,
	}, nil
}

// metricsIncrement is merged into the monthly document. Every field is a commutative
// server-side increment.
func metricsIncrement(month string, delta domain.MetricsDelta) map[string]any {
	return map[string]any{
		"month":      month,
		"revenue":    firestore.Increment(delta.Revenue),
		"cogs":       firestore.Increment(delta.COGS),
		"expenses":   firestore.Increment(delta.Expenses),
		"profit":     firestore.Increment(delta.Profit),
		"orderCount": firestore.Increment(delta.OrderCount),
		"updatedAt":  firestore.ServerTimestamp,
	}
}

func stringField(data map[string]any, key string) string {
	if data == nil {
		return ""
	}
	s, _ := data[key].(string)
	return s
}

func boolField(data map[string]any, key string, fallback bool) bool {
	b, ok := data[key].(bool)
	if !ok {
		return fallback
	}
	return b
}

func timeField(data map[string]any, key string) time.Time {
	t, _ := data[key].(time.Time)
	return t.UTC()
}

// floatField returns nil for missing or non-numeric values.
func floatField(value any) *float64 {
	var f float64
	switch v := value.(type) {
	case float64:
		f = v
	case int64:
		f = float64(v)
	default:
		return nil
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

func intField(value any) *int {
	switch v := value.(type) {
	case int64:
		n := int(v)
		return &n
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil
		}
		n := int(v)
		return &n
	default:
		return nil
	}
}

func intValue(value any) int {
	if n := intField(value); n != nil {
		return *n
	}
	return 0
}

func quantityType(value any) domain.QuantityType {
	if s, _ := value.(string); s == string(domain.QuantityInfinite) {
		return domain.QuantityInfinite
	}
	return domain.QuantityFinite
}

func stringSlice(value any) []string {
	raw, ok := value.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func encodeProduct(product domain.Product) map[string]any {
	doc := map[string]any{
		"idCode":       product.IDCode,
		"name":         product.Name,
		"quantityType": string(product.QuantityType),
		"active":       product.Active,
		"grouping": map[string]any{
			"mode":     string(product.Grouping.Mode),
			"groupKey": product.Grouping.GroupKey,
		},
		"updatedAt": firestore.ServerTimestamp,
	}
	if product.ImageURL != "" {
		doc["imageUrl"] = product.ImageURL
	}
	if product.StockPrice != nil {
		doc["stockPrice"] = *product.StockPrice
	}
	if product.SellPrice != nil {
		doc["sellPrice"] = *product.SellPrice
	}
	if product.Quantity != nil {
		doc["quantity"] = int64(*product.Quantity)
	}
	if product.CreatedAt.IsZero() {
		doc["createdAt"] = firestore.ServerTimestamp
	} else {
		doc["createdAt"] = product.CreatedAt.UTC()
	}

	ids := make([]string, 0, len(product.PerWarehouse))
	if len(product.PerWarehouse) > 0 {
		per := make(map[string]any, len(product.PerWarehouse))
		for id, entry := range product.PerWarehouse {
			value := map[string]any{"quantityType": string(entry.QuantityType)}
			if entry.Quantity != nil {
				value["quantity"] = int64(*entry.Quantity)
			}
			per[id] = value
			ids = append(ids, id)
		}
		doc["perWarehouse"] = per
	}
	sort.Strings(ids)
	doc["warehouseIds"] = ids
	return doc
}

func encodeConfig(cfg domain.TenantConfig) map[string]any {
	return map[string]any{
		"maxProducts":        int64(cfg.MaxProducts),
		"maxOrders":          int64(cfg.MaxOrders),
		"maxWarehouses":      int64(cfg.MaxWarehouses),
		"currency":           cfg.Currency,
		"defaultWarehouseId": cfg.DefaultWarehouseID,
		"idPolicy": map[string]any{
			"defaultProductIdLen": int64(cfg.IDPolicy.DefaultProductIDLen),
			"productIdMinLen":     int64(cfg.IDPolicy.ProductIDMinLen),
			"orderIdMinLen":       int64(cfg.IDPolicy.OrderIDMinLen),
		},
	}
}
