package firestore

import (
	"math"
	"testing"
	"time"

	domain "github.com/m5zonk/api/internal/domain"
)

func TestNumericFieldDecoding(t *testing.T) {
	tests := []struct {
		name    string
		value   any
		wantF   *float64
		wantInt *int
	}{
		{"int64", int64(7), floatPtr(7), intPtr(7)},
		{"float64", 2.5, floatPtr(2.5), intPtr(2)},
		{"string", "10", nil, nil},
		{"missing", nil, nil, nil},
		{"nan", math.NaN(), nil, nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			gotF := floatField(tc.value)
			if (gotF == nil) != (tc.wantF == nil) || (gotF != nil && *gotF != *tc.wantF) {
				t.Fatalf("floatField(%v) = %v", tc.value, gotF)
			}
			gotInt := intField(tc.value)
			if (gotInt == nil) != (tc.wantInt == nil) || (gotInt != nil && *gotInt != *tc.wantInt) {
				t.Fatalf("intField(%v) = %v", tc.value, gotInt)
			}
		})
	}
}

func TestQuantityTypeDefaultsToFinite(t *testing.T) {
	if quantityType("infinite") != domain.QuantityInfinite {
		t.Fatalf("expected infinite")
	}
	for _, v := range []any{"finite", "", nil, 3} {
		if quantityType(v) != domain.QuantityFinite {
			t.Fatalf("quantityType(%v) should be finite", v)
		}
	}
}

func TestOrderDocumentRoundTripSortsHistory(t *testing.T) {
	base := time.Date(2025, 5, 6, 9, 0, 0, 0, time.UTC)
	user := "u_1"
	order := domain.Order{
		ID:          "ord_1",
		CreatedAt:   base,
		WarehouseID: "wh_main",
		Lines:       []domain.OrderLine{{ProductID: "P1", Qty: 2, UnitSellPrice: 10, UnitStockPrice: 4}},
		Totals:      domain.OrderTotals{Revenue: 20, COGS: 8, Profit: 12, ProfitPct: 0.6},
		Status:      domain.OrderStatusOK,
		StatusHistory: []domain.StatusHistoryEntry{
			{ID: "osh_2", Timestamp: base.Add(2 * time.Hour), OldStatus: domain.OrderStatusReturned, NewStatus: domain.OrderStatusOK, UserID: &user},
			{ID: "osh_1", Timestamp: base, NewStatus: domain.OrderStatusOK},
			{ID: "osh_3", Timestamp: base.Add(time.Hour), OldStatus: domain.OrderStatusOK, NewStatus: domain.OrderStatusReturned, ReversedMetrics: true},
		},
	}

	doc := newOrderDocument(order)
	if doc.StatusHistory[1].OldStatus != "" || doc.Status != "OK" {
		t.Fatalf("unexpected document %+v", doc)
	}

	got := doc.toDomain("ord_1")
	ids := []string{got.StatusHistory[0].ID, got.StatusHistory[1].ID, got.StatusHistory[2].ID}
	if ids[0] != "osh_1" || ids[1] != "osh_3" || ids[2] != "osh_2" {
		t.Fatalf("history not ordered by timestamp: %v", ids)
	}
	if got.Totals != order.Totals || got.Lines[0] != order.Lines[0] || *got.StatusHistory[2].UserID != user {
		t.Fatalf("unexpected order %+v", got)
	}
}

func TestEncodeProductKeepsWarehouseIDsInSync(t *testing.T) {
	doc := encodeProduct(domain.Product{
		ID:           "P1",
		QuantityType: domain.QuantityFinite,
		Quantity:     intPtr(3),
		PerWarehouse: map[string]domain.WarehouseStock{
			"wh_b": {QuantityType: domain.QuantityFinite, Quantity: intPtr(1)},
			"wh_a": {QuantityType: domain.QuantityInfinite},
		},
	})
	ids, ok := doc["warehouseIds"].([]string)
	if !ok || len(ids) != 2 || ids[0] != "wh_a" || ids[1] != "wh_b" {
		t.Fatalf("unexpected warehouseIds %v", doc["warehouseIds"])
	}
	if doc["quantity"] != int64(3) {
		t.Fatalf("unexpected quantity %v", doc["quantity"])
	}
	if _, ok := doc["sellPrice"]; ok {
		t.Fatalf("unset price must not be written")
	}
}

func floatPtr(v float64) *float64 { return &v }
func intPtr(v int) *int           { return &v }
