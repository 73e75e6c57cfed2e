package services

import (
	"context"
	"errors"
	"math"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	domain "github.com/m5zonk/api/internal/domain"
	"github.com/m5zonk/api/internal/repositories"
)

type stockWrite struct {
	productID string
	loc       domain.StockLocation
	qty       int
}

// stubTx records SetStock calls; every other method fails the test if reached.
type stubTx struct {
	repositories.Tx
	setStockFn func(productID string, loc domain.StockLocation, qty int) error
}

func (s *stubTx) SetStock(_ context.Context, productID string, loc domain.StockLocation, qty int) error {
	return s.setStockFn(productID, loc, qty)
}

func ledgerProducts() map[string]domain.Product {
	return map[string]domain.Product{
		"P1": {ID: "P1", Name: "Mug", QuantityType: domain.QuantityFinite, Quantity: intPtr(5)},
		"P2": {ID: "P2", Name: "Ebook", QuantityType: domain.QuantityInfinite},
		"P3": {
			ID: "P3", Name: "Lamp", QuantityType: domain.QuantityFinite, Quantity: intPtr(9),
			PerWarehouse: map[string]domain.WarehouseStock{
				"wh_a": {QuantityType: domain.QuantityFinite, Quantity: intPtr(2)},
				"wh_b": {QuantityType: domain.QuantityInfinite},
			},
		},
		"P4": {ID: "P4", Name: "Poster", QuantityType: domain.QuantityFinite},
	}
}

func applyLedger(t *testing.T, ledger *stockLedger) []stockWrite {
	t.Helper()
	var writes []stockWrite
	tx := &stubTx{setStockFn: func(productID string, loc domain.StockLocation, qty int) error {
		writes = append(writes, stockWrite{productID, loc, qty})
		return nil
	}}
	if err := ledger.Apply(context.Background(), tx); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	return writes
}

func TestStockLedgerDecrement(t *testing.T) {
	ledger := newStockLedger(ledgerProducts(), nil)

	if err := ledger.Decrement("P1", "wh_x", 2); err != nil {
		t.Fatalf("Decrement: %v", err)
	}
	if err := ledger.Decrement("P1", "wh_x", 3); err != nil {
		t.Fatalf("Decrement: %v", err)
	}
	err := ledger.Decrement("P1", "wh_x", 1)
	var stockErr *repositories.StockError
	if !errors.As(err, &stockErr) || stockErr.Code != repositories.StockErrorInsufficient || stockErr.Available != 0 {
		t.Fatalf("expected insufficient stock, got %v", err)
	}

	if err := ledger.Decrement("P2", "wh_x", 1000); err != nil {
		t.Fatalf("infinite product should not fail: %v", err)
	}
	if err := ledger.Decrement("P3", "wh_a", 2); err != nil {
		t.Fatalf("per-warehouse decrement: %v", err)
	}
	if err := ledger.Decrement("P3", "wh_b", 50); err != nil {
		t.Fatalf("infinite warehouse entry should not fail: %v", err)
	}

	err = ledger.Decrement("P4", "", 1)
	if !errors.As(err, &stockErr) || stockErr.Code != repositories.StockErrorNotInitialised {
		t.Fatalf("expected not initialised, got %v", err)
	}

	writes := applyLedger(t, ledger)
	want := []stockWrite{
		{"P1", domain.GlobalStock(), 0},
		{"P3", domain.WarehouseStockAt("wh_a"), 0},
	}
	if len(writes) != len(want) {
		t.Fatalf("writes = %+v, want %+v", writes, want)
	}
	for i := range want {
		if writes[i] != want[i] {
			t.Fatalf("write %d = %+v, want %+v", i, writes[i], want[i])
		}
	}
}

func TestStockLedgerIncrementTreatsMissingAsZero(t *testing.T) {
	ledger := newStockLedger(ledgerProducts(), nil)
	ledger.Increment("P4", "", 3)
	ledger.Increment("P2", "", 3)
	ledger.Increment("P9", "", 3)

	writes := applyLedger(t, ledger)
	if len(writes) != 1 || writes[0] != (stockWrite{"P4", domain.GlobalStock(), 3}) {
		t.Fatalf("unexpected writes %+v", writes)
	}
}

func TestStockLedgerCompensateClampsWithWarning(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	ledger := newStockLedger(ledgerProducts(), zap.New(core))

	ledger.Compensate("P3", "wh_a", 5)

	writes := applyLedger(t, ledger)
	if len(writes) != 1 || writes[0].qty != 0 {
		t.Fatalf("expected clamp to zero, got %+v", writes)
	}
	if logs.FilterMessage("stock de-stock clamped at zero").Len() != 1 {
		t.Fatalf("expected clamp warning, got %v", logs.All())
	}
}

func TestStockLedgerAdjust(t *testing.T) {
	ledger := newStockLedger(ledgerProducts(), nil)

	qty, tracked, err := ledger.Adjust("P3", domain.WarehouseStockAt("wh_new"), 4)
	if err != nil || !tracked || qty != 4 {
		t.Fatalf("Adjust new entry = %d, %v, %v", qty, tracked, err)
	}
	if _, _, err := ledger.Adjust("P1", domain.GlobalStock(), -6); err == nil {
		t.Fatalf("expected insufficient stock")
	}
	if _, tracked, err := ledger.Adjust("P2", domain.GlobalStock(), -6); err != nil || tracked {
		t.Fatalf("infinite adjust = %v, %v", tracked, err)
	}
	if _, _, err := ledger.Adjust("P3", domain.WarehouseStockAt("wh_new"), math.MaxInt); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected overflow rejection, got %v", err)
	}

	writes := applyLedger(t, ledger)
	if len(writes) != 1 || writes[0] != (stockWrite{"P3", domain.WarehouseStockAt("wh_new"), 4}) {
		t.Fatalf("unexpected writes %+v", writes)
	}
}

func TestStockLedgerApplyPropagatesErrors(t *testing.T) {
	ledger := newStockLedger(ledgerProducts(), nil)
	ledger.Increment("P1", "", 1)

	boom := errors.New("boom")
	err := ledger.Apply(context.Background(), &stubTx{setStockFn: func(string, domain.StockLocation, int) error {
		return boom
	}})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
}
