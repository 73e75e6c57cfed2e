//go:build integration

package firestore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	domain "github.com/m5zonk/api/internal/domain"
	pconfig "github.com/m5zonk/api/internal/platform/config"
	pfirestore "github.com/m5zonk/api/internal/platform/firestore"
	"github.com/m5zonk/api/internal/platform/firestore/firestoretest"
	"github.com/m5zonk/api/internal/repositories"
)

const integrationTenant = "adm_it"

func newIntegrationStore(t *testing.T, projectID string) *Store {
	t.Helper()
	endpoint := firestoretest.StartEmulator(t)
	provider := pfirestore.NewProvider(pconfig.FirestoreConfig{ProjectID: projectID, EmulatorHost: endpoint},
		pfirestore.WithTransactionDefaults(50, 30*time.Second))
	store, err := NewStore(provider, WithLogger(zaptest.NewLogger(t)))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close(context.Background()) })
	return store
}

func TestStoreOrderLifecycleIntegration(t *testing.T) {
	store := newIntegrationStore(t, "engine-lifecycle")
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	sell, cost, qty, whQty := 10.0, 4.0, 5, 2
	if err := store.PutConfig(ctx, integrationTenant, domain.TenantConfig{Currency: "USD", DefaultWarehouseID: "wh.main"}); err != nil {
		t.Fatalf("put config: %v", err)
	}
	if err := store.PutProduct(ctx, integrationTenant, domain.Product{
		ID:           "P1",
		Name:         "Mug",
		SellPrice:    &sell,
		StockPrice:   &cost,
		QuantityType: domain.QuantityFinite,
		Quantity:     &qty,
		PerWarehouse: map[string]domain.WarehouseStock{
			"wh.main": {QuantityType: domain.QuantityFinite, Quantity: &whQty},
		},
		Active: true,
	}); err != nil {
		t.Fatalf("put product: %v", err)
	}

	createdAt := time.Date(2025, 5, 6, 9, 0, 0, 0, time.UTC)
	order := domain.Order{
		ID:          "ord_1",
		CreatedAt:   createdAt,
		WarehouseID: "wh.main",
		Lines:       []domain.OrderLine{{ProductID: "P1", Name: "Mug", Qty: 2, UnitSellPrice: 10, UnitStockPrice: 4}},
		Totals:      domain.OrderTotals{Revenue: 20, COGS: 8, Profit: 12, ProfitPct: 0.6},
		Status:      domain.OrderStatusOK,
		StatusHistory: []domain.StatusHistoryEntry{
			{ID: "osh_1", Timestamp: createdAt, NewStatus: domain.OrderStatusOK, Notes: "Order created."},
		},
	}

	err := store.RunInTx(ctx, integrationTenant, func(ctx context.Context, tx repositories.Tx) error {
		cfg, err := tx.TenantConfig(ctx)
		if err != nil {
			return err
		}
		if cfg.DefaultWarehouseID != "wh.main" || cfg.TenantID != integrationTenant {
			return fmt.Errorf("unexpected config %+v", cfg)
		}
		products, err := tx.Products(ctx, []string{"P1", "P1", "P404"})
		if err != nil {
			return err
		}
		if len(products) != 1 {
			return fmt.Errorf("expected one product, got %d", len(products))
		}
		if err := tx.InsertOrder(ctx, order); err != nil {
			return err
		}
		if err := tx.SetStock(ctx, "P1", domain.WarehouseStockAt("wh.main"), 0); err != nil {
			return err
		}
		if err := tx.SetStock(ctx, "P1", domain.WarehouseStockAt("wh.annex"), 3); err != nil {
			return err
		}
		return tx.IncrementMetrics(ctx, "2025-05", domain.MetricsDelta{Revenue: 20, COGS: 8, Profit: 12, OrderCount: 1})
	})
	if err != nil {
		t.Fatalf("create tx: %v", err)
	}

	product, err := store.products.Get(ctx, integrationTenant, "P1")
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if got := product.Data.PerWarehouse["wh.main"].Quantity; got == nil || *got != 0 {
		t.Fatalf("expected wh.main drained, got %+v", product.Data.PerWarehouse)
	}
	if got := product.Data.PerWarehouse["wh.annex"]; got.Quantity == nil || *got.Quantity != 3 || got.QuantityType != domain.QuantityFinite {
		t.Fatalf("expected wh.annex entry, got %+v", got)
	}
	if *product.Data.Quantity != 5 || len(product.Data.WarehouseIDs) != 2 {
		t.Fatalf("unexpected product %+v", product.Data)
	}

	userID := "u_1"
	err = store.RunInTx(ctx, integrationTenant, func(ctx context.Context, tx repositories.Tx) error {
		current, err := tx.Order(ctx, "ord_1")
		if err != nil {
			return err
		}
		if current.Status != domain.OrderStatusOK {
			return fmt.Errorf("unexpected status %s", current.Status)
		}
		return tx.AppendOrderStatus(ctx, "ord_1", repositories.StatusChange{
			Status: domain.OrderStatusReturned,
			History: domain.StatusHistoryEntry{
				ID: "osh_2", Timestamp: createdAt.Add(time.Hour),
				OldStatus: domain.OrderStatusOK, NewStatus: domain.OrderStatusReturned,
				UserID: &userID, ReversedMetrics: true, AddedLoss: 1.5,
			},
			Loss: &domain.ExtraLossEntry{ID: "olo_1", Timestamp: createdAt.Add(time.Hour), Amount: 1.5, Reason: "damaged", UserID: &userID},
		})
	})
	if err != nil {
		t.Fatalf("status tx: %v", err)
	}

	stored, err := store.Orders().FindByID(ctx, integrationTenant, "ord_1")
	if err != nil {
		t.Fatalf("find order: %v", err)
	}
	if stored.Status != domain.OrderStatusReturned || len(stored.StatusHistory) != 2 || len(stored.ExtraLossesHistory) != 1 {
		t.Fatalf("unexpected order %+v", stored)
	}
	if stored.StatusHistory[1].UserID == nil || *stored.StatusHistory[1].UserID != userID || stored.MetricsCounted() {
		t.Fatalf("unexpected history %+v", stored.StatusHistory)
	}

	listed, err := store.Orders().List(ctx, integrationTenant, repositories.OrderListFilter{
		WarehouseID: "wh.main",
		CreatedAt:   domain.RangeQuery[time.Time]{From: ptrTime(createdAt.Add(-time.Hour)), To: ptrTime(createdAt.Add(time.Hour))},
		Order:       domain.SortDesc,
		Limit:       10,
	})
	if err != nil {
		t.Fatalf("list orders: %v", err)
	}
	if len(listed) != 1 || listed[0].ID != "ord_1" {
		t.Fatalf("unexpected listing %+v", listed)
	}

	_, err = store.Orders().FindByID(ctx, integrationTenant, "ord_missing")
	var repoErr repositories.RepositoryError
	if !errors.As(err, &repoErr) || !repoErr.IsNotFound() {
		t.Fatalf("expected not found, got %v", err)
	}

	err = store.RunInTx(ctx, integrationTenant, func(ctx context.Context, tx repositories.Tx) error {
		return tx.InsertOrder(ctx, order)
	})
	if !errors.As(err, &repoErr) || !repoErr.IsConflict() {
		t.Fatalf("expected conflict on duplicate insert, got %v", err)
	}
}

func TestStoreMetricsIncrementsIntegration(t *testing.T) {
	store := newIntegrationStore(t, "engine-metrics")
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	const workers = 8
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			err := store.RunInTx(ctx, integrationTenant, func(ctx context.Context, tx repositories.Tx) error {
				return tx.IncrementMetrics(ctx, "2025-02", domain.MetricsDelta{Revenue: 2.5, Profit: 1, OrderCount: 1})
			})
			if err != nil {
				t.Errorf("increment: %v", err)
			}
		}()
	}
	wg.Wait()

	err := store.RunInTx(ctx, integrationTenant, func(ctx context.Context, tx repositories.Tx) error {
		return tx.IncrementMetrics(ctx, "2024-12", domain.MetricsDelta{Revenue: 99, OrderCount: 1})
	})
	if err != nil {
		t.Fatalf("increment previous year: %v", err)
	}

	months, err := store.Metrics().ListMonthly(ctx, integrationTenant, "2025-01", "2026-01")
	if err != nil {
		t.Fatalf("list monthly: %v", err)
	}
	if len(months) != 1 || months[0].Month != "2025-02" {
		t.Fatalf("unexpected months %+v", months)
	}
	if months[0].Revenue != 20 || months[0].OrderCount != workers {
		t.Fatalf("unexpected totals %+v", months[0])
	}

	// rollups stored without a month field are found by document id
	if err := store.metrics.Set(ctx, integrationTenant, "2025-05", map[string]any{
		"revenue": 40.0, "cogs": 16.0, "expenses": 0.0, "profit": 24.0, "orderCount": 2,
	}); err != nil {
		t.Fatalf("seed rollup: %v", err)
	}
	months, err = store.Metrics().ListMonthly(ctx, integrationTenant, "2025-01", "2026-01")
	if err != nil {
		t.Fatalf("list monthly: %v", err)
	}
	if len(months) != 2 || months[0].Month != "2025-02" || months[1].Month != "2025-05" {
		t.Fatalf("unexpected months %+v", months)
	}
	if months[1].Revenue != 40 || months[1].Profit != 24 || months[1].OrderCount != 2 {
		t.Fatalf("unexpected rollup %+v", months[1])
	}

	if _, err := store.Configs().Get(ctx, "adm_unknown"); err == nil {
		t.Fatalf("expected missing config error")
	}
}

func ptrTime(t time.Time) *time.Time { return &t }
