package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/firestore"

	domain "github.com/m5zonk/api/internal/domain"
	pfirestore "github.com/m5zonk/api/internal/platform/firestore"
	"github.com/m5zonk/api/internal/repositories"
)

var errReadAfterWrite = errors.New("firestore: read issued after a write in the same transaction")

type tx struct {
	store    *Store
	tenantID string
	ftx      *firestore.Transaction
	wrote    bool
	// products read in this attempt; SetStock needs them to tell whether a per-warehouse
	// entry already exists.
	products map[string]domain.Product
}

func newTx(store *Store, tenantID string, ftx *firestore.Transaction) *tx {
	return &tx{
		store:    store,
		tenantID: tenantID,
		ftx:      ftx,
		products: make(map[string]domain.Product),
	}
}

var _ repositories.Tx = (*tx)(nil)

func (t *tx) beginRead(op string) error {
	if t.wrote {
		return pfirestore.WrapError(op, errReadAfterWrite)
	}
	return nil
}

func (t *tx) TenantConfig(ctx context.Context) (domain.TenantConfig, error) {
	const op = "tx.tenantConfig"
	if err := t.beginRead(op); err != nil {
		return domain.TenantConfig{}, err
	}
	doc, err := t.store.settings.GetTx(ctx, t.ftx, t.tenantID, settingsConfigID)
	if err != nil {
		return domain.TenantConfig{}, err
	}
	cfg := doc.Data
	cfg.TenantID = t.tenantID
	return cfg, nil
}

func (t *tx) Products(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	const op = "tx.products"
	if err := t.beginRead(op); err != nil {
		return nil, err
	}
	out := make(map[string]domain.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	docs, err := t.store.products.GetAllTx(ctx, t.ftx, t.tenantID, ids)
	if err != nil {
		return nil, err
	}
	for _, doc := range docs {
		out[doc.ID] = doc.Data
		t.products[doc.ID] = doc.Data
	}
	return out, nil
}

func (t *tx) Order(ctx context.Context, orderID string) (domain.Order, error) {
	const op = "tx.order"
	if err := t.beginRead(op); err != nil {
		return domain.Order{}, err
	}
	doc, err := t.store.orders.GetTx(ctx, t.ftx, t.tenantID, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return doc.Data, nil
}

func (t *tx) InsertOrder(ctx context.Context, order domain.Order) error {
	const op = "tx.insertOrder"
	ref, err := t.store.orders.DocumentRef(ctx, t.tenantID, order.ID)
	if err != nil {
		return err
	}
	t.wrote = true
	if err := t.ftx.Create(ref, newOrderDocument(order)); err != nil {
		return pfirestore.WrapError(op, err)
	}
	return nil
}

func (t *tx) SetStock(ctx context.Context, productID string, loc domain.StockLocation, qty int) error {
	const op = "tx.setStock"
	product, ok := t.products[productID]
	if !ok {
		return pfirestore.WrapError(op, fmt.Errorf("firestore: product %s was not read in this transaction", productID))
	}
	ref, err := t.store.products.DocumentRef(ctx, t.tenantID, productID)
	if err != nil {
		return err
	}

	updates := []firestore.Update{{Path: "updatedAt", Value: firestore.ServerTimestamp}}
	switch {
	case loc.Kind == domain.StockGlobal:
		updates = append(updates, firestore.Update{Path: "quantity", Value: int64(qty)})
	case hasWarehouseEntry(product, loc.WarehouseID):
		updates = append(updates, firestore.Update{
			FieldPath: firestore.FieldPath{"perWarehouse", loc.WarehouseID, "quantity"},
			Value:     int64(qty),
		})
	default:
		updates = append(updates,
			firestore.Update{
				FieldPath: firestore.FieldPath{"perWarehouse", loc.WarehouseID},
				Value: map[string]any{
					"quantityType": string(domain.QuantityFinite),
					"quantity":     int64(qty),
				},
			},
			firestore.Update{Path: "warehouseIds", Value: firestore.ArrayUnion(loc.WarehouseID)},
		)
	}

	t.wrote = true
	if err := t.ftx.Update(ref, updates); err != nil {
		return pfirestore.WrapError(op, err)
	}
	qtyCopy := qty
	if loc.Kind == domain.StockGlobal {
		product.Quantity = &qtyCopy
	} else {
		per := make(map[string]domain.WarehouseStock, len(product.PerWarehouse)+1)
		for id, entry := range product.PerWarehouse {
			per[id] = entry
		}
		entry := per[loc.WarehouseID]
		if entry.QuantityType == "" {
			entry.QuantityType = domain.QuantityFinite
		}
		entry.Quantity = &qtyCopy
		per[loc.WarehouseID] = entry
		product.PerWarehouse = per
	}
	t.products[productID] = product
	return nil
}

func hasWarehouseEntry(product domain.Product, warehouseID string) bool {
	_, ok := product.PerWarehouse[warehouseID]
	return ok
}

func (t *tx) IncrementMetrics(ctx context.Context, month string, delta domain.MetricsDelta) error {
	const op = "tx.incrementMetrics"
	if strings.TrimSpace(month) == "" {
		return pfirestore.WrapError(op, errors.New("firestore: month key is required"))
	}
	ref, err := t.store.metrics.DocumentRef(ctx, t.tenantID, month)
	if err != nil {
		return err
	}
	t.wrote = true
	if err := t.ftx.Set(ref, metricsIncrement(month, delta), firestore.MergeAll); err != nil {
		return pfirestore.WrapError(op, err)
	}
	return nil
}

func (t *tx) AppendOrderStatus(ctx context.Context, orderID string, change repositories.StatusChange) error {
	const op = "tx.appendOrderStatus"
	ref, err := t.store.orders.DocumentRef(ctx, t.tenantID, orderID)
	if err != nil {
		return err
	}
	updates := []firestore.Update{
		{Path: "status", Value: string(change.Status)},
		{Path: "statusHistory", Value: firestore.ArrayUnion(newStatusHistoryDocument(change.History))},
	}
	if change.Loss != nil {
		updates = append(updates, firestore.Update{
			Path:  "extraLossesHistory",
			Value: firestore.ArrayUnion(newExtraLossDocument(*change.Loss)),
		})
	}
	t.wrote = true
	if err := t.ftx.Update(ref, updates); err != nil {
		return pfirestore.WrapError(op, err)
	}
	return nil
}
