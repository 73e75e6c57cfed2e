package domain

import "fmt"

// StockLocationKind tags which counter of a product a stock operation targets.
type StockLocationKind int

const (
	// StockGlobal targets the product's global quantity field.
	StockGlobal StockLocationKind = iota
	// StockPerWarehouse targets perWarehouse[warehouseId].quantity.
	StockPerWarehouse
)

// StockLocation identifies a single stock counter of a product.
type StockLocation struct {
	Kind        StockLocationKind
	WarehouseID string
}

// GlobalStock returns the location of the global counter.
func GlobalStock() StockLocation {
	return StockLocation{Kind: StockGlobal}
}

// WarehouseStockAt returns the location of the per-warehouse counter for warehouseID.
func WarehouseStockAt(warehouseID string) StockLocation {
	return StockLocation{Kind: StockPerWarehouse, WarehouseID: warehouseID}
}

// String renders the location as the document field it maps to.
func (l StockLocation) String() string {
	if l.Kind == StockPerWarehouse {
		return fmt.Sprintf("perWarehouse.%s.quantity", l.WarehouseID)
	}
	return "quantity"
}

// ResolveStockLocation picks the per-warehouse counter when the product tracks the
// warehouse separately and falls back to the global counter otherwise.
func ResolveStockLocation(product Product, warehouseID string) StockLocation {
	if warehouseID != "" {
		if _, ok := product.PerWarehouse[warehouseID]; ok {
			return WarehouseStockAt(warehouseID)
		}
	}
	return GlobalStock()
}

// QuantityAt returns the stored quantity at loc, or nil when the field is unset.
func (p Product) QuantityAt(loc StockLocation) *int {
	if loc.Kind == StockPerWarehouse {
		entry, ok := p.PerWarehouse[loc.WarehouseID]
		if !ok {
			return nil
		}
		return entry.Quantity
	}
	return p.Quantity
}
