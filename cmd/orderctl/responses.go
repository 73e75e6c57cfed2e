package main

import (
	"time"

	domain "github.com/m5zonk/api/internal/domain"
	"github.com/m5zonk/api/internal/services"
)

type orderResponse struct {
	ID                 string                  `json:"id"`
	CreatedAt          string                  `json:"createdAt"`
	WarehouseID        string                  `json:"warehouseId"`
	Status             string                  `json:"status"`
	Lines              []orderLineResponse     `json:"lines"`
	ShippingPrice      float64                 `json:"shippingPrice"`
	ExtraLosses        float64                 `json:"extraLosses"`
	PackagingItems     []packagingItemResponse `json:"packagingItems"`
	Totals             orderTotalsResponse     `json:"totals"`
	StatusHistory      []statusHistoryResponse `json:"statusHistory"`
	ExtraLossesHistory []extraLossResponse     `json:"extraLossesHistory"`
}

type orderLineResponse struct {
	ProductID      string  `json:"productId"`
	IDCode         string  `json:"idCode,omitempty"`
	Name           string  `json:"name"`
	ImageURL       string  `json:"imageUrl,omitempty"`
	Qty            int     `json:"qty"`
	UnitSellPrice  float64 `json:"unitSellPrice"`
	UnitStockPrice float64 `json:"unitStockPrice"`
}

type packagingItemResponse struct {
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

type orderTotalsResponse struct {
	Revenue   float64 `json:"revenue"`
	COGS      float64 `json:"cogs"`
	Expenses  float64 `json:"expenses"`
	Profit    float64 `json:"profit"`
	ProfitPct float64 `json:"profitPct"`
}

type statusHistoryResponse struct {
	ID              string  `json:"id"`
	Timestamp       string  `json:"timestamp"`
	OldStatus       string  `json:"oldStatus,omitempty"`
	NewStatus       string  `json:"status"`
	Notes           string  `json:"notes,omitempty"`
	UserID          *string `json:"userId,omitempty"`
	ReversedMetrics bool    `json:"reversedMetrics"`
	Restocked       bool    `json:"restocked"`
	AddedLoss       float64 `json:"addedLoss,omitempty"`
}

type extraLossResponse struct {
	ID        string  `json:"id"`
	Timestamp string  `json:"timestamp"`
	Amount    float64 `json:"amount"`
	Reason    string  `json:"reason,omitempty"`
	UserID    *string `json:"userId,omitempty"`
}

type stockAdjustmentResponse struct {
	ProductID   string `json:"productId"`
	WarehouseID string `json:"warehouseId,omitempty"`
	Field       string `json:"field"`
	Quantity    int    `json:"quantity"`
	Tracked     bool   `json:"tracked"`
}

func newOrderResponse(order domain.Order) orderResponse {
	resp := orderResponse{
		ID:                 order.ID,
		CreatedAt:          formatTimestamp(order.CreatedAt),
		WarehouseID:        order.WarehouseID,
		Status:             string(order.CurrentStatus()),
		Lines:              make([]orderLineResponse, 0, len(order.Lines)),
		ShippingPrice:      order.ShippingPrice,
		ExtraLosses:        order.ExtraLosses,
		PackagingItems:     make([]packagingItemResponse, 0, len(order.PackagingItems)),
		Totals:             orderTotalsResponse(order.Totals),
		StatusHistory:      make([]statusHistoryResponse, 0, len(order.StatusHistory)),
		ExtraLossesHistory: make([]extraLossResponse, 0, len(order.ExtraLossesHistory)),
	}
	for _, line := range order.Lines {
		resp.Lines = append(resp.Lines, orderLineResponse(line))
	}
	for _, item := range order.PackagingItems {
		resp.PackagingItems = append(resp.PackagingItems, packagingItemResponse(item))
	}
	for _, entry := range order.StatusHistory {
		resp.StatusHistory = append(resp.StatusHistory, statusHistoryResponse{
			ID:              entry.ID,
			Timestamp:       formatTimestamp(entry.Timestamp),
			OldStatus:       string(entry.OldStatus),
			NewStatus:       string(entry.NewStatus),
			Notes:           entry.Notes,
			UserID:          entry.UserID,
			ReversedMetrics: entry.ReversedMetrics,
			Restocked:       entry.Restocked,
			AddedLoss:       entry.AddedLoss,
		})
	}
	for _, loss := range order.ExtraLossesHistory {
		resp.ExtraLossesHistory = append(resp.ExtraLossesHistory, extraLossResponse{
			ID:        loss.ID,
			Timestamp: formatTimestamp(loss.Timestamp),
			Amount:    loss.Amount,
			Reason:    loss.Reason,
			UserID:    loss.UserID,
		})
	}
	return resp
}

func newOrderListResponse(orders []domain.Order) []orderResponse {
	out := []orderResponse{}
	for _, order := range orders {
		out = append(out, newOrderResponse(order))
	}
	return out
}

func newStockAdjustmentResponse(adj services.StockAdjustment) stockAdjustmentResponse {
	return stockAdjustmentResponse{
		ProductID:   adj.ProductID,
		WarehouseID: adj.Location.WarehouseID,
		Field:       adj.Location.String(),
		Quantity:    adj.Quantity,
		Tracked:     adj.Tracked,
	}
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
