package ledger

import (
	"time"

	"github.com/mmdatafocus/warehouse_stock/models"
)

// EvaluateEvents derives the notifications for a committed balance.
// stock.updated always comes first; low and out are mutually exclusive.
func EvaluateEvents(b *models.Balance, now time.Time) []models.StockEvent {
	quantity, available, threshold := b.Quantity, b.Available, b.LowStockThreshold
	events := []models.StockEvent{{
		Type:        models.EventStockUpdated,
		ProductId:   b.ProductId,
		WarehouseId: b.WarehouseId,
		Quantity:    &quantity,
		Available:   &available,
		Timestamp:   now,
	}}
	switch {
	case available <= 0:
		events = append(events, models.StockEvent{
			Type:        models.EventStockOut,
			ProductId:   b.ProductId,
			WarehouseId: b.WarehouseId,
			Timestamp:   now,
		})
	case available <= threshold:
		events = append(events, models.StockEvent{
			Type:        models.EventStockLow,
			ProductId:   b.ProductId,
			WarehouseId: b.WarehouseId,
			Available:   &available,
			Threshold:   &threshold,
			Timestamp:   now,
		})
	}
	return events
}
