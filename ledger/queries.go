package ledger

import (
	"context"
	"strings"
	"time"

	"github.com/mmdatafocus/warehouse_stock/models"
)

// GetBalance returns the balance of one key, or NotFound.
func (e *Engine) GetBalance(ctx context.Context, productId, warehouseId string) (*models.Balance, error) {
	if err := requireKey(productId, warehouseId); err != nil {
		return nil, err
	}
	b, err := e.store.Repositories().Balances.Get(ctx, productId, warehouseId)
	if err != nil {
		return nil, classifyStoreError(err)
	}
	if b == nil {
		return nil, notFound(productId, warehouseId)
	}
	return b, nil
}

func (e *Engine) GetBalancesByProduct(ctx context.Context, productId string) ([]*models.Balance, error) {
	if strings.TrimSpace(productId) == "" {
		return nil, invalidArgument("productId is required")
	}
	rows, err := e.store.Repositories().Balances.ListByProduct(ctx, productId)
	return rows, classifyStoreError(err)
}

func (e *Engine) GetBalancesByWarehouse(ctx context.Context, warehouseId string) ([]*models.Balance, error) {
	if strings.TrimSpace(warehouseId) == "" {
		return nil, invalidArgument("warehouseId is required")
	}
	rows, err := e.store.Repositories().Balances.ListByWarehouse(ctx, warehouseId)
	return rows, classifyStoreError(err)
}

// GetTotalAvailable sums available across every warehouse holding the product.
// An unknown product totals zero.
func (e *Engine) GetTotalAvailable(ctx context.Context, productId string) (int, error) {
	if strings.TrimSpace(productId) == "" {
		return 0, invalidArgument("productId is required")
	}
	total, err := e.store.Repositories().Balances.SumAvailable(ctx, productId)
	return total, classifyStoreError(err)
}

func (e *Engine) MovementsByProduct(ctx context.Context, productId string, limit int) ([]*models.Movement, error) {
	if strings.TrimSpace(productId) == "" {
		return nil, invalidArgument("productId is required")
	}
	if limit < 0 {
		return nil, invalidArgument("limit cannot be negative")
	}
	rows, err := e.store.Repositories().Movements.FindByProduct(ctx, productId, limit)
	return rows, classifyStoreError(err)
}

func (e *Engine) MovementsByWarehouse(ctx context.Context, warehouseId string, limit int) ([]*models.Movement, error) {
	if strings.TrimSpace(warehouseId) == "" {
		return nil, invalidArgument("warehouseId is required")
	}
	if limit < 0 {
		return nil, invalidArgument("limit cannot be negative")
	}
	rows, err := e.store.Repositories().Movements.FindByWarehouse(ctx, warehouseId, limit)
	return rows, classifyStoreError(err)
}

// MovementsBetween returns movements created in [start, end], newest first.
func (e *Engine) MovementsBetween(ctx context.Context, start, end time.Time) ([]*models.Movement, error) {
	if start.IsZero() || end.IsZero() {
		return nil, invalidArgument("start and end dates are required")
	}
	if end.Before(start) {
		return nil, invalidArgument("end date is before start date")
	}
	rows, err := e.store.Repositories().Movements.FindByDateRange(ctx, start, end)
	return rows, classifyStoreError(err)
}

func (e *Engine) GetReservation(ctx context.Context, id string) (*models.Reservation, error) {
	r, err := e.store.Repositories().Reservations.Get(ctx, id)
	if err != nil {
		return nil, classifyStoreError(err)
	}
	if r == nil {
		return nil, newError(KindNotFound, nil, "reservation %s not found", id)
	}
	return r, nil
}

func (e *Engine) ReservationsByOrder(ctx context.Context, orderId string) ([]*models.Reservation, error) {
	if strings.TrimSpace(orderId) == "" {
		return nil, invalidArgument("orderId is required")
	}
	rows, err := e.store.Repositories().Reservations.FindByOrder(ctx, orderId)
	return rows, classifyStoreError(err)
}

func (e *Engine) ActiveReservationsByProduct(ctx context.Context, productId string) ([]*models.Reservation, error) {
	if strings.TrimSpace(productId) == "" {
		return nil, invalidArgument("productId is required")
	}
	rows, err := e.store.Repositories().Reservations.FindActiveByProduct(ctx, productId)
	return rows, classifyStoreError(err)
}

func (e *Engine) ActiveReservations(ctx context.Context) ([]*models.Reservation, error) {
	rows, err := e.store.Repositories().Reservations.FindActive(ctx)
	return rows, classifyStoreError(err)
}

// ExpiredReservations lists active holds whose expiry has passed and that a sweep has not yet released.
func (e *Engine) ExpiredReservations(ctx context.Context, limit int) ([]*models.Reservation, error) {
	rows, err := e.store.Repositories().Reservations.FindExpired(ctx, e.opts.Now(), limit)
	return rows, classifyStoreError(err)
}

type ReplayResult struct {
	ProductId        string `json:"productId"`
	WarehouseId      string `json:"warehouseId"`
	Movements        int    `json:"movements"`
	ReplayedQuantity int    `json:"replayedQuantity"`
	StoredQuantity   int    `json:"storedQuantity"`
	Consistent       bool   `json:"consistent"`
}

// ReplayQuantity folds the journal of one key into a quantity.
func ReplayQuantity(movements []*models.Movement, warehouseId string) int {
	total := 0
	for _, m := range movements {
		total += m.QuantityEffect(warehouseId)
	}
	return total
}

// Replay recomputes a balance's quantity from its journal and compares it with the stored row.
func (e *Engine) Replay(ctx context.Context, productId, warehouseId string) (*ReplayResult, error) {
	b, err := e.GetBalance(ctx, productId, warehouseId)
	if err != nil {
		return nil, err
	}
	movements, err := e.store.Repositories().Movements.FindByKey(ctx, productId, warehouseId)
	if err != nil {
		return nil, classifyStoreError(err)
	}
	replayed := ReplayQuantity(movements, warehouseId)
	return &ReplayResult{
		ProductId:        productId,
		WarehouseId:      warehouseId,
		Movements:        len(movements),
		ReplayedQuantity: replayed,
		StoredQuantity:   b.Quantity,
		Consistent:       replayed == b.Quantity,
	}, nil
}
