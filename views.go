package main

import (
	"context"
	"time"

	"github.com/mmdatafocus/warehouse_stock/middlewares"
	"github.com/mmdatafocus/warehouse_stock/models"
	"github.com/mmdatafocus/warehouse_stock/utils"
)

type warehouseSummary struct {
	ID       string               `json:"id"`
	Name     string               `json:"name"`
	Code     string               `json:"code"`
	Type     models.WarehouseType `json:"type"`
	IsActive bool                 `json:"isActive"`
}

type balanceView struct {
	*models.Balance
	Warehouse *warehouseSummary `json:"warehouse,omitempty"`
}

type movementView struct {
	*models.Movement
	FromWarehouse *warehouseSummary `json:"fromWarehouse,omitempty"`
	ToWarehouse   *warehouseSummary `json:"toWarehouse,omitempty"`
}

type reservationView struct {
	*models.Reservation
	EffectiveStatus models.ReservationStatus `json:"effectiveStatus"`
	Warehouse       *warehouseSummary        `json:"warehouse,omitempty"`
}

// warehouseDirectory resolves every id in one dataloader batch. Ids that no
// longer resolve to a registered warehouse are left out of the views.
func warehouseDirectory(ctx context.Context, ids []string) map[string]*warehouseSummary {
	out := map[string]*warehouseSummary{}
	if middlewares.For(ctx) == nil {
		return out
	}
	ids = utils.UniqueSlice(ids)
	rows, errs := middlewares.GetWarehouses(ctx, ids)
	for i, w := range rows {
		if w == nil || (len(errs) > i && errs[i] != nil) || w.Code == "" {
			continue
		}
		out[ids[i]] = &warehouseSummary{
			ID:       w.ID,
			Name:     w.Name,
			Code:     w.Code,
			Type:     w.Type,
			IsActive: w.Active(),
		}
	}
	return out
}

func balanceViews(ctx context.Context, balances []*models.Balance) []balanceView {
	ids := make([]string, 0, len(balances))
	for _, b := range balances {
		ids = append(ids, b.WarehouseId)
	}
	dir := warehouseDirectory(ctx, ids)
	views := make([]balanceView, 0, len(balances))
	for _, b := range balances {
		views = append(views, balanceView{Balance: b, Warehouse: dir[b.WarehouseId]})
	}
	return views
}

func balanceViewOf(ctx context.Context, b *models.Balance) balanceView {
	return balanceViews(ctx, []*models.Balance{b})[0]
}

func movementViews(ctx context.Context, movements []*models.Movement) []movementView {
	var ids []string
	for _, m := range movements {
		if m.FromWarehouseId != nil {
			ids = append(ids, *m.FromWarehouseId)
		}
		if m.ToWarehouseId != nil {
			ids = append(ids, *m.ToWarehouseId)
		}
	}
	dir := warehouseDirectory(ctx, ids)
	views := make([]movementView, 0, len(movements))
	for _, m := range movements {
		v := movementView{Movement: m}
		if m.FromWarehouseId != nil {
			v.FromWarehouse = dir[*m.FromWarehouseId]
		}
		if m.ToWarehouseId != nil {
			v.ToWarehouse = dir[*m.ToWarehouseId]
		}
		views = append(views, v)
	}
	return views
}

func reservationViews(ctx context.Context, rows []*models.Reservation, now func() time.Time) []reservationView {
	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.WarehouseId)
	}
	dir := warehouseDirectory(ctx, ids)
	at := now()
	views := make([]reservationView, 0, len(rows))
	for _, r := range rows {
		views = append(views, reservationView{
			Reservation:     r,
			EffectiveStatus: r.EffectiveStatus(at),
			Warehouse:       dir[r.WarehouseId],
		})
	}
	return views
}
