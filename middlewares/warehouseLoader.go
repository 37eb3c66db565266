package middlewares

import (
	"context"

	"github.com/graph-gophers/dataloader/v7"
	"github.com/mmdatafocus/warehouse_stock/models"
)

type warehouseReader struct {
	repo models.WarehouseRepository
}

func (r *warehouseReader) getWarehouses(ctx context.Context, ids []string) []*dataloader.Result[*models.Warehouse] {
	rows, err := r.repo.GetByIds(ctx, ids)
	if err != nil {
		return handleError[*models.Warehouse](len(ids), err)
	}
	results := make([]models.Warehouse, 0, len(rows))
	for _, w := range rows {
		results = append(results, *w)
	}
	return generateLoaderResults(results, ids)
}

// GetWarehouse batches with every other lookup made in the same request.
// An unknown id resolves to an inactive placeholder.
func GetWarehouse(ctx context.Context, id string) (*models.Warehouse, error) {
	loaders := For(ctx)
	return loaders.warehouseLoader.Load(ctx, id)()
}

func GetWarehouses(ctx context.Context, ids []string) ([]*models.Warehouse, []error) {
	loaders := For(ctx)
	return loaders.warehouseLoader.LoadMany(ctx, ids)()
}
