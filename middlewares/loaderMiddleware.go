package middlewares

import (
	"context"
	"reflect"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/graph-gophers/dataloader/v7"
	"github.com/mmdatafocus/warehouse_stock/models"
)

type ctxKey string

const (
	loadersKey = ctxKey("dataloaders")
)

type Loaders struct {
	warehouseLoader *dataloader.Loader[string, *models.Warehouse]
}

func NewLoaders(repo models.WarehouseRepository) *Loaders {
	warehouseReader := &warehouseReader{repo: repo}
	return &Loaders{
		warehouseLoader: dataloader.NewBatchedLoader(warehouseReader.getWarehouses, dataloader.WithWait[string, *models.Warehouse](time.Millisecond)),
	}
}

// LoaderMiddleware gives every request its own loaders so batches never leak across requests.
func LoaderMiddleware(repo models.WarehouseRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		loader := NewLoaders(repo)
		ctx := context.WithValue(c.Request.Context(), loadersKey, loader)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func For(ctx context.Context) *Loaders {
	loaders, _ := ctx.Value(loadersKey).(*Loaders)
	return loaders
}

// handleError creates array of result with the same error repeated for as many items requested
func handleError[T any](itemsLength int, err error) []*dataloader.Result[T] {
	result := make([]*dataloader.Result[T], itemsLength)
	for i := 0; i < itemsLength; i++ {
		result[i] = &dataloader.Result[T]{Error: err}
	}
	return result
}

// turns results from the store into dataloader results, in key order
// (T must be a struct)
func generateLoaderResults[T models.Data](results []T, ids []string) []*dataloader.Result[*T] {
	resultMap := make(map[string]T, len(results))
	for _, result := range results {
		resultMap[result.GetId()] = result
	}

	loaderResults := make([]*dataloader.Result[*T], 0, len(ids))
	for _, id := range ids {
		data := resultMap[id]
		if reflect.ValueOf(data).IsZero() {
			data = data.GetDefault(id).(T)
		}
		loaderResults = append(loaderResults, &dataloader.Result[*T]{Data: &data})
	}
	return loaderResults
}
