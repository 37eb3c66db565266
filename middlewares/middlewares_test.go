package middlewares

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/warehouse_stock/appctx"
	"github.com/mmdatafocus/warehouse_stock/models"
	"github.com/mmdatafocus/warehouse_stock/utils"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestCorrelationMiddleware(t *testing.T) {
	var seen string
	r := gin.New()
	r.Use(CorrelationMiddleware())
	r.GET("/x", func(c *gin.Context) {
		seen, _ = utils.GetCorrelationIdFromContext(c.Request.Context())
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(HeaderCorrelationId, "abc-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if seen != "abc-123" || w.Header().Get(HeaderCorrelationId) != "abc-123" {
		t.Fatalf("expected caller id to propagate, got ctx=%q header=%q", seen, w.Header().Get(HeaderCorrelationId))
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	if seen == "" || seen == "abc-123" || w.Header().Get(HeaderCorrelationId) != seen {
		t.Fatalf("expected a fresh id, got %q", seen)
	}
}

func TestSessionMiddleware(t *testing.T) {
	var actor, channel string
	r := gin.New()
	r.Use(SessionMiddleware())
	r.GET("/x", func(c *gin.Context) {
		actor, _ = utils.GetActorFromContext(c.Request.Context())
		channel, _ = appctx.GetString(c.Request.Context(), appctx.ContextKeyChannel)
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(HeaderActor, " alice ")
	req.Header.Set(HeaderChannel, "pos")
	r.ServeHTTP(httptest.NewRecorder(), req)
	if actor != "alice" || channel != "pos" {
		t.Fatalf("unexpected session: actor=%q channel=%q", actor, channel)
	}
}

func TestReadinessMiddleware(t *testing.T) {
	ready := false
	r := gin.New()
	r.Use(ReadinessMiddleware(func() bool { return ready }, "/healthz"))
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/stock", func(c *gin.Context) { c.Status(http.StatusOK) })

	get := func(path string) int {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		return w.Code
	}
	if got := get("/healthz"); got != http.StatusOK {
		t.Fatalf("probe should pass while starting, got %d", got)
	}
	if got := get("/stock"); got != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 while starting, got %d", got)
	}
	ready = true
	if got := get("/stock"); got != http.StatusOK {
		t.Fatalf("expected 200 once ready, got %d", got)
	}
}

func TestWarehouseLoader(t *testing.T) {
	ctx := context.Background()
	repo := models.NewMemoryStore().Warehouses()
	w, err := models.CreateWarehouse(ctx, repo, &models.NewWarehouse{Name: "Main", Code: "MAIN", Type: models.WarehouseTypeOwn})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	var found, missing *models.Warehouse
	var errs []error
	r := gin.New()
	r.Use(LoaderMiddleware(repo))
	r.GET("/x", func(c *gin.Context) {
		rows, es := GetWarehouses(c.Request.Context(), []string{w.ID, "ghost"})
		found, missing, errs = rows[0], rows[1], es
		c.Status(http.StatusNoContent)
	})
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/x", nil))

	for _, err := range errs {
		if err != nil {
			t.Fatalf("unexpected loader error: %v", err)
		}
	}
	if found == nil || found.Name != "Main" {
		t.Fatalf("expected the stored warehouse, got %+v", found)
	}
	if missing == nil || missing.ID != "ghost" || missing.Active() {
		t.Fatalf("expected an inactive placeholder, got %+v", missing)
	}
	if For(ctx) != nil {
		t.Fatalf("loaders should only exist inside a request")
	}
}
