package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/warehouse_stock/ledger"
	"github.com/mmdatafocus/warehouse_stock/middlewares"
	"github.com/mmdatafocus/warehouse_stock/models"
	"github.com/sirupsen/logrus"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type capturedEvents struct {
	mu     sync.Mutex
	events []models.StockEvent
}

func (c *capturedEvents) Notify(_ context.Context, e models.StockEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
	return nil
}

func (c *capturedEvents) types() []models.StockEventType {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.StockEventType, 0, len(c.events))
	for _, e := range c.events {
		out = append(out, e.Type)
	}
	return out
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   errorBody       `json:"error"`
}

type testAPI struct {
	t      *testing.T
	router http.Handler
	server *server
	events *capturedEvents
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	mem := models.NewMemoryStore()
	events := &capturedEvents{}
	s := newServer(logger)
	s.store, s.warehouses = mem, mem.Warehouses()
	s.engine = ledger.New(mem, ledger.Options{
		Logger:                   logger,
		Notifier:                 events,
		DefaultLowStockThreshold: 5,
		RetryBackoff:             time.Millisecond,
	})
	s.ready.Store(true)
	return &testAPI{t: t, router: newRouter(s), server: s, events: events}
}

func (a *testAPI) do(method, path string, body any, headers ...string) (*httptest.ResponseRecorder, envelope) {
	a.t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			a.t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)

	var env envelope
	if w.Header().Get("Content-Type") != "" && bytes.HasPrefix(w.Body.Bytes(), []byte("{")) {
		if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
			a.t.Fatalf("decode %s %s: %v (%s)", method, path, err, w.Body.String())
		}
	}
	return w, env
}

func decodeData[T any](t *testing.T, env envelope) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(env.Data, &v); err != nil {
		t.Fatalf("decode data: %v (%s)", err, env.Data)
	}
	return v
}

type balanceJSON struct {
	ProductId   string `json:"productId"`
	WarehouseId string `json:"warehouseId"`
	Quantity    int    `json:"quantity"`
	Reserved    int    `json:"reserved"`
	Available   int    `json:"available"`
	Warehouse   *struct {
		Code string `json:"code"`
	} `json:"warehouse"`
}

func TestStockEndpoints(t *testing.T) {
	api := newTestAPI(t)

	w, env := api.do(http.MethodPost, "/api/warehouses", map[string]any{"name": "Main", "code": "MAIN", "type": "own"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create warehouse: %d %s", w.Code, w.Body.String())
	}
	wh := decodeData[models.Warehouse](t, env)

	w, env = api.do(http.MethodPost, "/api/stock/increment",
		map[string]any{"productId": "sku-1", "warehouseId": wh.ID, "quantity": 10}, middlewares.HeaderActor, "alice")
	if w.Code != http.StatusOK || !env.Success {
		t.Fatalf("increment: %d %s", w.Code, w.Body.String())
	}
	b := decodeData[balanceJSON](t, env)
	if b.Quantity != 10 || b.Available != 10 || b.Warehouse == nil || b.Warehouse.Code != "MAIN" {
		t.Fatalf("unexpected balance: %+v", b)
	}

	w, env = api.do(http.MethodPost, "/api/stock/decrement", map[string]any{"productId": "sku-1", "warehouseId": wh.ID, "quantity": 11})
	if w.Code != http.StatusBadRequest || env.Error.Kind != string(ledger.KindInsufficientStock) {
		t.Fatalf("expected InsufficientStock, got %d %s", w.Code, w.Body.String())
	}

	w, env = api.do(http.MethodPost, "/api/stock/decrement", map[string]any{"productId": "sku-1", "warehouseId": wh.ID, "quantity": 6})
	if w.Code != http.StatusOK {
		t.Fatalf("decrement: %d %s", w.Code, w.Body.String())
	}
	if b := decodeData[balanceJSON](t, env); b.Available != 4 {
		t.Fatalf("expected 4 available, got %+v", b)
	}

	w, env = api.do(http.MethodGet, "/api/stock/sku-1/total", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("total: %d", w.Code)
	}
	if total := decodeData[map[string]any](t, env); total["totalAvailable"] != float64(4) {
		t.Fatalf("unexpected total %v", total)
	}

	w, env = api.do(http.MethodGet, "/api/movements/product/sku-1?limit=1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("movements: %d", w.Code)
	}
	moves := decodeData[[]models.Movement](t, env)
	if len(moves) != 1 || moves[0].Type != models.MovementOut || moves[0].Quantity != -6 {
		t.Fatalf("expected the latest out movement, got %+v", moves)
	}

	w, env = api.do(http.MethodGet, "/api/movements/product/sku-1", nil)
	moves = decodeData[[]models.Movement](t, env)
	if len(moves) != 2 || moves[1].CreatedBy == nil || *moves[1].CreatedBy != "alice" {
		t.Fatalf("expected the actor header on the increment, got %+v", moves)
	}

	want := []models.StockEventType{models.EventStockUpdated, models.EventStockUpdated, models.EventStockLow}
	if got := api.events.types(); len(got) != len(want) || got[2] != want[2] {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestStockEndpointErrors(t *testing.T) {
	api := newTestAPI(t)

	w, env := api.do(http.MethodGet, "/api/stock/sku-1/warehouse/w1", nil)
	if w.Code != http.StatusNotFound || env.Error.Kind != string(ledger.KindNotFound) {
		t.Fatalf("expected NotFound, got %d %s", w.Code, w.Body.String())
	}

	w, env = api.do(http.MethodPost, "/api/stock/increment", map[string]any{"productId": "sku-1", "warehouseId": "w1"})
	if w.Code != http.StatusBadRequest || env.Error.Details["Quantity"] != "required" {
		t.Fatalf("expected a validation failure on quantity, got %d %s", w.Code, w.Body.String())
	}

	w, env = api.do(http.MethodPost, "/api/stock/increment", map[string]any{"productId": "sku-1", "warehouseId": "w1", "quantity": 0})
	if w.Code != http.StatusBadRequest || env.Error.Kind != string(ledger.KindInvalidArgument) {
		t.Fatalf("expected InvalidArgument, got %d %s", w.Code, w.Body.String())
	}

	w, _ = api.do(http.MethodPost, "/api/stock/transfer", map[string]any{"productId": "sku-1", "fromWarehouseId": "w1", "toWarehouseId": "w1", "quantity": 1})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected same-warehouse transfer to fail, got %d", w.Code)
	}

	w, _ = api.do(http.MethodGet, "/api/movements?from=yesterday&to=today", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected a bad range to fail, got %d", w.Code)
	}

	w, env = api.do(http.MethodGet, "/nope", nil)
	if w.Code != http.StatusNotFound || env.Success {
		t.Fatalf("expected the not-found envelope, got %d %s", w.Code, w.Body.String())
	}
}

func TestReservationEndpoints(t *testing.T) {
	api := newTestAPI(t)
	if w, _ := api.do(http.MethodPost, "/api/stock/set", map[string]any{"productId": "sku-1", "warehouseId": "w1", "quantity": 8}); w.Code != http.StatusOK {
		t.Fatalf("set: %d %s", w.Code, w.Body.String())
	}

	w, env := api.do(http.MethodPost, "/api/stock/reserve",
		map[string]any{"productId": "sku-1", "warehouseId": "w1", "quantity": 3, "orderId": "o-1"}, middlewares.HeaderChannel, "web")
	if w.Code != http.StatusOK {
		t.Fatalf("reserve: %d %s", w.Code, w.Body.String())
	}
	if b := decodeData[balanceJSON](t, env); b.Reserved != 3 || b.Available != 5 {
		t.Fatalf("unexpected balance after reserve: %+v", b)
	}

	w, env = api.do(http.MethodGet, "/api/reservations/order/o-1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("order reservations: %d", w.Code)
	}
	type reservationJSON struct {
		ID              string  `json:"id"`
		Remaining       int     `json:"remaining"`
		Channel         *string `json:"channel"`
		EffectiveStatus string  `json:"effectiveStatus"`
	}
	rows := decodeData[[]reservationJSON](t, env)
	if len(rows) != 1 || rows[0].Channel == nil || *rows[0].Channel != "web" || rows[0].EffectiveStatus != "active" {
		t.Fatalf("unexpected reservations: %+v", rows)
	}

	w, env = api.do(http.MethodPost, "/api/stock/fulfill", map[string]any{"productId": "sku-1", "warehouseId": "w1", "quantity": 1, "orderId": "o-1"})
	if w.Code != http.StatusOK {
		t.Fatalf("fulfill: %d %s", w.Code, w.Body.String())
	}
	if b := decodeData[balanceJSON](t, env); b.Quantity != 7 || b.Reserved != 2 || b.Available != 5 {
		t.Fatalf("unexpected balance after fulfill: %+v", b)
	}

	w, env = api.do(http.MethodPost, "/api/reservations/"+rows[0].ID+"/expire", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expire: %d %s", w.Code, w.Body.String())
	}
	expired := decodeData[struct {
		Reservation reservationJSON `json:"reservation"`
		Balance     balanceJSON     `json:"balance"`
	}](t, env)
	if expired.Reservation.EffectiveStatus != "expired" || expired.Balance.Reserved != 0 || expired.Balance.Available != 7 {
		t.Fatalf("unexpected expiry result: %+v", expired)
	}

	w, env = api.do(http.MethodGet, "/api/reservations", nil)
	if w.Code != http.StatusOK || len(decodeData[[]reservationJSON](t, env)) != 0 {
		t.Fatalf("expected no active reservations, got %s", w.Body.String())
	}

	w, env = api.do(http.MethodGet, "/api/movements/replay/sku-1/w1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("replay: %d", w.Code)
	}
	if r := decodeData[ledger.ReplayResult](t, env); !r.Consistent || r.StoredQuantity != 7 {
		t.Fatalf("unexpected replay: %+v", r)
	}
}

func TestWarehouseEndpoints(t *testing.T) {
	api := newTestAPI(t)

	w, env := api.do(http.MethodPost, "/api/warehouses", map[string]any{"name": "A", "code": "A1", "type": "own", "priority": 2})
	if w.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", w.Code, w.Body.String())
	}
	wh := decodeData[models.Warehouse](t, env)

	w, env = api.do(http.MethodPost, "/api/warehouses", map[string]any{"name": "B", "code": "A1", "type": "own"})
	if w.Code != http.StatusConflict || env.Error.Kind != string(ledger.KindConflict) {
		t.Fatalf("expected a code conflict, got %d %s", w.Code, w.Body.String())
	}

	w, env = api.do(http.MethodPost, "/api/warehouses", map[string]any{"name": "C", "code": "C1", "type": "barn"})
	if w.Code != http.StatusBadRequest || env.Error.Details["Type"] != "oneof" {
		t.Fatalf("expected a type validation failure, got %d %s", w.Code, w.Body.String())
	}

	w, env = api.do(http.MethodPut, "/api/warehouses/"+wh.ID, map[string]any{"name": "A2", "code": "A1", "type": "supplier"})
	if w.Code != http.StatusOK || decodeData[models.Warehouse](t, env).Name != "A2" {
		t.Fatalf("update: %d %s", w.Code, w.Body.String())
	}

	if w, _ := api.do(http.MethodDelete, "/api/warehouses/"+wh.ID, nil); w.Code != http.StatusOK {
		t.Fatalf("delete: %d", w.Code)
	}
	w, env = api.do(http.MethodGet, "/api/warehouses", nil)
	if w.Code != http.StatusOK || len(decodeData[[]models.Warehouse](t, env)) != 0 {
		t.Fatalf("expected no active warehouses, got %s", w.Body.String())
	}

	if w, _ := api.do(http.MethodGet, "/api/warehouses/missing", nil); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestMovementExportEndpoint(t *testing.T) {
	api := newTestAPI(t)
	if w, _ := api.do(http.MethodPost, "/api/stock/increment", map[string]any{"productId": "sku-1", "warehouseId": "w1", "quantity": 2}); w.Code != http.StatusOK {
		t.Fatalf("increment: %d", w.Code)
	}
	from := time.Now().Add(-time.Hour).UTC().Format(time.RFC3339)
	to := time.Now().Add(time.Hour).UTC().Format(time.RFC3339)

	w, _ := api.do(http.MethodGet, "/api/movements/export?from="+from+"&to="+to, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("export: %d %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet" {
		t.Fatalf("unexpected content type %q", ct)
	}
	if !bytes.HasPrefix(w.Body.Bytes(), []byte("PK")) {
		t.Fatalf("expected a zip container")
	}
}

func TestBootRouterAndReadiness(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	s := newServer(logger)
	handler := &swapHandler{}
	handler.set(bootRouter(s))

	get := func(path string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		return w
	}

	w := get("/health")
	var health map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &health); err != nil || w.Code != http.StatusOK || health["status"] != "starting" {
		t.Fatalf("unexpected boot health: %d %s", w.Code, w.Body.String())
	}
	if w := get("/api/warehouses"); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 during boot, got %d", w.Code)
	}
	if w.Header().Get(middlewares.HeaderCorrelationId) == "" {
		t.Fatalf("boot router should still tag responses with a correlation id")
	}

	api := newTestAPI(t)
	handler.set(api.router)
	if w := get("/api/warehouses"); w.Code != http.StatusOK {
		t.Fatalf("expected the swapped router to serve, got %d", w.Code)
	}
	api.server.ready.Store(false)
	if w := get("/api/warehouses"); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 while draining, got %d", w.Code)
	}
}

func TestSplitAndTrim(t *testing.T) {
	got := splitAndTrim(" https://a.example , ,https://b.example")
	if len(got) != 2 || got[0] != "https://a.example" || got[1] != "https://b.example" {
		t.Fatalf("unexpected origins %v", got)
	}
}
