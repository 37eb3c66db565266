package workflow

import (
	"bytes"
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/mmdatafocus/warehouse_stock/ledger"
	"github.com/mmdatafocus/warehouse_stock/models"
	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newEngine(t *testing.T) (*ledger.Engine, *models.MemoryStore, *clock) {
	t.Helper()
	store := models.NewMemoryStore()
	clk := &clock{now: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}
	engine := ledger.New(store, ledger.Options{
		Logger:                   quietLogger(),
		Now:                      clk.Now,
		DefaultLowStockThreshold: 2,
		RetryBackoff:             time.Millisecond,
	})
	return engine, store, clk
}

func TestReservationExpirerSweepOnce(t *testing.T) {
	ctx := context.Background()
	engine, _, clk := newEngine(t)

	if _, err := engine.Increment(ctx, ledger.StockInput{ProductId: "p1", WarehouseId: "w1", Quantity: 10}); err != nil {
		t.Fatalf("increment: %v", err)
	}
	soon := clk.Now().Add(time.Minute)
	later := clk.Now().Add(time.Hour)
	for _, r := range []ledger.ReservationInput{
		{ProductId: "p1", WarehouseId: "w1", Quantity: 3, OrderId: "o1", ExpiresAt: &soon},
		{ProductId: "p1", WarehouseId: "w1", Quantity: 2, OrderId: "o2", ExpiresAt: &soon},
		{ProductId: "p1", WarehouseId: "w1", Quantity: 1, OrderId: "o3", ExpiresAt: &later},
	} {
		if _, err := engine.Reserve(ctx, r); err != nil {
			t.Fatalf("reserve %s: %v", r.OrderId, err)
		}
	}

	expirer := NewReservationExpirer(engine, quietLogger())
	expirer.BatchSize = 10
	if n, err := expirer.SweepOnce(ctx); err != nil || n != 0 {
		t.Fatalf("nothing is due yet, got %d %v", n, err)
	}

	clk.Advance(2 * time.Minute)
	n, err := expirer.SweepOnce(ctx)
	if err != nil || n != 2 {
		t.Fatalf("expected 2 expired, got %d %v", n, err)
	}
	b, err := engine.GetBalance(ctx, "p1", "w1")
	if err != nil {
		t.Fatalf("get balance: %v", err)
	}
	if b.Quantity != 10 || b.Reserved != 1 || b.Available != 9 {
		t.Fatalf("unexpected balance after sweep: %+v", b)
	}
	if n, _ := expirer.SweepOnce(ctx); n != 0 {
		t.Fatalf("second sweep should find nothing, got %d", n)
	}
	rows, _ := engine.ReservationsByOrder(ctx, "o1")
	if len(rows) != 1 || rows[0].Status != models.ReservationExpired {
		t.Fatalf("expected o1 expired, got %+v", rows)
	}
}

func TestReservationExpirerStopsOnCancel(t *testing.T) {
	engine, _, _ := newEngine(t)
	expirer := NewReservationExpirer(engine, quietLogger())
	expirer.Interval = time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		expirer.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("Run did not return after cancel")
	}
}

func TestReservationExpirerDisabled(t *testing.T) {
	engine, _, _ := newEngine(t)
	expirer := NewReservationExpirer(engine, quietLogger())
	expirer.Interval = 0
	done := make(chan struct{})
	go func() {
		expirer.Run(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("Run with no interval should return immediately")
	}
}

func TestReconcileLedger(t *testing.T) {
	ctx := context.Background()
	engine, store, _ := newEngine(t)

	if _, err := engine.Increment(ctx, ledger.StockInput{ProductId: "p1", WarehouseId: "w1", Quantity: 8}); err != nil {
		t.Fatalf("increment: %v", err)
	}
	if _, err := engine.Transfer(ctx, ledger.TransferInput{ProductId: "p1", FromWarehouseId: "w1", ToWarehouseId: "w2", Quantity: 3}); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if _, err := engine.Reserve(ctx, ledger.ReservationInput{ProductId: "p1", WarehouseId: "w1", Quantity: 2, OrderId: "o1"}); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	reports, err := ReconcileLedger(ctx, store, nil, quietLogger(), "cid-1")
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if len(reports) != 0 {
		t.Fatalf("a consistent ledger reported mismatches: %+v", reports)
	}

	// drift the stored quantity without a journal entry
	b, _ := store.Repositories().Balances.Get(ctx, "p1", "w2")
	b.Quantity += 4
	b.Recompute()
	if err := store.Repositories().Balances.Update(ctx, b); err != nil {
		t.Fatalf("update: %v", err)
	}
	// a hold larger than the reserved amount
	if err := store.Repositories().Reservations.Create(ctx, &models.Reservation{
		ProductId: "p1", WarehouseId: "w1", Quantity: 5, Remaining: 5, OrderId: "ghost",
		Status: models.ReservationActive,
	}); err != nil {
		t.Fatalf("create reservation: %v", err)
	}

	reports, err = ReconcileLedger(ctx, store, nil, quietLogger(), "cid-2")
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if len(reports) != 2 {
		t.Fatalf("expected 2 mismatches, got %+v", reports)
	}
	byCheck := map[string]models.ReconciliationReport{}
	for _, r := range reports {
		byCheck[r.CheckType] = r
		if r.CorrelationId != "cid-2" {
			t.Fatalf("report lost its correlation id: %+v", r)
		}
	}
	replay, ok := byCheck[models.CheckTypeJournalReplay]
	if !ok || replay.WarehouseId != "w2" || replay.Expected != 3 || replay.Actual != 7 {
		t.Fatalf("unexpected replay report: %+v", replay)
	}
	coverage, ok := byCheck[models.CheckTypeReservedCoverage]
	if !ok || coverage.WarehouseId != "w1" || coverage.Expected != 2 || coverage.Actual != 7 {
		t.Fatalf("unexpected coverage report: %+v", coverage)
	}
}

func TestOutboxBackoff(t *testing.T) {
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 5 * time.Second},
		{2, 10 * time.Second},
		{4, 40 * time.Second},
		{20, 10 * time.Minute},
	}
	for _, tc := range cases {
		if got := OutboxBackoff(5*time.Second, tc.attempt); got != tc.want {
			t.Fatalf("attempt %d: expected %s, got %s", tc.attempt, tc.want, got)
		}
	}
}

func TestExportMovementsXLSX(t *testing.T) {
	at := time.Date(2026, 5, 1, 9, 30, 0, 0, time.UTC)
	movements := []*models.Movement{
		{ID: "m1", ProductId: "p1", Type: models.MovementIn, Quantity: 5, ToWarehouseId: models.StrPtr("w1"), CreatedAt: at, CreatedBy: models.StrPtr("alice")},
		{ID: "m2", ProductId: "p1", Type: models.MovementTransfer, Quantity: 2, FromWarehouseId: models.StrPtr("w1"), ToWarehouseId: models.StrPtr("w2"), Reference: models.StrPtr("T-9"), CreatedAt: at},
	}
	data, err := ExportMovementsXLSX(movements)
	if err != nil {
		t.Fatalf("export: %v", err)
	}

	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()
	rows, err := f.GetRows(movementSheet)
	if err != nil {
		t.Fatalf("rows: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected heading plus 2 rows, got %d", len(rows))
	}
	if rows[0][0] != "Id" || rows[0][9] != "CreatedBy" {
		t.Fatalf("unexpected headings: %v", rows[0])
	}
	if rows[1][0] != "m1" || rows[1][1] != "2026-05-01T09:30:00Z" || rows[1][4] != "5" || rows[1][9] != "alice" {
		t.Fatalf("unexpected first row: %v", rows[1])
	}
	if rows[2][3] != "transfer" || rows[2][5] != "w1" || rows[2][6] != "w2" || rows[2][7] != "T-9" {
		t.Fatalf("unexpected second row: %v", rows[2])
	}
}
