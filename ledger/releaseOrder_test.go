package ledger

import (
	"testing"
	"time"

	"github.com/mmdatafocus/warehouse_stock/models"
)

func hold(orderId string, remaining int) *models.Reservation {
	return &models.Reservation{OrderId: orderId, Quantity: remaining, Remaining: remaining, Status: models.ReservationActive}
}

func TestReleaseOrder(t *testing.T) {
	now := time.Now()
	cases := []struct {
		name         string
		reserved     int
		holds        []*models.Reservation
		amount       int
		wantReleased int
		wantReserved int
		wantOwn      []int
	}{
		{"exact", 5, []*models.Reservation{hold("A", 5)}, 5, 5, 0, []int{0}},
		{"partial", 5, []*models.Reservation{hold("A", 5)}, 2, 2, 3, []int{3}},
		{"over release clamps", 5, []*models.Reservation{hold("A", 5)}, 50, 5, 0, []int{0}},
		{"oldest first", 7, []*models.Reservation{hold("A", 3), hold("A", 4)}, 5, 5, 2, []int{0, 2}},
		{"others stay covered", 7, []*models.Reservation{hold("A", 3), hold("B", 4)}, 10, 3, 4, []int{0}},
		{"no rows for order", 4, []*models.Reservation{hold("B", 4)}, 3, 0, 4, nil},
		{"untracked aggregate", 6, nil, 2, 2, 4, nil},
		{"aggregate below rows drains excess", 3, []*models.Reservation{hold("A", 5)}, 1, 1, 2, []int{2}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := models.NewBalance("P", "W", 0)
			b.Quantity, b.Reserved = 20, tc.reserved

			released, _ := releaseOrder(b, tc.holds, byOrder("A"), tc.amount, models.ReservationCancelled, now)
			if released != tc.wantReleased {
				t.Fatalf("released: expected %d, got %d", tc.wantReleased, released)
			}
			if b.Reserved != tc.wantReserved {
				t.Fatalf("reserved: expected %d, got %d", tc.wantReserved, b.Reserved)
			}
			i := 0
			for _, r := range tc.holds {
				if r.OrderId != "A" {
					continue
				}
				if r.Remaining != tc.wantOwn[i] {
					t.Fatalf("row %d: expected remaining %d, got %d", i, tc.wantOwn[i], r.Remaining)
				}
				if r.Remaining == 0 && r.Status != models.ReservationCancelled {
					t.Fatalf("row %d: drained row should be cancelled, got %s", i, r.Status)
				}
				i++
			}
			if held := models.SumRemaining(tc.holds); held > b.Reserved {
				t.Fatalf("active rows hold %d above reserved %d", held, b.Reserved)
			}
		})
	}
}

func TestLiveHoldsSkipsLapsedRows(t *testing.T) {
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	past, future := now.Add(-time.Minute), now.Add(time.Minute)
	lapsed := hold("A", 2)
	lapsed.ExpiresAt = &past
	live := hold("A", 3)
	live.ExpiresAt = &future
	other := hold("B", 1)

	b := models.NewBalance("P", "W", 0)
	b.Quantity, b.Reserved = 10, 6

	released, touched := releaseOrder(b, []*models.Reservation{lapsed, live, other}, liveHolds("A", now), 3, models.ReservationFulfilled, now)
	if released != 3 || b.Reserved != 3 {
		t.Fatalf("expected 3 released leaving 3 reserved, got %d and %d", released, b.Reserved)
	}
	if len(touched) != 1 || touched[0] != live {
		t.Fatalf("only the unexpired hold should be drained, got %+v", touched)
	}
	if lapsed.Remaining != 2 || lapsed.Status != models.ReservationActive {
		t.Fatalf("lapsed hold must stay for the expiry sweep, got %+v", lapsed)
	}
	if live.Status != models.ReservationFulfilled {
		t.Fatalf("expected drained hold fulfilled, got %s", live.Status)
	}
}
