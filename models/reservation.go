package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ReservationStatus string

const (
	ReservationActive    ReservationStatus = "active"
	ReservationFulfilled ReservationStatus = "fulfilled"
	ReservationCancelled ReservationStatus = "cancelled"
	ReservationExpired   ReservationStatus = "expired"
)

// Reservation is a hold of stock for one order.
// Quantity is the amount originally held, Remaining is what the hold still covers.
type Reservation struct {
	ID          string            `gorm:"type:char(36);primaryKey" json:"id"`
	ProductId   string            `gorm:"size:64;not null;index:idx_stock_reservation_key,priority:1" json:"productId"`
	WarehouseId string            `gorm:"size:64;not null;index:idx_stock_reservation_key,priority:2" json:"warehouseId"`
	Quantity    int               `gorm:"not null" json:"quantity"`
	Remaining   int               `gorm:"not null" json:"remaining"`
	OrderId     string            `gorm:"size:100;not null;index" json:"orderId"`
	Channel     *string           `gorm:"size:50" json:"channel,omitempty"`
	Status      ReservationStatus `gorm:"size:20;not null;index" json:"status"`
	ExpiresAt   *time.Time        `gorm:"index" json:"expiresAt,omitempty"`
	CreatedAt   time.Time         `gorm:"not null;index" json:"createdAt"`
	UpdatedAt   time.Time         `gorm:"not null" json:"updatedAt"`
}

func (Reservation) TableName() string { return "stock_reservations" }

// IsExpired is the read-time expiry predicate: an active hold whose expiry has passed.
func (r *Reservation) IsExpired(now time.Time) bool {
	return r.Status == ReservationActive && r.ExpiresAt != nil && !r.ExpiresAt.After(now)
}

// EffectiveStatus reports expired for an active hold past its expiry even before a sweep has run.
func (r *Reservation) EffectiveStatus(now time.Time) ReservationStatus {
	if r.IsExpired(now) {
		return ReservationExpired
	}
	return r.Status
}

// Release takes up to amount from the hold and returns what was taken.
// A hold drained to zero moves to the terminal status.
func (r *Reservation) Release(amount int, terminal ReservationStatus, now time.Time) int {
	if r.Status != ReservationActive || amount <= 0 {
		return 0
	}
	taken := amount
	if taken > r.Remaining {
		taken = r.Remaining
	}
	r.Remaining -= taken
	if r.Remaining == 0 {
		r.Status = terminal
	}
	r.UpdatedAt = now
	return taken
}

func (r *Reservation) Clone() *Reservation {
	c := *r
	c.Channel = cloneStr(r.Channel)
	if r.ExpiresAt != nil {
		t := *r.ExpiresAt
		c.ExpiresAt = &t
	}
	return &c
}

func (r *Reservation) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}

// SumRemaining totals the held quantity of active reservations.
func SumRemaining(rows []*Reservation) int {
	total := 0
	for _, r := range rows {
		if r.Status == ReservationActive {
			total += r.Remaining
		}
	}
	return total
}
