package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type MovementType string

const (
	MovementIn         MovementType = "in"
	MovementOut        MovementType = "out"
	MovementTransfer   MovementType = "transfer"
	MovementAdjustment MovementType = "adjustment"
	MovementReserve    MovementType = "reserve"
	MovementUnreserve  MovementType = "unreserve"
)

func (t MovementType) IsValid() bool {
	switch t {
	case MovementIn, MovementOut, MovementTransfer, MovementAdjustment, MovementReserve, MovementUnreserve:
		return true
	}
	return false
}

const DefaultMovementLimit = 50

// Movement is one append-only journal entry.
// Quantity is the signed delta. For reserve/unreserve it applies to the held amount only.
type Movement struct {
	ID              string       `gorm:"type:char(36);primaryKey" json:"id"`
	ProductId       string       `gorm:"size:64;not null;index:idx_stock_movement_product,priority:1" json:"productId"`
	Type            MovementType `gorm:"size:20;not null;index" json:"type"`
	Quantity        int          `gorm:"not null" json:"quantity"`
	FromWarehouseId *string      `gorm:"size:64;index" json:"fromWarehouseId,omitempty"`
	ToWarehouseId   *string      `gorm:"size:64;index" json:"toWarehouseId,omitempty"`
	Reference       *string      `gorm:"size:100;index" json:"reference,omitempty"`
	Reason          *string      `gorm:"size:255" json:"reason,omitempty"`
	CreatedBy       *string      `gorm:"size:100" json:"createdBy,omitempty"`
	CreatedAt       time.Time    `gorm:"not null;index;index:idx_stock_movement_product,priority:2" json:"createdAt"`
}

func (Movement) TableName() string { return "stock_movements" }

var (
	ErrMovementImmutable = errors.New("stock movement is immutable")
	ErrInvalidMovement   = errors.New("invalid stock movement")
)

// QuantityEffect is the change this movement applies to the on-hand quantity
// of the given warehouse. Holds never change on-hand quantity.
func (m *Movement) QuantityEffect(warehouseId string) int {
	switch m.Type {
	case MovementIn, MovementAdjustment:
		if m.ToWarehouseId != nil && *m.ToWarehouseId == warehouseId {
			return m.Quantity
		}
	case MovementOut:
		if m.FromWarehouseId != nil && *m.FromWarehouseId == warehouseId {
			return m.Quantity
		}
	case MovementTransfer:
		effect := 0
		if m.FromWarehouseId != nil && *m.FromWarehouseId == warehouseId {
			effect -= m.Quantity
		}
		if m.ToWarehouseId != nil && *m.ToWarehouseId == warehouseId {
			effect += m.Quantity
		}
		return effect
	}
	return 0
}

// Touches reports whether the movement names the warehouse on either side.
func (m *Movement) Touches(warehouseId string) bool {
	return (m.FromWarehouseId != nil && *m.FromWarehouseId == warehouseId) ||
		(m.ToWarehouseId != nil && *m.ToWarehouseId == warehouseId)
}

func (m *Movement) Validate() error {
	if !m.Type.IsValid() {
		return fmt.Errorf("%w: type %q", ErrInvalidMovement, m.Type)
	}
	if m.ProductId == "" {
		return fmt.Errorf("%w: product id is required", ErrInvalidMovement)
	}
	switch m.Type {
	case MovementIn, MovementReserve:
		if m.Quantity <= 0 {
			return fmt.Errorf("%w: %s requires a positive quantity", ErrInvalidMovement, m.Type)
		}
	case MovementOut:
		if m.Quantity >= 0 {
			return fmt.Errorf("%w: out requires a negative quantity", ErrInvalidMovement)
		}
	case MovementUnreserve:
		if m.Quantity > 0 {
			return fmt.Errorf("%w: unreserve cannot increase the hold", ErrInvalidMovement)
		}
	case MovementTransfer:
		if m.Quantity <= 0 || m.FromWarehouseId == nil || m.ToWarehouseId == nil || *m.FromWarehouseId == *m.ToWarehouseId {
			return fmt.Errorf("%w: transfer requires a positive quantity and two distinct warehouses", ErrInvalidMovement)
		}
	}
	if m.FromWarehouseId == nil && m.ToWarehouseId == nil {
		return fmt.Errorf("%w: a warehouse is required", ErrInvalidMovement)
	}
	return nil
}

func (m *Movement) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	return m.Validate()
}

func (m *Movement) BeforeUpdate(tx *gorm.DB) error {
	return ErrMovementImmutable
}

func (m *Movement) Clone() *Movement {
	c := *m
	c.FromWarehouseId = cloneStr(m.FromWarehouseId)
	c.ToWarehouseId = cloneStr(m.ToWarehouseId)
	c.Reference = cloneStr(m.Reference)
	c.Reason = cloneStr(m.Reason)
	c.CreatedBy = cloneStr(m.CreatedBy)
	return &c
}

func cloneStr(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// StrPtr returns nil for an empty string.
func StrPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
