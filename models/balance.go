package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Balance is the authoritative stock position of one product in one warehouse.
type Balance struct {
	ID                string    `gorm:"type:char(36);primaryKey" json:"id"`
	ProductId         string    `gorm:"size:64;not null;uniqueIndex:idx_stock_balance_key,priority:1" json:"productId"`
	WarehouseId       string    `gorm:"size:64;not null;uniqueIndex:idx_stock_balance_key,priority:2;index" json:"warehouseId"`
	Quantity          int       `gorm:"not null" json:"quantity"`
	Reserved          int       `gorm:"not null" json:"reserved"`
	Available         int       `gorm:"not null" json:"available"`
	LowStockThreshold int       `gorm:"not null" json:"lowStockThreshold"`
	Location          *string   `gorm:"size:100" json:"location,omitempty"`
	Version           int       `gorm:"not null" json:"version"`
	CreatedAt         time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (Balance) TableName() string { return "stock_balances" }

var ErrBalanceInvariant = errors.New("balance invariant violated")

func NewBalance(productId, warehouseId string, lowStockThreshold int) *Balance {
	return &Balance{
		ID:                uuid.NewString(),
		ProductId:         productId,
		WarehouseId:       warehouseId,
		LowStockThreshold: lowStockThreshold,
	}
}

// BalanceKey is the serialization key of a (product, warehouse) pair.
func BalanceKey(productId, warehouseId string) string {
	return productId + ":" + warehouseId
}

func (b *Balance) Key() string {
	return BalanceKey(b.ProductId, b.WarehouseId)
}

// Recompute derives Available from Quantity and Reserved.
func (b *Balance) Recompute() {
	b.Available = b.Quantity - b.Reserved
}

func (b *Balance) Check() error {
	if b.Reserved < 0 {
		return fmt.Errorf("%w: reserved=%d", ErrBalanceInvariant, b.Reserved)
	}
	if b.Available != b.Quantity-b.Reserved {
		return fmt.Errorf("%w: available=%d quantity=%d reserved=%d", ErrBalanceInvariant, b.Available, b.Quantity, b.Reserved)
	}
	if b.LowStockThreshold < 0 {
		return fmt.Errorf("%w: lowStockThreshold=%d", ErrBalanceInvariant, b.LowStockThreshold)
	}
	return nil
}

func (b *Balance) Clone() *Balance {
	if b == nil {
		return nil
	}
	c := *b
	if b.Location != nil {
		loc := *b.Location
		c.Location = &loc
	}
	return &c
}

func (b *Balance) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	return nil
}

// BeforeSave refuses to persist a balance whose derived fields disagree.
func (b *Balance) BeforeSave(tx *gorm.DB) error {
	if b == nil {
		return nil
	}
	return b.Check()
}
