package models

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mmdatafocus/warehouse_stock/utils"
	"gorm.io/gorm"
)

type WarehouseType string

const (
	WarehouseTypeOwn      WarehouseType = "own"
	WarehouseTypeSupplier WarehouseType = "supplier"
	WarehouseTypeDropship WarehouseType = "dropship"
)

type Warehouse struct {
	ID           string        `gorm:"type:char(36);primaryKey" json:"id"`
	Name         string        `gorm:"size:200;not null" json:"name"`
	Code         string        `gorm:"size:100;not null;uniqueIndex" json:"code"`
	Type         WarehouseType `gorm:"size:50;not null" json:"type"`
	Address      *string       `gorm:"type:text" json:"address,omitempty"`
	City         *string       `gorm:"size:100" json:"city,omitempty"`
	PostalCode   *string       `gorm:"size:20" json:"postalCode,omitempty"`
	Country      *string       `gorm:"size:2" json:"country,omitempty"`
	ContactEmail *string       `gorm:"size:200" json:"contactEmail,omitempty"`
	ContactPhone *string       `gorm:"size:50" json:"contactPhone,omitempty"`
	SupplierId   *string       `gorm:"size:64" json:"supplierId,omitempty"`
	IsActive     *bool         `gorm:"not null;default:true" json:"isActive"`
	Priority     int           `gorm:"not null;default:0" json:"priority"`
	CreatedAt    time.Time     `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt    time.Time     `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (w *Warehouse) BeforeCreate(tx *gorm.DB) error {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	return nil
}

func (w *Warehouse) Active() bool {
	return w.IsActive != nil && *w.IsActive
}

func (w *Warehouse) Clone() *Warehouse {
	c := *w
	c.Address = cloneStr(w.Address)
	c.City = cloneStr(w.City)
	c.PostalCode = cloneStr(w.PostalCode)
	c.Country = cloneStr(w.Country)
	c.ContactEmail = cloneStr(w.ContactEmail)
	c.ContactPhone = cloneStr(w.ContactPhone)
	c.SupplierId = cloneStr(w.SupplierId)
	if w.IsActive != nil {
		b := *w.IsActive
		c.IsActive = &b
	}
	return &c
}

type NewWarehouse struct {
	Name         string        `json:"name" validate:"required,max=200"`
	Code         string        `json:"code" validate:"required,max=100"`
	Type         WarehouseType `json:"type" validate:"required,oneof=own supplier dropship"`
	Address      string        `json:"address"`
	City         string        `json:"city" validate:"max=100"`
	PostalCode   string        `json:"postalCode" validate:"max=20"`
	Country      string        `json:"country" validate:"omitempty,len=2,alpha"`
	ContactEmail string        `json:"contactEmail" validate:"omitempty,email,max=200"`
	ContactPhone string        `json:"contactPhone" validate:"max=50"`
	SupplierId   string        `json:"supplierId"`
	IsActive     *bool         `json:"isActive"`
	Priority     int           `json:"priority"`
}

var (
	ErrWarehouseNotFound   = errors.New("warehouse not found")
	ErrWarehouseCodeTaken  = errors.New("warehouse code already exists")
	ErrInvalidContactPhone = errors.New("invalid contact phone")
)

// validate input for both create & update. (id = "" for create)
func (input *NewWarehouse) validate(ctx context.Context, repo WarehouseRepository, id string) (string, error) {
	input.Code = strings.TrimSpace(input.Code)
	input.Country = strings.ToUpper(strings.TrimSpace(input.Country))
	if err := utils.ValidateStruct(input); err != nil {
		return "", err
	}
	taken, err := repo.CodeTaken(ctx, input.Code, id)
	if err != nil {
		return "", err
	}
	if taken {
		return "", ErrWarehouseCodeTaken
	}
	// phone is stored in E.164; the warehouse country decides how local numbers parse
	phone, err := utils.NormalizePhoneNumber(input.ContactPhone, input.Country)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidContactPhone, err)
	}
	return phone, nil
}

func (input *NewWarehouse) apply(w *Warehouse, phone string) {
	w.Name = strings.TrimSpace(input.Name)
	w.Code = input.Code
	w.Type = input.Type
	w.Address = StrPtr(input.Address)
	w.City = StrPtr(input.City)
	w.PostalCode = StrPtr(input.PostalCode)
	w.Country = StrPtr(input.Country)
	w.ContactEmail = StrPtr(input.ContactEmail)
	w.ContactPhone = StrPtr(phone)
	w.SupplierId = StrPtr(input.SupplierId)
	w.Priority = input.Priority
	if input.IsActive != nil {
		active := *input.IsActive
		w.IsActive = &active
	}
}

func CreateWarehouse(ctx context.Context, repo WarehouseRepository, input *NewWarehouse) (*Warehouse, error) {
	phone, err := input.validate(ctx, repo, "")
	if err != nil {
		return nil, err
	}
	warehouse := Warehouse{
		ID:       uuid.NewString(),
		IsActive: utils.NewTrue(),
	}
	input.apply(&warehouse, phone)

	if err := repo.Create(ctx, &warehouse); err != nil {
		return nil, err
	}
	return &warehouse, nil
}

func UpdateWarehouse(ctx context.Context, repo WarehouseRepository, id string, input *NewWarehouse) (*Warehouse, error) {
	warehouse, err := repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if warehouse == nil {
		return nil, ErrWarehouseNotFound
	}
	phone, err := input.validate(ctx, repo, id)
	if err != nil {
		return nil, err
	}
	input.apply(warehouse, phone)

	if err := repo.Update(ctx, warehouse); err != nil {
		return nil, err
	}
	// remove cache
	if err := utils.RemoveRedisItem[Warehouse](ctx, id); err != nil {
		return nil, err
	}
	return warehouse, nil
}

// DeleteWarehouse deactivates the warehouse. Rows are kept because balances and movements reference them.
func DeleteWarehouse(ctx context.Context, repo WarehouseRepository, id string) (*Warehouse, error) {
	warehouse, err := repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if warehouse == nil {
		return nil, ErrWarehouseNotFound
	}
	warehouse.IsActive = utils.NewFalse()
	if err := repo.Update(ctx, warehouse); err != nil {
		return nil, err
	}
	if err := utils.RemoveRedisItem[Warehouse](ctx, id); err != nil {
		return nil, err
	}
	return warehouse, nil
}

// GetWarehouse reads through the redis cache.
func GetWarehouse(ctx context.Context, repo WarehouseRepository, id string) (*Warehouse, error) {
	cached, err := utils.RetrieveRedis[Warehouse](ctx, id)
	if err != nil {
		return nil, err
	}
	if cached != nil {
		return cached, nil
	}
	warehouse, err := repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if warehouse == nil {
		return nil, ErrWarehouseNotFound
	}
	if err := utils.StoreRedis(ctx, warehouse, id); err != nil {
		return nil, err
	}
	return warehouse, nil
}

// ListWarehouses returns active warehouses ordered by priority (highest first) then name.
func ListWarehouses(ctx context.Context, repo WarehouseRepository) ([]*Warehouse, error) {
	return repo.ListActive(ctx)
}
