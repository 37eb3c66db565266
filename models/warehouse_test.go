package models

import (
	"context"
	"errors"
	"testing"

	"github.com/go-playground/validator/v10"
)

func TestCreateWarehouse(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryStore().Warehouses()

	w, err := CreateWarehouse(ctx, repo, &NewWarehouse{
		Name:         " Yangon Main ",
		Code:         " YGN-01 ",
		Type:         WarehouseTypeOwn,
		Country:      "us",
		ContactPhone: "(650) 253-0000",
		Priority:     3,
	})
	if err != nil {
		t.Fatalf("CreateWarehouse: %v", err)
	}
	if w.Name != "Yangon Main" || w.Code != "YGN-01" {
		t.Fatalf("expected trimmed name and code, got %q %q", w.Name, w.Code)
	}
	if w.Country == nil || *w.Country != "US" {
		t.Fatalf("expected upper-cased country, got %v", w.Country)
	}
	if w.ContactPhone == nil || *w.ContactPhone != "+16502530000" {
		t.Fatalf("expected E.164 phone, got %v", w.ContactPhone)
	}
	if !w.Active() || w.Address != nil {
		t.Fatalf("unexpected defaults: %+v", w)
	}

	_, err = CreateWarehouse(ctx, repo, &NewWarehouse{Name: "Other", Code: "YGN-01", Type: WarehouseTypeOwn})
	if !errors.Is(err, ErrWarehouseCodeTaken) {
		t.Fatalf("expected ErrWarehouseCodeTaken, got %v", err)
	}
}

func TestCreateWarehouseValidation(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryStore().Warehouses()

	_, err := CreateWarehouse(ctx, repo, &NewWarehouse{Code: "X", Type: "shed"})
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("expected validation errors, got %v", err)
	}
	if len(verrs) != 2 {
		t.Fatalf("expected name and type to fail, got %v", verrs)
	}

	_, err = CreateWarehouse(ctx, repo, &NewWarehouse{Name: "A", Code: "A", Type: WarehouseTypeOwn, Country: "US", ContactPhone: "12345"})
	if !errors.Is(err, ErrInvalidContactPhone) {
		t.Fatalf("expected ErrInvalidContactPhone, got %v", err)
	}
}

func TestWarehouseLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryStore().Warehouses()

	low, err := CreateWarehouse(ctx, repo, &NewWarehouse{Name: "B", Code: "B", Type: WarehouseTypeSupplier, Priority: 1})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	high, err := CreateWarehouse(ctx, repo, &NewWarehouse{Name: "A", Code: "A", Type: WarehouseTypeOwn, Priority: 5})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	list, _ := ListWarehouses(ctx, repo)
	if len(list) != 2 || list[0].ID != high.ID {
		t.Fatalf("expected highest priority first, got %+v", list)
	}

	updated, err := UpdateWarehouse(ctx, repo, low.ID, &NewWarehouse{Name: "B2", Code: "B", Type: WarehouseTypeSupplier, Priority: 9})
	if err != nil {
		t.Fatalf("update keeping its own code: %v", err)
	}
	if updated.Name != "B2" || updated.Priority != 9 {
		t.Fatalf("update not applied: %+v", updated)
	}

	got, err := GetWarehouse(ctx, repo, low.ID)
	if err != nil || got.Name != "B2" {
		t.Fatalf("GetWarehouse: %v %+v", err, got)
	}

	if _, err := DeleteWarehouse(ctx, repo, high.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	list, _ = ListWarehouses(ctx, repo)
	if len(list) != 1 || list[0].ID != low.ID {
		t.Fatalf("deactivated warehouse still listed: %+v", list)
	}
	// deactivated rows still resolve by id
	if w, _ := GetWarehouse(ctx, repo, high.ID); w == nil || w.Active() {
		t.Fatalf("expected inactive warehouse, got %+v", w)
	}

	if _, err := GetWarehouse(ctx, repo, "nope"); !errors.Is(err, ErrWarehouseNotFound) {
		t.Fatalf("expected ErrWarehouseNotFound, got %v", err)
	}
	if _, err := UpdateWarehouse(ctx, repo, "nope", &NewWarehouse{Name: "x", Code: "x", Type: WarehouseTypeOwn}); !errors.Is(err, ErrWarehouseNotFound) {
		t.Fatalf("expected ErrWarehouseNotFound, got %v", err)
	}
}
