package models

import (
	"errors"
	"testing"
)

func TestBalanceCheck(t *testing.T) {
	cases := []struct {
		name    string
		b       Balance
		wantErr bool
	}{
		{"consistent", Balance{Quantity: 10, Reserved: 3, Available: 7}, false},
		{"oversold", Balance{Quantity: 2, Reserved: 5, Available: -3}, false},
		{"negative reserved", Balance{Quantity: 2, Reserved: -1, Available: 3}, true},
		{"stale available", Balance{Quantity: 10, Reserved: 3, Available: 10}, true},
		{"negative threshold", Balance{Quantity: 1, Available: 1, LowStockThreshold: -1}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.b.Check()
			if tc.wantErr {
				if !errors.Is(err, ErrBalanceInvariant) {
					t.Fatalf("expected ErrBalanceInvariant, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestBalanceRecompute(t *testing.T) {
	b := NewBalance("p1", "w1", 5)
	b.Quantity = 12
	b.Reserved = 4
	b.Recompute()
	if b.Available != 8 {
		t.Fatalf("expected available 8, got %d", b.Available)
	}
	if err := b.BeforeSave(nil); err != nil {
		t.Fatalf("BeforeSave: %v", err)
	}
	b.Reserved = 5
	if err := b.BeforeSave(nil); err == nil {
		t.Fatalf("BeforeSave should refuse a stale available")
	}
}

func TestBalanceCloneIsDeep(t *testing.T) {
	b := NewBalance("p1", "w1", 0)
	b.Location = StrPtr("A-01")
	c := b.Clone()
	*c.Location = "B-02"
	c.Quantity = 99
	if *b.Location != "A-01" || b.Quantity != 0 {
		t.Fatalf("clone shares state with the original: %+v", b)
	}
	if (*Balance)(nil).Clone() != nil {
		t.Fatalf("nil clone should be nil")
	}
}

func TestBalanceKey(t *testing.T) {
	b := NewBalance("sku-1", "wh-9", 0)
	if b.Key() != "sku-1:wh-9" || b.Key() != BalanceKey("sku-1", "wh-9") {
		t.Fatalf("unexpected key %q", b.Key())
	}
	if b.ID == "" {
		t.Fatalf("NewBalance should assign an id")
	}
}
