package models

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrVersionConflict reports an optimistic balance update that lost a race.
	ErrVersionConflict = errors.New("balance version conflict")
	// ErrDuplicateKey reports a second balance row for an existing key.
	ErrDuplicateKey = errors.New("duplicate key")
	// ErrLockNotObtained reports an advisory lock still held elsewhere when the wait ran out.
	ErrLockNotObtained = errors.New("advisory lock not obtained")
)

// BalanceRepository stores one Balance per (product, warehouse).
// Get and GetForUpdate return (nil, nil) when the key has no row.
type BalanceRepository interface {
	Get(ctx context.Context, productId, warehouseId string) (*Balance, error)
	GetForUpdate(ctx context.Context, productId, warehouseId string) (*Balance, error)
	Create(ctx context.Context, b *Balance) error
	// Update writes b when its Version still matches storage and bumps Version.
	Update(ctx context.Context, b *Balance) error
	ListByProduct(ctx context.Context, productId string) ([]*Balance, error)
	ListByWarehouse(ctx context.Context, warehouseId string) ([]*Balance, error)
	ListAll(ctx context.Context) ([]*Balance, error)
	SumAvailable(ctx context.Context, productId string) (int, error)
}

// MovementRepository is the append-only journal.
type MovementRepository interface {
	Append(ctx context.Context, m *Movement) error
	// FindByProduct and FindByWarehouse return newest first.
	FindByProduct(ctx context.Context, productId string, limit int) ([]*Movement, error)
	FindByWarehouse(ctx context.Context, warehouseId string, limit int) ([]*Movement, error)
	FindByDateRange(ctx context.Context, start, end time.Time) ([]*Movement, error)
	// FindByKey returns every movement of the product touching the warehouse, oldest first.
	FindByKey(ctx context.Context, productId, warehouseId string) ([]*Movement, error)
}

type ReservationRepository interface {
	Create(ctx context.Context, r *Reservation) error
	Get(ctx context.Context, id string) (*Reservation, error)
	Update(ctx context.Context, r *Reservation) error
	FindByOrder(ctx context.Context, orderId string) ([]*Reservation, error)
	FindActiveByProduct(ctx context.Context, productId string) ([]*Reservation, error)
	FindActive(ctx context.Context) ([]*Reservation, error)
	// FindActiveByKey returns the active holds of one balance, oldest first.
	FindActiveByKey(ctx context.Context, productId, warehouseId string) ([]*Reservation, error)
	FindExpired(ctx context.Context, now time.Time, limit int) ([]*Reservation, error)
}

type WarehouseRepository interface {
	Create(ctx context.Context, w *Warehouse) error
	Update(ctx context.Context, w *Warehouse) error
	Get(ctx context.Context, id string) (*Warehouse, error)
	GetByIds(ctx context.Context, ids []string) ([]*Warehouse, error)
	ListActive(ctx context.Context) ([]*Warehouse, error)
	CodeTaken(ctx context.Context, code string, exceptId string) (bool, error)
}

// AdvisoryLockRepository takes named locks on the connection of the
// transaction it is bound to. release must run before the transaction ends.
type AdvisoryLockRepository interface {
	Acquire(ctx context.Context, name string) (release func(ctx context.Context) error, err error)
}

// Repositories groups the stores one mutation writes to.
// Locks is nil when the store has no advisory locks.
type Repositories struct {
	Balances     BalanceRepository
	Movements    MovementRepository
	Reservations ReservationRepository
	Locks        AdvisoryLockRepository
}

// Store hands out repositories, optionally bound to a single transaction.
type Store interface {
	Repositories() Repositories
	// InTx runs fn against repositories that commit together or not at all.
	InTx(ctx context.Context, fn func(repos Repositories) error) error
}
