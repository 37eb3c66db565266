package models

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore backs the ledger repositories with a relational database.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) DB() *gorm.DB {
	return s.db
}

func (s *GormStore) Repositories() Repositories {
	return gormRepositories(s.db)
}

func (s *GormStore) InTx(ctx context.Context, fn func(repos Repositories) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repos := gormRepositories(tx)
		repos.Locks = &gormAdvisoryLockRepository{db: tx, poll: 25 * time.Millisecond}
		return fn(repos)
	})
}

func (s *GormStore) Warehouses() WarehouseRepository {
	return &gormWarehouseRepository{db: s.db}
}

func gormRepositories(db *gorm.DB) Repositories {
	return Repositories{
		Balances:     &gormBalanceRepository{db: db},
		Movements:    &gormMovementRepository{db: db},
		Reservations: &gormReservationRepository{db: db},
	}
}

type gormBalanceRepository struct {
	db *gorm.DB
}

func (r *gormBalanceRepository) get(ctx context.Context, productId, warehouseId string, lock bool) (*Balance, error) {
	var balance Balance
	q := r.db.WithContext(ctx)
	if lock {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	err := q.Where("product_id = ? AND warehouse_id = ?", productId, warehouseId).Take(&balance).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &balance, nil
}

func (r *gormBalanceRepository) Get(ctx context.Context, productId, warehouseId string) (*Balance, error) {
	return r.get(ctx, productId, warehouseId, false)
}

// GetForUpdate row-locks the balance for the rest of the transaction.
func (r *gormBalanceRepository) GetForUpdate(ctx context.Context, productId, warehouseId string) (*Balance, error) {
	return r.get(ctx, productId, warehouseId, true)
}

func (r *gormBalanceRepository) Create(ctx context.Context, b *Balance) error {
	err := r.db.WithContext(ctx).Create(b).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicateKey
	}
	return err
}

func (r *gormBalanceRepository) Update(ctx context.Context, b *Balance) error {
	prev := b.Version
	b.Version = prev + 1
	res := r.db.WithContext(ctx).Model(b).
		Where("version = ?", prev).
		Select("quantity", "reserved", "available", "low_stock_threshold", "location", "version", "updated_at").
		Updates(b)
	if res.Error != nil {
		b.Version = prev
		return res.Error
	}
	if res.RowsAffected == 0 {
		b.Version = prev
		return ErrVersionConflict
	}
	return nil
}

func (r *gormBalanceRepository) ListByProduct(ctx context.Context, productId string) ([]*Balance, error) {
	var balances []*Balance
	err := r.db.WithContext(ctx).Where("product_id = ?", productId).Order("warehouse_id ASC").Find(&balances).Error
	return balances, err
}

func (r *gormBalanceRepository) ListByWarehouse(ctx context.Context, warehouseId string) ([]*Balance, error) {
	var balances []*Balance
	err := r.db.WithContext(ctx).Where("warehouse_id = ?", warehouseId).Order("product_id ASC").Find(&balances).Error
	return balances, err
}

func (r *gormBalanceRepository) ListAll(ctx context.Context) ([]*Balance, error) {
	var balances []*Balance
	err := r.db.WithContext(ctx).Order("product_id ASC, warehouse_id ASC").Find(&balances).Error
	return balances, err
}

func (r *gormBalanceRepository) SumAvailable(ctx context.Context, productId string) (int, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&Balance{}).
		Select("COALESCE(SUM(available), 0)").
		Where("product_id = ?", productId).
		Scan(&total).Error
	return int(total), err
}

type gormMovementRepository struct {
	db *gorm.DB
}

func (r *gormMovementRepository) Append(ctx context.Context, m *Movement) error {
	return r.db.WithContext(ctx).Create(m).Error
}

func movementLimit(limit int) int {
	if limit <= 0 {
		return DefaultMovementLimit
	}
	return limit
}

func (r *gormMovementRepository) FindByProduct(ctx context.Context, productId string, limit int) ([]*Movement, error) {
	var movements []*Movement
	err := r.db.WithContext(ctx).
		Where("product_id = ?", productId).
		Order("created_at DESC, id DESC").
		Limit(movementLimit(limit)).
		Find(&movements).Error
	return movements, err
}

func (r *gormMovementRepository) FindByWarehouse(ctx context.Context, warehouseId string, limit int) ([]*Movement, error) {
	var movements []*Movement
	err := r.db.WithContext(ctx).
		Where("from_warehouse_id = ? OR to_warehouse_id = ?", warehouseId, warehouseId).
		Order("created_at DESC, id DESC").
		Limit(movementLimit(limit)).
		Find(&movements).Error
	return movements, err
}

func (r *gormMovementRepository) FindByDateRange(ctx context.Context, start, end time.Time) ([]*Movement, error) {
	var movements []*Movement
	err := r.db.WithContext(ctx).
		Where("created_at BETWEEN ? AND ?", start, end).
		Order("created_at DESC, id DESC").
		Find(&movements).Error
	return movements, err
}

func (r *gormMovementRepository) FindByKey(ctx context.Context, productId, warehouseId string) ([]*Movement, error) {
	var movements []*Movement
	err := r.db.WithContext(ctx).
		Where("product_id = ?", productId).
		Where("from_warehouse_id = ? OR to_warehouse_id = ?", warehouseId, warehouseId).
		Order("created_at ASC, id ASC").
		Find(&movements).Error
	return movements, err
}

type gormReservationRepository struct {
	db *gorm.DB
}

func (r *gormReservationRepository) Create(ctx context.Context, res *Reservation) error {
	return r.db.WithContext(ctx).Create(res).Error
}

func (r *gormReservationRepository) Get(ctx context.Context, id string) (*Reservation, error) {
	var res Reservation
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&res).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func (r *gormReservationRepository) Update(ctx context.Context, res *Reservation) error {
	return r.db.WithContext(ctx).Model(res).
		Select("remaining", "status", "expires_at", "updated_at").
		Updates(res).Error
}

func (r *gormReservationRepository) FindByOrder(ctx context.Context, orderId string) ([]*Reservation, error) {
	var rows []*Reservation
	err := r.db.WithContext(ctx).Where("order_id = ?", orderId).Order("created_at DESC, id DESC").Find(&rows).Error
	return rows, err
}

func (r *gormReservationRepository) FindActiveByProduct(ctx context.Context, productId string) ([]*Reservation, error) {
	var rows []*Reservation
	err := r.db.WithContext(ctx).
		Where("product_id = ? AND status = ?", productId, ReservationActive).
		Order("created_at DESC, id DESC").
		Find(&rows).Error
	return rows, err
}

func (r *gormReservationRepository) FindActive(ctx context.Context) ([]*Reservation, error) {
	var rows []*Reservation
	err := r.db.WithContext(ctx).
		Where("status = ?", ReservationActive).
		Order("created_at DESC, id DESC").
		Find(&rows).Error
	return rows, err
}

func (r *gormReservationRepository) FindActiveByKey(ctx context.Context, productId, warehouseId string) ([]*Reservation, error) {
	var rows []*Reservation
	err := r.db.WithContext(ctx).
		Where("product_id = ? AND warehouse_id = ? AND status = ?", productId, warehouseId, ReservationActive).
		Order("created_at ASC, id ASC").
		Find(&rows).Error
	return rows, err
}

func (r *gormReservationRepository) FindExpired(ctx context.Context, now time.Time, limit int) ([]*Reservation, error) {
	var rows []*Reservation
	q := r.db.WithContext(ctx).
		Where("status = ? AND expires_at IS NOT NULL AND expires_at <= ?", ReservationActive, now).
		Order("expires_at ASC, id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&rows).Error
	return rows, err
}

type gormWarehouseRepository struct {
	db *gorm.DB
}

func (r *gormWarehouseRepository) Create(ctx context.Context, w *Warehouse) error {
	return r.db.WithContext(ctx).Create(w).Error
}

func (r *gormWarehouseRepository) Update(ctx context.Context, w *Warehouse) error {
	return r.db.WithContext(ctx).Save(w).Error
}

func (r *gormWarehouseRepository) Get(ctx context.Context, id string) (*Warehouse, error) {
	var w Warehouse
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&w).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (r *gormWarehouseRepository) GetByIds(ctx context.Context, ids []string) ([]*Warehouse, error) {
	var rows []*Warehouse
	if len(ids) == 0 {
		return rows, nil
	}
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error
	return rows, err
}

func (r *gormWarehouseRepository) ListActive(ctx context.Context) ([]*Warehouse, error) {
	var rows []*Warehouse
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("priority DESC, name ASC").
		Find(&rows).Error
	return rows, err
}

func (r *gormWarehouseRepository) CodeTaken(ctx context.Context, code string, exceptId string) (bool, error) {
	var count int64
	q := r.db.WithContext(ctx).Model(&Warehouse{}).Where("code = ?", code)
	if exceptId != "" {
		q = q.Where("id <> ?", exceptId)
	}
	if err := q.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}
