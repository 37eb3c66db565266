package models

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mmdatafocus/warehouse_stock/utils"
)

// MemoryStore keeps the ledger in process memory. Writes made inside InTx are
// staged and applied on commit after checking every touched balance version,
// so a transaction that raced another one fails with ErrVersionConflict.
type MemoryStore struct {
	mu           sync.RWMutex
	balances     map[string]*Balance
	movements    []*Movement
	reservations map[string]*Reservation
	resOrder     []string
	warehouses   map[string]*Warehouse
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		balances:     map[string]*Balance{},
		reservations: map[string]*Reservation{},
		warehouses:   map[string]*Warehouse{},
	}
}

type stagedBalance struct {
	balance     *Balance
	baseVersion int
	isNew       bool
}

type memTx struct {
	balances     map[string]*stagedBalance
	movements    []*Movement
	reservations map[string]*Reservation
	newRes       []string
}

func newMemTx() *memTx {
	return &memTx{
		balances:     map[string]*stagedBalance{},
		reservations: map[string]*Reservation{},
	}
}

func (s *MemoryStore) Repositories() Repositories {
	return s.repositories(nil)
}

func (s *MemoryStore) repositories(tx *memTx) Repositories {
	return Repositories{
		Balances:     &memBalanceRepository{s: s, tx: tx},
		Movements:    &memMovementRepository{s: s, tx: tx},
		Reservations: &memReservationRepository{s: s, tx: tx},
	}
}

func (s *MemoryStore) InTx(ctx context.Context, fn func(repos Repositories) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tx := newMemTx()
	if err := fn(s.repositories(tx)); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.commit(tx)
}

// autoTx runs a single write outside an explicit transaction.
func (s *MemoryStore) autoTx(fn func(tx *memTx) error) error {
	tx := newMemTx()
	if err := fn(tx); err != nil {
		return err
	}
	return s.commit(tx)
}

func (s *MemoryStore) commit(tx *memTx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, st := range tx.balances {
		current, exists := s.balances[key]
		if st.isNew {
			if exists {
				return ErrDuplicateKey
			}
			continue
		}
		if !exists || current.Version != st.baseVersion {
			return ErrVersionConflict
		}
	}
	for key, st := range tx.balances {
		s.balances[key] = st.balance.Clone()
	}
	for _, m := range tx.movements {
		s.movements = append(s.movements, m.Clone())
	}
	for _, id := range tx.newRes {
		s.resOrder = append(s.resOrder, id)
	}
	for id, r := range tx.reservations {
		s.reservations[id] = r.Clone()
	}
	return nil
}

type memBalanceRepository struct {
	s  *MemoryStore
	tx *memTx
}

func (r *memBalanceRepository) lookup(tx *memTx, key string) (*Balance, bool) {
	if tx != nil {
		if st, ok := tx.balances[key]; ok {
			return st.balance, true
		}
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	b, ok := r.s.balances[key]
	return b, ok
}

func (r *memBalanceRepository) Get(ctx context.Context, productId, warehouseId string) (*Balance, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, ok := r.lookup(r.tx, BalanceKey(productId, warehouseId))
	if !ok {
		return nil, nil
	}
	return b.Clone(), nil
}

// GetForUpdate does not lock; the version check at commit catches lost races.
func (r *memBalanceRepository) GetForUpdate(ctx context.Context, productId, warehouseId string) (*Balance, error) {
	return r.Get(ctx, productId, warehouseId)
}

func (r *memBalanceRepository) Create(ctx context.Context, b *Balance) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := b.Check(); err != nil {
		return err
	}
	create := func(tx *memTx) error {
		key := b.Key()
		if _, ok := r.lookup(tx, key); ok {
			return ErrDuplicateKey
		}
		now := time.Now().UTC()
		if b.CreatedAt.IsZero() {
			b.CreatedAt = now
		}
		b.UpdatedAt = now
		tx.balances[key] = &stagedBalance{balance: b.Clone(), isNew: true}
		return nil
	}
	if r.tx != nil {
		return create(r.tx)
	}
	return r.s.autoTx(create)
}

func (r *memBalanceRepository) Update(ctx context.Context, b *Balance) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := b.Check(); err != nil {
		return err
	}
	update := func(tx *memTx) error {
		key := b.Key()
		current, ok := r.lookup(tx, key)
		if !ok || current.Version != b.Version {
			return ErrVersionConflict
		}
		st, staged := tx.balances[key]
		if !staged {
			st = &stagedBalance{baseVersion: current.Version}
			tx.balances[key] = st
		}
		b.Version++
		b.UpdatedAt = time.Now().UTC()
		st.balance = b.Clone()
		return nil
	}
	if r.tx != nil {
		return update(r.tx)
	}
	return r.s.autoTx(update)
}

func (r *memBalanceRepository) filter(match func(*Balance) bool) []*Balance {
	seen := map[string]bool{}
	var out []*Balance
	if r.tx != nil {
		for key, st := range r.tx.balances {
			seen[key] = true
			if match(st.balance) {
				out = append(out, st.balance.Clone())
			}
		}
	}
	r.s.mu.RLock()
	for key, b := range r.s.balances {
		if seen[key] {
			continue
		}
		if match(b) {
			out = append(out, b.Clone())
		}
	}
	r.s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].ProductId != out[j].ProductId {
			return out[i].ProductId < out[j].ProductId
		}
		return out[i].WarehouseId < out[j].WarehouseId
	})
	return out
}

func (r *memBalanceRepository) ListByProduct(ctx context.Context, productId string) ([]*Balance, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return r.filter(func(b *Balance) bool { return b.ProductId == productId }), nil
}

func (r *memBalanceRepository) ListByWarehouse(ctx context.Context, warehouseId string) ([]*Balance, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return r.filter(func(b *Balance) bool { return b.WarehouseId == warehouseId }), nil
}

func (r *memBalanceRepository) ListAll(ctx context.Context) ([]*Balance, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return r.filter(func(*Balance) bool { return true }), nil
}

func (r *memBalanceRepository) SumAvailable(ctx context.Context, productId string) (int, error) {
	rows, err := r.ListByProduct(ctx, productId)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, b := range rows {
		total += b.Available
	}
	return total, nil
}

type memMovementRepository struct {
	s  *MemoryStore
	tx *memTx
}

func (r *memMovementRepository) Append(ctx context.Context, m *Movement) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := m.BeforeCreate(nil); err != nil {
		return err
	}
	appendFn := func(tx *memTx) error {
		tx.movements = append(tx.movements, m.Clone())
		return nil
	}
	if r.tx != nil {
		return appendFn(r.tx)
	}
	return r.s.autoTx(appendFn)
}

// all returns committed then staged movements in append order.
func (r *memMovementRepository) all() []*Movement {
	r.s.mu.RLock()
	out := make([]*Movement, 0, len(r.s.movements))
	for _, m := range r.s.movements {
		out = append(out, m.Clone())
	}
	r.s.mu.RUnlock()
	if r.tx != nil {
		for _, m := range r.tx.movements {
			out = append(out, m.Clone())
		}
	}
	return out
}

func newestFirst(rows []*Movement, match func(*Movement) bool, limit int) []*Movement {
	var out []*Movement
	for i := len(rows) - 1; i >= 0; i-- {
		if !match(rows[i]) {
			continue
		}
		out = append(out, rows[i])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

func (r *memMovementRepository) FindByProduct(ctx context.Context, productId string, limit int) ([]*Movement, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return newestFirst(r.all(), func(m *Movement) bool { return m.ProductId == productId }, movementLimit(limit)), nil
}

func (r *memMovementRepository) FindByWarehouse(ctx context.Context, warehouseId string, limit int) ([]*Movement, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return newestFirst(r.all(), func(m *Movement) bool { return m.Touches(warehouseId) }, movementLimit(limit)), nil
}

func (r *memMovementRepository) FindByDateRange(ctx context.Context, start, end time.Time) ([]*Movement, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return newestFirst(r.all(), func(m *Movement) bool {
		return !m.CreatedAt.Before(start) && !m.CreatedAt.After(end)
	}, 0), nil
}

func (r *memMovementRepository) FindByKey(ctx context.Context, productId, warehouseId string) ([]*Movement, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []*Movement
	for _, m := range r.all() {
		if m.ProductId == productId && m.Touches(warehouseId) {
			out = append(out, m)
		}
	}
	return out, nil
}

type memReservationRepository struct {
	s  *MemoryStore
	tx *memTx
}

func (r *memReservationRepository) Create(ctx context.Context, res *Reservation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := res.BeforeCreate(nil); err != nil {
		return err
	}
	create := func(tx *memTx) error {
		tx.reservations[res.ID] = res.Clone()
		tx.newRes = append(tx.newRes, res.ID)
		return nil
	}
	if r.tx != nil {
		return create(r.tx)
	}
	return r.s.autoTx(create)
}

func (r *memReservationRepository) lookup(id string) (*Reservation, bool) {
	if r.tx != nil {
		if res, ok := r.tx.reservations[id]; ok {
			return res, true
		}
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	res, ok := r.s.reservations[id]
	return res, ok
}

func (r *memReservationRepository) Get(ctx context.Context, id string) (*Reservation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	res, ok := r.lookup(id)
	if !ok {
		return nil, nil
	}
	return res.Clone(), nil
}

func (r *memReservationRepository) Update(ctx context.Context, res *Reservation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, ok := r.lookup(res.ID); !ok {
		return utils.ErrorRecordNotFound
	}
	update := func(tx *memTx) error {
		tx.reservations[res.ID] = res.Clone()
		return nil
	}
	if r.tx != nil {
		return update(r.tx)
	}
	return r.s.autoTx(update)
}

// ordered returns every reservation in creation order with staged writes applied.
func (r *memReservationRepository) ordered() []*Reservation {
	r.s.mu.RLock()
	ids := append([]string(nil), r.s.resOrder...)
	r.s.mu.RUnlock()
	if r.tx != nil {
		ids = append(ids, r.tx.newRes...)
	}
	out := make([]*Reservation, 0, len(ids))
	for _, id := range ids {
		if res, ok := r.lookup(id); ok {
			out = append(out, res.Clone())
		}
	}
	return out
}

func reversed(rows []*Reservation) []*Reservation {
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
	return rows
}

func (r *memReservationRepository) where(match func(*Reservation) bool) []*Reservation {
	var out []*Reservation
	for _, res := range r.ordered() {
		if match(res) {
			out = append(out, res)
		}
	}
	return out
}

func (r *memReservationRepository) FindByOrder(ctx context.Context, orderId string) ([]*Reservation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return reversed(r.where(func(res *Reservation) bool { return res.OrderId == orderId })), nil
}

func (r *memReservationRepository) FindActiveByProduct(ctx context.Context, productId string) ([]*Reservation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return reversed(r.where(func(res *Reservation) bool {
		return res.ProductId == productId && res.Status == ReservationActive
	})), nil
}

func (r *memReservationRepository) FindActive(ctx context.Context) ([]*Reservation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return reversed(r.where(func(res *Reservation) bool { return res.Status == ReservationActive })), nil
}

func (r *memReservationRepository) FindActiveByKey(ctx context.Context, productId, warehouseId string) ([]*Reservation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return r.where(func(res *Reservation) bool {
		return res.ProductId == productId && res.WarehouseId == warehouseId && res.Status == ReservationActive
	}), nil
}

func (r *memReservationRepository) FindExpired(ctx context.Context, now time.Time, limit int) ([]*Reservation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows := r.where(func(res *Reservation) bool { return res.IsExpired(now) })
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].ExpiresAt.Before(*rows[j].ExpiresAt) })
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

// Warehouses returns the in-memory warehouse directory.
func (s *MemoryStore) Warehouses() WarehouseRepository {
	return &memWarehouseRepository{s: s}
}

type memWarehouseRepository struct {
	s *MemoryStore
}

func (r *memWarehouseRepository) Create(ctx context.Context, w *Warehouse) error {
	if err := w.BeforeCreate(nil); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.warehouses[w.ID]; ok {
		return ErrDuplicateKey
	}
	now := time.Now().UTC()
	w.CreatedAt, w.UpdatedAt = now, now
	r.s.warehouses[w.ID] = w.Clone()
	return nil
}

func (r *memWarehouseRepository) Update(ctx context.Context, w *Warehouse) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.warehouses[w.ID]; !ok {
		return ErrWarehouseNotFound
	}
	w.UpdatedAt = time.Now().UTC()
	r.s.warehouses[w.ID] = w.Clone()
	return nil
}

func (r *memWarehouseRepository) Get(ctx context.Context, id string) (*Warehouse, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	w, ok := r.s.warehouses[id]
	if !ok {
		return nil, nil
	}
	return w.Clone(), nil
}

func (r *memWarehouseRepository) GetByIds(ctx context.Context, ids []string) ([]*Warehouse, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*Warehouse
	for _, id := range ids {
		if w, ok := r.s.warehouses[id]; ok {
			out = append(out, w.Clone())
		}
	}
	return out, nil
}

func (r *memWarehouseRepository) ListActive(ctx context.Context) ([]*Warehouse, error) {
	r.s.mu.RLock()
	var out []*Warehouse
	for _, w := range r.s.warehouses {
		if w.Active() {
			out = append(out, w.Clone())
		}
	}
	r.s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (r *memWarehouseRepository) CodeTaken(ctx context.Context, code string, exceptId string) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for id, w := range r.s.warehouses {
		if id != exceptId && w.Code == code {
			return true, nil
		}
	}
	return false, nil
}
