package ledger

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/mmdatafocus/warehouse_stock/config"
	"github.com/mmdatafocus/warehouse_stock/models"
	"github.com/mmdatafocus/warehouse_stock/utils"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const moduleName = "ledger"

// Notifier receives the events of a committed mutation in emission order.
// A returned error is logged and never fails the mutation.
type Notifier interface {
	Notify(ctx context.Context, event models.StockEvent) error
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, models.StockEvent) error { return nil }

type Options struct {
	Logger   *logrus.Logger
	Locker   Locker
	Notifier Notifier
	Now      func() time.Time

	DefaultLowStockThreshold int
	AllowNegativeSet         bool
	ConflictRetries          int
	RetryBackoff             time.Duration
	MutationTimeout          time.Duration
	DefaultReservationTTL    time.Duration
}

// OptionsFromEnv reads the ledger settings from the environment.
func OptionsFromEnv(logger *logrus.Logger, locker Locker, notifier Notifier) Options {
	return Options{
		Logger:                   logger,
		Locker:                   locker,
		Notifier:                 notifier,
		DefaultLowStockThreshold: config.DefaultLowStockThreshold(),
		AllowNegativeSet:         config.AllowNegativeStockSet(),
		ConflictRetries:          config.LedgerConflictRetries(),
		MutationTimeout:          config.LedgerMutationTimeout(),
		DefaultReservationTTL:    config.ReservationDefaultTTL(),
	}
}

// Engine owns the quantity/reserved/available invariant of every balance.
// Each mutation runs under the key lock inside one store transaction:
// read-or-create, validate, write balance, append movement. Notifications
// are evaluated on the committed state afterwards.
type Engine struct {
	store  models.Store
	opts   Options
	tracer trace.Tracer
}

func New(store models.Store, opts Options) *Engine {
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}
	if opts.Locker == nil {
		opts.Locker = NewLocalLocker()
	}
	if opts.Notifier == nil {
		opts.Notifier = nopNotifier{}
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	if opts.ConflictRetries < 0 {
		opts.ConflictRetries = 0
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 20 * time.Millisecond
	}
	if opts.MutationTimeout <= 0 {
		opts.MutationTimeout = 10 * time.Second
	}
	if opts.DefaultLowStockThreshold < 0 {
		opts.DefaultLowStockThreshold = 0
	}
	return &Engine{
		store:  store,
		opts:   opts,
		tracer: otel.Tracer("github.com/mmdatafocus/warehouse_stock/ledger"),
	}
}

type StockInput struct {
	ProductId   string
	WarehouseId string
	Quantity    int
	Reason      string
	Actor       string
}

type ReservationInput struct {
	ProductId   string
	WarehouseId string
	Quantity    int
	OrderId     string
	Channel     string
	ExpiresAt   *time.Time
	Actor       string
}

type TransferInput struct {
	ProductId       string
	FromWarehouseId string
	ToWarehouseId   string
	Quantity        int
	Reason          string
	Actor           string
}

type ConfigureInput struct {
	ProductId         string
	WarehouseId       string
	LowStockThreshold *int
	Location          *string
}

// outcome is what a mutation body hands back: the balances to notify on, in order.
type outcome struct {
	balances []*models.Balance
	// unchanged skips notifications when the body decided there was nothing to do.
	unchanged bool
}

type mutationFunc func(ctx context.Context, repos models.Repositories, now time.Time) (outcome, error)

func (e *Engine) mutate(ctx context.Context, op string, keys []string, fields logrus.Fields, body mutationFunc) ([]*models.Balance, error) {
	ctx, span := e.tracer.Start(ctx, "ledger."+op, trace.WithAttributes(
		attribute.String("ledger.op", op),
		attribute.StringSlice("ledger.keys", keys),
	))
	defer span.End()

	fields["op"] = op
	if cid, ok := utils.GetCorrelationIdFromContext(ctx); ok {
		fields["correlation_id"] = cid
	}

	var (
		out outcome
		err error
	)
	attempts := e.opts.ConflictRetries + 1
	for attempt := 1; attempt <= attempts; attempt++ {
		out, err = e.attempt(ctx, keys, body)
		if err == nil || KindOf(err) != KindConflict || attempt == attempts || ctx.Err() != nil {
			break
		}
		e.opts.Logger.WithFields(fields).WithField("attempt", attempt).Debug("ledger conflict, retrying")
		select {
		case <-ctx.Done():
		case <-time.After(e.opts.RetryBackoff * time.Duration(attempt)):
		}
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if k := KindOf(err); k == KindConflict || k == KindDependencyUnavailable || k == "" {
			config.LogError(e.opts.Logger, moduleName, op, "mutation failed", fields, err)
		}
		return nil, err
	}

	if !out.unchanged {
		e.notify(ctx, out.balances, fields)
	}
	e.opts.Logger.WithFields(fields).Info("stock mutation committed")
	return out.balances, nil
}

func (e *Engine) attempt(ctx context.Context, keys []string, body mutationFunc) (outcome, error) {
	mctx, cancel := context.WithTimeout(ctx, e.opts.MutationTimeout)
	defer cancel()

	txLocker, lockInTx := e.opts.Locker.(TxLocker)
	if !lockInTx {
		unlock, err := e.opts.Locker.Lock(mctx, keys...)
		if err != nil {
			return outcome{}, lockError(err)
		}
		defer unlock()
	}

	var out outcome
	err := e.store.InTx(mctx, func(repos models.Repositories) error {
		if lockInTx {
			unlock, err := txLocker.LockTx(mctx, repos, keys...)
			if err != nil {
				return lockError(err)
			}
			defer unlock()
		}
		var berr error
		out, berr = body(mctx, repos, e.opts.Now())
		return berr
	})
	if err != nil {
		return outcome{}, classifyStoreError(err)
	}
	return out, nil
}

func (e *Engine) notify(ctx context.Context, balances []*models.Balance, fields logrus.Fields) {
	// delivery outlives the caller's request
	nctx := context.WithoutCancel(ctx)
	correlationId, _ := utils.GetCorrelationIdFromContext(ctx)
	now := e.opts.Now()
	for _, b := range balances {
		for _, ev := range EvaluateEvents(b, now) {
			ev.CorrelationId = correlationId
			if err := e.opts.Notifier.Notify(nctx, ev); err != nil {
				config.LogError(e.opts.Logger, moduleName, "notify", string(ev.Type), fields, err)
			}
		}
	}
}

// load reads the balance under the row lock. With create set, an absent key
// yields an unsaved zero balance and isNew=true.
func (e *Engine) load(ctx context.Context, repos models.Repositories, productId, warehouseId string, create bool, now time.Time) (*models.Balance, bool, error) {
	b, err := repos.Balances.GetForUpdate(ctx, productId, warehouseId)
	if err != nil {
		return nil, false, err
	}
	if b != nil {
		return b, false, nil
	}
	if !create {
		return nil, false, notFound(productId, warehouseId)
	}
	b = models.NewBalance(productId, warehouseId, e.opts.DefaultLowStockThreshold)
	b.CreatedAt = now
	return b, true, nil
}

func (e *Engine) save(ctx context.Context, repos models.Repositories, b *models.Balance, isNew bool) error {
	b.Recompute()
	if isNew {
		return repos.Balances.Create(ctx, b)
	}
	return repos.Balances.Update(ctx, b)
}

func (e *Engine) appendMovement(ctx context.Context, repos models.Repositories, m *models.Movement, fields logrus.Fields) error {
	if err := repos.Movements.Append(ctx, m); err != nil {
		// the enclosing transaction rolls the balance write back with it
		config.LogError(e.opts.Logger, moduleName, "appendMovement", "journal append failed", fields, err)
		return err
	}
	return nil
}

func actorOf(ctx context.Context, actor string) *string {
	if actor != "" {
		return &actor
	}
	if a, ok := utils.GetActorFromContext(ctx); ok && a != "" {
		return &a
	}
	return nil
}

func reasonOr(reason, def string) *string {
	if r := strings.TrimSpace(reason); r != "" {
		return &r
	}
	return &def
}

func requireKey(productId, warehouseId string) error {
	if strings.TrimSpace(productId) == "" {
		return invalidArgument("productId is required")
	}
	if strings.TrimSpace(warehouseId) == "" {
		return invalidArgument("warehouseId is required")
	}
	return nil
}

func requirePositive(amount int) error {
	if amount <= 0 {
		return invalidArgument("quantity must be a positive integer, got %d", amount)
	}
	return nil
}

// addQuantity returns current+amount, refusing sums that do not fit in an int.
func addQuantity(current, amount int) (int, error) {
	if (amount > 0 && current > math.MaxInt-amount) || (amount < 0 && current < math.MinInt-amount) {
		return 0, invalidArgument("quantity %d does not fit on a balance of %d", amount, current)
	}
	return current + amount, nil
}

// subQuantity returns a-b, refusing differences that do not fit in an int.
func subQuantity(a, b int) (int, error) {
	if (b > 0 && a < math.MinInt+b) || (b < 0 && a > math.MaxInt+b) {
		return 0, invalidArgument("quantity %d minus %d does not fit in a balance", a, b)
	}
	return a - b, nil
}

func keyFields(productId, warehouseId string) logrus.Fields {
	return logrus.Fields{"product_id": productId, "warehouse_id": warehouseId}
}

func single(balances []*models.Balance) *models.Balance {
	if len(balances) == 0 {
		return nil
	}
	return balances[0]
}

// SetQuantity replaces the on-hand quantity and journals the difference as an adjustment.
func (e *Engine) SetQuantity(ctx context.Context, in StockInput) (*models.Balance, error) {
	if err := requireKey(in.ProductId, in.WarehouseId); err != nil {
		return nil, err
	}
	if in.Quantity < 0 && !e.opts.AllowNegativeSet {
		return nil, invalidArgument("quantity cannot be negative, got %d", in.Quantity)
	}
	fields := keyFields(in.ProductId, in.WarehouseId)
	fields["quantity"] = in.Quantity

	out, err := e.mutate(ctx, "setQuantity", []string{models.BalanceKey(in.ProductId, in.WarehouseId)}, fields,
		func(ctx context.Context, repos models.Repositories, now time.Time) (outcome, error) {
			b, isNew, err := e.load(ctx, repos, in.ProductId, in.WarehouseId, true, now)
			if err != nil {
				return outcome{}, err
			}
			delta, err := subQuantity(in.Quantity, b.Quantity)
			if err != nil {
				return outcome{}, err
			}
			if _, err := subQuantity(in.Quantity, b.Reserved); err != nil {
				return outcome{}, err
			}
			b.Quantity = in.Quantity
			if err := e.save(ctx, repos, b, isNew); err != nil {
				return outcome{}, err
			}
			err = e.appendMovement(ctx, repos, &models.Movement{
				ProductId:     in.ProductId,
				Type:          models.MovementAdjustment,
				Quantity:      delta,
				ToWarehouseId: &in.WarehouseId,
				Reason:        reasonOr(in.Reason, "Stock adjustment"),
				CreatedBy:     actorOf(ctx, in.Actor),
				CreatedAt:     now,
			}, fields)
			return outcome{balances: []*models.Balance{b}}, err
		})
	return single(out), err
}

// Increment adds received stock to the balance, creating it on first use.
func (e *Engine) Increment(ctx context.Context, in StockInput) (*models.Balance, error) {
	if err := requireKey(in.ProductId, in.WarehouseId); err != nil {
		return nil, err
	}
	if err := requirePositive(in.Quantity); err != nil {
		return nil, err
	}
	fields := keyFields(in.ProductId, in.WarehouseId)
	fields["quantity"] = in.Quantity

	out, err := e.mutate(ctx, "increment", []string{models.BalanceKey(in.ProductId, in.WarehouseId)}, fields,
		func(ctx context.Context, repos models.Repositories, now time.Time) (outcome, error) {
			b, isNew, err := e.load(ctx, repos, in.ProductId, in.WarehouseId, true, now)
			if err != nil {
				return outcome{}, err
			}
			if b.Quantity, err = addQuantity(b.Quantity, in.Quantity); err != nil {
				return outcome{}, err
			}
			if err := e.save(ctx, repos, b, isNew); err != nil {
				return outcome{}, err
			}
			err = e.appendMovement(ctx, repos, &models.Movement{
				ProductId:     in.ProductId,
				Type:          models.MovementIn,
				Quantity:      in.Quantity,
				ToWarehouseId: &in.WarehouseId,
				Reason:        reasonOr(in.Reason, "Stock received"),
				CreatedBy:     actorOf(ctx, in.Actor),
				CreatedAt:     now,
			}, fields)
			return outcome{balances: []*models.Balance{b}}, err
		})
	return single(out), err
}

// Decrement ships stock out of an existing balance. It never takes held stock.
func (e *Engine) Decrement(ctx context.Context, in StockInput) (*models.Balance, error) {
	if err := requireKey(in.ProductId, in.WarehouseId); err != nil {
		return nil, err
	}
	if err := requirePositive(in.Quantity); err != nil {
		return nil, err
	}
	fields := keyFields(in.ProductId, in.WarehouseId)
	fields["quantity"] = in.Quantity

	out, err := e.mutate(ctx, "decrement", []string{models.BalanceKey(in.ProductId, in.WarehouseId)}, fields,
		func(ctx context.Context, repos models.Repositories, now time.Time) (outcome, error) {
			b, _, err := e.load(ctx, repos, in.ProductId, in.WarehouseId, false, now)
			if err != nil {
				return outcome{}, err
			}
			if b.Available < in.Quantity {
				return outcome{}, insufficientStock(b.Available, in.Quantity)
			}
			b.Quantity -= in.Quantity
			if err := e.save(ctx, repos, b, false); err != nil {
				return outcome{}, err
			}
			err = e.appendMovement(ctx, repos, &models.Movement{
				ProductId:       in.ProductId,
				Type:            models.MovementOut,
				Quantity:        -in.Quantity,
				FromWarehouseId: &in.WarehouseId,
				Reason:          reasonOr(in.Reason, "Stock shipped"),
				CreatedBy:       actorOf(ctx, in.Actor),
				CreatedAt:       now,
			}, fields)
			return outcome{balances: []*models.Balance{b}}, err
		})
	return single(out), err
}

// Reserve holds available stock for an order and records the hold.
func (e *Engine) Reserve(ctx context.Context, in ReservationInput) (*models.Balance, error) {
	if err := requireKey(in.ProductId, in.WarehouseId); err != nil {
		return nil, err
	}
	if err := requirePositive(in.Quantity); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.OrderId) == "" {
		return nil, invalidArgument("orderId is required")
	}
	fields := keyFields(in.ProductId, in.WarehouseId)
	fields["quantity"] = in.Quantity
	fields["order_id"] = in.OrderId

	out, err := e.mutate(ctx, "reserve", []string{models.BalanceKey(in.ProductId, in.WarehouseId)}, fields,
		func(ctx context.Context, repos models.Repositories, now time.Time) (outcome, error) {
			expiresAt := in.ExpiresAt
			if expiresAt == nil && e.opts.DefaultReservationTTL > 0 {
				t := now.Add(e.opts.DefaultReservationTTL)
				expiresAt = &t
			}
			if expiresAt != nil && !expiresAt.After(now) {
				return outcome{}, invalidArgument("expiresAt must be in the future")
			}

			b, _, err := e.load(ctx, repos, in.ProductId, in.WarehouseId, false, now)
			if err != nil {
				return outcome{}, err
			}
			if b.Available < in.Quantity {
				return outcome{}, insufficientStock(b.Available, in.Quantity)
			}
			b.Reserved += in.Quantity
			if err := e.save(ctx, repos, b, false); err != nil {
				return outcome{}, err
			}
			if err := repos.Reservations.Create(ctx, &models.Reservation{
				ProductId:   in.ProductId,
				WarehouseId: in.WarehouseId,
				Quantity:    in.Quantity,
				Remaining:   in.Quantity,
				OrderId:     in.OrderId,
				Channel:     models.StrPtr(in.Channel),
				Status:      models.ReservationActive,
				ExpiresAt:   expiresAt,
				CreatedAt:   now,
				UpdatedAt:   now,
			}); err != nil {
				return outcome{}, err
			}
			err = e.appendMovement(ctx, repos, &models.Movement{
				ProductId:     in.ProductId,
				Type:          models.MovementReserve,
				Quantity:      in.Quantity,
				ToWarehouseId: &in.WarehouseId,
				Reference:     &in.OrderId,
				Reason:        reasonOr("", fmt.Sprintf("Reserved for order %s", in.OrderId)),
				CreatedBy:     actorOf(ctx, in.Actor),
				CreatedAt:     now,
			}, fields)
			return outcome{balances: []*models.Balance{b}}, err
		})
	return single(out), err
}

// byOrder selects every active hold of the order.
func byOrder(orderId string) func(*models.Reservation) bool {
	return func(r *models.Reservation) bool { return r.OrderId == orderId }
}

// liveHolds selects the order's holds that have not passed their expiry.
// Lapsed holds stay on the aggregate until they are expired.
func liveHolds(orderId string, now time.Time) func(*models.Reservation) bool {
	return func(r *models.Reservation) bool { return r.OrderId == orderId && !r.IsExpired(now) }
}

// releaseOrder takes up to amount of the selected holds off the aggregate.
// Every other active hold stays covered, and the selected rows are drained
// oldest first so the active rows never sum above reserved.
func releaseOrder(b *models.Balance, active []*models.Reservation, owns func(*models.Reservation) bool, amount int, terminal models.ReservationStatus, now time.Time) (released int, touched []*models.Reservation) {
	var own []*models.Reservation
	othersHeld := 0
	for _, r := range active {
		if owns(r) {
			own = append(own, r)
		} else {
			othersHeld += r.Remaining
		}
	}
	ownHeld := models.SumRemaining(own)

	releasable := b.Reserved - othersHeld
	if releasable < 0 {
		releasable = 0
	}
	released = min(amount, releasable)
	b.Reserved -= released

	capacity := b.Reserved - othersHeld
	if capacity < 0 {
		capacity = 0
	}
	drain := max(released, ownHeld-capacity)
	for _, r := range own {
		if drain <= 0 {
			break
		}
		if taken := r.Release(drain, terminal, now); taken > 0 {
			drain -= taken
			touched = append(touched, r)
		}
	}
	return released, touched
}

// Unreserve releases an order's hold. Releasing more than is held clamps at zero.
func (e *Engine) Unreserve(ctx context.Context, in ReservationInput) (*models.Balance, error) {
	if err := requireKey(in.ProductId, in.WarehouseId); err != nil {
		return nil, err
	}
	if err := requirePositive(in.Quantity); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.OrderId) == "" {
		return nil, invalidArgument("orderId is required")
	}
	fields := keyFields(in.ProductId, in.WarehouseId)
	fields["quantity"] = in.Quantity
	fields["order_id"] = in.OrderId

	out, err := e.mutate(ctx, "unreserve", []string{models.BalanceKey(in.ProductId, in.WarehouseId)}, fields,
		func(ctx context.Context, repos models.Repositories, now time.Time) (outcome, error) {
			b, _, err := e.load(ctx, repos, in.ProductId, in.WarehouseId, false, now)
			if err != nil {
				return outcome{}, err
			}
			active, err := repos.Reservations.FindActiveByKey(ctx, in.ProductId, in.WarehouseId)
			if err != nil {
				return outcome{}, err
			}
			released, touched := releaseOrder(b, active, byOrder(in.OrderId), in.Quantity, models.ReservationCancelled, now)
			if err := e.save(ctx, repos, b, false); err != nil {
				return outcome{}, err
			}
			for _, r := range touched {
				if err := repos.Reservations.Update(ctx, r); err != nil {
					return outcome{}, err
				}
			}
			err = e.appendMovement(ctx, repos, &models.Movement{
				ProductId:     in.ProductId,
				Type:          models.MovementUnreserve,
				Quantity:      -released,
				ToWarehouseId: &in.WarehouseId,
				Reference:     &in.OrderId,
				Reason:        reasonOr("", fmt.Sprintf("Released reservation for order %s", in.OrderId)),
				CreatedBy:     actorOf(ctx, in.Actor),
				CreatedAt:     now,
			}, fields)
			return outcome{balances: []*models.Balance{b}}, err
		})
	return single(out), err
}

// Fulfill ships stock an order is holding: the hold is released and the
// same amount leaves on-hand quantity.
func (e *Engine) Fulfill(ctx context.Context, in ReservationInput) (*models.Balance, error) {
	if err := requireKey(in.ProductId, in.WarehouseId); err != nil {
		return nil, err
	}
	if err := requirePositive(in.Quantity); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.OrderId) == "" {
		return nil, invalidArgument("orderId is required")
	}
	fields := keyFields(in.ProductId, in.WarehouseId)
	fields["quantity"] = in.Quantity
	fields["order_id"] = in.OrderId

	out, err := e.mutate(ctx, "fulfill", []string{models.BalanceKey(in.ProductId, in.WarehouseId)}, fields,
		func(ctx context.Context, repos models.Repositories, now time.Time) (outcome, error) {
			b, _, err := e.load(ctx, repos, in.ProductId, in.WarehouseId, false, now)
			if err != nil {
				return outcome{}, err
			}
			active, err := repos.Reservations.FindActiveByKey(ctx, in.ProductId, in.WarehouseId)
			if err != nil {
				return outcome{}, err
			}
			live := liveHolds(in.OrderId, now)
			held := 0
			for _, r := range active {
				if live(r) {
					held += r.Remaining
				}
			}
			if held < in.Quantity {
				return outcome{}, newError(KindInsufficientStock, nil, "order %s holds %d unexpired, requested %d", in.OrderId, held, in.Quantity)
			}
			released, touched := releaseOrder(b, active, live, in.Quantity, models.ReservationFulfilled, now)
			if released != in.Quantity {
				return outcome{}, newError(KindConflict, nil, "reserved aggregate below order hold for %s", in.OrderId)
			}
			b.Quantity -= released
			if err := e.save(ctx, repos, b, false); err != nil {
				return outcome{}, err
			}
			for _, r := range touched {
				if err := repos.Reservations.Update(ctx, r); err != nil {
					return outcome{}, err
				}
			}
			actor := actorOf(ctx, in.Actor)
			if err := e.appendMovement(ctx, repos, &models.Movement{
				ProductId:     in.ProductId,
				Type:          models.MovementUnreserve,
				Quantity:      -released,
				ToWarehouseId: &in.WarehouseId,
				Reference:     &in.OrderId,
				Reason:        reasonOr("", fmt.Sprintf("Fulfilled reservation for order %s", in.OrderId)),
				CreatedBy:     actor,
				CreatedAt:     now,
			}, fields); err != nil {
				return outcome{}, err
			}
			err = e.appendMovement(ctx, repos, &models.Movement{
				ProductId:       in.ProductId,
				Type:            models.MovementOut,
				Quantity:        -released,
				FromWarehouseId: &in.WarehouseId,
				Reference:       &in.OrderId,
				Reason:          reasonOr("", fmt.Sprintf("Shipped for order %s", in.OrderId)),
				CreatedBy:       actor,
				CreatedAt:       now,
			}, fields)
			return outcome{balances: []*models.Balance{b}}, err
		})
	return single(out), err
}

// Transfer moves available stock between two warehouses as one journal entry.
// It returns the source balance then the destination balance.
func (e *Engine) Transfer(ctx context.Context, in TransferInput) ([]*models.Balance, error) {
	if err := requireKey(in.ProductId, in.FromWarehouseId); err != nil {
		return nil, err
	}
	if err := requireKey(in.ProductId, in.ToWarehouseId); err != nil {
		return nil, err
	}
	if in.FromWarehouseId == in.ToWarehouseId {
		return nil, invalidArgument("source and destination warehouse must differ")
	}
	if err := requirePositive(in.Quantity); err != nil {
		return nil, err
	}
	fields := logrus.Fields{
		"product_id":      in.ProductId,
		"warehouse_id":    in.FromWarehouseId,
		"to_warehouse_id": in.ToWarehouseId,
		"quantity":        in.Quantity,
	}
	keys := []string{
		models.BalanceKey(in.ProductId, in.FromWarehouseId),
		models.BalanceKey(in.ProductId, in.ToWarehouseId),
	}

	return e.mutate(ctx, "transfer", keys, fields,
		func(ctx context.Context, repos models.Repositories, now time.Time) (outcome, error) {
			src, _, err := e.load(ctx, repos, in.ProductId, in.FromWarehouseId, false, now)
			if err != nil {
				return outcome{}, err
			}
			if src.Available < in.Quantity {
				return outcome{}, insufficientStock(src.Available, in.Quantity)
			}
			dst, dstNew, err := e.load(ctx, repos, in.ProductId, in.ToWarehouseId, true, now)
			if err != nil {
				return outcome{}, err
			}
			if dst.Quantity, err = addQuantity(dst.Quantity, in.Quantity); err != nil {
				return outcome{}, err
			}
			src.Quantity -= in.Quantity
			if err := e.save(ctx, repos, src, false); err != nil {
				return outcome{}, err
			}
			if err := e.save(ctx, repos, dst, dstNew); err != nil {
				return outcome{}, err
			}
			err = e.appendMovement(ctx, repos, &models.Movement{
				ProductId:       in.ProductId,
				Type:            models.MovementTransfer,
				Quantity:        in.Quantity,
				FromWarehouseId: &in.FromWarehouseId,
				ToWarehouseId:   &in.ToWarehouseId,
				Reason:          reasonOr(in.Reason, "Stock transferred"),
				CreatedBy:       actorOf(ctx, in.Actor),
				CreatedAt:       now,
			}, fields)
			return outcome{balances: []*models.Balance{src, dst}}, err
		})
}

// ExpireReservation returns a reservation's remaining hold to available stock.
// A reservation that is no longer active is left alone.
func (e *Engine) ExpireReservation(ctx context.Context, reservationId string) (*models.Balance, error) {
	if strings.TrimSpace(reservationId) == "" {
		return nil, invalidArgument("reservation id is required")
	}
	res, err := e.store.Repositories().Reservations.Get(ctx, reservationId)
	if err != nil {
		return nil, classifyStoreError(err)
	}
	if res == nil {
		return nil, newError(KindNotFound, nil, "reservation %s not found", reservationId)
	}
	fields := keyFields(res.ProductId, res.WarehouseId)
	fields["reservation_id"] = reservationId
	fields["order_id"] = res.OrderId

	out, err := e.mutate(ctx, "expireReservation", []string{models.BalanceKey(res.ProductId, res.WarehouseId)}, fields,
		func(ctx context.Context, repos models.Repositories, now time.Time) (outcome, error) {
			current, err := repos.Reservations.Get(ctx, reservationId)
			if err != nil {
				return outcome{}, err
			}
			b, _, err := e.load(ctx, repos, res.ProductId, res.WarehouseId, false, now)
			if err != nil {
				return outcome{}, err
			}
			if current == nil || current.Status != models.ReservationActive {
				return outcome{balances: []*models.Balance{b}, unchanged: true}, nil
			}
			released := min(current.Remaining, b.Reserved)
			current.Release(current.Remaining, models.ReservationExpired, now)
			b.Reserved -= released
			if err := e.save(ctx, repos, b, false); err != nil {
				return outcome{}, err
			}
			if err := repos.Reservations.Update(ctx, current); err != nil {
				return outcome{}, err
			}
			err = e.appendMovement(ctx, repos, &models.Movement{
				ProductId:     current.ProductId,
				Type:          models.MovementUnreserve,
				Quantity:      -released,
				ToWarehouseId: &current.WarehouseId,
				Reference:     &current.OrderId,
				Reason:        reasonOr("", fmt.Sprintf("Reservation expired for order %s", current.OrderId)),
				CreatedAt:     now,
			}, fields)
			return outcome{balances: []*models.Balance{b}}, err
		})
	return single(out), err
}

// Configure changes the low-stock threshold or location label of an existing balance.
func (e *Engine) Configure(ctx context.Context, in ConfigureInput) (*models.Balance, error) {
	if err := requireKey(in.ProductId, in.WarehouseId); err != nil {
		return nil, err
	}
	if in.LowStockThreshold != nil && *in.LowStockThreshold < 0 {
		return nil, invalidArgument("lowStockThreshold cannot be negative")
	}
	fields := keyFields(in.ProductId, in.WarehouseId)

	out, err := e.mutate(ctx, "configure", []string{models.BalanceKey(in.ProductId, in.WarehouseId)}, fields,
		func(ctx context.Context, repos models.Repositories, now time.Time) (outcome, error) {
			b, _, err := e.load(ctx, repos, in.ProductId, in.WarehouseId, false, now)
			if err != nil {
				return outcome{}, err
			}
			if in.LowStockThreshold != nil {
				b.LowStockThreshold = *in.LowStockThreshold
			}
			if in.Location != nil {
				b.Location = models.StrPtr(strings.TrimSpace(*in.Location))
			}
			if err := e.save(ctx, repos, b, false); err != nil {
				return outcome{}, err
			}
			return outcome{balances: []*models.Balance{b}}, nil
		})
	return single(out), err
}
