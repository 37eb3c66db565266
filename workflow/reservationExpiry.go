package workflow

import (
	"context"
	"time"

	"github.com/mmdatafocus/warehouse_stock/config"
	"github.com/mmdatafocus/warehouse_stock/ledger"
	"github.com/sirupsen/logrus"
)

// ReservationExpirer releases holds whose expiry has passed.
type ReservationExpirer struct {
	Engine    *ledger.Engine
	Logger    *logrus.Logger
	Interval  time.Duration
	BatchSize int
}

func NewReservationExpirer(engine *ledger.Engine, logger *logrus.Logger) *ReservationExpirer {
	return &ReservationExpirer{
		Engine:    engine,
		Logger:    logger,
		Interval:  config.ReservationSweepInterval(),
		BatchSize: 100,
	}
}

// Run sweeps every Interval until ctx ends. It returns at once when Interval is not positive.
func (x *ReservationExpirer) Run(ctx context.Context) {
	if x.Interval <= 0 {
		return
	}
	ticker := time.NewTicker(x.Interval)
	defer ticker.Stop()
	for {
		if _, err := x.SweepOnce(ctx); err != nil && ctx.Err() == nil {
			config.LogError(x.Logger, "ReservationExpirer", "Run", "sweep", nil, err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// SweepOnce expires one batch of overdue holds and returns how many it released.
// A failure on one reservation is logged and the sweep moves on.
func (x *ReservationExpirer) SweepOnce(ctx context.Context) (int, error) {
	rows, err := x.Engine.ExpiredReservations(ctx, x.BatchSize)
	if err != nil {
		return 0, err
	}
	expired := 0
	for _, r := range rows {
		if ctx.Err() != nil {
			return expired, ctx.Err()
		}
		if _, err := x.Engine.ExpireReservation(ctx, r.ID); err != nil {
			config.LogError(x.Logger, "ReservationExpirer", "SweepOnce", r.ID, logrus.Fields{
				"product_id":   r.ProductId,
				"warehouse_id": r.WarehouseId,
				"order_id":     r.OrderId,
			}, err)
			continue
		}
		expired++
	}
	if expired > 0 && x.Logger != nil {
		x.Logger.WithFields(logrus.Fields{
			"field":   "ReservationExpirer",
			"expired": expired,
		}).Info("expired reservations released")
	}
	return expired, nil
}
