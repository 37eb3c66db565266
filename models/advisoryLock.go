package models

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	"gorm.io/gorm"
)

// gormAdvisoryLockRepository locks on the transaction's own connection, so a
// mutation never needs a second pooled connection to hold its key lock.
// MySQL GET_LOCK is connection-scoped and released explicitly; Postgres
// transaction-level advisory locks end with the transaction.
type gormAdvisoryLockRepository struct {
	db   *gorm.DB
	poll time.Duration
}

func (r *gormAdvisoryLockRepository) Acquire(ctx context.Context, name string) (func(ctx context.Context) error, error) {
	switch dialect := r.db.Dialector.Name(); dialect {
	case "mysql":
		return r.acquireMySQL(ctx, name)
	case "postgres":
		return r.acquirePostgres(ctx, name)
	default:
		return nil, fmt.Errorf("advisory locks are not supported on %s", dialect)
	}
}

func (r *gormAdvisoryLockRepository) acquireMySQL(ctx context.Context, name string) (func(ctx context.Context) error, error) {
	wait := 1
	if deadline, ok := ctx.Deadline(); ok {
		wait = max(1, int(math.Ceil(time.Until(deadline).Seconds())))
	}
	var got sql.NullInt64
	if err := r.db.WithContext(ctx).Raw("SELECT GET_LOCK(?, ?)", name, wait).Row().Scan(&got); err != nil {
		return nil, err
	}
	if !got.Valid || got.Int64 != 1 {
		return nil, ErrLockNotObtained
	}
	return func(ctx context.Context) error {
		var released sql.NullInt64
		return r.db.WithContext(ctx).Raw("SELECT RELEASE_LOCK(?)", name).Row().Scan(&released)
	}, nil
}

func (r *gormAdvisoryLockRepository) acquirePostgres(ctx context.Context, name string) (func(ctx context.Context) error, error) {
	for {
		var ok bool
		if err := r.db.WithContext(ctx).Raw("SELECT pg_try_advisory_xact_lock(hashtext(?))", name).Row().Scan(&ok); err != nil {
			return nil, err
		}
		if ok {
			return func(context.Context) error { return nil }, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(r.poll):
		}
	}
}
