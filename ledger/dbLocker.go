package ledger

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"time"

	"github.com/mmdatafocus/warehouse_stock/config"
	"github.com/mmdatafocus/warehouse_stock/models"
	"github.com/sirupsen/logrus"
)

// TxLocker is implemented by lockers whose locks live on the store
// transaction itself. The engine calls LockTx first thing inside the
// transaction instead of Lock before it.
type TxLocker interface {
	LockTx(ctx context.Context, repos models.Repositories, keys ...string) (unlock func(), err error)
}

var errNoAdvisoryLocks = errors.New("store has no advisory locks")

// DatabaseLocker takes advisory locks in the balance database itself, for
// deployments that run several instances without redis. The locks are taken
// on the mutation's own transaction connection.
type DatabaseLocker struct {
	logger *logrus.Logger
}

func NewDatabaseLocker(logger *logrus.Logger) *DatabaseLocker {
	if logger == nil {
		logger = logrus.New()
	}
	return &DatabaseLocker{logger: logger}
}

// advisoryLockName stays under the 64 character limit of MySQL lock names.
func advisoryLockName(key string) string {
	sum := sha1.Sum([]byte(key))
	return "stock:" + hex.EncodeToString(sum[:])
}

// Lock holds nothing; keys are locked inside the transaction by LockTx.
func (l *DatabaseLocker) Lock(context.Context, ...string) (func(), error) {
	return func() {}, nil
}

func (l *DatabaseLocker) LockTx(ctx context.Context, repos models.Repositories, keys ...string) (func(), error) {
	if repos.Locks == nil {
		return nil, errNoAdvisoryLocks
	}
	ordered := sortedKeys(keys)
	releases := make([]func(context.Context) error, 0, len(ordered))
	names := make([]string, 0, len(ordered))
	unlock := func() {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		for i := len(releases) - 1; i >= 0; i-- {
			if err := releases[i](rctx); err != nil {
				config.LogError(l.logger, moduleName, "DatabaseLocker.Unlock", names[i], nil, err)
			}
		}
	}
	for _, key := range ordered {
		name := advisoryLockName(key)
		release, err := repos.Locks.Acquire(ctx, name)
		if err != nil {
			unlock()
			return nil, err
		}
		releases = append(releases, release)
		names = append(names, name)
	}
	return unlock, nil
}
