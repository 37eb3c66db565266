package ledger

import (
	"context"
	"time"

	"github.com/bsm/redislock"
	"github.com/mmdatafocus/warehouse_stock/config"
	"github.com/sirupsen/logrus"
)

const redisLockPrefix = "lock:stock:"

// RedisLocker serializes a key across every process sharing the redis instance.
type RedisLocker struct {
	client  *redislock.Client
	ttl     time.Duration
	backoff time.Duration
	logger  *logrus.Logger
}

func NewRedisLocker(client *redislock.Client, ttl time.Duration, logger *logrus.Logger) *RedisLocker {
	if ttl <= 0 {
		ttl = 15 * time.Second
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &RedisLocker{client: client, ttl: ttl, backoff: 25 * time.Millisecond, logger: logger}
}

// Lock retries until ctx ends; the mutation timeout bounds the wait.
func (l *RedisLocker) Lock(ctx context.Context, keys ...string) (func(), error) {
	ordered := sortedKeys(keys)
	held := make([]*redislock.Lock, 0, len(ordered))
	unlock := func() {
		rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		for i := len(held) - 1; i >= 0; i-- {
			if err := held[i].Release(rctx); err != nil && err != redislock.ErrLockNotHeld {
				config.LogError(l.logger, moduleName, "RedisLocker.Unlock", held[i].Key(), nil, err)
			}
		}
	}
	for _, key := range ordered {
		lock, err := l.client.Obtain(ctx, redisLockPrefix+key, l.ttl, &redislock.Options{
			RetryStrategy: redislock.LinearBackoff(l.backoff),
		})
		if err != nil {
			unlock()
			return nil, err
		}
		held = append(held, lock)
	}
	return unlock, nil
}
