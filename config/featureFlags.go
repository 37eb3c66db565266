package config

import (
	"os"
	"strings"
	"time"
)

const (
	NotifierPubSub = "pubsub"
	NotifierRedis  = "redis"
	NotifierOutbox = "outbox"
	NotifierLog    = "log"

	LockLocal    = "local"
	LockRedis    = "redis"
	LockDatabase = "database"
)

// AllowNegativeStockSet lets an absolute set drive quantity below zero.
//
// Set via env:
// - ALLOW_NEGATIVE_STOCK_SET=true
func AllowNegativeStockSet() bool {
	return boolFromEnv("ALLOW_NEGATIVE_STOCK_SET", false)
}

// DefaultLowStockThreshold applies to balances created lazily by a mutation.
func DefaultLowStockThreshold() int {
	n := intFromEnv("LOW_STOCK_THRESHOLD_DEFAULT", 5)
	if n < 0 {
		return 5
	}
	return n
}

// NotifierTransport selects where stock events are published: pubsub, redis, outbox or log.
func NotifierTransport() string {
	switch v := strings.ToLower(strings.TrimSpace(os.Getenv("NOTIFIER_TRANSPORT"))); v {
	case NotifierPubSub, NotifierRedis, NotifierOutbox:
		return v
	default:
		return NotifierLog
	}
}

// LedgerLockBackend selects the per-key serialization mechanism: local, redis or database.
func LedgerLockBackend() string {
	switch v := strings.ToLower(strings.TrimSpace(os.Getenv("LEDGER_LOCK_BACKEND"))); v {
	case LockRedis, LockDatabase:
		return v
	default:
		return LockLocal
	}
}

func LedgerLockTTL() time.Duration {
	return time.Duration(intFromEnv("LEDGER_LOCK_TTL_SECONDS", 15)) * time.Second
}

func LedgerConflictRetries() int {
	n := intFromEnv("LEDGER_CONFLICT_RETRIES", 3)
	if n < 0 {
		return 0
	}
	return n
}

func LedgerMutationTimeout() time.Duration {
	n := intFromEnv("LEDGER_MUTATION_TIMEOUT_SECONDS", 10)
	if n <= 0 {
		n = 10
	}
	return time.Duration(n) * time.Second
}

// ReservationDefaultTTL is applied when a reserve call carries no expiry. Zero disables it.
func ReservationDefaultTTL() time.Duration {
	return time.Duration(intFromEnv("RESERVATION_DEFAULT_TTL_MINUTES", 0)) * time.Minute
}

// ReservationSweepInterval is how often the service expires lapsed holds. Zero or less disables the sweeper.
func ReservationSweepInterval() time.Duration {
	n := intFromEnv("RESERVATION_SWEEP_INTERVAL_SECONDS", 60)
	if n <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second
}

func SkipMigrations() bool {
	return boolFromEnv("SKIP_MIGRATIONS", false)
}

func PubSubTopicPrefix() string {
	return strings.TrimSpace(os.Getenv("PUBSUB_TOPIC_PREFIX"))
}

func PubSubCreateTopics() bool {
	return boolFromEnv("PUBSUB_CREATE_TOPICS", false)
}

func Environment() string {
	return envOrDefault("GO_ENV", "development")
}

func ServiceName() string {
	return envOrDefault("SERVICE_NAME", "warehouse-microservice")
}

// RedisConfigured reports whether REDIS_ADDRESS names a redis instance to connect to.
func RedisConfigured() bool {
	return strings.TrimSpace(os.Getenv("REDIS_ADDRESS")) != ""
}

// OutboxRelayTransport is the broker the outbox dispatcher relays to: pubsub, redis or log.
func OutboxRelayTransport() string {
	switch v := strings.ToLower(strings.TrimSpace(os.Getenv("OUTBOX_RELAY_TRANSPORT"))); v {
	case NotifierRedis, NotifierLog:
		return v
	default:
		return NotifierPubSub
	}
}

func NotifierQueueSize() int {
	return intFromEnv("NOTIFIER_QUEUE_SIZE", 1024)
}

// RateLimit returns the per-client request budget when RATE_LIMIT_ENABLED is set.
func RateLimit() (enabled bool, limit int64, window time.Duration) {
	limit = int64(intFromEnv("RATE_LIMIT_MAX_REQUESTS", 600))
	if limit <= 0 {
		limit = 600
	}
	seconds := intFromEnv("RATE_LIMIT_WINDOW_SECONDS", 60)
	if seconds <= 0 {
		seconds = 60
	}
	return boolFromEnv("RATE_LIMIT_ENABLED", false), limit, time.Duration(seconds) * time.Second
}

// OutboxDispatchSettings tunes the outbox relay.
//
// Set via env:
// - OUTBOX_MAX_ATTEMPTS (default 20)
// - OUTBOX_BASE_BACKOFF_SECONDS (default 5)
// - OUTBOX_BATCH_SIZE (default 50)
func OutboxDispatchSettings() (maxAttempts int, baseBackoff time.Duration, batchSize int) {
	maxAttempts = intFromEnv("OUTBOX_MAX_ATTEMPTS", 20)
	if maxAttempts <= 0 {
		maxAttempts = 20
	}
	seconds := intFromEnv("OUTBOX_BASE_BACKOFF_SECONDS", 5)
	if seconds <= 0 {
		seconds = 5
	}
	batchSize = intFromEnv("OUTBOX_BATCH_SIZE", 50)
	if batchSize <= 0 {
		batchSize = 50
	}
	return maxAttempts, time.Duration(seconds) * time.Second, batchSize
}
