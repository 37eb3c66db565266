package config

import (
	"testing"
	"time"
)

func TestDatabaseDriver(t *testing.T) {
	cases := map[string]string{
		"":           DriverMySQL,
		"mysql":      DriverMySQL,
		"Postgres":   DriverPostgres,
		"pg":         DriverPostgres,
		"postgresql": DriverPostgres,
		" memory ":   DriverMemory,
		"inmemory":   DriverMemory,
		"oracle":     DriverMySQL,
	}
	for raw, want := range cases {
		t.Setenv("DB_DRIVER", raw)
		if got := DatabaseDriver(); got != want {
			t.Fatalf("DB_DRIVER=%q: expected %s, got %s", raw, want, got)
		}
	}
}

func TestLedgerLockBackend(t *testing.T) {
	for raw, want := range map[string]string{"": LockLocal, "REDIS": LockRedis, "database": LockDatabase, "etcd": LockLocal} {
		t.Setenv("LEDGER_LOCK_BACKEND", raw)
		if got := LedgerLockBackend(); got != want {
			t.Fatalf("LEDGER_LOCK_BACKEND=%q: expected %s, got %s", raw, want, got)
		}
	}
}

func TestNotifierTransport(t *testing.T) {
	for raw, want := range map[string]string{"": NotifierLog, "pubsub": NotifierPubSub, "Outbox": NotifierOutbox, "kafka": NotifierLog} {
		t.Setenv("NOTIFIER_TRANSPORT", raw)
		if got := NotifierTransport(); got != want {
			t.Fatalf("NOTIFIER_TRANSPORT=%q: expected %s, got %s", raw, want, got)
		}
	}
	t.Setenv("OUTBOX_RELAY_TRANSPORT", "")
	if got := OutboxRelayTransport(); got != NotifierPubSub {
		t.Fatalf("relay should default to pubsub, got %s", got)
	}
}

func TestLedgerDefaults(t *testing.T) {
	t.Setenv("LEDGER_CONFLICT_RETRIES", "-2")
	t.Setenv("LEDGER_MUTATION_TIMEOUT_SECONDS", "0")
	t.Setenv("LOW_STOCK_THRESHOLD_DEFAULT", "abc")
	t.Setenv("ALLOW_NEGATIVE_STOCK_SET", "yes")
	t.Setenv("RESERVATION_DEFAULT_TTL_MINUTES", "30")

	if got := LedgerConflictRetries(); got != 0 {
		t.Fatalf("negative retries should clamp to 0, got %d", got)
	}
	if got := LedgerMutationTimeout(); got != 10*time.Second {
		t.Fatalf("expected default timeout, got %s", got)
	}
	if got := DefaultLowStockThreshold(); got != 5 {
		t.Fatalf("expected default threshold, got %d", got)
	}
	if !AllowNegativeStockSet() {
		t.Fatalf("expected negative set to be allowed")
	}
	if got := ReservationDefaultTTL(); got != 30*time.Minute {
		t.Fatalf("expected 30m, got %s", got)
	}
}

func TestReservationSweepInterval(t *testing.T) {
	t.Setenv("RESERVATION_SWEEP_INTERVAL_SECONDS", "")
	if got := ReservationSweepInterval(); got != time.Minute {
		t.Fatalf("expected 1m default, got %s", got)
	}
	t.Setenv("RESERVATION_SWEEP_INTERVAL_SECONDS", "15")
	if got := ReservationSweepInterval(); got != 15*time.Second {
		t.Fatalf("expected 15s, got %s", got)
	}
	for _, v := range []string{"0", "-3"} {
		t.Setenv("RESERVATION_SWEEP_INTERVAL_SECONDS", v)
		if got := ReservationSweepInterval(); got != 0 {
			t.Fatalf("%s should disable the sweeper, got %s", v, got)
		}
	}
}

func TestRateLimit(t *testing.T) {
	t.Setenv("RATE_LIMIT_ENABLED", "true")
	t.Setenv("RATE_LIMIT_MAX_REQUESTS", "0")
	t.Setenv("RATE_LIMIT_WINDOW_SECONDS", "30")
	enabled, limit, window := RateLimit()
	if !enabled || limit != 600 || window != 30*time.Second {
		t.Fatalf("unexpected rate limit: %v %d %s", enabled, limit, window)
	}
}

func TestOutboxDispatchSettings(t *testing.T) {
	t.Setenv("OUTBOX_MAX_ATTEMPTS", "3")
	t.Setenv("OUTBOX_BASE_BACKOFF_SECONDS", "")
	t.Setenv("OUTBOX_BATCH_SIZE", "-1")
	attempts, backoff, batch := OutboxDispatchSettings()
	if attempts != 3 || backoff != 5*time.Second || batch != 50 {
		t.Fatalf("unexpected settings: %d %s %d", attempts, backoff, batch)
	}
}

func TestRetrySleepIsCapped(t *testing.T) {
	if got := retrySleep(1); got != 2*time.Second {
		t.Fatalf("expected 2s, got %s", got)
	}
	if got := retrySleep(40); got != 30*time.Second {
		t.Fatalf("expected cap of 30s, got %s", got)
	}
}
