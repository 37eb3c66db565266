package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/mmdatafocus/warehouse_stock/config"
	"github.com/mmdatafocus/warehouse_stock/ledger"
	"github.com/mmdatafocus/warehouse_stock/models"
	"github.com/mmdatafocus/warehouse_stock/notify"
	"github.com/mmdatafocus/warehouse_stock/workflow"
)

// ledger-reconcile replays every balance against its journal and its holds.
// Exit status 2 means mismatches were found.
func main() {
	expire := flag.Bool("expire-reservations", false, "Release overdue reservations before checking")
	batch := flag.Int("batch", 500, "Reservations released per sweep")
	dryRun := flag.Bool("dry-run", false, "Report mismatches without writing reconciliation_reports")
	timeout := flag.Duration("timeout", 10*time.Minute, "Overall deadline")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}
	logger := config.GetLogger()
	store := models.NewGormStore(db)
	cid := "reconcile-" + uuid.NewString()

	if *expire {
		if config.RedisConfigured() {
			config.ConnectRedisWithRetry()
		}
		var locker ledger.Locker
		if config.LedgerLockBackend() == config.LockRedis && config.GetRedisLock() != nil {
			locker = ledger.NewRedisLocker(config.GetRedisLock(), config.LedgerLockTTL(), logger)
		} else {
			locker = ledger.NewDatabaseLocker(logger)
		}
		publisher, err := notify.NewPublisher(config.NotifierTransport(), db, config.GetRedisDB(), logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "notifier: %v\n", err)
			os.Exit(1)
		}
		notifier := notify.NewAsyncNotifier(publisher, logger, config.NotifierQueueSize())
		engine := ledger.New(store, ledger.OptionsFromEnv(logger, locker, notifier))

		expirer := workflow.NewReservationExpirer(engine, logger)
		expirer.BatchSize = *batch
		released := 0
		for {
			n, err := expirer.SweepOnce(ctx)
			released += n
			if err != nil {
				fmt.Fprintf(os.Stderr, "sweep: %v\n", err)
				break
			}
			if n == 0 {
				break
			}
		}
		fmt.Printf("released %d expired reservations\n", released)

		if err := notifier.Close(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "notification queue not drained: %v\n", err)
		}
		config.StopTopics()
	}

	reportDB := db
	if *dryRun {
		reportDB = nil
	}
	reports, err := workflow.ReconcileLedger(ctx, store, reportDB, logger, cid)
	if err != nil {
		fmt.Fprintf(os.Stderr, "reconcile: %v\n", err)
		os.Exit(1)
	}
	for _, r := range reports {
		fmt.Printf("%s %s/%s expected=%d actual=%d %s\n", r.CheckType, r.ProductId, r.WarehouseId, r.Expected, r.Actual, r.Details)
	}
	fmt.Printf("correlation=%s mismatches=%d\n", cid, len(reports))
	if len(reports) > 0 {
		os.Exit(2)
	}
}
