package workflow

import (
	"context"
	"fmt"

	"github.com/mmdatafocus/warehouse_stock/ledger"
	"github.com/mmdatafocus/warehouse_stock/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ReconcileLedger checks every balance against its journal and its holds:
//   - quantity equals the replayed journal
//   - available equals quantity minus reserved
//   - active reservations never hold more than reserved
//
// Mismatches are returned and, when db is set, written to reconciliation_reports.
func ReconcileLedger(ctx context.Context, store models.Store, db *gorm.DB, logger *logrus.Logger, correlationId string) ([]models.ReconciliationReport, error) {
	repos := store.Repositories()
	balances, err := repos.Balances.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	var reports []models.ReconciliationReport
	add := func(check string, b *models.Balance, expected, actual int, details string) {
		reports = append(reports, models.ReconciliationReport{
			CheckType:     check,
			ProductId:     b.ProductId,
			WarehouseId:   b.WarehouseId,
			Expected:      expected,
			Actual:        actual,
			Details:       details,
			CorrelationId: correlationId,
		})
	}

	for _, b := range balances {
		if err := ctx.Err(); err != nil {
			return reports, err
		}
		if b.Available != b.Quantity-b.Reserved {
			add(models.CheckTypeAvailable, b, b.Quantity-b.Reserved, b.Available, "available is not quantity minus reserved")
		}

		movements, err := repos.Movements.FindByKey(ctx, b.ProductId, b.WarehouseId)
		if err != nil {
			return reports, err
		}
		if replayed := ledger.ReplayQuantity(movements, b.WarehouseId); replayed != b.Quantity {
			add(models.CheckTypeJournalReplay, b, replayed, b.Quantity, fmt.Sprintf("journal of %d movements disagrees with stored quantity", len(movements)))
		}

		active, err := repos.Reservations.FindActiveByKey(ctx, b.ProductId, b.WarehouseId)
		if err != nil {
			return reports, err
		}
		if held := models.SumRemaining(active); held > b.Reserved {
			add(models.CheckTypeReservedCoverage, b, b.Reserved, held, fmt.Sprintf("%d active reservations hold more than reserved", len(active)))
		}
	}

	if err := models.SaveReconciliationReports(ctx, db, reports); err != nil {
		return reports, err
	}
	if logger != nil {
		logger.WithFields(logrus.Fields{
			"field":          "ReconcileLedger",
			"balances":       len(balances),
			"mismatches":     len(reports),
			"correlation_id": correlationId,
		}).Info("ledger reconciliation completed")
	}
	return reports, nil
}
