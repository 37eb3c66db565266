package models

import (
	"context"
	"time"

	"gorm.io/gorm"
)

const (
	CheckTypeJournalReplay    = "JOURNAL_REPLAY"
	CheckTypeReservedCoverage = "RESERVED_COVERAGE"
	CheckTypeAvailable        = "AVAILABLE_DERIVATION"
)

// ReconciliationReport stores a mismatch detected by the ledger reconciliation job.
type ReconciliationReport struct {
	ID            int       `gorm:"primary_key" json:"id"`
	CheckType     string    `gorm:"size:50;index;not null" json:"check_type"`
	ProductId     string    `gorm:"size:64;index;not null" json:"product_id"`
	WarehouseId   string    `gorm:"size:64;index;not null" json:"warehouse_id"`
	Expected      int       `json:"expected"`
	Actual        int       `json:"actual"`
	Details       string    `gorm:"type:text" json:"details"`
	CorrelationId string    `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func SaveReconciliationReports(ctx context.Context, db *gorm.DB, reports []ReconciliationReport) error {
	if db == nil || len(reports) == 0 {
		return nil
	}
	return db.WithContext(ctx).CreateInBatches(&reports, 100).Error
}
