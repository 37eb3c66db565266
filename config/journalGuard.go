package config

import (
	"errors"
	"strings"

	"github.com/mmdatafocus/warehouse_stock/appctx"
	"gorm.io/gorm"
)

// JournalTable is the append-only movement journal.
const JournalTable = "stock_movements"

var ErrJournalImmutable = errors.New("stock movements are append-only")

// JournalGuardPlugin refuses UPDATE and DELETE statements against the movement journal.
//
// NOTE:
// - Raw/Exec SQL is not intercepted.
// - Maintenance bypass is explicit via appctx.ContextKeySkipJournalGuard.
type JournalGuardPlugin struct{}

func NewJournalGuardPlugin() *JournalGuardPlugin { return &JournalGuardPlugin{} }

func (p *JournalGuardPlugin) Name() string { return "journal_guard" }

func (p *JournalGuardPlugin) Initialize(db *gorm.DB) error {
	if err := db.Callback().Update().Before("gorm:update").Register("journal_guard:update", journalGuardCallback); err != nil {
		return err
	}
	if err := db.Callback().Delete().Before("gorm:delete").Register("journal_guard:delete", journalGuardCallback); err != nil {
		return err
	}
	return nil
}

func journalGuardCallback(db *gorm.DB) {
	if db == nil || db.Statement == nil {
		return
	}
	if ctx := db.Statement.Context; ctx != nil {
		if skip, ok := appctx.GetBool(ctx, appctx.ContextKeySkipJournalGuard); ok && skip {
			return
		}
	}
	table := db.Statement.Table
	if table == "" && db.Statement.Schema != nil {
		table = db.Statement.Schema.Table
	}
	if strings.EqualFold(table, JournalTable) {
		db.AddError(ErrJournalImmutable)
	}
}
