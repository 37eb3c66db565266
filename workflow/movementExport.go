package workflow

import (
	"bytes"
	"fmt"
	"time"

	"github.com/mmdatafocus/warehouse_stock/models"
	"github.com/xuri/excelize/v2"
)

const movementSheet = "Movements"

var movementHeadings = []string{
	"Id", "CreatedAt", "ProductId", "Type", "Quantity",
	"FromWarehouseId", "ToWarehouseId", "Reference", "Reason", "CreatedBy",
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func movementCells(m *models.Movement) []interface{} {
	return []interface{}{
		m.ID,
		m.CreatedAt.UTC().Format(time.RFC3339),
		m.ProductId,
		string(m.Type),
		m.Quantity,
		deref(m.FromWarehouseId),
		deref(m.ToWarehouseId),
		deref(m.Reference),
		deref(m.Reason),
		deref(m.CreatedBy),
	}
}

// ExportMovementsXLSX renders journal entries as a single-sheet workbook, one row per movement.
func ExportMovementsXLSX(movements []*models.Movement) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", movementSheet); err != nil {
		return nil, err
	}
	for i, h := range movementHeadings {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetCellValue(movementSheet, cell, h); err != nil {
			return nil, err
		}
	}
	for row, m := range movements {
		cell := fmt.Sprintf("A%d", row+2)
		values := movementCells(m)
		if err := f.SetSheetRow(movementSheet, cell, &values); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
