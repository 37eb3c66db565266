package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mmdatafocus/warehouse_stock/config"
	"github.com/mmdatafocus/warehouse_stock/ledger"
	"github.com/mmdatafocus/warehouse_stock/models"
	"github.com/mmdatafocus/warehouse_stock/utils"
	"github.com/mmdatafocus/warehouse_stock/workflow"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func main() {
	fromStr := flag.String("from", "", "Required: start date (YYYY-MM-DD), inclusive")
	toStr := flag.String("to", "", "Optional: end date (YYYY-MM-DD), inclusive. Defaults to today.")
	out := flag.String("out", "movements.xlsx", "Output file path")
	upload := flag.Bool("upload", false, "Upload the workbook to GCS_BUCKET instead of only writing it locally")
	flag.Parse()

	if strings.TrimSpace(*fromStr) == "" {
		fmt.Fprintln(os.Stderr, "--from is required")
		os.Exit(1)
	}
	start, err := time.Parse("2006-01-02", strings.TrimSpace(*fromStr))
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid from date: %v\n", err)
		os.Exit(1)
	}
	end := time.Now().UTC()
	if strings.TrimSpace(*toStr) != "" {
		d, err := time.Parse("2006-01-02", strings.TrimSpace(*toStr))
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid to date: %v\n", err)
			os.Exit(1)
		}
		end = d
	}
	// include the whole end day
	end = time.Date(end.Year(), end.Month(), end.Day(), 23, 59, 59, 999999999, time.UTC)

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}
	logger := config.GetLogger()
	engine := ledger.New(models.NewGormStore(db), ledger.Options{Logger: logger})

	ctx := context.Background()
	movements, err := engine.MovementsBetween(ctx, start, end)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load movements: %v\n", err)
		os.Exit(1)
	}
	data, err := workflow.ExportMovementsXLSX(movements)
	if err != nil {
		fmt.Fprintf(os.Stderr, "render workbook: %v\n", err)
		os.Exit(1)
	}
	if err := os.WriteFile(*out, data, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "write %s: %v\n", *out, err)
		os.Exit(1)
	}
	fmt.Printf("wrote %d movements to %s\n", len(movements), *out)

	if *upload {
		objectName := fmt.Sprintf("exports/movements_%s_%s.xlsx", start.Format("20060102"), end.Format("20060102"))
		uri, err := utils.UploadFileToGCS(ctx, objectName, data, xlsxContentType)
		if err != nil {
			fmt.Fprintf(os.Stderr, "upload failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("uploaded %s\n", uri)
	}
}
