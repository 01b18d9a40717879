package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/angelmondragon/orderplanner/internal/ingest"
	"github.com/angelmondragon/orderplanner/internal/planning"
	product "github.com/angelmondragon/orderplanner/internal/products"
	"github.com/angelmondragon/orderplanner/internal/weeks"
	"github.com/angelmondragon/orderplanner/pkg/config"
	"github.com/angelmondragon/orderplanner/pkg/db"
	"github.com/angelmondragon/orderplanner/pkg/logger"
	"github.com/angelmondragon/orderplanner/pkg/migrate"
	"github.com/joho/godotenv"
)

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "import"})

	_ = godotenv.Load()

	file := flag.String("file", "", "consumption export (.xlsx or .csv)")
	year := flag.Int("year", 0, "ISO year of the target week")
	week := flag.Int("week", 0, "ISO week number of the target week")
	format := flag.String("format", "", "force the file format: xlsx|csv")
	output := flag.String("output", "table", "needs output: table|json")
	flag.Parse()

	if *file == "" || *year == 0 || *week == 0 {
		fmt.Fprintln(os.Stderr, "usage: import -file <path> -year <yyyy> -week <ww> [-format xlsx|csv] [-output table|json]")
		os.Exit(2)
	}

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	logg = logger.New(logger.Options{
		ServiceName: "import",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx = logg.WithFields(ctx, map[string]any{"file": *file, "year": *year, "week": *week})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	defer dbClient.Close()

	requireResource(ctx, logg, "migrations", migrate.MaybeRunDev(ctx, cfg, logg, dbClient))

	parser, err := ingest.NewParser(cfg.Import)
	requireResource(ctx, logg, "import parser", err)

	svc, err := weeks.NewService(weeks.ServiceParams{
		Repository:     weeks.NewRepository(dbClient.DB()),
		Products:       product.NewRepository(dbClient.DB()),
		DB:             dbClient,
		Parser:         parser,
		Logger:         logg,
		OpenWeeksAhead: cfg.Planning.OpenWeeksAhead,
	})
	requireResource(ctx, logg, "week service", err)

	f, err := os.Open(*file)
	requireResource(ctx, logg, "input file", err)
	defer f.Close()

	result, err := svc.ImportSpreadsheet(ctx, planning.WeekKey{Year: *year, Week: *week}, f, fileFormat(*format, *file))
	if err != nil {
		logg.Error(ctx, "import failed", err)
		os.Exit(1)
	}

	switch *output {
	case "json":
		err = writeJSON(os.Stdout, result)
	default:
		err = writeTable(os.Stdout, result)
	}
	if err != nil {
		logg.Error(ctx, "failed to write output", err)
		os.Exit(1)
	}
}

func fileFormat(requested, path string) ingest.Format {
	switch strings.ToLower(requested) {
	case "xlsx":
		return ingest.FormatXLSX
	case "csv":
		return ingest.FormatCSV
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return ingest.FormatXLSX
	case ".csv":
		return ingest.FormatCSV
	}
	return ingest.FormatAuto
}

func writeJSON(w io.Writer, result *weeks.ImportResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// writeTable prints one row per product with a needs column per delivery.
func writeTable(w io.Writer, result *weeks.ImportResult) error {
	if result.Week == nil {
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	header := []string{"REFERENCE"}
	references := map[string]struct{}{}
	for _, order := range result.Week.Orders {
		header = append(header, order.DeliveryDate)
		for ref := range order.Needs {
			references[ref] = struct{}{}
		}
	}
	fmt.Fprintln(tw, strings.Join(header, "\t"))

	sorted := make([]string, 0, len(references))
	for ref := range references {
		sorted = append(sorted, ref)
	}
	sort.Strings(sorted)
	for _, ref := range sorted {
		row := []string{ref}
		for _, order := range result.Week.Orders {
			row = append(row, fmt.Sprintf("%g", order.Needs[ref]))
		}
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}

	if result.Report != nil && len(result.Report.Skipped) > 0 {
		fmt.Fprintf(tw, "\n%d rows skipped\n", len(result.Report.Skipped))
	}
	for _, warning := range result.Warnings {
		fmt.Fprintf(tw, "warning: %s\n", warning)
	}
	return tw.Flush()
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
