// Command data-export copies stored klines into a Parquet dataset for
// downstream analysis tools.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ppmina/Xdata/internal/config"
	"github.com/ppmina/Xdata/internal/domain"
	"github.com/ppmina/Xdata/internal/store"
	"github.com/ppmina/Xdata/internal/universe"
	"github.com/ppmina/Xdata/internal/util"
)

func main() {
	var (
		dbPath     = flag.String("db", "", "SQLite database path")
		outDir     = flag.String("out", "", "output directory for the Parquet dataset")
		freqFlag   = flag.String("freq", "1h", "kline frequency to export")
		symbolList = flag.String("symbols", "", "comma-separated symbols (default: all stored)")
		start      = flag.String("start", "", "range start date (YYYY-MM-DD)")
		end        = flag.String("end", "", "range end date (YYYY-MM-DD)")
	)
	flag.Parse()

	cfgPath := "config/xdata.yaml"
	if p := os.Getenv("XDATA_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	freq, err := domain.ParseFreq(*freqFlag)
	if err != nil {
		log.Fatalf("invalid frequency: %v", err)
	}
	if *start == "" || *end == "" {
		log.Fatal("-start and -end are required")
	}
	startT, err := universe.ParseDate(*start)
	if err != nil {
		log.Fatalf("invalid start date: %v", err)
	}
	endT, err := universe.ParseDate(*end)
	if err != nil {
		log.Fatalf("invalid end date: %v", err)
	}

	sqlitePath := cfg.Storage.SQLitePath
	if *dbPath != "" {
		sqlitePath = *dbPath
	}
	klineStore, err := store.NewSQLiteStore(sqlitePath)
	if err != nil {
		log.Fatalf("opening store: %v", err)
	}
	defer klineStore.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var symbols []string
	if *symbolList != "" {
		for _, sym := range strings.Split(*symbolList, ",") {
			if sym = strings.TrimSpace(strings.ToUpper(sym)); sym != "" {
				symbols = append(symbols, sym)
			}
		}
	} else {
		symbols, err = klineStore.ListSymbols(ctx, freq)
		if err != nil {
			log.Fatalf("listing stored symbols: %v", err)
		}
	}
	if len(symbols) == 0 {
		log.Fatal("no symbols to export")
	}

	dataDir := cfg.Storage.DataDir
	if *outDir != "" {
		dataDir = *outDir
	}

	exporter := store.NewParquetExporter(dataDir)
	n, err := exporter.Export(ctx, klineStore, symbols, freq,
		universe.DayStartTS(startT), universe.DayEndTS(endT))
	if err != nil {
		log.Fatalf("export failed: %v", err)
	}

	slog.Info("export complete", "symbols", len(symbols), "records", n, "dir", dataDir)
}
