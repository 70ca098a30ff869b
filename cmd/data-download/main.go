// Command data-download reconciles the local kline store against a universe
// document or an explicit symbol list, fetching whatever is missing.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ppmina/Xdata/internal/config"
	"github.com/ppmina/Xdata/internal/domain"
	"github.com/ppmina/Xdata/internal/download"
	"github.com/ppmina/Xdata/internal/market"
	"github.com/ppmina/Xdata/internal/store"
	"github.com/ppmina/Xdata/internal/universe"
	"github.com/ppmina/Xdata/internal/util"
)

func main() {
	var (
		universeFile = flag.String("universe", "", "universe definition JSON file")
		symbolList   = flag.String("symbols", "", "comma-separated symbols (alternative to -universe)")
		start        = flag.String("start", "", "range start date (YYYY-MM-DD)")
		end          = flag.String("end", "", "range end date (YYYY-MM-DD, default today)")
		freqFlag     = flag.String("freq", "", "kline frequency (e.g. 1m, 1h, 1d)")
		workers      = flag.Int("workers", 0, "max concurrent fetches")
		retries      = flag.Int("retries", -1, "max retry rounds")
		threshold    = flag.Float64("threshold", 0, "completeness threshold in (0,1]")
		dbPath       = flag.String("db", "", "SQLite database path")
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

	// Resolve the requested symbol/time space.
	var symbols []string
	startDate, endDate := *start, *end

	switch {
	case *universeFile != "":
		def, err := universe.LoadFile(*universeFile)
		if err != nil {
			log.Fatalf("loading universe: %v", err)
		}
		symbols = def.AllSymbols()
		if startDate == "" {
			startDate = def.Config.StartDate
		}
		if endDate == "" {
			endDate = def.Config.EndDate
		}
	case *symbolList != "":
		for _, sym := range strings.Split(*symbolList, ",") {
			if sym = strings.TrimSpace(strings.ToUpper(sym)); sym != "" {
				symbols = append(symbols, sym)
			}
		}
	default:
		log.Fatal("either -universe or -symbols is required")
	}

	if startDate == "" {
		log.Fatal("-start is required when not implied by the universe file")
	}
	if endDate == "" {
		endDate = time.Now().UTC().Format(universe.DateLayout)
	}

	startT, err := universe.ParseDate(startDate)
	if err != nil {
		log.Fatalf("invalid start date: %v", err)
	}
	endT, err := universe.ParseDate(endDate)
	if err != nil {
		log.Fatalf("invalid end date: %v", err)
	}

	freqStr := cfg.Download.Freq
	if *freqFlag != "" {
		freqStr = *freqFlag
	}
	freq, err := domain.ParseFreq(freqStr)
	if err != nil {
		log.Fatalf("invalid frequency: %v", err)
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

	source := market.NewBinanceClient(market.BinanceOpts{
		BaseURL: cfg.Binance.BaseURL,
		APIKey:  cfg.Binance.APIKey,
	})
	reg := util.NewRateRegulator(cfg.Download.BaseDelay(), cfg.Download.MaxDelay())

	opts := download.Options{
		Freq:                  freq,
		MaxWorkers:            cfg.Download.MaxWorkers,
		MaxRetries:            cfg.Download.MaxRetries,
		CompletenessThreshold: cfg.Download.CompletenessThreshold,
	}
	if *workers > 0 {
		opts.MaxWorkers = *workers
	}
	if *retries >= 0 {
		opts.MaxRetries = *retries
	}
	if *threshold > 0 {
		opts.CompletenessThreshold = *threshold
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	report, runErr := download.NewDownloader(source, klineStore, reg).
		Run(ctx, symbols, startT, endT, opts)
	if report != nil {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			log.Fatalf("encoding report: %v", err)
		}
	}
	if runErr != nil {
		log.Fatalf("download aborted: %v", runErr)
	}
}
