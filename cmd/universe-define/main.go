// Command universe-define builds a universe definition from venue volume
// data and saves it as a JSON document.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ppmina/Xdata/internal/config"
	"github.com/ppmina/Xdata/internal/market"
	"github.com/ppmina/Xdata/internal/universe"
	"github.com/ppmina/Xdata/internal/util"
)

func main() {
	var (
		start       = flag.String("start", "", "range start date (YYYY-MM-DD)")
		end         = flag.String("end", "", "range end date (YYYY-MM-DD)")
		t1          = flag.Int("t1", 0, "lookback window in months")
		t2          = flag.Int("t2", 0, "rebalance cadence in months")
		t3          = flag.Int("t3", -1, "minimum listing age in months")
		delayDays   = flag.Int("delay", -1, "days the ranking base date trails the rebalance date")
		topK        = flag.Int("top", 0, "number of symbols per snapshot")
		out         = flag.String("out", "", "output file or directory")
		description = flag.String("desc", "", "description stored in the document")
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

	ucfg := universe.Config{
		StartDate:  cfg.Universe.StartDate,
		EndDate:    cfg.Universe.EndDate,
		T1Months:   cfg.Universe.T1Months,
		T2Months:   cfg.Universe.T2Months,
		T3Months:   cfg.Universe.T3Months,
		DelayDays:  cfg.Universe.DelayDays,
		QuoteAsset: cfg.Universe.QuoteAsset,
		TopK:       cfg.Universe.TopK,
	}
	if *start != "" {
		ucfg.StartDate = *start
	}
	if *end != "" {
		ucfg.EndDate = *end
	}
	if *t1 > 0 {
		ucfg.T1Months = *t1
	}
	if *t2 > 0 {
		ucfg.T2Months = *t2
	}
	if *t3 >= 0 {
		ucfg.T3Months = *t3
	}
	if *delayDays >= 0 {
		ucfg.DelayDays = *delayDays
	}
	if *topK > 0 {
		ucfg.TopK = *topK
	}

	outPath := cfg.Universe.OutputPath
	if *out != "" {
		outPath = *out
	}

	source := market.NewBinanceClient(market.BinanceOpts{
		BaseURL:    cfg.Binance.BaseURL,
		APIKey:     cfg.Binance.APIKey,
		QuoteAsset: ucfg.QuoteAsset,
	})
	reg := util.NewRateRegulator(cfg.Download.BaseDelay(), cfg.Download.MaxDelay())

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	def, err := universe.NewBuilder(source, reg).Build(ctx, ucfg, *description)
	if err != nil {
		log.Fatalf("universe build failed: %v", err)
	}

	saved, err := def.SaveFile(outPath)
	if err != nil {
		log.Fatalf("saving universe: %v", err)
	}

	slog.Info("universe saved",
		"path", saved,
		"snapshots", len(def.Snapshots),
		"symbols", len(def.AllSymbols()),
	)
}
