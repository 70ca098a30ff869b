package universe

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/ppmina/Xdata/internal/market"
	"github.com/ppmina/Xdata/internal/util"
)

// Builder computes a universe Definition from venue volume data. It runs
// sequentially over rebalance dates; only the venue calls inside one date
// are rate-regulated.
type Builder struct {
	source market.DataSource
	reg    *util.RateRegulator
	retry  util.RetryPolicy
	log    *slog.Logger
}

// NewBuilder creates a Builder fetching from source, pacing requests with
// reg. A nil reg gets a conservative default.
func NewBuilder(source market.DataSource, reg *util.RateRegulator) *Builder {
	if reg == nil {
		reg = util.NewRateRegulator(500*time.Millisecond, 30*time.Second)
	}
	return &Builder{
		source: source,
		reg:    reg,
		retry:  util.DefaultRetryPolicy(),
		log:    slog.Default().With("component", "universe-builder"),
	}
}

// Build computes one snapshot per rebalance date and assembles the
// Definition. A date whose candidate or volume lookup fails is logged and
// skipped; the build only fails outright on invalid config or cancellation.
func (b *Builder) Build(ctx context.Context, cfg Config, description string) (*Definition, error) {
	if cfg.QuoteAsset == "" {
		cfg.QuoteAsset = "USDT"
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid universe config: %w", err)
	}

	start, _ := ParseDate(cfg.StartDate)
	end, _ := ParseDate(cfg.EndDate)
	dates := RebalanceDates(start, end, cfg.T2Months)

	b.log.Info("starting universe build",
		"start", cfg.StartDate,
		"end", cfg.EndDate,
		"rebalances", len(dates),
		"topK", cfg.TopK,
	)

	def := &Definition{
		Config:       cfg,
		CreationTime: time.Now().UTC(),
		Description:  description,
	}

	for i, date := range dates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		snap, err := b.snapshotFor(ctx, cfg, start, date)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			b.log.Warn("skipping rebalance date",
				"date", FormatDate(date),
				"err", err,
			)
			continue
		}

		def.Snapshots = append(def.Snapshots, *snap)
		b.log.Info("rebalance computed",
			"date", FormatDate(date),
			"progress", fmt.Sprintf("%d/%d", i+1, len(dates)),
			"selected", len(snap.Symbols),
		)
	}

	if err := def.Validate(); err != nil {
		return nil, fmt.Errorf("built universe failed validation: %w", err)
	}
	return def, nil
}

// snapshotFor computes the selection for a single rebalance date.
func (b *Builder) snapshotFor(ctx context.Context, cfg Config, globalStart, effective time.Time) (*Snapshot, error) {
	// The ranking base date trails the rebalance date by DelayDays so the
	// window never includes data that has not settled yet.
	base := effective.AddDate(0, 0, -cfg.DelayDays)
	periodStart, periodEnd, adjusted := LookbackWindow(base, cfg.T1Months, globalStart)

	candidates, err := b.source.ListTradableInstruments(ctx, periodEnd)
	if err != nil {
		return nil, fmt.Errorf("listing instruments: %w", err)
	}

	cutoff := MinExistenceCutoff(base, cfg.T3Months)
	eligible := b.filterByListingAge(ctx, candidates, cutoff)

	scored := make(map[string]float64, len(eligible))
	for _, sym := range eligible {
		mean, ok, err := b.meanVolume(ctx, sym, periodStart, periodEnd)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			b.log.Warn("skipping candidate", "symbol", sym, "err", err)
			continue
		}
		// Instruments with no volume data in the window are excluded from
		// ranking rather than scored as zero.
		if !ok || mean <= 0 {
			continue
		}
		scored[sym] = mean
	}

	symbols, amounts := rankTopK(scored, cfg.TopK)

	return &Snapshot{
		EffectiveDate:    FormatDate(effective),
		PeriodStartDate:  FormatDate(periodStart),
		PeriodEndDate:    FormatDate(periodEnd),
		PeriodStartTS:    strconv.FormatInt(DayStartTS(periodStart), 10),
		PeriodEndTS:      strconv.FormatInt(DayEndTS(periodEnd), 10),
		Symbols:          symbols,
		MeanDailyAmounts: amounts,
		Metadata: map[string]any{
			"total_candidates":       len(scored),
			"eligible_candidates":    len(eligible),
			"selected_symbols_count": len(symbols),
			"period_adjusted":        adjusted,
			"delay_days":             cfg.DelayDays,
			"quote_asset":            cfg.QuoteAsset,
		},
	}, nil
}

// filterByListingAge drops candidates first listed after the cutoff date.
// When the listing date cannot be determined the candidate is kept, matching
// the lenient treatment of metadata lookups elsewhere: age filtering must
// not silently shrink the universe on a flaky call.
func (b *Builder) filterByListingAge(ctx context.Context, candidates []string, cutoff time.Time) []string {
	out := make([]string, 0, len(candidates))
	for _, sym := range candidates {
		listed, err := b.source.FirstListingDate(ctx, sym)
		if err != nil {
			b.log.Debug("listing date unavailable, keeping candidate", "symbol", sym, "err", err)
			out = append(out, sym)
			continue
		}
		if !listed.After(cutoff) {
			out = append(out, sym)
		}
	}
	return out
}

// maxRateLimitWaits caps how often one candidate's volume fetch may be
// rate-limit deferred before the candidate is given up, so a persistently
// throttled symbol cannot stall the whole build.
const maxRateLimitWaits = 10

// meanVolume fetches one candidate's mean daily quote volume, pacing with
// the regulator and retrying transient failures. Rate-limit responses grow
// the regulator delay and do not consume retry attempts, but are bounded
// separately by maxRateLimitWaits.
func (b *Builder) meanVolume(ctx context.Context, symbol string, start, end time.Time) (float64, bool, error) {
	attempt := 0
	rateLimitWaits := 0
	for {
		if err := b.reg.Wait(ctx); err != nil {
			return 0, false, err
		}

		mean, ok, err := b.source.MeanQuoteVolume(ctx, symbol, start, end)
		if err == nil {
			b.reg.OnSuccess()
			return mean, ok, nil
		}

		if util.IsRateLimit(err) {
			rateLimitWaits++
			if rateLimitWaits > maxRateLimitWaits {
				return 0, false, fmt.Errorf("%s: still rate limited after %d waits: %w", symbol, rateLimitWaits-1, err)
			}
			next := b.reg.OnRateLimit()
			b.log.Warn("rate limited", "symbol", symbol, "nextDelay", next)
			continue
		}

		if !b.retry.ShouldRetry(err, attempt) {
			return 0, false, err
		}

		delay := b.retry.BackoffDelay(attempt)
		attempt++
		b.log.Debug("retrying volume fetch",
			"symbol", symbol,
			"attempt", attempt,
			"delay", delay,
			"hint", util.RecommendedAction(err),
		)
		select {
		case <-ctx.Done():
			return 0, false, ctx.Err()
		case <-time.After(delay):
		}
	}
}

// rankTopK orders scored symbols by amount descending (ties broken by
// symbol ascending) and keeps the top k with their amounts.
func rankTopK(scored map[string]float64, k int) ([]string, map[string]float64) {
	symbols := make([]string, 0, len(scored))
	for sym := range scored {
		symbols = append(symbols, sym)
	}
	sort.Slice(symbols, func(i, j int) bool {
		a, b := scored[symbols[i]], scored[symbols[j]]
		if a != b {
			return a > b
		}
		return symbols[i] < symbols[j]
	})

	if k < len(symbols) {
		symbols = symbols[:k]
	}

	amounts := make(map[string]float64, len(symbols))
	for _, sym := range symbols {
		amounts[sym] = scored[sym]
	}
	return symbols, amounts
}
