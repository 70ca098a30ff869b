package download

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ppmina/Xdata/internal/domain"
	"github.com/ppmina/Xdata/internal/market"
	"github.com/ppmina/Xdata/internal/store"
	"github.com/ppmina/Xdata/internal/universe"
	"github.com/ppmina/Xdata/internal/util"
)

// ErrNoData marks a fetch that returned no usable klines for the requested
// range. Tolerated once, then the symbol is given up for the run.
var ErrNoData = errors.New("no data in requested range")

// Options tune one reconciliation run. Zero values select the defaults.
type Options struct {
	Freq                  domain.Freq
	MaxWorkers            int
	MaxRetries            int
	CompletenessThreshold float64
}

func (o Options) withDefaults() Options {
	if o.Freq == "" {
		o.Freq = domain.Freq1h
	}
	if o.MaxWorkers <= 0 {
		o.MaxWorkers = 5
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.CompletenessThreshold <= 0 || o.CompletenessThreshold > 1 {
		o.CompletenessThreshold = 1.0
	}
	return o
}

// Downloader reconciles a kline store against a requested symbol/time/
// interval space: symbols already covered are skipped, the rest are fetched
// concurrently over multiple rounds until stored or permanently failed.
type Downloader struct {
	source  market.DataSource
	store   store.KlineStore
	checker *Checker
	reg     *util.RateRegulator
	retry   util.RetryPolicy
	log     *slog.Logger
}

// NewDownloader creates a Downloader fetching from source into s, pacing
// requests with reg. A nil reg gets a conservative default.
func NewDownloader(source market.DataSource, s store.KlineStore, reg *util.RateRegulator) *Downloader {
	if reg == nil {
		reg = util.NewRateRegulator(300*time.Millisecond, 30*time.Second)
	}
	return &Downloader{
		source:  source,
		store:   s,
		checker: NewChecker(s),
		reg:     reg,
		retry:   util.DefaultRetryPolicy(),
		log:     slog.Default().With("component", "downloader"),
	}
}

type fetchResult struct {
	symbol  string
	points  int
	dropped int
	err     error
}

// Run converges the store toward full coverage of [start, end] for the
// requested symbols. It never fails for partial coverage: the outcome is
// communicated through the report. The returned error is non-nil only for
// cancellation or an empty request.
func (d *Downloader) Run(ctx context.Context, symbols []string, start, end time.Time, opts Options) (*Report, error) {
	if len(symbols) == 0 {
		return nil, errors.New("symbols list cannot be empty")
	}
	opts = opts.withDefaults()

	// The range end is the open time of the final bar of the end day, so the
	// inclusive grid [startTS, endTS] lines up with the expected-point count
	// and a fully covered range checks out as exactly complete.
	startTS := universe.DayStartTS(start)
	endTS := universe.DayEndTS(end) + 1 - opts.Freq.Duration().Milliseconds()
	began := time.Now()

	report := newReport(len(symbols))

	d.log.Info("starting reconciliation",
		"runID", report.RunID,
		"symbols", len(symbols),
		"freq", opts.Freq,
		"range", fmt.Sprintf("%s..%s", universe.FormatDate(start), universe.FormatDate(end)),
		"threshold", opts.CompletenessThreshold,
	)

	// Partition into already-complete and needs-download. A failed check is
	// treated as needs-download, not an error.
	var pending []string
	for _, sym := range symbols {
		res, err := d.checker.Check(ctx, sym, opts.Freq, startTS, endTS, opts.CompletenessThreshold)
		if err != nil {
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			d.log.Warn("completeness check failed, scheduling download", "symbol", sym, "err", err)
			pending = append(pending, sym)
			continue
		}
		if res.Complete {
			report.SuccessfulSymbols = append(report.SuccessfulSymbols, sym)
			report.PointCounts[sym] = res.Actual
		} else {
			gap := GapFor(sym, opts.Freq, res)
			d.log.Debug("coverage gap",
				"symbol", sym,
				"completeness", fmt.Sprintf("%.3f", res.Completeness),
				"missing", len(gap.Missing),
			)
			pending = append(pending, sym)
		}
	}

	d.log.Info("completeness check done",
		"complete", len(report.SuccessfulSymbols),
		"needDownload", len(pending),
	)

	if len(pending) == 0 {
		report.DataQualityScore = 1.0
		report.finalize(time.Since(began))
		return report, nil
	}

	failedPermanently := make(map[string]error)

	// The policy's budget must track the configured round count, or symbols
	// would be given up after the policy default regardless of opts.
	retry := d.retry
	retry.MaxRetries = opts.MaxRetries

	for round := 0; round <= opts.MaxRetries && len(pending) > 0; round++ {
		if ctx.Err() != nil {
			break
		}

		d.log.Info("download round", "round", round, "symbols", len(pending))
		results := d.runRound(ctx, pending, opts, startTS, endTS)

		var next []string
		succeeded := 0
		for _, res := range results {
			if res.err == nil {
				succeeded++
				report.SuccessfulSymbols = append(report.SuccessfulSymbols, res.symbol)
				report.PointCounts[res.symbol] = res.points

				expected := ExpectedPoints(opts.Freq, startTS, endTS)
				if res.points < expected {
					// Stored but thinner than the grid implies: a data-shape
					// note, not a failure, and not retried.
					report.MissingPeriods = append(report.MissingPeriods, MissingPeriod{
						Symbol: res.symbol,
						Period: fmt.Sprintf("%d-%d", startTS, endTS),
						Reason: fmt.Sprintf("partial data: %d of %d points", res.points, expected),
					})
				}
				continue
			}

			severity := util.Classify(res.err)
			if errors.Is(res.err, ErrNoData) {
				severity = util.SeverityLow
			}

			if severity == util.SeverityCritical {
				failedPermanently[res.symbol] = res.err
				d.log.Error("symbol failed permanently",
					"symbol", res.symbol,
					"err", res.err,
					"hint", util.RecommendedAction(res.err),
				)
				continue
			}
			if !retry.ShouldRetry(res.err, round) || (severity == util.SeverityLow && round >= 1) {
				failedPermanently[res.symbol] = res.err
				continue
			}
			next = append(next, res.symbol)
		}

		d.log.Info("round done",
			"round", round,
			"succeeded", succeeded,
			"retrying", len(next),
		)
		pending = next
	}

	// Whatever is still pending ran out of rounds.
	for _, sym := range pending {
		if _, done := failedPermanently[sym]; !done {
			failedPermanently[sym] = fmt.Errorf("still incomplete after %d rounds", opts.MaxRetries+1)
		}
	}

	for sym, err := range failedPermanently {
		report.FailedSymbols = append(report.FailedSymbols, sym)
		report.MissingPeriods = append(report.MissingPeriods, MissingPeriod{
			Symbol: sym,
			Period: fmt.Sprintf("%d-%d", startTS, endTS),
			Reason: err.Error(),
		})
	}

	report.DataQualityScore = d.qualityScore(ctx, symbols, opts.Freq, startTS, endTS)
	report.finalize(time.Since(began))

	d.log.Info("reconciliation done",
		"runID", report.RunID,
		"succeeded", len(report.SuccessfulSymbols),
		"failed", len(report.FailedSymbols),
		"score", fmt.Sprintf("%.3f", report.DataQualityScore),
	)

	if err := ctx.Err(); err != nil {
		return report, err
	}
	return report, nil
}

// runRound dispatches one bounded-concurrency pass over the pending symbols
// and joins before returning, so the next round's failure set is consistent.
func (d *Downloader) runRound(ctx context.Context, pending []string, opts Options, startTS, endTS int64) []fetchResult {
	jobs := make(chan string, len(pending))
	for _, sym := range pending {
		jobs <- sym
	}
	close(jobs)

	results := make(chan fetchResult, len(pending))

	var wg sync.WaitGroup
	workers := opts.MaxWorkers
	if workers > len(pending) {
		workers = len(pending)
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for sym := range jobs {
				// A cancelled run stops dispatching; in-flight fetches have
				// already returned by the time we observe it here.
				if ctx.Err() != nil {
					return
				}
				results <- d.fetchOne(ctx, sym, opts.Freq, startTS, endTS)
			}
		}()
	}
	wg.Wait()
	close(results)

	out := make([]fetchResult, 0, len(pending))
	for res := range results {
		out = append(out, res)
	}
	return out
}

// fetchOne downloads and stores one symbol's range. The store write is a
// single transaction, so a failed task never leaves a partial batch that
// looks complete.
func (d *Downloader) fetchOne(ctx context.Context, symbol string, freq domain.Freq, startTS, endTS int64) fetchResult {
	res := fetchResult{symbol: symbol}

	if err := d.reg.Wait(ctx); err != nil {
		res.err = err
		return res
	}

	klines, err := d.source.FetchKlines(ctx, symbol, freq, startTS, endTS)
	if err != nil {
		if util.IsRateLimit(err) {
			next := d.reg.OnRateLimit()
			d.log.Warn("rate limited", "symbol", symbol, "nextDelay", next)
		}
		res.err = fmt.Errorf("fetching %s: %w", symbol, err)
		return res
	}

	valid, dropped := ValidateKlines(klines)
	res.dropped = dropped
	if dropped > 0 && dropped*10 > len(klines) {
		d.log.Warn("kline quality issues", "symbol", symbol, "dropped", dropped, "total", len(klines))
	}
	if len(valid) == 0 {
		res.err = fmt.Errorf("%s: %w", symbol, ErrNoData)
		return res
	}

	if err := d.store.WriteKlines(ctx, freq, valid); err != nil {
		res.err = fmt.Errorf("storing %s: %w", symbol, err)
		return res
	}

	d.reg.OnSuccess()
	res.points = len(valid)
	d.log.Debug("symbol stored", "symbol", symbol, "points", res.points)
	return res
}

// qualityScore averages per-symbol completeness ratios (capped at 1) over
// all requested symbols.
func (d *Downloader) qualityScore(ctx context.Context, symbols []string, freq domain.Freq, startTS, endTS int64) float64 {
	expected := ExpectedPoints(freq, startTS, endTS)
	if expected == 0 || len(symbols) == 0 {
		return 1.0
	}

	var sum float64
	for _, sym := range symbols {
		actual, err := d.store.CountPoints(ctx, sym, freq, startTS, endTS)
		if err != nil {
			continue
		}
		ratio := float64(actual) / float64(expected)
		if ratio > 1 {
			ratio = 1
		}
		sum += ratio
	}
	return sum / float64(len(symbols))
}
