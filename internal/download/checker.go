// Package download converges a kline store toward full coverage of a
// requested symbol/time/interval space: completeness checking, multi-round
// rate-limited concurrent fetching, and report aggregation.
package download

import (
	"context"
	"fmt"
	"time"

	"github.com/ppmina/Xdata/internal/domain"
	"github.com/ppmina/Xdata/internal/store"
	"github.com/ppmina/Xdata/internal/util"
)

// Range is a half-open-free, inclusive [StartTS, EndTS] millisecond span.
type Range struct {
	StartTS int64
	EndTS   int64
}

// Gap describes the ranges still missing for one symbol at one frequency.
// Gaps are ephemeral: recomputed each reconciliation round, never persisted.
type Gap struct {
	Symbol  string
	Freq    domain.Freq
	Missing []Range
}

// Result is the outcome of a completeness check.
type Result struct {
	Complete     bool
	Completeness float64
	Actual       int
	Expected     int
	// Missing is the coarse gap: when incomplete, the whole requested range.
	Missing []Range
}

// Checker compares requested coverage against the store. Complete verdicts
// are memoized briefly since coverage never regresses within a run.
type Checker struct {
	store store.KlineStore
	cache *util.TTLCache
}

// NewChecker creates a Checker over the given store.
func NewChecker(s store.KlineStore) *Checker {
	return &Checker{
		store: s,
		cache: util.NewTTLCache(5 * time.Minute),
	}
}

// ExpectedPoints returns the number of klines a fully covered inclusive
// [startTS, endTS] range holds at the given frequency.
func ExpectedPoints(freq domain.Freq, startTS, endTS int64) int {
	step := freq.Duration().Milliseconds()
	if step <= 0 || endTS < startTS {
		return 0
	}
	span := endTS - startTS
	expected := int((span+step-1)/step) + 1
	return expected
}

// Check reports whether the store already covers [startTS, endTS] for the
// symbol at the given frequency to at least the threshold fraction of
// expected points. An empty store is an ordinary Incomplete verdict with the
// full range missing, never an error.
func (c *Checker) Check(ctx context.Context, symbol string, freq domain.Freq, startTS, endTS int64, threshold float64) (Result, error) {
	key := fmt.Sprintf("%s|%s|%d|%d|%g", symbol, freq, startTS, endTS, threshold)
	if v, ok := c.cache.Get(key); ok {
		return v.(Result), nil
	}

	expected := ExpectedPoints(freq, startTS, endTS)
	if expected == 0 {
		return Result{Complete: true, Completeness: 1, Missing: nil}, nil
	}

	actual, err := c.store.CountPoints(ctx, symbol, freq, startTS, endTS)
	if err != nil {
		return Result{}, fmt.Errorf("checking completeness for %s: %w", symbol, err)
	}

	completeness := float64(actual) / float64(expected)
	res := Result{
		Complete:     completeness >= threshold,
		Completeness: completeness,
		Actual:       actual,
		Expected:     expected,
	}
	if !res.Complete {
		res.Missing = []Range{{StartTS: startTS, EndTS: endTS}}
	} else {
		// Only complete verdicts are cached: incomplete ones change as soon
		// as the downloader writes.
		c.cache.Set(key, res)
	}
	return res, nil
}

// GapFor wraps an incomplete result as a Gap for the symbol.
func GapFor(symbol string, freq domain.Freq, res Result) Gap {
	return Gap{Symbol: symbol, Freq: freq, Missing: res.Missing}
}
