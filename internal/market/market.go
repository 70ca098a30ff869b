// Package market defines the DataSource interface for venue market data and
// provides implementations for the Binance USDT-margined perpetual API and a
// deterministic simulator.
package market

import (
	"context"
	"time"

	"github.com/ppmina/Xdata/internal/domain"
)

// DataSource abstracts venue market-data operations used by universe
// construction and data download.
type DataSource interface {
	// Name returns the source identifier (e.g. "binance", "simulator").
	Name() string

	// ListTradableInstruments returns the symbols tradable on the venue as
	// of the given date.
	ListTradableInstruments(ctx context.Context, asOf time.Time) ([]string, error)

	// FirstListingDate returns the date the symbol was first listed.
	FirstListingDate(ctx context.Context, symbol string) (time.Time, error)

	// FetchKlines returns klines for the symbol in [startTS, endTS]
	// (millisecond timestamps, inclusive) at the given frequency, ordered by
	// open time ascending.
	FetchKlines(ctx context.Context, symbol string, freq domain.Freq, startTS, endTS int64) ([]domain.Kline, error)

	// MeanQuoteVolume returns the mean daily quote volume for the symbol
	// over [start, end]. ok is false when the symbol has no data in the
	// window.
	MeanQuoteVolume(ctx context.Context, symbol string, start, end time.Time) (mean float64, ok bool, err error)
}
