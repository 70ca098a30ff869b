// Package store defines the KlineStore interface for persisting kline time
// series and provides a SQLite implementation plus a Parquet dataset
// exporter.
package store

import (
	"context"

	"github.com/ppmina/Xdata/internal/domain"
)

// KlineStore persists and retrieves kline data. Implementations must
// tolerate concurrent writers on disjoint symbols, and WriteKlines must be
// all-or-nothing per batch so an interrupted write is never mistaken for a
// complete one.
type KlineStore interface {
	// WriteKlines persists a batch of klines at the given frequency.
	WriteKlines(ctx context.Context, freq domain.Freq, klines []domain.Kline) error

	// CountPoints returns the number of stored klines for the symbol and
	// frequency with open time in [startTS, endTS] (millisecond timestamps).
	CountPoints(ctx context.Context, symbol string, freq domain.Freq, startTS, endTS int64) (int, error)

	// ReadKlines returns stored klines for the symbol and frequency with
	// open time in [startTS, endTS], ordered by open time ascending.
	ReadKlines(ctx context.Context, symbol string, freq domain.Freq, startTS, endTS int64) ([]domain.Kline, error)

	// ListSymbols returns all distinct symbols stored at the given frequency.
	ListSymbols(ctx context.Context, freq domain.Freq) ([]string, error)
}
