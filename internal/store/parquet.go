package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/ppmina/Xdata/internal/domain"
)

// KlineRecord is the Parquet schema for exported kline data.
type KlineRecord struct {
	Symbol              string  `parquet:"symbol"`
	Timestamp           int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	Open                float64 `parquet:"open"`
	High                float64 `parquet:"high"`
	Low                 float64 `parquet:"low"`
	Close               float64 `parquet:"close"`
	Volume              float64 `parquet:"volume"`
	QuoteVolume         float64 `parquet:"quote_volume"`
	TradesCount         int64   `parquet:"trades_count"`
	TakerBuyVolume      float64 `parquet:"taker_buy_volume"`
	TakerBuyQuoteVolume float64 `parquet:"taker_buy_quote_volume"`
}

// ParquetExporter writes stored klines to a Parquet dataset organized by
// frequency, symbol, and year:
//
//	<DataDir>/<freq>/<SYMBOL>/<YYYY>.parquet
type ParquetExporter struct {
	DataDir string
}

// NewParquetExporter creates an exporter rooted at the given data directory.
func NewParquetExporter(dataDir string) *ParquetExporter {
	return &ParquetExporter{DataDir: dataDir}
}

// Export reads klines for the symbols in [startTS, endTS] from src and
// writes them to the Parquet dataset. Existing year files are merged, not
// overwritten. It returns the number of records written.
func (e *ParquetExporter) Export(ctx context.Context, src KlineStore, symbols []string, freq domain.Freq, startTS, endTS int64) (int, error) {
	total := 0
	for _, sym := range symbols {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		klines, err := src.ReadKlines(ctx, sym, freq, startTS, endTS)
		if err != nil {
			return total, fmt.Errorf("reading %s: %w", sym, err)
		}
		if len(klines) == 0 {
			continue
		}

		n, err := e.writeSymbol(sym, freq, klines)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

func (e *ParquetExporter) writeSymbol(symbol string, freq domain.Freq, klines []domain.Kline) (int, error) {
	// Group by year so each file stays bounded.
	groups := make(map[int][]KlineRecord)
	for _, k := range klines {
		year := time.UnixMilli(k.OpenTime).UTC().Year()
		groups[year] = append(groups[year], KlineRecord{
			Symbol:              k.Symbol,
			Timestamp:           k.OpenTime,
			Open:                k.Open,
			High:                k.High,
			Low:                 k.Low,
			Close:               k.Close,
			Volume:              k.Volume,
			QuoteVolume:         k.QuoteVolume,
			TradesCount:         k.TradesCount,
			TakerBuyVolume:      k.TakerBuyVolume,
			TakerBuyQuoteVolume: k.TakerBuyQuoteVolume,
		})
	}

	written := 0
	for year, records := range groups {
		path := e.klinePath(symbol, freq, year)

		// Merge with any existing records for the file.
		existing, _ := readParquetFile[KlineRecord](path)
		merged := mergeKlineRecords(existing, records)

		if err := writeParquetFile(path, merged); err != nil {
			return written, fmt.Errorf("writing %s/%d: %w", symbol, year, err)
		}
		written += len(records)
	}
	return written, nil
}

// klinePath returns the filesystem path for a kline Parquet file.
func (e *ParquetExporter) klinePath(symbol string, freq domain.Freq, year int) string {
	return filepath.Join(e.DataDir, freq.String(), strings.ToUpper(symbol), fmt.Sprintf("%d.parquet", year))
}

func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, records)
}

func readParquetFile[T any](path string) ([]T, error) {
	rows, err := parquet.ReadFile[T](path)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// mergeKlineRecords deduplicates records by (symbol, timestamp), preferring
// incoming records over existing ones. Results are sorted by timestamp.
func mergeKlineRecords(existing, incoming []KlineRecord) []KlineRecord {
	type key struct {
		symbol string
		ts     int64
	}
	seen := make(map[key]KlineRecord, len(existing)+len(incoming))
	for _, r := range existing {
		seen[key{r.Symbol, r.Timestamp}] = r
	}
	for _, r := range incoming {
		seen[key{r.Symbol, r.Timestamp}] = r
	}

	merged := make([]KlineRecord, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Timestamp < merged[j].Timestamp
	})
	return merged
}
