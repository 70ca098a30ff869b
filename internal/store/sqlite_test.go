package store

import (
	"context"
	"fmt"
	"path/filepath"
	"reflect"
	"sync"
	"testing"

	"github.com/ppmina/Xdata/internal/domain"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleKlines(symbol string, baseTS int64, n int) []domain.Kline {
	const hour = int64(3600 * 1000)
	out := make([]domain.Kline, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, domain.Kline{
			Symbol:              symbol,
			OpenTime:            baseTS + int64(i)*hour,
			Open:                100 + float64(i),
			High:                105 + float64(i),
			Low:                 95 + float64(i),
			Close:               102 + float64(i),
			Volume:              10,
			QuoteVolume:         1000,
			TradesCount:         42,
			TakerBuyVolume:      6,
			TakerBuyQuoteVolume: 600,
		})
	}
	return out
}

func TestWriteAndReadKlines(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	klines := sampleKlines("BTCUSDT", 1700000000000, 5)
	if err := s.WriteKlines(ctx, domain.Freq1h, klines); err != nil {
		t.Fatalf("WriteKlines: %v", err)
	}

	got, err := s.ReadKlines(ctx, "BTCUSDT", domain.Freq1h, klines[0].OpenTime, klines[4].OpenTime)
	if err != nil {
		t.Fatalf("ReadKlines: %v", err)
	}
	if !reflect.DeepEqual(got, klines) {
		t.Errorf("round trip mismatch:\ngot  %+v\nwant %+v", got, klines)
	}

	// Partial range.
	got, err = s.ReadKlines(ctx, "BTCUSDT", domain.Freq1h, klines[1].OpenTime, klines[3].OpenTime)
	if err != nil {
		t.Fatalf("ReadKlines partial: %v", err)
	}
	if len(got) != 3 || got[0].OpenTime != klines[1].OpenTime {
		t.Errorf("partial read = %d rows starting %d", len(got), got[0].OpenTime)
	}

	// Other frequency and symbol are isolated.
	if got, _ := s.ReadKlines(ctx, "BTCUSDT", domain.Freq1d, 0, 1<<62); len(got) != 0 {
		t.Errorf("1d read returned %d rows", len(got))
	}
	if got, _ := s.ReadKlines(ctx, "ETHUSDT", domain.Freq1h, 0, 1<<62); len(got) != 0 {
		t.Errorf("other symbol read returned %d rows", len(got))
	}
}

func TestCountPoints(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	klines := sampleKlines("BTCUSDT", 1700000000000, 10)
	if err := s.WriteKlines(ctx, domain.Freq1h, klines); err != nil {
		t.Fatal(err)
	}

	n, err := s.CountPoints(ctx, "BTCUSDT", domain.Freq1h, klines[0].OpenTime, klines[9].OpenTime)
	if err != nil {
		t.Fatalf("CountPoints: %v", err)
	}
	if n != 10 {
		t.Errorf("count = %d, want 10", n)
	}

	n, _ = s.CountPoints(ctx, "BTCUSDT", domain.Freq1h, klines[2].OpenTime, klines[4].OpenTime)
	if n != 3 {
		t.Errorf("ranged count = %d, want 3", n)
	}

	n, _ = s.CountPoints(ctx, "MISSINGUSDT", domain.Freq1h, 0, 1<<62)
	if n != 0 {
		t.Errorf("missing symbol count = %d, want 0", n)
	}
}

func TestWriteKlinesUpsert(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	klines := sampleKlines("BTCUSDT", 1700000000000, 3)
	if err := s.WriteKlines(ctx, domain.Freq1h, klines); err != nil {
		t.Fatal(err)
	}

	// Re-downloading the same range replaces rows instead of duplicating.
	klines[1].Close = 999
	if err := s.WriteKlines(ctx, domain.Freq1h, klines); err != nil {
		t.Fatal(err)
	}

	n, _ := s.CountPoints(ctx, "BTCUSDT", domain.Freq1h, klines[0].OpenTime, klines[2].OpenTime)
	if n != 3 {
		t.Errorf("count after rewrite = %d, want 3", n)
	}

	got, err := s.ReadKlines(ctx, "BTCUSDT", domain.Freq1h, klines[1].OpenTime, klines[1].OpenTime)
	if err != nil || len(got) != 1 {
		t.Fatalf("single read = %v/%v", got, err)
	}
	if got[0].Close != 999 {
		t.Errorf("rewrite did not replace row: close = %v", got[0].Close)
	}
}

func TestWriteKlinesEmptyBatch(t *testing.T) {
	s := openTestStore(t)
	if err := s.WriteKlines(context.Background(), domain.Freq1h, nil); err != nil {
		t.Errorf("empty batch should be a no-op, got %v", err)
	}
}

func TestListSymbols(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for _, sym := range []string{"ETHUSDT", "BTCUSDT"} {
		if err := s.WriteKlines(ctx, domain.Freq1h, sampleKlines(sym, 1700000000000, 2)); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.WriteKlines(ctx, domain.Freq1d, sampleKlines("SOLUSDT", 1700000000000, 1)); err != nil {
		t.Fatal(err)
	}

	got, err := s.ListSymbols(ctx, domain.Freq1h)
	if err != nil {
		t.Fatalf("ListSymbols: %v", err)
	}
	if want := []string{"BTCUSDT", "ETHUSDT"}; !reflect.DeepEqual(got, want) {
		t.Errorf("ListSymbols(1h) = %v, want %v", got, want)
	}
}

func TestConcurrentWriters(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sym := fmt.Sprintf("SYM%dUSDT", i)
			errs <- s.WriteKlines(ctx, domain.Freq1h, sampleKlines(sym, 1700000000000, 20))
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent write: %v", err)
		}
	}

	syms, err := s.ListSymbols(ctx, domain.Freq1h)
	if err != nil {
		t.Fatal(err)
	}
	if len(syms) != 8 {
		t.Errorf("stored %d symbols, want 8", len(syms))
	}
	for _, sym := range syms {
		n, _ := s.CountPoints(ctx, sym, domain.Freq1h, 0, 1<<62)
		if n != 20 {
			t.Errorf("%s has %d points, want 20", sym, n)
		}
	}
}
