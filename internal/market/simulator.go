package market

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/ppmina/Xdata/internal/domain"
)

// Compile-time interface check.
var _ DataSource = (*Simulator)(nil)

// SimInstrument describes one synthetic instrument served by the Simulator.
type SimInstrument struct {
	Symbol string
	// Listed is the first date the instrument is tradable.
	Listed time.Time
	// DailyQuoteVolume is the constant quote volume reported per day.
	DailyQuoteVolume float64
	// BasePrice anchors the synthetic price walk.
	BasePrice float64
}

// Simulator is a deterministic in-memory DataSource for tests and offline
// runs. Prices follow a fixed sinusoid around the base price so repeated
// runs produce identical data.
type Simulator struct {
	instruments map[string]SimInstrument
}

// NewSimulator creates a simulator serving the given instruments.
func NewSimulator(instruments ...SimInstrument) *Simulator {
	m := make(map[string]SimInstrument, len(instruments))
	for _, inst := range instruments {
		if inst.BasePrice == 0 {
			inst.BasePrice = 100
		}
		m[inst.Symbol] = inst
	}
	return &Simulator{instruments: m}
}

// Name returns the source identifier.
func (s *Simulator) Name() string { return "simulator" }

// ListTradableInstruments returns symbols listed on or before asOf, sorted.
func (s *Simulator) ListTradableInstruments(_ context.Context, asOf time.Time) ([]string, error) {
	var out []string
	for sym, inst := range s.instruments {
		if !inst.Listed.After(asOf) {
			out = append(out, sym)
		}
	}
	sort.Strings(out)
	return out, nil
}

// FirstListingDate returns the configured listing date.
func (s *Simulator) FirstListingDate(_ context.Context, symbol string) (time.Time, error) {
	inst, ok := s.instruments[symbol]
	if !ok {
		return time.Time{}, &ErrUnknownSymbol{Symbol: symbol}
	}
	return inst.Listed, nil
}

// FetchKlines synthesizes klines on the interval grid within [startTS, endTS].
func (s *Simulator) FetchKlines(_ context.Context, symbol string, freq domain.Freq, startTS, endTS int64) ([]domain.Kline, error) {
	inst, ok := s.instruments[symbol]
	if !ok {
		return nil, &ErrUnknownSymbol{Symbol: symbol}
	}

	step := freq.Duration().Milliseconds()
	listedTS := inst.Listed.UnixMilli()

	var out []domain.Kline
	for ts := startTS; ts <= endTS; ts += step {
		if ts < listedTS {
			continue
		}
		out = append(out, s.kline(inst, freq, ts))
	}
	return out, nil
}

// MeanQuoteVolume reports the configured constant daily volume when the
// instrument overlaps the window.
func (s *Simulator) MeanQuoteVolume(_ context.Context, symbol string, start, end time.Time) (float64, bool, error) {
	inst, ok := s.instruments[symbol]
	if !ok {
		return 0, false, &ErrUnknownSymbol{Symbol: symbol}
	}
	if inst.Listed.After(end) {
		return 0, false, nil
	}
	return inst.DailyQuoteVolume, true, nil
}

func (s *Simulator) kline(inst SimInstrument, freq domain.Freq, ts int64) domain.Kline {
	// A slow sinusoid keeps prices positive and runs reproducible.
	phase := float64(ts/1000%86400) / 86400 * 2 * math.Pi
	mid := inst.BasePrice * (1 + 0.01*math.Sin(phase))

	perDay := float64(24 * time.Hour / freq.Duration())
	if perDay < 1 {
		perDay = 1
	}
	quoteVol := inst.DailyQuoteVolume / perDay

	return domain.Kline{
		Symbol:              inst.Symbol,
		OpenTime:            ts,
		Open:                mid * 0.999,
		High:                mid * 1.001,
		Low:                 mid * 0.998,
		Close:               mid,
		Volume:              quoteVol / mid,
		QuoteVolume:         quoteVol,
		TradesCount:         100,
		TakerBuyVolume:      quoteVol / mid / 2,
		TakerBuyQuoteVolume: quoteVol / 2,
	}
}
