// Package domain defines the shared value types for market data: klines,
// sampling frequencies, and symbol conventions.
package domain

import (
	"fmt"
	"regexp"
	"time"
)

// Freq is a kline sampling frequency, using the venue's interval notation.
type Freq string

// Supported kline frequencies.
const (
	Freq1m  Freq = "1m"
	Freq3m  Freq = "3m"
	Freq5m  Freq = "5m"
	Freq15m Freq = "15m"
	Freq30m Freq = "30m"
	Freq1h  Freq = "1h"
	Freq2h  Freq = "2h"
	Freq4h  Freq = "4h"
	Freq6h  Freq = "6h"
	Freq8h  Freq = "8h"
	Freq12h Freq = "12h"
	Freq1d  Freq = "1d"
)

var freqDurations = map[Freq]time.Duration{
	Freq1m:  time.Minute,
	Freq3m:  3 * time.Minute,
	Freq5m:  5 * time.Minute,
	Freq15m: 15 * time.Minute,
	Freq30m: 30 * time.Minute,
	Freq1h:  time.Hour,
	Freq2h:  2 * time.Hour,
	Freq4h:  4 * time.Hour,
	Freq6h:  6 * time.Hour,
	Freq8h:  8 * time.Hour,
	Freq12h: 12 * time.Hour,
	Freq1d:  24 * time.Hour,
}

// Duration returns the length of one interval at this frequency.
func (f Freq) Duration() time.Duration {
	return freqDurations[f]
}

// Valid reports whether f is one of the supported frequencies.
func (f Freq) Valid() bool {
	_, ok := freqDurations[f]
	return ok
}

// ParseFreq converts a string such as "1h" into a Freq.
func ParseFreq(s string) (Freq, error) {
	f := Freq(s)
	if !f.Valid() {
		return "", fmt.Errorf("invalid frequency %q", s)
	}
	return f, nil
}

func (f Freq) String() string { return string(f) }

// Kline is one OHLCV bar for a perpetual contract. OpenTime is a millisecond
// Unix timestamp, matching the venue's kline payload.
type Kline struct {
	Symbol              string
	OpenTime            int64
	Open                float64
	High                float64
	Low                 float64
	Close               float64
	Volume              float64
	QuoteVolume         float64
	TradesCount         int64
	TakerBuyVolume      float64
	TakerBuyQuoteVolume float64
}

// TakerSellVolume is the base-asset volume on the taker sell side.
func (k Kline) TakerSellVolume() float64 {
	return k.Volume - k.TakerBuyVolume
}

// TakerSellQuoteVolume is the quote-asset volume on the taker sell side.
func (k Kline) TakerSellQuoteVolume() float64 {
	return k.QuoteVolume - k.TakerBuyQuoteVolume
}

var symbolPattern = regexp.MustCompile(`^[A-Z0-9]+USDT$`)

// ValidSymbol reports whether s looks like a USDT-quoted perpetual symbol.
func ValidSymbol(s string) bool {
	return symbolPattern.MatchString(s)
}
