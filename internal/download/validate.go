package download

import "github.com/ppmina/Xdata/internal/domain"

// ValidateKlines drops records whose OHLC bracket is inconsistent or whose
// volume is negative, returning the surviving records and the drop count.
// The venue occasionally ships malformed rows; storing them would poison
// downstream consumers silently.
func ValidateKlines(klines []domain.Kline) (valid []domain.Kline, dropped int) {
	valid = make([]domain.Kline, 0, len(klines))
	for _, k := range klines {
		if k.High < k.Open || k.High < k.Close || k.High < k.Low {
			dropped++
			continue
		}
		if k.Low > k.Open || k.Low > k.Close {
			dropped++
			continue
		}
		if k.Volume < 0 || k.QuoteVolume < 0 {
			dropped++
			continue
		}
		valid = append(valid, k)
	}
	return valid, dropped
}
