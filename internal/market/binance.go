package market

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/ppmina/Xdata/internal/domain"
	"github.com/ppmina/Xdata/internal/util"
)

// Compile-time interface check.
var _ DataSource = (*BinanceClient)(nil)

const (
	defaultFuturesURL = "https://fapi.binance.com"
	klineBatchLimit   = 1500

	// exchangeInfoTTL bounds how long listing metadata is reused before the
	// venue is asked again.
	exchangeInfoTTL = time.Hour
)

// BinanceClient implements DataSource against the Binance USDT-margined
// futures REST API.
type BinanceClient struct {
	http       *resty.Client
	quoteAsset string
	meta       *util.TTLCache
	log        *slog.Logger
}

// BinanceOpts configures a BinanceClient. Zero values select the production
// endpoint, USDT quote filtering, and a 30 second request timeout.
type BinanceOpts struct {
	BaseURL    string
	APIKey     string
	QuoteAsset string
	Timeout    time.Duration
}

// NewBinanceClient creates a client for the Binance perpetual futures API.
// Market-data endpoints are public; the API key is attached when provided.
func NewBinanceClient(opts BinanceOpts) *BinanceClient {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = defaultFuturesURL
	}
	quote := opts.QuoteAsset
	if quote == "" {
		quote = "USDT"
	}
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	http := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout)
	if opts.APIKey != "" {
		http.SetHeader("X-MBX-APIKEY", opts.APIKey)
	}

	return &BinanceClient{
		http:       http,
		quoteAsset: quote,
		meta:       util.NewTTLCache(exchangeInfoTTL),
		log:        slog.Default().With("source", "binance"),
	}
}

// Name returns the source identifier.
func (c *BinanceClient) Name() string { return "binance" }

type symbolInfo struct {
	Symbol       string `json:"symbol"`
	Status       string `json:"status"`
	ContractType string `json:"contractType"`
	QuoteAsset   string `json:"quoteAsset"`
	OnboardDate  int64  `json:"onboardDate"`
}

type exchangeInfoResponse struct {
	Symbols []symbolInfo `json:"symbols"`
}

// perpetualSymbols returns listing metadata for all trading USDT perpetuals,
// keyed by symbol. Results are cached briefly to keep universe construction
// from hammering the exchangeInfo endpoint.
func (c *BinanceClient) perpetualSymbols(ctx context.Context) (map[string]symbolInfo, error) {
	v, err := c.meta.GetOrCompute("exchangeInfo", func() (any, error) {
		var body []byte
		err := util.Retry(ctx, 3, time.Second, func() error {
			resp, err := c.http.R().SetContext(ctx).Get("/fapi/v1/exchangeInfo")
			if err != nil {
				return fmt.Errorf("exchangeInfo: %w", err)
			}
			if resp.IsError() {
				return apiError(resp)
			}
			body = resp.Body()
			return nil
		})
		if err != nil {
			return nil, err
		}

		var info exchangeInfoResponse
		if err := json.Unmarshal(body, &info); err != nil {
			return nil, fmt.Errorf("decoding exchangeInfo: %w", err)
		}

		out := make(map[string]symbolInfo, len(info.Symbols))
		for _, s := range info.Symbols {
			if s.ContractType != "PERPETUAL" || s.QuoteAsset != c.quoteAsset {
				continue
			}
			if s.Status != "TRADING" {
				continue
			}
			out[s.Symbol] = s
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(map[string]symbolInfo), nil
}

// ListTradableInstruments returns perpetual symbols listed on or before the
// end of the asOf day.
func (c *BinanceClient) ListTradableInstruments(ctx context.Context, asOf time.Time) ([]string, error) {
	symbols, err := c.perpetualSymbols(ctx)
	if err != nil {
		return nil, err
	}

	dayEnd := time.Date(asOf.Year(), asOf.Month(), asOf.Day(), 0, 0, 0, 0, time.UTC).
		AddDate(0, 0, 1).Add(-time.Millisecond)
	cutoff := dayEnd.UnixMilli()

	out := make([]string, 0, len(symbols))
	for sym, info := range symbols {
		if info.OnboardDate <= cutoff {
			out = append(out, sym)
		}
	}
	return out, nil
}

// FirstListingDate returns the symbol's onboard date on the venue.
func (c *BinanceClient) FirstListingDate(ctx context.Context, symbol string) (time.Time, error) {
	symbols, err := c.perpetualSymbols(ctx)
	if err != nil {
		return time.Time{}, err
	}
	info, ok := symbols[symbol]
	if !ok {
		return time.Time{}, &ErrUnknownSymbol{Symbol: symbol}
	}
	return time.UnixMilli(info.OnboardDate).UTC(), nil
}

// FetchKlines pages through /fapi/v1/klines until the requested range is
// covered, returning klines ordered by open time ascending.
func (c *BinanceClient) FetchKlines(ctx context.Context, symbol string, freq domain.Freq, startTS, endTS int64) ([]domain.Kline, error) {
	var out []domain.Kline
	cursor := startTS

	for cursor <= endTS {
		resp, err := c.http.R().
			SetContext(ctx).
			SetQueryParams(map[string]string{
				"symbol":    symbol,
				"interval":  freq.String(),
				"startTime": strconv.FormatInt(cursor, 10),
				"endTime":   strconv.FormatInt(endTS, 10),
				"limit":     strconv.Itoa(klineBatchLimit),
			}).
			Get("/fapi/v1/klines")
		if err != nil {
			return nil, fmt.Errorf("klines %s: %w", symbol, err)
		}
		if resp.IsError() {
			return nil, apiError(resp)
		}

		batch, err := parseKlines(symbol, resp.Body())
		if err != nil {
			return nil, fmt.Errorf("klines %s: %w", symbol, err)
		}
		if len(batch) == 0 {
			break
		}

		out = append(out, batch...)
		if len(batch) < klineBatchLimit {
			break
		}
		cursor = batch[len(batch)-1].OpenTime + freq.Duration().Milliseconds()
	}

	return out, nil
}

// MeanQuoteVolume averages daily quote volume over [start, end]. ok is false
// when the symbol produced no bars in the window.
func (c *BinanceClient) MeanQuoteVolume(ctx context.Context, symbol string, start, end time.Time) (float64, bool, error) {
	startTS := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC).UnixMilli()
	endTS := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, time.UTC).
		AddDate(0, 0, 1).Add(-time.Millisecond).UnixMilli()

	klines, err := c.FetchKlines(ctx, symbol, domain.Freq1d, startTS, endTS)
	if err != nil {
		return 0, false, err
	}
	if len(klines) == 0 {
		return 0, false, nil
	}

	var sum float64
	for _, k := range klines {
		sum += k.QuoteVolume
	}
	return sum / float64(len(klines)), true, nil
}

// parseKlines decodes the venue's positional kline arrays:
// [openTime, open, high, low, close, volume, closeTime, quoteVolume,
// trades, takerBuyVolume, takerBuyQuoteVolume, ignore].
func parseKlines(symbol string, body []byte) ([]domain.Kline, error) {
	// Kline rows mix numbers and strings, so decode as any-typed rows.
	var rows [][]any
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decoding kline rows: %w", err)
	}
	out := make([]domain.Kline, 0, len(rows))
	for i, row := range rows {
		if len(row) < 11 {
			return nil, fmt.Errorf("kline row %d has %d fields, want 11+", i, len(row))
		}

		openTime, err := asInt64(row[0])
		if err != nil {
			return nil, fmt.Errorf("kline row %d open time: %w", i, err)
		}
		trades, err := asInt64(row[8])
		if err != nil {
			return nil, fmt.Errorf("kline row %d trades: %w", i, err)
		}

		floats := make([]float64, 0, 8)
		for _, idx := range []int{1, 2, 3, 4, 5, 7, 9, 10} {
			f, err := asFloat(row[idx])
			if err != nil {
				return nil, fmt.Errorf("kline row %d field %d: %w", i, idx, err)
			}
			floats = append(floats, f)
		}

		out = append(out, domain.Kline{
			Symbol:              symbol,
			OpenTime:            openTime,
			Open:                floats[0],
			High:                floats[1],
			Low:                 floats[2],
			Close:               floats[3],
			Volume:              floats[4],
			QuoteVolume:         floats[5],
			TradesCount:         trades,
			TakerBuyVolume:      floats[6],
			TakerBuyQuoteVolume: floats[7],
		})
	}
	return out, nil
}

func asInt64(v any) (int64, error) {
	switch x := v.(type) {
	case json.Number:
		return x.Int64()
	case float64:
		return int64(x), nil
	case string:
		return strconv.ParseInt(x, 10, 64)
	default:
		return 0, fmt.Errorf("unexpected type %T", v)
	}
}

func asFloat(v any) (float64, error) {
	switch x := v.(type) {
	case json.Number:
		return x.Float64()
	case float64:
		return x, nil
	case string:
		return strconv.ParseFloat(x, 64)
	default:
		return 0, fmt.Errorf("unexpected type %T", v)
	}
}

type venueErrorBody struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

func apiError(resp *resty.Response) error {
	var body venueErrorBody
	_ = json.Unmarshal(resp.Body(), &body)

	msg := body.Msg
	if msg == "" {
		msg = resp.Status()
	}
	return &APIError{
		Status:  resp.StatusCode(),
		Code:    body.Code,
		Message: msg,
	}
}
