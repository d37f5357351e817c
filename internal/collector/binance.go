package collector

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"TradeSentinel/internal/model"
)

const binanceBaseURL = "https://api.binance.com"

// BinanceFetcher implements Fetcher using Binance public kline endpoints.
type BinanceFetcher struct {
	BaseURL string
	Quote   string // quote asset appended to bare pairs, e.g. USDT
	Client  *http.Client
}

// NewBinanceFetcher creates a Binance REST fetcher with optional proxy support.
func NewBinanceFetcher(proxyURL string) *BinanceFetcher {
	return &BinanceFetcher{
		BaseURL: binanceBaseURL,
		Quote:   "USDT",
		Client:  newHTTPClient(proxyURL, 15*time.Second),
	}
}

func (f *BinanceFetcher) Name() string { return "binance" }

// BinanceSymbol converts "BTC/USD" style pairs to exchange symbols such as "BTCUSDT".
func BinanceSymbol(symbol, quote string) string {
	s := strings.ToUpper(symbol)
	if i := strings.IndexAny(s, "/-"); i > 0 {
		return s[:i] + quote
	}
	return s
}

func (f *BinanceFetcher) get(ctx context.Context, endpoint string, out interface{}) error {
	return getJSON(ctx, f.Client, "binance", endpoint, nil, out)
}

func (f *BinanceFetcher) FetchBars(ctx context.Context, symbol, timeframe string, limit int) ([]model.OHLCV, error) {
	if !ValidTimeframe(timeframe) {
		return nil, fmt.Errorf("binance: unsupported timeframe %q", timeframe)
	}
	if limit > 1000 {
		limit = 1000
	}
	endpoint := fmt.Sprintf("%s/api/v3/klines?symbol=%s&interval=%s&limit=%d",
		f.BaseURL, BinanceSymbol(symbol, f.Quote), timeframe, limit)

	var rows [][]interface{}
	if err := f.get(ctx, endpoint, &rows); err != nil {
		return nil, err
	}
	bars := make([]model.OHLCV, 0, len(rows))
	for _, row := range rows {
		if len(row) < 6 {
			return nil, fmt.Errorf("binance: malformed kline with %d fields", len(row))
		}
		openTime, ok := row[0].(float64)
		if !ok {
			return nil, fmt.Errorf("binance: malformed kline open time")
		}
		var vals [5]float64
		for i := 0; i < 5; i++ {
			s, ok := row[i+1].(string)
			if !ok {
				return nil, fmt.Errorf("binance: malformed kline field %d", i+1)
			}
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, fmt.Errorf("binance: parse kline field %d: %w", i+1, err)
			}
			vals[i] = v
		}
		bars = append(bars, model.OHLCV{
			Time:   time.UnixMilli(int64(openTime)).UTC(),
			Open:   vals[0],
			High:   vals[1],
			Low:    vals[2],
			Close:  vals[3],
			Volume: vals[4],
		})
	}
	return bars, nil
}

func (f *BinanceFetcher) FetchCurrentPrice(ctx context.Context, symbol string) (float64, error) {
	endpoint := fmt.Sprintf("%s/api/v3/ticker/price?symbol=%s", f.BaseURL, BinanceSymbol(symbol, f.Quote))
	var result struct {
		Price string `json:"price"`
	}
	if err := f.get(ctx, endpoint, &result); err != nil {
		return 0, err
	}
	return strconv.ParseFloat(result.Price, 64)
}
