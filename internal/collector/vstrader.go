package collector

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"time"

	"TradeSentinel/internal/model"
)

// VsTraderFetcher implements Fetcher using the vstrader REST API.
type VsTraderFetcher struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
}

// NewVsTraderFetcher creates a new fetcher with optional proxy support.
func NewVsTraderFetcher(baseURL, apiKey, proxyURL string) *VsTraderFetcher {
	return &VsTraderFetcher{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Client:  newHTTPClient(proxyURL, 30*time.Second),
	}
}

func (f *VsTraderFetcher) Name() string { return "vstrader" }

// vsBar is the expected JSON shape from the vstrader API.
type vsBar struct {
	Timestamp int64   `json:"timestamp"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
}

func (f *VsTraderFetcher) FetchBars(ctx context.Context, symbol, timeframe string, limit int) ([]model.OHLCV, error) {
	secs, ok := timeframeDurations[timeframe]
	if !ok {
		return nil, fmt.Errorf("vstrader: unsupported timeframe %q", timeframe)
	}
	endpoint := fmt.Sprintf("%s/api/v1/bars?symbol=%s&interval=%s&limit=%d",
		f.BaseURL, url.QueryEscape(symbol), timeframe, limit)
	bars, err := f.fetchBars(ctx, endpoint)
	if err == nil || timeframe == "1m" || timeframe == "1d" {
		return bars, err
	}

	// Fallback: fetch minute bars and aggregate to the requested interval.
	factor := int(secs / 60)
	minuteEndpoint := fmt.Sprintf("%s/api/v1/bars?symbol=%s&interval=1m&limit=%d",
		f.BaseURL, url.QueryEscape(symbol), limit*factor)
	minute, minuteErr := f.fetchBars(ctx, minuteEndpoint)
	if minuteErr != nil {
		return nil, fmt.Errorf("%s fetch failed: %w; minute fallback also failed: %w", timeframe, err, minuteErr)
	}
	agg := aggregateBars(minute, time.Duration(secs)*time.Second)
	if len(agg) > limit {
		agg = agg[len(agg)-limit:]
	}
	return agg, nil
}

func (f *VsTraderFetcher) FetchCurrentPrice(ctx context.Context, symbol string) (float64, error) {
	var quote struct {
		Price float64 `json:"price"`
	}
	endpoint := fmt.Sprintf("%s/api/v1/quote?symbol=%s", f.BaseURL, url.QueryEscape(symbol))
	if err := getJSON(ctx, f.Client, "vstrader", endpoint, f.auth(), &quote); err != nil {
		return 0, err
	}
	return quote.Price, nil
}

func (f *VsTraderFetcher) auth() http.Header {
	h := http.Header{}
	if f.APIKey != "" {
		h.Set("Authorization", "Bearer "+f.APIKey)
	}
	return h
}

func (f *VsTraderFetcher) fetchBars(ctx context.Context, endpoint string) ([]model.OHLCV, error) {
	var raw []vsBar
	if err := getJSON(ctx, f.Client, "vstrader", endpoint, f.auth(), &raw); err != nil {
		return nil, err
	}
	bars := make([]model.OHLCV, len(raw))
	for i, vb := range raw {
		bars[i] = model.OHLCV{
			Time:   time.Unix(vb.Timestamp, 0).UTC(),
			Open:   vb.Open,
			High:   vb.High,
			Low:    vb.Low,
			Close:  vb.Close,
			Volume: vb.Volume,
		}
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Time.Before(bars[j].Time) })
	return bars, nil
}

// aggregateBars resamples chronological bars into buckets of the given width.
func aggregateBars(bars []model.OHLCV, width time.Duration) []model.OHLCV {
	if len(bars) == 0 {
		return nil
	}
	var out []model.OHLCV
	var cur model.OHLCV
	var bucket time.Time
	started := false

	for _, b := range bars {
		key := b.Time.Truncate(width)
		if !started || !key.Equal(bucket) {
			if started {
				out = append(out, cur)
			}
			bucket = key
			cur = model.OHLCV{Time: key, Open: b.Open, High: b.High, Low: b.Low, Close: b.Close, Volume: b.Volume}
			started = true
			continue
		}
		if b.High > cur.High {
			cur.High = b.High
		}
		if b.Low < cur.Low {
			cur.Low = b.Low
		}
		cur.Close = b.Close
		cur.Volume += b.Volume
	}
	out = append(out, cur)
	return out
}
