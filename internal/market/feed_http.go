package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"TradeSentinel/internal/util"
)

const (
	DefaultSentimentURL = "https://api.alternative.me/fng/?limit=1"
	DefaultDominanceURL = "https://api.coingecko.com/api/v3/global"
)

type cached[T any] struct {
	value T
	at    time.Time
	ok    bool
}

// HTTPFeed reads the Fear & Greed index and BTC dominance over HTTP, caching each for TTL.
type HTTPFeed struct {
	SentimentURL string
	DominanceURL string
	TTL          time.Duration
	Client       *http.Client

	breaker   *gobreaker.CircuitBreaker
	now       func() time.Time
	mu        sync.Mutex
	sentiment cached[int]
	dominance cached[float64]
}

// NewHTTPFeed creates a feed with optional proxy support.
func NewHTTPFeed(sentimentURL, dominanceURL string, ttl time.Duration, proxyURL string) *HTTPFeed {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	if sentimentURL == "" {
		sentimentURL = DefaultSentimentURL
	}
	if dominanceURL == "" {
		dominanceURL = DefaultDominanceURL
	}
	return &HTTPFeed{
		SentimentURL: sentimentURL,
		DominanceURL: dominanceURL,
		TTL:          ttl,
		Client:       &http.Client{Timeout: 15 * time.Second, Transport: transport},
		breaker:      util.NewBreaker("market-feed"),
		now:          time.Now,
	}
}

// Sentiment returns the latest Fear & Greed value (0-100).
func (f *HTTPFeed) Sentiment(ctx context.Context) (int, error) {
	f.mu.Lock()
	if f.sentiment.ok && f.now().Sub(f.sentiment.at) < f.TTL {
		v := f.sentiment.value
		f.mu.Unlock()
		return v, nil
	}
	f.mu.Unlock()

	var resp struct {
		Data []struct {
			Value string `json:"value"`
		} `json:"data"`
	}
	if err := f.getJSON(ctx, f.SentimentURL, &resp); err != nil {
		return 0, err
	}
	if len(resp.Data) == 0 {
		return 0, fmt.Errorf("sentiment: empty response: %w", ErrFeedUnavailable)
	}
	v, err := strconv.Atoi(resp.Data[0].Value)
	if err != nil || v < 0 || v > 100 {
		return 0, fmt.Errorf("sentiment: invalid value %q: %w", resp.Data[0].Value, ErrFeedUnavailable)
	}

	f.mu.Lock()
	f.sentiment = cached[int]{value: v, at: f.now(), ok: true}
	f.mu.Unlock()
	return v, nil
}

// Dominance returns BTC market-cap dominance as a fraction.
func (f *HTTPFeed) Dominance(ctx context.Context) (float64, error) {
	f.mu.Lock()
	if f.dominance.ok && f.now().Sub(f.dominance.at) < f.TTL {
		v := f.dominance.value
		f.mu.Unlock()
		return v, nil
	}
	f.mu.Unlock()

	var resp struct {
		Data struct {
			MarketCapPercentage map[string]float64 `json:"market_cap_percentage"`
		} `json:"data"`
	}
	if err := f.getJSON(ctx, f.DominanceURL, &resp); err != nil {
		return 0, err
	}
	pct, ok := resp.Data.MarketCapPercentage["btc"]
	if !ok {
		return 0, fmt.Errorf("dominance: btc share missing: %w", ErrFeedUnavailable)
	}
	v := pct / 100

	f.mu.Lock()
	f.dominance = cached[float64]{value: v, at: f.now(), ok: true}
	f.mu.Unlock()
	return v, nil
}

func (f *HTTPFeed) getJSON(ctx context.Context, endpoint string, out interface{}) error {
	_, err := f.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		resp, err := f.Client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return nil, fmt.Errorf("status %d, body: %s", resp.StatusCode, string(body))
		}
		return nil, json.NewDecoder(resp.Body).Decode(out)
	})
	if err != nil {
		return fmt.Errorf("fetch %s: %v: %w", endpoint, err, ErrFeedUnavailable)
	}
	return nil
}
