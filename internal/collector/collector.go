package collector

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"TradeSentinel/internal/metrics"
	"TradeSentinel/internal/model"
	"TradeSentinel/internal/util"
)

// MockFetcher returns controllable fixed data for development and testing.
type MockFetcher struct {
	mu     sync.Mutex
	Price  float64
	Step   float64 // fractional close-to-close drift per bar
	Bars   map[string][]model.OHLCV
	Prices map[string]float64
	Err    error
	Calls  int
}

func (m *MockFetcher) Name() string { return "mock" }

// SetPrice overrides the current price for one symbol.
func (m *MockFetcher) SetPrice(symbol string, price float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Prices == nil {
		m.Prices = make(map[string]float64)
	}
	m.Prices[symbol] = price
}

func (m *MockFetcher) FetchBars(ctx context.Context, symbol, timeframe string, limit int) ([]model.OHLCV, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.Err != nil {
		return nil, m.Err
	}
	if bars, ok := m.Bars[symbol]; ok {
		return bars, nil
	}
	width := time.Duration(timeframeDurations[timeframe]) * time.Second
	if width == 0 {
		width = 5 * time.Minute
	}
	return generateMockBars(m.Price, m.Step, limit, width), nil
}

func (m *MockFetcher) FetchCurrentPrice(ctx context.Context, symbol string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if m.Err != nil {
		return 0, m.Err
	}
	if p, ok := m.Prices[symbol]; ok {
		return p, nil
	}
	return m.Price, nil
}

func generateMockBars(basePrice, step float64, count int, width time.Duration) []model.OHLCV {
	if step == 0 {
		step = 0.001
	}
	end := time.Now().UTC().Truncate(width)
	bars := make([]model.OHLCV, count)
	for i := 0; i < count; i++ {
		p := basePrice * (1 + float64(i-count+1)*step)
		bars[i] = model.OHLCV{
			Time:   end.Add(-time.Duration(count-1-i) * width),
			Open:   p * 0.999,
			High:   p * 1.005,
			Low:    p * 0.995,
			Close:  p,
			Volume: 1000000,
		}
	}
	return bars
}

// Guard wraps a Fetcher with rate limiting, a per-call timeout and a circuit breaker.
// Every failure surfaces wrapped in ErrDataUnavailable.
type Guard struct {
	inner   Fetcher
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	timeout time.Duration
	log     zerolog.Logger
}

// NewGuard builds a Guard allowing rps requests per second with the given burst.
func NewGuard(inner Fetcher, rps float64, burst int, timeout time.Duration, log zerolog.Logger) *Guard {
	if burst < 1 {
		burst = 1
	}
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	return &Guard{
		inner:   inner,
		limiter: rate.NewLimiter(limit, burst),
		breaker: util.NewBreaker("fetch-" + inner.Name()),
		timeout: timeout,
		log:     log.With().Str("source", inner.Name()).Logger(),
	}
}

func (g *Guard) Name() string { return g.inner.Name() }

func (g *Guard) call(ctx context.Context, op string, fn func(context.Context) (interface{}, error)) (interface{}, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDataUnavailable, op, err)
	}
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	v, err := g.breaker.Execute(func() (interface{}, error) { return fn(ctx) })
	if err != nil {
		metrics.FeedDegradedTotal.WithLabelValues(g.inner.Name()).Inc()
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			g.log.Debug().Str("op", op).Msg("circuit open")
		} else {
			g.log.Warn().Err(err).Str("op", op).Msg("fetch failed")
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrDataUnavailable, op, err)
	}
	return v, nil
}

func (g *Guard) FetchBars(ctx context.Context, symbol, timeframe string, limit int) ([]model.OHLCV, error) {
	v, err := g.call(ctx, "bars "+symbol, func(ctx context.Context) (interface{}, error) {
		return g.inner.FetchBars(ctx, symbol, timeframe, limit)
	})
	if err != nil {
		return nil, err
	}
	return v.([]model.OHLCV), nil
}

func (g *Guard) FetchCurrentPrice(ctx context.Context, symbol string) (float64, error) {
	v, err := g.call(ctx, "price "+symbol, func(ctx context.Context) (interface{}, error) {
		return g.inner.FetchCurrentPrice(ctx, symbol)
	})
	if err != nil {
		return 0, err
	}
	return v.(float64), nil
}

// Collect fetches bars for one symbol and packages them as a series.
func Collect(ctx context.Context, f Fetcher, symbol, timeframe string, limit int) (*model.PriceSeries, error) {
	bars, err := f.FetchBars(ctx, symbol, timeframe, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch %s bars for %s: %w", timeframe, symbol, err)
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("fetch %s bars for %s: %w: empty response", timeframe, symbol, ErrDataUnavailable)
	}
	return &model.PriceSeries{
		Symbol:    symbol,
		Timeframe: timeframe,
		Bars:      bars,
		FetchedAt: time.Now().UTC(),
	}, nil
}
