package broker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaperBrokerRoundTrip(t *testing.T) {
	ctx := context.Background()
	p := NewPaperBroker(10000, 1, 0)

	fill, err := p.SubmitOrder(ctx, OrderRequest{Symbol: "SPY", Side: Buy, Quantity: 10, Price: 100})
	require.NoError(t, err)
	assert.NotEmpty(t, fill.OrderID)
	assert.Equal(t, 100.0, fill.Price)
	assert.Equal(t, 10.0, p.Position("SPY"))

	p.Mark("SPY", 110)
	acct, err := p.GetAccount(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 9000, acct.Cash, 1e-9)
	assert.InDelta(t, 10100, acct.Equity, 1e-9)

	_, err = p.SubmitOrder(ctx, OrderRequest{Symbol: "SPY", Side: Sell, Quantity: 10, Price: 110})
	require.NoError(t, err)
	assert.InDelta(t, 100, p.RealizedPnL(), 1e-9)
	assert.Zero(t, p.Position("SPY"))
}

func TestPaperBrokerRejections(t *testing.T) {
	ctx := context.Background()
	p := NewPaperBroker(1000, 1, 0)

	_, err := p.SubmitOrder(ctx, OrderRequest{Symbol: "SPY", Side: Buy, Quantity: 20, Price: 100})
	assert.ErrorIs(t, err, ErrOrderRejected)

	_, err = p.SubmitOrder(ctx, OrderRequest{Symbol: "SPY", Side: Sell, Quantity: 1, Price: 100})
	assert.ErrorIs(t, err, ErrOrderRejected)

	_, err = p.SubmitOrder(ctx, OrderRequest{Symbol: "SPY", Side: Buy, Quantity: 0, Price: 100})
	assert.ErrorIs(t, err, ErrOrderRejected)
}

func TestPaperBrokerMarginAndSlippage(t *testing.T) {
	ctx := context.Background()
	p := NewPaperBroker(1000, 2, 0.01)

	fill, err := p.SubmitOrder(ctx, OrderRequest{Symbol: "BTC/USD", Side: Buy, Quantity: 15, Price: 100})
	require.NoError(t, err)
	assert.InDelta(t, 101, fill.Price, 1e-9)
}

func TestAlpacaSubmitPollsUntilFilled(t *testing.T) {
	polls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key", r.Header.Get("APCA-API-KEY-ID"))
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v2/orders":
			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "buy", body["side"])
			assert.Equal(t, "12", body["qty"])
			_, _ = w.Write([]byte(`{"id":"o1","status":"accepted"}`))
		case r.URL.Path == "/v2/orders/o1":
			polls++
			_, _ = w.Write([]byte(`{"id":"o1","status":"filled","filled_qty":"12","filled_avg_price":"100.25","filled_at":"2026-01-05T15:00:00Z"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	a := NewAlpacaBroker(srv.URL, "key", "secret", zerolog.Nop())
	a.PollInterval = time.Millisecond

	fill, err := a.SubmitOrder(context.Background(), OrderRequest{Symbol: "SPY", Side: Buy, Quantity: 12, Price: 100})
	require.NoError(t, err)
	assert.Equal(t, 1, polls)
	assert.Equal(t, "o1", fill.OrderID)
	assert.Equal(t, 100.25, fill.Price)
	assert.Equal(t, 12.0, fill.Quantity)
}

func TestAlpacaRejectedOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"insufficient buying power"}`, http.StatusForbidden)
	}))
	defer srv.Close()

	a := NewAlpacaBroker(srv.URL, "key", "secret", zerolog.Nop())
	_, err := a.SubmitOrder(context.Background(), OrderRequest{Symbol: "SPY", Side: Buy, Quantity: 1, Price: 100})
	assert.ErrorIs(t, err, ErrOrderRejected)
}

func TestAlpacaAccountAndClock(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v2/account":
			_, _ = w.Write([]byte(`{"equity":"25000.50","cash":"12000"}`))
		case "/v2/clock":
			_, _ = w.Write([]byte(`{"is_open":true}`))
		}
	}))
	defer srv.Close()

	a := NewAlpacaBroker(srv.URL, "key", "secret", zerolog.Nop())
	acct, err := a.GetAccount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 25000.5, acct.Equity)
	assert.Equal(t, 12000.0, acct.Cash)

	open, err := a.IsMarketOpen(context.Background(), time.Now())
	require.NoError(t, err)
	assert.True(t, open)
}
