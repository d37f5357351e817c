package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"TradeSentinel/internal/util"
)

const (
	AlpacaPaperURL = "https://paper-api.alpaca.markets"
	AlpacaLiveURL  = "https://api.alpaca.markets"
)

// AlpacaBroker talks to the Alpaca trading REST API. It also serves as the
// exchange calendar through the /v2/clock endpoint.
type AlpacaBroker struct {
	BaseURL      string
	KeyID        string
	Secret       string
	PollInterval time.Duration
	Client       *http.Client
	breaker      *gobreaker.CircuitBreaker
	log          zerolog.Logger
}

// NewAlpacaBroker builds a client for baseURL.
func NewAlpacaBroker(baseURL, keyID, secret string, log zerolog.Logger) *AlpacaBroker {
	return &AlpacaBroker{
		BaseURL:      strings.TrimRight(baseURL, "/"),
		KeyID:        keyID,
		Secret:       secret,
		PollInterval: 500 * time.Millisecond,
		Client:       &http.Client{Timeout: 15 * time.Second},
		breaker:      util.NewBreaker("alpaca"),
		log:          log.With().Str("broker", "alpaca").Logger(),
	}
}

func (a *AlpacaBroker) Name() string { return "alpaca" }

type alpacaOrder struct {
	ID             string `json:"id"`
	Symbol         string `json:"symbol"`
	Side           string `json:"side"`
	Status         string `json:"status"`
	FilledQty      string `json:"filled_qty"`
	FilledAvgPrice string `json:"filled_avg_price"`
	FilledAt       string `json:"filled_at"`
}

type apiError struct {
	status int
	body   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("alpaca: status %d: %s", e.status, e.body)
}

func (a *AlpacaBroker) do(ctx context.Context, method, path string, body, out interface{}) error {
	_, err := a.breaker.Execute(func() (interface{}, error) {
		var rd io.Reader
		if body != nil {
			buf, err := json.Marshal(body)
			if err != nil {
				return nil, err
			}
			rd = bytes.NewReader(buf)
		}
		req, err := http.NewRequestWithContext(ctx, method, a.BaseURL+path, rd)
		if err != nil {
			return nil, err
		}
		req.Header.Set("APCA-API-KEY-ID", a.KeyID)
		req.Header.Set("APCA-API-SECRET-KEY", a.Secret)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		resp, err := a.Client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 300 {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return nil, &apiError{status: resp.StatusCode, body: string(msg)}
		}
		if out == nil {
			return nil, nil
		}
		return nil, json.NewDecoder(resp.Body).Decode(out)
	})
	return err
}

func (a *AlpacaBroker) SubmitOrder(ctx context.Context, req OrderRequest) (Fill, error) {
	if req.Quantity <= 0 {
		return Fill{}, fmt.Errorf("%w: quantity must be positive", ErrOrderRejected)
	}
	tif := "day"
	if strings.Contains(req.Symbol, "/") {
		tif = "gtc"
	}
	payload := map[string]string{
		"symbol":        req.Symbol,
		"qty":           strconv.FormatFloat(req.Quantity, 'f', -1, 64),
		"side":          strings.ToLower(string(req.Side)),
		"type":          "market",
		"time_in_force": tif,
	}
	var order alpacaOrder
	if err := a.do(ctx, http.MethodPost, "/v2/orders", payload, &order); err != nil {
		var ae *apiError
		if errors.As(err, &ae) && ae.status < 500 {
			return Fill{}, fmt.Errorf("%w: %v", ErrOrderRejected, err)
		}
		return Fill{}, fmt.Errorf("submit order: %w", err)
	}
	a.log.Info().Str("id", order.ID).Str("symbol", req.Symbol).Str("side", string(req.Side)).
		Float64("qty", req.Quantity).Msg("order submitted")

	for order.Status != "filled" {
		switch order.Status {
		case "canceled", "expired", "rejected", "suspended":
			return Fill{}, fmt.Errorf("%w: order %s %s", ErrOrderRejected, order.ID, order.Status)
		}
		select {
		case <-ctx.Done():
			return Fill{}, fmt.Errorf("order %s not filled: %w", order.ID, ctx.Err())
		case <-time.After(a.PollInterval):
		}
		if err := a.do(ctx, http.MethodGet, "/v2/orders/"+order.ID, nil, &order); err != nil {
			return Fill{}, fmt.Errorf("poll order %s: %w", order.ID, err)
		}
	}
	return toFill(order, req)
}

func toFill(o alpacaOrder, req OrderRequest) (Fill, error) {
	qty, err := strconv.ParseFloat(o.FilledQty, 64)
	if err != nil {
		return Fill{}, fmt.Errorf("parse filled_qty: %w", err)
	}
	price, err := strconv.ParseFloat(o.FilledAvgPrice, 64)
	if err != nil {
		return Fill{}, fmt.Errorf("parse filled_avg_price: %w", err)
	}
	at, err := time.Parse(time.RFC3339Nano, o.FilledAt)
	if err != nil {
		at = time.Now()
	}
	return Fill{
		OrderID:  o.ID,
		Symbol:   req.Symbol,
		Side:     req.Side,
		Quantity: qty,
		Price:    price,
		At:       at.UTC(),
	}, nil
}

func (a *AlpacaBroker) GetAccount(ctx context.Context) (Account, error) {
	var acct struct {
		Equity string `json:"equity"`
		Cash   string `json:"cash"`
	}
	if err := a.do(ctx, http.MethodGet, "/v2/account", nil, &acct); err != nil {
		return Account{}, fmt.Errorf("get account: %w", err)
	}
	equity, err := strconv.ParseFloat(acct.Equity, 64)
	if err != nil {
		return Account{}, fmt.Errorf("parse equity: %w", err)
	}
	cash, _ := strconv.ParseFloat(acct.Cash, 64)
	return Account{Equity: equity, Cash: cash}, nil
}

// IsMarketOpen reports the exchange clock state. The clock only answers for the
// present, so t is used for logging.
func (a *AlpacaBroker) IsMarketOpen(ctx context.Context, t time.Time) (bool, error) {
	var clock struct {
		IsOpen bool `json:"is_open"`
	}
	if err := a.do(ctx, http.MethodGet, "/v2/clock", nil, &clock); err != nil {
		return false, fmt.Errorf("get clock: %w", err)
	}
	a.log.Debug().Time("at", t).Bool("open", clock.IsOpen).Msg("market clock")
	return clock.IsOpen, nil
}
