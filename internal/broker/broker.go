// Package broker submits orders to a venue and reports account equity.
package broker

import (
	"context"
	"errors"
	"time"
)

// ErrOrderRejected is returned when the venue refuses or cannot fill an order.
var ErrOrderRejected = errors.New("order rejected")

// Side enumerates order directions.
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// OrderRequest is a market order. Price is the reference price used for paper fills.
type OrderRequest struct {
	Symbol   string
	Side     Side
	Quantity float64
	Price    float64
}

// Fill reports an executed order.
type Fill struct {
	OrderID  string
	Symbol   string
	Side     Side
	Quantity float64
	Price    float64
	At       time.Time
}

// Account is the venue-side view of the trading account.
type Account struct {
	Equity float64
	Cash   float64
}

// Gateway is implemented by every execution venue.
type Gateway interface {
	SubmitOrder(ctx context.Context, req OrderRequest) (Fill, error)
	GetAccount(ctx context.Context) (Account, error)
	Name() string
}
