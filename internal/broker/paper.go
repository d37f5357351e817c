package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

const epsilon = 1e-9

type holding struct {
	Qty     float64
	AvgCost float64
}

// PaperBroker fills market orders locally against virtual cash.
type PaperBroker struct {
	mu           sync.Mutex
	startingCash float64
	cash         float64
	realizedPnL  float64
	margin       float64
	slippage     float64
	holdings     map[string]holding
	marks        map[string]float64
	now          func() time.Time
}

// NewPaperBroker constructs a paper account. margin >= 1 sets buying power as a
// multiple of starting cash; slippage is a fraction applied against the trader.
func NewPaperBroker(startingCash, margin, slippage float64) *PaperBroker {
	if margin < 1 {
		margin = 1
	}
	return &PaperBroker{
		startingCash: startingCash,
		cash:         startingCash,
		margin:       margin,
		slippage:     slippage,
		holdings:     make(map[string]holding),
		marks:        make(map[string]float64),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

func (p *PaperBroker) Name() string { return "paper" }

// Mark records the latest price for equity valuation.
func (p *PaperBroker) Mark(symbol string, price float64) {
	if price <= 0 {
		return
	}
	p.mu.Lock()
	p.marks[symbol] = price
	p.mu.Unlock()
}

func (p *PaperBroker) SubmitOrder(ctx context.Context, req OrderRequest) (Fill, error) {
	if err := ctx.Err(); err != nil {
		return Fill{}, err
	}
	if req.Quantity <= 0 {
		return Fill{}, fmt.Errorf("%w: quantity must be positive", ErrOrderRejected)
	}
	if req.Price <= 0 {
		return Fill{}, fmt.Errorf("%w: price must be positive", ErrOrderRejected)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	state := p.holdings[req.Symbol]
	price := req.Price
	switch req.Side {
	case Buy:
		price *= 1 + p.slippage
		notional := req.Quantity * price
		buyingPower := p.cash + (p.margin-1)*p.startingCash
		if notional > buyingPower+epsilon {
			return Fill{}, fmt.Errorf("%w: insufficient buying power", ErrOrderRejected)
		}
		newQty := state.Qty + req.Quantity
		p.cash -= notional
		p.holdings[req.Symbol] = holding{Qty: newQty, AvgCost: (state.AvgCost*state.Qty + notional) / newQty}

	case Sell:
		price *= 1 - p.slippage
		if state.Qty <= 0 || state.Qty+epsilon < req.Quantity {
			return Fill{}, fmt.Errorf("%w: insufficient position to sell", ErrOrderRejected)
		}
		p.realizedPnL += (price - state.AvgCost) * req.Quantity
		p.cash += req.Quantity * price
		if rest := state.Qty - req.Quantity; rest <= epsilon {
			delete(p.holdings, req.Symbol)
		} else {
			p.holdings[req.Symbol] = holding{Qty: rest, AvgCost: state.AvgCost}
		}

	default:
		return Fill{}, fmt.Errorf("%w: unknown side %q", ErrOrderRejected, req.Side)
	}

	p.marks[req.Symbol] = req.Price
	return Fill{
		OrderID:  uuid.NewString(),
		Symbol:   req.Symbol,
		Side:     req.Side,
		Quantity: req.Quantity,
		Price:    price,
		At:       p.now(),
	}, nil
}

// GetAccount marks holdings to the latest known prices.
func (p *PaperBroker) GetAccount(ctx context.Context) (Account, error) {
	if err := ctx.Err(); err != nil {
		return Account{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	equity := p.cash
	for sym, h := range p.holdings {
		mark := p.marks[sym]
		if mark == 0 {
			mark = h.AvgCost
		}
		equity += h.Qty * mark
	}
	return Account{Equity: equity, Cash: p.cash}, nil
}

// Position returns the held quantity for symbol.
func (p *PaperBroker) Position(symbol string) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.holdings[symbol].Qty
}

// RealizedPnL returns total closed-trade profit and loss.
func (p *PaperBroker) RealizedPnL() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.realizedPnL
}
