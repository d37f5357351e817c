package model

import "time"

// OHLCV represents a single candlestick bar.
type OHLCV struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Tick is a single price observation for an open position.
type Tick struct {
	Symbol string
	Price  float64
	Time   time.Time
}

// PriceSeries holds the raw bars fetched for one symbol.
type PriceSeries struct {
	Symbol    string
	Timeframe string
	Bars      []OHLCV
	FetchedAt time.Time
}

// Last returns the most recent bar. Callers must check the series is non-empty.
func (s *PriceSeries) Last() OHLCV {
	return s.Bars[len(s.Bars)-1]
}
