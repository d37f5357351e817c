package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"TradeSentinel/internal/metrics"
	"TradeSentinel/internal/model"
)

const binanceStreamURL = "wss://stream.binance.com:9443/stream"

type binanceEnvelope struct {
	Stream string       `json:"stream"`
	Data   binanceTrade `json:"data"`
}

type binanceTrade struct {
	Price     string `json:"p"`
	TradeTime int64  `json:"T"`
}

// TradeStream pushes live trade prices for held symbols as ticks.
type TradeStream struct {
	URL     string
	Quote   string
	Symbols []string // engine-side names, e.g. BTC/USD
	log     zerolog.Logger
}

// NewTradeStream creates a Binance trade stream for the given symbols.
func NewTradeStream(symbols []string, log zerolog.Logger) *TradeStream {
	return &TradeStream{
		URL:     binanceStreamURL,
		Quote:   "USDT",
		Symbols: symbols,
		log:     log.With().Str("component", "trade-stream").Logger(),
	}
}

// Run reconnects with backoff until ctx is cancelled.
func (s *TradeStream) Run(ctx context.Context, out chan<- model.Tick) error {
	if len(s.Symbols) == 0 {
		return fmt.Errorf("trade stream requires at least one symbol")
	}
	names := make(map[string]string, len(s.Symbols))
	streams := make([]string, len(s.Symbols))
	for i, sym := range s.Symbols {
		ex := BinanceSymbol(sym, s.Quote)
		names[ex] = sym
		streams[i] = strings.ToLower(ex) + "@trade"
	}
	url := fmt.Sprintf("%s?streams=%s", s.URL, strings.Join(streams, "/"))

	backoff := time.Second
	const maxBackoff = 30 * time.Second
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := s.consume(ctx, url, names, out); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.log.Warn().Err(err).Msg("trade stream disconnected, retrying")
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			backoff = time.Duration(math.Min(float64(maxBackoff), float64(backoff)*1.8))
			continue
		}
		return nil
	}
}

func (s *TradeStream) consume(ctx context.Context, url string, names map[string]string, out chan<- model.Tick) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	s.log.Info().Strs("symbols", s.Symbols).Msg("connected trade stream")

	conn.SetReadLimit(1 << 20)
	conn.SetReadDeadline(time.Now().Add(30 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(30 * time.Second))
		return nil
	})

	pingCtx, pingCancel := context.WithCancel(ctx)
	defer pingCancel()
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					s.log.Warn().Err(err).Msg("trade stream ping failed")
					return
				}
			case <-pingCtx.Done():
				return
			}
		}
	}()

	// Unblock ReadMessage on shutdown.
	go func() {
		<-pingCtx.Done()
		conn.Close()
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		conn.SetReadDeadline(time.Now().Add(30 * time.Second))

		tick, ok := s.decode(message, names)
		if !ok {
			continue
		}
		select {
		case out <- tick:
			metrics.TicksTotal.WithLabelValues(tick.Symbol).Inc()
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *TradeStream) decode(message []byte, names map[string]string) (model.Tick, bool) {
	var env binanceEnvelope
	if err := json.Unmarshal(message, &env); err != nil {
		s.log.Warn().Err(err).Msg("failed to decode trade message")
		return model.Tick{}, false
	}
	ex := strings.ToUpper(strings.SplitN(env.Stream, "@", 2)[0])
	symbol, ok := names[ex]
	if !ok {
		symbol = ex
	}
	px, err := strconv.ParseFloat(env.Data.Price, 64)
	if err != nil || px <= 0 {
		s.log.Warn().Str("stream", env.Stream).Msg("invalid trade price")
		return model.Tick{}, false
	}
	return model.Tick{
		Symbol: symbol,
		Price:  px,
		Time:   time.UnixMilli(env.Data.TradeTime).UTC(),
	}, true
}
