package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/sawpanic/bookscope/internal/microstructure"
)

const (
	DefaultTapeCapacity   = 1000
	defaultReconnectDelay = 5 * time.Second
)

// aggTradeEvent is a <symbol>@aggTrade push
type aggTradeEvent struct {
	EventType    string          `json:"e"`
	Symbol       string          `json:"s"`
	AggID        int64           `json:"a"`
	Price        decimal.Decimal `json:"p"`
	Quantity     decimal.Decimal `json:"q"`
	TradeTime    int64           `json:"T"`
	IsBuyerMaker bool            `json:"m"`
}

// TradeStream keeps a bounded tape of the most recent aggregated trades for one symbol
type TradeStream struct {
	url            string
	symbol         string
	dialer         *websocket.Dialer
	reconnectDelay time.Duration

	mu      sync.RWMutex
	ring    []microstructure.Trade
	next    int
	full    bool
	lastID  int64
	updates chan microstructure.Trade
}

// NewTradeStream creates a stream against baseURL (e.g. DefaultSpotStreamURL) keeping capacity trades
func NewTradeStream(baseURL, symbol string, capacity int) *TradeStream {
	if capacity <= 0 {
		capacity = DefaultTapeCapacity
	}
	return &TradeStream{
		url:            strings.TrimRight(baseURL, "/") + "/" + strings.ToLower(normalizeSymbol(symbol)) + "@aggTrade",
		symbol:         normalizeSymbol(symbol),
		dialer:         websocket.DefaultDialer,
		reconnectDelay: defaultReconnectDelay,
		ring:           make([]microstructure.Trade, capacity),
		lastID:         -1,
		updates:        make(chan microstructure.Trade, capacity),
	}
}

// Symbol is the upper-case symbol being streamed
func (s *TradeStream) Symbol() string {
	return s.symbol
}

// Updates delivers trades as they arrive. Sends never block: a slow reader misses updates
// but Tape still holds them.
func (s *TradeStream) Updates() <-chan microstructure.Trade {
	return s.updates
}

// Run connects and reads until ctx is done, reconnecting after failures
func (s *TradeStream) Run(ctx context.Context) error {
	for {
		err := s.connectAndRead(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn().Err(err).Str("symbol", s.symbol).Dur("retry_in", s.reconnectDelay).Msg("trade stream disconnected")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.reconnectDelay):
		}
	}
}

func (s *TradeStream) connectAndRead(ctx context.Context) error {
	conn, _, err := s.dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}
	defer conn.Close()
	log.Info().Str("symbol", s.symbol).Str("url", s.url).Msg("trade stream connected")

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("websocket read: %w", err)
		}
		if err := s.handle(message); err != nil {
			log.Debug().Err(err).Str("symbol", s.symbol).Msg("skipping stream message")
		}
	}
}

func (s *TradeStream) handle(message []byte) error {
	var event aggTradeEvent
	if err := json.Unmarshal(message, &event); err != nil {
		return err
	}
	if event.EventType != "aggTrade" {
		return fmt.Errorf("unexpected event %q", event.EventType)
	}
	trade := microstructure.Trade{
		ID:           event.AggID,
		Price:        event.Price,
		Quantity:     event.Quantity,
		Timestamp:    msTime(event.TradeTime),
		TakerIsBuyer: !event.IsBuyerMaker,
	}
	if !s.add(trade) {
		return nil
	}

	select {
	case s.updates <- trade:
	default:
	}
	return nil
}

// add appends trade to the ring, rejecting replays and out-of-order prints
func (s *TradeStream) add(trade microstructure.Trade) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if trade.ID <= s.lastID {
		return false
	}
	if last, ok := s.latestLocked(); ok && trade.Timestamp.Before(last.Timestamp) {
		return false
	}

	s.ring[s.next] = trade
	s.next = (s.next + 1) % len(s.ring)
	if s.next == 0 {
		s.full = true
	}
	s.lastID = trade.ID
	return true
}

func (s *TradeStream) latestLocked() (microstructure.Trade, bool) {
	if !s.full && s.next == 0 {
		return microstructure.Trade{}, false
	}
	return s.ring[(s.next-1+len(s.ring))%len(s.ring)], true
}

// Tape returns a copy of the retained trades, oldest first
func (s *TradeStream) Tape() []microstructure.Trade {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.full {
		out := make([]microstructure.Trade, s.next)
		copy(out, s.ring[:s.next])
		return out
	}
	out := make([]microstructure.Trade, 0, len(s.ring))
	out = append(out, s.ring[s.next:]...)
	return append(out, s.ring[:s.next]...)
}

// Len is the number of retained trades
func (s *TradeStream) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.full {
		return len(s.ring)
	}
	return s.next
}
