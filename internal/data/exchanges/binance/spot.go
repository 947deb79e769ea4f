package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/sawpanic/bookscope/internal/microstructure"
)

// KlineRequest selects a candlestick window; zero fields are omitted
type KlineRequest struct {
	Symbol    string
	Interval  string
	StartTime time.Time
	EndTime   time.Time
	Limit     int
}

func (r KlineRequest) params() (url.Values, error) {
	if r.Symbol == "" || r.Interval == "" {
		return nil, fmt.Errorf("klines require symbol and interval")
	}
	params := url.Values{}
	params.Set("symbol", normalizeSymbol(r.Symbol))
	params.Set("interval", r.Interval)
	setTime(params, "startTime", r.StartTime)
	setTime(params, "endTime", r.EndTime)
	return withLimit(params, r.Limit), nil
}

// Ping checks connectivity
func (c *Client) Ping(ctx context.Context) error {
	return c.getJSON(ctx, c.cfg.SpotBaseURL, spotPingPath, nil, nil)
}

// ServerTime returns the spot venue clock
func (c *Client) ServerTime(ctx context.Context) (time.Time, error) {
	var st ServerTime
	if err := c.getJSON(ctx, c.cfg.SpotBaseURL, spotTimePath, nil, &st); err != nil {
		return time.Time{}, err
	}
	return st.Time(), nil
}

// ExchangeInfo returns spot trading rules, optionally narrowed to symbols
func (c *Client) ExchangeInfo(ctx context.Context, symbols ...string) (ExchangeInfo, error) {
	params := url.Values{}
	switch len(symbols) {
	case 0:
	case 1:
		params.Set("symbol", normalizeSymbol(symbols[0]))
	default:
		normalized := make([]string, len(symbols))
		for i, s := range symbols {
			normalized[i] = normalizeSymbol(s)
		}
		encoded, err := json.Marshal(normalized)
		if err != nil {
			return ExchangeInfo{}, err
		}
		params.Set("symbols", string(encoded))
	}

	var info ExchangeInfo
	err := c.getJSON(ctx, c.cfg.SpotBaseURL, spotExchangeInfoPath, params, &info)
	return info, err
}

// TickerPrice returns the latest price for symbol, or for every symbol when empty
func (c *Client) TickerPrice(ctx context.Context, symbol string) ([]TickerPrice, error) {
	return tickerLike[TickerPrice](ctx, c, c.cfg.SpotBaseURL, spotTickerPricePath, symbol)
}

// OrderBook fetches a depth snapshot. A non-positive limit uses the configured default.
func (c *Client) OrderBook(ctx context.Context, symbol string, limit int) (microstructure.OrderBookSnapshot, error) {
	return c.orderBook(ctx, c.cfg.SpotBaseURL, spotDepthPath, symbol, limit)
}

// RecentTrades fetches the latest prints, oldest first
func (c *Client) RecentTrades(ctx context.Context, symbol string, limit int) ([]microstructure.Trade, error) {
	return c.recentTrades(ctx, c.cfg.SpotBaseURL, spotTradesPath, symbol, limit)
}

// Klines fetches spot candlesticks
func (c *Client) Klines(ctx context.Context, req KlineRequest) ([]Kline, error) {
	return c.klines(ctx, c.cfg.SpotBaseURL, spotKlinesPath, req)
}

func (c *Client) orderBook(ctx context.Context, base, path, symbol string, limit int) (microstructure.OrderBookSnapshot, error) {
	if symbol == "" {
		return microstructure.OrderBookSnapshot{}, fmt.Errorf("order book requires a symbol")
	}
	if limit <= 0 {
		limit = c.cfg.DepthLimit
	}
	symbol = normalizeSymbol(symbol)
	params := withLimit(url.Values{"symbol": {symbol}}, limit)

	var depth depthResponse
	if err := c.getJSON(ctx, base, path, params, &depth); err != nil {
		return microstructure.OrderBookSnapshot{}, err
	}
	return depth.snapshot(symbol, c.now().UTC()), nil
}

func (c *Client) recentTrades(ctx context.Context, base, path, symbol string, limit int) ([]microstructure.Trade, error) {
	if symbol == "" {
		return nil, fmt.Errorf("trades require a symbol")
	}
	if limit <= 0 {
		limit = c.cfg.TradesLimit
	}
	params := withLimit(url.Values{"symbol": {normalizeSymbol(symbol)}}, limit)

	var rows []tradeResponse
	if err := c.getJSON(ctx, base, path, params, &rows); err != nil {
		return nil, err
	}
	trades := make([]microstructure.Trade, len(rows))
	for i, row := range rows {
		trades[i] = row.trade()
	}
	return trades, nil
}

func (c *Client) klines(ctx context.Context, base, path string, req KlineRequest) ([]Kline, error) {
	params, err := req.params()
	if err != nil {
		return nil, err
	}
	var out []Kline
	err = c.getJSON(ctx, base, path, params, &out)
	return out, err
}

func tickerLike[T any](ctx context.Context, c *Client, base, path, symbol string) ([]T, error) {
	params := url.Values{}
	if symbol != "" {
		params.Set("symbol", normalizeSymbol(symbol))
	}
	var raw json.RawMessage
	if err := c.getJSON(ctx, base, path, params, &raw); err != nil {
		return nil, err
	}
	out, err := oneOrMany[T](raw)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return out, nil
}

func setTime(params url.Values, key string, t time.Time) {
	if !t.IsZero() {
		params.Set(key, strconv.FormatInt(t.UnixMilli(), 10))
	}
}
