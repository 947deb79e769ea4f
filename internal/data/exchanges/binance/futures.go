package binance

import (
	"context"
	"net/url"
	"time"

	"github.com/sawpanic/bookscope/internal/microstructure"
)

// FundingRateRequest selects funding history; zero fields are omitted
type FundingRateRequest struct {
	Symbol    string
	StartTime time.Time
	EndTime   time.Time
	Limit     int
}

// FuturesExchangeInfo returns USDT-M futures trading rules
func (c *Client) FuturesExchangeInfo(ctx context.Context) (ExchangeInfo, error) {
	var info ExchangeInfo
	err := c.getJSON(ctx, c.cfg.FuturesBaseURL, futuresExchangeInfoPath, nil, &info)
	return info, err
}

// FundingRate returns funding settlements, oldest first
func (c *Client) FundingRate(ctx context.Context, req FundingRateRequest) ([]FundingRate, error) {
	params := url.Values{}
	if req.Symbol != "" {
		params.Set("symbol", normalizeSymbol(req.Symbol))
	}
	setTime(params, "startTime", req.StartTime)
	setTime(params, "endTime", req.EndTime)
	withLimit(params, req.Limit)

	var out []FundingRate
	err := c.getJSON(ctx, c.cfg.FuturesBaseURL, futuresFundingRatePath, params, &out)
	return out, err
}

// PremiumIndex returns mark/index/funding for symbol, or every symbol when empty
func (c *Client) PremiumIndex(ctx context.Context, symbol string) ([]PremiumIndex, error) {
	return tickerLike[PremiumIndex](ctx, c, c.cfg.FuturesBaseURL, futuresPremiumIndexPath, symbol)
}

// MarkPrice is served by the premium index endpoint
func (c *Client) MarkPrice(ctx context.Context, symbol string) ([]PremiumIndex, error) {
	return c.PremiumIndex(ctx, symbol)
}

// Ticker24hr returns rolling 24h statistics
func (c *Client) Ticker24hr(ctx context.Context, symbol string) ([]Ticker24hr, error) {
	return tickerLike[Ticker24hr](ctx, c, c.cfg.FuturesBaseURL, futuresTicker24hrPath, symbol)
}

// FuturesOrderBook fetches a futures depth snapshot stamped with the venue transaction time
func (c *Client) FuturesOrderBook(ctx context.Context, symbol string, limit int) (microstructure.OrderBookSnapshot, error) {
	return c.orderBook(ctx, c.cfg.FuturesBaseURL, futuresDepthPath, symbol, limit)
}

// FuturesRecentTrades fetches the latest futures prints
func (c *Client) FuturesRecentTrades(ctx context.Context, symbol string, limit int) ([]microstructure.Trade, error) {
	return c.recentTrades(ctx, c.cfg.FuturesBaseURL, futuresTradesPath, symbol, limit)
}

// FuturesKlines fetches futures candlesticks
func (c *Client) FuturesKlines(ctx context.Context, req KlineRequest) ([]Kline, error) {
	return c.klines(ctx, c.cfg.FuturesBaseURL, futuresKlinesPath, req)
}
