package binance

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sawpanic/bookscope/internal/microstructure"
)

// ServerTime is the venue clock
type ServerTime struct {
	ServerTime int64 `json:"serverTime"`
}

// Time converts the millisecond clock
func (s ServerTime) Time() time.Time {
	return msTime(s.ServerTime)
}

// ExchangeInfo lists trading rules and symbols
type ExchangeInfo struct {
	Timezone   string       `json:"timezone"`
	ServerTime int64        `json:"serverTime"`
	Symbols    []SymbolInfo `json:"symbols"`
}

// Symbol finds a symbol's rules
func (e ExchangeInfo) Symbol(symbol string) (SymbolInfo, bool) {
	symbol = normalizeSymbol(symbol)
	for _, s := range e.Symbols {
		if s.Symbol == symbol {
			return s, true
		}
	}
	return SymbolInfo{}, false
}

// SymbolInfo holds one symbol's trading rules
type SymbolInfo struct {
	Symbol       string         `json:"symbol"`
	Status       string         `json:"status"`
	BaseAsset    string         `json:"baseAsset"`
	QuoteAsset   string         `json:"quoteAsset"`
	ContractType string         `json:"contractType,omitempty"` // futures only
	Filters      []SymbolFilter `json:"filters"`
}

// Filter returns the filter of the given type (PRICE_FILTER, LOT_SIZE, ...)
func (s SymbolInfo) Filter(filterType string) (SymbolFilter, bool) {
	for _, f := range s.Filters {
		if f.FilterType == filterType {
			return f, true
		}
	}
	return SymbolFilter{}, false
}

// SymbolFilter covers the numeric fields of the filters the engine uses
type SymbolFilter struct {
	FilterType  string          `json:"filterType"`
	MinPrice    decimal.Decimal `json:"minPrice,omitempty"`
	MaxPrice    decimal.Decimal `json:"maxPrice,omitempty"`
	TickSize    decimal.Decimal `json:"tickSize,omitempty"`
	MinQty      decimal.Decimal `json:"minQty,omitempty"`
	MaxQty      decimal.Decimal `json:"maxQty,omitempty"`
	StepSize    decimal.Decimal `json:"stepSize,omitempty"`
	MinNotional decimal.Decimal `json:"minNotional,omitempty"`
	Notional    decimal.Decimal `json:"notional,omitempty"` // futures MIN_NOTIONAL
}

// TickerPrice is the latest price for a symbol
type TickerPrice struct {
	Symbol string          `json:"symbol"`
	Price  decimal.Decimal `json:"price"`
	Time   int64           `json:"time,omitempty"`
}

// depthResponse is the raw /depth payload; E and T are futures only
type depthResponse struct {
	LastUpdateID int64                `json:"lastUpdateId"`
	EventTime    int64                `json:"E"`
	TxTime       int64                `json:"T"`
	Bids         [][2]decimal.Decimal `json:"bids"`
	Asks         [][2]decimal.Decimal `json:"asks"`
}

func (d depthResponse) snapshot(symbol string, fetched time.Time) microstructure.OrderBookSnapshot {
	ts := fetched
	if d.TxTime > 0 {
		ts = msTime(d.TxTime)
	}
	return microstructure.OrderBookSnapshot{
		Symbol:       symbol,
		Venue:        provider,
		Bids:         toLevels(d.Bids),
		Asks:         toLevels(d.Asks),
		Timestamp:    ts,
		LastUpdateID: d.LastUpdateID,
	}
}

func toLevels(raw [][2]decimal.Decimal) []microstructure.PriceLevel {
	levels := make([]microstructure.PriceLevel, len(raw))
	for i, r := range raw {
		levels[i] = microstructure.PriceLevel{Price: r[0], Quantity: r[1]}
	}
	return levels
}

// tradeResponse is one /trades row
type tradeResponse struct {
	ID           int64           `json:"id"`
	Price        decimal.Decimal `json:"price"`
	Qty          decimal.Decimal `json:"qty"`
	Time         int64           `json:"time"`
	IsBuyerMaker bool            `json:"isBuyerMaker"`
}

func (t tradeResponse) trade() microstructure.Trade {
	return microstructure.Trade{
		ID:           t.ID,
		Price:        t.Price,
		Quantity:     t.Qty,
		Timestamp:    msTime(t.Time),
		TakerIsBuyer: !t.IsBuyerMaker,
	}
}

// Kline is one candlestick
type Kline struct {
	OpenTime            time.Time       `json:"open_time"`
	Open                decimal.Decimal `json:"open"`
	High                decimal.Decimal `json:"high"`
	Low                 decimal.Decimal `json:"low"`
	Close               decimal.Decimal `json:"close"`
	Volume              decimal.Decimal `json:"volume"`
	CloseTime           time.Time       `json:"close_time"`
	QuoteVolume         decimal.Decimal `json:"quote_volume"`
	Trades              int64           `json:"trades"`
	TakerBuyBaseVolume  decimal.Decimal `json:"taker_buy_base_volume"`
	TakerBuyQuoteVolume decimal.Decimal `json:"taker_buy_quote_volume"`
}

// UnmarshalJSON decodes the venue's positional array form
func (k *Kline) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) < 11 {
		return fmt.Errorf("kline has %d fields, want at least 11", len(raw))
	}

	var openTime, closeTime int64
	targets := []interface{}{
		&openTime, &k.Open, &k.High, &k.Low, &k.Close, &k.Volume,
		&closeTime, &k.QuoteVolume, &k.Trades, &k.TakerBuyBaseVolume, &k.TakerBuyQuoteVolume,
	}
	for i, target := range targets {
		if err := json.Unmarshal(raw[i], target); err != nil {
			return fmt.Errorf("kline field %d: %w", i, err)
		}
	}
	k.OpenTime = msTime(openTime)
	k.CloseTime = msTime(closeTime)
	return nil
}

// FundingRate is one funding settlement
type FundingRate struct {
	Symbol      string          `json:"symbol"`
	FundingRate decimal.Decimal `json:"fundingRate"`
	FundingTime int64           `json:"fundingTime"`
	MarkPrice   string          `json:"markPrice,omitempty"` // absent or "" on older settlements
}

// Mark returns the settlement mark price when the venue reported one
func (f FundingRate) Mark() decimal.NullDecimal {
	d, err := decimal.NewFromString(f.MarkPrice)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}

// PremiumIndex carries mark, index and the next funding estimate
type PremiumIndex struct {
	Symbol               string          `json:"symbol"`
	MarkPrice            decimal.Decimal `json:"markPrice"`
	IndexPrice           decimal.Decimal `json:"indexPrice"`
	EstimatedSettlePrice decimal.Decimal `json:"estimatedSettlePrice"`
	LastFundingRate      decimal.Decimal `json:"lastFundingRate"`
	InterestRate         decimal.Decimal `json:"interestRate"`
	NextFundingTime      int64           `json:"nextFundingTime"`
	Time                 int64           `json:"time"`
}

// Premium returns (mark - index) / index as a percent, undefined with no index
func (p PremiumIndex) Premium() decimal.NullDecimal {
	if !p.IndexPrice.IsPositive() {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(p.MarkPrice.Sub(p.IndexPrice).Div(p.IndexPrice).Mul(decimal.NewFromInt(100)))
}

// Ticker24hr is the rolling 24h window statistics
type Ticker24hr struct {
	Symbol             string          `json:"symbol"`
	PriceChange        decimal.Decimal `json:"priceChange"`
	PriceChangePercent decimal.Decimal `json:"priceChangePercent"`
	WeightedAvgPrice   decimal.Decimal `json:"weightedAvgPrice"`
	LastPrice          decimal.Decimal `json:"lastPrice"`
	LastQty            decimal.Decimal `json:"lastQty"`
	OpenPrice          decimal.Decimal `json:"openPrice"`
	HighPrice          decimal.Decimal `json:"highPrice"`
	LowPrice           decimal.Decimal `json:"lowPrice"`
	Volume             decimal.Decimal `json:"volume"`
	QuoteVolume        decimal.Decimal `json:"quoteVolume"`
	OpenTime           int64           `json:"openTime"`
	CloseTime          int64           `json:"closeTime"`
	Count              int64           `json:"count"`
}

// oneOrMany decodes endpoints that answer with an object for one symbol and an array otherwise
func oneOrMany[T any](raw json.RawMessage) ([]T, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var one T
		if err := json.Unmarshal(trimmed, &one); err != nil {
			return nil, err
		}
		return []T{one}, nil
	}
	var many []T
	if err := json.Unmarshal(trimmed, &many); err != nil {
		return nil, err
	}
	return many, nil
}

func msTime(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
