// Package analysis fetches a symbol's book and tape and runs the microstructure engine and
// execution planner over them. It is shared by the CLI and the monitor server.
package analysis

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/sawpanic/bookscope/internal/execution"
	"github.com/sawpanic/bookscope/internal/microstructure"
)

// Source supplies market data
type Source interface {
	OrderBook(ctx context.Context, symbol string, limit int) (microstructure.OrderBookSnapshot, error)
	RecentTrades(ctx context.Context, symbol string, limit int) ([]microstructure.Trade, error)
}

// Recorder receives the outcome of every analysis
type Recorder interface {
	RecordAnalysis(symbol string, report *Report, elapsed time.Duration, err error)
}

// Report is an analysis plus the execution view derived from it
type Report struct {
	Symbol         string                         `json:"symbol"`
	Analysis       *microstructure.AnalysisResult `json:"analysis"`
	Recommendation execution.OrderType            `json:"recommendation"`
	ThresholdPct   decimal.Decimal                `json:"recommendation_threshold_percent"`
	UnitBuy        execution.SlippageResult       `json:"unit_buy"`
	UnitSell       execution.SlippageResult       `json:"unit_sell"`
	BidLevels      int                            `json:"bid_levels"`
	AskLevels      int                            `json:"ask_levels"`
	Trades         int                            `json:"trades"`
}

// Options tune how much data is fetched
type Options struct {
	DepthLimit  int
	TradesLimit int
}

// Service runs analyses against a Source
type Service struct {
	source   Source
	engine   *microstructure.Config
	exec     execution.Config
	opts     Options
	recorder Recorder
}

// NewService wires a source to the engine. recorder may be nil.
func NewService(source Source, engine *microstructure.Config, exec execution.Config, opts Options, recorder Recorder) *Service {
	if engine == nil {
		engine = microstructure.DefaultConfig()
	}
	return &Service{source: source, engine: engine, exec: exec, opts: opts, recorder: recorder}
}

// Fetch retrieves the book and tape for symbol concurrently
func (s *Service) Fetch(ctx context.Context, symbol string) (microstructure.OrderBookSnapshot, []microstructure.Trade, error) {
	var (
		snap   microstructure.OrderBookSnapshot
		trades []microstructure.Trade
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		snap, err = s.source.OrderBook(gctx, symbol, s.opts.DepthLimit)
		if err != nil {
			return fmt.Errorf("order book %s: %w", symbol, err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		trades, err = s.source.RecentTrades(gctx, symbol, s.opts.TradesLimit)
		if err != nil {
			return fmt.Errorf("trades %s: %w", symbol, err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return microstructure.OrderBookSnapshot{}, nil, err
	}
	return snap, trades, nil
}

// Analyze fetches and analyzes one symbol
func (s *Service) Analyze(ctx context.Context, symbol string) (*Report, error) {
	start := time.Now()
	report, err := s.analyze(ctx, symbol)
	s.record(symbol, report, time.Since(start), err)
	return report, err
}

func (s *Service) analyze(ctx context.Context, symbol string) (*Report, error) {
	snap, trades, err := s.Fetch(ctx, symbol)
	if err != nil {
		return nil, err
	}
	return s.Evaluate(snap, trades)
}

// Evaluate runs the engine and execution planner over data already in hand
func (s *Service) Evaluate(snap microstructure.OrderBookSnapshot, trades []microstructure.Trade) (*Report, error) {
	result, err := microstructure.AnalyzeSnapshot(snap, trades, s.engine)
	if err != nil {
		return nil, err
	}
	return s.report(snap, trades, result)
}

func (s *Service) report(snap microstructure.OrderBookSnapshot, trades []microstructure.Trade, result *microstructure.AnalysisResult) (*Report, error) {
	buy, err := execution.CalculateSlippage(snap.Asks, decimal.NewFromInt(1))
	if err != nil {
		return nil, err
	}
	sell, err := execution.CalculateSlippage(snap.Bids, decimal.NewFromInt(1))
	if err != nil {
		return nil, err
	}
	return &Report{
		Symbol:         snap.Symbol,
		Analysis:       result,
		Recommendation: execution.RecommendOrderType(result.Market.SpreadPercent, s.exec.OrderTypeThresholdPercent),
		ThresholdPct:   s.exec.OrderTypeThresholdPercent,
		UnitBuy:        buy,
		UnitSell:       sell,
		BidLevels:      len(snap.Bids),
		AskLevels:      len(snap.Asks),
		Trades:         len(trades),
	}, nil
}

// SymbolReport is one entry of AnalyzeMany
type SymbolReport struct {
	Symbol string
	Report *Report
	Err    error
}

// AnalyzeMany fetches every symbol concurrently and analyzes them as one batch.
// A symbol whose fetch or analysis fails carries its error; the rest still succeed.
func (s *Service) AnalyzeMany(ctx context.Context, symbols []string) ([]SymbolReport, error) {
	start := time.Now()
	out := make([]SymbolReport, len(symbols))
	inputs := make([]microstructure.AnalysisInput, len(symbols))

	g, gctx := errgroup.WithContext(ctx)
	if s.engine.MaxBatchConcurrency > 0 {
		g.SetLimit(s.engine.MaxBatchConcurrency)
	}
	for i, symbol := range symbols {
		i, symbol := i, symbol
		out[i].Symbol = symbol
		g.Go(func() error {
			snap, trades, err := s.Fetch(gctx, symbol)
			if err != nil {
				// per-symbol failure, keep going
				out[i].Err = err
				return nil
			}
			inputs[i] = microstructure.AnalysisInput{Snapshot: snap, Trades: trades}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Only analyze what was fetched, then scatter results back by index
	var (
		batch []microstructure.AnalysisInput
		index []int
	)
	for i := range out {
		if out[i].Err == nil {
			batch = append(batch, inputs[i])
			index = append(index, i)
		}
	}
	results, err := microstructure.AnalyzeBatch(ctx, batch, s.engine)
	if err != nil {
		return nil, err
	}
	for j, res := range results {
		i := index[j]
		if res.Err != nil {
			out[i].Err = res.Err
			continue
		}
		out[i].Report, out[i].Err = s.report(inputs[i].Snapshot, inputs[i].Trades, res.Result)
	}

	elapsed := time.Since(start)
	for _, r := range out {
		s.record(r.Symbol, r.Report, elapsed, r.Err)
	}
	log.Debug().Int("symbols", len(symbols)).Dur("elapsed", elapsed).Msg("batch analysis complete")
	return out, nil
}

func (s *Service) record(symbol string, report *Report, elapsed time.Duration, err error) {
	if s.recorder != nil {
		s.recorder.RecordAnalysis(symbol, report, elapsed, err)
	}
}
