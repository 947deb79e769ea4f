package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/sawpanic/bookscope/internal/application/analysis"
	"github.com/sawpanic/bookscope/internal/config"
	"github.com/sawpanic/bookscope/internal/execution"
	"github.com/sawpanic/bookscope/internal/microstructure"
)

func newAnalyzeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "analyze <symbol>...",
		Short: "Order book and trade flow analysis",
		Long:  "Fetches each symbol's book and recent trades concurrently and reports spread, depth, imbalance, liquidity, flow and pressure.",
		Args: func(cmd *cobra.Command, args []string) error {
			if arg(args, 0) == "" {
				return symbolRequired("analyze BTCUSDT")
			}
			return nil
		},
		RunE: withApp(opts, func(cmd *cobra.Command, a *app, args []string) error {
			symbols := make([]string, len(args))
			for i := range args {
				symbols[i] = arg(args, i)
			}

			if len(symbols) == 1 {
				report, err := a.service.Analyze(cmd.Context(), symbols[0])
				if err != nil {
					return err
				}
				if a.json {
					return a.printJSON(report)
				}
				renderReport(a.out, report)
				return nil
			}

			reports, err := a.service.AnalyzeMany(cmd.Context(), symbols)
			if err != nil {
				return err
			}
			if a.json {
				return a.printJSON(batchJSON(reports))
			}

			failed := 0
			for i, r := range reports {
				if i > 0 {
					a.printf("\n")
				}
				if r.Err != nil {
					failed++
					a.printf("%s: Error: %v\n", r.Symbol, r.Err)
					continue
				}
				renderReport(a.out, r.Report)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d symbols failed", failed, len(reports))
			}
			return nil
		}),
	}
}

type batchEntry struct {
	Symbol string           `json:"symbol"`
	Report *analysis.Report `json:"report,omitempty"`
	Error  string           `json:"error,omitempty"`
}

func batchJSON(reports []analysis.SymbolReport) []batchEntry {
	out := make([]batchEntry, len(reports))
	for i, r := range reports {
		out[i] = batchEntry{Symbol: r.Symbol, Report: r.Report}
		if r.Err != nil {
			out[i].Error = r.Err.Error()
		}
	}
	return out
}

// renderReport prints the human-readable analysis; undefined metrics print as n/a
func renderReport(w io.Writer, r *analysis.Report) {
	res := r.Analysis
	m := res.Market
	na := microstructure.FormatNull

	fmt.Fprintf(w, "%s Spot Market Analysis\n", r.Symbol)
	fmt.Fprintln(w, strings.Repeat("─", 40))
	fmt.Fprintf(w, "Best Bid:    %s\n", na(m.BestBid, -1))
	fmt.Fprintf(w, "Best Ask:    %s\n", na(m.BestAsk, -1))
	fmt.Fprintf(w, "Spread:      %s (%s%%)\n", na(m.Spread, -1), na(m.SpreadPercent, 4))
	fmt.Fprintf(w, "Bid Depth:   %s\n", m.BidDepth.StringFixed(4))
	fmt.Fprintf(w, "Ask Depth:   %s\n", m.AskDepth.StringFixed(4))
	fmt.Fprintf(w, "Imbalance:   %s\n", na(m.Imbalance, 4))
	fmt.Fprintf(w, "OBI:         %s\n", na(res.OBI, 4))
	fmt.Fprintf(w, "WOBI:        %s\n", na(res.WOBI, 4))
	fmt.Fprintln(w, microstructure.DepthSummary(res.DepthBand))
	fmt.Fprintf(w, "Slope:       bid %s / ask %s\n", na(res.LiquiditySlope.Bid, 4), na(res.LiquiditySlope.Ask, 4))
	fmt.Fprintf(w, "Liquidity:   %s\n", na(res.LiquidityScore, 4))

	fmt.Fprintf(w, "\nTrade Flow (%d trades):\n", res.TradeFlow.TradeCount)
	fmt.Fprintf(w, "  VWAP:      %s\n", na(res.VWAP, 4))
	fmt.Fprintf(w, "  Drift:     %s%%\n", na(res.VWAPDrift, 4))
	fmt.Fprintf(w, "  Net Flow:  %s (%s)\n", na(res.TradeFlow.NetRatio, 4), res.TradeFlow.Signal)
	fmt.Fprintf(w, "  Burst:     %s\n", burstSummary(res.Burst))
	fmt.Fprintf(w, "  Pressure:  %s\n", na(res.PressureIndex, 4))

	fmt.Fprintf(w, "\nSlippage (1 %s):\n", r.Symbol)
	fmt.Fprintf(w, "  Avg Price: %s\n", na(r.UnitBuy.AveragePrice, 4))
	fmt.Fprintf(w, "  Slippage:  %s%%\n", na(r.UnitBuy.SlippagePercent, 4))
	if !r.UnitBuy.FullyFilled {
		fmt.Fprintf(w, "  Filled:    %s (book exhausted)\n", r.UnitBuy.FilledQuantity.String())
	}

	fmt.Fprintf(w, "\nRecommendation: %s order (threshold %s%%)\n", r.Recommendation, r.ThresholdPct.String())
}

func burstSummary(b microstructure.BurstResult) string {
	switch {
	case b.InsufficientData:
		return "n/a (insufficient history)"
	case b.Detected:
		return fmt.Sprintf("DETECTED (%sx baseline)", microstructure.FormatNull(b.RateRatio, 2))
	default:
		return fmt.Sprintf("none (%sx baseline)", microstructure.FormatNull(b.RateRatio, 2))
	}
}

func newSlippageCmd(opts *rootOptions) *cobra.Command {
	var side string
	cmd := &cobra.Command{
		Use:   "slippage <symbol> <qty>",
		Short: "Expected fill price and slippage for a market order",
		Args:  requireSymbolAndQuantity("slippage BTCUSDT 2.5"),
		RunE: withApp(opts, func(cmd *cobra.Command, a *app, args []string) error {
			qty, err := parseAmount("quantity", args[1])
			if err != nil {
				return err
			}
			levels, err := sideLevels(cmd, a, arg(args, 0), side)
			if err != nil {
				return err
			}
			res, err := execution.CalculateSlippage(levels, qty)
			if err != nil {
				return err
			}
			if a.json {
				return a.printJSON(res)
			}

			a.printf("%s market %s %s\n", arg(args, 0), strings.ToLower(side), qty.String())
			a.printf("  Avg Price: %s\n", microstructure.FormatNull(res.AveragePrice, 4))
			a.printf("  Slippage:  %s%%\n", microstructure.FormatNull(res.SlippagePercent, 4))
			a.printf("  Filled:    %s / %s over %d levels\n", res.FilledQuantity.String(), res.RequestedQuantity.String(), res.LevelsConsumed)
			a.printf("  Cost:      %s\n", res.Cost.StringFixed(4))
			if !res.FullyFilled {
				a.printf("  Warning:   book exhausted before the full quantity\n")
			}
			return nil
		}),
	}
	cmd.Flags().StringVar(&side, "side", "buy", "Order side (buy walks asks, sell walks bids)")
	return cmd
}

func newSplitCmd(opts *rootOptions) *cobra.Command {
	var (
		side        string
		maxSlippage string
	)
	cmd := &cobra.Command{
		Use:   "split <symbol> <qty>",
		Short: "Split an order into clips that each stay within a slippage cap",
		Args:  requireSymbolAndQuantity("split BTCUSDT 10 --max-slippage 0.5"),
		RunE: withApp(opts, func(cmd *cobra.Command, a *app, args []string) error {
			qty, err := parseAmount("quantity", args[1])
			if err != nil {
				return err
			}
			limit := a.cfg.Execution.MaxSlippagePercent
			if maxSlippage != "" {
				if limit, err = parseAmount("max slippage", maxSlippage); err != nil {
					return err
				}
			}
			levels, err := sideLevels(cmd, a, arg(args, 0), side)
			if err != nil {
				return err
			}
			plan, err := execution.SplitOrder(qty, levels, limit)
			if err != nil {
				return err
			}
			if a.json {
				return a.printJSON(plan)
			}

			a.printf("%s %s %s in %d clips (max slippage %s%%)\n",
				arg(args, 0), strings.ToLower(side), plan.Planned.String(), len(plan.Clips), limit.String())
			for _, c := range plan.Clips {
				a.printf("  #%-3d qty %-16s start %-14s avg %-14s slip %s%%\n",
					c.Index+1, c.Quantity.String(), c.StartPrice.String(), c.AveragePrice.StringFixed(4), c.SlippagePercent.StringFixed(4))
			}
			if plan.Partial {
				a.printf("  Warning: book holds only %s of %s\n", plan.Planned.String(), plan.Requested.String())
			}
			return nil
		}),
	}
	cmd.Flags().StringVar(&side, "side", "buy", "Order side (buy|sell)")
	cmd.Flags().StringVar(&maxSlippage, "max-slippage", "", "Per-clip slippage cap in percent (default from config)")
	return cmd
}

func newBuyableCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "buyable <symbol> <budget>",
		Short: "Largest quantity a quote budget buys against the asks",
		Args:  requireSymbolAndQuantity("buyable BTCUSDT 10000"),
		RunE: withApp(opts, func(cmd *cobra.Command, a *app, args []string) error {
			budget, err := parseAmount("budget", args[1])
			if err != nil {
				return err
			}
			snap, err := a.client.OrderBook(cmd.Context(), arg(args, 0), a.cfg.Binance.DepthLimit)
			if err != nil {
				return err
			}
			res, err := execution.MaxBuyableQty(snap.Asks, budget)
			if err != nil {
				return err
			}
			if a.json {
				return a.printJSON(res)
			}

			a.printf("%s with %s quote:\n", arg(args, 0), budget.String())
			a.printf("  Quantity:  %s\n", res.Quantity.String())
			a.printf("  Cost:      %s\n", res.Cost.StringFixed(4))
			a.printf("  Remaining: %s\n", res.Remaining.StringFixed(4))
			a.printf("  Avg Price: %s\n", microstructure.FormatNull(res.AveragePrice, 4))
			if res.BookExhausted {
				a.printf("  Warning:   budget outlasted the fetched asks\n")
			}
			return nil
		}),
	}
}

func newRiskCmd(opts *rootOptions) *cobra.Command {
	var (
		symbol, qty, price, leverage                    string
		minQty, maxQty, minNotional, maxNotional, maxLev string
	)
	cmd := &cobra.Command{
		Use:   "risk --qty <qty> --price <price>",
		Short: "Check an order against configured risk limits",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if qty == "" || price == "" {
				return &usageError{msg: fmt.Sprintf("Quantity and price required. Example: %s risk --qty 0.5 --price 50000", appName)}
			}
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}

			in := execution.RiskCheckInput{Symbol: strings.ToUpper(symbol)}
			if in.Quantity, err = parseAmount("quantity", qty); err != nil {
				return err
			}
			if in.Price, err = parseAmount("price", price); err != nil {
				return err
			}
			if leverage != "" {
				if in.Leverage, err = parseAmount("leverage", leverage); err != nil {
					return err
				}
			}

			limits := cfg.Execution.Risk
			for _, o := range []struct {
				raw string
				dst *decimal.Decimal
			}{
				{minQty, &limits.MinQuantity},
				{maxQty, &limits.MaxQuantity},
				{minNotional, &limits.MinNotional},
				{maxNotional, &limits.MaxNotional},
				{maxLev, &limits.MaxLeverage},
			} {
				if o.raw == "" {
					continue
				}
				if *o.dst, err = parseAmount("limit", o.raw); err != nil {
					return err
				}
			}

			verdict, err := execution.CheckRisk(in, limits)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if opts.jsonOutput {
				a := &app{out: out}
				return a.printJSON(verdict)
			}
			renderVerdict(out, verdict)
			if !verdict.Passed {
				return fmt.Errorf("risk check failed with %d violation(s)", len(verdict.Violations))
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&symbol, "symbol", "", "Symbol for the report")
	f.StringVar(&qty, "qty", "", "Order quantity")
	f.StringVar(&price, "price", "", "Order price")
	f.StringVar(&leverage, "leverage", "", "Leverage (futures)")
	f.StringVar(&minQty, "min-qty", "", "Override minimum quantity")
	f.StringVar(&maxQty, "max-qty", "", "Override maximum quantity")
	f.StringVar(&minNotional, "min-notional", "", "Override minimum notional")
	f.StringVar(&maxNotional, "max-notional", "", "Override maximum notional")
	f.StringVar(&maxLev, "max-leverage", "", "Override maximum leverage")
	return cmd
}

func renderVerdict(w io.Writer, v execution.RiskVerdict) {
	status := "PASS"
	if !v.Passed {
		status = "FAIL"
	}
	fmt.Fprintf(w, "Risk check: %s (notional %s)\n", status, v.Notional.String())
	for _, violation := range v.Violations {
		fmt.Fprintf(w, "  - %s\n", violation.String())
	}
}

// sideLevels fetches the book and returns the side a market order on side would consume
func sideLevels(cmd *cobra.Command, a *app, symbol, side string) ([]microstructure.PriceLevel, error) {
	var walkAsks bool
	switch strings.ToLower(side) {
	case "buy":
		walkAsks = true
	case "sell":
	default:
		return nil, &usageError{msg: fmt.Sprintf("invalid side %q (buy|sell)", side)}
	}

	snap, err := a.client.OrderBook(cmd.Context(), symbol, a.cfg.Binance.DepthLimit)
	if err != nil {
		return nil, err
	}
	if walkAsks {
		return snap.Asks, nil
	}
	return snap.Bids, nil
}

func requireSymbolAndQuantity(example string) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if arg(args, 0) == "" || arg(args, 1) == "" {
			return &usageError{msg: fmt.Sprintf("Symbol and amount required. Example: %s %s", appName, example)}
		}
		return cobra.ExactArgs(2)(cmd, args)
	}
}
