package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sawpanic/bookscope/internal/data/exchanges/binance"
	"github.com/sawpanic/bookscope/internal/microstructure"
)

type (
	bookFetcher    func(ctx context.Context, symbol string, limit int) (microstructure.OrderBookSnapshot, error)
	tradesFetcher  func(ctx context.Context, symbol string, limit int) ([]microstructure.Trade, error)
	klinesFetcher  func(ctx context.Context, req binance.KlineRequest) ([]binance.Kline, error)
	premiumFetcher func(ctx context.Context, symbol string) ([]binance.PremiumIndex, error)
)

// Spot and futures share the same shapes; these build both variants of a command

func orderBookCmd(opts *rootOptions, name, short string, fetch func(*app) bookFetcher) *cobra.Command {
	return &cobra.Command{
		Use:   name + " <symbol> [limit]",
		Short: short,
		Args:  requireSymbol(name+" BTCUSDT", 2),
		RunE: withApp(opts, func(cmd *cobra.Command, a *app, args []string) error {
			symbol := arg(args, 0)
			snap, err := fetch(a)(cmd.Context(), symbol, parseLimit(args, 1, defaultBookLimit))
			if err != nil {
				return err
			}
			return a.printJSON(snap)
		}),
	}
}

func tradesCmd(opts *rootOptions, name, short string, fetch func(*app) tradesFetcher) *cobra.Command {
	return &cobra.Command{
		Use:   name + " <symbol> [limit]",
		Short: short,
		Args:  requireSymbol(name+" BTCUSDT", 2),
		RunE: withApp(opts, func(cmd *cobra.Command, a *app, args []string) error {
			symbol := arg(args, 0)
			trades, err := fetch(a)(cmd.Context(), symbol, parseLimit(args, 1, defaultTradesLimit))
			if err != nil {
				return err
			}
			return a.printJSON(trades)
		}),
	}
}

func klinesCmd(opts *rootOptions, name, short string, fetch func(*app) klinesFetcher) *cobra.Command {
	return &cobra.Command{
		Use:   name + " <symbol> <interval> [limit]",
		Short: short,
		Args:  requireSymbolAndInterval(name+" BTCUSDT 1h", 3),
		RunE: withApp(opts, func(cmd *cobra.Command, a *app, args []string) error {
			symbol := arg(args, 0)
			klines, err := fetch(a)(cmd.Context(), binance.KlineRequest{
				Symbol:   symbol,
				Interval: args[1],
				Limit:    parseLimit(args, 2, defaultKlinesLimit),
			})
			if err != nil {
				return err
			}
			return a.printJSON(klines)
		}),
	}
}

func premiumCmd(opts *rootOptions, use, short string, fetch func(*app) premiumFetcher) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.MaximumNArgs(1),
		RunE: withApp(opts, func(cmd *cobra.Command, a *app, args []string) error {
			symbol := arg(args, 0)
			entries, err := fetch(a)(cmd.Context(), symbol)
			if err != nil {
				return err
			}
			if symbol == "" {
				return a.printJSON(entries)
			}
			if len(entries) != 1 {
				return fmt.Errorf("expected one premium index entry for %s, got %d", symbol, len(entries))
			}
			return a.printJSON(entries[0])
		}),
	}
}
