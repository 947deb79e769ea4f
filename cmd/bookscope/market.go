package main

import (
	"github.com/spf13/cobra"

	"github.com/sawpanic/bookscope/internal/data/exchanges/binance"
)

const (
	defaultBookLimit   = 100
	defaultTradesLimit = 50
	defaultKlinesLimit = 100
)

func newPingCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Spot API ping",
		Args:  cobra.NoArgs,
		RunE: withApp(opts, func(cmd *cobra.Command, a *app, args []string) error {
			if err := a.client.Ping(cmd.Context()); err != nil {
				return err
			}
			a.printf("Spot API: pong\n")
			return nil
		}),
	}
}

func newTimeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "time",
		Short: "Spot server time",
		Args:  cobra.NoArgs,
		RunE: withApp(opts, func(cmd *cobra.Command, a *app, args []string) error {
			ts, err := a.client.ServerTime(cmd.Context())
			if err != nil {
				return err
			}
			a.printf("Spot server time: %d (%s)\n", ts.UnixMilli(), ts.Format("2006-01-02T15:04:05.000Z07:00"))
			return nil
		}),
	}
}

func newExchangeInfoCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "exchange-info [symbol...]",
		Short: "Spot exchange info",
		RunE: withApp(opts, func(cmd *cobra.Command, a *app, args []string) error {
			symbols := make([]string, len(args))
			for i := range args {
				symbols[i] = arg(args, i)
			}
			info, err := a.client.ExchangeInfo(cmd.Context(), symbols...)
			if err != nil {
				return err
			}
			return a.printJSON(info)
		}),
	}
}

func newTickerCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ticker [symbol]",
		Short: "Spot ticker price (symbol or all)",
		Args:  cobra.MaximumNArgs(1),
		RunE: withApp(opts, func(cmd *cobra.Command, a *app, args []string) error {
			prices, err := a.client.TickerPrice(cmd.Context(), arg(args, 0))
			if err != nil {
				return err
			}
			if len(args) > 0 && len(prices) == 1 {
				return a.printJSON(prices[0])
			}
			return a.printJSON(prices)
		}),
	}
}

func newOrderBookCmd(opts *rootOptions) *cobra.Command {
	return orderBookCmd(opts, "orderbook", "Spot order book depth", func(a *app) bookFetcher { return a.client.OrderBook })
}

func newTradesCmd(opts *rootOptions) *cobra.Command {
	return tradesCmd(opts, "trades", "Spot recent trades", func(a *app) tradesFetcher { return a.client.RecentTrades })
}

func newKlinesCmd(opts *rootOptions) *cobra.Command {
	return klinesCmd(opts, "klines", "Spot klines", func(a *app) klinesFetcher { return a.client.Klines })
}

func newFuturesExchangeInfoCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "futures-exchange-info",
		Short: "Futures exchange info",
		Args:  cobra.NoArgs,
		RunE: withApp(opts, func(cmd *cobra.Command, a *app, args []string) error {
			info, err := a.client.FuturesExchangeInfo(cmd.Context())
			if err != nil {
				return err
			}
			return a.printJSON(info)
		}),
	}
}

func newFuturesFundingRateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "futures-funding-rate [symbol] [limit]",
		Short: "Futures funding rate history",
		Args:  cobra.MaximumNArgs(2),
		RunE: withApp(opts, func(cmd *cobra.Command, a *app, args []string) error {
			rates, err := a.client.FundingRate(cmd.Context(), binance.FundingRateRequest{
				Symbol: arg(args, 0),
				Limit:  parseLimit(args, 1, defaultBookLimit),
			})
			if err != nil {
				return err
			}
			return a.printJSON(rates)
		}),
	}
}

func newFuturesMarkPriceCmd(opts *rootOptions) *cobra.Command {
	return premiumCmd(opts, "futures-mark-price [symbol]", "Futures mark price", func(a *app) premiumFetcher { return a.client.MarkPrice })
}

func newFuturesPremiumIndexCmd(opts *rootOptions) *cobra.Command {
	return premiumCmd(opts, "futures-premium-index [symbol]", "Futures premium index", func(a *app) premiumFetcher { return a.client.PremiumIndex })
}

func newFuturesTickerCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "futures-ticker [symbol]",
		Short: "Futures 24hr ticker",
		Args:  cobra.MaximumNArgs(1),
		RunE: withApp(opts, func(cmd *cobra.Command, a *app, args []string) error {
			tickers, err := a.client.Ticker24hr(cmd.Context(), arg(args, 0))
			if err != nil {
				return err
			}
			if len(args) > 0 && len(tickers) == 1 {
				return a.printJSON(tickers[0])
			}
			return a.printJSON(tickers)
		}),
	}
}

func newFuturesOrderBookCmd(opts *rootOptions) *cobra.Command {
	return orderBookCmd(opts, "futures-orderbook", "Futures order book depth", func(a *app) bookFetcher { return a.client.FuturesOrderBook })
}

func newFuturesTradesCmd(opts *rootOptions) *cobra.Command {
	return tradesCmd(opts, "futures-trades", "Futures recent trades", func(a *app) tradesFetcher { return a.client.FuturesRecentTrades })
}

func newFuturesKlinesCmd(opts *rootOptions) *cobra.Command {
	return klinesCmd(opts, "futures-klines", "Futures klines", func(a *app) klinesFetcher { return a.client.FuturesKlines })
}
