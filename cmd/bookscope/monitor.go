package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/sawpanic/bookscope/internal/data/exchanges/binance"
	apihttp "github.com/sawpanic/bookscope/internal/interfaces/http"
	"github.com/sawpanic/bookscope/internal/microstructure"
)

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func newMonitorCmd(opts *rootOptions) *cobra.Command {
	var (
		host     string
		port     int
		symbols  []string
		interval time.Duration
	)
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Start the monitoring HTTP server",
		Long:  "Serves /health, /metrics and /analyze/{symbol}. With --symbols, analyzes them every --interval to keep the gauges fresh.",
		Args:  cobra.NoArgs,
		RunE: withApp(opts, func(cmd *cobra.Command, a *app, args []string) error {
			serverCfg := a.cfg.Server
			if cmd.Flags().Changed("host") {
				serverCfg.Host = host
			}
			if cmd.Flags().Changed("port") {
				serverCfg.Port = port
			}
			if err := serverCfg.Validate(); err != nil {
				return err
			}
			if len(symbols) > 0 && interval <= 0 {
				return &usageError{msg: "--interval must be positive"}
			}

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			server := apihttp.NewServer(serverCfg, a.service, a.client, a.metrics, version)
			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return server.Run(gctx) })

			if len(symbols) > 0 {
				g.Go(func() error {
					refresh(gctx, a, symbols, interval)
					return nil
				})
			}
			return g.Wait()
		}),
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "HTTP server host")
	cmd.Flags().IntVar(&port, "port", 8080, "HTTP server port")
	cmd.Flags().StringSliceVar(&symbols, "symbols", nil, "Symbols to analyze periodically (comma-separated)")
	cmd.Flags().DurationVar(&interval, "interval", 30*time.Second, "Refresh interval for --symbols")
	return cmd
}

// refresh analyzes symbols on every tick until ctx is done; results land in the metrics registry
func refresh(ctx context.Context, a *app, symbols []string, interval time.Duration) {
	for i := range symbols {
		symbols[i] = strings.ToUpper(strings.TrimSpace(symbols[i]))
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		reports, err := a.service.AnalyzeMany(ctx, symbols)
		if err != nil {
			log.Warn().Err(err).Msg("refresh failed")
		}
		for _, r := range reports {
			if r.Err != nil {
				log.Warn().Err(r.Err).Str("symbol", r.Symbol).Msg("refresh analysis failed")
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func newWatchCmd(opts *rootOptions) *cobra.Command {
	var (
		interval time.Duration
		capacity int
		futures  bool
	)
	cmd := &cobra.Command{
		Use:   "watch <symbol>",
		Short: "Stream trades and print a live analysis line every interval",
		Args:  requireSymbol("watch BTCUSDT", 1),
		RunE: withApp(opts, func(cmd *cobra.Command, a *app, args []string) error {
			if interval <= 0 {
				return &usageError{msg: "--interval must be positive"}
			}
			symbol := arg(args, 0)
			streamURL, fetchBook := a.cfg.Binance.SpotStreamURL, a.client.OrderBook
			if futures {
				streamURL, fetchBook = a.cfg.Binance.FuturesStreamURL, a.client.FuturesOrderBook
			}

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			session := uuid.New().String()[:8]
			stream := binance.NewTradeStream(streamURL, symbol, capacity)
			logger := log.With().Str("session", session).Str("symbol", symbol).Logger()
			logger.Info().Str("stream", streamURL).Msg("watch started")

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return stream.Run(gctx) })
			g.Go(func() error {
				ticker := time.NewTicker(interval)
				defer ticker.Stop()
				for {
					select {
					case <-gctx.Done():
						return gctx.Err()
					case <-ticker.C:
					}

					snap, err := fetchBook(gctx, symbol, a.cfg.Binance.DepthLimit)
					if err != nil {
						logger.Warn().Err(err).Msg("order book fetch failed")
						continue
					}
					report, err := a.service.Evaluate(snap, stream.Tape())
					if err != nil {
						logger.Warn().Err(err).Msg("analysis failed")
						continue
					}
					a.printf("%s\n", watchLine(time.Now().UTC(), report.Analysis, string(report.Recommendation)))
				}
			})

			err := g.Wait()
			if ctx.Err() != nil {
				logger.Info().Int("trades", stream.Len()).Msg("watch stopped")
				return nil
			}
			return err
		}),
	}
	cmd.Flags().DurationVar(&interval, "interval", 5*time.Second, "How often to print an analysis line")
	cmd.Flags().IntVar(&capacity, "tape", binance.DefaultTapeCapacity, "Trades kept in the rolling tape")
	cmd.Flags().BoolVar(&futures, "futures", false, "Watch the USDT-M futures market")
	return cmd
}

func watchLine(now time.Time, res *microstructure.AnalysisResult, recommendation string) string {
	na := microstructure.FormatNull
	flags := ""
	if res.Burst.Detected {
		flags = " BURST"
	}
	return now.Format("15:04:05") +
		" bid " + na(res.Market.BestBid, -1) +
		" ask " + na(res.Market.BestAsk, -1) +
		" spread " + na(res.Market.SpreadPercent, 4) + "%" +
		" obi " + na(res.OBI, 3) +
		" wobi " + na(res.WOBI, 3) +
		" flow " + string(res.TradeFlow.Signal) +
		" pressure " + na(res.PressureIndex, 3) +
		" -> " + recommendation + flags
}
